package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(newPlanCmd())
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show what a sync would do without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			plan, _, err := eng.plan()
			if err != nil {
				return err
			}

			renderPlan(cmd.OutOrStdout(), plan, viper.GetBool("verbose"))
			return nil
		},
	}
}
