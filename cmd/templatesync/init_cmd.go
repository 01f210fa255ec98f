package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gileck/templatesync/internal/config"
	"github.com/gileck/templatesync/internal/utils"
	"github.com/gileck/templatesync/internal/workspace"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a starter ownership config in the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			ws, err := workspace.New(viper.GetString("project"), ".")
			if err != nil {
				return err
			}
			if path := viper.GetString("config"); path != "" {
				ws.ConfigPath = path
			}
			if utils.FileExists(ws.ConfigPath) {
				return fmt.Errorf("config already exists: %s", ws.ConfigPath)
			}

			cfg := &config.Config{
				TemplatePaths: []string{"src/template"},
				ManifestFiles: []string{"package.json"},
				Path:          ws.ConfigPath,
			}
			if err := cfg.Save(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("created"), ws.ConfigPath)
			return nil
		},
	}
}
