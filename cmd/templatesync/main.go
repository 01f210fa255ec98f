package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gileck/templatesync/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "templatesync",
	Short:         "Keep projects in sync with the template repository they were created from",
	Version:       version.Detailed(),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd)
		setupLogging()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.PersistentFlags().StringP("template", "t", "", "Template repository directory")
	rootCmd.PersistentFlags().StringP("project", "p", ".", "Project directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Ownership config file (default <project>/.templatesync.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

func bindFlags(cmd *cobra.Command) {
	viper.BindPFlag("template", cmd.Flags().Lookup("template"))
	viper.BindPFlag("project", cmd.Flags().Lookup("project"))
	viper.BindPFlag("config", cmd.Flags().Lookup("config"))
	viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))

	viper.SetEnvPrefix("TEMPLATESYNC")
	viper.AutomaticEnv()
}

func setupLogging() {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(handler))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorLabel(), err)
		os.Exit(1)
	}
}
