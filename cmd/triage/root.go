package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/triage/internal/cli"
	"github.com/aretw0/triage/internal/config"
	"github.com/aretw0/triage/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Triage routes patient messages between a GP, a specialist and a psychologist",
	Long: `Triage consumes chat messages from a queue (or HTTP), runs them through a workflow of
specialized handlers, and escalates or ends the conversation based on its content.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := config.LoadDotEnv(envFile); err != nil {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}

		path, _ := cmd.Flags().GetString("config")
		var err error
		if cfg, err = config.Load(path); err != nil {
			return err
		}

		if cmd.Flags().Changed("log-level") {
			cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Logging.Format, _ = cmd.Flags().GetString("log-format")
		}
		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return err
		}
		logger = logging.NewWithFormat(os.Stderr, level, cfg.Logging.Format)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().String("env-file", ".env", "Dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
}

// buildApp wires the application from the loaded configuration.
func buildApp() (*cli.App, error) {
	app, err := cli.Build(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("error initializing triage: %w", err)
	}
	return app, nil
}
