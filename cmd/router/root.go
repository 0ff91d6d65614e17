package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "router",
	Short: "Route natural-language queries through the durable query router",
	Long: `router starts routing runs on the Temporal worker and prints their results.
It can also list the tools discovered on the tool server and print the schema
context used for SQL generation.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Override logging.level")
}

// setup loads configuration and builds a console logger for CLI use.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	lc := cfg.Logging
	lc.Format = "console"
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		lc.Level = lvl
	}
	logger, err := config.NewLogger(lc)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
