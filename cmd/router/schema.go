package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/queryrouter/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [question]",
	Short: "Print the schema context sent to the model for SQL generation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, cancel := contextWithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		pg, err := schema.Open(ctx, cfg.Postgres, logger)
		if err != nil {
			return err
		}
		defer pg.Close()

		s, err := pg.GetTableSchema(ctx)
		if err != nil {
			return err
		}
		question := ""
		if len(args) == 1 {
			question = args[0]
		}
		fmt.Fprintln(cmd.OutOrStdout(), schema.FormatPrompt(s, question))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func contextWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}
