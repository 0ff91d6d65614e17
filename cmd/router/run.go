package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/router"
	"github.com/Kocoro-lab/queryrouter/internal/temporal"
	"github.com/Kocoro-lab/queryrouter/internal/workflows"
)

// demoQueries exercise both paths: the first is answered directly, the
// others go through SQL generation and execution.
var demoQueries = []string{
	"What are the must-see attractions in Dubai for a 3-day trip?",
	"Can you identify the problematic area in our product that led to users churning?",
	"Show me the users who are not customers anymore",
}

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Route a query and wait for the result",
	Long:  `Starts a routing run for the query (or the demo queries with --demo) and prints each response.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		demo, _ := cmd.Flags().GetBool("demo")
		queries := demoQueries
		if !demo {
			if len(args) == 0 {
				return errors.New("a query argument is required unless --demo is set")
			}
			queries = []string{strings.Join(args, " ")}
		}

		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx := cmd.Context()
		c, err := temporal.Dial(ctx, temporal.DialOptions{
			HostPort:    cfg.Temporal.Host,
			Namespace:   cfg.Temporal.Namespace,
			MaxAttempts: 5,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to Temporal: %w", err)
		}
		defer c.Close()

		r := router.New(c, router.Options{
			TaskQueue:        cfg.Temporal.TaskQueue,
			ExecutionTimeout: cfg.Workflow.ExecutionTimeout,
			Run: workflows.RunOptions{
				ClassifyTimeout: cfg.Workflow.ClassifyTimeout,
				StepTimeout:     cfg.Workflow.StepTimeout,
				MaxAttempts:     int32(cfg.Workflow.MaxAttempts),
			},
		}, logger)

		for _, q := range queries {
			runOne(ctx, cmd.OutOrStdout(), r, q, logger)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("demo", false, "Run the built-in demonstration queries")
	rootCmd.AddCommand(runCmd)
}

type queryRunner interface {
	Run(ctx context.Context, query string) (string, error)
}

// runOne never fails the command: a failed run is reported and the next query proceeds.
func runOne(ctx context.Context, out io.Writer, r queryRunner, query string, logger *zap.Logger) {
	logger.Info("Routing query", zap.String("query", query))
	result, err := r.Run(ctx, query)
	if err != nil {
		var we *router.WorkflowError
		if errors.As(err, &we) {
			logger.Error("Run failed", zap.String("step", we.Step), zap.String("cause", we.CauseType), zap.String("message", we.Message))
		} else {
			logger.Error("Run failed", zap.Error(err))
		}
	}
	if err != nil || result == "" {
		fmt.Fprint(out, "\n=== ERROR: No response received ===\n\n")
		return
	}
	fmt.Fprintf(out, "\n=== RESPONSE ===\n%s\n\n", result)
}
