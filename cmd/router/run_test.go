package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/queryrouter/internal/router"
)

type runnerFunc func(ctx context.Context, query string) (string, error)

func (f runnerFunc) Run(ctx context.Context, query string) (string, error) { return f(ctx, query) }

func TestRunOnePrintsResponse(t *testing.T) {
	var out bytes.Buffer
	runOne(context.Background(), &out, runnerFunc(func(context.Context, string) (string, error) {
		return "Day 1: Burj Khalifa", nil
	}), demoQueries[0], zaptest.NewLogger(t))
	assert.Equal(t, "\n=== RESPONSE ===\nDay 1: Burj Khalifa\n\n", out.String())
}

func TestRunOneReportsMissingResponse(t *testing.T) {
	cases := map[string]runnerFunc{
		"workflow error": func(context.Context, string) (string, error) {
			return "", &router.WorkflowError{Step: "ExecuteQuery", CauseType: "ToolsUnavailableError"}
		},
		"transport error": func(context.Context, string) (string, error) { return "", errors.New("unavailable") },
		"empty result":    func(context.Context, string) (string, error) { return "", nil },
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			runOne(context.Background(), &out, r, "q", zaptest.NewLogger(t))
			assert.Contains(t, out.String(), "=== ERROR: No response received ===")
		})
	}
}

func TestRunRequiresQueryOrDemo(t *testing.T) {
	rootCmd.SetArgs([]string{"run"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	err := rootCmd.Execute()
	assert.Error(t, err)
}
