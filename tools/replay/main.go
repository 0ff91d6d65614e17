package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/queryrouter/internal/registry"
	"github.com/Kocoro-lab/queryrouter/internal/temporal"
)

func main() {
	historyPath := flag.String("history", "", "Path to a workflow history JSON export (temporal workflow show --output json)")
	flag.Parse()

	if *historyPath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -history /path/to/history.json")
		os.Exit(2)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Only the workflow is needed; replay never executes activities.
	replayer := worker.NewWorkflowReplayer()
	registry.NewRouterRegistry(nil, nil, logger).RegisterWorkflows(replayer)

	if err := replayer.ReplayWorkflowHistoryFromJSONFile(temporal.NewZapAdapter(logger), *historyPath); err != nil {
		log.Fatalf("Replay failed (non-deterministic change or invalid history): %v", err)
	}
	log.Printf("Replay succeeded for %s", *historyPath)
}
