package main

import (
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/queryrouter/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Discover and list the tools on the configured tool server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ep := tools.Endpoint{URL: cfg.Tools.Endpoint, SessionName: cfg.Tools.SessionName, Headers: cfg.Tools.Headers}
		if u, _ := cmd.Flags().GetString("endpoint"); u != "" {
			ep.URL = u
		}
		ctx := cmd.Context()
		if cfg.Tools.Timeout > 0 {
			var cancel func()
			ctx, cancel = contextWithTimeout(ctx, cfg.Tools.Timeout)
			defer cancel()
		}
		set, err := tools.Provision(ctx, tools.NewMCPDialer(&http.Client{}, logger), ep, logger)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tDESCRIPTION")
		for _, d := range set.List() {
			fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.Description)
		}
		fmt.Fprintf(tw, "\n%d tool(s) at %s\n", set.Len(), ep.URL)
		return tw.Flush()
	},
}

func init() {
	toolsCmd.Flags().String("endpoint", "", "Override tools.endpoint")
	rootCmd.AddCommand(toolsCmd)
}
