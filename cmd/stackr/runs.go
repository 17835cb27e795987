// File: cmd/stackr/runs.go
// Brief: Run history listing.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/stackr/internal/config"
	"github.com/example/stackr/internal/stack"
)

func newRunsCommand(opts *config.Options) *cobra.Command {
	limit := 20
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := stack.OpenStateStore(opts.StateRoot, true)
			if err != nil {
				return fmt.Errorf("no run history found under %s: %w", opts.StateRoot, err)
			}
			defer func() { _ = store.Close() }()
			entries, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %-7s  %-17s  %d stacks  %s  %s\n",
					e.StartedAt, e.Command, e.Status, e.Stacks, e.RunID, e.Owner)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "(no runs recorded)")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", limit, "Maximum number of runs to list")
	return cmd
}
