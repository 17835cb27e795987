// File: cmd/stackr/status.go
// Brief: Per-run status reporting from the local state store.

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/stackr/internal/config"
	"github.com/example/stackr/internal/stack"
)

func newStatusCommand(opts *config.Options) *cobra.Command {
	var runID string
	format := "table"
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show one run's per-stack outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := stack.OpenStateStore(opts.StateRoot, true)
			if err != nil {
				return fmt.Errorf("no run history found under %s: %w", opts.StateRoot, err)
			}
			defer func() { _ = store.Close() }()

			id := runID
			if id == "" {
				id, err = store.MostRecentRunID(cmd.Context())
				if err != nil {
					return err
				}
			}
			rec, err := store.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			case "table":
				fmt.Fprintf(out, "run %s (%s): %s, started %s by %s\n",
					rec.RunID, rec.Command, rec.Status, rec.StartedAt, rec.Owner)
				for _, sr := range rec.StacksD {
					line := fmt.Sprintf("  %-12s %s", sr.Status, sr.Name)
					if sr.Attempts > 1 {
						line += fmt.Sprintf(" (%d attempts)", sr.Attempts)
					}
					fmt.Fprintln(out, line)
					if sr.Error != "" {
						fmt.Fprintf(out, "      %s\n", sr.Error)
					}
					if sr.Status != string(stack.StatusFailed) {
						continue
					}
					attempts, err := store.Attempts(cmd.Context(), rec.RunID, sr.Name)
					if err != nil {
						return err
					}
					for _, a := range attempts {
						fmt.Fprintf(out, "      attempt %d: exit %d, %s, %s\n",
							a.Number, a.ExitCode, a.Class, a.Duration.Round(time.Millisecond))
					}
				}
				return nil
			default:
				return fmt.Errorf("unknown format %q (expected table or json)", format)
			}
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id to show (defaults to the most recent)")
	cmd.Flags().StringVar(&format, "format", format, "Output format: table or json")
	return cmd
}
