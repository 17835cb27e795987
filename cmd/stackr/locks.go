// File: cmd/stackr/locks.go
// Brief: Lock-table inspection and release commands.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/stackr/internal/config"
	"github.com/example/stackr/internal/locks"
)

func newLocksCommand(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Inspect and release remote state locks",
	}
	cmd.AddCommand(newLocksListCommand(opts), newLocksReleaseCommand(opts))
	return cmd
}

func newLocksListCommand(opts *config.Options) *cobra.Command {
	maxAgeSpec := "3h"
	format := "table"
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List lock entries, classified by age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			maxAge, err := parseMaxAge(maxAgeSpec)
			if err != nil {
				return err
			}
			client, err := locks.NewDynamoClient(cmd.Context(), opts.Region)
			if err != nil {
				return err
			}
			mgr := locks.NewManager(client, opts.LockTable, maxAge)
			report, err := mgr.List(cmd.Context())
			if err != nil {
				return err
			}
			switch format {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			case "table":
				printLockReport(cmd, report)
				return nil
			default:
				return fmt.Errorf("unknown format %q (expected table or json)", format)
			}
		},
	}
	cmd.Flags().StringVar(&maxAgeSpec, "max-age", maxAgeSpec, "Age beyond which a lock is considered stale (seconds, or a duration like 3h)")
	cmd.Flags().StringVar(&format, "format", format, "Output format: table or json")
	return cmd
}

// parseMaxAge accepts a Go duration ("3h", "45m") or a bare number of
// seconds ("10800").
func parseMaxAge(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("invalid --max-age %q: must not be negative", raw)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid --max-age %q (expected seconds or a duration like 3h)", raw)
	}
	return d, nil
}

func printLockReport(cmd *cobra.Command, report *locks.Report) {
	out := cmd.OutOrStdout()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	printEntry := func(label string, e locks.Entry) {
		age := "age unknown"
		if e.HasCreated {
			age = "age " + e.Age.Round(time.Second).String()
		}
		who := e.Who
		if who == "" {
			who = "-"
		}
		fmt.Fprintf(out, "  %s %s (%s, held by %s, op %s)\n", label, e.LockID, age, who, e.Operation)
	}
	fmt.Fprintf(out, "locks (stale after %s):\n", report.MaxAge)
	for _, e := range report.Stale {
		printEntry(red("stale"), e)
	}
	for _, e := range report.Fresh {
		printEntry("fresh", e)
	}
	for _, e := range report.UnknownAge {
		printEntry(yellow("unknown-age"), e)
	}
	if len(report.Stale)+len(report.Fresh)+len(report.UnknownAge) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
}

func newLocksReleaseCommand(opts *config.Options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "release <lock-id>...",
		Short: "Release lock entries by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := fmt.Sprintf("Release %d lock(s)? Type 'yes' to continue:", len(args))
			if err := confirmAction(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), yes, prompt); err != nil {
				return err
			}
			client, err := locks.NewDynamoClient(cmd.Context(), opts.Region)
			if err != nil {
				return err
			}
			mgr := locks.NewManager(client, opts.LockTable, 0)
			var failed int
			for _, id := range args {
				err := mgr.Release(cmd.Context(), id)
				switch {
				case err == nil:
					fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", id)
				case errors.Is(err, locks.ErrAlreadyReleased):
					// Expected race under concurrent operators.
					fmt.Fprintf(cmd.OutOrStdout(), "skipped %s: already released\n", id)
				default:
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "failed %s: %v\n", id, err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d lock(s) could not be released", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	return cmd
}
