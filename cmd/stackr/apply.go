// File: cmd/stackr/apply.go
// Brief: Apply command.

package main

import (
	"github.com/spf13/cobra"

	"github.com/example/stackr/internal/config"
)

func newApplyCommand(opts *config.Options, logLevel *string) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply stacks in dependency order",
		Long: "Apply provisions stacks strictly sequentially: every declared dependency\n" +
			"must reach applied before its dependents start. A failed stack marks all\n" +
			"of its transitive dependents skipped without running them.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStacks(cmd, opts, *logLevel, "apply", flags)
		},
	}
	flags.bind(cmd)
	return cmd
}
