// File: cmd/stackr/destroy.go
// Brief: Destroy command.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/stackr/internal/config"
)

func newDestroyCommand(opts *config.Options, logLevel *string) *cobra.Command {
	var flags runFlags
	var yes bool
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Destroy stacks in reverse dependency order",
		Long: "Destroy tears stacks down in the exact reverse of the apply order: a\n" +
			"stack is only destroyed once everything that depends on it is gone.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flags.dryRun {
				target := "all stacks"
				if flags.stackName != "" {
					target = fmt.Sprintf("stack %q", flags.stackName)
				}
				prompt := fmt.Sprintf("Destroy %s? Type 'yes' to continue:", target)
				if err := confirmAction(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), yes, prompt); err != nil {
					return err
				}
			}
			return runStacks(cmd, opts, *logLevel, "destroy", flags)
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	return cmd
}
