// File: cmd/stackr/run_shared.go
// Brief: Shared plumbing for the apply and destroy commands.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/stackr/internal/config"
	"github.com/example/stackr/internal/logging"
	"github.com/example/stackr/internal/stack"
)

type runFlags struct {
	all         bool
	stackName   string
	includeDeps bool
	dryRun      bool
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.all, "all", false, "Run every declared stack")
	cmd.Flags().StringVar(&f.stackName, "stack", "", "Run a single stack by name")
	cmd.Flags().BoolVar(&f.includeDeps, "include-deps", false, "With --stack, also run its transitive dependencies")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Print the planned order without invoking anything")
}

func loadGraph(opts *config.Options) (*stack.Graph, error) {
	f, err := stack.Load(opts.StackFilePath)
	if err != nil {
		return nil, err
	}
	stacks, err := stack.Resolve(f, opts.StackFilePath)
	if err != nil {
		return nil, err
	}
	return stack.BuildGraph(stacks)
}

func buildLogger(level string) (*zap.Logger, error) {
	return logging.New(level)
}

func runStacks(cmd *cobra.Command, opts *config.Options, logLevel, command string, flags runFlags) error {
	if !flags.all && flags.stackName == "" {
		return fmt.Errorf("one of --all or --stack is required")
	}
	if flags.all && flags.stackName != "" {
		return fmt.Errorf("--all and --stack are mutually exclusive")
	}

	graph, err := loadGraph(opts)
	if err != nil {
		return err
	}
	policy, err := opts.RetryPolicy()
	if err != nil {
		return err
	}
	classifier, err := opts.Classifier()
	if err != nil {
		return err
	}
	logger, err := buildLogger(logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var selection []string
	if flags.stackName != "" {
		selection, err = stack.Selection(graph, []string{flags.stackName}, flags.includeDeps)
		if err != nil {
			return err
		}
	}

	var store *stack.StateStore
	if !flags.dryRun {
		store, err = stack.OpenStateStore(opts.StateRoot, false)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
	}

	result, err := stack.Run(cmd.Context(), stack.RunOptions{
		Command:    command,
		Graph:      graph,
		Selection:  selection,
		Policy:     policy,
		Classifier: classifier,
		DryRun:     flags.dryRun,
		Store:      store,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	stack.PrintRunReport(cmd.OutOrStdout(), result)
	if result.Failedish() {
		return &stack.RunFailedError{Result: result}
	}
	return nil
}
