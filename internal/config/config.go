// File: internal/config/config.go
// Brief: Internal config package implementation for 'config'.

// Package config defines the flag plumbing and runtime options shared
// by stackr commands, translating Cobra/Viper flag values into strongly
// typed retry, lock, and declaration settings consumed by the runner.
package config

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/example/stackr/internal/stack"
)

// Options holds all CLI configuration used by the orchestrator.
type Options struct {
	StackFilePath string
	StateRoot     string

	MaxAttempts   int
	RetryDelay    time.Duration
	RetryBackoff  string
	RetryMaxDelay time.Duration
	RetryPatterns []string

	LockTable string
	Region    string
}

func NewOptions() *Options {
	p := stack.DefaultRetryPolicy()
	return &Options{
		StackFilePath: "stacks.yaml",
		StateRoot:     ".",
		MaxAttempts:   p.MaxAttempts,
		RetryDelay:    p.BaseDelay,
		RetryBackoff:  string(p.Strategy),
		RetryMaxDelay: p.MaxDelay,
		LockTable:     "terraform-locks",
	}
}

// BindFlags registers the shared flags on the given flag set and
// returns their names so callers can hide or group them in help text.
func (o *Options) BindFlags(fs *pflag.FlagSet) []string {
	fs.StringVarP(&o.StackFilePath, "file", "f", o.StackFilePath, "Path to the stack declaration file")
	fs.StringVar(&o.StateRoot, "state-root", o.StateRoot, "Directory holding the local run-history database")
	fs.IntVar(&o.MaxAttempts, "max-attempts", o.MaxAttempts, "Maximum attempts per stack for retryable failures")
	fs.DurationVar(&o.RetryDelay, "retry-delay", o.RetryDelay, "Base delay before a retry")
	fs.StringVar(&o.RetryBackoff, "retry-backoff", o.RetryBackoff, "Backoff strategy: fixed or exponential")
	fs.DurationVar(&o.RetryMaxDelay, "retry-max-delay", o.RetryMaxDelay, "Upper bound on a single backoff sleep")
	fs.StringSliceVar(&o.RetryPatterns, "retry-pattern", o.RetryPatterns, "Extra retryable-output rules as CLASS=substring (repeatable)")
	fs.StringVar(&o.LockTable, "lock-table", o.LockTable, "DynamoDB table holding state locks")
	fs.StringVar(&o.Region, "region", o.Region, "AWS region for the lock table (defaults to ambient config)")
	return []string{
		"file", "state-root", "max-attempts", "retry-delay", "retry-backoff",
		"retry-max-delay", "retry-pattern", "lock-table", "region",
	}
}

// RetryPolicy materializes the flag values into a policy.
func (o *Options) RetryPolicy() (stack.RetryPolicy, error) {
	p := stack.RetryPolicy{
		MaxAttempts: o.MaxAttempts,
		BaseDelay:   o.RetryDelay,
		Strategy:    stack.BackoffStrategy(o.RetryBackoff),
		MaxDelay:    o.RetryMaxDelay,
	}
	if err := p.Validate(); err != nil {
		return stack.RetryPolicy{}, err
	}
	return p, nil
}

// Classifier builds the error classifier with any operator-supplied
// pattern rules checked ahead of the defaults.
func (o *Options) Classifier() (*stack.Classifier, error) {
	var extra []stack.Pattern
	for _, raw := range o.RetryPatterns {
		p, err := stack.ParsePattern(raw)
		if err != nil {
			return nil, err
		}
		extra = append(extra, p)
	}
	return stack.NewClassifier(extra), nil
}
