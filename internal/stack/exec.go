// File: internal/stack/exec.go
// Brief: Bounded-retry execution of external provisioning commands.

package stack

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Attempt records one invocation of a stack's provisioning command.
// Immutable once recorded.
type Attempt struct {
	Number    int           `json:"number"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	ExitCode  int           `json:"exitCode"`
	Output    string        `json:"output"`
	Class     string        `json:"class,omitempty"`
	Retryable bool          `json:"retryable"`
}

// Result is the outcome of running one command under retry policy.
type Result struct {
	Output   string    `json:"output"`
	Attempts []Attempt `json:"attempts"`
}

// LastClass returns the classification of the final attempt.
func (r Result) LastClass() string {
	if len(r.Attempts) == 0 {
		return ""
	}
	return r.Attempts[len(r.Attempts)-1].Class
}

// CommandRunner invokes one external command and captures its combined
// stdout/stderr and exit status. The process's own failure to start is
// folded into the output so the classifier sees it too.
type CommandRunner interface {
	Run(ctx context.Context, dir string, argv []string) (output string, exitCode int, err error)
}

// ExecRunner runs commands via os/exec with combined output capture.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, argv []string) (string, int, error) {
	if len(argv) == 0 {
		return "", -1, fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err == nil {
		return string(out), 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(out), exitErr.ExitCode(), nil
	}
	// Start failure: no exit status, surface the error text as output.
	return string(out) + err.Error(), -1, nil
}

// Executor wraps a CommandRunner with classification-driven retries.
// It is a pure retry wrapper: the command is never mutated between
// attempts.
type Executor struct {
	Runner     CommandRunner
	Classifier *Classifier
	Policy     RetryPolicy

	// Sleep is the backoff wait; overridable in tests. The default is
	// context-aware so SIGINT aborts a pending retry.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(runner CommandRunner, classifier *Classifier, policy RetryPolicy) *Executor {
	return &Executor{Runner: runner, Classifier: classifier, Policy: policy}
}

// Run invokes the command until it succeeds, fails fatally, or exhausts
// the attempt budget. Every attempt is recorded in the result, success
// or failure. A non-nil error means the command ultimately failed.
func (e *Executor) Run(ctx context.Context, dir string, argv []string) (Result, error) {
	policy := e.Policy.normalized()
	classifier := e.Classifier
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	sleep := e.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var res Result
	for attempt := 1; ; attempt++ {
		start := time.Now()
		output, exitCode, err := e.Runner.Run(ctx, dir, argv)
		if err != nil {
			return res, err
		}
		rec := Attempt{
			Number:    attempt,
			StartedAt: start.UTC(),
			Duration:  time.Since(start),
			ExitCode:  exitCode,
			Output:    output,
		}
		res.Output = output
		if exitCode == 0 {
			res.Attempts = append(res.Attempts, rec)
			return res, nil
		}
		rec.Class, rec.Retryable = classifier.Classify(output)
		res.Attempts = append(res.Attempts, rec)
		if !rec.Retryable {
			return res, fmt.Errorf("fatal failure (exit %d, class %s) after %d attempt(s)", exitCode, rec.Class, attempt)
		}
		if attempt >= policy.MaxAttempts {
			return res, fmt.Errorf("retries exhausted (exit %d, class %s) after %d attempt(s)", exitCode, rec.Class, attempt)
		}
		if err := sleep(ctx, policy.Backoff(attempt)); err != nil {
			return res, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
