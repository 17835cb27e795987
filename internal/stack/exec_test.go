package stack

import (
	"context"
	"strings"
	"testing"
	"time"
)

// scriptedRunner plays back canned (output, exitCode) results and
// records every invocation.
type scriptedRunner struct {
	results []scriptedResult
	calls   [][]string
}

type scriptedResult struct {
	output   string
	exitCode int
}

func (r *scriptedRunner) Run(ctx context.Context, dir string, argv []string) (string, int, error) {
	r.calls = append(r.calls, append([]string(nil), argv...))
	i := len(r.calls) - 1
	if i >= len(r.results) {
		i = len(r.results) - 1
	}
	res := r.results[i]
	return res.output, res.exitCode, nil
}

func noSleep(t *testing.T) func(context.Context, time.Duration) error {
	t.Helper()
	return func(ctx context.Context, d time.Duration) error { return ctx.Err() }
}

func TestExecutor_RetryableThenSuccess(t *testing.T) {
	runner := &scriptedRunner{results: []scriptedResult{
		{"Error acquiring the state lock", 1},
		{"Throttling: Rate exceeded", 1},
		{"Apply complete! Resources: 12 added.", 0},
	}}
	e := NewExecutor(runner, NewClassifier(nil), RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})
	e.Sleep = noSleep(t)

	res, err := e.Run(context.Background(), ".", []string{"terragrunt", "apply"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Attempts) != 3 {
		t.Fatalf("attempts=%d want=3", len(res.Attempts))
	}
	if res.Attempts[0].Class != "STATE_LOCK" || !res.Attempts[0].Retryable {
		t.Fatalf("attempt1=%+v", res.Attempts[0])
	}
	if res.Attempts[1].Class != "RATE_LIMIT" {
		t.Fatalf("attempt2=%+v", res.Attempts[1])
	}
	if res.Attempts[2].ExitCode != 0 {
		t.Fatalf("attempt3=%+v", res.Attempts[2])
	}
	if !strings.Contains(res.Output, "Apply complete") {
		t.Fatalf("output=%q", res.Output)
	}
}

func TestExecutor_FatalFailsImmediately(t *testing.T) {
	runner := &scriptedRunner{results: []scriptedResult{
		{"InvalidParameterException: bad subnet", 1},
	}}
	e := NewExecutor(runner, NewClassifier(nil), RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond})
	e.Sleep = noSleep(t)

	res, err := e.Run(context.Background(), ".", []string{"terragrunt", "apply"})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if len(res.Attempts) != 1 {
		t.Fatalf("attempts=%d want=1 (fatal must not retry)", len(res.Attempts))
	}
	if got := res.LastClass(); got != FatalClass {
		t.Fatalf("class=%q", got)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("calls=%d", len(runner.calls))
	}
}

func TestExecutor_RetriesExhausted(t *testing.T) {
	runner := &scriptedRunner{results: []scriptedResult{
		{"timeout while waiting for state", 1},
	}}
	e := NewExecutor(runner, NewClassifier(nil), RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})
	e.Sleep = noSleep(t)

	res, err := e.Run(context.Background(), ".", []string{"terragrunt", "apply"})
	if err == nil || !strings.Contains(err.Error(), "retries exhausted") {
		t.Fatalf("err=%v", err)
	}
	if len(res.Attempts) != 3 {
		t.Fatalf("attempts=%d want=3", len(res.Attempts))
	}
}

func TestExecutor_CommandNeverMutated(t *testing.T) {
	runner := &scriptedRunner{results: []scriptedResult{
		{"state lock", 1},
		{"state lock", 1},
		{"done", 0},
	}}
	e := NewExecutor(runner, NewClassifier(nil), RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})
	e.Sleep = noSleep(t)

	argv := []string{"terragrunt", "apply", "-auto-approve"}
	if _, err := e.Run(context.Background(), ".", argv); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, call := range runner.calls {
		if strings.Join(call, " ") != strings.Join(argv, " ") {
			t.Fatalf("call %d mutated: %v", i+1, call)
		}
	}
}

func TestExecutor_BackoffSleepCancellable(t *testing.T) {
	runner := &scriptedRunner{results: []scriptedResult{
		{"state lock", 1},
	}}
	e := NewExecutor(runner, NewClassifier(nil), RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Run(ctx, ".", []string{"terragrunt", "apply"}); err != context.Canceled {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestExecRunner_CapturesCombinedOutputAndExit(t *testing.T) {
	r := ExecRunner{}
	out, code, err := r.Run(context.Background(), t.TempDir(),
		[]string{"sh", "-c", "echo to-stdout; echo to-stderr >&2; exit 3"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 3 {
		t.Fatalf("exit=%d", code)
	}
	if !strings.Contains(out, "to-stdout") || !strings.Contains(out, "to-stderr") {
		t.Fatalf("output=%q", out)
	}
}

func TestExecRunner_StartFailureFoldedIntoOutput(t *testing.T) {
	r := ExecRunner{}
	out, code, err := r.Run(context.Background(), t.TempDir(), []string{"definitely-not-a-command-xyz"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != -1 || out == "" {
		t.Fatalf("code=%d out=%q", code, out)
	}
}
