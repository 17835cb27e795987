// File: internal/stack/run.go
// Brief: Sequential apply/destroy runner with partial-failure containment.

package stack

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RunOptions configures one orchestration run.
type RunOptions struct {
	Command string // apply|destroy
	Graph   *Graph

	// Selection restricts the run to the named stacks. Empty means all.
	// The caller is responsible for dependency closure (see Selection).
	Selection []string

	Policy     RetryPolicy
	Classifier *Classifier
	Runner     CommandRunner

	DryRun bool
	Store  *StateStore
	Logger *zap.Logger
	RunID  string
}

// RunResult is the aggregate outcome of one run. Failures are contained
// at stack granularity: the runner itself returns RunResult for
// provisioning failures and reserves error returns for configuration
// problems.
type RunResult struct {
	RunID     string            `json:"runId"`
	Command   string            `json:"command"`
	Status    string            `json:"status"` // completed|partially-failed|dry-run
	Succeeded []string          `json:"succeeded,omitempty"`
	Failed    []string          `json:"failed,omitempty"`
	Skipped   []string          `json:"skipped,omitempty"`
	LastError map[string]string `json:"lastError,omitempty"` // failed stack -> last captured output
	StartedAt time.Time         `json:"startedAt"`
	Duration  time.Duration     `json:"duration"`
}

// Failedish reports whether the run should map to a nonzero exit.
func (r *RunResult) Failedish() bool {
	return len(r.Failed) > 0 || len(r.Skipped) > 0
}

// Run executes the stacks of opts.Graph strictly sequentially in
// dependency order (reverse order for destroy). A failed stack poisons
// all of its transitive dependents: they are marked skipped without
// invoking the provisioning command. Ordering is a hard contract: the
// runner never retries across stack boundaries and never reorders to
// work around a failure.
func Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("graph is required")
	}
	command := strings.ToLower(strings.TrimSpace(opts.Command))
	if command != "apply" && command != "destroy" {
		return nil, fmt.Errorf("unknown command %q", opts.Command)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	order := opts.Graph.ApplyOrder()
	if command == "destroy" {
		order = opts.Graph.DestroyOrder()
	}
	selected, err := selectionSet(opts.Graph, opts.Selection)
	if err != nil {
		return nil, err
	}
	if selected != nil {
		filtered := order[:0:0]
		for _, name := range order {
			if _, ok := selected[name]; ok {
				filtered = append(filtered, name)
			}
		}
		order = filtered
	}

	runID := opts.RunID
	if runID == "" {
		runID = newRunID(command)
	}
	result := &RunResult{
		RunID:     runID,
		Command:   command,
		StartedAt: time.Now().UTC(),
		LastError: map[string]string{},
	}

	if opts.DryRun {
		result.Status = "dry-run"
		result.Succeeded = append(result.Succeeded, order...)
		return result, nil
	}

	if opts.Store != nil {
		if err := opts.Store.CreateRun(ctx, runID, command, runOwner(), order); err != nil {
			return nil, err
		}
	}

	exec := NewExecutor(runner, opts.Classifier, opts.Policy)
	status := map[string]Status{}
	for _, name := range order {
		st := opts.Graph.Stack(name)
		if blocked, by := blockedBy(opts.Graph, command, name, status); blocked {
			status[name] = StatusSkipped
			result.Skipped = append(result.Skipped, name)
			log.Warn("skipping stack: blocked by earlier failure",
				zap.String("stack", name), zap.String("blockedBy", by))
			recordStatus(ctx, opts.Store, runID, name, StatusSkipped, 0, "blocked by "+by)
			continue
		}

		running := StatusApplying
		success := StatusApplied
		if command == "destroy" {
			running = StatusDestroying
			success = StatusDestroyed
		}
		status[name] = running
		recordStatus(ctx, opts.Store, runID, name, running, 0, "")
		log.Info("running stack", zap.String("stack", name), zap.String("command", command), zap.Strings("argv", st.Command(command)))

		res, runErr := exec.Run(ctx, st.Dir, st.Command(command))
		if opts.Store != nil {
			for _, a := range res.Attempts {
				if err := opts.Store.AppendAttempt(ctx, runID, name, a); err != nil {
					log.Warn("record attempt", zap.String("stack", name), zap.Error(err))
				}
			}
		}
		if runErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			status[name] = StatusFailed
			result.Failed = append(result.Failed, name)
			result.LastError[name] = res.Output
			log.Error("stack failed",
				zap.String("stack", name),
				zap.Int("attempts", len(res.Attempts)),
				zap.String("class", res.LastClass()))
			recordStatus(ctx, opts.Store, runID, name, StatusFailed, len(res.Attempts), runErr.Error())
			continue
		}
		status[name] = success
		result.Succeeded = append(result.Succeeded, name)
		log.Info("stack succeeded", zap.String("stack", name), zap.Int("attempts", len(res.Attempts)))
		recordStatus(ctx, opts.Store, runID, name, success, len(res.Attempts), "")
	}

	result.Duration = time.Since(result.StartedAt)
	if result.Failedish() {
		result.Status = "partially-failed"
	} else {
		result.Status = "completed"
	}
	if opts.Store != nil {
		if err := opts.Store.FinishRun(ctx, runID, result); err != nil {
			log.Warn("finish run", zap.Error(err))
		}
	}
	return result, nil
}

// blockedBy reports whether name may not run yet. For apply a stack is
// blocked when any declared dependency failed or was skipped; for
// destroy the rule inverts: a stack may not be destroyed while a stack
// that depends on it has not been destroyed.
func blockedBy(g *Graph, command, name string, status map[string]Status) (bool, string) {
	gates := g.Stack(name).Needs
	if command == "destroy" {
		gates = g.DirectDependentsOf(name)
	}
	for _, gate := range gates {
		switch status[gate] {
		case StatusFailed, StatusSkipped:
			return true, gate
		}
	}
	return false, ""
}

// Selection expands the requested stack names to include transitive
// dependencies when includeDeps is set, and validates that every
// dependency of a selected stack is itself selected.
func Selection(g *Graph, names []string, includeDeps bool) ([]string, error) {
	set := map[string]struct{}{}
	for _, name := range names {
		if g.Stack(name) == nil {
			return nil, configErrorf("unknown stack %q", name)
		}
		set[name] = struct{}{}
		if includeDeps {
			for _, dep := range g.DepsOf(name) {
				set[dep] = struct{}{}
			}
		}
	}
	var out []string
	for _, name := range g.ApplyOrder() {
		if _, ok := set[name]; ok {
			out = append(out, name)
		}
	}
	for _, name := range out {
		for _, dep := range g.Stack(name).Needs {
			if _, ok := set[dep]; !ok {
				return nil, configErrorf("stack %q needs %q, which is outside the selection (use --include-deps)", name, dep)
			}
		}
	}
	return out, nil
}

func selectionSet(g *Graph, names []string) (map[string]struct{}, error) {
	if len(names) == 0 {
		return nil, nil
	}
	set := map[string]struct{}{}
	for _, name := range names {
		if g.Stack(name) == nil {
			return nil, configErrorf("unknown stack %q", name)
		}
		set[name] = struct{}{}
	}
	return set, nil
}

func recordStatus(ctx context.Context, store *StateStore, runID, name string, status Status, attempts int, errMsg string) {
	if store == nil {
		return
	}
	_ = store.SetStackStatus(ctx, runID, name, status, attempts, errMsg)
}

func newRunID(command string) string {
	return fmt.Sprintf("%s-%s", command, time.Now().UTC().Format("20060102-150405"))
}

// runOwner identifies who started a run, best effort.
func runOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	owner := fmt.Sprintf("%s:%d", host, os.Getpid())
	if u, err := user.Current(); err == nil && strings.TrimSpace(u.Username) != "" {
		owner = strings.TrimSpace(u.Username) + "@" + owner
	}
	return owner
}
