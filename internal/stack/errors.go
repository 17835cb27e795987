// File: internal/stack/errors.go
// Brief: Error types shared across planning and the runner.

package stack

import "fmt"

// ConfigError marks declaration problems (dependency cycles, unknown
// references, malformed invocation specs) detected before any stack is
// attempted. The CLI maps it to exit code 2.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...any) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// RunFailedError reports that a run completed with at least one failed
// or skipped stack. The CLI maps it to exit code 1.
type RunFailedError struct {
	Result *RunResult
}

func (e *RunFailedError) Error() string {
	if e.Result == nil {
		return "run failed"
	}
	return fmt.Sprintf("%s run %s: %d failed, %d skipped",
		e.Result.Command, e.Result.RunID, len(e.Result.Failed), len(e.Result.Skipped))
}
