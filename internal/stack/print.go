// File: internal/stack/print.go
// Brief: Run report rendering.

package stack

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

// PrintRunReport writes the aggregate outcome of a run: succeeded,
// failed, and skipped stacks, with the last captured output of each
// failed stack attached for diagnosis.
func PrintRunReport(out io.Writer, result *RunResult) {
	if result == nil {
		return
	}
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(out, "%s run %s: %s (%s)\n", result.Command, result.RunID, result.Status, result.Duration.Round(10*time.Millisecond))
	for _, name := range result.Succeeded {
		fmt.Fprintf(out, "  %s %s\n", green("ok"), name)
	}
	for _, name := range result.Failed {
		fmt.Fprintf(out, "  %s %s\n", red("failed"), name)
	}
	for _, name := range result.Skipped {
		fmt.Fprintf(out, "  %s %s (dependency failed)\n", yellow("skipped"), name)
	}
	for _, name := range result.Failed {
		output := strings.TrimSpace(result.LastError[name])
		if output == "" {
			continue
		}
		fmt.Fprintf(out, "\n--- last output of %s ---\n%s\n", name, tail(output, 40))
	}
}

// tail returns at most n trailing lines of s.
func tail(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
