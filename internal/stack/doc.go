// File: internal/stack/doc.go
// Brief: Stack orchestration core: declarations, DAG, retry, runner.

// Package stack implements the stackr orchestration core: declaration
// loading, dependency graph planning, retryable-error classification,
// bounded-retry command execution, and the sequential apply/destroy
// runner with sqlite-backed run history.
package stack
