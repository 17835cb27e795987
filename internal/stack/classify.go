// File: internal/stack/classify.go
// Brief: Retryable-error classification over captured command output.

package stack

import (
	"fmt"
	"strings"
)

// Pattern is one classification rule: if Match occurs anywhere in a
// failed command's combined output (case-insensitive), the failure is
// retryable with the given class label.
type Pattern struct {
	Class string `yaml:"class" json:"class"`
	Match string `yaml:"match" json:"match"`
}

// FatalClass is reported when no pattern matches.
const FatalClass = "FATAL"

// DefaultPatterns covers the transient failure modes seen while
// provisioning Terraform/Terragrunt stacks against AWS: remote state
// lock contention, in-flight conflicting control-plane operations,
// request transport errors, waiter timeouts, and API throttling.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Class: "STATE_LOCK", Match: "error acquiring the state lock"},
		{Class: "STATE_LOCK", Match: "state lock"},
		{Class: "IN_PROGRESS", Match: "conflict operation in progress"},
		{Class: "IN_PROGRESS", Match: "resourceinuseexception"},
		{Class: "IN_PROGRESS", Match: "operation in progress"},
		{Class: "TRANSPORT", Match: "requesterror: send request failed"},
		{Class: "TRANSPORT", Match: "connection reset by peer"},
		{Class: "TRANSPORT", Match: "unexpected eof"},
		{Class: "TIMEOUT", Match: "timeout while waiting"},
		{Class: "TIMEOUT", Match: "context deadline exceeded"},
		{Class: "TIMEOUT", Match: "i/o timeout"},
		{Class: "RATE_LIMIT", Match: "throttling"},
		{Class: "RATE_LIMIT", Match: "requestlimitexceeded"},
		{Class: "RATE_LIMIT", Match: "too many requests"},
		{Class: "RATE_LIMIT", Match: "429"},
		{Class: "UNAVAILABLE", Match: "temporarily unavailable"},
		{Class: "UNAVAILABLE", Match: "serviceunavailable"},
		{Class: "UNAVAILABLE", Match: "internal server error"},
	}
}

// Classifier decides whether a failure is worth retrying. Patterns are
// data, not code: operators extend the table via configuration without
// touching the executor. First match wins.
type Classifier struct {
	patterns []Pattern
}

// NewClassifier builds a classifier from operator patterns followed by
// the default table. Operator rules are checked first so they can
// shadow default class labels.
func NewClassifier(extra []Pattern) *Classifier {
	patterns := make([]Pattern, 0, len(extra)+18)
	patterns = append(patterns, extra...)
	patterns = append(patterns, DefaultPatterns()...)
	for i := range patterns {
		patterns[i].Match = strings.ToLower(patterns[i].Match)
	}
	return &Classifier{patterns: patterns}
}

// Classify inspects combined multi-line output and returns the matched
// class and whether the failure is retryable. No match means fatal.
func (c *Classifier) Classify(output string) (class string, retryable bool) {
	lower := strings.ToLower(output)
	for _, p := range c.patterns {
		if p.Match == "" {
			continue
		}
		if strings.Contains(lower, p.Match) {
			return p.Class, true
		}
	}
	return FatalClass, false
}

// ParsePattern parses an operator rule of the form CLASS=substring.
func ParsePattern(raw string) (Pattern, error) {
	class, match, ok := strings.Cut(raw, "=")
	class = strings.TrimSpace(class)
	match = strings.TrimSpace(match)
	if !ok || class == "" || match == "" {
		return Pattern{}, fmt.Errorf("invalid retry pattern %q (expected CLASS=substring)", raw)
	}
	return Pattern{Class: strings.ToUpper(class), Match: match}, nil
}
