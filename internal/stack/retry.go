// File: internal/stack/retry.go
// Brief: Retry policy and backoff math.

package stack

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy bounds how often a stack's provisioning command is
// re-invoked after a retryable failure. Immutable per run.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Strategy    BackoffStrategy
	MaxDelay    time.Duration
}

// DefaultRetryPolicy mirrors the operational defaults: three attempts,
// exponential backoff from 10s capped at 2m.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Second,
		Strategy:    BackoffExponential,
		MaxDelay:    2 * time.Minute,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = p.BaseDelay
	}
	if p.Strategy == "" {
		p.Strategy = BackoffExponential
	}
	return p
}

// Validate rejects unknown strategies before a run starts.
func (p RetryPolicy) Validate() error {
	switch BackoffStrategy(strings.ToLower(string(p.Strategy))) {
	case BackoffFixed, BackoffExponential, "":
		return nil
	default:
		return fmt.Errorf("unknown backoff strategy %q (expected fixed or exponential)", p.Strategy)
	}
}

// Backoff returns the sleep before retrying after the given 1-based
// attempt: the base delay for fixed, base*2^(attempt-1) for
// exponential, capped at MaxDelay, with +/-20% jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	d := p.BaseDelay
	if p.Strategy == BackoffExponential && attempt > 1 {
		shift := attempt - 1
		if shift > 16 {
			shift = 16
		}
		d = p.BaseDelay * time.Duration(1<<uint(shift))
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return jitter(d)
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	f := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(d) * f)
}
