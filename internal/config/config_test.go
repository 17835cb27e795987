package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/example/stackr/internal/stack"
)

func TestBindFlags_Defaults(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.BindFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if o.StackFilePath != "stacks.yaml" || o.MaxAttempts != 3 {
		t.Fatalf("defaults=%+v", o)
	}
	p, err := o.RetryPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if p != stack.DefaultRetryPolicy() {
		t.Fatalf("default policy drifted: %+v", p)
	}
}

func TestRetryPolicy_FromFlags(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.BindFlags(fs)
	args := []string{"--max-attempts", "5", "--retry-delay", "2s", "--retry-backoff", "fixed", "--retry-max-delay", "30s"}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, err := o.RetryPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if p.MaxAttempts != 5 || p.BaseDelay != 2*time.Second || p.Strategy != stack.BackoffFixed || p.MaxDelay != 30*time.Second {
		t.Fatalf("policy=%+v", p)
	}
}

func TestRetryPolicy_RejectsUnknownBackoff(t *testing.T) {
	o := NewOptions()
	o.RetryBackoff = "linear"
	if _, err := o.RetryPolicy(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestClassifier_OperatorPatterns(t *testing.T) {
	o := NewOptions()
	o.RetryPatterns = []string{"EKS_BUSY=cluster is currently being updated"}
	c, err := o.Classifier()
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	class, retryable := c.Classify("Error: Cluster is currently being updated, try later")
	if !retryable || class != "EKS_BUSY" {
		t.Fatalf("got (%q,%v)", class, retryable)
	}
}

func TestClassifier_RejectsMalformedPattern(t *testing.T) {
	o := NewOptions()
	o.RetryPatterns = []string{"not-a-rule"}
	if _, err := o.Classifier(); err == nil {
		t.Fatalf("expected error")
	}
}
