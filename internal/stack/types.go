// File: internal/stack/types.go
// Brief: Stack declaration and lifecycle types.

package stack

type APIVersionKind struct {
	APIVersion string `yaml:"apiVersion,omitempty" json:"apiVersion,omitempty"`
	Kind       string `yaml:"kind,omitempty" json:"kind,omitempty"`
}

// StackFile is the on-disk declaration format (stacks.yaml).
type StackFile struct {
	APIVersionKind `yaml:",inline" json:",inline"`

	Name   string      `yaml:"name,omitempty" json:"name,omitempty"`
	Stacks []StackSpec `yaml:"stacks,omitempty" json:"stacks,omitempty"`
}

// StackSpec declares one provisionable unit. Apply and Destroy are
// opaque invocation specs, parsed shell-style into argv at resolve
// time; the runner never interprets them beyond that.
type StackSpec struct {
	Name    string   `yaml:"name,omitempty" json:"name,omitempty"`
	Dir     string   `yaml:"dir,omitempty" json:"dir,omitempty"`
	Needs   []string `yaml:"needs,omitempty" json:"needs,omitempty"`
	Apply   string   `yaml:"apply,omitempty" json:"apply,omitempty"`
	Destroy string   `yaml:"destroy,omitempty" json:"destroy,omitempty"`
}

// ResolvedStack is a validated declaration with its invocation specs
// split into argv form. DeclIndex preserves file order so planning is
// deterministic.
type ResolvedStack struct {
	Name       string   `json:"name"`
	Dir        string   `json:"dir"`
	Needs      []string `json:"needs,omitempty"`
	ApplyCmd   []string `json:"applyCmd"`
	DestroyCmd []string `json:"destroyCmd"`
	DeclIndex  int      `json:"declIndex"`
}

// Command returns the argv for the given run command.
func (s *ResolvedStack) Command(command string) []string {
	if command == "destroy" {
		return s.DestroyCmd
	}
	return s.ApplyCmd
}

// Status is the lifecycle state of one stack within a run.
type Status string

const (
	StatusUnapplied  Status = "unapplied"
	StatusApplying   Status = "applying"
	StatusApplied    Status = "applied"
	StatusFailed     Status = "failed"
	StatusDestroying Status = "destroying"
	StatusDestroyed  Status = "destroyed"
	StatusSkipped    Status = "skipped"
)
