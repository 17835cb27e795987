// File: internal/stack/discovery.go
// Brief: Declaration file loading and resolution.

package stack

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"
)

const defaultApplySpec = "terragrunt apply -auto-approve --terragrunt-non-interactive"
const defaultDestroySpec = "terragrunt destroy -auto-approve --terragrunt-non-interactive"

// Load reads and parses a stacks.yaml declaration file.
func Load(path string) (*StackFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read declarations: %w", err)
	}
	var f StackFile
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, configErrorf("parse %s: %v", path, err)
	}
	return &f, nil
}

// Resolve validates declarations and splits invocation specs into argv.
// Stack dirs are resolved relative to the declaration file's directory.
func Resolve(f *StackFile, declPath string) ([]*ResolvedStack, error) {
	if f == nil || len(f.Stacks) == 0 {
		return nil, configErrorf("no stacks declared")
	}
	baseDir := filepath.Dir(declPath)
	seen := map[string]struct{}{}
	out := make([]*ResolvedStack, 0, len(f.Stacks))
	for i, spec := range f.Stacks {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, configErrorf("stack #%d has no name", i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, configErrorf("duplicate stack name %q", name)
		}
		seen[name] = struct{}{}

		dir := strings.TrimSpace(spec.Dir)
		if dir == "" {
			dir = name
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(baseDir, dir)
		}

		applyCmd, err := parseInvocation(spec.Apply, defaultApplySpec)
		if err != nil {
			return nil, configErrorf("stack %q apply spec: %v", name, err)
		}
		destroyCmd, err := parseInvocation(spec.Destroy, defaultDestroySpec)
		if err != nil {
			return nil, configErrorf("stack %q destroy spec: %v", name, err)
		}

		out = append(out, &ResolvedStack{
			Name:       name,
			Dir:        dir,
			Needs:      append([]string(nil), spec.Needs...),
			ApplyCmd:   applyCmd,
			DestroyCmd: destroyCmd,
			DeclIndex:  i,
		})
	}
	return out, nil
}

func parseInvocation(spec, fallback string) ([]string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = fallback
	}
	argv, err := shellwords.Parse(spec)
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return argv, nil
}
