package stack

import (
	"errors"
	"strings"
	"testing"
)

func decl(name string, needs ...string) *ResolvedStack {
	return &ResolvedStack{
		Name:       name,
		Dir:        name,
		Needs:      needs,
		ApplyCmd:   []string{"true"},
		DestroyCmd: []string{"true"},
	}
}

func declare(stacks ...*ResolvedStack) []*ResolvedStack {
	for i, s := range stacks {
		s.DeclIndex = i
	}
	return stacks
}

func TestBuildGraph_OrderRespectsDependencies(t *testing.T) {
	g, err := BuildGraph(declare(
		decl("eks-addons", "node-groups"),
		decl("node-groups", "eks-cluster"),
		decl("eks-cluster", "vpc"),
		decl("vpc"),
	))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	order := g.ApplyOrder()
	pos := map[string]int{}
	for i, name := range order {
		pos[name] = i
	}
	for _, s := range g.Stacks() {
		for _, dep := range s.Needs {
			if pos[dep] >= pos[s.Name] {
				t.Fatalf("dependency %s does not precede %s in %v", dep, s.Name, order)
			}
		}
	}
}

func TestBuildGraph_DestroyOrderIsExactReverse(t *testing.T) {
	g, err := BuildGraph(declare(
		decl("vpc"),
		decl("eks", "vpc"),
		decl("nodegroup", "eks"),
		decl("argocd", "eks"),
	))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	apply := g.ApplyOrder()
	destroy := g.DestroyOrder()
	if len(apply) != len(destroy) {
		t.Fatalf("len apply=%d destroy=%d", len(apply), len(destroy))
	}
	for i := range apply {
		if apply[i] != destroy[len(destroy)-1-i] {
			t.Fatalf("destroy is not the reverse of apply: %v vs %v", apply, destroy)
		}
	}
}

func TestBuildGraph_Deterministic(t *testing.T) {
	build := func() []string {
		g, err := BuildGraph(declare(
			decl("vpc"),
			decl("dns"),
			decl("eks", "vpc"),
			decl("argocd", "eks", "dns"),
		))
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		return g.ApplyOrder()
	}
	first := build()
	for i := 0; i < 10; i++ {
		got := build()
		if strings.Join(got, ",") != strings.Join(first, ",") {
			t.Fatalf("order not deterministic: %v vs %v", got, first)
		}
	}
	// Declaration order breaks ties between independent roots.
	if first[0] != "vpc" || first[1] != "dns" {
		t.Fatalf("tie break by declaration order, got %v", first)
	}
}

func TestBuildGraph_CycleDetected(t *testing.T) {
	_, err := BuildGraph(declare(
		decl("a", "b"),
		decl("b", "c"),
		decl("c", "a"),
	))
	if err == nil {
		t.Fatalf("expected cycle error")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
	msg := err.Error()
	for _, name := range []string{"a", "b", "c"} {
		if !strings.Contains(msg, name) {
			t.Fatalf("cycle error %q does not name %s", msg, name)
		}
	}
}

func TestBuildGraph_MissingDependency(t *testing.T) {
	_, err := BuildGraph(declare(decl("app", "db")))
	if err == nil || !strings.Contains(err.Error(), `missing dependency "db"`) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildGraph_SelfDependency(t *testing.T) {
	_, err := BuildGraph(declare(decl("a", "a")))
	if err == nil || !strings.Contains(err.Error(), "depends on itself") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDependentsOf_Transitive(t *testing.T) {
	g, err := BuildGraph(declare(
		decl("vpc"),
		decl("eks", "vpc"),
		decl("nodegroup", "eks"),
		decl("addons", "nodegroup"),
		decl("dns"),
	))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := g.DependentsOf("eks")
	want := []string{"addons", "nodegroup"}
	if len(got) != len(want) {
		t.Fatalf("dependents=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dependents=%v want=%v", got, want)
		}
	}
	if deps := g.DepsOf("addons"); len(deps) != 3 {
		t.Fatalf("deps of addons=%v", deps)
	}
	if deps := g.DependentsOf("dns"); len(deps) != 0 {
		t.Fatalf("dns should have no dependents, got %v", deps)
	}
}
