package graph

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shenzi-pack/shenzi/internal/objfile"
)

func TestKnownLibsBinaryOnly(t *testing.T) {
	g := New()
	g.insert(&Node{Path: "/dist/reals/a", Role: Role{Kind: RoleBinary}})
	g.insert(&Node{Path: "/dist/site-packages/data.txt", Role: Role{Kind: RoleSitePackagesPlain}})

	got := g.KnownLibs()
	want := map[string]string{"a": "/dist/reals/a"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("KnownLibs() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetNodeDependenciesOmitsAbsent(t *testing.T) {
	g := New()
	root := &Node{Path: "/bin/app", Role: Role{Kind: RoleExecutable}}
	g.insert(root)
	g.edges[root.Path] = []string{"/lib/libpresent.so", "/lib/libabsent.so"}
	g.insert(&Node{Path: "/lib/libpresent.so", Role: Role{Kind: RoleBinary}})

	deps := g.GetNodeDependencies(root)
	if len(deps) != 1 || deps[0].Path != "/lib/libpresent.so" {
		t.Fatalf("GetNodeDependencies() = %v, want only /lib/libpresent.so", deps)
	}
}

func TestIterNodesPreservesInsertionOrder(t *testing.T) {
	g := New()
	paths := []string{"/bin/app", "/lib/libb.so", "/lib/liba.so"}
	for _, p := range paths {
		g.insert(&Node{Path: p})
	}
	var got []string
	for _, n := range g.IterNodes() {
		got = append(got, n.Path)
	}
	if diff := cmp.Diff(paths, got); diff != "" {
		t.Errorf("IterNodes() order mismatch (-want +got):\n%s", diff)
	}
}

func TestAddTreeCycleTerminates(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")

	// a depends on b and b depends on a. b is pre-seeded into the graph
	// so AddTree's own already-present check (§4.4 "terminate on
	// already-added paths") is what stops the walk, not any property
	// of the dependency analysis itself.
	nodeA := &Node{
		Path:     a,
		Role:     Role{Kind: RoleExecutable},
		Analysis: &objfile.Analysis{Needed: []objfile.NeededEntry{{Name: "b", Resolved: b}}},
	}
	nodeB := &Node{
		Path:     b,
		Role:     Role{Kind: RoleBinary},
		Analysis: &objfile.Analysis{Needed: []objfile.NeededEntry{{Name: "a", Resolved: a}}},
	}

	g := New()
	g.insert(nodeB)
	f := NewFactory(&FactoryContext{})

	done := make(chan error, 1)
	go func() { done <- g.AddTree(nodeA, f, nil, true, nil) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("AddTree() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("AddTree() did not terminate on a dependency cycle")
	}

	if _, ok := g.GetNodeByPath(a); !ok {
		t.Fatalf("expected %s to remain in the graph", a)
	}
	if len(g.IterNodes()) != 2 {
		t.Fatalf("IterNodes() = %d nodes, want exactly a and b", len(g.IterNodes()))
	}
}

func TestFactorySkipPrefixNoError(t *testing.T) {
	dir := t.TempDir()
	skipped := filepath.Join(dir, "skip-me", "lib.so")
	if err := os.MkdirAll(filepath.Dir(skipped), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFakeELF(t, skipped)

	f := NewFactory(&FactoryContext{SkipPrefixes: []string{filepath.Join(dir, "skip-me")}})
	n, err := f.NewDependencyNode(skipped, &objfile.Context{})
	if err != nil {
		t.Fatalf("NewDependencyNode() error = %v, want nil", err)
	}
	if n != nil {
		t.Fatalf("NewDependencyNode() = %v, want nil (skip policy)", n)
	}
}

func TestFactoryMissingPathIsError(t *testing.T) {
	f := NewFactory(&FactoryContext{})
	_, err := f.NewExecutable(filepath.Join(t.TempDir(), "does-not-exist"), &objfile.Context{})
	if err == nil {
		t.Fatal("NewExecutable() on a missing path: want error, got nil")
	}
}

func writeFakeELF(t *testing.T, path string) {
	t.Helper()
	// Minimal content; these tests exercise graph bookkeeping and
	// factory policy, not objfile parsing, so the bytes are never
	// sniffed as ELF by the code paths under test here.
	if err := os.WriteFile(path, []byte("not actually elf"), 0o644); err != nil {
		t.Fatal(err)
	}
}
