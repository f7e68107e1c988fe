package gather

import (
	"fmt"
	"testing"

	"golang.org/x/xerrors"

	"github.com/shenzi-pack/shenzi/internal/graph"
)

// TestRunFixpointConverges exercises the real runFixpoint loop with a
// synthetic pair of items where one only succeeds once the other has
// published a library into the graph's known_libs, mirroring two
// libraries that mutually need each other (§8 testable property 5: the
// failure count must strictly decrease each pass).
func TestRunFixpointConverges(t *testing.T) {
	gt := &Gatherer{g: graph.New(), factory: graph.NewFactory(&graph.FactoryContext{})}

	items := []retryItem{
		{
			path: "/needs/liba",
			add: func(knownLibs map[string]string, replace bool) error {
				if _, ok := knownLibs["liba.so"]; !ok {
					return fmt.Errorf("liba.so not yet known")
				}
				return nil
			},
		},
		{
			path: "/publishes/liba.so",
			add: func(knownLibs map[string]string, replace bool) error {
				node := &graph.Node{
					Path: "/publishes/liba.so",
					Role: graph.Role{Kind: graph.RoleBinary, SHA: "deadbeef"},
				}
				return gt.g.AddTree(node, gt.factory, knownLibs, replace, nil)
			},
		},
	}

	if err := gt.runFixpoint(items); err != nil {
		t.Fatalf("runFixpoint did not converge: %v", err)
	}
	if _, ok := gt.g.KnownLibs()["liba.so"]; !ok {
		t.Fatal("expected liba.so to have been inserted into the graph")
	}
}

// TestRunFixpointStalls confirms a pair of items that never succeed
// regardless of known_libs content terminates with ErrDepResolutionStalled
// rather than looping forever.
func TestRunFixpointStalls(t *testing.T) {
	gt := &Gatherer{g: graph.New()}
	alwaysFail := func(knownLibs map[string]string, replace bool) error {
		return fmt.Errorf("never resolves")
	}
	items := []retryItem{
		{path: "/x", add: alwaysFail},
		{path: "/y", add: alwaysFail},
	}

	err := gt.runFixpoint(items)
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if !xerrors.Is(err, ErrDepResolutionStalled) {
		t.Errorf("runFixpoint error = %v, want wrapping ErrDepResolutionStalled", err)
	}
}

// TestRunFixpointEmptyItems confirms a no-op call succeeds trivially.
func TestRunFixpointEmptyItems(t *testing.T) {
	gt := &Gatherer{g: graph.New()}
	if err := gt.runFixpoint(nil); err != nil {
		t.Fatalf("runFixpoint(nil) = %v, want nil", err)
	}
}
