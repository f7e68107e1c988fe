package graph

import (
	"github.com/shenzi-pack/shenzi/internal/objfile"
	"github.com/shenzi-pack/shenzi/internal/pathutil"
)

// Graph is §3's "mapping from normalized path -> node, with an auxiliary
// adjacency list". It is not safe for concurrent writes (§5: gather is
// single-threaded and synchronous by design); concurrent reads are safe
// once gather has completed and the exporter's parallel passes begin.
type Graph struct {
	nodes map[string]*Node
	order []string // insertion order, for deterministic iteration
	edges map[string][]string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string][]string),
	}
}

// GetNodeByPath is the read operation named in §4.4.
func (g *Graph) GetNodeByPath(path string) (*Node, bool) {
	n, ok := g.nodes[path]
	return n, ok
}

// IterNodes returns all nodes in insertion order. The graph is otherwise
// opaque: "no exposed ordering beyond insertion-respecting" (§4.4).
func (g *Graph) IterNodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, p := range g.order {
		out = append(out, g.nodes[p])
	}
	return out
}

// GetNodeDependencies returns the dependency nodes of n that are present
// in the graph (a resolved dependency that is a system library is never
// inserted and so is silently omitted here, per the graph-closure
// invariant in §3).
func (g *Graph) GetNodeDependencies(n *Node) []*Node {
	var out []*Node
	for _, p := range g.edges[n.Path] {
		if dep, ok := g.nodes[p]; ok {
			out = append(out, dep)
		}
	}
	return out
}

func (g *Graph) insert(n *Node) {
	if _, existed := g.nodes[n.Path]; !existed {
		g.order = append(g.order, n.Path)
	}
	g.nodes[n.Path] = n
	g.edges[n.Path] = n.DependencyPaths()
}

// KnownLibs recomputes the basename -> absolute path cache from the
// current graph content (§4.5 "Known-libs cache"). It is recomputed
// fresh rather than maintained incrementally, so it never holds stale
// entries across a replace.
func (g *Graph) KnownLibs() map[string]string {
	out := make(map[string]string)
	for _, p := range g.order {
		n := g.nodes[p]
		if n.Role.Binary() {
			base := basename(p)
			if _, ok := out[base]; !ok {
				out[base] = p
			}
		}
	}
	return out
}

func basename(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

// AddTree implements §4.4's add_tree: insert node, then for each
// dependency path in node's analysis, construct (via f) and add it too,
// breadth-first, terminating on paths already present to handle cycles.
// replace governs only the root node: true overwrites an existing node
// at the same path and recomputes its edges; false skips insertion
// (and the whole call becomes a no-op) if the root path is already
// present.
func (g *Graph) AddTree(node *Node, f *Factory, knownLibs map[string]string, replace bool, extraSearchPaths []string) error {
	if _, existed := g.nodes[node.Path]; existed && !replace {
		return nil
	}

	analyzeCtx := &objfile.Context{
		InterpreterPath:  f.ctx.InterpreterPath,
		Env:              f.ctx.Env,
		KnownLibs:        knownLibs,
		ExtraSearchPaths: extraSearchPaths,
	}

	queue := []*Node{node}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		if _, already := g.nodes[n.Path]; already && n != node {
			continue
		}
		g.insert(n)

		for _, depPath := range n.DependencyPaths() {
			if pathutil.IsSystemLibrary(depPath) {
				continue
			}
			if _, already := g.nodes[depPath]; already {
				continue
			}
			depNode, err := f.NewDependencyNode(depPath, analyzeCtx)
			if err != nil {
				return err
			}
			if depNode == nil {
				continue // skipped by policy (§4.3)
			}
			queue = append(queue, depNode)
		}
	}
	return nil
}
