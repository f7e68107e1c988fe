package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/shenzi-pack/shenzi/internal/objfile"
)

// Node is §3's (path, role, deps) tuple. path is the node's identity:
// equality and lookup use it alone.
type Node struct {
	Path string
	Role Role
	// Analysis is non-nil for Role.Binary() nodes that parsed
	// successfully; nil otherwise (Plain deps, or a binary role whose
	// file turned out not to be a recognized object file, which the
	// factory demotes rather than erroring on, per §4.2).
	Analysis *objfile.Analysis

	// Warnings holds this node's own unresolved DT_NEEDED/LC_LOAD_DYLIB
	// entries (§7 DependencyNotFound). Unlike a parse failure, an
	// unresolved dependency does not prevent the node from being
	// constructed and added to the graph.
	Warnings []objfile.DependencyNotFound
}

// DependencyPaths returns the resolved absolute paths this node's
// analysis (if any) points at, skipping entries that did not resolve.
func (n *Node) DependencyPaths() []string {
	if n.Analysis == nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, need := range n.Analysis.Needed {
		if need.Resolved == "" || seen[need.Resolved] {
			continue
		}
		seen[need.Resolved] = true
		out = append(out, need.Resolved)
	}
	return out
}

// SHA256File computes the content digest used for §3's "sha is the
// digest of the bytes at path" invariant and for content-addressed
// deduplication (reals store, §4.7).
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
