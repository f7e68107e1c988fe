package gather

import (
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// retryItem is one path whose add into the graph may fail because its
// dependency resolution needs known_libs entries that a later pass has
// not populated yet (§4.5 Retry fixpoint).
type retryItem struct {
	path string
	add  func(knownLibs map[string]string, replace bool) error
}

// runFixpoint implements §4.5's retry fixpoint: the first pass over
// items is the steps 5-7 insertion itself (replace=true, so a file
// already present with a coarser role from an earlier manifest.loads
// entry is reclassified); every subsequent pass retries with
// replace=false, snapshotting known_libs fresh each time, and stops if
// the failure count does not strictly decrease.
func (gt *Gatherer) runFixpoint(items []retryItem) error {
	replace := true
	for len(items) > 0 {
		knownLibs := gt.g.KnownLibs()
		var next []retryItem
		var errs []error
		for _, it := range items {
			if err := it.add(knownLibs, replace); err != nil {
				next = append(next, it)
				errs = append(errs, err)
			}
		}
		if len(next) == 0 {
			return nil
		}
		if len(next) >= len(items) {
			return xerrors.Errorf("%w: %d path(s) did not resolve: %v", ErrDepResolutionStalled, len(next), errs)
		}
		items = next
		replace = false
	}
	return nil
}

// walkPrefixTree recursively visits every regular file under root
// (§4.5 steps 5-6), skipping any subtree rooted at a directory
// containing MarkerFile (§4.5 step 8). Each file becomes a retryItem
// whose add closure constructs and inserts the corresponding
// PrefixPlain/PrefixBinary or ExecPrefixPlain/ExecPrefixBinary node.
func (gt *Gatherer) walkPrefixTree(root string, exec bool) []retryItem {
	version := pyDirName(gt.m.Python.Sys.Version)
	var items []retryItem

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entry: skip, do not abort the walk
		}
		if d.IsDir() {
			if path != root && hasMarker(path) {
				return filepath.SkipDir
			}
			return nil
		}
		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		p := path
		items = append(items, retryItem{
			path: p,
			add: func(knownLibs map[string]string, replace bool) error {
				node, err := gt.factory.NewPrefixFile(p, root, relPath, version, exec, gt.objContext(knownLibs))
				if err != nil {
					return err
				}
				if node == nil {
					return nil
				}
				if err := gt.g.AddTree(node, gt.factory, knownLibs, replace, gt.extraSearchPaths); err != nil {
					return err
				}
				gt.recordWarnings(node)
				return nil
			},
		})
		return nil
	})
	return items
}

func hasMarker(dir string) bool {
	fi, err := os.Stat(filepath.Join(dir, MarkerFile))
	return err == nil && !fi.IsDir()
}
