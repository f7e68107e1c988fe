// Package warnvalidate implements §4.10: after gather, optionally sweep
// the filesystem for a basename matching each residual dependency
// warning and promote it to a fatal error if found — the dependency
// could have been bundled had it resolved.
package warnvalidate

import (
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/shenzi-pack/shenzi/internal/gather"
	"github.com/shenzi-pack/shenzi/internal/pathutil"
)

// Promoted is a warning that was found to exist somewhere on disk under
// root, and is therefore treated as a fatal error rather than a
// log-only warning.
type Promoted struct {
	gather.Warning
	FoundAt string
}

// Validate walks root and checks every warning's dependency basename
// against every object-file-looking basename it finds. Warnings whose
// basename is never found are returned unchanged in retained; warnings
// whose basename is found somewhere are returned in promoted.
func Validate(root string, warnings []gather.Warning) (promoted []Promoted, retained []gather.Warning, err error) {
	index, err := indexObjectFiles(root)
	if err != nil {
		return nil, nil, xerrors.Errorf("warnvalidate: walk %s: %w", root, err)
	}

	for _, w := range warnings {
		base := filepath.Base(w.Name)
		if found, ok := index[base]; ok {
			promoted = append(promoted, Promoted{Warning: w, FoundAt: found})
			continue
		}
		retained = append(retained, w)
	}
	return promoted, retained, nil
}

// indexObjectFiles collects basename -> first matching path for every
// file under root whose name looks like an object file (§4.10: "every
// basename matching the object-file regex").
func indexObjectFiles(root string) (map[string]string, error) {
	index := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entry: skip, do not abort the walk
		}
		if d.IsDir() {
			return nil
		}
		if !pathutil.IsPossibleObjectFile(path) {
			return nil
		}
		base := filepath.Base(path)
		if _, ok := index[base]; !ok {
			index[base] = path
		}
		return nil
	})
	return index, err
}

// FormatError builds the §7 DepResolutionStalled-style grouped report:
// one block listing every promoted dependency-not-found error, followed
// by the skip.libs hint. It returns nil when promoted is empty.
func FormatError(promoted []Promoted) error {
	if len(promoted) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("warnvalidate: the following dependencies were never resolved but exist on disk and could have been bundled:\n")
	for _, p := range promoted {
		b.WriteString("  ")
		b.WriteString(p.Name)
		b.WriteString(" (referenced by ")
		b.WriteString(p.ReferencingPath)
		if p.ReferencingBuildID != "" {
			b.WriteString(" [build-id ")
			b.WriteString(p.ReferencingBuildID)
			b.WriteString("]")
		}
		b.WriteString(", found at ")
		b.WriteString(p.FoundAt)
		b.WriteString(")\n")
	}
	b.WriteString("add the offending basenames to skip.libs in the manifest if they are intentionally excluded\n")
	return xerrors.New(b.String())
}
