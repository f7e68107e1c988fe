// Package sitepkgs implements §4.6: discovering top-level site-packages
// roots from sys.path, assigning them collision-free aliases, and
// computing the remapped Python search path the launcher reconstructs
// inside the dist.
package sitepkgs

import (
	"math/rand"
	"path/filepath"
	"strings"
)

// ComponentKind discriminates a PythonPathComponent (§3 Site-packages
// model).
type ComponentKind int

const (
	ComponentRelativeToStdlib ComponentKind = iota
	ComponentRelativeToLibDynLoad
	ComponentTopLevel
	ComponentRelativeToSitePkg
)

// PythonPathComponent describes one sys.path entry's reconstruction
// inside the dist, preserving the entry's original position.
type PythonPathComponent struct {
	Kind ComponentKind
	// RelPath is set for RelativeToStdlib/RelativeToLibDynLoad/RelativeToSitePkg.
	RelPath string
	// Alias is set for TopLevel/RelativeToSitePkg.
	Alias string
}

// SitePkgs is the resolved model (§3 Site-packages model).
type SitePkgs struct {
	Stdlib     string
	LibDynLoad string
	Roots      []string          // top-level site-packages roots, in sys.path order
	Alias      map[string]string // root -> alias
	PythonPath []PythonPathComponent
}

// Version is the subset of python.sys.version §4.6 needs to compute
// stdlib/lib-dynload directory names.
type Version struct {
	Major     uint32
	Minor     uint32
	ABIThread string
}

func pyDirName(v Version) string {
	return "python" + itoa(v.Major) + "." + itoa(v.Minor) + v.ABIThread
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Resolve computes stdlib, lib_dynload, the deduplicated/denested
// site-packages roots, their assigned aliases, and the ordered
// PythonPathComponent list (§4.6).
func Resolve(sysPath []string, prefix, execPrefix, platLibDir string, version Version) *SitePkgs {
	pyDir := pyDirName(version)
	stdlib := filepath.Join(prefix, platLibDir, pyDir)
	libDynLoad := filepath.Join(execPrefix, platLibDir, pyDir, "lib-dynload")

	roots := denest(dedup(sysPath), stdlib, libDynLoad)

	alias := assignAliases(roots)

	components := make([]PythonPathComponent, 0, len(sysPath))
	for _, p := range sysPath {
		root := containingRoot(p, roots)
		switch {
		case p == stdlib:
			components = append(components, PythonPathComponent{Kind: ComponentRelativeToStdlib, RelPath: "."})
		case p == libDynLoad:
			components = append(components, PythonPathComponent{Kind: ComponentRelativeToLibDynLoad, RelPath: "."})
		case withinDir(p, libDynLoad):
			rel, _ := filepath.Rel(libDynLoad, p)
			components = append(components, PythonPathComponent{Kind: ComponentRelativeToLibDynLoad, RelPath: rel})
		case root == p:
			components = append(components, PythonPathComponent{Kind: ComponentTopLevel, Alias: alias[root]})
		case root != "":
			rel, _ := filepath.Rel(root, p)
			components = append(components, PythonPathComponent{Kind: ComponentRelativeToSitePkg, Alias: alias[root], RelPath: rel})
		case withinDir(p, stdlib):
			rel, _ := filepath.Rel(stdlib, p)
			components = append(components, PythonPathComponent{Kind: ComponentRelativeToStdlib, RelPath: rel})
		}
		// Any other p lies in no root and outside stdlib/lib_dynload:
		// no component is emitted for it.
	}

	return &SitePkgs{
		Stdlib:     stdlib,
		LibDynLoad: libDynLoad,
		Roots:      roots,
		Alias:      alias,
		PythonPath: components,
	}
}

func withinDir(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// dedup preserves first-occurrence order.
func dedup(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// denest removes stdlib and lib_dynload from the list, then drops any
// remaining path that is a strict descendant of another remaining path.
// A site-packages directory inside stdlib therefore stays a root.
func denest(paths []string, stdlib, libDynLoad string) []string {
	var out []string
	for _, b := range paths {
		if b == stdlib || b == libDynLoad {
			continue
		}
		nested := false
		for _, a := range paths {
			if a == stdlib || a == libDynLoad {
				continue
			}
			if a != b && withinDir(b, a) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, b)
		}
	}
	return out
}

func containingRoot(p string, roots []string) string {
	for _, r := range roots {
		if p == r || withinDir(p, r) {
			return r
		}
	}
	return ""
}

// assignAliases implements §4.6's alias rule: last path component;
// else (empty or taken) second-to-last + "_" + last; else a random
// 10-character lowercase string.
func assignAliases(roots []string) map[string]string {
	alias := make(map[string]string, len(roots))
	taken := make(map[string]bool, len(roots))
	for _, root := range roots {
		a := lastComponent(root)
		if a == "" || taken[a] {
			a = fallbackAlias(root)
		}
		if taken[a] {
			a = randomAlias()
		}
		for taken[a] {
			a = randomAlias()
		}
		alias[root] = a
		taken[a] = true
	}
	return alias
}

func lastComponent(p string) string {
	return filepath.Base(filepath.Clean(p))
}

func fallbackAlias(p string) string {
	clean := filepath.Clean(p)
	parent := filepath.Dir(clean)
	if parent == clean || parent == "." || parent == "/" {
		return lastComponent(clean)
	}
	return lastComponent(parent) + "_" + lastComponent(clean)
}

const aliasLetters = "abcdefghijklmnopqrstuvwxyz"

func randomAlias() string {
	b := make([]byte, 10)
	for i := range b {
		b[i] = aliasLetters[rand.Intn(len(aliasLetters))]
	}
	return string(b)
}
