// Package layout implements §4.7: three pure functions of a graph.Role
// and the dist root that tell the exporter where a node's content-
// addressed copy, symlink farm, and semantic destination live.
package layout

import (
	"path/filepath"
	"strings"

	"github.com/shenzi-pack/shenzi/internal/graph"
)

// shaName builds the "{sha}[_basename].{ext}" stem used for both the
// reals store and the symlink-farm directory name, keeping the original
// extension so a patched .so still looks like a .so to tools that care.
func shaName(sha, basename string) string {
	ext := filepath.Ext(basename)
	stem := sha
	name := strings.TrimSuffix(basename, ext)
	if name != "" && name != sha {
		stem += "_" + name
	}
	return stem + ext
}

// RealsPath returns the content-addressed path under root for a binary
// node's bytes, or "" if the role has no reals entry.
func RealsPath(root string, n *graph.Node) string {
	switch n.Role.Kind {
	case graph.RoleExecutable:
		return filepath.Join(root, "python", "bin", "python")
	case graph.RoleBinary, graph.RoleBinaryInLDPath, graph.RoleBinaryInPath,
		graph.RolePrefixBinary, graph.RoleExecPrefixBinary, graph.RoleSitePackagesBinary:
		return filepath.Join(root, "reals", "r", shaName(n.Role.SHA, filepath.Base(n.Path)))
	default:
		return ""
	}
}

// SymlinkFarmPath returns the per-binary symlink-farm directory under
// root, or "" if the role has none.
func SymlinkFarmPath(root string, n *graph.Node) string {
	switch n.Role.Kind {
	case graph.RoleExecutable:
		return filepath.Join(root, "symlinks", "python")
	case graph.RoleBinary, graph.RoleBinaryInLDPath, graph.RoleBinaryInPath,
		graph.RolePrefixBinary, graph.RoleExecPrefixBinary, graph.RoleSitePackagesBinary:
		return filepath.Join(root, "symlinks", shaName(n.Role.SHA, filepath.Base(n.Path)))
	default:
		return ""
	}
}

// pythonLibDir is the "python/lib/pythonX.Y{abi}" component shared by
// PrefixPlain/Binary and ExecPrefixPlain/Binary destinations.
func pythonLibDir(root, version string) string {
	return filepath.Join(root, "python", "lib", version)
}

// DestinationPath returns the semantic location the program will access
// a node at, or "" if the role is never placed at a destination (it is
// referenced only via a symlink farm).
func DestinationPath(root string, n *graph.Node) string {
	base := filepath.Base(n.Path)
	switch n.Role.Kind {
	case graph.RoleSitePackagesPlain, graph.RoleSitePackagesBinary:
		return filepath.Join(root, "site_packages", n.Role.Alias, n.Role.RelPath)
	case graph.RolePrefixPlain, graph.RolePrefixBinary:
		return filepath.Join(pythonLibDir(root, n.Role.Version), n.Role.RelPath)
	case graph.RoleExecPrefixPlain, graph.RoleExecPrefixBinary:
		return filepath.Join(pythonLibDir(root, n.Role.Version), "lib-dynload", n.Role.RelPath)
	case graph.RoleBinaryInLDPath:
		return filepath.Join(root, "lib", "l", base)
	case graph.RoleBinaryInPath, graph.RolePlainPyBinaryFile:
		return filepath.Join(root, "bin", "b", base)
	case graph.RoleMainPyScript:
		return filepath.Join(root, base)
	default:
		return ""
	}
}

// AuxiliarySymlinks returns the extra symlink names a BinaryInLDPath
// role declares (§4.1 loads[].symlinks), placed alongside its
// destination in lib/l.
func AuxiliarySymlinks(root string, n *graph.Node) []string {
	if n.Role.Kind != graph.RoleBinaryInLDPath {
		return nil
	}
	out := make([]string, len(n.Role.Symlinks))
	for i, name := range n.Role.Symlinks {
		out[i] = filepath.Join(root, "lib", "l", name)
	}
	return out
}
