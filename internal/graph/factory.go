package graph

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/shenzi-pack/shenzi/internal/objfile"
	"github.com/shenzi-pack/shenzi/internal/pathutil"
)

// FactoryContext carries the manifest-derived policy and interpreter
// information a Factory needs to classify and analyze a path (§4.1,
// §4.3). It is built once per gather run; AddTree's recursive calls
// reuse the same Factory across an entire fixpoint pass.
type FactoryContext struct {
	InterpreterPath string
	Env             []string

	// SkipPrefixes and SkipLibs implement the manifest's skip.prefixes
	// and skip.libs (§4.1): a literal path-prefix match and a literal
	// basename match, respectively. Neither is glob or gitignore syntax
	// (see DESIGN.md for why a glob-matching library was rejected).
	SkipPrefixes []string
	SkipLibs     []string
}

// Factory constructs Nodes from filesystem paths, applying skip policy
// and object-file analysis (§4.3). A Factory is total: every exported
// constructor either returns a non-nil Node, returns (nil, nil) for a
// policy-skipped path, or returns a non-nil error for a path that
// cannot be read at all.
type Factory struct {
	ctx *FactoryContext
}

// NewFactory returns a Factory bound to ctx.
func NewFactory(ctx *FactoryContext) *Factory {
	return &Factory{ctx: ctx}
}

func (f *Factory) skipped(path string) bool {
	for _, prefix := range f.ctx.SkipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	base := basename(path)
	for _, lib := range f.ctx.SkipLibs {
		if base == lib {
			return true
		}
	}
	return false
}

// statExists is a total existence-and-readability check: per §4.3 a
// node whose path does not exist, or exists but cannot be opened, is a
// hard error (unlike a skip-policy match, which is not an error).
func statExists(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return xerrors.Errorf("graph: stat %s: %w", path, err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		if _, err := pathutil.Realpath(path); err != nil {
			return xerrors.Errorf("graph: resolve symlink %s: %w", path, err)
		}
	}
	return nil
}

// analyze parses path as an object file and returns its analysis plus
// any unresolved dependencies. An unresolved dependency is a warning,
// not an error (§7 DependencyNotFound): the node is still constructed,
// and the caller attaches the warnings to it so the gatherer can
// surface them without aborting the walk.
//
// Classification is by magic bytes, not by filename: an Executable or
// a PlainPyBinaryFile rarely carries a .so/.dylib suffix, so
// pathutil.IsPossibleObjectFile is not consulted here. That heuristic
// is used only by internal/warnvalidate's filesystem sweep; the
// gatherer's directory walk hands every file to the factory.
func (f *Factory) analyze(path string, ctx *objfile.Context) (*objfile.Analysis, []objfile.DependencyNotFound, error) {
	analysis, missing, err := objfile.Analyze(path, ctx)
	if err != nil {
		if xerrors.Is(err, objfile.ErrNotBinary) {
			return nil, nil, nil
		}
		return nil, nil, xerrors.Errorf("graph: analyze %s: %w", path, err)
	}
	return analysis, missing, nil
}

// NewDependencyNode builds the node for a path discovered as another
// node's DT_NEEDED/LC_LOAD_DYLIB target (§4.4's recursive add_tree
// step). Its role is always Binary: a node reached purely through
// dependency-following is never an Executable, a PathBinary, or a
// site-packages member in its own right, even if another tree later
// re-adds it under a more specific role via replace=true.
func (f *Factory) NewDependencyNode(path string, ctx *objfile.Context) (*Node, error) {
	norm := pathutil.Normalize(path)
	if f.skipped(norm) {
		return nil, nil
	}
	if err := statExists(norm); err != nil {
		return nil, err
	}
	analysis, warnings, err := f.analyze(norm, ctx)
	if err != nil {
		return nil, err
	}
	sha, err := SHA256File(norm)
	if err != nil {
		return nil, xerrors.Errorf("graph: digest %s: %w", norm, err)
	}
	return &Node{
		Path:     norm,
		Role:     Role{Kind: RoleBinary, SHA: sha},
		Analysis: analysis,
		Warnings: warnings,
	}, nil
}

// NewExecutable builds the root node for the manifest's main
// executable (§3 Executable, §4.1).
func (f *Factory) NewExecutable(path string, ctx *objfile.Context) (*Node, error) {
	norm := pathutil.Normalize(path)
	if err := statExists(norm); err != nil {
		return nil, err
	}
	analysis, warnings, err := f.analyze(norm, ctx)
	if err != nil {
		return nil, err
	}
	if analysis == nil {
		return nil, xerrors.Errorf("graph: %s: %w", norm, objfile.ErrNotBinary)
	}
	sha, err := SHA256File(norm)
	if err != nil {
		return nil, xerrors.Errorf("graph: digest %s: %w", norm, err)
	}
	return &Node{Path: norm, Role: Role{Kind: RoleExecutable, SHA: sha}, Analysis: analysis, Warnings: warnings}, nil
}

// NewBinaryInLDPath builds a node for a manifest-declared dlopen
// target installed under the dist's library search path, carrying the
// manifest's declared extra symlink names (§3 BinaryInLDPath, §4.1).
func (f *Factory) NewBinaryInLDPath(path string, symlinks []string, ctx *objfile.Context) (*Node, error) {
	n, err := f.namedBinary(path, RoleBinaryInLDPath, ctx)
	if err != nil || n == nil {
		return n, err
	}
	n.Role.Symlinks = append([]string(nil), symlinks...)
	return n, nil
}

// NewBinaryInPath builds a node for a manifest-declared auxiliary
// executable placed on the dist's PATH (§3 BinaryInPath, §4.1).
func (f *Factory) NewBinaryInPath(path string, ctx *objfile.Context) (*Node, error) {
	return f.namedBinary(path, RoleBinaryInPath, ctx)
}

func (f *Factory) namedBinary(path string, kind RoleKind, ctx *objfile.Context) (*Node, error) {
	norm := pathutil.Normalize(path)
	if err := statExists(norm); err != nil {
		return nil, err
	}
	analysis, warnings, err := f.analyze(norm, ctx)
	if err != nil {
		return nil, err
	}
	if analysis == nil {
		return nil, xerrors.Errorf("graph: %s: %w", norm, objfile.ErrNotBinary)
	}
	sha, err := SHA256File(norm)
	if err != nil {
		return nil, xerrors.Errorf("graph: digest %s: %w", norm, err)
	}
	return &Node{Path: norm, Role: Role{Kind: kind, SHA: sha}, Analysis: analysis, Warnings: warnings}, nil
}

// NewPrefixFile builds a node for a file found under the Python
// prefix/exec_prefix trees (§3 PrefixPlain/PrefixBinary,
// ExecPrefixPlain/ExecPrefixBinary, §4.1). Which of the four kinds
// applies is the caller's decision (exec vs. non-exec prefix, object
// file or not); NewPrefixFile classifies plain-vs-binary for a given
// exec/non-exec choice by probing the file itself.
func (f *Factory) NewPrefixFile(path, originalPrefix, relPath, version string, exec bool, ctx *objfile.Context) (*Node, error) {
	norm := pathutil.Normalize(path)
	if f.skipped(norm) {
		return nil, nil
	}
	if err := statExists(norm); err != nil {
		return nil, err
	}
	analysis, warnings, err := f.analyze(norm, ctx)
	if err != nil {
		return nil, err
	}
	kind := RolePrefixPlain
	var sha string
	if analysis != nil {
		kind = RolePrefixBinary
		if exec {
			kind = RoleExecPrefixBinary
		}
		sha, err = SHA256File(norm)
		if err != nil {
			return nil, xerrors.Errorf("graph: digest %s: %w", norm, err)
		}
	} else if exec {
		kind = RoleExecPrefixPlain
	}
	return &Node{
		Path: norm,
		Role: Role{
			Kind:           kind,
			SHA:            sha,
			OriginalPrefix: originalPrefix,
			RelPath:        relPath,
			Version:        version,
		},
		Analysis: analysis,
		Warnings: warnings,
	}, nil
}

// NewSitePackagesFile builds a node for a file found under a resolved
// sys.path component outside prefix/exec_prefix (§3
// SitePackagesPlain/SitePackagesBinary, §4.1), carrying the alias
// internal/sitepkgs assigned to its originating root.
func (f *Factory) NewSitePackagesFile(path, originalRoot, alias string, ctx *objfile.Context) (*Node, error) {
	norm := pathutil.Normalize(path)
	if f.skipped(norm) {
		return nil, nil
	}
	if err := statExists(norm); err != nil {
		return nil, err
	}
	analysis, warnings, err := f.analyze(norm, ctx)
	if err != nil {
		return nil, err
	}
	kind := RoleSitePackagesPlain
	var sha string
	if analysis != nil {
		kind = RoleSitePackagesBinary
		sha, err = SHA256File(norm)
		if err != nil {
			return nil, xerrors.Errorf("graph: digest %s: %w", norm, err)
		}
	}
	rel, err := filepath.Rel(originalRoot, norm)
	if err != nil {
		return nil, xerrors.Errorf("graph: rel %s -> %s: %w", originalRoot, norm, err)
	}
	return &Node{
		Path:     norm,
		Role:     Role{Kind: kind, SHA: sha, OriginalRoot: originalRoot, Alias: alias, RelPath: rel},
		Analysis: analysis,
		Warnings: warnings,
	}, nil
}

// NewPlainPyBinaryFile builds a node for a script placed on the dist's
// PATH, such as a package's console script, that lives outside
// prefix/exec_prefix and site-packages (§3 PlainPyBinaryFile, §4.1).
// Like NewMainPyScript it is never analyzed as an object file: the
// exporter copies its bytes and adds a shebang.
func (f *Factory) NewPlainPyBinaryFile(path string, ctx *objfile.Context) (*Node, error) {
	norm := pathutil.Normalize(path)
	if err := statExists(norm); err != nil {
		return nil, err
	}
	return &Node{Path: norm, Role: Role{Kind: RolePlainPyBinaryFile}}, nil
}

// NewMainPyScript builds the node for the manifest's entry-point
// Python script (§3 MainPyScript, §4.1). It is never analyzed as an
// object file: a script has no DT_NEEDED/LC_LOAD_DYLIB table.
func (f *Factory) NewMainPyScript(path string) (*Node, error) {
	norm := pathutil.Normalize(path)
	if err := statExists(norm); err != nil {
		return nil, err
	}
	return &Node{Path: norm, Role: Role{Kind: RoleMainPyScript}}, nil
}
