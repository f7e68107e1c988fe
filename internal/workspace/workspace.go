// Package workspace implements the SUPPLEMENTED FEATURES "shenzi init"
// wizard: a TOML sidecar file, shenzi_workspace.toml, that records how
// a project's dependencies and main script were declared so that a
// later "shenzi build" can derive manifest.Python.AllowedPackages
// without the user hand-typing a package list. Grounded on the
// original_source/ Rust implementation's workspace/mod.rs and
// workspace/packaging.rs, which the distilled spec.md dropped.
package workspace

import (
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

// FileName is the sidecar file's fixed name, relative to the directory
// "shenzi init"/"shenzi build" is invoked from (original_source's
// workspace_file_path).
const FileName = "shenzi_workspace.toml"

// PoetryPackaging is the "packaging.kind = poetry" case: a path to a
// poetry.lock file plus the dependency groups to keep.
type PoetryPackaging struct {
	ConfigFile string   `toml:"config_file"`
	Groups     []string `toml:"groups"`
}

// Packaging is the packaging table. Poetry is the only kind
// original_source implements; shenzi follows it rather than inventing
// support for package managers the original never had.
type Packaging struct {
	Kind   string          `toml:"kind"`
	Poetry PoetryPackaging `toml:"poetry"`
}

// Execution is the execution table: where the application's entry
// point lives.
type Execution struct {
	Main string `toml:"main"`
}

// Workspace is the full decoded shenzi_workspace.toml document.
type Workspace struct {
	Packaging Packaging `toml:"packaging"`
	Execution Execution `toml:"execution"`
}

// Load decodes path, or returns (nil, nil) if it does not exist —
// a workspace file is optional, not every build is workspace-driven
// (original_source's get_shenzi_workspace).
func Load(path string) (*Workspace, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	var w Workspace
	if _, err := toml.DecodeFile(path, &w); err != nil {
		return nil, xerrors.Errorf("workspace: decode %s: %w", path, err)
	}
	return &w, nil
}

// Save writes w to path, overwriting any existing file.
func Save(path string, w *Workspace) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("workspace: create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(w); err != nil {
		return xerrors.Errorf("workspace: encode %s: %w", path, err)
	}
	return nil
}

// RequiredDependencies resolves the packaging table to a flat package
// name list (§ AllowedPackages), the input manifest.Python.AllowedPackages
// expects.
func (w *Workspace) RequiredDependencies() ([]string, error) {
	switch w.Packaging.Kind {
	case "poetry":
		return poetryDependencies(w.Packaging.Poetry.ConfigFile, w.Packaging.Poetry.Groups)
	default:
		return nil, xerrors.Errorf("workspace: unsupported packaging kind %q", w.Packaging.Kind)
	}
}
