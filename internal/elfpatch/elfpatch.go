// Package elfpatch implements §4.9's Linux binary patcher: rewrite an
// ELF binary's RPATH and DT_NEEDED entries to point into its symlink
// farm, by shelling out to the patchelf helper.
package elfpatch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/shenzi-pack/shenzi/internal/objfile"
)

// Dependency is one DT_NEEDED entry this binary must be rewritten to
// resolve through its symlink farm.
type Dependency struct {
	// Name is the original soname recorded in the binary.
	Name string
	// FarmBasename is the name of the symlink inside the farm that
	// resolves this dependency (§4.7: "named by the dependency's
	// basename").
	FarmBasename string
}

// Patcher invokes a patchelf binary at HelperPath.
type Patcher struct {
	HelperPath string
}

// New returns a Patcher using the given patchelf executable path.
func New(helperPath string) *Patcher {
	return &Patcher{HelperPath: helperPath}
}

// Patch rewrites realsPath in place: strips any existing RPATH/RUNPATH,
// sets a new RPATH of "$ORIGIN/{relFromRealsToFarm}", and replaces every
// dependency's original soname with its symlink-farm basename (§4.9).
// A binary with no dependencies is left untouched.
func (p *Patcher) Patch(ctx context.Context, realsPath string, hadRPath bool, relFromRealsToFarm string, deps []Dependency) error {
	if len(deps) == 0 {
		return nil
	}
	var args []string
	if hadRPath {
		args = append(args, "--remove-rpath")
	}
	args = append(args, "--set-rpath", "$ORIGIN/"+relFromRealsToFarm+"/")
	for _, d := range deps {
		args = append(args, "--replace-needed", d.Name, d.FarmBasename)
	}
	args = append(args, realsPath)

	cmd := exec.CommandContext(ctx, p.HelperPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return xerrors.Errorf("elfpatch: patchelf %s: %w: %s", realsPath, err, out)
	}
	return nil
}

// VerifyFarmBasename checks that the symlink farm at farmDir actually
// contains an entry named basename before Patch is invoked: its absence
// means the dependency was never added to the graph, which §4.9 treats
// as a fatal error rather than something patchelf should discover on its
// own ("the basename must exist inside the symlink farm; absence is a
// fatal error").
func VerifyFarmBasename(farmDir, basename string) error {
	target := filepath.Join(farmDir, basename)
	if _, err := os.Lstat(target); err != nil {
		return xerrors.Errorf("elfpatch: dependency %s missing from symlink farm %s: %w", basename, farmDir, err)
	}
	return nil
}

// DependenciesFor builds the Dependency list a Patcher.Patch call needs
// from an already-analyzed binary's Needed entries and the basenames
// assigned to each resolved path in its symlink farm.
func DependenciesFor(a *objfile.Analysis, farmBasename func(resolvedPath string) string) []Dependency {
	var out []Dependency
	for _, need := range a.Needed {
		if need.Resolved == "" {
			continue
		}
		out = append(out, Dependency{Name: need.Name, FarmBasename: farmBasename(need.Resolved)})
	}
	return out
}
