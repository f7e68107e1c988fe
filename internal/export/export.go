// Package export implements §4.8: the three-pass exporter that
// materializes a frozen graph.Graph into a dist directory and invokes
// the platform binary patcher.
package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/renameio"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/shenzi-pack/shenzi/internal/elfpatch"
	"github.com/shenzi-pack/shenzi/internal/graph"
	"github.com/shenzi-pack/shenzi/internal/layout"
	"github.com/shenzi-pack/shenzi/internal/machopatch"
)

// Patcher abstracts the platform-specific rewrite step (§4.9) so the
// exporter's three-pass structure does not itself depend on GOOS.
type Patcher interface {
	// Patch rewrites the binary at realsPath so its dependencies resolve
	// through the dependencies' farm basenames, with relToFarm being the
	// relative path to its symlink farm from realsPath's directory (reals
	// pass) or from the destination's directory (destination pass).
	Patch(ctx context.Context, realsPath, relToFarm string, n *graph.Node) error
}

// Exporter materializes g into Root.
type Exporter struct {
	Root    string
	Patcher Patcher
}

// New returns an Exporter for root using the patcher appropriate for
// GOOS (elfpatch on Linux, machopatch on macOS).
func New(root, patchelfHelperPath string) (*Exporter, error) {
	var p Patcher
	switch runtime.GOOS {
	case "linux":
		p = &linuxPatcher{elfpatch.New(patchelfHelperPath)}
	case "darwin":
		p = &darwinPatcher{}
	default:
		return nil, xerrors.Errorf("export: unsupported GOOS %s", runtime.GOOS)
	}
	return &Exporter{Root: root, Patcher: p}, nil
}

// Run executes the three passes in order (§4.8): reals, then symlink
// farms + patch, then destinations.
func (e *Exporter) Run(ctx context.Context, g *graph.Graph) error {
	if err := bumpRlimitNOFILE(); err != nil {
		// Non-fatal: the default limit is usually enough for all but the
		// largest dists, and raising it is a best-effort widening, not a
		// correctness requirement.
		_ = err
	}

	nodes := g.IterNodes()

	if err := e.realsPass(ctx, nodes); err != nil {
		return xerrors.Errorf("export: reals pass: %w", err)
	}
	if err := e.symlinkFarmPass(ctx, g, nodes); err != nil {
		return xerrors.Errorf("export: symlink-farm pass: %w", err)
	}
	if err := e.destinationPass(ctx, g, nodes); err != nil {
		return xerrors.Errorf("export: destination pass: %w", err)
	}
	return nil
}

// realsPass copies every binary node's bytes to its reals path,
// independently and in parallel (§5: "admissible within the reals copy
// step").
func (e *Exporter) realsPass(ctx context.Context, nodes []*graph.Node) error {
	grp, _ := errgroup.WithContext(ctx)
	for _, n := range nodes {
		n := n
		realsPath := layout.RealsPath(e.Root, n)
		if realsPath == "" {
			continue
		}
		grp.Go(func() error {
			return copyFile(n.Path, realsPath)
		})
	}
	return grp.Wait()
}

// symlinkFarmPass builds each binary node's own farm directory, then
// invokes the patcher on its reals copy.
func (e *Exporter) symlinkFarmPass(ctx context.Context, g *graph.Graph, nodes []*graph.Node) error {
	grp, _ := errgroup.WithContext(ctx)
	for _, n := range nodes {
		n := n
		farmDir := layout.SymlinkFarmPath(e.Root, n)
		realsPath := layout.RealsPath(e.Root, n)
		if farmDir == "" || realsPath == "" {
			continue
		}
		grp.Go(func() error {
			if err := buildFarm(e.Root, g, n, farmDir); err != nil {
				return err
			}
			if err := verifyFarmComplete(farmDir, n); err != nil {
				return err
			}
			relToFarm, err := filepath.Rel(filepath.Dir(realsPath), farmDir)
			if err != nil {
				return xerrors.Errorf("export: rel %s -> %s: %w", realsPath, farmDir, err)
			}
			return e.Patcher.Patch(ctx, realsPath, relToFarm, n)
		})
	}
	return grp.Wait()
}

// buildFarm creates dir and, for every dependency n has in the graph, a
// symlink inside it named by the dependency's basename pointing at the
// dependency's reals location, relative to dir (§4.8 step 2).
func buildFarm(root string, g *graph.Graph, n *graph.Node, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Errorf("export: mkdir %s: %w", dir, err)
	}
	for _, dep := range g.GetNodeDependencies(n) {
		depReals := layout.RealsPath(root, dep)
		if depReals == "" {
			continue
		}
		name := filepath.Base(dep.Path)
		linkPath := filepath.Join(dir, name)
		rel, err := filepath.Rel(dir, depReals)
		if err != nil {
			return xerrors.Errorf("export: rel %s -> %s: %w", dir, depReals, err)
		}
		if err := elfpatch.VerifyFarmBasename(dir, name); err == nil {
			continue // already present from a previous export run sharing this dir
		}
		os.Remove(linkPath)
		if err := os.Symlink(rel, linkPath); err != nil {
			return xerrors.Errorf("export: symlink %s -> %s: %w", linkPath, rel, err)
		}
	}
	return nil
}

// verifyFarmComplete is the §4.9 pre-Patch check: every resolved
// dependency n.Analysis reports must actually exist in n's symlink farm
// under its own basename, or the patcher is about to rewrite a
// DT_NEEDED/LC_LOAD_DYLIB entry to reference a symlink that was never
// created. That can only happen if the dependency resolved during
// objfile.Analyze but was never inserted into the graph (e.g. a
// construction failure swallowed elsewhere); it is a fatal error, never
// something patchelf or the loader should have to discover on their own.
func verifyFarmComplete(farmDir string, n *graph.Node) error {
	if n.Analysis == nil {
		return nil
	}
	for _, need := range n.Analysis.Needed {
		if need.Resolved == "" {
			continue
		}
		if err := elfpatch.VerifyFarmBasename(farmDir, filepath.Base(need.Resolved)); err != nil {
			return xerrors.Errorf("export: %w", err)
		}
	}
	return nil
}

// destinationPass materializes every node with a destination, then
// re-invokes the patcher on binary destinations (§4.8 step 3).
func (e *Exporter) destinationPass(ctx context.Context, g *graph.Graph, nodes []*graph.Node) error {
	grp, _ := errgroup.WithContext(ctx)
	for _, n := range nodes {
		n := n
		dest := layout.DestinationPath(e.Root, n)
		if dest == "" {
			continue
		}
		grp.Go(func() error {
			return e.placeDestination(ctx, g, n, dest)
		})
	}
	return grp.Wait()
}

func (e *Exporter) placeDestination(ctx context.Context, g *graph.Graph, n *graph.Node, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return xerrors.Errorf("export: mkdir %s: %w", filepath.Dir(dest), err)
	}

	realsPath := layout.RealsPath(e.Root, n)
	if realsPath == "" {
		// Plain roles and MainPyScript: copy bytes directly.
		if err := copyFile(n.Path, dest); err != nil {
			return err
		}
		if n.Role.Kind == graph.RolePlainPyBinaryFile {
			if err := addShebangAndMode(dest); err != nil {
				return err
			}
		}
		return nil
	}

	rel, err := filepath.Rel(filepath.Dir(dest), realsPath)
	if err != nil {
		return xerrors.Errorf("export: rel %s -> %s: %w", dest, realsPath, err)
	}
	os.Remove(dest)
	if err := os.Symlink(rel, dest); err != nil {
		return xerrors.Errorf("export: symlink %s -> %s: %w", dest, rel, err)
	}
	if n.Role.Kind == graph.RoleBinaryInPath {
		if err := os.Chmod(realsPath, 0o755); err != nil {
			return xerrors.Errorf("export: chmod %s: %w", realsPath, err)
		}
	}
	for _, aux := range layout.AuxiliarySymlinks(e.Root, n) {
		os.Remove(aux)
		auxRel, err := filepath.Rel(filepath.Dir(aux), realsPath)
		if err != nil {
			return xerrors.Errorf("export: rel %s -> %s: %w", aux, realsPath, err)
		}
		if err := os.Symlink(auxRel, aux); err != nil {
			return xerrors.Errorf("export: symlink %s -> %s: %w", aux, auxRel, err)
		}
	}

	farmDir := layout.SymlinkFarmPath(e.Root, n)
	if err := verifyFarmComplete(farmDir, n); err != nil {
		return err
	}
	relToFarm, err := filepath.Rel(filepath.Dir(dest), farmDir)
	if err != nil {
		return xerrors.Errorf("export: rel %s -> %s: %w", dest, farmDir, err)
	}
	return e.Patcher.Patch(ctx, realsPath, relToFarm, n)
}

const pyShebang = "#!/usr/bin/env python3\n"
const bashShebang = "#!/usr/bin/env bash\n"

func addShebangAndMode(path string) error {
	ext := filepath.Ext(path)
	shebang := bashShebang
	if ext == ".py" {
		shebang = pyShebang
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Errorf("export: read %s: %w", path, err)
	}
	if err := renameio.WriteFile(path, append([]byte(shebang), contents...), 0o755); err != nil {
		return xerrors.Errorf("export: write %s: %w", path, err)
	}
	return nil
}

// copyFile copies src to dest atomically, creating dest's parent
// directories and replacing any existing file there (§4.8 step 1).
func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return xerrors.Errorf("export: mkdir %s: %w", filepath.Dir(dest), err)
	}
	in, err := os.Open(src)
	if err != nil {
		return xerrors.Errorf("export: open %s: %w", src, err)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return xerrors.Errorf("export: stat %s: %w", src, err)
	}

	t, err := renameio.TempFile("", dest)
	if err != nil {
		return xerrors.Errorf("export: tempfile for %s: %w", dest, err)
	}
	defer t.Cleanup()

	if _, err := io.Copy(t, in); err != nil {
		return xerrors.Errorf("export: copy %s -> %s: %w", src, dest, err)
	}
	if err := t.Chmod(fi.Mode().Perm()); err != nil {
		return xerrors.Errorf("export: chmod %s: %w", dest, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("export: replace %s: %w", dest, err)
	}
	return nil
}

// linuxPatcher adapts elfpatch.Patcher to the Patcher interface.
type linuxPatcher struct {
	p *elfpatch.Patcher
}

func (l *linuxPatcher) Patch(ctx context.Context, realsPath, relToFarm string, n *graph.Node) error {
	if n.Analysis == nil || len(n.Analysis.Needed) == 0 {
		return nil
	}
	farmBasename := func(resolvedPath string) string { return filepath.Base(resolvedPath) }
	deps := elfpatch.DependenciesFor(n.Analysis, farmBasename)
	return l.p.Patch(ctx, realsPath, len(n.Analysis.RPath) > 0, relToFarm, deps)
}

// darwinPatcher adapts machopatch to the Patcher interface.
type darwinPatcher struct{}

func (d *darwinPatcher) Patch(ctx context.Context, realsPath, relToFarm string, n *graph.Node) error {
	if n.Analysis == nil || len(n.Analysis.Needed) == 0 {
		return nil
	}
	rewrites := make([]machopatch.Rewrite, 0, len(n.Analysis.Needed))
	for _, need := range n.Analysis.Needed {
		if need.Resolved == "" {
			continue
		}
		rewrites = append(rewrites, machopatch.Rewrite{OriginalName: need.Name, NewBasename: filepath.Base(need.Resolved)})
	}
	return machopatch.Patch(realsPath, rewrites, relToFarm)
}

// bumpRlimitNOFILE raises RLIMIT_NOFILE to its hard limit before a large
// parallel export, mirroring the teacher's bumpRlimitNOFILE
// (cmd/distri/distri.go) so a wide errgroup fan-out opening many files
// concurrently does not hit the default per-process file-descriptor cap.
func bumpRlimitNOFILE() error {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		return err
	}
	rlimit.Cur = rlimit.Max
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rlimit)
}
