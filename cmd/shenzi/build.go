package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"

	"github.com/shenzi-pack/shenzi/internal/export"
	"github.com/shenzi-pack/shenzi/internal/gather"
	"github.com/shenzi-pack/shenzi/internal/graph"
	"github.com/shenzi-pack/shenzi/internal/launcher"
	"github.com/shenzi-pack/shenzi/internal/layout"
	"github.com/shenzi-pack/shenzi/internal/manifest"
	"github.com/shenzi-pack/shenzi/internal/patchelf"
	"github.com/shenzi-pack/shenzi/internal/pathutil"
	"github.com/shenzi-pack/shenzi/internal/sitepkgs"
	"github.com/shenzi-pack/shenzi/internal/warnvalidate"
	"github.com/shenzi-pack/shenzi/internal/workspace"
)

const distDirName = "dist"

func verbose() bool {
	return isatty.IsTerminal(os.Stderr.Fd())
}

func logf(format string, args ...interface{}) {
	if verbose() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

func cmdBuild(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("build", flag.ExitOnError)
	skipWarningChecks := fset.Bool("skip-warning-checks", false, "skip the filesystem warning-validation sweep after gather")
	debugShell := fset.String("debug-shell", "", "start an interactive shell at the named checkpoint (after-gather, after-export, after-launcher) with SHENZI_DIST set to the in-progress dist directory")
	fset.Parse(args)
	// Flags may come before or after the manifest path.
	var positional []string
	for fset.NArg() > 0 {
		positional = append(positional, fset.Arg(0))
		fset.Parse(fset.Args()[1:])
	}

	if len(positional) != 1 {
		return xerrors.New("usage: shenzi build [-skip-warning-checks] [-debug-shell=<phase>] <manifest>")
	}
	manifestPath := positional[0]

	if _, err := os.Stat(distDirName); err == nil {
		return xerrors.Errorf("refusing to run: %s already exists", distDirName)
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return xerrors.Errorf("manifest: %w", err)
	}
	if err := applyWorkspace(m); err != nil {
		return xerrors.Errorf("workspace: %w", err)
	}

	logf("gathering dependency graph from %s", manifestPath)
	result, err := gather.New(m).Run()
	if err != nil {
		return xerrors.Errorf("gather: %w", err)
	}
	logf("gathered %d nodes, %d missing bins, %d warnings",
		len(result.Graph.IterNodes()), len(result.MissingBins), len(result.Warnings))
	maybeStartDebugShell(*debugShell, "after-gather", distDirName)

	if err := os.MkdirAll(distDirName, 0o755); err != nil {
		return xerrors.Errorf("mkdir %s: %w", distDirName, err)
	}
	if err := os.WriteFile(filepath.Join(distDirName, gather.MarkerFile), nil, 0o644); err != nil {
		return xerrors.Errorf("write marker: %w", err)
	}

	helperPath := ""
	if runtime.GOOS == "linux" {
		helperPath, err = patchelf.Ensure(ctx, runtime.GOARCH)
		if err != nil {
			return xerrors.Errorf("patchelf: %w", err)
		}
	}
	exporter, err := export.New(distDirName, helperPath)
	if err != nil {
		return xerrors.Errorf("export: %w", err)
	}
	logf("exporting dist")
	if err := exporter.Run(ctx, result.Graph); err != nil {
		return xerrors.Errorf("export: %w", err)
	}
	maybeStartDebugShell(*debugShell, "after-export", distDirName)

	if err := writeLauncher(distDirName, m, result.Graph, result.SitePkgs); err != nil {
		return xerrors.Errorf("launcher: %w", err)
	}
	maybeStartDebugShell(*debugShell, "after-launcher", distDirName)

	if err := handleWarnings(distDirName, result.Warnings, *skipWarningChecks); err != nil {
		return err
	}

	return nil
}

// applyWorkspace fills m.Python.AllowedPackages from shenzi_workspace.toml
// when the manifest itself left it empty. A manifest-supplied list
// always wins: the workspace file is a convenience for deriving one,
// not an override.
func applyWorkspace(m *manifest.Manifest) error {
	if len(m.Python.AllowedPackages) > 0 {
		return nil
	}
	w, err := workspace.Load(workspace.FileName)
	if err != nil {
		return err
	}
	if w == nil {
		return nil
	}
	deps, err := w.RequiredDependencies()
	if err != nil {
		return err
	}
	m.Python.AllowedPackages = deps
	logf("derived %d allowed packages from %s", len(deps), workspace.FileName)
	return nil
}

func writeLauncher(root string, m *manifest.Manifest, g *graph.Graph, sp *sitepkgs.SitePkgs) error {
	mainNode, ok := g.GetNodeByPath(pathutil.Normalize(m.Python.Main))
	if !ok {
		return xerrors.Errorf("main script %s not found in graph", m.Python.Main)
	}
	dest := layout.DestinationPath(root, mainNode)
	if dest == "" {
		return xerrors.Errorf("main script %s has no destination", m.Python.Main)
	}
	mainRel, err := filepath.Rel(root, dest)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(root, "bootstrap.sh"), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg := launcher.Config{
		PythonPath:  sp.PythonPath,
		MainRelPath: mainRel,
		Env:         m.Env,
		Darwin:      runtime.GOOS == "darwin",
	}
	return launcher.Render(f, cfg)
}

func handleWarnings(root string, warnings []gather.Warning, skip bool) error {
	if len(warnings) == 0 {
		return nil
	}
	if skip {
		return writeWarningsFile(root, warnings)
	}
	promoted, retained, err := warnvalidate.Validate(root, warnings)
	if err != nil {
		return xerrors.Errorf("warnvalidate: %w", err)
	}
	if err := writeWarningsFile(root, retained); err != nil {
		return err
	}
	return warnvalidate.FormatError(promoted)
}

func writeWarningsFile(root string, warnings []gather.Warning) error {
	if len(warnings) == 0 {
		return nil
	}
	f, err := os.Create(filepath.Join(root, "warnings.txt"))
	if err != nil {
		return err
	}
	defer f.Close()
	for _, w := range warnings {
		if w.ReferencingBuildID != "" {
			fmt.Fprintf(f, "%s [build-id %s]: dependency %q not found\n", w.ReferencingPath, w.ReferencingBuildID, w.Name)
			continue
		}
		fmt.Fprintf(f, "%s: dependency %q not found\n", w.ReferencingPath, w.Name)
	}
	return nil
}
