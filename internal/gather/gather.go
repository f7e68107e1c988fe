// Package gather implements §4.5: populating a graph.Graph from a
// manifest.Manifest in a fixed order, with a failure-retry fixpoint for
// the passes whose dependency resolution can only complete once later
// insertions have populated known_libs.
package gather

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/shenzi-pack/shenzi/internal/graph"
	"github.com/shenzi-pack/shenzi/internal/manifest"
	"github.com/shenzi-pack/shenzi/internal/objfile"
	"github.com/shenzi-pack/shenzi/internal/pathutil"
	"github.com/shenzi-pack/shenzi/internal/sitepkgs"
)

// ErrDepResolutionStalled is returned when the retry fixpoint's failure
// list stops shrinking before it empties (§4.5 Retry fixpoint, §7
// DepResolutionStalled).
var ErrDepResolutionStalled = errors.New("gather: dependency resolution stalled")

// MarkerFile is the sentinel that causes a directory subtree to be
// skipped wholesale (§4.5 step 8), preventing a previously generated
// dist from being re-ingested.
const MarkerFile = "SHENZI_MARKER"

// Warning is a non-fatal observation surfaced out of band from a
// gather run (§3 Warning).
type Warning struct {
	objfile.DependencyNotFound
}

// MissingBin records a manifest.bins entry that did not resolve to a
// file on disk (§4.5 step 4: "a log warning, not an error").
type MissingBin struct {
	Path string
}

// Result is everything Run produces: the populated graph plus the
// warnings accumulated along the way.
type Result struct {
	Graph       *graph.Graph
	Warnings    []Warning
	MissingBins []MissingBin
	SitePkgs    *sitepkgs.SitePkgs
}

// Gatherer orchestrates §4.5's fixed execution order.
type Gatherer struct {
	m       *manifest.Manifest
	factory *graph.Factory
	g       *graph.Graph

	env              []string
	extraSearchPaths []string
	warnings         []Warning
	missingBins      []MissingBin
	sitePkgs         *sitepkgs.SitePkgs
}

// New constructs a Gatherer for m. No work happens until Run is called.
func New(m *manifest.Manifest) *Gatherer {
	env := make([]string, 0, len(m.Env))
	for k, v := range m.Env {
		env = append(env, k+"="+v)
	}
	return &Gatherer{
		m:   m,
		env: env,
		g:   graph.New(),
	}
}

func (gt *Gatherer) objContext(knownLibs map[string]string) *objfile.Context {
	return &objfile.Context{
		InterpreterPath:  gt.m.Python.Sys.Executable,
		Env:              gt.env,
		KnownLibs:        knownLibs,
		ExtraSearchPaths: gt.extraSearchPaths,
	}
}

func (gt *Gatherer) recordWarnings(n *graph.Node) {
	for _, w := range n.Warnings {
		gt.warnings = append(gt.warnings, Warning{w})
	}
}

// Run executes the fixed order (§4.5 steps 1-8) and the retry fixpoint,
// returning the populated graph and accumulated warnings.
func (gt *Gatherer) Run() (*Result, error) {
	gt.factory = graph.NewFactory(&graph.FactoryContext{
		InterpreterPath: gt.m.Python.Sys.Executable,
		Env:             gt.env,
		SkipPrefixes:    gt.m.Skip.Prefixes,
		SkipLibs:        gt.m.Skip.Libs,
	})

	// Step 1-2: interpreter executable and its transitive tree. Must
	// never fail; a failure here is fatal to the whole run.
	interp, err := gt.factory.NewExecutable(gt.m.Python.Sys.Executable, gt.objContext(nil))
	if err != nil {
		return nil, xerrors.Errorf("gather: interpreter: %w", err)
	}
	if err := gt.g.AddTree(interp, gt.factory, gt.g.KnownLibs(), true, nil); err != nil {
		return nil, xerrors.Errorf("gather: interpreter tree: %w", err)
	}
	gt.recordWarnings(interp)
	gt.extraSearchPaths = interp.Analysis.SearchPaths()

	// Step 3: manifest.loads, in order. Must not fail.
	for _, l := range gt.m.Loads {
		if err := gt.addLoad(l); err != nil {
			return nil, xerrors.Errorf("gather: load %s: %w", l.Path, err)
		}
	}

	// Step 4: manifest.bins. Missing entries are a log warning only.
	for _, b := range gt.m.Bins {
		resolved, ok := gt.resolveBin(b.Path)
		if !ok {
			gt.missingBins = append(gt.missingBins, MissingBin{Path: b.Path})
			continue
		}
		node, err := gt.factory.NewBinaryInPath(resolved, gt.objContext(gt.g.KnownLibs()))
		if err != nil {
			return nil, xerrors.Errorf("gather: bin %s: %w", resolved, err)
		}
		if node == nil {
			continue
		}
		if err := gt.g.AddTree(node, gt.factory, gt.g.KnownLibs(), true, gt.extraSearchPaths); err != nil {
			return nil, xerrors.Errorf("gather: bin tree %s: %w", resolved, err)
		}
		gt.recordWarnings(node)
	}

	// Steps 5-6: exec_prefix/lib-dynload and prefix/stdlib, with
	// retryable failures.
	var failures []retryItem
	libDynLoad := filepath.Join(gt.m.Python.Sys.ExecPrefix, gt.m.Python.Sys.PlatLibDir,
		pyDirName(gt.m.Python.Sys.Version), "lib-dynload")
	failures = append(failures, gt.walkPrefixTree(libDynLoad, true)...)

	stdlib := filepath.Join(gt.m.Python.Sys.Prefix, gt.m.Python.Sys.PlatLibDir,
		pyDirName(gt.m.Python.Sys.Version))
	failures = append(failures, gt.walkPrefixTree(stdlib, false)...)

	// Step 7: site-packages roots.
	sitePkgsFailures, err := gt.addSitePackages()
	if err != nil {
		return nil, xerrors.Errorf("gather: site-packages: %w", err)
	}
	failures = append(failures, sitePkgsFailures...)

	if err := gt.runFixpoint(failures); err != nil {
		return nil, err
	}

	// The main script only gets its own MainPyScript node when it wasn't
	// already picked up as a SitePackagesPlain/Binary file during step 7
	// (§3 MainPyScript: "the application entry point when it lives
	// outside any site-packages root").
	if _, already := gt.g.GetNodeByPath(pathutil.Normalize(gt.m.Python.Main)); !already {
		mainNode, err := gt.factory.NewMainPyScript(gt.m.Python.Main)
		if err != nil {
			return nil, xerrors.Errorf("gather: main script: %w", err)
		}
		if err := gt.g.AddTree(mainNode, gt.factory, gt.g.KnownLibs(), false, nil); err != nil {
			return nil, xerrors.Errorf("gather: main script tree: %w", err)
		}
	}

	return &Result{Graph: gt.g, Warnings: gt.warnings, MissingBins: gt.missingBins, SitePkgs: gt.sitePkgs}, nil
}

func (gt *Gatherer) addLoad(l manifest.LoadEntry) error {
	ctx := gt.objContext(gt.g.KnownLibs())
	var node *graph.Node
	var err error
	switch l.Kind {
	case manifest.LoadDlopen:
		node, err = gt.factory.NewBinaryInLDPath(l.Path, l.Symlinks, ctx)
	case manifest.LoadExtension:
		node, err = gt.factory.NewDependencyNode(l.Path, ctx)
	default:
		return xerrors.Errorf("gather: unknown load kind %q", l.Kind)
	}
	if err != nil {
		return err
	}
	if node == nil {
		return nil
	}
	if err := gt.g.AddTree(node, gt.factory, gt.g.KnownLibs(), true, gt.extraSearchPaths); err != nil {
		return err
	}
	gt.recordWarnings(node)
	return nil
}

// resolveBin implements §4.5 step 4's bin resolution: absolute paths
// are used as-is, bare names are looked up against env.PATH.
func (gt *Gatherer) resolveBin(path string) (string, bool) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			return "", false
		}
		return path, true
	}
	for _, dir := range strings.Split(gt.m.Env["PATH"], ":") {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, path)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

func pyDirName(v manifest.PythonVersion) string {
	return "python" + uitoa(v.Major) + "." + uitoa(v.Minor) + v.ABIThread
}

func uitoa(n uint32) string {
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
