package gather

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/shenzi-pack/shenzi/internal/sitepkgs"
)

// normalizePackageName implements §4.5's "Normalization of allowed
// packages": replace each of -, _, . with _ and lowercase.
func normalizePackageName(name string) string {
	name = strings.ToLower(name)
	return strings.NewReplacer("-", "_", ".", "_").Replace(name)
}

// distInfoName splits a "NAME-VERSION.dist-info" directory name into
// NAME and VERSION. It requires exactly one hyphen in the part before
// ".dist-info", per §4.5 step 7; any other shape is not a dist-info
// directory shenzi recognizes.
func distInfoName(entry string) (name, version string, ok bool) {
	const suffix = ".dist-info"
	if !strings.HasSuffix(entry, suffix) {
		return "", "", false
	}
	stem := strings.TrimSuffix(entry, suffix)
	idx := strings.Index(stem, "-")
	if idx < 0 || strings.Count(stem, "-") != 1 {
		return "", "", false
	}
	return stem[:idx], stem[idx+1:], true
}

// addSitePackages implements §4.5 step 7 for every top-level
// site-packages root resolved by internal/sitepkgs.
func (gt *Gatherer) addSitePackages() ([]retryItem, error) {
	sp := sitepkgs.Resolve(
		gt.m.Python.Sys.Path,
		gt.m.Python.Sys.Prefix,
		gt.m.Python.Sys.ExecPrefix,
		gt.m.Python.Sys.PlatLibDir,
		sitepkgs.Version{
			Major:     gt.m.Python.Sys.Version.Major,
			Minor:     gt.m.Python.Sys.Version.Minor,
			ABIThread: gt.m.Python.Sys.Version.ABIThread,
		},
	)
	gt.sitePkgs = sp

	allowed := make(map[string]bool, len(gt.m.Python.AllowedPackages))
	for _, p := range gt.m.Python.AllowedPackages {
		allowed[normalizePackageName(p)] = true
	}

	var items []retryItem
	for _, root := range sp.Roots {
		rootItems, err := gt.addSitePackagesRoot(root, sp.Alias[root], allowed)
		if err != nil {
			return nil, err
		}
		items = append(items, rootItems...)
	}
	return items, nil
}

func (gt *Gatherer) addSitePackagesRoot(root, alias string, allowed map[string]bool) ([]retryItem, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil // root vanished between resolution and walk: nothing to add
	}
	if hasMarker(root) {
		return nil, nil
	}

	included := make(map[string]bool)
	var items []retryItem

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name, _, ok := distInfoName(e.Name())
		if !ok {
			continue
		}
		if !allowed[normalizePackageName(name)] {
			continue
		}
		distInfoDir := filepath.Join(root, e.Name())
		recordPaths, err := parseRecord(filepath.Join(distInfoDir, "RECORD"), root)
		if err != nil {
			continue // RECORD missing or unreadable: nothing to add for this package
		}
		for _, rel := range recordPaths {
			included[rel] = true
			items = append(items, gt.sitePackagesItem(filepath.Join(root, rel), root, rel, alias))
		}

		consoleScripts, err := parseConsoleScripts(filepath.Join(distInfoDir, "entry_points.txt"))
		if err == nil {
			for _, scriptName := range consoleScripts {
				if recordHasBasename(included, scriptName) {
					continue // already added as a RECORD entry inside the root
				}
				if auxPath, ok := gt.resolveBin(scriptName); ok && !strings.HasPrefix(auxPath, root) {
					items = append(items, gt.auxiliaryBinaryItem(auxPath))
				}
			}
		}
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, _, ok := distInfoName(e.Name()); ok {
			continue
		}
		if !allowed[normalizePackageName(e.Name())] {
			continue
		}
		pkgDir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(pkgDir, "__init__.py")); err != nil {
			continue
		}
		items = append(items, gt.walkSitePackagesDir(pkgDir, root, alias, included)...)
	}

	return items, nil
}

func recordHasBasename(included map[string]bool, basename string) bool {
	for rel := range included {
		if filepath.Base(rel) == basename {
			return true
		}
	}
	return false
}

func (gt *Gatherer) walkSitePackagesDir(dir, root, alias string, included map[string]bool) []retryItem {
	var items []retryItem
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if hasMarker(path) {
				continue
			}
			items = append(items, gt.walkSitePackagesDir(path, root, alias, included)...)
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || included[rel] {
			continue
		}
		included[rel] = true
		items = append(items, gt.sitePackagesItem(path, root, rel, alias))
	}
	return items
}

func (gt *Gatherer) sitePackagesItem(path, root, rel, alias string) retryItem {
	return retryItem{
		path: path,
		add: func(knownLibs map[string]string, replace bool) error {
			node, err := gt.factory.NewSitePackagesFile(path, root, alias, gt.objContext(knownLibs))
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
	}
}

func (gt *Gatherer) auxiliaryBinaryItem(path string) retryItem {
	return retryItem{
		path: path,
		add: func(knownLibs map[string]string, replace bool) error {
			node, err := gt.factory.NewPlainPyBinaryFile(path, gt.objContext(knownLibs))
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
	}
}

// parseRecord reads a dist-info RECORD file (CSV-like: the first
// comma-separated field of each line is a path relative to root) and
// returns the relative paths that exist and lie under root (§4.5 step 7).
func parseRecord(recordPath, root string) ([]string, error) {
	f, err := os.Open(recordPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := strings.Index(line, ",")
		rel := line
		if idx >= 0 {
			rel = line[:idx]
		}
		if rel == "" || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			continue
		}
		full := filepath.Join(root, rel)
		if !strings.HasPrefix(full, root) {
			continue
		}
		if fi, err := os.Stat(full); err == nil && !fi.IsDir() {
			out = append(out, rel)
		}
	}
	return out, scanner.Err()
}

// parseConsoleScripts reads the [console_scripts] section of a
// dist-info's entry_points.txt and returns the script names declared
// there (the key on the left of each "name = module:func" line).
func parseConsoleScripts(path string) ([]string, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	section, err := cfg.GetSection("console_scripts")
	if err != nil {
		return nil, err
	}
	keys := section.Keys()
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.Name())
	}
	return names, nil
}
