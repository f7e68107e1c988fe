package workspace

import (
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

// poetryLock is the subset of poetry.lock's structure needed to answer
// "which packages belong to an allowed dependency group", grounded on
// original_source's workspace/pylock/poetry.rs.
type poetryLock struct {
	Package []poetryPackage `toml:"package"`
}

type poetryPackage struct {
	Name   string   `toml:"name"`
	Groups []string `toml:"groups"`
}

// poetryDependencies reads configFile (a poetry.lock) and returns the
// names of every package that belongs to at least one of allowedGroups.
func poetryDependencies(configFile string, allowedGroups []string) ([]string, error) {
	if _, err := os.Stat(configFile); err != nil {
		return nil, xerrors.Errorf("workspace: poetry lock file %s does not exist", configFile)
	}
	var lock poetryLock
	if _, err := toml.DecodeFile(configFile, &lock); err != nil {
		return nil, xerrors.Errorf("workspace: decode %s: %w", configFile, err)
	}

	allowed := make(map[string]bool, len(allowedGroups))
	for _, g := range allowedGroups {
		allowed[g] = true
	}

	var out []string
	for _, pkg := range lock.Package {
		if anyGroupAllowed(pkg.Groups, allowed) {
			out = append(out, pkg.Name)
		}
	}
	return out, nil
}

func anyGroupAllowed(groups []string, allowed map[string]bool) bool {
	for _, g := range groups {
		if allowed[g] {
			return true
		}
	}
	return false
}
