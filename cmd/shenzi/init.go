package main

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/xerrors"

	"github.com/shenzi-pack/shenzi/internal/workspace"
)

// cmdInit implements the SUPPLEMENTED FEATURES "shenzi init" wizard:
// an interactive prompt sequence that writes shenzi_workspace.toml,
// adapted from original_source's cli/init.rs and workspace/packaging.rs.
// Only poetry packaging is supported, matching the original.
func cmdInit() error {
	r := bufio.NewReader(os.Stdin)

	kind, err := workspace.Ask(r, os.Stdout, "What type of packaging tool do you use? (poetry)", "poetry")
	if err != nil {
		return xerrors.Errorf("init: %w", err)
	}
	if kind != "poetry" {
		return xerrors.Errorf("init: unsupported packaging tool %q, only poetry is supported", kind)
	}

	lockPath, err := workspace.Ask(r, os.Stdout,
		"Path to the lock file relative to the current directory (default: poetry.lock)", "poetry.lock")
	if err != nil {
		return xerrors.Errorf("init: %w", err)
	}
	if _, err := os.Stat(lockPath); err != nil {
		return xerrors.Errorf("init: lock file %s does not exist", lockPath)
	}

	groups, err := workspace.AskGroups(r, os.Stdout)
	if err != nil {
		return xerrors.Errorf("init: %w", err)
	}

	mainFile, err := workspace.Ask(r, os.Stdout, "Path to the main file that should run in the generated application?", "")
	if err != nil {
		return xerrors.Errorf("init: %w", err)
	}
	if _, err := os.Stat(mainFile); err != nil {
		return xerrors.Errorf("init: main file %s does not exist", mainFile)
	}

	w := &workspace.Workspace{
		Packaging: workspace.Packaging{
			Kind:   "poetry",
			Poetry: workspace.PoetryPackaging{ConfigFile: lockPath, Groups: groups},
		},
		Execution: workspace.Execution{Main: mainFile},
	}
	if err := workspace.Save(workspace.FileName, w); err != nil {
		return xerrors.Errorf("init: %w", err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", workspace.FileName)
	return nil
}
