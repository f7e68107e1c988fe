// Command shenzi implements §6's CLI surface: "build <manifest>
// [--skip-warning-checks]" gathers a Python process's on-disk
// dependency closure from a manifest and materializes a relocatable
// copy of it under ./dist. "init" is additive tooling (not in spec.md)
// that writes a shenzi_workspace.toml sidecar build later reads to
// derive manifest.Python.AllowedPackages from a poetry.lock.
package main

import (
	"fmt"
	"os"

	shenzi "github.com/shenzi-pack/shenzi"
)

func funcmain() error {
	args := os.Args[1:]
	verb := "build"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	switch verb {
	case "build":
		ctx, canc := shenzi.InterruptibleContext()
		defer canc()
		if err := cmdBuild(ctx, args); err != nil {
			shenzi.RunAtExit() // still clean up; the build error is what is reported
			return fmt.Errorf("build: %v", err)
		}
	case "init":
		if err := cmdInit(); err != nil {
			return fmt.Errorf("init: %v", err)
		}
	case "help", "-help", "--help":
		fmt.Fprintf(os.Stderr, "shenzi build [-skip-warning-checks] <manifest>\n")
		fmt.Fprintf(os.Stderr, "shenzi init\n")
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: shenzi build [-skip-warning-checks] <manifest>\n")
		os.Exit(2)
	}

	return shenzi.RunAtExit()
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
