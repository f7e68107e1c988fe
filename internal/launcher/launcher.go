// Package launcher renders the generated bootstrap.sh per §6's Launcher
// contract, using text/template the way the teacher templates its own
// wrapper scripts (internal/build's wrapper-script generation).
package launcher

import (
	"io"
	"text/template"

	"golang.org/x/xerrors"

	"github.com/shenzi-pack/shenzi/internal/sitepkgs"
)

// Config carries everything the template needs to compute SCRIPT_DIR-
// relative paths and reconstruct the interpreter's environment.
type Config struct {
	// PythonPath is the resolved PythonPathComponent list, in original
	// sys.path order.
	PythonPath []sitepkgs.PythonPathComponent
	// MainRelPath is the bundled main script's path relative to the
	// dist root.
	MainRelPath string
	// Env holds manifest-declared environment variables to pass through
	// beyond PATH/LD_LIBRARY_PATH (SPEC_FULL.md "bootstrap.sh
	// environment passthrough").
	Env map[string]string
	// Darwin selects DYLD_LIBRARY_PATH over LD_LIBRARY_PATH.
	Darwin bool
}

type templateData struct {
	PythonPathEntries []string
	MainRelPath       string
	Env               map[string]string
	LibVar            string
	LibVarRef         string
}

// componentPath renders one PythonPathComponent to its SCRIPT_DIR-
// relative path, matching internal/sitepkgs's classification (§4.6).
func componentPath(c sitepkgs.PythonPathComponent) string {
	switch c.Kind {
	case sitepkgs.ComponentRelativeToStdlib:
		if c.RelPath == "." {
			return "python/lib/current"
		}
		return "python/lib/current/" + c.RelPath
	case sitepkgs.ComponentRelativeToLibDynLoad:
		if c.RelPath == "." {
			return "python/lib/current/lib-dynload"
		}
		return "python/lib/current/lib-dynload/" + c.RelPath
	case sitepkgs.ComponentTopLevel:
		return "site_packages/" + c.Alias
	case sitepkgs.ComponentRelativeToSitePkg:
		return "site_packages/" + c.Alias + "/" + c.RelPath
	default:
		return ""
	}
}

const bootstrapTemplate = `#!/usr/bin/env bash
set -euo pipefail

SOURCE="${BASH_SOURCE[0]}"
while [ -h "$SOURCE" ]; do
  DIR="$(cd -P "$(dirname "$SOURCE")" >/dev/null 2>&1 && pwd)"
  SOURCE="$(readlink "$SOURCE")"
  [[ $SOURCE != /* ]] && SOURCE="$DIR/$SOURCE"
done
SCRIPT_DIR="$(cd -P "$(dirname "$SOURCE")" >/dev/null 2>&1 && pwd)"

export {{.LibVar}}="$SCRIPT_DIR/lib/l{{.LibVarRef}}"
export PYTHONPATH="{{range $i, $e := .PythonPathEntries}}{{if $i}}:{{end}}$SCRIPT_DIR/{{$e}}{{end}}${PYTHONPATH:+:$PYTHONPATH}"
{{range $k, $v := .Env}}export {{$k}}={{$v | printf "%q"}}
{{end}}
cd "$(dirname "$SCRIPT_DIR/{{.MainRelPath}}")"
exec "$SCRIPT_DIR/python/bin/python" "$SCRIPT_DIR/{{.MainRelPath}}" "$@"
`

var parsed = template.Must(template.New("bootstrap").Parse(bootstrapTemplate))

// Render writes the bootstrap.sh script to w.
func Render(w io.Writer, cfg Config) error {
	entries := make([]string, 0, len(cfg.PythonPath))
	for _, c := range cfg.PythonPath {
		if p := componentPath(c); p != "" {
			entries = append(entries, p)
		}
	}
	libVar := "LD_LIBRARY_PATH"
	if cfg.Darwin {
		libVar = "DYLD_LIBRARY_PATH"
	}
	env := make(map[string]string, len(cfg.Env))
	for k, v := range cfg.Env {
		switch k {
		case "PATH", "LD_LIBRARY_PATH", "DYLD_LIBRARY_PATH":
			continue
		}
		env[k] = v
	}
	data := templateData{
		PythonPathEntries: entries,
		MainRelPath:       cfg.MainRelPath,
		Env:               env,
		LibVar:            libVar,
		LibVarRef:         "${" + libVar + ":+:$" + libVar + "}",
	}
	if err := parsed.Execute(w, data); err != nil {
		return xerrors.Errorf("launcher: render bootstrap.sh: %w", err)
	}
	return nil
}
