package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sample = `{
  "loads": [{"kind": "dlopen", "path": "/usr/lib/libfoo.so", "symlinks": ["libfoo.so.1"]}],
  "bins": [{"path": "/usr/bin/git"}],
  "python": {
    "sys": {
      "prefix": "/opt/py",
      "exec_prefix": "/opt/py",
      "platlibdir": "lib",
      "version": {"major": 3, "minor": 11, "abi_thread": ""},
      "path": ["/opt/py/lib/python3.11", "/opt/py/site-packages"],
      "executable": "/opt/py/bin/python3"
    },
    "main": "/app/main.py",
    "allowed_packages": ["requests"],
    "cwd": "/app"
  },
  "env": {"PATH": "/usr/bin"},
  "skip": {"prefixes": ["/opt/py/lib/python3.11/test"], "libs": ["libssl.so"]}
}`

func TestLoadDecodesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := &Manifest{
		Loads: []LoadEntry{{Kind: LoadDlopen, Path: "/usr/lib/libfoo.so", Symlinks: []string{"libfoo.so.1"}}},
		Bins:  []Bin{{Path: "/usr/bin/git"}},
		Python: Python{
			Sys: PythonSys{
				Prefix:     "/opt/py",
				ExecPrefix: "/opt/py",
				PlatLibDir: "lib",
				Version:    PythonVersion{Major: 3, Minor: 11},
				Path:       []string{"/opt/py/lib/python3.11", "/opt/py/site-packages"},
				Executable: "/opt/py/bin/python3",
			},
			Main:            "/app/main.py",
			AllowedPackages: []string{"requests"},
			Cwd:             "/app",
		},
		Env:  map[string]string{"PATH": "/usr/bin"},
		Skip: Skip{Prefixes: []string{"/opt/py/lib/python3.11/test"}, Libs: []string{"libssl.so"}},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("Load() on a missing file: want error, got nil")
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() on malformed JSON: want error, got nil")
	}
}
