// Package manifest decodes the JSON manifest describing an observed
// Python process (§6 EXTERNAL INTERFACES). Manifest file I/O and the
// process that produces the manifest are out of scope; this package's
// only job is the decode contract.
package manifest

import (
	"encoding/json"
	"io"
	"os"

	"golang.org/x/xerrors"
)

// LoadKind discriminates a manifest.loads entry.
type LoadKind string

const (
	LoadDlopen    LoadKind = "dlopen"
	LoadExtension LoadKind = "extension"
)

// LoadEntry is one manifest.loads entry (§4.5 step 3).
type LoadEntry struct {
	Kind     LoadKind `json:"kind"`
	Path     string   `json:"path"`
	Symlinks []string `json:"symlinks"`
}

// Lib is a manifest.libs entry. Reserved by §6; the field exists for
// forward-compatible decoding but no component of shenzi reads it yet.
type Lib struct {
	Path string `json:"path"`
}

// Bin is a manifest.bins entry (§4.5 step 4).
type Bin struct {
	Path string `json:"path"`
}

// PythonVersion is the python.sys.version object.
type PythonVersion struct {
	Major     uint32 `json:"major"`
	Minor     uint32 `json:"minor"`
	ABIThread string `json:"abi_thread"`
}

// PythonSys is the python.sys object: the subset of sys.* the manifest
// captured from the observed process.
type PythonSys struct {
	Prefix     string        `json:"prefix"`
	ExecPrefix string        `json:"exec_prefix"`
	PlatLibDir string        `json:"platlibdir"`
	Version    PythonVersion `json:"version"`
	Path       []string      `json:"path"`
	Executable string        `json:"executable"`
}

// Python is the manifest.python object.
type Python struct {
	Sys             PythonSys `json:"sys"`
	Main            string    `json:"main"`
	AllowedPackages []string  `json:"allowed_packages"`
	Cwd             string    `json:"cwd"`
}

// Skip is the manifest.skip object (§4.1, §4.3): literal path prefixes
// and basenames, never glob or gitignore syntax.
type Skip struct {
	Prefixes []string `json:"prefixes"`
	Libs     []string `json:"libs"`
}

// Manifest is the full decoded JSON document (§6).
type Manifest struct {
	Loads  []LoadEntry       `json:"loads"`
	Libs   []Lib             `json:"libs"`
	Bins   []Bin             `json:"bins"`
	Python Python            `json:"python"`
	Env    map[string]string `json:"env"`
	Skip   Skip              `json:"skip"`
}

// Load reads and decodes the manifest at path. path "-" reads from
// standard input (§6).
func Load(path string) (*Manifest, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, xerrors.Errorf("manifest: %w", err)
		}
		defer f.Close()
		r = f
	}
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, xerrors.Errorf("manifest: decode %s: %w", path, err)
	}
	return &m, nil
}
