// Package objfile implements §4.2: given a path, parse it as ELF or
// Mach-O, extract its needed-library names and rpath/runpath/loader
// entries, and resolve each needed name against the platform loader
// search order to a concrete filesystem path.
//
// Parsing uses the standard library's debug/elf and debug/macho packages,
// the same approach the teacher takes in cmd/distri/buildid.go for
// reading a GNU build-id note directly from an ELF file rather than
// shelling out to readelf. No third-party object-file parser in the
// retrieved pack offers more than these two packages already do for the
// subset of load-command/dynamic-tag data shenzi needs.
package objfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// Kind identifies which binary format Analyze recognized.
type Kind int

const (
	KindUnknown Kind = iota
	KindELF
	KindMachO
)

func (k Kind) String() string {
	switch k {
	case KindELF:
		return "elf"
	case KindMachO:
		return "macho"
	default:
		return "unknown"
	}
}

// ErrNotBinary is returned when path does not look like an ELF or Mach-O
// file at all. Callers demote this to treating the node as Plain data
// (§4.2).
var ErrNotBinary = errors.New("objfile: not a recognized object file")

// ErrUnsupportedArchitecture is returned when the file is a recognized
// format but an architecture shenzi's host loader semantics do not cover
// (e.g. a 32-bit Mach-O slice in a fat binary with no compatible slice).
var ErrUnsupportedArchitecture = errors.New("objfile: unsupported architecture")

// NeededEntry is one DT_NEEDED (ELF) or LC_LOAD_DYLIB/LC_LOAD_WEAK_DYLIB
// (Mach-O) entry.
type NeededEntry struct {
	// Name is the raw soname or install name as recorded in the binary.
	// It is retained only so the patcher can rewrite it; all resolution
	// logic uses Resolved.
	Name string
	// Resolved is the absolute path the loader would find for Name, or
	// "" if it could not be resolved (see Warnings).
	Resolved string
	// Weak is true for LC_LOAD_WEAK_DYLIB entries. Always false on ELF.
	Weak bool
}

// Analysis is the parsed, resolved view of a single binary (§3 "Binary
// analysis").
type Analysis struct {
	Kind   Kind
	Needed []NeededEntry
	// RPath holds the subject binary's own rpath/runpath (ELF) or
	// LC_RPATH (Mach-O) entries, with $ORIGIN/@loader_path/@executable_path
	// already expanded against the binary's own path. This is also what
	// paths_to_add_for_next_search (§4.2) returns to the gatherer.
	RPath []string
}

// SearchPaths implements paths_to_add_for_next_search: a node added later
// which is itself searched for by this binary inherits this binary's
// search context.
func (a *Analysis) SearchPaths() []string {
	return a.RPath
}

// DependencyNotFound records a needed-library entry that did not resolve
// to an existing file (§3 Warning, §7 DependencyNotFound).
type DependencyNotFound struct {
	Name            string
	ReferencingPath string
	// ReferencingBuildID is the GNU build-id (see BuildID) of the binary
	// at ReferencingPath, when it has one. Two unrelated binaries on a
	// host are routinely named identically (vendored copies of the same
	// .so basename at different versions); the build-id lets a warning
	// reader tell which actual binary is missing the dependency without
	// re-deriving it from ReferencingPath alone.
	ReferencingBuildID string
}

func (d DependencyNotFound) Error() string {
	msg := "dependency not found: " + d.Name + " (needed by " + d.ReferencingPath + ")"
	if d.ReferencingBuildID != "" {
		msg += " [build-id " + d.ReferencingBuildID + "]"
	}
	return msg
}

// Context carries the information Analyze needs beyond the subject path
// itself: the interpreter binary (for @executable_path), the process
// environment (for LD_LIBRARY_PATH), and the accumulating known-libs
// cache and extra search paths the gatherer threads through §4.5.
type Context struct {
	InterpreterPath  string
	Env              []string
	KnownLibs        map[string]string // basename -> absolute path
	ExtraSearchPaths []string
}

func (c *Context) ldLibraryPath() []string {
	for _, kv := range c.Env {
		if len(kv) > len("LD_LIBRARY_PATH=") && kv[:len("LD_LIBRARY_PATH=")] == "LD_LIBRARY_PATH=" {
			return splitPath(kv[len("LD_LIBRARY_PATH="):])
		}
	}
	return nil
}

func splitPath(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// Analyze parses path as ELF or Mach-O and resolves its dependencies.
// Parse-format errors are reported as ErrNotBinary/ErrUnsupportedArchitecture
// sentinels; unresolved dependencies are returned as warnings, not errors
// (§4.2, §7).
func Analyze(path string, ctx *Context) (*Analysis, []DependencyNotFound, error) {
	magic, err := readMagic(path)
	if err != nil {
		return nil, nil, xerrors.Errorf("objfile: %s: %w", path, err)
	}
	switch {
	case bytes.Equal(magic, []byte("\x7fELF")):
		return analyzeELF(path, ctx)
	case isMachOMagic(magic):
		return analyzeMachO(path, ctx)
	default:
		return nil, nil, ErrNotBinary
	}
}

func readMagic(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var buf [4]byte
	n, err := f.Read(buf[:])
	if err != nil || n < 4 {
		return nil, ErrNotBinary
	}
	return buf[:], nil
}

var machoMagics = [][4]byte{
	{0xfe, 0xed, 0xfa, 0xce}, // 32-bit big endian
	{0xce, 0xfa, 0xed, 0xfe}, // 32-bit little endian
	{0xfe, 0xed, 0xfa, 0xcf}, // 64-bit big endian
	{0xcf, 0xfa, 0xed, 0xfe}, // 64-bit little endian
	{0xca, 0xfe, 0xba, 0xbe}, // fat binary, big endian
	{0xbe, 0xba, 0xfe, 0xca}, // fat binary, little endian
}

func isMachOMagic(magic []byte) bool {
	var m [4]byte
	copy(m[:], magic)
	for _, candidate := range machoMagics {
		if m == candidate {
			return true
		}
	}
	return false
}

// searchExisting joins basename to each directory in dirs, in order, and
// returns the first path that exists as a regular file.
func searchExisting(dirs []string, basename string) (string, bool) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, basename)
		if fi, err := os.Stat(candidate); err == nil && fi.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}
