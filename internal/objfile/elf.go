package objfile

import (
	"debug/elf"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/mmap"
)

var defaultSystemDirs = []string{
	"/lib",
	"/lib64",
	"/usr/lib",
	"/usr/lib64",
	"/lib/x86_64-linux-gnu",
	"/usr/lib/x86_64-linux-gnu",
}

func analyzeELF(path string, ctx *Context) (*Analysis, []DependencyNotFound, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, nil, ErrNotBinary
	}
	defer r.Close()

	f, err := elf.NewFile(r)
	if err != nil {
		return nil, nil, ErrNotBinary
	}
	defer f.Close()

	switch f.Machine {
	case elf.EM_X86_64, elf.EM_AARCH64, elf.EM_386, elf.EM_ARM:
	default:
		return nil, nil, ErrUnsupportedArchitecture
	}

	dir := filepath.Dir(path)
	expandOrigin := func(s string) string {
		return strings.ReplaceAll(s, "$ORIGIN", dir)
	}

	var rpath, runpath []string
	if vals, err := f.DynString(elf.DT_RPATH); err == nil {
		for _, v := range vals {
			for _, p := range strings.Split(v, ":") {
				if p != "" {
					rpath = append(rpath, expandOrigin(p))
				}
			}
		}
	}
	if vals, err := f.DynString(elf.DT_RUNPATH); err == nil {
		for _, v := range vals {
			for _, p := range strings.Split(v, ":") {
				if p != "" {
					runpath = append(runpath, expandOrigin(p))
				}
			}
		}
	}

	needed, err := f.DynString(elf.DT_NEEDED)
	if err != nil {
		// A binary with no dynamic section (e.g. statically linked) has
		// no DT_NEEDED entries; that is not a parse error.
		needed = nil
	}

	ldLibraryPath := ctx.ldLibraryPath()

	var warnings []DependencyNotFound
	var out []NeededEntry
	var buildID string
	var buildIDLoaded bool
	for _, name := range needed {
		resolved := resolveELFNeeded(name, dir, rpath, runpath, ldLibraryPath, ctx)
		if resolved == "" {
			if isSystemSoname(name) {
				// Dropped silently: it will be satisfied by the target
				// host's own system libraries (§4.2 step 6).
				continue
			}
			if !buildIDLoaded {
				buildID, _ = BuildID(path)
				buildIDLoaded = true
			}
			warnings = append(warnings, DependencyNotFound{Name: name, ReferencingPath: path, ReferencingBuildID: buildID})
		}
		out = append(out, NeededEntry{Name: name, Resolved: resolved})
	}

	// Search order for paths_to_add_for_next_search: runpath takes
	// precedence if present, else rpath, matching the precedence used
	// during resolution itself.
	var searchPaths []string
	if len(runpath) > 0 {
		searchPaths = runpath
	} else {
		searchPaths = rpath
	}

	return &Analysis{Kind: KindELF, Needed: out, RPath: searchPaths}, warnings, nil
}

// resolveELFNeeded implements the ELF resolution order of §4.2.
func resolveELFNeeded(name, subjectDir string, rpath, runpath, ldLibraryPath []string, ctx *Context) string {
	if strings.Contains(name, "/") {
		candidate := name
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(subjectDir, candidate)
		}
		if fi, err := os.Stat(candidate); err == nil && fi.Mode().IsRegular() {
			return candidate
		}
		return ""
	}

	var order []string
	if len(runpath) == 0 {
		order = append(order, rpath...)
	}
	order = append(order, ldLibraryPath...)
	order = append(order, runpath...)
	if p, ok := searchExisting(order, name); ok {
		return p
	}

	if p, ok := ctx.KnownLibs[name]; ok {
		return p
	}
	if p, ok := searchExisting(ctx.ExtraSearchPaths, name); ok {
		return p
	}
	// Default system dirs are consulted only to recognize a system
	// library, never to bundle it (§4.2 step 2 last bullet); the caller
	// treats an unresolved-but-system-present name as silently dropped
	// via isSystemSoname, so nothing further is returned here even if
	// found under a system dir — that path is a signal, not a bundle
	// target.
	return ""
}

// isSystemSoname reports whether a bare (slash-free) soname is expected
// to live in the default system library directories already, i.e. is a
// system library per the Linux half of pathutil.IsSystemLibrary plus the
// default search dirs used only for detection (§4.2 step 2).
func isSystemSoname(name string) bool {
	if strings.HasPrefix(name, "libc.so") || strings.HasPrefix(name, "libpthread.so") {
		return true
	}
	for _, dir := range defaultSystemDirs {
		if _, ok := searchExisting([]string{dir}, name); ok {
			return true
		}
	}
	return false
}

// BuildID extracts the .note.gnu.build-id section, used by
// internal/gather to disambiguate identically named libraries in warning
// messages. Grounded in cmd/distri/buildid.go's readBuildid, adapted to
// return a plain hex string without distinguishing error types the
// teacher needed for its debug-symbol splitting pipeline (out of scope
// here, see SPEC_FULL.md's "Supplemented features").
func BuildID(path string) (string, bool) {
	r, err := mmap.Open(path)
	if err != nil {
		return "", false
	}
	defer r.Close()

	f, err := elf.NewFile(r)
	if err != nil {
		return "", false
	}
	defer f.Close()
	sect := f.Section(".note.gnu.build-id")
	if sect == nil {
		return "", false
	}
	data, err := sect.Data()
	if err != nil || len(data) < 16 {
		return "", false
	}
	// ELF note layout: namesz(4) descsz(4) type(4) name(namesz, aligned) desc(descsz).
	nameSz := f.ByteOrder.Uint32(data[0:4])
	descSz := f.ByteOrder.Uint32(data[4:8])
	noteType := f.ByteOrder.Uint32(data[8:12])
	const noteGNUBuildID = 3
	if noteType != noteGNUBuildID {
		return "", false
	}
	nameAligned := (nameSz + 3) &^ 3
	descStart := 12 + int(nameAligned)
	descEnd := descStart + int(descSz)
	if descEnd > len(data) {
		return "", false
	}
	return encodeHex(data[descStart:descEnd]), true
}

func encodeHex(b []byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hex[c>>4]
		out[i*2+1] = hex[c&0xf]
	}
	return string(out)
}
