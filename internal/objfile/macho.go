package objfile

import (
	"debug/macho"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/mmap"
)

func analyzeMachO(path string, ctx *Context) (*Analysis, []DependencyNotFound, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, nil, ErrNotBinary
	}
	defer r.Close()

	f, err := macho.NewFile(r)
	if err != nil {
		if fat, ferr := macho.NewFatFile(r); ferr == nil {
			return analyzeFatMachO(path, fat, ctx)
		}
		return nil, nil, ErrNotBinary
	}
	defer f.Close()
	return analyzeMachOFile(path, f, ctx)
}

func analyzeFatMachO(path string, fat *macho.FatFile, ctx *Context) (*Analysis, []DependencyNotFound, error) {
	if len(fat.Arches) == 0 {
		return nil, nil, ErrUnsupportedArchitecture
	}
	// The manifest describes one observed process; a fat binary is
	// analyzed through its first slice, which is the one the host's
	// loader would have picked for this architecture.
	return analyzeMachOFile(path, fat.Arches[0].File, ctx)
}

func analyzeMachOFile(path string, f *macho.File, ctx *Context) (*Analysis, []DependencyNotFound, error) {
	subjectDir := filepath.Dir(path)
	execDir := subjectDir
	if ctx.InterpreterPath != "" {
		execDir = filepath.Dir(ctx.InterpreterPath)
	}

	var rpaths []string
	for _, l := range f.Loads {
		if rp, ok := l.(*macho.Rpath); ok {
			rpaths = append(rpaths, expandMachOToken(rp.Path, execDir, subjectDir))
		}
	}

	var entries []struct {
		name string
		weak bool
	}
	for _, l := range f.Loads {
		dy, ok := l.(*macho.Dylib)
		if !ok {
			continue
		}
		weak := isWeakDylibLoad(dy)
		entries = append(entries, struct {
			name string
			weak bool
		}{dy.Name, weak})
	}

	var warnings []DependencyNotFound
	var out []NeededEntry
	for _, e := range entries {
		resolved := resolveMachODylib(e.name, execDir, subjectDir, rpaths, ctx)
		if resolved == "" {
			if isSystemDylibPath(e.name) {
				continue
			}
			warnings = append(warnings, DependencyNotFound{Name: e.name, ReferencingPath: path})
		}
		out = append(out, NeededEntry{Name: e.name, Resolved: resolved, Weak: e.weak})
	}

	return &Analysis{Kind: KindMachO, Needed: out, RPath: rpaths}, warnings, nil
}

// isWeakDylibLoad distinguishes LC_LOAD_WEAK_DYLIB from LC_LOAD_DYLIB by
// reading the raw load command header debug/macho preserves on every
// Load via LoadBytes.Raw(), since *macho.Dylib does not itself retain
// which of the two command codes produced it.
func isWeakDylibLoad(dy *macho.Dylib) bool {
	raw := dy.Raw()
	if len(raw) < 4 {
		return false
	}
	// The byte order of the raw load command matches the file's own;
	// both little and big endian encodings of LoadCmdLoadWeakDylib share
	// the same low 28 bits, so comparing via either order agrees for the
	// purpose of this flag.
	cmd := binary.LittleEndian.Uint32(raw[0:4])
	return macho.LoadCmd(cmd) == macho.LoadCmdLoadWeakDylib
}

func expandMachOToken(s, execDir, loaderDir string) string {
	switch {
	case strings.HasPrefix(s, "@executable_path"):
		return execDir + strings.TrimPrefix(s, "@executable_path")
	case strings.HasPrefix(s, "@loader_path"):
		return loaderDir + strings.TrimPrefix(s, "@loader_path")
	default:
		return s
	}
}

// resolveMachODylib implements the Mach-O resolution order of §4.2.
func resolveMachODylib(installName, execDir, subjectDir string, rpaths []string, ctx *Context) string {
	switch {
	case strings.HasPrefix(installName, "@executable_path"):
		candidate := execDir + strings.TrimPrefix(installName, "@executable_path")
		if exists(candidate) {
			return candidate
		}
		return fallbackResolve(filepath.Base(installName), ctx)

	case strings.HasPrefix(installName, "@loader_path"):
		candidate := subjectDir + strings.TrimPrefix(installName, "@loader_path")
		if exists(candidate) {
			return candidate
		}
		return fallbackResolve(filepath.Base(installName), ctx)

	case strings.HasPrefix(installName, "@rpath"):
		rel := strings.TrimPrefix(installName, "@rpath")
		for _, rp := range rpaths {
			candidate := rp + rel
			if exists(candidate) {
				return candidate
			}
		}
		return fallbackResolve(filepath.Base(installName), ctx)

	default:
		candidate := installName
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(subjectDir, candidate)
		}
		if exists(candidate) {
			return candidate
		}
		return fallbackResolve(filepath.Base(installName), ctx)
	}
}

func fallbackResolve(basename string, ctx *Context) string {
	if p, ok := ctx.KnownLibs[basename]; ok {
		return p
	}
	if p, ok := searchExisting(ctx.ExtraSearchPaths, basename); ok {
		return p
	}
	return ""
}

func exists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

func isSystemDylibPath(installName string) bool {
	for _, prefix := range []string{
		"/usr/lib/",
		"/System/Library/Frameworks/",
		"/System/Library/PrivateFrameworks/",
	} {
		if strings.HasPrefix(installName, prefix) {
			return true
		}
	}
	return false
}
