// Package pathutil implements §4.1: path normalization without touching
// the filesystem, and two small classifiers: whether a path's name looks
// like an object file (used by internal/warnvalidate's sweep) and
// whether it must never be bundled.
package pathutil

import (
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/yookoala/realpath"
)

// Normalize resolves "." and ".." components lexically, without touching
// the filesystem, preserving the leading "/" (or volume name on Windows,
// though shenzi only targets Linux/macOS per §1 Non-goals). It is
// idempotent: Normalize(Normalize(p)) == Normalize(p).
func Normalize(p string) string {
	return filepath.Clean(p)
}

// Realpath resolves p through any symlinks to the file that will actually
// be read and content-addressed. Unlike Normalize it touches the
// filesystem; the graph factory calls it on a candidate path that Lstat
// found to be a symlink, to check that the link resolves, mirroring the
// teacher's inline
// filepath.EvalSymlinks call in findShlibDeps (internal/build/shlibdeps.go)
// but via the ecosystem realpath package so relative symlink chains and
// "file does not exist" are handled uniformly.
func Realpath(p string) (string, error) {
	return realpath.Realpath(p)
}

var soRe = regexp.MustCompile(`\.so(\.[\w.]*)?$`)

// IsPossibleObjectFile reports whether p's name looks like it could be a
// native object file worth analyzing: a Mach-O dylib, or an ELF shared
// object (optionally versioned, e.g. libfoo.so.1.2.3).
func IsPossibleObjectFile(p string) bool {
	base := filepath.Base(p)
	if strings.HasSuffix(base, ".dylib") {
		return true
	}
	return soRe.MatchString(base)
}

var macSystemPrefixes = []string{
	"/usr/lib/",
	"/System/Library/Frameworks/",
	"/System/Library/PrivateFrameworks/",
}

// IsSystemLibrary reports whether p identifies a library that is always
// present on a compatible host and must never be copied into the dist
// (§4.1). Cross-compilation is out of scope (§1 Non-goals), so the
// classification rule for the build host's own GOOS is the only one that
// applies.
func IsSystemLibrary(p string) bool {
	if runtime.GOOS == "darwin" {
		for _, prefix := range macSystemPrefixes {
			if strings.HasPrefix(p, prefix) {
				return true
			}
		}
		return false
	}
	base := filepath.Base(p)
	return strings.HasPrefix(base, "libc.so") || strings.HasPrefix(base, "libpthread.so")
}
