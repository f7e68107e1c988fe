package pathutil

import (
	"runtime"
	"testing"
)

func TestNormalizeIdempotent(t *testing.T) {
	for _, p := range []string{
		"/a/b/../c",
		"/a/./b/c",
		"/a//b/c/",
		"relative/../path",
		"/",
		"/a/b/c",
	} {
		t.Run(p, func(t *testing.T) {
			once := Normalize(p)
			twice := Normalize(once)
			if once != twice {
				t.Fatalf("Normalize(%q) = %q, Normalize(that) = %q, want idempotent", p, once, twice)
			}
		})
	}
}

func TestIsPossibleObjectFile(t *testing.T) {
	for _, tt := range []struct {
		path string
		want bool
	}{
		{"/usr/lib/libfoo.so", true},
		{"/usr/lib/libfoo.so.1", true},
		{"/usr/lib/libfoo.so.1.2.3", true},
		{"/usr/lib/libfoo.dylib", true},
		{"/app/foo/_impl.so", true},
		{"/app/foo/bar.py", false},
		{"/app/foo/README", false},
		{"/app/foo/libfoo.sox", false},
	} {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsPossibleObjectFile(tt.path); got != tt.want {
				t.Errorf("IsPossibleObjectFile(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsSystemLibraryLinux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux-specific system library rules")
	}
	for _, tt := range []struct {
		path string
		want bool
	}{
		{"/lib/x86_64-linux-gnu/libc.so.6", true},
		{"/lib/x86_64-linux-gnu/libpthread.so.0", true},
		{"/usr/lib/libfoo.so.1", false},
	} {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsSystemLibrary(tt.path); got != tt.want {
				t.Errorf("IsSystemLibrary(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
