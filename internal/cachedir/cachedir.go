// Package cachedir locates the per-user cache directory used to store the
// downloaded patchelf helper (see internal/patchelf).
package cachedir

import (
	"os"
	"path/filepath"
)

// Dir returns the directory shenzi should cache downloaded helpers in,
// following $XDG_CACHE_HOME, then $HOME/.cache, then /tmp, in that order.
func Dir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "shenzi")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".cache", "shenzi")
	}
	return filepath.Join(os.TempDir(), "shenzi")
}
