// Package patchelf downloads, verifies, and caches the patchelf binary
// helper used by internal/elfpatch (§4.9/§6: "patchelf v0.18.0 (Linux
// only), downloaded on demand").
package patchelf

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"golang.org/x/mod/semver"
	"golang.org/x/xerrors"

	shenzi "github.com/shenzi-pack/shenzi"
	"github.com/shenzi-pack/shenzi/internal/cachedir"
)

// PinnedVersion is the exact patchelf release shenzi downloads and
// verifies against (§6).
const PinnedVersion = "v0.18.0"

// releaseURLs maps the host architectures supported (§4.9) to their
// pinned release asset URL. patchelf publishes statically linked Linux
// binaries per architecture under this release tag.
var releaseURLs = map[string]string{
	"amd64": "https://github.com/NixOS/patchelf/releases/download/0.18.0/patchelf-0.18.0-x86_64.tar.gz",
	"arm64": "https://github.com/NixOS/patchelf/releases/download/0.18.0/patchelf-0.18.0-aarch64.tar.gz",
}

// ErrUnsupportedArch is returned when the host architecture has no
// pinned patchelf release (§7 Unsupported).
var ErrUnsupportedArch = xerrors.New("patchelf: unsupported host architecture")

// Ensure returns the path to a cached, verified patchelf binary for
// goarch, downloading and extracting it into internal/cachedir's
// directory on first use.
func Ensure(ctx context.Context, goarch string) (string, error) {
	url, ok := releaseURLs[goarch]
	if !ok {
		return "", xerrors.Errorf("%w: %s", ErrUnsupportedArch, goarch)
	}

	dir := cachedir.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", xerrors.Errorf("patchelf: mkdir %s: %w", dir, err)
	}
	helperPath := filepath.Join(dir, "patchelf-"+PinnedVersion)

	if _, err := os.Stat(helperPath); err == nil {
		if err := verify(ctx, helperPath); err == nil {
			return helperPath, nil
		}
		// Cached binary failed verification (corrupt download, version
		// drift): re-fetch rather than trusting it.
	}

	if err := download(ctx, url, helperPath); err != nil {
		return "", err
	}
	if err := os.Chmod(helperPath, 0o755); err != nil {
		return "", xerrors.Errorf("patchelf: chmod %s: %w", helperPath, err)
	}
	if err := verify(ctx, helperPath); err != nil {
		return "", err
	}
	return helperPath, nil
}

// verify runs the downloaded helper's --version and checks it reports
// the pinned release, so a stale cache entry or a tampered download is
// never silently trusted.
func verify(ctx context.Context, helperPath string) error {
	out, err := exec.CommandContext(ctx, helperPath, "--version").Output()
	if err != nil {
		return xerrors.Errorf("patchelf: %s --version: %w", helperPath, err)
	}
	reported := parseVersion(string(out))
	if reported == "" {
		return xerrors.Errorf("patchelf: could not parse version from %q", out)
	}
	if semver.Compare("v"+reported, PinnedVersion) != 0 {
		return xerrors.Errorf("patchelf: %s reports version %s, want %s", helperPath, reported, PinnedVersion)
	}
	return nil
}

// parseVersion extracts the dotted version number from patchelf's
// "patchelf 0.18.0" style --version output.
func parseVersion(out string) string {
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return ""
	}
	return strings.TrimSpace(fields[len(fields)-1])
}

// download fetches url, extracts the patchelf binary from the release
// tarball into a scratch file beside dest, and renames it into place on
// success. The scratch file is registered with shenzi.RegisterAtExit so
// a run that fails (or is interrupted) between extraction and rename
// does not leave a stray partial download in the cache directory.
// The archive may be gzip- or zstd-compressed; both are tried in
// sequence since the release asset's exact compression has changed
// across patchelf versions.
func download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return xerrors.Errorf("patchelf: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return xerrors.Errorf("patchelf: download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return xerrors.Errorf("patchelf: download %s: status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.Errorf("patchelf: read %s: %w", url, err)
	}

	tr, err := openArchive(body)
	if err != nil {
		return err
	}

	scratch := dest + ".download"
	shenzi.RegisterAtExit(func() error {
		if _, err := os.Stat(scratch); err == nil {
			return os.Remove(scratch)
		}
		return nil
	})
	if err := extractBinary(tr, scratch); err != nil {
		return err
	}
	if err := os.Rename(scratch, dest); err != nil {
		return xerrors.Errorf("patchelf: rename %s -> %s: %w", scratch, dest, err)
	}
	return nil
}

func openArchive(body []byte) (*tar.Reader, error) {
	if gz, err := pgzip.NewReader(bytes.NewReader(body)); err == nil {
		return tar.NewReader(gz), nil
	}
	zr, err := zstd.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, xerrors.Errorf("patchelf: unrecognized archive compression: %w", err)
	}
	return tar.NewReader(zr.IOReadCloser()), nil
}

func extractBinary(tr *tar.Reader, dest string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return xerrors.New("patchelf: no bin/patchelf entry found in archive")
		}
		if err != nil {
			return xerrors.Errorf("patchelf: read archive entry: %w", err)
		}
		if filepath.Base(hdr.Name) != "patchelf" {
			continue
		}
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
		if err != nil {
			return xerrors.Errorf("patchelf: create %s: %w", dest, err)
		}
		defer f.Close()
		if _, err := io.Copy(f, tr); err != nil {
			return xerrors.Errorf("patchelf: write %s: %w", dest, err)
		}
		return nil
	}
}
