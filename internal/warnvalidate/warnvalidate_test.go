package warnvalidate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shenzi-pack/shenzi/internal/gather"
	"github.com/shenzi-pack/shenzi/internal/objfile"
)

func TestValidatePromotesFoundWarningsAndRetainsTrulyMissing(t *testing.T) {
	root := t.TempDir()
	libDir := filepath.Join(root, "reals", "ab")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		t.Fatal(err)
	}
	foundPath := filepath.Join(libDir, "libfound.so")
	if err := os.WriteFile(foundPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	warnings := []gather.Warning{
		{DependencyNotFound: objfile.DependencyNotFound{Name: "libfound.so", ReferencingPath: "/app/bin/foo"}},
		{DependencyNotFound: objfile.DependencyNotFound{Name: "libmissing.so.99", ReferencingPath: "/app/bin/foo"}},
	}

	promoted, retained, err := Validate(root, warnings)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(promoted) != 1 || promoted[0].Name != "libfound.so" || promoted[0].FoundAt != foundPath {
		t.Errorf("promoted = %+v, want one entry for libfound.so found at %s", promoted, foundPath)
	}
	if len(retained) != 1 || retained[0].Name != "libmissing.so.99" {
		t.Errorf("retained = %+v, want one entry for libmissing.so.99", retained)
	}
}

func TestValidateIgnoresNonObjectFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "libfound.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	warnings := []gather.Warning{
		{DependencyNotFound: objfile.DependencyNotFound{Name: "libfound.txt", ReferencingPath: "/app/bin/foo"}},
	}
	promoted, retained, err := Validate(root, warnings)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(promoted) != 0 {
		t.Errorf("promoted = %+v, want none (libfound.txt does not match the object-file pattern)", promoted)
	}
	if len(retained) != 1 {
		t.Errorf("retained = %+v, want the one warning unchanged", retained)
	}
}

func TestFormatErrorEmptyAndIncludesBuildID(t *testing.T) {
	if err := FormatError(nil); err != nil {
		t.Errorf("FormatError(nil) = %v, want nil", err)
	}

	promoted := []Promoted{
		{
			Warning: gather.Warning{DependencyNotFound: objfile.DependencyNotFound{
				Name:                "libfound.so",
				ReferencingPath:     "/app/bin/foo",
				ReferencingBuildID:  "deadbeef",
			}},
			FoundAt: "/somewhere/libfound.so",
		},
	}
	err := FormatError(promoted)
	if err == nil {
		t.Fatal("FormatError(non-empty) = nil, want error")
	}
	msg := err.Error()
	for _, want := range []string{"libfound.so", "/app/bin/foo", "[build-id deadbeef]", "/somewhere/libfound.so", "skip.libs"} {
		if !strings.Contains(msg, want) {
			t.Errorf("FormatError message %q does not contain %q", msg, want)
		}
	}
}
