package elfpatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shenzi-pack/shenzi/internal/objfile"
)

func TestPatchNoopWithoutDependencies(t *testing.T) {
	p := New("/nonexistent/patchelf")
	if err := p.Patch(context.Background(), "/nonexistent/binary", false, "../symlinks/x", nil); err != nil {
		t.Errorf("Patch with no deps = %v, want nil without invoking the helper", err)
	}
}

func TestVerifyFarmBasenamePresentAndMissing(t *testing.T) {
	dir := t.TempDir()
	if err := os.Symlink("/dev/null", filepath.Join(dir, "libbar.so")); err != nil {
		t.Fatal(err)
	}

	if err := VerifyFarmBasename(dir, "libbar.so"); err != nil {
		t.Errorf("VerifyFarmBasename(present) = %v, want nil", err)
	}
	if err := VerifyFarmBasename(dir, "libmissing.so"); err == nil {
		t.Error("VerifyFarmBasename(missing) = nil, want error")
	}
}

func TestDependenciesForSkipsUnresolvedAndMapsBasenames(t *testing.T) {
	a := &objfile.Analysis{
		Needed: []objfile.NeededEntry{
			{Name: "libbar.so", Resolved: "/reals/ab/cd/libbar.so"},
			{Name: "libmissing.so", Resolved: ""},
			{Name: "libbaz.so.1", Resolved: "/reals/ef/gh/libbaz.so.1"},
		},
	}
	got := DependenciesFor(a, filepath.Base)
	want := []Dependency{
		{Name: "libbar.so", FarmBasename: "libbar.so"},
		{Name: "libbaz.so.1", FarmBasename: "libbaz.so.1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DependenciesFor mismatch (-want +got):\n%s", diff)
	}
}
