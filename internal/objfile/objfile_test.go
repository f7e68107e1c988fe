package objfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shenzi-pack/shenzi/internal/objfiletest"
)

func TestAnalyzeELFResolvesViaExtraSearchPaths(t *testing.T) {
	dir := t.TempDir()
	libDir := filepath.Join(dir, "lib")
	if err := os.Mkdir(libDir, 0o755); err != nil {
		t.Fatal(err)
	}
	libPath := filepath.Join(libDir, "libbar.so")
	if err := os.WriteFile(libPath, []byte("not really a library"), 0o644); err != nil {
		t.Fatal(err)
	}

	subject := filepath.Join(dir, "foo.so")
	objfiletest.WriteELF(t, subject, []string{"libbar.so"})

	ctx := &Context{ExtraSearchPaths: []string{libDir}}
	analysis, warnings, err := Analyze(subject, ctx)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v, want none", warnings)
	}
	want := &Analysis{Kind: KindELF, Needed: []NeededEntry{{Name: "libbar.so", Resolved: libPath}}}
	if diff := cmp.Diff(want, analysis); diff != "" {
		t.Errorf("Analyze result mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeELFReportsDependencyNotFound(t *testing.T) {
	dir := t.TempDir()
	subject := filepath.Join(dir, "foo.so")
	objfiletest.WriteELF(t, subject, []string{"libmissing.so.99"})

	ctx := &Context{}
	analysis, warnings, err := Analyze(subject, ctx)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}
	if warnings[0].Name != "libmissing.so.99" {
		t.Errorf("warnings[0].Name = %q, want libmissing.so.99", warnings[0].Name)
	}
	if warnings[0].ReferencingPath != subject {
		t.Errorf("warnings[0].ReferencingPath = %q, want %q", warnings[0].ReferencingPath, subject)
	}
	if len(analysis.Needed) != 1 || analysis.Needed[0].Resolved != "" {
		t.Errorf("analysis.Needed = %+v, want one unresolved entry", analysis.Needed)
	}
}

func TestAnalyzeELFKnownLibsTakesPriorityOverSearchPaths(t *testing.T) {
	dir := t.TempDir()
	subject := filepath.Join(dir, "foo.so")
	objfiletest.WriteELF(t, subject, []string{"libbar.so"})

	known := filepath.Join(dir, "known", "libbar.so")
	if err := os.MkdirAll(filepath.Dir(known), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(known, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	unused := filepath.Join(dir, "unused")
	if err := os.Mkdir(unused, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(unused, "libbar.so"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := &Context{
		KnownLibs:        map[string]string{"libbar.so": known},
		ExtraSearchPaths: []string{unused},
	}
	analysis, _, err := Analyze(subject, ctx)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got := analysis.Needed[0].Resolved; got != known {
		t.Errorf("Resolved = %q, want %q (KnownLibs should win)", got, known)
	}
}

func TestAnalyzeELFRejectsNonBinary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Analyze(path, &Context{}); err != ErrNotBinary {
		t.Errorf("Analyze = %v, want ErrNotBinary", err)
	}
}

func TestBuildIDMissingNoteReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foo.so")
	objfiletest.WriteELF(t, path, nil)

	if _, ok := BuildID(path); ok {
		t.Error("BuildID = ok, want false for a binary with no .note.gnu.build-id section")
	}
}

func TestIsSystemSonameLibc(t *testing.T) {
	if !isSystemSoname("libc.so.6") {
		t.Error("isSystemSoname(libc.so.6) = false, want true")
	}
	if isSystemSoname("libtotallymadeup-shenzi-test.so") {
		t.Error("isSystemSoname(made-up name) = true, want false")
	}
}
