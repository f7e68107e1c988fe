package gather

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizePackageName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Flask", "flask"},
		{"zope.interface", "zope_interface"},
		{"PyYAML-extras", "pyyaml_extras"},
		{"already_normal", "already_normal"},
	}
	for _, c := range cases {
		if got := normalizePackageName(c.in); got != c.want {
			t.Errorf("normalizePackageName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDistInfoName(t *testing.T) {
	cases := []struct {
		entry                string
		wantName, wantVer    string
		wantOK               bool
	}{
		{"flask-2.1.0.dist-info", "flask", "2.1.0", true},
		{"zope.interface-5.4.0.dist-info", "zope.interface", "5.4.0", true},
		{"not-a-distinfo-dir", "", "", false},
		{"a-b-c.dist-info", "", "", false}, // two hyphens in stem
		{"onlyname.dist-info", "", "", false},
	}
	for _, c := range cases {
		name, ver, ok := distInfoName(c.entry)
		if ok != c.wantOK {
			t.Errorf("distInfoName(%q) ok = %v, want %v", c.entry, ok, c.wantOK)
			continue
		}
		if ok && (name != c.wantName || ver != c.wantVer) {
			t.Errorf("distInfoName(%q) = (%q, %q), want (%q, %q)", c.entry, name, ver, c.wantName, c.wantVer)
		}
	}
}

func TestParseRecordFiltersUnsafeAndMissing(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	realFile := filepath.Join(root, "pkg", "mod.py")
	if err := os.WriteFile(realFile, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	record := filepath.Join(root, "RECORD")
	contents := "pkg/mod.py,sha256=abc,123\n" +
		"../outside.py,sha256=abc,1\n" +
		"pkg/missing.py,sha256=abc,1\n" +
		"\n"
	if err := os.WriteFile(record, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := parseRecord(record, root)
	if err != nil {
		t.Fatalf("parseRecord: %v", err)
	}
	want := []string{"pkg/mod.py"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseRecord mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConsoleScripts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entry_points.txt")
	contents := "[console_scripts]\n" +
		"mytool = mypkg.cli:main\n" +
		"othertool = mypkg.cli:other\n\n" +
		"[other_section]\n" +
		"ignored = 1\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := parseConsoleScripts(path)
	if err != nil {
		t.Fatalf("parseConsoleScripts: %v", err)
	}
	want := []string{"mytool", "othertool"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseConsoleScripts mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConsoleScriptsMissingSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entry_points.txt")
	if err := os.WriteFile(path, []byte("[other_section]\nkey = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := parseConsoleScripts(path); err == nil {
		t.Fatal("expected an error when [console_scripts] is absent")
	}
}
