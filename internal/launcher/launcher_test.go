package launcher

import (
	"strings"
	"testing"

	"github.com/shenzi-pack/shenzi/internal/sitepkgs"
)

func TestRenderIncludesAllPythonPathEntriesInOrder(t *testing.T) {
	cfg := Config{
		PythonPath: []sitepkgs.PythonPathComponent{
			{Kind: sitepkgs.ComponentRelativeToStdlib, RelPath: "."},
			{Kind: sitepkgs.ComponentRelativeToLibDynLoad, RelPath: "."},
			{Kind: sitepkgs.ComponentTopLevel, Alias: "site-packages"},
			{Kind: sitepkgs.ComponentRelativeToSitePkg, Alias: "vendor", RelPath: "extra"},
		},
		MainRelPath: "app.py",
		Env:         map[string]string{"MY_APP_HOME": "/opt/data"},
	}
	var buf strings.Builder
	if err := Render(&buf, cfg); err != nil {
		t.Fatalf("Render: %v", err)
	}
	got := buf.String()

	wantPythonPath := `export PYTHONPATH="$SCRIPT_DIR/python/lib/current:$SCRIPT_DIR/python/lib/current/lib-dynload:$SCRIPT_DIR/site_packages/site-packages:$SCRIPT_DIR/site_packages/vendor/extra${PYTHONPATH:+:$PYTHONPATH}"`
	if !strings.Contains(got, wantPythonPath) {
		t.Errorf("missing expected PYTHONPATH line; got:\n%s", got)
	}
	if !strings.Contains(got, `export LD_LIBRARY_PATH="$SCRIPT_DIR/lib/l${LD_LIBRARY_PATH:+:$LD_LIBRARY_PATH}"`) {
		t.Errorf("missing expected LD_LIBRARY_PATH line; got:\n%s", got)
	}
	if !strings.Contains(got, `export MY_APP_HOME="/opt/data"`) {
		t.Errorf("missing env passthrough line; got:\n%s", got)
	}
	if !strings.Contains(got, `exec "$SCRIPT_DIR/python/bin/python" "$SCRIPT_DIR/app.py" "$@"`) {
		t.Errorf("missing exec line; got:\n%s", got)
	}
}

func TestRenderUsesDYLDOnDarwin(t *testing.T) {
	cfg := Config{MainRelPath: "app.py", Darwin: true}
	var buf strings.Builder
	if err := Render(&buf, cfg); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "DYLD_LIBRARY_PATH") {
		t.Error("expected DYLD_LIBRARY_PATH on darwin")
	}
	if strings.Contains(buf.String(), "export LD_LIBRARY_PATH=") {
		t.Error("did not expect LD_LIBRARY_PATH on darwin")
	}
}
