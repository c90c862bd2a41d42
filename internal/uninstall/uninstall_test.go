package uninstall

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sps-pm/sps/internal/cask"
	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/linker"
	"github.com/sps-pm/sps/internal/pipeline"
)

func TestUninstallFormula_RemovesKegAndOptSymlink(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{HomebrewPrefix: filepath.Join(root, "prefix")}
	installDir := filepath.Join(root, "Cellar", "jq", "1.7")

	if err := os.MkdirAll(filepath.Join(installDir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(installDir, "bin", "jq"), []byte("binary"), 0o644); err != nil {
		t.Fatal(err)
	}
	// A second top-level dir keeps linker.contentRoot from collapsing into bin/.
	if err := os.MkdirAll(filepath.Join(installDir, "share"), 0o755); err != nil {
		t.Fatal(err)
	}

	l := linker.New(cfg)
	if _, err := l.Link("jq", installDir); err != nil {
		t.Fatalf("Link returned error: %v", err)
	}

	opt := cfg.FormulaOptPath("jq")
	if err := os.MkdirAll(filepath.Dir(opt), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(installDir, opt); err != nil {
		t.Fatal(err)
	}

	u := New(cfg)
	if err := u.UninstallFormula("jq", installDir); err != nil {
		t.Fatalf("UninstallFormula returned error: %v", err)
	}

	if _, err := os.Stat(installDir); !os.IsNotExist(err) {
		t.Fatalf("expected keg directory to be removed, got err=%v", err)
	}
	if _, err := os.Lstat(opt); !os.IsNotExist(err) {
		t.Fatalf("expected opt symlink to be removed, got err=%v", err)
	}
	linkedBin := filepath.Join(cfg.HomebrewPrefix, "bin", "jq")
	if _, err := os.Lstat(linkedBin); !os.IsNotExist(err) {
		t.Fatalf("expected prefix symlink to be removed, got err=%v", err)
	}
}

func TestSoftUninstall_NoOpWithoutOldInstallPath(t *testing.T) {
	cfg := &config.Config{HomebrewPrefix: t.TempDir()}
	u := New(cfg)

	job := &pipeline.PlannedJob{TargetID: "jq", Kind: pipeline.TargetFormula}
	if err := u.SoftUninstall(job); err != nil {
		t.Fatalf("expected no error for a job with no prior install, got %v", err)
	}
}

func TestUninstallCask_SoftUninstallRemovesArtifactsAndMarksManifest(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{
		HomebrewPrefix:   filepath.Join(root, "prefix"),
		HomebrewCaskroom: filepath.Join(root, "Caskroom"),
		HomebrewCaskStore: filepath.Join(root, "CaskStore"),
	}
	versionDir := cfg.CaskVersionPath("widget", "1.0")
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		t.Fatal(err)
	}

	binPath := filepath.Join(root, "prefix", "bin", "widget-cli")
	if err := os.MkdirAll(filepath.Dir(binPath), 0o755); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(root, "staging", "widget-cli")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, binPath); err != nil {
		t.Fatal(err)
	}

	m := &cask.Manifest{
		ManifestFormatVersion: "1.0",
		Token:                 "widget",
		Version:               "1.0",
		IsInstalled:           true,
		Artifacts:             []cask.InstalledArtifact{{BinaryLink: &cask.PathArtifact{Path: binPath}}},
	}
	if err := cask.WriteManifest(versionDir, m); err != nil {
		t.Fatal(err)
	}

	u := New(cfg)
	c := &cask.Cask{Token: "widget", Version: "1.0"}
	if err := u.UninstallCask(c, false); err != nil {
		t.Fatalf("UninstallCask returned error: %v", err)
	}

	if _, err := os.Lstat(binPath); !os.IsNotExist(err) {
		t.Fatalf("expected binary symlink to be removed, got err=%v", err)
	}
	// A soft uninstall (zap=false) keeps the caskroom version directory so
	// the cask can be relinked without re-downloading.
	got, err := cask.ReadManifest(versionDir)
	if err != nil {
		t.Fatalf("ReadManifest returned error: %v", err)
	}
	if got.IsInstalled {
		t.Fatal("expected manifest to be marked not installed")
	}
}

func TestIsSafeZapPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	cases := []struct {
		path string
		want bool
	}{
		{"/Applications/Widget.app", true},
		{"/tmp/widget-cache", true},
		{filepath.Join(home, "Library", "Application Support", "Widget"), true},
		{"/", false},
		{"", false},
		{"/etc/passwd", false},
	}
	for _, c := range cases {
		if got := isSafeZapPath(c.path); got != c.want {
			t.Errorf("isSafeZapPath(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestIsValidPkgID(t *testing.T) {
	cases := map[string]bool{
		"com.widget.app":        true,
		"com.widget-app_v2":     true,
		"com.widget; rm -rf /":  false,
		"":                      false,
		"$(malicious)":          false,
	}
	for id, want := range cases {
		if got := isValidPkgID(id); got != want {
			t.Errorf("isValidPkgID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestExpandTilde(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := expandTilde("~/Library/Caches/Widget"); got != filepath.Join(home, "Library", "Caches", "Widget") {
		t.Errorf("expandTilde(~/...) = %q", got)
	}
	if got := expandTilde("~"); got != home {
		t.Errorf("expandTilde(~) = %q, want %q", got, home)
	}
	if got := expandTilde("/absolute/path"); got != "/absolute/path" {
		t.Errorf("expandTilde should leave absolute paths untouched, got %q", got)
	}
}

func TestRemoveFile_IdempotentOnMissingPath(t *testing.T) {
	if err := removeFile(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Fatalf("expected no error removing a missing path, got %v", err)
	}
}

func TestRemoveFile_RefusesRealDirectory(t *testing.T) {
	dir := t.TempDir()
	realDir := filepath.Join(dir, "real")
	if err := os.MkdirAll(realDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := removeFile(realDir); err != nil {
		t.Fatalf("expected no error for a real directory (no-op), got %v", err)
	}
	if _, err := os.Stat(realDir); err != nil {
		t.Fatal("expected the real directory to be left in place")
	}
}
