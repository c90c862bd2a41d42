package probe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sps-pm/sps/internal/cask"
	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/formula"
	"github.com/sps-pm/sps/internal/pipeline"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		HomebrewCellar:   filepath.Join(root, "Cellar"),
		HomebrewCaskroom: filepath.Join(root, "Caskroom"),
	}
}

func mkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdirAll(%s): %v", path, err)
	}
}

func TestProbe_FindFormula(t *testing.T) {
	cfg := newTestConfig(t)
	mkdirAll(t, filepath.Join(cfg.HomebrewCellar, "jq", "1.6"))
	mkdirAll(t, filepath.Join(cfg.HomebrewCellar, "jq", "1.7"))

	p := New(cfg)
	info, err := p.Find("jq")
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if info == nil {
		t.Fatal("expected non-nil info")
	}
	if info.Kind != KindFormula {
		t.Fatalf("expected KindFormula, got %v", info.Kind)
	}
	if info.Version != "1.7" {
		t.Fatalf("expected latest version 1.7, got %s", info.Version)
	}
}

func TestProbe_FindCaskRequiresManifest(t *testing.T) {
	cfg := newTestConfig(t)
	// A version dir with no manifest should not count as installed.
	mkdirAll(t, filepath.Join(cfg.HomebrewCaskroom, "slack", "4.0"))
	mkdirAll(t, filepath.Join(cfg.HomebrewCaskroom, "slack", "4.1"))
	if err := os.WriteFile(filepath.Join(cfg.HomebrewCaskroom, "slack", "4.1", "CASK_INSTALL_MANIFEST.json"), []byte(`{"is_installed":true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	p := New(cfg)
	info, err := p.Find("slack")
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if info == nil {
		t.Fatal("expected non-nil info")
	}
	if info.Kind != KindCask {
		t.Fatalf("expected KindCask, got %v", info.Kind)
	}
	if info.Version != "4.1" {
		t.Fatalf("expected version 4.1 (the only manifested version), got %s", info.Version)
	}
}

func TestProbe_FindNotInstalled(t *testing.T) {
	cfg := newTestConfig(t)
	p := New(cfg)
	info, err := p.Find("nonexistent")
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if info != nil {
		t.Fatalf("expected nil info for uninstalled name, got %+v", info)
	}
}

func TestProbe_InstallPath(t *testing.T) {
	cfg := newTestConfig(t)
	p := New(cfg)

	formulaPath := p.InstallPath("jq", pipeline.TargetFormula, "1.7")
	if formulaPath != cfg.FormulaKegPath("jq", "1.7") {
		t.Fatalf("unexpected formula install path: %s", formulaPath)
	}

	caskPath := p.InstallPath("slack", pipeline.TargetCask, "4.1")
	if caskPath != cfg.CaskVersionPath("slack", "4.1") {
		t.Fatalf("unexpected cask install path: %s", caskPath)
	}
}

func TestProbe_WasSourceBuildReadsReceipt(t *testing.T) {
	cfg := newTestConfig(t)
	versionDir := filepath.Join(cfg.HomebrewCellar, "jq", "1.6")
	mkdirAll(t, versionDir)
	receipt := []byte(`{"version":"1.6","installation_type":"source"}`)
	if err := os.WriteFile(filepath.Join(versionDir, "INSTALL_RECEIPT.json"), receipt, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := New(cfg)
	if !p.WasSourceBuild("jq") {
		t.Fatal("expected WasSourceBuild to report true for a source-build receipt")
	}
}

func TestProbe_WasSourceBuildFalseForBottleReceipt(t *testing.T) {
	cfg := newTestConfig(t)
	versionDir := filepath.Join(cfg.HomebrewCellar, "jq", "1.6")
	mkdirAll(t, versionDir)
	receipt := []byte(`{"version":"1.6","installation_type":"bottle"}`)
	if err := os.WriteFile(filepath.Join(versionDir, "INSTALL_RECEIPT.json"), receipt, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := New(cfg)
	if p.WasSourceBuild("jq") {
		t.Fatal("expected WasSourceBuild to report false for a bottle receipt")
	}
}

func TestProbe_WasSourceBuildFalseWhenNotInstalled(t *testing.T) {
	cfg := newTestConfig(t)
	p := New(cfg)
	if p.WasSourceBuild("jq") {
		t.Fatal("expected WasSourceBuild to report false when nothing is installed")
	}
}

func TestProbe_ManifestInstalledDefaultsTrueWhenUnreadable(t *testing.T) {
	cfg := newTestConfig(t)
	p := New(cfg)
	if !p.ManifestInstalled("missing-token", "1.0") {
		t.Fatal("expected ManifestInstalled to default to true for a missing manifest")
	}
}

func TestProbe_ManifestInstalledReadsFlag(t *testing.T) {
	cfg := newTestConfig(t)
	mkdirAll(t, cfg.CaskVersionPath("slack", "4.1"))
	if err := os.WriteFile(filepath.Join(cfg.CaskVersionPath("slack", "4.1"), "CASK_INSTALL_MANIFEST.json"), []byte(`{"is_installed":false}`), 0o644); err != nil {
		t.Fatal(err)
	}

	p := New(cfg)
	if p.ManifestInstalled("slack", "4.1") {
		t.Fatal("expected ManifestInstalled to report false per the manifest")
	}
}

func TestCheckFormulaUpdate(t *testing.T) {
	latest := &formula.Formula{Name: "jq", Version: "1.7"}

	if _, outdated := CheckFormulaUpdate("jq", "1.7", latest); outdated {
		t.Fatal("expected no update when versions match")
	}
	if _, outdated := CheckFormulaUpdate("jq", "1.6", latest); !outdated {
		t.Fatal("expected an update when installed version is older")
	}
}

func TestCheckFormulaUpdate_RevisionBump(t *testing.T) {
	latest := &formula.Formula{Name: "jq", Version: "1.7", Revision: 1}

	info, outdated := CheckFormulaUpdate("jq", "1.7", latest)
	if !outdated {
		t.Fatal("expected an update when the revision increased at the same version")
	}
	if info.AvailableVersion != latest.VersionString() {
		t.Fatalf("expected available version %s, got %s", latest.VersionString(), info.AvailableVersion)
	}
}

func TestCheckCaskUpdate_PinnedLatestNeverUpdates(t *testing.T) {
	latest := &cask.Cask{Token: "slack", Version: "latest"}
	if _, outdated := CheckCaskUpdate("slack", "latest", latest); outdated {
		t.Fatal("a cask pinned at \"latest\" must never report an update")
	}
}

func TestCheckCaskUpdate_VersionBump(t *testing.T) {
	latest := &cask.Cask{Token: "slack", Version: "4.2"}
	info, outdated := CheckCaskUpdate("slack", "4.1", latest)
	if !outdated {
		t.Fatal("expected an update from 4.1 to 4.2")
	}
	if info.AvailableVersion != "4.2" {
		t.Fatalf("expected available version 4.2, got %s", info.AvailableVersion)
	}
}
