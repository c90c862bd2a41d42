package cask

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/sps-pm/sps/internal/config"
)

func TestArchiveKindFromExt(t *testing.T) {
	cases := map[string]archiveKind{
		"slack.dmg":      archiveDMG,
		"app.zip":        archiveZip,
		"src.tar.gz":     archiveTarGz,
		"src.tgz":        archiveTarGz,
		"src.tar.bz2":    archiveTarBz2,
		"src.tar.xz":     archiveTarXz,
		"src.tar":        archiveTar,
		"installer.pkg":  archivePkg,
		"installer.mpkg": archivePkg,
		"unknown.bin":    archiveUnknown,
	}
	for name, want := range cases {
		got, ok := archiveKindFromExt(name)
		if want == archiveUnknown {
			if ok {
				t.Errorf("archiveKindFromExt(%q) expected no match, got %v", name, got)
			}
			continue
		}
		if !ok || got != want {
			t.Errorf("archiveKindFromExt(%q) = (%v, %v), want (%v, true)", name, got, ok, want)
		}
	}
}

func TestSniffArchiveKind_Zip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "no-extension-hint")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("hi"))
	zw.Close()
	f.Close()

	kind, err := sniffArchiveKind(path)
	if err != nil {
		t.Fatalf("sniffArchiveKind returned error: %v", err)
	}
	if kind != archiveZip {
		t.Fatalf("expected archiveZip from magic bytes, got %v", kind)
	}
}

func TestSniffArchiveKind_Unrecognized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(path, []byte("just some plain text content here"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := sniffArchiveKind(path); err == nil {
		t.Fatal("expected an error for unrecognized, non-octet-stream content")
	}
}

func TestDetectArchiveKind_PrefersExtensionOverSniffing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.zip")
	// Content doesn't matter: the extension should short-circuit sniffing.
	if err := os.WriteFile(path, []byte("not actually a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := &Cask{Token: "widget"}
	kind, err := detectArchiveKind(path, c)
	if err != nil {
		t.Fatalf("detectArchiveKind returned error: %v", err)
	}
	if kind != archiveZip {
		t.Fatalf("expected archiveZip from extension, got %v", kind)
	}
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "app.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("Widget.app/Contents/MacOS/widget")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("binary contents"))
	zw.Close()
	f.Close()

	destDir := filepath.Join(dir, "dest")
	if err := extractZip(zipPath, destDir); err != nil {
		t.Fatalf("extractZip returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(destDir, "Widget.app", "Contents", "MacOS", "widget")); err != nil {
		t.Fatalf("expected extracted file to exist: %v", err)
	}
}

func buildTestTarGz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()
	gz.Close()
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "src.tar.gz")
	buildTestTarGz(t, tarPath, map[string]string{"bin/widget": "binary"})

	destDir := filepath.Join(dir, "dest")
	if err := extractTarGz(tarPath, destDir); err != nil {
		t.Fatalf("extractTarGz returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(destDir, "bin", "widget")); err != nil {
		t.Fatalf("expected extracted file to exist: %v", err)
	}
}

func TestExtractTarReader_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "evil.tar.gz")
	buildTestTarGz(t, tarPath, map[string]string{"../../etc/passwd": "pwned"})

	destDir := filepath.Join(dir, "dest")
	err := extractTarGz(tarPath, destDir)
	// securejoin.SecureJoin clamps ".." components inside destDir rather than
	// erroring, so the file must land inside destDir, never above it.
	if err != nil {
		t.Fatalf("extractTarGz returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "etc", "passwd")); err == nil {
		t.Fatal("path traversal escaped destDir")
	}
}

func TestInstallBinary_CreatesSymlink(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{HomebrewPrefix: filepath.Join(root, "prefix")}
	ins := NewInstaller(cfg)

	stagingDir := filepath.Join(root, "staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		t.Fatal(err)
	}
	srcBin := filepath.Join(stagingDir, "widget-cli")
	if err := os.WriteFile(srcBin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	artifact, err := ins.installBinary(CaskBinary{Source: "widget-cli"}, stagingDir)
	if err != nil {
		t.Fatalf("installBinary returned error: %v", err)
	}
	if artifact.BinaryLink == nil {
		t.Fatal("expected a BinaryLink artifact")
	}
	target, err := os.Readlink(artifact.BinaryLink.Path)
	if err != nil {
		t.Fatalf("expected a symlink at %s: %v", artifact.BinaryLink.Path, err)
	}
	if target != srcBin {
		t.Fatalf("unexpected symlink target: %s", target)
	}
}

func TestInstallArtifacts_SkipsUndispatchedStanzaKindsWithoutError(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{HomebrewPrefix: filepath.Join(root, "prefix")}
	ins := NewInstaller(cfg)

	stagingDir := filepath.Join(root, "staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		t.Fatal(err)
	}
	srcBin := filepath.Join(stagingDir, "widget-cli")
	if err := os.WriteFile(srcBin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	c := &Cask{
		Token:   "widget",
		Version: "1.0",
		Artifacts: []CaskArtifact{{
			Binary:     []CaskBinary{{Source: "widget-cli"}},
			Prefpane:   []string{"Widget.prefPane"},
			Qlplugin:   []string{"Widget.qlgenerator"},
			Mdimporter: []string{"Widget.mdimporter"},
		}},
	}

	installed, err := ins.installArtifacts(c, stagingDir, filepath.Join(root, "version"))
	if err != nil {
		t.Fatalf("installArtifacts returned error: %v", err)
	}
	if len(installed) != 1 || installed[0].BinaryLink == nil {
		t.Fatalf("expected the binary stanza to still install despite unsupported stanza kinds, got %+v", installed)
	}
}

func TestInstallManpage_PicksSectionFromExtension(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{HomebrewPrefix: filepath.Join(root, "prefix")}
	ins := NewInstaller(cfg)

	stagingDir := filepath.Join(root, "staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		t.Fatal(err)
	}
	manSrc := filepath.Join(stagingDir, "widget.5")
	if err := os.WriteFile(manSrc, []byte("man page"), 0o644); err != nil {
		t.Fatal(err)
	}

	artifact, err := ins.installManpage("widget.5", stagingDir)
	if err != nil {
		t.Fatalf("installManpage returned error: %v", err)
	}
	if artifact.ManpageLink == nil {
		t.Fatal("expected a ManpageLink artifact")
	}
	if filepath.Base(filepath.Dir(artifact.ManpageLink.Path)) != "man5" {
		t.Fatalf("expected man5 section dir, got %s", artifact.ManpageLink.Path)
	}
}

func TestReadWriteManifest_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		ManifestFormatVersion: "1.0",
		Token:                 "slack",
		Version:               "4.1",
		IsInstalled:           true,
		Artifacts:             []InstalledArtifact{{AppBundle: &PathArtifact{Path: "/Applications/Slack.app"}}},
	}
	if err := WriteManifest(dir, m); err != nil {
		t.Fatalf("WriteManifest returned error: %v", err)
	}

	got, err := ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest returned error: %v", err)
	}
	if got.Token != "slack" || got.Version != "4.1" || !got.IsInstalled {
		t.Fatalf("unexpected round-tripped manifest: %+v", got)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0].AppBundle == nil {
		t.Fatalf("expected the AppBundle artifact to round-trip, got %+v", got.Artifacts)
	}
}
