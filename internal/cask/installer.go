package cask

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/errors"
	"github.com/sps-pm/sps/internal/logger"
)

// archiveKind is the detected container format of a cask download (§4.9).
type archiveKind int

const (
	archiveUnknown archiveKind = iota
	archiveDMG
	archiveZip
	archiveTarGz
	archiveTarBz2
	archiveTarXz
	archiveTar
	archivePkg
)

const manifestFileName = "CASK_INSTALL_MANIFEST.json"

// PathArtifact is an InstalledArtifact payload naming a single filesystem
// path (AppBundle, BinaryLink, ManpageLink, CaskroomLink, MovedResource,
// CaskroomReference).
type PathArtifact struct {
	Path string `json:"path"`
}

// ReceiptArtifact records a pkgutil package id for later `pkgutil --forget`.
type ReceiptArtifact struct {
	ID string `json:"id"`
}

// LaunchdArtifact records a launchd label and the plist that was installed
// for it, if any.
type LaunchdArtifact struct {
	Label     string `json:"label"`
	PlistPath string `json:"plist_path,omitempty"`
}

// InstalledArtifact is a one-key tagged union mirroring the original's enum,
// serialized as `{"Kind": {...}}` (§6 CASK_INSTALL_MANIFEST.json).
type InstalledArtifact struct {
	AppBundle         *PathArtifact    `json:"AppBundle,omitempty"`
	BinaryLink        *PathArtifact    `json:"BinaryLink,omitempty"`
	ManpageLink       *PathArtifact    `json:"ManpageLink,omitempty"`
	CaskroomLink      *PathArtifact    `json:"CaskroomLink,omitempty"`
	PkgUtilReceipt    *ReceiptArtifact `json:"PkgUtilReceipt,omitempty"`
	Launchd           *LaunchdArtifact `json:"Launchd,omitempty"`
	MovedResource     *PathArtifact    `json:"MovedResource,omitempty"`
	CaskroomReference *PathArtifact    `json:"CaskroomReference,omitempty"`
}

// Manifest is the on-disk CASK_INSTALL_MANIFEST.json record (§6).
type Manifest struct {
	ManifestFormatVersion string              `json:"manifest_format_version"`
	Token                 string              `json:"token"`
	Version               string              `json:"version"`
	InstalledAt           int64               `json:"installed_at"`
	IsInstalled           bool                `json:"is_installed"`
	PrimaryAppFileName    string              `json:"primary_app_file_name,omitempty"`
	CaskStorePath         string              `json:"cask_store_path,omitempty"`
	Artifacts             []InstalledArtifact `json:"artifacts"`
}

// Installer stages a cask's download and installs its artifacts (§4.9).
type Installer struct {
	cfg *config.Config
}

// NewInstaller creates an Installer bound to cfg.
func NewInstaller(cfg *config.Config) *Installer {
	return &Installer{cfg: cfg}
}

// Install stages archivePath (or, when usePrivateStoreSource is non-empty,
// reuses that private-store content directly, skipping extraction) and
// installs c's artifact stanzas into the caskroom. On any handler error the
// caskroom version directory is removed before returning (§4.9 step 4).
func (ins *Installer) Install(c *Cask, archivePath, usePrivateStoreSource string) (*Manifest, error) {
	versionDir := ins.cfg.CaskVersionPath(c.Token, c.Version)
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return nil, errors.NewPermissionError("create caskroom version dir", versionDir, err)
	}

	if usePrivateStoreSource != "" {
		artifacts, err := ins.installArtifacts(c, usePrivateStoreSource, versionDir)
		if err != nil {
			os.RemoveAll(versionDir)
			return nil, err
		}
		return ins.finalize(c, versionDir, artifacts, usePrivateStoreSource)
	}

	kind, err := detectArchiveKind(archivePath, c)
	if err != nil {
		os.RemoveAll(versionDir)
		return nil, err
	}

	if kind == archivePkg {
		artifacts, err := ins.installPkgFile(archivePath)
		if err != nil {
			os.RemoveAll(versionDir)
			return nil, err
		}
		return ins.finalize(c, versionDir, artifacts, "")
	}

	stagingDir := filepath.Join(ins.cfg.HomebrewCache, "cask", "extract", c.Token+"-"+c.Version)
	os.RemoveAll(stagingDir)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		os.RemoveAll(versionDir)
		return nil, errors.NewPermissionError("create cask staging dir", stagingDir, err)
	}

	if err := extract(kind, archivePath, stagingDir); err != nil {
		os.RemoveAll(versionDir)
		return nil, err
	}

	artifacts, err := ins.installArtifacts(c, stagingDir, versionDir)
	if err != nil {
		os.RemoveAll(versionDir)
		return nil, err
	}
	return ins.finalize(c, versionDir, artifacts, stagingDir)
}

func (ins *Installer) finalize(c *Cask, versionDir string, artifacts []InstalledArtifact, sourceDir string) (*Manifest, error) {
	m := &Manifest{
		ManifestFormatVersion: "1.0",
		Token:                 c.Token,
		Version:               c.Version,
		InstalledAt:           time.Now().Unix(),
		IsInstalled:           true,
		Artifacts:             artifacts,
	}
	for _, a := range artifacts {
		if a.AppBundle != nil {
			m.PrimaryAppFileName = filepath.Base(a.AppBundle.Path)
			break
		}
	}

	if sourceDir != "" && m.PrimaryAppFileName != "" {
		storeDir := ins.cfg.CaskStoreVersionPath(c.Token, c.Version)
		appSrc := filepath.Join(sourceDir, m.PrimaryAppFileName)
		if _, err := os.Stat(appSrc); err == nil {
			if err := os.MkdirAll(storeDir, 0o755); err == nil {
				dst := ins.cfg.CaskStoreAppPath(c.Token, c.Version, m.PrimaryAppFileName)
				os.RemoveAll(dst)
				if err := exec.Command("cp", "-R", appSrc, dst).Run(); err == nil {
					m.CaskStorePath = dst
				}
			}
		}
	}

	if err := writeManifest(versionDir, m); err != nil {
		return nil, err
	}
	return m, nil
}

func writeManifest(versionDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(versionDir, manifestFileName), data, 0o644)
}

// ReadManifest loads a previously-written CASK_INSTALL_MANIFEST.json.
func ReadManifest(versionDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(versionDir, manifestFileName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", manifestFileName, err)
	}
	return &m, nil
}

// WriteManifest persists m back to versionDir (used by the uninstaller to
// flip is_installed after a soft uninstall).
func WriteManifest(versionDir string, m *Manifest) error {
	return writeManifest(versionDir, m)
}

// installArtifacts iterates c's artifact stanzas in declaration order,
// dispatching each supported kind and accumulating InstalledArtifacts
// (§4.9 step 3). Stanza kinds this installer has no dispatch for (suite,
// prefpane, qlplugin, mdimporter, dictionary, font, colorpicker, vst,
// vst3, au) are logged as a warning rather than silently dropped.
func (ins *Installer) installArtifacts(c *Cask, stagingDir, versionDir string) ([]InstalledArtifact, error) {
	var out []InstalledArtifact

	for _, stanza := range c.Artifacts {
		warnUndispatched(stanza)
		for _, app := range stanza.App {
			installed, err := ins.installApp(app, stagingDir, versionDir)
			if err != nil {
				return out, fmt.Errorf("installing app %s: %w", app.Source, err)
			}
			out = append(out, installed...)
		}
		for _, bin := range stanza.Binary {
			installed, err := ins.installBinary(bin, stagingDir)
			if err != nil {
				return out, fmt.Errorf("installing binary %s: %w", bin.Source, err)
			}
			out = append(out, installed)
		}
		for _, man := range stanza.Manpage {
			installed, err := ins.installManpage(man, stagingDir)
			if err != nil {
				logger.Warn("skipping manpage %s: %v", man, err)
				continue
			}
			out = append(out, installed)
		}
		for _, pkg := range stanza.Pkg {
			installed, err := ins.installPkgFile(filepath.Join(stagingDir, pkg))
			if err != nil {
				return out, fmt.Errorf("installing pkg %s: %w", pkg, err)
			}
			out = append(out, installed...)
		}
		for _, inst := range stanza.Installer {
			installed, err := ins.runInstallerStanza(inst, stagingDir)
			if err != nil {
				return out, fmt.Errorf("running installer stanza: %w", err)
			}
			out = append(out, installed...)
		}
		for _, svc := range stanza.Service {
			out = append(out, InstalledArtifact{Launchd: &LaunchdArtifact{Label: strings.TrimSuffix(filepath.Base(svc), ".plist")}})
		}
	}

	return out, nil
}

// warnUndispatched logs one warning per populated-but-unhandled stanza kind
// in a CaskArtifact block, so a cask declaring e.g. a prefpane or qlplugin
// installs with a visible notice instead of silently incomplete (spec §4.9
// invariant: every declared artifact stanza either installs or is reported).
func warnUndispatched(stanza CaskArtifact) {
	if n := len(stanza.Suite); n > 0 {
		logger.Warn("cask declares %d suite artifact(s), which this installer does not support installing", n)
	}
	if n := len(stanza.Prefpane); n > 0 {
		logger.Warn("cask declares %d prefpane artifact(s), which this installer does not support installing", n)
	}
	if n := len(stanza.Qlplugin); n > 0 {
		logger.Warn("cask declares %d qlplugin artifact(s), which this installer does not support installing", n)
	}
	if n := len(stanza.Mdimporter); n > 0 {
		logger.Warn("cask declares %d mdimporter artifact(s), which this installer does not support installing", n)
	}
	if n := len(stanza.Dictionary); n > 0 {
		logger.Warn("cask declares %d dictionary artifact(s), which this installer does not support installing", n)
	}
	if n := len(stanza.Font); n > 0 {
		logger.Warn("cask declares %d font artifact(s), which this installer does not support installing", n)
	}
	if n := len(stanza.Colorpicker); n > 0 {
		logger.Warn("cask declares %d colorpicker artifact(s), which this installer does not support installing", n)
	}
	if n := len(stanza.Vst); n > 0 {
		logger.Warn("cask declares %d vst artifact(s), which this installer does not support installing", n)
	}
	if n := len(stanza.Vst3); n > 0 {
		logger.Warn("cask declares %d vst3 artifact(s), which this installer does not support installing", n)
	}
	if n := len(stanza.Au); n > 0 {
		logger.Warn("cask declares %d au artifact(s), which this installer does not support installing", n)
	}
}

func (ins *Installer) installApp(app CaskApp, stagingDir, versionDir string) ([]InstalledArtifact, error) {
	src, err := securejoin.SecureJoin(stagingDir, app.Source)
	if err != nil {
		return nil, err
	}

	name := app.Target
	if name == "" {
		name = filepath.Base(app.Source)
	}
	appsDir := ins.cfg.ApplicationsDir
	if appsDir == "" {
		appsDir = "/Applications"
	}
	target := filepath.Join(appsDir, filepath.Base(name))

	logger.Step("Installing app: %s -> %s", app.Source, target)
	os.RemoveAll(target)
	if err := exec.Command("cp", "-R", src, target).Run(); err != nil {
		return nil, fmt.Errorf("copying application bundle: %w", err)
	}
	if err := clearQuarantine(target); err != nil {
		logger.Debug("clearing quarantine on %s: %v", target, err)
	}

	link := filepath.Join(versionDir, filepath.Base(target))
	os.Remove(link)
	if err := os.Symlink(target, link); err != nil {
		return nil, fmt.Errorf("linking caskroom reference: %w", err)
	}

	return []InstalledArtifact{
		{AppBundle: &PathArtifact{Path: target}},
		{CaskroomLink: &PathArtifact{Path: link}},
	}, nil
}

func (ins *Installer) installBinary(bin CaskBinary, stagingDir string) (InstalledArtifact, error) {
	src, err := securejoin.SecureJoin(stagingDir, bin.Source)
	if err != nil {
		return InstalledArtifact{}, err
	}

	name := bin.Target
	if name == "" {
		name = filepath.Base(bin.Source)
	}
	binDir := filepath.Join(ins.cfg.HomebrewPrefix, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return InstalledArtifact{}, err
	}
	target := filepath.Join(binDir, filepath.Base(name))

	logger.Step("Linking binary: %s -> %s", bin.Source, target)
	os.Remove(target)
	if err := os.Symlink(src, target); err != nil {
		return InstalledArtifact{}, err
	}
	return InstalledArtifact{BinaryLink: &PathArtifact{Path: target}}, nil
}

func (ins *Installer) installManpage(rel, stagingDir string) (InstalledArtifact, error) {
	src, err := securejoin.SecureJoin(stagingDir, rel)
	if err != nil {
		return InstalledArtifact{}, err
	}
	section := "man1"
	if ext := filepath.Ext(rel); len(ext) == 2 {
		section = "man" + ext[1:]
	}
	manDir := filepath.Join(ins.cfg.HomebrewPrefix, "share", "man", section)
	if err := os.MkdirAll(manDir, 0o755); err != nil {
		return InstalledArtifact{}, err
	}
	target := filepath.Join(manDir, filepath.Base(rel))
	os.Remove(target)
	if err := os.Symlink(src, target); err != nil {
		return InstalledArtifact{}, err
	}
	return InstalledArtifact{ManpageLink: &PathArtifact{Path: target}}, nil
}

func (ins *Installer) installPkgFile(pkgPath string) ([]InstalledArtifact, error) {
	logger.Step("Running installer: %s", filepath.Base(pkgPath))
	cmd := exec.Command("/usr/sbin/installer", "-pkg", pkgPath, "-target", "/")
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("installer failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	id := strings.TrimSuffix(filepath.Base(pkgPath), filepath.Ext(pkgPath))
	return []InstalledArtifact{{PkgUtilReceipt: &ReceiptArtifact{ID: id}}}, nil
}

func (ins *Installer) runInstallerStanza(inst CaskInstaller, stagingDir string) ([]InstalledArtifact, error) {
	if inst.Manual != "" {
		logger.Info("Manual installation required: %s", inst.Manual)
		return nil, nil
	}
	if inst.Script != nil {
		logger.Warn("script-based installer stanzas are not executed automatically; run it manually from %s", stagingDir)
	}
	return nil, nil
}

// detectArchiveKind classifies the download by extension first, falling
// back to content sniffing (net/http.DetectContentType plus a small
// magic-byte table) when the extension is absent or unrecognized (§4.9
// step 2: "the corpus has no dedicated file-type-sniffing library").
func detectArchiveKind(path string, c *Cask) (archiveKind, error) {
	if kind, ok := archiveKindFromExt(path); ok {
		return kind, nil
	}
	if kind, ok := archiveKindFromExt(c.GetDownloadURL()); ok {
		return kind, nil
	}
	return sniffArchiveKind(path)
}

func archiveKindFromExt(name string) (archiveKind, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".dmg"):
		return archiveDMG, true
	case strings.HasSuffix(lower, ".zip"):
		return archiveZip, true
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return archiveTarGz, true
	case strings.HasSuffix(lower, ".tar.bz2"):
		return archiveTarBz2, true
	case strings.HasSuffix(lower, ".tar.xz"):
		return archiveTarXz, true
	case strings.HasSuffix(lower, ".tar"):
		return archiveTar, true
	case strings.HasSuffix(lower, ".pkg"), strings.HasSuffix(lower, ".mpkg"):
		return archivePkg, true
	}
	return archiveUnknown, false
}

var magicTable = []struct {
	prefix []byte
	kind   archiveKind
}{
	{[]byte("PK\x03\x04"), archiveZip},
	{[]byte{0x1f, 0x8b}, archiveTarGz},
	{[]byte("BZh"), archiveTarBz2},
	{[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, archiveTarXz},
	{[]byte("xar!"), archivePkg},
}

func sniffArchiveKind(path string) (archiveKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return archiveUnknown, err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := io.ReadFull(f, buf)
	buf = buf[:n]

	for _, m := range magicTable {
		if bytesHasPrefix(buf, m.prefix) {
			return m.kind, nil
		}
	}

	// DMGs carry their UDIF trailer at EOF, not a leading magic; a
	// plausible-looking binary blob with none of the above signatures is
	// treated as a DMG, matching this module's primarily-macOS corpus.
	contentType := http.DetectContentType(buf)
	if strings.Contains(contentType, "octet-stream") {
		return archiveDMG, nil
	}
	return archiveUnknown, fmt.Errorf("cannot determine archive type of %s (sniffed %s)", path, contentType)
}

func bytesHasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func extract(kind archiveKind, archivePath, destDir string) error {
	switch kind {
	case archiveDMG:
		return extractDMG(archivePath, destDir)
	case archiveZip:
		return extractZip(archivePath, destDir)
	case archiveTarGz:
		return extractTarGz(archivePath, destDir)
	case archiveTarBz2:
		return extractTarBz2(archivePath, destDir)
	case archiveTarXz:
		return extractTarXz(archivePath, destDir)
	case archiveTar:
		return extractTarPlain(archivePath, destDir)
	default:
		return fmt.Errorf("unsupported archive kind for %s", archivePath)
	}
}

// extractDMG mounts the disk image read-only at a scratch mountpoint, copies
// its contents into destDir, and always detaches the mountpoint.
func extractDMG(dmgPath, destDir string) error {
	mountPoint, err := os.MkdirTemp("", "sps-cask-dmg-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(mountPoint)

	attach := exec.Command("hdiutil", "attach", "-quiet", "-nobrowse", "-readonly", "-mountpoint", mountPoint, dmgPath)
	if out, err := attach.CombinedOutput(); err != nil {
		return fmt.Errorf("mounting dmg: %w: %s", err, strings.TrimSpace(string(out)))
	}
	defer exec.Command("hdiutil", "detach", "-quiet", mountPoint).Run()

	entries, err := os.ReadDir(mountPoint)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		src := filepath.Join(mountPoint, e.Name())
		dst, err := securejoin.SecureJoin(destDir, e.Name())
		if err != nil {
			return err
		}
		if err := exec.Command("cp", "-R", src, dst).Run(); err != nil {
			return fmt.Errorf("copying %s from dmg: %w", e.Name(), err)
		}
	}
	return nil
}

func extractZip(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, zf := range r.File {
		dst, err := securejoin.SecureJoin(destDir, zf.Name)
		if err != nil {
			return fmt.Errorf("zip member %q: %w", zf.Name, err)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := extractZipEntry(zf, dst); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(zf *zip.File, dst string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, zf.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func extractTarGz(tarPath, destDir string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()
	return extractTarReader(tar.NewReader(gz), destDir)
}

func extractTarBz2(tarPath, destDir string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return extractTarReader(tar.NewReader(bzip2.NewReader(f)), destDir)
}

func extractTarPlain(tarPath, destDir string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return extractTarReader(tar.NewReader(f), destDir)
}

// extractTarXz shells to /usr/bin/xz, piping its stdout into /usr/bin/tar,
// since the standard library has no xz decoder (§4.9 step 2, the same
// approach the bottle builder already uses for autotools bootstrapping).
func extractTarXz(tarPath, destDir string) error {
	xz := exec.Command("/usr/bin/xz", "-dc", tarPath)
	tarCmd := exec.Command("/usr/bin/tar", "-x", "-C", destDir)

	pipe, err := xz.StdoutPipe()
	if err != nil {
		return err
	}
	tarCmd.Stdin = pipe

	if err := tarCmd.Start(); err != nil {
		return err
	}
	if err := xz.Run(); err != nil {
		tarCmd.Process.Kill()
		return fmt.Errorf("xz decompress: %w", err)
	}
	if err := tarCmd.Wait(); err != nil {
		return fmt.Errorf("tar extract: %w", err)
	}
	return nil
}

func extractTarReader(tr *tar.Reader, destDir string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		dst, err := securejoin.SecureJoin(destDir, hdr.Name)
		if err != nil {
			return fmt.Errorf("tar member %q: %w", hdr.Name, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return err
			}
		case tar.TypeSymlink:
			os.Remove(dst)
			if err := os.Symlink(hdr.Linkname, dst); err != nil {
				return err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}
