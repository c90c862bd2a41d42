// Package linker builds and reverses the per-formula symlink farm under the
// sps prefix (§4.8): bin/lib/include/share entries pointing into the keg,
// plus libexec executables linked directly into bin/.
package linker

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/sps-pm/sps/internal/config"
)

// farmDirs are the content-root subdirectories linked verbatim into the
// parallel sps-root directory.
var farmDirs = []string{"bin", "lib", "include", "share"}

// Manifest is the per-keg link record (§4.8), persisted as
// install_dir/INSTALL_MANIFEST.json.
type Manifest struct {
	Formula string   `json:"formula"`
	Links   []string `json:"links"`
}

// Linker creates and reverses a formula's symlink farm.
type Linker struct {
	cfg *config.Config
}

// New creates a Linker bound to cfg.
func New(cfg *config.Config) *Linker {
	return &Linker{cfg: cfg}
}

// Link farms symlinks from installDir's content root into the sps prefix
// and writes the resulting Manifest to installDir/INSTALL_MANIFEST.json.
func (l *Linker) Link(name, installDir string) (*Manifest, error) {
	root, err := contentRoot(installDir)
	if err != nil {
		return nil, err
	}

	m := &Manifest{Formula: name}

	for _, dir := range farmDirs {
		srcDir := filepath.Join(root, dir)
		entries, err := os.ReadDir(srcDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		dstDir := filepath.Join(l.cfg.HomebrewPrefix, dir)
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			return nil, err
		}

		for _, e := range entries {
			src := filepath.Join(srcDir, e.Name())
			dst := filepath.Join(dstDir, e.Name())
			if err := link(src, dst); err != nil {
				return nil, err
			}
			m.Links = append(m.Links, dst)
		}
	}

	libexecDir := filepath.Join(root, "libexec")
	if entries, err := os.ReadDir(libexecDir); err == nil {
		binDir := filepath.Join(l.cfg.HomebrewPrefix, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			return nil, err
		}
		if err := linkExecutablesRecursive(libexecDir, binDir, m); err != nil {
			return nil, err
		}
	}

	if err := l.writeManifest(installDir, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Unlink reverses a prior Link: reads INSTALL_MANIFEST.json and removes every
// recorded link. If the manifest is missing or unreadable it falls back to a
// rescan of the keg's bin/lib/include/share entries; libexec links are not
// found by that rescan.
func (l *Linker) Unlink(installDir string) error {
	m, err := l.readManifest(installDir)
	if err != nil || m == nil {
		return l.unlinkByRescan(installDir)
	}
	for _, link := range m.Links {
		if err := removeIfLinkOrFile(link); err != nil {
			return err
		}
	}
	return nil
}

func (l *Linker) unlinkByRescan(installDir string) error {
	root, err := contentRoot(installDir)
	if err != nil {
		return err
	}
	for _, dir := range farmDirs {
		srcDir := filepath.Join(root, dir)
		entries, err := os.ReadDir(srcDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			dst := filepath.Join(l.cfg.HomebrewPrefix, dir, e.Name())
			if target, lerr := os.Readlink(dst); lerr == nil && target == filepath.Join(srcDir, e.Name()) {
				_ = removeIfLinkOrFile(dst)
			}
		}
	}
	return nil
}

func (l *Linker) writeManifest(installDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(installDir, "INSTALL_MANIFEST.json"), data, 0o644)
}

func (l *Linker) readManifest(installDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(installDir, "INSTALL_MANIFEST.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nil
	}
	return &m, nil
}

// contentRoot implements §4.8's content-root detection: if the keg has
// exactly one non-dotfile subdirectory and no top-level regular files, that
// subdir is the content root; otherwise the keg itself is.
func contentRoot(installDir string) (string, error) {
	entries, err := os.ReadDir(installDir)
	if err != nil {
		return "", err
	}

	var dirs []os.DirEntry
	for _, e := range entries {
		if len(e.Name()) > 0 && e.Name()[0] == '.' {
			continue
		}
		if !e.IsDir() {
			return installDir, nil
		}
		dirs = append(dirs, e)
	}
	if len(dirs) == 1 {
		return filepath.Join(installDir, dirs[0].Name()), nil
	}
	return installDir, nil
}

// link creates dst -> src, unlinking an existing dst first. It only
// unlinks when dst is a file or symlink, never a real directory (§4.8).
func link(src, dst string) error {
	if fi, err := os.Lstat(dst); err == nil {
		if fi.IsDir() && fi.Mode()&os.ModeSymlink == 0 {
			return nil // never clobber a real directory
		}
		if err := os.Remove(dst); err != nil {
			return err
		}
	}
	return os.Symlink(src, dst)
}

func removeIfLinkOrFile(path string) error {
	fi, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil // idempotent
	}
	if err != nil {
		return err
	}
	if fi.IsDir() && fi.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	return os.Remove(path)
}

func linkExecutablesRecursive(dir, binDir string, m *Manifest) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := linkExecutablesRecursive(path, binDir, m); err != nil {
				return err
			}
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Mode()&0o111 == 0 {
			continue
		}
		dst := filepath.Join(binDir, e.Name())
		if err := link(path, dst); err != nil {
			return err
		}
		m.Links = append(m.Links, dst)
	}
	return nil
}
