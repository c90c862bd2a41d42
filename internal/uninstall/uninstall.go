// Package uninstall reverses what the Linker and the cask Installer did:
// formula kegs via manifest-based unlink, casks via reverse artifact
// dispatch, plus the cask zap stanzas for a full removal (§4.10).
package uninstall

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sps-pm/sps/internal/cask"
	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/linker"
	"github.com/sps-pm/sps/internal/logger"
	"github.com/sps-pm/sps/internal/pipeline"
)

// Uninstaller removes installed formulae and casks (§4.10).
type Uninstaller struct {
	cfg    *config.Config
	linker *linker.Linker
}

// New creates an Uninstaller bound to cfg.
func New(cfg *config.Config) *Uninstaller {
	return &Uninstaller{cfg: cfg, linker: linker.New(cfg)}
}

var _ pipeline.PreUninstaller = (*Uninstaller)(nil)

// SoftUninstall implements pipeline.PreUninstaller: the Upgrade/Reinstall
// pre-step that clears out job.OldInstallPath before the new version is
// installed in its place. A job with no prior install is a no-op.
func (u *Uninstaller) SoftUninstall(job *pipeline.PlannedJob) error {
	if job.OldInstallPath == "" {
		return nil
	}
	if job.Kind == pipeline.TargetFormula {
		return u.UninstallFormula(job.TargetID, job.OldInstallPath)
	}
	return u.softUninstallCaskDir(job.OldInstallPath)
}

// UninstallFormula removes a formula keg: unlink its symlink farm, delete
// the keg directory, and drop the opt-symlink if it still points here
// (§4.10 soft uninstall, formula case).
func (u *Uninstaller) UninstallFormula(name, installDir string) error {
	if err := u.linker.Unlink(installDir); err != nil {
		logger.Warn("unlinking %s: %v", name, err)
	}
	if err := os.RemoveAll(installDir); err != nil {
		return fmt.Errorf("removing keg %s: %w", installDir, err)
	}

	opt := u.cfg.FormulaOptPath(name)
	if target, err := os.Readlink(opt); err == nil && target == installDir {
		os.Remove(opt)
	}
	return nil
}

// UninstallCask performs a soft uninstall of c's installed artifacts and,
// when zap is true, also runs every zap stanza and removes the caskroom
// version directory, the token directory if now empty, and the private
// store (§4.10).
func (u *Uninstaller) UninstallCask(c *cask.Cask, zap bool) error {
	versionDir := u.cfg.CaskVersionPath(c.Token, c.Version)
	if err := u.softUninstallCaskDir(versionDir); err != nil {
		return err
	}
	if !zap {
		return nil
	}

	for _, stanza := range c.Artifacts {
		for _, z := range stanza.Zap {
			runZapStanza(z)
		}
	}

	os.RemoveAll(versionDir)
	tokenDir := u.cfg.CaskRoomTokenPath(c.Token)
	if entries, err := os.ReadDir(tokenDir); err == nil && len(entries) == 0 {
		os.Remove(tokenDir)
	}
	os.RemoveAll(u.cfg.CaskStoreVersionPath(c.Token, c.Version))
	return nil
}

// softUninstallCaskDir parses versionDir's manifest, reverses every
// InstalledArtifact in last-installed-first order, and rewrites the
// manifest with is_installed=false, leaving the caskroom version directory
// and private store intact (§4.10).
func (u *Uninstaller) softUninstallCaskDir(versionDir string) error {
	m, err := cask.ReadManifest(versionDir)
	if err != nil {
		return fmt.Errorf("reading manifest in %s: %w", versionDir, err)
	}

	for i := len(m.Artifacts) - 1; i >= 0; i-- {
		if err := removeArtifact(m.Artifacts[i], false); err != nil {
			logger.Warn("removing artifact: %v", err)
		}
	}

	m.IsInstalled = false
	return cask.WriteManifest(versionDir, m)
}

// removeArtifact dispatches one InstalledArtifact to its removal routine
// (§4.10 artifact-removal dispatch table). zapping selects trash-removal of
// app bundles over a plain rmdir; every other kind behaves the same either
// way. Missing paths are always success (idempotent).
func removeArtifact(a cask.InstalledArtifact, zapping bool) error {
	switch {
	case a.AppBundle != nil:
		quitApplication(a.AppBundle.Path)
		if zapping {
			return moveToTrash(a.AppBundle.Path)
		}
		return os.RemoveAll(a.AppBundle.Path)

	case a.BinaryLink != nil:
		return removeFile(a.BinaryLink.Path)
	case a.ManpageLink != nil:
		return removeFile(a.ManpageLink.Path)
	case a.CaskroomLink != nil:
		return removeFile(a.CaskroomLink.Path)

	case a.PkgUtilReceipt != nil:
		return forgetPkg(a.PkgUtilReceipt.ID)

	case a.Launchd != nil:
		return unloadLaunchd(a.Launchd)

	case a.MovedResource != nil:
		return removeFile(a.MovedResource.Path)
	case a.CaskroomReference != nil:
		return os.RemoveAll(a.CaskroomReference.Path)
	}
	return nil
}

func removeFile(path string) error {
	fi, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.IsDir() && fi.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	return os.Remove(path)
}

func quitApplication(appPath string) {
	name := strings.TrimSuffix(filepath.Base(appPath), ".app")
	script := fmt.Sprintf(`tell application %q to quit`, name)
	exec.Command("osascript", "-e", script).Run() // best-effort, errors ignored
}

// moveToTrash relocates path into the user's Trash, refusing to act on
// anything outside the safe-root allowlist (§4.10 zap).
func moveToTrash(path string) error {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return nil
	}
	if !isSafeZapPath(path) {
		return fmt.Errorf("refusing to trash path outside safe roots: %s", path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return os.RemoveAll(path)
	}
	trashDir := filepath.Join(home, ".Trash")
	if err := os.MkdirAll(trashDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(trashDir, filepath.Base(path))
	if _, err := os.Lstat(dst); err == nil {
		dst = filepath.Join(trashDir, fmt.Sprintf("%s.%d", filepath.Base(path), os.Getpid()))
	}
	if err := os.Rename(path, dst); err != nil {
		return os.RemoveAll(path) // cross-device or permission fallback
	}
	return nil
}

func forgetPkg(id string) error {
	if !isValidPkgID(id) {
		return fmt.Errorf("refusing to forget suspicious pkgutil id: %q", id)
	}
	out, err := exec.Command("sudo", "pkgutil", "--forget", id).CombinedOutput()
	if err != nil && !strings.Contains(string(out), "No receipt") {
		return fmt.Errorf("pkgutil --forget %s: %w: %s", id, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func unloadLaunchd(l *cask.LaunchdArtifact) error {
	out, err := exec.Command("launchctl", "unload", "-w", l.Label).CombinedOutput()
	if err != nil && !strings.Contains(string(out), "not loaded") && !strings.Contains(string(out), "Could not find") {
		logger.Warn("launchctl unload %s: %v: %s", l.Label, err, strings.TrimSpace(string(out)))
	}
	if l.PlistPath != "" {
		return removeFile(l.PlistPath)
	}
	return nil
}

// runZapStanza executes one zap stanza's delete/trash/rmdir/pkgutil/signal
// actions; every action is best-effort and logged on failure so one bad
// stanza entry never aborts the rest (§4.10 zap).
func runZapStanza(z cask.CaskZap) {
	for _, p := range z.Delete {
		path := expandTilde(p)
		if !isSafeZapPath(path) {
			logger.Warn("zap delete: refusing path outside safe roots: %s", path)
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("zap delete %s: %v", path, err)
		}
	}
	for _, p := range z.Trash {
		if err := moveToTrash(expandTilde(p)); err != nil {
			logger.Warn("zap trash %s: %v", p, err)
		}
	}
	for _, p := range z.Rmdir {
		path := expandTilde(p)
		if !isSafeZapPath(path) {
			logger.Warn("zap rmdir: refusing path outside safe roots: %s", path)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("zap rmdir %s: %v", path, err)
		}
	}
	for _, id := range z.Pkgutil {
		if err := forgetPkg(id); err != nil {
			logger.Warn("zap pkgutil %s: %v", id, err)
		}
	}
	for _, sig := range z.Signal {
		runZapSignal(sig)
	}
}

var allowedSignals = map[string]bool{
	"TERM": true, "SIGTERM": true,
	"KILL": true, "SIGKILL": true,
	"HUP": true, "SIGHUP": true,
	"INT": true, "SIGINT": true,
}

func runZapSignal(s cask.CaskSignal) {
	for _, raw := range s.Signal {
		name := strings.TrimPrefix(strings.ToUpper(raw), "SIG")
		if !allowedSignals[name] && !allowedSignals["SIG"+name] {
			logger.Warn("zap signal: refusing unrecognized signal %q", raw)
			continue
		}
		if s.Pid == "" {
			continue
		}
		if out, err := exec.Command("pkill", "-"+name, "-f", s.Pid).CombinedOutput(); err != nil && len(out) > 0 {
			logger.Debug("pkill -%s -f %s: %v: %s", name, s.Pid, err, strings.TrimSpace(string(out)))
		}
	}
}

var safeZapRoots []string

func isSafeZapPath(path string) bool {
	if safeZapRoots == nil {
		home, _ := os.UserHomeDir()
		safeZapRoots = []string{
			home,
			"/Applications",
			"/Library/Application Support",
			"/Library/Preferences",
			"/Library/Caches",
			"/Library/LaunchAgents",
			"/Library/LaunchDaemons",
			"/private/var/folders",
			"/tmp",
		}
	}
	if path == "" || path == "/" {
		return false
	}
	clean := filepath.Clean(path)
	for _, root := range safeZapRoots {
		if root == "" {
			continue
		}
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func isValidPkgID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if !(r == '.' || r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func expandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
