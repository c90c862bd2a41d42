// Package probe answers "what, if anything, is installed under this name"
// (§4.2) and diffs installed packages against the index to find upgrades.
package probe

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-version"

	"github.com/sps-pm/sps/internal/cask"
	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/formula"
	"github.com/sps-pm/sps/internal/pipeline"
)

// Kind distinguishes the two artifact families a name can resolve to.
type Kind int

const (
	KindNone Kind = iota
	KindFormula
	KindCask
)

// InstalledPackageInfo is the probe's answer for a single name.
type InstalledPackageInfo struct {
	Name    string
	Version string
	Kind    Kind
	Path    string // keg dir for formula; cask version dir for cask
}

// Probe looks up on-disk installed state for a single name.
type Probe struct {
	cfg *config.Config
}

// New creates a Probe bound to the given configuration.
func New(cfg *config.Config) *Probe {
	return &Probe{cfg: cfg}
}

// Find looks for name under the cellar first, then the caskroom, returning
// KindNone if neither has it.
func (p *Probe) Find(name string) (*InstalledPackageInfo, error) {
	if info, err := p.findFormula(name); err != nil {
		return nil, err
	} else if info != nil {
		return info, nil
	}
	return p.findCask(name)
}

func (p *Probe) findFormula(name string) (*InstalledPackageInfo, error) {
	dir := filepath.Join(p.cfg.HomebrewCellar, name)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	if len(versions) == 0 {
		return nil, nil
	}

	latest := latestVersion(versions)
	return &InstalledPackageInfo{
		Name:    name,
		Version: latest,
		Kind:    KindFormula,
		Path:    filepath.Join(dir, latest),
	}, nil
}

func (p *Probe) findCask(token string) (*InstalledPackageInfo, error) {
	dir := filepath.Join(p.cfg.HomebrewCaskroom, token)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var versions []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		manifestPath := filepath.Join(dir, e.Name(), "CASK_INSTALL_MANIFEST.json")
		if _, err := os.Stat(manifestPath); err == nil {
			versions = append(versions, e.Name())
		}
	}
	if len(versions) == 0 {
		return nil, nil
	}

	latest := latestVersion(versions)
	return &InstalledPackageInfo{
		Name:    token,
		Version: latest,
		Kind:    KindCask,
		Path:    filepath.Join(dir, latest),
	}, nil
}

// InstalledVersion implements resolver.KegRegistry: it reports the installed
// formula version for name, ignoring casks (the resolver only ever asks
// about formulae).
func (p *Probe) InstalledVersion(name string) (string, bool) {
	info, err := p.findFormula(name)
	if err != nil || info == nil {
		return "", false
	}
	return info.Version, true
}

// InstalledCaskVersion implements planner.KegProbe: it reports the
// installed cask version for token, if any.
func (p *Probe) InstalledCaskVersion(token string) (string, bool) {
	info, err := p.findCask(token)
	if err != nil || info == nil {
		return "", false
	}
	return info.Version, true
}

// InstallPath implements planner.KegProbe: the on-disk path of an already
// installed version, used as OldInstallPath for Upgrade/Reinstall jobs.
func (p *Probe) InstallPath(name string, kind pipeline.TargetKind, versionStr string) string {
	if kind == pipeline.TargetCask {
		return p.cfg.CaskVersionPath(name, versionStr)
	}
	return p.cfg.FormulaKegPath(name, versionStr)
}

// WasSourceBuild reports whether the currently installed version of name was
// built from source, read back from its INSTALL_RECEIPT.json's
// installation_type field (§6). Returns false if nothing is installed or the
// receipt can't be read, so callers fall back to the normal bottle-preferred
// default.
func (p *Probe) WasSourceBuild(name string) bool {
	info, err := p.findFormula(name)
	if err != nil || info == nil {
		return false
	}
	data, err := os.ReadFile(filepath.Join(info.Path, "INSTALL_RECEIPT.json"))
	if err != nil {
		return false
	}
	var r struct {
		InstallationType string `json:"installation_type"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return false
	}
	return r.InstallationType == "source"
}

// ManifestInstalled reports the is_installed flag of a cask's manifest,
// defaulting to true if the manifest cannot be parsed (conservative: treat
// an unreadable manifest as installed rather than silently reinstalling).
func (p *Probe) ManifestInstalled(token, versionStr string) bool {
	data, err := os.ReadFile(filepath.Join(p.cfg.CaskVersionPath(token, versionStr), "CASK_INSTALL_MANIFEST.json"))
	if err != nil {
		return true
	}
	var m struct {
		IsInstalled bool `json:"is_installed"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return true
	}
	return m.IsInstalled
}

func latestVersion(versions []string) string {
	sort.Slice(versions, func(i, j int) bool {
		vi, erri := version.NewVersion(versions[i])
		vj, errj := version.NewVersion(versions[j])
		if erri != nil || errj != nil {
			return versions[i] < versions[j]
		}
		return vi.LessThan(vj)
	})
	return versions[len(versions)-1]
}

// UpdateInfo describes one available upgrade.
type UpdateInfo struct {
	Name             string
	CurrentVersion   string
	AvailableVersion string
	Formula          *formula.Formula
	Cask             *cask.Cask
}

// CheckFormulaUpdate compares an installed formula's version against the
// index's, using semver with revision as a tiebreaker (§4.2).
func CheckFormulaUpdate(name, currentVersion string, latest *formula.Formula) (*UpdateInfo, bool) {
	cur, errCur := version.NewVersion(currentVersion)
	avail, errAvail := version.NewVersion(latest.Version)

	outdated := false
	switch {
	case errCur != nil || errAvail != nil:
		outdated = currentVersion != latest.VersionString()
	case avail.GreaterThan(cur):
		outdated = true
	case avail.Equal(cur) && latest.Revision > 0:
		outdated = currentVersion != latest.VersionString()
	}

	if !outdated {
		return nil, false
	}
	return &UpdateInfo{
		Name:             name,
		CurrentVersion:   currentVersion,
		AvailableVersion: latest.VersionString(),
		Formula:          latest,
	}, true
}

// CheckCaskUpdate compares an installed cask's version against the index's.
// A cask pinned at "latest" never reports an upgrade (§9 open question): the
// index never bumps that token, so there is nothing to compare against.
func CheckCaskUpdate(token, currentVersion string, latest *cask.Cask) (*UpdateInfo, bool) {
	if latest.Version == "latest" {
		return nil, false
	}
	if currentVersion == latest.Version {
		return nil, false
	}
	return &UpdateInfo{
		Name:             token,
		CurrentVersion:   currentVersion,
		AvailableVersion: latest.Version,
		Cask:             latest,
	}, true
}
