// Package caskinstall adapts cask.Installer to pipeline.CaskInstaller. It
// lives apart from internal/cask because pipeline.PlannedJob embeds
// *cask.Cask, so cask cannot import pipeline without a cycle (§4.9).
package caskinstall

import (
	"github.com/sps-pm/sps/internal/cask"
	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/logger"
	"github.com/sps-pm/sps/internal/pipeline"
)

// Adapter implements pipeline.CaskInstaller.
type Adapter struct {
	installer *cask.Installer
}

// New creates an Adapter bound to cfg.
func New(cfg *config.Config) *Adapter {
	return &Adapter{installer: cask.NewInstaller(cfg)}
}

var _ pipeline.CaskInstaller = (*Adapter)(nil)

// InstallCask stages downloadPath (or job.UsePrivateStoreSource, when set)
// and installs job.Cask's artifacts (§4.9).
func (a *Adapter) InstallCask(job *pipeline.PlannedJob, downloadPath string) error {
	logger.Step("Installing cask %s %s", job.Cask.Token, job.Cask.Version)
	_, err := a.installer.Install(job.Cask, downloadPath, job.UsePrivateStoreSource)
	return err
}
