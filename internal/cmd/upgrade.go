package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sps-pm/sps/internal/api"
	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/logger"
	"github.com/sps-pm/sps/internal/probe"
	"github.com/sps-pm/sps/internal/resolver"
	"github.com/spf13/cobra"
)

// NewUpgradeCmd creates the upgrade command
func NewUpgradeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade [FORMULA|CASK...]",
		Short: "Upgrade formulae and casks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpgrade(cfg, args)
		},
	}

	return cmd
}

// runUpgrade resolves the set of outdated targets (explicit or every
// installed formula/cask) and drives them through the same pipeline as
// install, with InitialAction=Upgrade so the Runner's pre-uninstall step
// clears the old version in place (§4.10).
func runUpgrade(cfg *config.Config, args []string) error {
	apiClient := api.NewClient(cfg)
	kegProbe := probe.New(cfg)

	var formulae, casks []string
	actions := make(map[string]resolver.InitialAction)

	if len(args) == 0 {
		logger.Progress("Checking for outdated formulae and casks")
		outdatedFormulae, err := findOutdatedFormulae(cfg, apiClient)
		if err != nil {
			return fmt.Errorf("failed to find outdated formulae: %w", err)
		}
		outdatedCasks, err := findOutdatedCasks(cfg, apiClient)
		if err != nil {
			return fmt.Errorf("failed to find outdated casks: %w", err)
		}

		if len(outdatedFormulae) == 0 && len(outdatedCasks) == 0 {
			logger.Info("All formulae and casks are up to date")
			return nil
		}

		formulae = outdatedFormulae
		casks = outdatedCasks
		if len(formulae) > 0 {
			logger.Info("Found %d outdated formulae: %s", len(formulae), strings.Join(formulae, ", "))
		}
		if len(casks) > 0 {
			logger.Info("Found %d outdated casks: %s", len(casks), strings.Join(casks, ", "))
		}
	} else {
		logger.Progress("Upgrading specified targets: %s", strings.Join(args, ", "))
		for _, name := range args {
			info, err := kegProbe.Find(name)
			if err != nil || info == nil || info.Kind == probe.KindFormula {
				formulae = append(formulae, name)
				continue
			}
			casks = append(casks, name)
		}
	}

	for _, name := range append(append([]string{}, formulae...), casks...) {
		actions[name] = resolver.ActionUpgrade
	}

	success, failed, err := runPipelinedInstall(cfg, formulae, casks, actions, &installOptions{Verbose: cfg.Verbose})
	if err != nil {
		return err
	}
	logger.Info("%d succeeded, %d failed", success, failed)
	if failed > 0 {
		return fmt.Errorf("%d target(s) failed to upgrade", failed)
	}
	return nil
}

func findOutdatedFormulae(cfg *config.Config, apiClient *api.Client) ([]string, error) {
	var outdated []string

	// Get list of installed formulae
	files, err := os.ReadDir(cfg.HomebrewCellar)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	for _, file := range files {
		if !file.IsDir() {
			continue
		}

		formulaName := file.Name()

		// Get current installed version
		currentVersion, err := getInstalledVersion(cfg, formulaName)
		if err != nil {
			logger.Debug("Failed to get version for %s: %v", formulaName, err)
			continue
		}

		// Get latest version from API
		latestFormula, err := apiClient.GetFormula(formulaName)
		if err != nil {
			logger.Debug("Failed to get latest version for %s: %v", formulaName, err)
			continue
		}

		// Compare versions
		if currentVersion != latestFormula.VersionString() {
			logger.Debug("Found outdated formula: %s (%s -> %s)", formulaName, currentVersion, latestFormula.VersionString())
			outdated = append(outdated, formulaName)
		}
	}

	return outdated, nil
}

func findOutdatedCasks(cfg *config.Config, apiClient *api.Client) ([]string, error) {
	var outdated []string

	tokens, err := os.ReadDir(cfg.HomebrewCaskroom)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	kegProbe := probe.New(cfg)
	for _, entry := range tokens {
		if !entry.IsDir() {
			continue
		}
		token := entry.Name()

		currentVersion, ok := kegProbe.InstalledCaskVersion(token)
		if !ok {
			continue
		}

		latestCask, err := apiClient.GetCask(token)
		if err != nil {
			logger.Debug("Failed to get latest version for cask %s: %v", token, err)
			continue
		}

		if _, isOutdated := probe.CheckCaskUpdate(token, currentVersion, latestCask); isOutdated {
			outdated = append(outdated, token)
		}
	}

	return outdated, nil
}
