package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sps-pm/sps/internal/api"
	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/logger"
	"github.com/sps-pm/sps/internal/probe"
	"github.com/sps-pm/sps/internal/uninstall"
	"github.com/spf13/cobra"
)

// NewUninstallCmd creates the uninstall command
func NewUninstallCmd(cfg *config.Config) *cobra.Command {
	var (
		force      bool
		ignoreDeps bool
		zap        bool
	)

	cmd := &cobra.Command{
		Use:     "uninstall [OPTIONS] FORMULA|CASK...",
		Aliases: []string{"remove", "rm"},
		Short:   "Uninstall a formula or cask",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUninstall(cfg, args, &uninstallOptions{
				Force:      force,
				IgnoreDeps: ignoreDeps,
				Zap:        zap,
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Delete all installed versions")
	cmd.Flags().BoolVar(&ignoreDeps, "ignore-dependencies", false, "Don't fail uninstall if dependencies would be left")
	cmd.Flags().BoolVar(&zap, "zap", false, "Remove all files associated with a cask")

	return cmd
}

type uninstallOptions struct {
	Force      bool
	IgnoreDeps bool
	Zap        bool
}

// runUninstall dispatches each name to the Uninstaller (§4.10): formula kegs
// via manifest-based unlink, casks via reverse artifact dispatch plus an
// optional zap pass.
func runUninstall(cfg *config.Config, args []string, opts *uninstallOptions) error {
	if len(args) == 0 {
		return fmt.Errorf("no formulae specified for uninstall")
	}

	kegProbe := probe.New(cfg)
	un := uninstall.New(cfg)

	for _, name := range args {
		logger.PrintHeader(fmt.Sprintf("Uninstalling: %s", name))

		logger.Step("Checking if %s is installed", name)
		info, err := kegProbe.Find(name)
		if err != nil {
			return fmt.Errorf("failed to check if %s is installed: %w", name, err)
		}
		if info == nil {
			if opts.Force {
				logger.Warn("%s is not installed", name)
				continue
			}
			return fmt.Errorf("%s is not installed", name)
		}
		logger.Info("Found installed version: %s", info.Version)

		if info.Kind == probe.KindCask {
			apiClient := api.NewClient(cfg)
			c, err := apiClient.GetCask(name)
			if err != nil {
				return fmt.Errorf("failed to look up cask %s for uninstall: %w", name, err)
			}
			logger.Step("Removing cask %s", name)
			if err := un.UninstallCask(c, opts.Zap); err != nil {
				return fmt.Errorf("failed to uninstall cask %s: %w", name, err)
			}
			logger.Success("Successfully uninstalled %s", name)
			continue
		}

		if !opts.IgnoreDeps {
			logger.Step("Checking for dependents")
			dependents, err := findDependents(cfg, name)
			if err != nil {
				return fmt.Errorf("failed to find dependents of %s: %w", name, err)
			}
			if len(dependents) > 0 {
				logger.Warn("Formula %s is required by: %s", name, strings.Join(dependents, ", "))
				return fmt.Errorf("cannot uninstall %s because it is required by: %s",
					name, strings.Join(dependents, ", "))
			}
			logger.Debug("No dependents found")
		}

		logger.Step("Removing %s", name)
		if err := un.UninstallFormula(name, info.Path); err != nil {
			return fmt.Errorf("failed to uninstall %s: %w", name, err)
		}

		logger.Success("Successfully uninstalled %s", name)
	}

	return nil
}

func getInstalledVersion(cfg *config.Config, formulaName string) (string, error) {
	formulaDir := filepath.Join(cfg.HomebrewCellar, formulaName)
	entries, err := os.ReadDir(formulaDir)
	if err != nil {
		return "", err
	}

	// Find the first directory (should be the version)
	for _, entry := range entries {
		if entry.IsDir() {
			return entry.Name(), nil
		}
	}

	return "", fmt.Errorf("no version directory found")
}

func findDependents(cfg *config.Config, formulaName string) ([]string, error) {
	var dependents []string

	// Read all installed formulae
	files, err := os.ReadDir(cfg.HomebrewCellar)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if !file.IsDir() || file.Name() == formulaName {
			continue
		}

		// Check if this formula depends on the one we want to uninstall
		if depends, err := checkDependency(cfg, file.Name(), formulaName); err == nil && depends {
			dependents = append(dependents, file.Name())
		}
	}

	return dependents, nil
}

func checkDependency(cfg *config.Config, installedFormula, dependency string) (bool, error) {
	// Read install receipt to check dependencies
	receiptPath := filepath.Join(cfg.HomebrewCellar, installedFormula)

	// Find version directory
	versionDirs, err := os.ReadDir(receiptPath)
	if err != nil {
		return false, err
	}

	for _, versionDir := range versionDirs {
		if versionDir.IsDir() {
			receiptFile := filepath.Join(receiptPath, versionDir.Name(), "INSTALL_RECEIPT.json")
			if data, err := os.ReadFile(receiptFile); err == nil {
				var receipt struct {
					Dependencies []string `json:"dependencies"`
				}
				if json.Unmarshal(data, &receipt) == nil {
					for _, dep := range receipt.Dependencies {
						if dep == dependency {
							return true, nil
						}
					}
				}
			}
			break // Only check first version directory
		}
	}

	return false, nil
}
