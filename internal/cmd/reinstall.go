package cmd

import (
	"fmt"
	"strings"

	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/logger"
	"github.com/sps-pm/sps/internal/probe"
	"github.com/sps-pm/sps/internal/resolver"
	"github.com/spf13/cobra"
)

// NewReinstallCmd creates the reinstall command
func NewReinstallCmd(cfg *config.Config) *cobra.Command {
	var buildFromSource bool

	cmd := &cobra.Command{
		Use:   "reinstall FORMULA|CASK...",
		Short: "Reinstall a formula or cask",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReinstall(cfg, args, buildFromSource)
		},
	}

	cmd.Flags().BoolVarP(&buildFromSource, "build-from-source", "s", false, "Compile formula from source even if a bottle is provided")

	return cmd
}

// runReinstall marks every named target as InitialAction=Reinstall and
// drives the same pipeline install does; a cask target whose private store
// still holds the bundle skips its download (§3 S4, §4.3 Reinstall action).
func runReinstall(cfg *config.Config, args []string, buildFromSource bool) error {
	logger.Progress("Reinstalling: %s", strings.Join(args, ", "))

	kegProbe := probe.New(cfg)
	var formulae, casks []string

	for _, name := range args {
		info, err := kegProbe.Find(name)
		if err != nil || info == nil {
			return fmt.Errorf("%s is not installed", name)
		}
		if info.Kind == probe.KindCask {
			casks = append(casks, name)
		} else {
			formulae = append(formulae, name)
		}
	}

	actions := make(map[string]resolver.InitialAction, len(args))
	for _, name := range args {
		actions[name] = resolver.ActionReinstall
	}

	success, failed, err := runPipelinedInstall(cfg, formulae, casks, actions, &installOptions{
		BuildFromSource: buildFromSource || cfg.BuildFromSource,
		Verbose:         cfg.Verbose,
	})
	if err != nil {
		return err
	}
	logger.Info("%d succeeded, %d failed", success, failed)
	if failed > 0 {
		return fmt.Errorf("%d target(s) failed to reinstall", failed)
	}
	return nil
}
