package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sps-pm/sps/internal/api"
	"github.com/sps-pm/sps/internal/caskinstall"
	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/formula"
	"github.com/sps-pm/sps/internal/installer"
	"github.com/sps-pm/sps/internal/logger"
	"github.com/sps-pm/sps/internal/pipeline"
	"github.com/sps-pm/sps/internal/planner"
	"github.com/sps-pm/sps/internal/probe"
	"github.com/sps-pm/sps/internal/relocate"
	"github.com/sps-pm/sps/internal/resolver"
	"github.com/sps-pm/sps/internal/uninstall"
	"github.com/spf13/cobra"
)

// NewInstallCmd creates the install command
func NewInstallCmd(cfg *config.Config) *cobra.Command {
	var (
		formulaOnly        bool
		caskOnly           bool
		buildFromSource    bool
		forceBottle        bool
		ignoreDependencies bool
		onlyDependencies   bool
		includeTest        bool
		headOnly           bool
		keepTmp            bool
		debugSymbols       bool
		displayTimes       bool
		ask                bool
		cc                 string
	)

	cmd := &cobra.Command{
		Use:   "install [OPTIONS] FORMULA|CASK...",
		Short: "Install a formula or cask",
		Long: `Install one or more formulae or casks.

A formula that is already installed at a different version than the index
lists is upgraded; HOMEBREW_NO_INSTALL_UPGRADE does not change this.
Installed dependents are not checked, upgraded or reinstalled.

Unless HOMEBREW_INSTALL_CLEANUP is set to false, brew cleanup runs after the
install.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cfg, args, &installOptions{
				FormulaOnly:        formulaOnly,
				CaskOnly:           caskOnly,
				BuildFromSource:    buildFromSource,
				ForceBottle:        forceBottle,
				IgnoreDependencies: ignoreDependencies,
				OnlyDependencies:   onlyDependencies,
				IncludeTest:        includeTest,
				HeadOnly:           headOnly,
				KeepTmp:            keepTmp,
				DebugSymbols:       debugSymbols,
				DisplayTimes:       displayTimes,
				Ask:                ask,
				CC:                 cc,
				Force:              cfg.Force,
				DryRun:             cfg.DryRun,
				Verbose:            cfg.Verbose,
			})
		},
	}

	// Add flags
	cmd.Flags().BoolVar(&formulaOnly, "formula", false, "Treat all named arguments as formulae")
	cmd.Flags().BoolVar(&formulaOnly, "formulae", false, "Treat all named arguments as formulae")
	cmd.Flags().BoolVar(&caskOnly, "cask", false, "Treat all named arguments as casks")
	cmd.Flags().BoolVar(&caskOnly, "casks", false, "Treat all named arguments as casks")
	cmd.Flags().BoolVarP(&buildFromSource, "build-from-source", "s", false, "Compile formula from source even if a bottle is provided")
	cmd.Flags().BoolVar(&forceBottle, "force-bottle", false, "Install from a bottle if it exists")
	cmd.Flags().BoolVar(&ignoreDependencies, "ignore-dependencies", false, "Skip installing any dependencies")
	cmd.Flags().BoolVar(&onlyDependencies, "only-dependencies", false, "Install dependencies but not the formula itself")
	cmd.Flags().BoolVar(&includeTest, "include-test", false, "Install testing dependencies")
	cmd.Flags().BoolVar(&headOnly, "HEAD", false, "Install the HEAD version")
	cmd.Flags().BoolVar(&keepTmp, "keep-tmp", false, "Retain the temporary files created during installation")
	cmd.Flags().BoolVar(&debugSymbols, "debug-symbols", false, "Generate debug symbols on build")
	cmd.Flags().BoolVar(&displayTimes, "display-times", false, "Print install times for each package")
	cmd.Flags().BoolVar(&ask, "ask", false, "Ask for confirmation before downloading and installing")
	cmd.Flags().StringVar(&cc, "cc", "", "Attempt to compile using the specified compiler")

	return cmd
}

type installOptions struct {
	FormulaOnly        bool
	CaskOnly           bool
	BuildFromSource    bool
	ForceBottle        bool
	IgnoreDependencies bool
	OnlyDependencies   bool
	IncludeTest        bool
	HeadOnly           bool
	KeepTmp            bool
	DebugSymbols       bool
	DisplayTimes       bool
	Ask                bool
	CC                 string
	Force              bool
	DryRun             bool
	Verbose            bool
}

// runInstall builds a Plan via planner.Planner and drives it through the
// Pipeline Runner, Download Coordinator, and Worker Pool (§4.3-§4.6) instead
// of the sequential per-target loop the teacher's installer used to run.
func runInstall(cfg *config.Config, args []string, opts *installOptions) error {
	timer := logger.NewTimer("Total install time")
	defer timer.Stop()

	formulae, casks, err := parseInstallArgs(args, opts)
	if err != nil {
		return fmt.Errorf("failed to parse arguments: %w", err)
	}
	if len(formulae) == 0 && len(casks) == 0 {
		return fmt.Errorf("no formulae or casks specified")
	}

	if opts.Ask {
		for _, name := range append(append([]string{}, formulae...), casks...) {
			if !askForConfirmation(name, "package") {
				return fmt.Errorf("installation cancelled")
			}
		}
	}

	if opts.DryRun {
		for _, f := range formulae {
			logger.Info("Would install formula: %s", f)
		}
		for _, c := range casks {
			logger.Info("Would install cask: %s", c)
		}
		return nil
	}

	success, failed, err := runPipelinedInstall(cfg, formulae, casks, initialActionsFor(append(append([]string{}, formulae...), casks...)), opts)
	if err != nil {
		return err
	}

	if cfg.InstallCleanup {
		logger.Progress("Running cleanup...")
		if err := runCleanup(cfg, false); err != nil {
			logger.Warn("Cleanup failed: %v", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d target(s) failed to install", failed)
	}
	logger.Info("%d succeeded, %d failed", success, failed)
	return nil
}

// runPipelinedInstall builds one Plan covering formulae+casks with the given
// per-target actions (Install/Upgrade/Reinstall) and drives it through the
// concurrent pipeline, reporting progress as it goes (§4.3-§4.6).
func runPipelinedInstall(cfg *config.Config, formulae, casks []string, actions map[string]resolver.InitialAction, opts *installOptions) (success, failed int, err error) {
	apiClient := api.NewClient(cfg)
	kegProbe := probe.New(cfg)

	p := planner.New(apiClient, apiClient, kegProbe, func(f *formula.Formula, platform string) bool {
		return f.HasBottle(platform)
	})
	plan, err := p.Build(&planner.Request{
		FormulaTargets:  formulae,
		CaskTargets:     casks,
		InitialActions:  actions,
		Platform:        apiClient.GetPlatformTag(),
		IncludeTest:     opts.IncludeTest,
		Preferences: resolver.PerTargetInstallPreferences{
			ForceSource:     forceSourceMap(formulae, opts.BuildFromSource || cfg.BuildFromSource),
			ForceBottleOnly: forceBottleMap(formulae, opts.ForceBottle || cfg.ForceBottle),
		},
		BuildAllFromSource: opts.BuildFromSource || cfg.BuildFromSource,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("planning install: %w", err)
	}
	for target, planErr := range plan.Errors {
		logger.Warn("could not plan %s: %v", target, planErr)
	}
	if len(plan.Jobs) == 0 {
		logger.Info("Everything requested is already installed")
		return 0, 0, nil
	}

	jobCh := make(chan pipeline.WorkerJob, len(plan.Jobs))
	events := make(chan pipeline.Event, 256)

	runner := pipeline.NewRunner(plan.Jobs, plan.Graph, jobCh, events)
	downloader := pipeline.NewDownloader(cfg, apiClient, events)

	inst := installer.New(cfg, &installer.Options{
		BuildFromSource:    opts.BuildFromSource || cfg.BuildFromSource,
		ForceBottle:        opts.ForceBottle || cfg.ForceBottle,
		IgnoreDependencies: opts.IgnoreDependencies,
		OnlyDependencies:   opts.OnlyDependencies,
		IncludeTest:        opts.IncludeTest,
		HeadOnly:           opts.HeadOnly,
		KeepTmp:            opts.KeepTmp || cfg.KeepTmp,
		DebugSymbols:       opts.DebugSymbols,
		Force:              opts.Force,
		DryRun:             opts.DryRun,
		Verbose:            opts.Verbose,
		CC:                 opts.CC,
	})

	pool := pipeline.NewWorkerPool(
		relocate.New(cfg),
		inst,
		caskinstall.New(cfg),
		uninstall.New(cfg),
	)

	ctx := context.Background()
	needDownload := runner.Start(plan.Errors, plan.AlreadySatisfied)

	workerEvents := pool.Run(ctx, jobCh)
	downloadOutcomes := downloader.Run(ctx, needDownload)

	go printPipelineEvents(events, opts.DisplayTimes)

	success, failed = runner.Run(ctx, downloadOutcomes, workerEvents)
	logger.PrintDivider()
	return success, failed, nil
}

// printPipelineEvents drains events and reports progress the way the
// teacher's sequential installer used to (§7), until the channel is closed
// at EventPipelineFinished.
func printPipelineEvents(events <-chan pipeline.Event, displayTimes bool) {
	for ev := range events {
		switch ev.Kind {
		case pipeline.EventDownloadStarted:
			logger.Progress("Downloading %s", ev.URL)
		case pipeline.EventDownloadFailed:
			logger.Warn("download of %s failed: %v", ev.TargetID, ev.Err)
		case pipeline.EventJobSuccess:
			logger.Success("Successfully installed %s", ev.TargetID)
		case pipeline.EventJobFailed:
			logger.Warn("failed to install %s: %v", ev.TargetID, ev.Err)
		case pipeline.EventPipelineFinished:
			if displayTimes {
				logger.Info("pipeline finished in %s", time.Since(ev.Duration))
			}
		}
	}
}

func initialActionsFor(names []string) map[string]resolver.InitialAction {
	out := make(map[string]resolver.InitialAction, len(names))
	for _, n := range names {
		out[n] = resolver.ActionInstall
	}
	return out
}

func forceSourceMap(names []string, force bool) map[string]bool {
	if !force {
		return nil
	}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func forceBottleMap(names []string, force bool) map[string]bool {
	if !force {
		return nil
	}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func parseInstallArgs(args []string, opts *installOptions) ([]string, []string, error) {
	var formulae []string
	var casks []string

	for _, arg := range args {
		if strings.HasPrefix(arg, "--") {
			continue // Skip options
		}

		if opts.CaskOnly {
			casks = append(casks, arg)
		} else if opts.FormulaOnly {
			formulae = append(formulae, arg)
		} else {
			// Auto-detect based on name or check both
			if strings.Contains(arg, "/") {
				// Tap-qualified name, assume formula
				formulae = append(formulae, arg)
			} else if isCaskName(arg) {
				casks = append(casks, arg)
			} else {
				formulae = append(formulae, arg)
			}
		}
	}

	return formulae, casks, nil
}

func isCaskName(name string) bool {
	// Simple heuristic: casks often have different naming patterns
	// This is a placeholder - in practice, we'd check the cask repository
	return strings.Contains(name, "-") &&
		(strings.Contains(name, "app") ||
			strings.Contains(name, "desktop") ||
			strings.HasSuffix(name, ".app"))
}

func askForConfirmation(name, typ string) bool {
	return logger.Confirm("Install %s %s?", typ, name)
}

func isFormulaInstalled(cfg *config.Config, name string) (bool, error) {
	formulaPath := filepath.Join(cfg.HomebrewCellar, name)
	_, err := os.Stat(formulaPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// getPlatform returns the current platform identifier for bottles
func getPlatform() string {
	switch runtime.GOOS {
	case "darwin":
		switch runtime.GOARCH {
		case "amd64":
			return "monterey" // Default to recent macOS version
		case "arm64":
			return "arm64_monterey"
		}
	case "linux":
		return "x86_64_linux"
	}
	return "unknown"
}
