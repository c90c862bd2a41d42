package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/logger"
	"github.com/spf13/cobra"
)

// NewHomeCmd creates the home command (opens formula homepage)
func NewHomeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "home [FORMULA...]",
		Aliases: []string{"homepage"},
		Short:   "Open a formula or cask's homepage in a browser",
		Long: `Open a formula or cask's homepage in a browser, or open Homebrew's
homepage if no argument is provided.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return openURL("https://brew.sh")
			}
			return openFormulaHomepages(cfg, args)
		},
	}

	return cmd
}

// NewUsesCmd creates the uses command (shows formulae that use this formula)
func NewUsesCmd(cfg *config.Config) *cobra.Command {
	var (
		installed    bool
		recursive    bool
		includeTest  bool
		includeBuild bool
	)

	cmd := &cobra.Command{
		Use:   "uses [OPTIONS] FORMULA",
		Short: "Show formulae and casks that specify formula as a dependency",
		Long: `Show formulae and casks that specify formula as a dependency, or formulae
that specify formula as a build dependency if --include-build is passed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUses(cfg, args[0], &usesOptions{
				installed:    installed,
				recursive:    recursive,
				includeTest:  includeTest,
				includeBuild: includeBuild,
			})
		},
	}

	cmd.Flags().BoolVar(&installed, "installed", false, "Only show formulae and casks that are currently installed")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "Resolve more than one level of dependencies")
	cmd.Flags().BoolVar(&includeTest, "include-test", false, "Include test dependencies")
	cmd.Flags().BoolVar(&includeBuild, "include-build", false, "Include build dependencies")

	return cmd
}

// NewDescCmd creates the desc command (show formula descriptions)
func NewDescCmd(cfg *config.Config) *cobra.Command {
	var (
		searchDesc bool
		name       bool
		eval       bool
	)

	cmd := &cobra.Command{
		Use:   "desc [OPTIONS] FORMULA|TEXT",
		Short: "Display a formula's name and one-line description",
		Long: `Display a formula's name and one-line description. If TEXT is provided
instead of a formula name, show all formulae matching the text in their names
or descriptions.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDesc(cfg, args, &descOptions{
				searchDesc: searchDesc,
				name:       name,
				eval:       eval,
			})
		},
	}

	cmd.Flags().BoolVarP(&searchDesc, "search", "s", false, "Search both name and description")
	cmd.Flags().BoolVarP(&name, "name", "n", false, "Search only in name")
	cmd.Flags().BoolVar(&eval, "eval-all", false, "Evaluate all formulae and casks")

	return cmd
}

// NewOptionsCmd creates the options command (show formula options)
func NewOptionsCmd(cfg *config.Config) *cobra.Command {
	var (
		compact   bool
		installed bool
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "options [OPTIONS] [FORMULA...]",
		Short: "Show install options specific to formula",
		Long: `Show install options specific to formula. Note: Options were removed in
Homebrew 2.0. This command is provided for compatibility but will show
that no options are available.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptions(cfg, args, &optionsOptions{
				compact:   compact,
				installed: installed,
				all:       all,
			})
		},
	}

	cmd.Flags().BoolVar(&compact, "compact", false, "Show all options on a single line separated by spaces")
	cmd.Flags().BoolVar(&installed, "installed", false, "Show options for installed formulae")
	cmd.Flags().BoolVar(&all, "all", false, "Show options for all formulae")

	return cmd
}

// NewMissingCmd creates the missing command
func NewMissingCmd(cfg *config.Config) *cobra.Command {
	var hide []string

	cmd := &cobra.Command{
		Use:   "missing [OPTIONS] [FORMULA...]",
		Short: "Check the given formulae for missing dependencies",
		Long: `Check the given formulae for missing dependencies. If no formulae are
given, check all installed formulae.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMissing(cfg, args, hide)
		},
	}

	cmd.Flags().StringSliceVar(&hide, "hide", nil, "Act as if the specified formulae are not installed")

	return cmd
}

type usesOptions struct {
	installed    bool
	recursive    bool
	includeTest  bool
	includeBuild bool
}

type descOptions struct {
	searchDesc bool
	name       bool
	eval       bool
}

type optionsOptions struct {
	compact   bool
	installed bool
	all       bool
}

func openURL(url string) error {
	logger.Info("Opening %s in browser...", url)
	// In a real implementation, this would open the URL in the default browser
	// For now, just show the URL
	fmt.Printf("URL: %s\n", url)
	return nil
}

func openFormulaHomepages(cfg *config.Config, formulaNames []string) error {
	for _, formulaName := range formulaNames {
		// In a real implementation, this would:
		// 1. Load the formula
		// 2. Get its homepage URL
		// 3. Open it in the browser
		logger.Info("Would open homepage for %s", formulaName)
	}
	return nil
}

func runUses(cfg *config.Config, formulaName string, opts *usesOptions) error {
	logger.Info("Finding formulae that use %s...", formulaName)

	if opts.installed {
		logger.Info("Checking only installed formulae...")
	}

	if opts.recursive {
		logger.Info("Performing recursive dependency analysis...")
	}

	// Placeholder implementation
	logger.Info("Uses analysis not yet fully implemented")

	return nil
}

func runDesc(cfg *config.Config, queries []string, opts *descOptions) error {
	if opts.searchDesc || opts.name {
		// Search mode
		return searchDescriptions(cfg, queries, opts)
	}

	// Show descriptions for specific formulae
	for _, formulaName := range queries {
		desc, err := getFormulaDescription(cfg, formulaName)
		if err != nil {
			logger.Error("Failed to get description for %s: %v", formulaName, err)
			continue
		}

		fmt.Printf("%s: %s\n", formulaName, desc)
	}

	return nil
}

func searchDescriptions(cfg *config.Config, queries []string, opts *descOptions) error {
	query := strings.Join(queries, " ")
	logger.Info("Searching for formulae matching '%s'...", query)

	// Placeholder implementation
	// In a real implementation, this would search through all formula descriptions
	logger.Info("Description search not yet fully implemented")

	return nil
}

func getFormulaDescription(cfg *config.Config, formulaName string) (string, error) {
	// Placeholder implementation
	// In a real implementation, this would load the formula and return its description
	return "Formula description", nil
}

func runOptions(cfg *config.Config, formulaNames []string, opts *optionsOptions) error {
	if len(formulaNames) == 0 && !opts.all && !opts.installed {
		return fmt.Errorf("you must specify at least one formula name")
	}

	logger.Info("Note: Options were removed in Homebrew 2.0.")
	logger.Info("Formulae no longer accept options.")

	if opts.all || opts.installed {
		logger.Info("No formulae have options.")
	} else {
		for _, formulaName := range formulaNames {
			fmt.Printf("%s: no options available\n", formulaName)
		}
	}

	return nil
}

func runMissing(cfg *config.Config, formulaNames []string, hide []string) error {
	if len(formulaNames) == 0 {
		// Check all installed formulae
		installed, err := getInstalledFormulae(cfg)
		if err != nil {
			return fmt.Errorf("failed to get installed formulae: %w", err)
		}
		formulaNames = installed
	}

	var missing []string
	hideSet := make(map[string]bool)
	for _, h := range hide {
		hideSet[h] = true
	}

	for _, formulaName := range formulaNames {
		if hideSet[formulaName] {
			continue
		}

		// Check if formula's dependencies are missing
		// Placeholder implementation
		logger.Debug("Checking dependencies for %s", formulaName)
	}

	if len(missing) == 0 {
		logger.Info("No missing dependencies found")
	} else {
		sort.Strings(missing)
		for _, dep := range missing {
			fmt.Println(dep)
		}
	}

	return nil
}
