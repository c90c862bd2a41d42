package cmd

import (
	"fmt"
	"strings"

	"github.com/sps-pm/sps/internal/config"
	"github.com/sps-pm/sps/internal/logger"
	"github.com/spf13/cobra"
)

// NewDepsCmd creates the deps command
func NewDepsCmd(cfg *config.Config) *cobra.Command {
	var (
		showInstalled   bool
		showMissing     bool
		showDependents  bool
		includeOptional bool
		includeBuild    bool
		includeTest     bool
		tree            bool
		topLevel        bool
		annotate        bool
	)

	cmd := &cobra.Command{
		Use:   "deps [OPTIONS] FORMULA...",
		Short: "Show dependencies for formulae",
		Long: `Show dependencies for the given formulae. When given multiple formula
arguments, show the intersection of their dependencies.

By default, deps shows required dependencies for the given formulae.
State-based options like --installed can filter out/in formulae based on their
installation state.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeps(cfg, args, &depsOptions{
				showInstalled:   showInstalled,
				showMissing:     showMissing,
				showDependents:  showDependents,
				includeOptional: includeOptional,
				includeBuild:    includeBuild,
				includeTest:     includeTest,
				tree:            tree,
				topLevel:        topLevel,
				annotate:        annotate,
			})
		},
	}

	cmd.Flags().BoolVar(&showInstalled, "installed", false, "Show dependencies for installed formulae")
	cmd.Flags().BoolVar(&showMissing, "missing", false, "Show only missing dependencies")
	cmd.Flags().BoolVar(&showDependents, "dependents", false, "Show formulae that depend on the specified formula")
	cmd.Flags().BoolVar(&includeOptional, "include-optional", false, "Include optional dependencies")
	cmd.Flags().BoolVar(&includeBuild, "include-build", false, "Include build dependencies")
	cmd.Flags().BoolVar(&includeTest, "include-test", false, "Include test dependencies")
	cmd.Flags().BoolVar(&tree, "tree", false, "Show dependencies as a tree")
	cmd.Flags().BoolVar(&topLevel, "top-level", false, "Show only top-level dependencies")
	cmd.Flags().BoolVar(&annotate, "annotate", false, "Mark any build, test, optional, or recommended dependencies")

	return cmd
}

type depsOptions struct {
	showInstalled   bool
	showMissing     bool
	showDependents  bool
	includeOptional bool
	includeBuild    bool
	includeTest     bool
	tree            bool
	topLevel        bool
	annotate        bool
}

func runDeps(cfg *config.Config, formulaNames []string, opts *depsOptions) error {
	if len(formulaNames) == 0 {
		return fmt.Errorf("no formulae specified")
	}

	if opts.showDependents {
		return showDependents(cfg, formulaNames, opts)
	}

	if opts.tree {
		return showDepsTree(cfg, formulaNames, opts)
	}

	// For now, use placeholder implementation
	// In a real implementation, this would load formulae using formula.LoadFormula
	logger.Info("Analyzing dependencies for: %v", formulaNames)
	logger.Info("Dependencies analysis not yet fully implemented")
	return nil
}

// Placeholder - dependency analysis not yet implemented
// type depInfo struct {
// 	required bool
// 	build    bool
// 	test     bool
// 	optional bool
// }

func showDependents(cfg *config.Config, formulaNames []string, opts *depsOptions) error {
	logger.Info("Finding formulae that depend on %s...", strings.Join(formulaNames, ", "))

	// This would require scanning all formulae to find reverse dependencies
	// For now, show a placeholder message
	logger.Info("Reverse dependency analysis not yet implemented")

	return nil
}

func showDepsTree(cfg *config.Config, formulaNames []string, opts *depsOptions) error {
	logger.Info("Dependency tree analysis not yet fully implemented")
	for _, name := range formulaNames {
		fmt.Printf("%s\n", name)
		fmt.Printf("├── (dependencies not implemented)\n")
	}

	return nil
}

// Removed recursive tree function - not needed for simplified implementation

func isFormulaInstalledDeps(cfg *config.Config, name string) bool {
	// Check if formula is installed by looking in cellar
	// This is a simplified check
	return false // Placeholder implementation
}
