// Package resolver builds the transitive dependency DAG over a set of
// requested formulae (§4.1): it decides, per node, whether to build from
// source or pour a bottle, which edges to follow, and emits a topologically
// ordered install plan.
package resolver

import (
	"fmt"

	"github.com/emirpasic/gods/sets/linkedhashset"
	"github.com/emirpasic/gods/stacks/arraystack"

	sperrors "github.com/sps-pm/sps/internal/errors"
	"github.com/sps-pm/sps/internal/formula"
)

// InstallStrategy is the per-node decision on how a formula will be built.
type InstallStrategy int

const (
	BottlePreferred InstallStrategy = iota
	BottleOrFail
	SourceOnly
)

// NodeStatus is the resolver's classification of a node after traversal.
type NodeStatus int

const (
	StatusRequested NodeStatus = iota
	StatusMissing
	StatusInstalled
	StatusFailed
	StatusSkipped
)

// Formulary resolves a name to its Formula definition.
type Formulary interface {
	GetFormula(name string) (*formula.Formula, error)
}

// KegRegistry answers whether a formula is already installed, and at which
// version, without needing the full probe package (keeps this package leaf).
type KegRegistry interface {
	InstalledVersion(name string) (versionStr string, ok bool)
}

// InitialAction mirrors the job action the Planner has already decided for
// an initial (user-requested) target, needed so the resolver can tell an
// initial Reinstall/Upgrade apart from "already installed, stop descending".
type InitialAction int

const (
	ActionNone InitialAction = iota
	ActionInstall
	ActionUpgrade
	ActionReinstall
)

// PerTargetInstallPreferences carries the user's per-formula source/bottle
// overrides (e.g. --build-from-source FOO, --force-bottle BAR).
type PerTargetInstallPreferences struct {
	ForceSource     map[string]bool
	ForceBottleOnly map[string]bool
}

// ResolutionContext is the resolver's input (§4.1).
type ResolutionContext struct {
	Formulary                        Formulary
	Kegs                              KegRegistry
	Platform                          string
	IncludeOptional                   bool
	IncludeTest                       bool
	SkipRecommended                   bool
	Preferences                       PerTargetInstallPreferences
	BuildAllFromSource                bool
	CascadeSourcePreferenceToDeps     bool
	BottleAvailable                   func(f *formula.Formula, platform string) bool
	InitialActions                    map[string]InitialAction
}

// DependencyDetail is one node of the resolved graph.
type DependencyDetail struct {
	Name     string
	Formula  *formula.Formula
	Strategy InstallStrategy
	Status   NodeStatus
}

// ResolvedGraph is the resolver's output: a topological install plan plus
// per-node lookups and the build/runtime opt-path buckets used by installers
// that link against already-installed dependencies.
type ResolvedGraph struct {
	InstallPlan []DependencyDetail
	byName      map[string]*DependencyDetail
	// DependencyEdges is every node's filtered (strategy-aware) edge list,
	// keyed by name — the same set the Pipeline Runner's check_and_dispatch
	// uses to decide whether a job's dependencies have all succeeded (§4.5).
	DependencyEdges map[string][]string
	BuildOptPaths   map[string][]string
	RuntimeOptPaths map[string][]string
}

// Lookup returns the node for a name, if present.
func (g *ResolvedGraph) Lookup(name string) (*DependencyDetail, bool) {
	d, ok := g.byName[name]
	return d, ok
}

type resolver struct {
	ctx     *ResolutionContext
	graph   *ResolvedGraph
	path    *arraystack.Stack // names currently on the DFS path, for cycle detection
	pathSet map[string]bool
	emitted *linkedhashset.Set
}

// Resolve runs the DFS described in §4.1 from every requested target and
// returns the combined ResolvedGraph, or an error if any target's subtree
// cannot be resolved (missing formula, cycle, unsatisfiable BottleOrFail).
func Resolve(ctx *ResolutionContext, targets []string) (*ResolvedGraph, error) {
	r := &resolver{
		ctx: ctx,
		graph: &ResolvedGraph{
			byName:          make(map[string]*DependencyDetail),
			DependencyEdges: make(map[string][]string),
			BuildOptPaths:   make(map[string][]string),
			RuntimeOptPaths: make(map[string][]string),
		},
		path:    arraystack.New(),
		pathSet: make(map[string]bool),
		emitted: linkedhashset.New(),
	}

	for _, t := range targets {
		strategy := r.initialStrategy(t)
		if _, err := r.visit(t, strategy, true, nil); err != nil {
			return nil, err
		}
	}

	for _, v := range r.emitted.Values() {
		name := v.(string)
		r.graph.InstallPlan = append(r.graph.InstallPlan, *r.graph.byName[name])
	}

	return r.graph, nil
}

func (r *resolver) initialStrategy(name string) InstallStrategy {
	if r.ctx.Preferences.ForceSource != nil && r.ctx.Preferences.ForceSource[name] {
		return SourceOnly
	}
	if r.ctx.BuildAllFromSource {
		return SourceOnly
	}
	if r.ctx.Preferences.ForceBottleOnly != nil && r.ctx.Preferences.ForceBottleOnly[name] {
		return BottleOrFail
	}
	return BottlePreferred
}

func (r *resolver) childStrategy(parentStrategy InstallStrategy) InstallStrategy {
	if r.ctx.CascadeSourcePreferenceToDeps && parentStrategy == SourceOnly {
		return SourceOnly
	}
	return BottlePreferred
}

// visit resolves one node and its dependency subtree, returning its final
// status. The parent records the node's opt-path in its build/runtime
// opt-path bucket (addOptPath); dependentTags is not read here.
func (r *resolver) visit(name string, strategy InstallStrategy, initial bool, dependentTags []formula.DependencyTag) (NodeStatus, error) {
	if r.pathSet[name] {
		return StatusFailed, sperrors.NewDependencyError(name, name, fmt.Errorf("dependency cycle detected at %q", name))
	}

	if existing, ok := r.graph.byName[name]; ok {
		return existing.Status, nil
	}

	f, err := r.ctx.Formulary.GetFormula(name)
	if err != nil {
		return StatusFailed, sperrors.NewDependencyError(name, name, fmt.Errorf("formula %q not found: %w", name, err))
	}

	// Strategy becomes SourceOnly automatically if no bottle is available,
	// unless the caller demanded BottleOrFail, in which case this node fails.
	if r.ctx.BottleAvailable != nil && !r.ctx.BottleAvailable(f, r.ctx.Platform) {
		if strategy == BottleOrFail {
			return StatusFailed, sperrors.NewDependencyError(name, name, fmt.Errorf("no bottle available for %q on %q and --force-bottle was requested", name, r.ctx.Platform))
		}
		strategy = SourceOnly
	}

	initialAction := r.ctx.InitialActions[name]
	installedVersion, isInstalled := "", false
	if r.ctx.Kegs != nil {
		installedVersion, isInstalled = r.ctx.Kegs.InstalledVersion(name)
	}

	alreadySatisfied := isInstalled && installedVersion == f.VersionString() &&
		!(initial && (initialAction == ActionReinstall || initialAction == ActionUpgrade))

	detail := &DependencyDetail{Name: name, Formula: f, Strategy: strategy}
	if alreadySatisfied {
		detail.Status = StatusInstalled
		r.graph.byName[name] = detail
		r.emitted.Add(name)
		return StatusInstalled, nil
	}

	if initial {
		detail.Status = StatusRequested
	} else {
		detail.Status = StatusMissing
	}
	r.graph.byName[name] = detail

	r.path.Push(name)
	r.pathSet[name] = true

	var edgeNames []string
	for _, edge := range f.DependencyEdges() {
		if !r.includeEdge(edge, strategy) {
			continue
		}
		childStrategy := r.childStrategy(strategy)
		childStatus, err := r.visit(edge.Name, childStrategy, false, edge.Tags)
		if err != nil {
			detail.Status = StatusFailed
			return StatusFailed, err
		}
		if childStatus != StatusInstalled {
			edgeNames = append(edgeNames, edge.Name)
		}
		r.addOptPath(edge, name)
	}
	r.graph.DependencyEdges[name] = edgeNames

	r.path.Pop()
	delete(r.pathSet, name)

	r.emitted.Add(name)
	return detail.Status, nil
}

func (r *resolver) includeEdge(edge formula.DependencyEdge, parentStrategy InstallStrategy) bool {
	if len(edge.Tags) == 0 {
		return true
	}
	for _, tag := range edge.Tags {
		switch tag {
		case formula.TagBuild:
			if parentStrategy == SourceOnly {
				return true
			}
		case formula.TagTest:
			if r.ctx.IncludeTest {
				return true
			}
		case formula.TagRecommended:
			if !r.ctx.SkipRecommended {
				return true
			}
		case formula.TagOptional:
			if r.ctx.IncludeOptional {
				return true
			}
		}
	}
	return false
}

func (r *resolver) addOptPath(edge formula.DependencyEdge, parent string) {
	optPath := "opt/" + edge.Name
	if edge.HasTag(formula.TagBuild) {
		r.graph.BuildOptPaths[parent] = append(r.graph.BuildOptPaths[parent], optPath)
		return
	}
	r.graph.RuntimeOptPaths[parent] = append(r.graph.RuntimeOptPaths[parent], optPath)
}
