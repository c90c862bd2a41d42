// Package planner turns a resolved dependency graph (and a cask request)
// into the ordered list of PlannedJobs the Pipeline Runner drives (§4.3).
package planner

import (
	"fmt"

	"github.com/sps-pm/sps/internal/cask"
	"github.com/sps-pm/sps/internal/formula"
	"github.com/sps-pm/sps/internal/pipeline"
	"github.com/sps-pm/sps/internal/resolver"
)

// CaskSource resolves a cask token to its definition.
type CaskSource interface {
	GetCask(token string) (*cask.Cask, error)
}

// KegProbe reports installed formula/cask versions, and install paths for
// ones being replaced by an Upgrade/Reinstall.
type KegProbe interface {
	resolver.KegRegistry
	InstalledCaskVersion(token string) (versionStr string, ok bool)
	InstallPath(name string, kind pipeline.TargetKind, versionStr string) string
	WasSourceBuild(name string) bool
}

// Request is everything the Planner needs to build one install run (§4.3).
type Request struct {
	FormulaTargets []string
	CaskTargets    []string

	// InitialActions names the per-command action (Install/Upgrade/Reinstall)
	// for each explicitly requested target; absent entries default to Install.
	InitialActions map[string]resolver.InitialAction

	Platform        string
	IncludeOptional bool
	IncludeTest     bool
	SkipRecommended bool

	Preferences                   resolver.PerTargetInstallPreferences
	BuildAllFromSource            bool
	CascadeSourcePreferenceToDeps bool

	// PrivateStoreLookup, if non-nil, is consulted per cask target for a
	// reusable prior download (§3 S4); returning "" means "not cached".
	PrivateStoreLookup func(token, versionStr string) string
}

// Planner builds PlannedJobs from a Request.
type Planner struct {
	formulary resolver.Formulary
	casks     CaskSource
	kegs      KegProbe

	bottleAvailable func(f *formula.Formula, platform string) bool
}

// New creates a Planner. bottleAvailable is handed to the resolver, which
// uses it to decide whether a formula node must fall back to SourceOnly;
// cask jobs do not consult it.
func New(formulary resolver.Formulary, casks CaskSource, kegs KegProbe, bottleAvailable func(f *formula.Formula, platform string) bool) *Planner {
	return &Planner{formulary: formulary, casks: casks, kegs: kegs, bottleAvailable: bottleAvailable}
}

// Plan is the Planner's output: an ordered job list plus everything the
// Pipeline Runner needs to seed its state map (§4.5 Startup).
type Plan struct {
	Jobs             []*pipeline.PlannedJob
	Graph            *resolver.ResolvedGraph
	AlreadySatisfied map[string]bool
	Errors           map[string]error
}

// Build resolves formula dependencies, walks cask dependencies, and returns
// the ordered job list: formula jobs (topological) followed by cask jobs.
func (p *Planner) Build(req *Request) (*Plan, error) {
	plan := &Plan{
		AlreadySatisfied: make(map[string]bool),
		Errors:           make(map[string]error),
	}

	if len(req.FormulaTargets) > 0 || p.formulaDepsNeeded(req) {
		ctx := &resolver.ResolutionContext{
			Formulary:                     p.formulary,
			Kegs:                          p.kegs,
			Platform:                      req.Platform,
			IncludeOptional:               req.IncludeOptional,
			IncludeTest:                   req.IncludeTest,
			SkipRecommended:               req.SkipRecommended,
			Preferences:                   req.Preferences,
			BuildAllFromSource:            req.BuildAllFromSource,
			CascadeSourcePreferenceToDeps: req.CascadeSourcePreferenceToDeps,
			BottleAvailable:               p.bottleAvailable,
			InitialActions:                req.InitialActions,
		}

		graph, err := resolver.Resolve(ctx, req.FormulaTargets)
		if err != nil {
			return nil, fmt.Errorf("resolving dependencies: %w", err)
		}
		plan.Graph = graph

		for _, detail := range graph.InstallPlan {
			if detail.Status == resolver.StatusInstalled {
				plan.AlreadySatisfied[detail.Name] = true
				continue
			}
			job := p.formulaJob(detail, req)
			plan.Jobs = append(plan.Jobs, job)
		}
	}

	seenCasks := make(map[string]bool)
	for _, token := range req.CaskTargets {
		if err := p.addCaskJob(token, req, plan, seenCasks, true); err != nil {
			plan.Errors[token] = err
		}
	}

	return plan, nil
}

// formulaDepsNeeded exists so a cask-only request that depends on formulae
// still gets the resolver run; kept simple (casks declare their own formula
// deps, walked separately in addCaskJob) so this is always false today, but
// the seam stays open for a future combined formula+cask resolve pass.
func (p *Planner) formulaDepsNeeded(_ *Request) bool { return false }

func (p *Planner) formulaJob(detail resolver.DependencyDetail, req *Request) *pipeline.PlannedJob {
	f := detail.Formula
	action := pipeline.ActionInstall
	fromVersion := ""
	oldPath := ""

	if initial := req.InitialActions[detail.Name]; initial != resolver.ActionNone {
		switch initial {
		case resolver.ActionUpgrade:
			action = pipeline.ActionUpgrade
		case resolver.ActionReinstall:
			action = pipeline.ActionReinstall
		}
	}
	if installedVersion, ok := p.kegs.InstalledVersion(detail.Name); ok && installedVersion != f.VersionString() {
		if action == pipeline.ActionInstall {
			action = pipeline.ActionUpgrade
		}
		fromVersion = installedVersion
		oldPath = p.kegs.InstallPath(detail.Name, pipeline.TargetFormula, installedVersion)
	}

	isSourceBuild := detail.Strategy == resolver.SourceOnly

	// An Upgrade/Reinstall that carries no explicit --build-from-source or
	// --force-bottle preference for this name inherits the build method
	// recorded in the old INSTALL_RECEIPT.json (§3 S3), instead of silently
	// reverting a source-built formula to a bottle.
	explicitPreference := req.Preferences.ForceSource[detail.Name] || req.Preferences.ForceBottleOnly[detail.Name] || req.BuildAllFromSource
	if !isSourceBuild && !explicitPreference && (action == pipeline.ActionUpgrade || action == pipeline.ActionReinstall) && p.kegs.WasSourceBuild(detail.Name) {
		isSourceBuild = true
	}

	return &pipeline.PlannedJob{
		TargetID:       detail.Name,
		Kind:           pipeline.TargetFormula,
		Formula:        f,
		Action:         action,
		FromVersion:    fromVersion,
		OldInstallPath: oldPath,
		IsSourceBuild:  isSourceBuild,
	}
}

// addCaskJob walks a cask's formula/cask dependencies depth-first (BFS in
// spirit, implemented recursively since cask graphs are shallow in
// practice), appending dependency jobs before the cask's own job so the
// Pipeline Runner's dependency gate (§4.5) is always satisfiable.
func (p *Planner) addCaskJob(token string, req *Request, plan *Plan, seen map[string]bool, initial bool) error {
	if seen[token] {
		return nil
	}
	seen[token] = true

	c, err := p.casks.GetCask(token)
	if err != nil {
		return fmt.Errorf("cask %q not found: %w", token, err)
	}

	for _, dep := range c.Depends {
		for _, depToken := range dep.Cask {
			if err := p.addCaskJob(depToken, req, plan, seen, false); err != nil {
				return fmt.Errorf("dependency %q of cask %q: %w", depToken, token, err)
			}
		}
		for _, depFormula := range dep.Formula {
			if err := p.addCaskFormulaDep(depFormula, req, plan); err != nil {
				return fmt.Errorf("formula dependency %q of cask %q: %w", depFormula, token, err)
			}
		}
	}

	if v, ok := p.kegs.InstalledCaskVersion(token); ok && v == c.Version {
		initialAction := req.InitialActions[token]
		if !initial || (initialAction != resolver.ActionReinstall && initialAction != resolver.ActionUpgrade) {
			plan.AlreadySatisfied[token] = true
			return nil
		}
	}

	action := pipeline.ActionInstall
	fromVersion := ""
	oldPath := ""
	if initialAction := req.InitialActions[token]; initialAction != resolver.ActionNone {
		switch initialAction {
		case resolver.ActionUpgrade:
			action = pipeline.ActionUpgrade
		case resolver.ActionReinstall:
			action = pipeline.ActionReinstall
		}
	}
	if v, ok := p.kegs.InstalledCaskVersion(token); ok && v != c.Version {
		if action == pipeline.ActionInstall {
			action = pipeline.ActionUpgrade
		}
		fromVersion = v
		oldPath = p.kegs.InstallPath(token, pipeline.TargetCask, v)
	}

	job := &pipeline.PlannedJob{
		TargetID:       token,
		Kind:           pipeline.TargetCask,
		Cask:           c,
		Action:         action,
		FromVersion:    fromVersion,
		OldInstallPath: oldPath,
	}
	if req.PrivateStoreLookup != nil {
		job.UsePrivateStoreSource = req.PrivateStoreLookup(token, c.Version)
	}

	plan.Jobs = append(plan.Jobs, job)
	return nil
}

// addCaskFormulaDep resolves a formula a cask depends on (e.g. a CLI a GUI
// app wraps) through the same resolver path as an explicit formula target.
func (p *Planner) addCaskFormulaDep(name string, req *Request, plan *Plan) error {
	for _, j := range plan.Jobs {
		if j.Kind == pipeline.TargetFormula && j.TargetID == name {
			return nil
		}
	}
	if plan.AlreadySatisfied[name] {
		return nil
	}

	ctx := &resolver.ResolutionContext{
		Formulary:       p.formulary,
		Kegs:            p.kegs,
		Platform:        req.Platform,
		IncludeOptional: req.IncludeOptional,
		IncludeTest:     req.IncludeTest,
		SkipRecommended: req.SkipRecommended,
		Preferences:     req.Preferences,
		BottleAvailable: p.bottleAvailable,
	}
	graph, err := resolver.Resolve(ctx, []string{name})
	if err != nil {
		return err
	}
	for _, detail := range graph.InstallPlan {
		if detail.Status == resolver.StatusInstalled {
			plan.AlreadySatisfied[detail.Name] = true
			continue
		}
		plan.Jobs = append(plan.Jobs, p.formulaJob(detail, req))
	}
	return nil
}
