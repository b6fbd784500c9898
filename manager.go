// Package nuget is the package management core of a .NET-style package
// manager: given a project's installed packages and a requested operation
// (install, update, uninstall, reinstall), it resolves a consistent set of
// identities, plans an ordered sequence of actions, and applies them to the
// project's manifest and the shared package store.
//
// Basic usage:
//
//	gateway := source.NewGateway(source.NewV3Source(sourceURL, registrationBase))
//	store := applier.NewFolderStore(packagesRoot)
//	mgr := nuget.NewPackageManager(gateway, store, fetch.NewFetcher(), applier.NullProjectSystem{}, "net8.0")
//
//	targets := []resolver.Target{{ID: "Newtonsoft.Json"}}
//	plan, err := mgr.PreviewInstall(ctx, project, targets, nil, core.ResolutionContext{DependencyBehavior: core.Highest})
//	...
//	err = mgr.Install(ctx, project, targets, nil, core.ResolutionContext{DependencyBehavior: core.Highest}, core.ProjectContext{})
package nuget

import (
	"context"

	"github.com/git-pkgs/nuget/internal/applier"
	"github.com/git-pkgs/nuget/internal/core"
	"github.com/git-pkgs/nuget/internal/planner"
	"github.com/git-pkgs/nuget/internal/resolver"
	"github.com/git-pkgs/nuget/internal/source"

	"github.com/git-pkgs/nuget/fetch"
	"github.com/git-pkgs/purl"
)

// Re-exported types from internal/core and internal/resolver: callers of
// this package never need to import an internal path.
type (
	Identity              = core.Identity
	Version               = core.Version
	Range                 = core.Range
	PackageReference      = core.PackageReference
	ResolutionContext     = core.ResolutionContext
	UninstallationContext = core.UninstallationContext
	ProjectContext        = core.ProjectContext
	ExecutionContext      = core.ExecutionContext
	DependencyBehavior    = core.DependencyBehavior
	VersionConstraints    = core.VersionConstraints
	ActionPlan            = core.ActionPlan
	Action                = core.Action
	ActionKind            = core.ActionKind

	Target    = resolver.Target
	Installed = resolver.Installed

	Project          = applier.Project
	ProjectSystem    = applier.ProjectSystem
	FolderStore      = applier.FolderStore
	ContentReference = applier.ContentReference
)

const (
	Ignore       = core.Ignore
	Lowest       = core.Lowest
	HighestPatch = core.HighestPatch
	HighestMinor = core.HighestMinor
	Highest      = core.Highest

	Uninstall = core.Uninstall
	Install   = core.Install

	ExactMajor   = core.ExactMajor
	ExactMinor   = core.ExactMinor
	ExactPatch   = core.ExactPatch
	ExactRelease = core.ExactRelease
	ExactAll     = core.ExactAll
)

// PackageManager is the façade over the Resolver, Planner, and Applier: it
// dispatches Resolver+Planner for previews, and Resolver+Planner+Applier for
// executions, against a single configured source gateway and store.
type PackageManager struct {
	gateway  *source.Gateway
	store    *applier.FolderStore
	resolver *resolver.Resolver
	graph    *planner.DependencyGraph
	planner  *planner.Planner
	applier  *applier.Applier

	framework string
}

// NewPackageManager wires a PackageManager over gateway (the configured
// sources), store (the solution-wide package folder), fetcher (nupkg byte
// retrieval), and projects (build-system integration), scoped to framework.
// fetcher is wrapped in a per-feed-host circuit breaker so a flaky source
// can't be hammered with nupkg downloads on every resolved install.
func NewPackageManager(gateway *source.Gateway, store *applier.FolderStore, fetcher fetch.FetcherInterface, projects applier.ProjectSystem, framework string) *PackageManager {
	graph := planner.NewDependencyGraph(gateway, framework)
	return &PackageManager{
		gateway:   gateway,
		store:     store,
		resolver:  resolver.New(),
		graph:     graph,
		planner:   planner.New(graph),
		applier:   applier.New(store, gateway, fetch.NewCircuitBreakerFetcher(fetcher), projects),
		framework: framework,
	}
}

// PreviewInstall resolves targets against installed under policy and returns
// the ordered action plan, without applying it.
func (m *PackageManager) PreviewInstall(ctx context.Context, project Project, targets []Target, installed []Installed, policy ResolutionContext) (ActionPlan, error) {
	resolved, err := m.resolver.Resolve(ctx, resolver.Request{
		Targets:   targets,
		Installed: installed,
		Policy:    policy,
		Framework: m.framework,
		Gateway:   m.gateway,
		Mode:      resolver.ModeInstall,
		Project:   project.ProjectKey,
	})
	if err != nil {
		return nil, err
	}
	return m.planner.Plan(ctx, installedIdentities(installed), resolved, nil, planner.Options{})
}

// Install previews then applies an install of targets into project.
func (m *PackageManager) Install(ctx context.Context, project Project, targets []Target, installed []Installed, policy ResolutionContext, projCtx ProjectContext) error {
	plan, err := m.PreviewInstall(ctx, project, targets, installed, policy)
	if err != nil {
		return err
	}
	return m.Execute(ctx, plan, project, projCtx)
}

// Execute applies plan, an ActionPlan already computed by PreviewInstall,
// PreviewUpdate, or PreviewUninstall, against project: it is the final step
// of the preview-then-execute workflow, letting a caller inspect or
// otherwise act on a plan before committing it.
func (m *PackageManager) Execute(ctx context.Context, plan ActionPlan, project Project, projCtx ProjectContext) error {
	return m.applier.Apply(ctx, plan, project, projCtx)
}

// PreviewUninstall computes the ordered uninstall plan for ids out of
// installed, honoring uctx's dependent-guard and orphan-removal behavior.
func (m *PackageManager) PreviewUninstall(ctx context.Context, installed []Identity, ids []string, uctx UninstallationContext) (ActionPlan, error) {
	return m.planner.Plan(ctx, installed, installed, ids, planner.Options{
		RemoveDependencies: uctx.RemoveDependencies,
		ForceRemove:        uctx.ForceRemove,
	})
}

// Uninstall previews then applies an uninstall of ids from project, whose
// currently installed set is installed.
func (m *PackageManager) Uninstall(ctx context.Context, project Project, installed []Identity, ids []string, uctx UninstallationContext, projCtx ProjectContext) error {
	plan, err := m.PreviewUninstall(ctx, installed, ids, uctx)
	if err != nil {
		return err
	}
	return m.Execute(ctx, plan, project, projCtx)
}

// PreviewUpdate computes the update plan for project. targets selects the
// mode per §4.5: empty updates every installed id to its latest permissible
// version; an id-only target updates that id (coercing dependencies per
// policy.DependencyBehavior); an identity target pins the update to exactly
// that version (a downgrade is allowed). Passing policy.VersionConstraints
// including core.ExactAll requests a reinstall: an Uninstall+Install pair at
// the currently installed version for every entry in installed.
func (m *PackageManager) PreviewUpdate(ctx context.Context, project Project, installed []Installed, targets []Target, policy ResolutionContext) (ActionPlan, error) {
	if policy.VersionConstraints.Has(core.ExactAll) {
		return m.planner.Plan(ctx, installedIdentities(installed), installedIdentities(installed), nil, planner.Options{Reinstall: true})
	}

	if len(targets) == 0 {
		targets = make([]Target, 0, len(installed))
		for _, inst := range installed {
			targets = append(targets, Target{ID: inst.Identity.ID})
		}
	}

	resolved, err := m.resolver.Resolve(ctx, resolver.Request{
		Targets:   targets,
		Installed: installed,
		Policy:    policy,
		Framework: m.framework,
		Gateway:   m.gateway,
		Mode:      resolver.ModeUpdate,
		Project:   project.ProjectKey,
	})
	if err != nil {
		return nil, err
	}
	return m.planner.Plan(ctx, installedIdentities(installed), resolved, nil, planner.Options{})
}

// Update previews then applies an update of project per PreviewUpdate's
// mode rules.
func (m *PackageManager) Update(ctx context.Context, project Project, installed []Installed, targets []Target, policy ResolutionContext, projCtx ProjectContext) error {
	plan, err := m.PreviewUpdate(ctx, project, installed, targets, policy)
	if err != nil {
		return err
	}
	return m.Execute(ctx, plan, project, projCtx)
}

// GetInstalledPackagesInDependencyOrder returns project's manifest entries
// sorted topologically by the dependency DAG derived from source metadata,
// or an empty list if any entry's store content is missing (unrestored).
func (m *PackageManager) GetInstalledPackagesInDependencyOrder(ctx context.Context, project Project) ([]PackageReference, error) {
	refs, err := applier.ReadManifest(project.ManifestPath)
	if err != nil {
		return nil, err
	}

	for _, r := range refs {
		if !m.store.IsPresent(r.Identity) {
			return nil, nil
		}
	}

	ids := make([]Identity, len(refs))
	for i, r := range refs {
		ids[i] = r.Identity
	}
	ordered := m.planner.InstallOrder(ctx, ids)

	byKey := make(map[string]PackageReference, len(refs))
	for _, r := range refs {
		byKey[r.Identity.Key()] = r
	}

	out := make([]PackageReference, 0, len(ordered))
	for _, id := range ordered {
		out = append(out, byKey[id.Key()])
	}
	return out, nil
}

// RestorePackage materializes identity into the shared store without
// touching any project's manifest; a safe no-op if already present.
func (m *PackageManager) RestorePackage(ctx context.Context, identity Identity) error {
	return m.applier.Restore(ctx, identity)
}

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string into its components, e.g.
// "pkg:nuget/Newtonsoft.Json@13.0.3".
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}

// TargetFromPURL converts a parsed PURL into a resolver Target: pinned to
// p.Version if present, otherwise an id-only "resolve to latest" target.
func TargetFromPURL(p *PURL) (Target, error) {
	if p.Version == "" {
		return Target{ID: p.Name}, nil
	}
	v, err := core.Parse(p.Version)
	if err != nil {
		return Target{}, err
	}
	return Target{ID: p.Name, Version: &v}, nil
}

func installedIdentities(installed []Installed) []Identity {
	out := make([]Identity, len(installed))
	for i, inst := range installed {
		out[i] = inst.Identity
	}
	return out
}
