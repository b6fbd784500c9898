// Package planner implements the Action Planner: it diffs the resolver's
// output against a project's currently installed set into a correctly
// ordered list of uninstall/install actions, enforces the uninstall
// dependent-guard, and supports the reinstall and orphan-removal variants.
package planner

import (
	"context"
	"sort"

	"github.com/git-pkgs/nuget/internal/core"
	"github.com/git-pkgs/nuget/internal/source"
)

// DependencyGraph resolves the edges the Planner needs to order a plan: for
// a given identity, which other identities (among the ones under
// consideration) it depends on.
type DependencyGraph struct {
	gateway   *source.Gateway
	framework string
}

// NewDependencyGraph returns a DependencyGraph that consults gateway for
// dependency-group information, filtered to framework.
func NewDependencyGraph(gateway *source.Gateway, framework string) *DependencyGraph {
	return &DependencyGraph{gateway: gateway, framework: framework}
}

// sourceURL returns the URL of the source that would serve identity, or ""
// if none does (e.g. it has already been uninstalled from every source's
// point of view, which the planner tolerates).
func (g *DependencyGraph) sourceURL(ctx context.Context, identity core.Identity) string {
	_, sourceURL, err := g.gateway.DependencyInfo(ctx, identity)
	if err != nil {
		return ""
	}
	return sourceURL
}

// dependencyIDs returns the lowercased ids identity depends on, per its
// dependency info. Missing dependency info (e.g. an orphaned/unresolvable
// identity) yields no edges rather than an error — the planner still needs
// to order what it can.
func (g *DependencyGraph) dependencyIDs(ctx context.Context, identity core.Identity) []string {
	info, _, err := g.gateway.DependencyInfo(ctx, identity)
	if err != nil {
		return nil
	}
	var ids []string
	for _, dep := range info.DependenciesFor(g.framework) {
		ids = append(ids, (core.Identity{ID: dep.ID}).Key())
	}
	return ids
}

// Options governs uninstall-guard and reinstall behavior for one Plan call.
type Options struct {
	// RemoveDependencies expands an uninstall set to the transitive set of
	// dependencies that would become orphans.
	RemoveDependencies bool
	// ForceRemove bypasses the dependent guard entirely.
	ForceRemove bool
	// Reinstall, when true, emits an Uninstall+Install pair for every
	// identity present unchanged in both the installed and resolved sets
	// (force-reinstall semantics), instead of treating it as a no-op.
	Reinstall bool
}

// Planner diffs an installed set against a resolved set into an ordered
// ActionPlan.
type Planner struct {
	graph *DependencyGraph
}

// New returns a Planner ordering actions with graph.
func New(graph *DependencyGraph) *Planner {
	return &Planner{graph: graph}
}

// Plan computes the ActionPlan transitioning installed to resolved, honoring
// opts. uninstallTargets names ids the caller explicitly asked to remove
// (the "U" set in §4.5) even if resolved doesn't otherwise imply their
// removal — used by the direct uninstall flow, where resolved is simply
// the installed set.
func (p *Planner) Plan(ctx context.Context, installed, resolved []core.Identity, uninstallTargets []string, opts Options) (core.ActionPlan, error) {
	installedByID := make(map[string]core.Identity, len(installed))
	for _, id := range installed {
		installedByID[id.Key()] = id
	}
	resolvedByID := make(map[string]core.Identity, len(resolved))
	for _, id := range resolved {
		resolvedByID[id.Key()] = id
	}

	uninstallSet := make(map[string]bool)
	for _, id := range uninstallTargets {
		uninstallSet[(core.Identity{ID: id}).Key()] = true
	}

	var toUninstall, toInstall []core.Identity

	for key, id := range installedByID {
		r, stillPresent := resolvedByID[key]
		switch {
		case uninstallSet[key]:
			toUninstall = append(toUninstall, id)
		case !stillPresent:
			toUninstall = append(toUninstall, id)
		case !r.Version.Equal(id.Version):
			toUninstall = append(toUninstall, id)
			toInstall = append(toInstall, r)
		case opts.Reinstall:
			toUninstall = append(toUninstall, id)
			toInstall = append(toInstall, r)
		}
	}
	for key, r := range resolvedByID {
		if _, wasInstalled := installedByID[key]; !wasInstalled {
			toInstall = append(toInstall, r)
		}
	}

	if opts.RemoveDependencies {
		toUninstall = p.expandOrphans(ctx, toUninstall, installedByID, uninstallSet)
	}

	if !opts.ForceRemove {
		if err := p.checkDependentGuard(ctx, toUninstall, installedByID, uninstallSet); err != nil {
			return nil, err
		}
	}

	orderedUninstalls := p.orderUninstalls(ctx, toUninstall)
	orderedInstalls := p.orderInstalls(ctx, toInstall)

	plan := make(core.ActionPlan, 0, len(orderedUninstalls)+len(orderedInstalls))
	for _, id := range orderedUninstalls {
		plan = append(plan, core.Action{Kind: core.Uninstall, Identity: id})
	}
	for _, id := range orderedInstalls {
		plan = append(plan, core.Action{Kind: core.Install, Identity: id, Source: p.graph.sourceURL(ctx, id)})
	}

	return plan, nil
}

// expandOrphans grows the uninstall set to include every dependency (among
// the installed set) that would have no remaining dependent once the
// current uninstall set is removed.
func (p *Planner) expandOrphans(ctx context.Context, toUninstall []core.Identity, installedByID map[string]core.Identity, uninstallSet map[string]bool) []core.Identity {
	removed := make(map[string]bool)
	for _, id := range toUninstall {
		removed[id.Key()] = true
	}

	changed := true
	for changed {
		changed = false
		for key, id := range installedByID {
			if removed[key] {
				continue
			}
			hasLiveDependent := false
			for otherKey, other := range installedByID {
				if removed[otherKey] {
					continue
				}
				for _, depID := range p.graph.dependencyIDs(ctx, other) {
					if depID == key {
						hasLiveDependent = true
						break
					}
				}
				if hasLiveDependent {
					break
				}
			}
			if !hasLiveDependent && dependedOnByAny(p.graph, ctx, key, toUninstall, installedByID) {
				removed[key] = true
				toUninstall = append(toUninstall, id)
				changed = true
			}
		}
	}

	return toUninstall
}

func dependedOnByAny(graph *DependencyGraph, ctx context.Context, key string, removedSoFar []core.Identity, installedByID map[string]core.Identity) bool {
	for _, removedID := range removedSoFar {
		for _, depID := range graph.dependencyIDs(ctx, removedID) {
			if depID == key {
				return true
			}
		}
	}
	return false
}

// checkDependentGuard refuses the plan with *core.DependentsError if any
// installed reference surviving the uninstall (i.e. not itself in
// toUninstall) still depends on an id being uninstalled.
func (p *Planner) checkDependentGuard(ctx context.Context, toUninstall []core.Identity, installedByID map[string]core.Identity, uninstallSet map[string]bool) error {
	removed := make(map[string]bool)
	for _, id := range toUninstall {
		removed[id.Key()] = true
	}

	for key := range removed {
		var dependents []string
		for otherKey, other := range installedByID {
			if removed[otherKey] {
				continue
			}
			for _, depID := range p.graph.dependencyIDs(ctx, other) {
				if depID == key {
					dependents = append(dependents, other.String())
				}
			}
		}
		if len(dependents) > 0 {
			sort.Strings(dependents)
			return &core.DependentsError{ID: installedByID[key].ID, Dependents: dependents}
		}
	}

	return nil
}

// InstallOrder topologically sorts ids dependencies-first. Exposed for
// callers that need the dependency order outside of a full Plan, such as
// enumerating a project's already-installed references.
func (p *Planner) InstallOrder(ctx context.Context, ids []core.Identity) []core.Identity {
	return p.orderInstalls(ctx, ids)
}

// orderUninstalls topologically sorts toUninstall so dependents precede
// their dependencies.
func (p *Planner) orderUninstalls(ctx context.Context, ids []core.Identity) []core.Identity {
	return p.topoSort(ctx, ids, true)
}

// orderInstalls topologically sorts toInstall so dependencies precede their
// dependents.
func (p *Planner) orderInstalls(ctx context.Context, ids []core.Identity) []core.Identity {
	return p.topoSort(ctx, ids, false)
}

// topoSort orders ids by the dependency DAG restricted to ids.
// dependentsFirst=true emits an id before anything it depends on (the
// uninstall order); false emits an id after everything it depends on (the
// install order). Ties are broken by id for determinism.
func (p *Planner) topoSort(ctx context.Context, ids []core.Identity, dependentsFirst bool) []core.Identity {
	if len(ids) == 0 {
		return nil
	}

	byKey := make(map[string]core.Identity, len(ids))
	inSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		byKey[id.Key()] = id
		inSet[id.Key()] = true
	}

	// edges[a] = list of b such that a depends on b, restricted to inSet.
	edges := make(map[string][]string)
	keys := make([]string, 0, len(ids))
	for key, id := range byKey {
		keys = append(keys, key)
		for _, depKey := range p.graph.dependencyIDs(ctx, id) {
			if inSet[depKey] {
				edges[key] = append(edges[key], depKey)
			}
		}
	}
	sort.Strings(keys)
	for k := range edges {
		sort.Strings(edges[k])
	}

	var order []string
	visited := make(map[string]bool)
	inProgress := make(map[string]bool)

	var visit func(key string)
	visit = func(key string) {
		if visited[key] || inProgress[key] {
			return
		}
		inProgress[key] = true
		for _, depKey := range edges[key] {
			visit(depKey)
		}
		inProgress[key] = false
		visited[key] = true
		order = append(order, key)
	}

	for _, key := range keys {
		visit(key)
	}

	// order currently has dependencies before dependents (post-order DFS):
	// that is exactly install order. Reverse it for uninstall order.
	out := make([]core.Identity, len(order))
	if dependentsFirst {
		for i, key := range order {
			out[len(order)-1-i] = byKey[key]
		}
	} else {
		for i, key := range order {
			out[i] = byKey[key]
		}
	}
	return out
}
