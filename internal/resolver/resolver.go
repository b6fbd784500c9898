// Package resolver implements the dependency resolver: given an installed
// set, a set of targets, and policy flags, it produces a consistent set of
// identities satisfying every range constraint in the dependency graph,
// upgrading parents whose pinned range is violated by a moved child and
// failing with a typed error when no such resolution exists.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/git-pkgs/nuget/internal/core"
	"github.com/git-pkgs/nuget/internal/source"
)

// maxFixpointIterations bounds how many times the parent-update convergence
// loop processes any one id; a well-formed dependency graph converges in far
// fewer passes than this, so hitting the bound means the graph is cyclic at
// the identity level.
const maxFixpointIterations = 64

// Mode distinguishes the install flow (which refuses no-op
// already-installed targets and unsolicited downgrades) from update flows
// (where both are expected outcomes).
type Mode int

const (
	ModeInstall Mode = iota
	ModeUpdate
)

// Target is one resolution goal: either a pinned identity (Version set) or
// an id-only "resolve to latest permissible version" request.
type Target struct {
	ID      string
	Version *core.Version
}

// Installed is one entry of the installed set I, carrying its manifest-level
// version lock if any.
type Installed struct {
	Identity        core.Identity
	AllowedVersions *core.Range
}

// Request bundles the resolver's inputs for one Resolve call.
type Request struct {
	Targets   []Target
	Installed []Installed
	Policy    core.ResolutionContext
	Framework string
	Gateway   *source.Gateway
	Mode      Mode
	// Project names the project a PackageAlreadyInstalled error is
	// attributed to.
	Project string
}

type edge struct {
	fromKey string
	fromID  string
	r       core.Range
}

// Resolver runs the resolution algorithm described in §4.4: candidate
// universe construction, DependencyBehavior-driven version selection,
// global consistency enforcement, and the parent-update rule.
type Resolver struct{}

// New returns a Resolver. Resolver carries no state of its own; every
// Resolve call is independent given its Request.
func New() *Resolver {
	return &Resolver{}
}

// Resolve computes the resolved set R for req. The result is sorted by id
// for determinism (same inputs and source snapshot always yield the same
// ordered slice).
func (res *Resolver) Resolve(ctx context.Context, req Request) ([]core.Identity, error) {
	installedByID := make(map[string]Installed, len(req.Installed))
	for _, inst := range req.Installed {
		installedByID[inst.Identity.Key()] = inst
	}

	resolved := make(map[string]core.Identity, len(req.Installed))
	originalCase := make(map[string]string, len(req.Installed))
	for _, inst := range req.Installed {
		key := inst.Identity.Key()
		resolved[key] = inst.Identity
		originalCase[key] = inst.Identity.ID
	}

	pinned := make(map[string]bool)

	for _, target := range req.Targets {
		identity, err := res.expandTarget(ctx, req, target)
		if err != nil {
			return nil, err
		}
		key := identity.Key()

		if existing, ok := installedByID[key]; ok && req.Mode == ModeInstall {
			if existing.Identity.Version.Equal(identity.Version) {
				return nil, &core.AlreadyInstalledError{ID: identity.ID, Project: req.Project}
			}
			if target.Version == nil && identity.Version.LessThan(existing.Identity.Version) {
				return nil, &core.DowngradeError{ID: identity.ID, From: existing.Identity.Version, To: identity.Version}
			}
		}

		resolved[key] = identity
		originalCase[key] = identity.ID
		pinned[key] = true
	}

	if req.Policy.DependencyBehavior == core.Ignore {
		return sortedIdentities(resolved), nil
	}

	if err := res.expandAndValidate(ctx, req, resolved, originalCase, pinned, installedByID); err != nil {
		return nil, err
	}

	return sortedIdentities(resolved), nil
}

func (res *Resolver) expandTarget(ctx context.Context, req Request, target Target) (core.Identity, error) {
	if target.Version != nil {
		return core.Identity{ID: target.ID, Version: *target.Version}, nil
	}

	v, err := req.Gateway.GetLatestVersion(ctx, target.ID, source.LatestVersionPolicy{
		IncludePrerelease: req.Policy.IncludePrerelease,
		IncludeUnlisted:   req.Policy.IncludeUnlisted,
	})
	if err != nil {
		return core.Identity{}, err
	}
	return core.Identity{ID: target.ID, Version: v}, nil
}

// expandAndValidate runs the transitive dependency walk and the
// parent-update fixpoint described in §4.4 steps 2-5, mutating resolved in
// place.
func (res *Resolver) expandAndValidate(
	ctx context.Context,
	req Request,
	resolved map[string]core.Identity,
	originalCase map[string]string,
	pinned map[string]bool,
	installedByID map[string]Installed,
) error {
	edgesByDependency := make(map[string][]edge)
	queue := make([]string, 0, len(resolved))
	for key := range resolved {
		queue = append(queue, key)
	}
	sort.Strings(queue)

	visited := make(map[string]bool)
	passes := make(map[string]int)

	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		if visited[key] {
			continue
		}
		visited[key] = true

		passes[key]++
		if passes[key] > maxFixpointIterations {
			return fmt.Errorf("nuget: dependency graph did not converge after %d iterations", maxFixpointIterations)
		}

		identity := resolved[key]
		info, _, err := req.Gateway.DependencyInfo(ctx, identity)
		if err != nil {
			return err
		}

		for _, dep := range info.DependenciesFor(req.Framework) {
			depKey := core.Identity{ID: dep.ID}.Key()
			edgesByDependency[depKey] = replaceEdge(edgesByDependency[depKey], edge{fromKey: key, fromID: identity.ID, r: dep.Range})

			changed, err := res.resolveDependency(ctx, req, depKey, dep.ID, edgesByDependency[depKey], resolved, originalCase, pinned, installedByID, &queue, visited)
			if err != nil {
				return err
			}
			if changed || !visited[depKey] {
				visited[depKey] = false
				queue = append(queue, depKey)
			}
		}

		if err := res.reconcileParent(ctx, req, key, identity, edgesByDependency, resolved, originalCase, pinned, installedByID, &queue, visited); err != nil {
			return err
		}
	}

	return nil
}

// resolveDependency picks or re-picks depKey's version given every range
// constraint discovered so far. Returns changed=true if the chosen version
// differs from whatever was previously resolved, which requires requeuing
// depKey's own dependents.
func (res *Resolver) resolveDependency(
	ctx context.Context,
	req Request,
	depKey, depID string,
	edges []edge,
	resolved map[string]core.Identity,
	originalCase map[string]string,
	pinned map[string]bool,
	installedByID map[string]Installed,
	queue *[]string,
	visited map[string]bool,
) (bool, error) {
	merged, ok := intersectAll(edges)
	if !ok {
		return false, &core.ConflictError{ID: depID, Sides: edgeSides(edges)}
	}

	if pinned[depKey] {
		existing := resolved[depKey]
		if !merged.Satisfies(existing.Version) {
			upgraded, err := res.upgradeViolatingParents(ctx, req, depID, existing.Version, edges, resolved, originalCase, pinned, installedByID, queue, visited)
			if err != nil {
				return false, err
			}
			if !upgraded {
				return false, &core.ConflictError{ID: existing.ID, Sides: edgeSides(edges)}
			}
		}
		return false, nil
	}

	installed, hasInstalled := installedByID[depKey]
	var installedVersion *core.Version
	if hasInstalled {
		v := installed.Identity.Version
		installedVersion = &v
	}

	versions, err := req.Gateway.ListVersions(ctx, depID, req.Policy.IncludeUnlisted)
	if err != nil {
		return false, err
	}

	candidates := filterCandidates(versions, &merged, req.Policy, installedVersion, nil, allowedVersionsFor(installed, hasInstalled))
	chosen, ok := selectVersion(candidates, req.Policy.DependencyBehavior, installedVersion)
	if !ok {
		return false, &core.ConflictError{ID: depID, Sides: edgeSides(edges)}
	}

	existing, existed := resolved[depKey]
	newIdentity := core.Identity{ID: firstNonEmpty(originalCase[depKey], depID), Version: chosen}
	resolved[depKey] = newIdentity
	originalCase[depKey] = newIdentity.ID

	return !existed || !existing.Version.Equal(chosen), nil
}

// upgradeViolatingParents implements the pinned-child half of the
// parent-update rule: when a pinned target's resolved version no longer
// satisfies one or more of its dependents' declared ranges, attempt to move
// each violating dependent to the lowest version whose own declared range
// admits childVersion (§9's "pick the lowest parent version whose range
// admits the chosen child"), instead of failing outright. Returns false if
// any violating dependent is itself pinned or has no admitting version, in
// which case the caller raises a ConflictError.
func (res *Resolver) upgradeViolatingParents(
	ctx context.Context,
	req Request,
	childID string,
	childVersion core.Version,
	edges []edge,
	resolved map[string]core.Identity,
	originalCase map[string]string,
	pinned map[string]bool,
	installedByID map[string]Installed,
	queue *[]string,
	visited map[string]bool,
) (bool, error) {
	for _, e := range edges {
		if e.r.Satisfies(childVersion) {
			continue
		}
		if pinned[e.fromKey] {
			return false, nil
		}
		parentIdentity, ok := resolved[e.fromKey]
		if !ok {
			return false, nil
		}

		upgraded, err := res.lowestParentSatisfying(ctx, req, e.fromKey, parentIdentity, childID, childVersion, installedByID)
		if err != nil {
			return false, err
		}
		if upgraded == nil {
			return false, nil
		}

		newIdentity := core.Identity{ID: parentIdentity.ID, Version: *upgraded}
		resolved[e.fromKey] = newIdentity
		originalCase[e.fromKey] = newIdentity.ID
		visited[e.fromKey] = false
		*queue = append(*queue, e.fromKey)
	}
	return true, nil
}

// reconcileParent implements the parent-update rule: if "key"'s own
// resolved version no longer satisfies a range some other dependent placed
// on it is irrelevant here (that's handled in resolveDependency); this
// handles the opposite direction — key depends on something that moved out
// from under its own declared range, requiring key itself to move.
func (res *Resolver) reconcileParent(
	ctx context.Context,
	req Request,
	key string,
	identity core.Identity,
	edgesByDependency map[string][]edge,
	resolved map[string]core.Identity,
	originalCase map[string]string,
	pinned map[string]bool,
	installedByID map[string]Installed,
	queue *[]string,
	visited map[string]bool,
) error {
	info, _, err := req.Gateway.DependencyInfo(ctx, identity)
	if err != nil {
		return err
	}

	for _, dep := range info.DependenciesFor(req.Framework) {
		depKey := core.Identity{ID: dep.ID}.Key()
		child, ok := resolved[depKey]
		if !ok {
			continue
		}
		if dep.Range.Satisfies(child.Version) {
			continue
		}

		if pinned[key] {
			return &core.ConflictError{ID: identity.ID, Sides: []string{identity.String(), child.String()}}
		}

		upgraded, err := res.lowestParentSatisfying(ctx, req, key, identity, dep.ID, child.Version, installedByID)
		if err != nil {
			return err
		}
		if upgraded == nil {
			return &core.ConflictError{ID: identity.ID, Sides: []string{identity.String(), child.String()}}
		}

		newIdentity := core.Identity{ID: identity.ID, Version: *upgraded}
		resolved[key] = newIdentity
		originalCase[key] = newIdentity.ID
		visited[key] = false
		*queue = append(*queue, key)
		return nil
	}

	return nil
}

// lowestParentSatisfying returns the lowest version of parentIdentity's id
// whose declared range for the id of childVersion admits childVersion,
// implementing the Open Question resolution in §9: "pick the lowest parent
// version whose range admits the chosen child."
func (res *Resolver) lowestParentSatisfying(
	ctx context.Context,
	req Request,
	parentKey string,
	parentIdentity core.Identity,
	childID string,
	childVersion core.Version,
	installedByID map[string]Installed,
) (*core.Version, error) {
	childKey := (core.Identity{ID: childID}).Key()
	versions, err := req.Gateway.ListVersions(ctx, parentIdentity.ID, req.Policy.IncludeUnlisted)
	if err != nil {
		return nil, err
	}

	installed, hasInstalled := installedByID[parentKey]
	var installedVersion *core.Version
	if hasInstalled {
		v := installed.Identity.Version
		installedVersion = &v
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i].LessThan(versions[j]) })

	for _, v := range versions {
		if v.LessThan(parentIdentity.Version) {
			continue
		}
		if v.IsPrerelease() && !req.Policy.IncludePrerelease {
			if installedVersion == nil || !installedVersion.Equal(v) {
				continue
			}
		}
		info, _, err := req.Gateway.DependencyInfo(ctx, core.Identity{ID: parentIdentity.ID, Version: v})
		if err != nil {
			continue
		}
		for _, dep := range info.DependenciesFor(req.Framework) {
			if (core.Identity{ID: dep.ID}).Key() == childKey && dep.Range.Satisfies(childVersion) {
				vv := v
				return &vv, nil
			}
		}
	}

	return nil, nil
}

// replaceEdge drops any prior edge from the same parent (keyed by the
// parent's id, not its resolved version) before appending e, so a parent re-queued after an
// upgrade contributes only its current declared range, not a stale one from
// before the upgrade.
func replaceEdge(edges []edge, e edge) []edge {
	out := make([]edge, 0, len(edges)+1)
	for _, existing := range edges {
		if existing.fromKey == e.fromKey {
			continue
		}
		out = append(out, existing)
	}
	return append(out, e)
}

func allowedVersionsFor(inst Installed, ok bool) *core.Range {
	if !ok {
		return nil
	}
	return inst.AllowedVersions
}

func edgeSides(edges []edge) []string {
	sides := make([]string, 0, len(edges))
	for _, e := range edges {
		sides = append(sides, fmt.Sprintf("%s requires %s", e.fromID, e.r.String()))
	}
	return sides
}

func intersectAll(edges []edge) (core.Range, bool) {
	if len(edges) == 0 {
		return core.Range{}, true
	}
	merged := edges[0].r
	for _, e := range edges[1:] {
		var ok bool
		merged, ok = merged.Intersect(e.r)
		if !ok {
			return core.Range{}, false
		}
	}
	return merged, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortedIdentities(resolved map[string]core.Identity) []core.Identity {
	out := make([]core.Identity, 0, len(resolved))
	for _, identity := range resolved {
		out = append(out, identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
