package applier

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/git-pkgs/nuget/fetch"
	"github.com/git-pkgs/nuget/internal/core"
	"github.com/git-pkgs/nuget/internal/source"
)

// Project identifies the manifest an apply operates on and the framework it
// targets; ProjectKey is the store's reference-counting key, stable across
// restores of the same project (typically the manifest path itself).
type Project struct {
	ProjectKey      string
	ManifestPath    string
	TargetFramework string
}

// Applier executes an ActionPlan against a Project: manifest edits, store
// materialization, and ProjectSystem callbacks, with a per-project mutex
// serializing concurrent applies to the same manifest and a shared
// FolderStore safe for concurrent use across projects.
type Applier struct {
	store    *FolderStore
	gateway  *source.Gateway
	fetcher  fetch.FetcherInterface
	projects ProjectSystem

	mu         sync.Mutex
	manifestMu map[string]*sync.Mutex
}

// New returns an Applier materializing package content through store,
// fetching bytes via gateway/fetcher, and wiring build integration through
// projects.
func New(store *FolderStore, gateway *source.Gateway, fetcher fetch.FetcherInterface, projects ProjectSystem) *Applier {
	return &Applier{
		store:      store,
		gateway:    gateway,
		fetcher:    fetcher,
		projects:   projects,
		manifestMu: make(map[string]*sync.Mutex),
	}
}

func (a *Applier) lockFor(projectKey string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.manifestMu[projectKey]
	if !ok {
		l = &sync.Mutex{}
		a.manifestMu[projectKey] = l
	}
	return l
}

// Apply executes plan against project in order, holding project's manifest
// mutex across the whole read-modify-write. On any action's failure it
// stops, leaving every earlier action's effect committed and wraps the
// cause in *core.AggregateError naming the action that failed.
func (a *Applier) Apply(ctx context.Context, plan core.ActionPlan, project Project, projCtx core.ProjectContext) error {
	lock := a.lockFor(project.ProjectKey)
	lock.Lock()
	defer lock.Unlock()

	refs, err := ReadManifest(project.ManifestPath)
	if err != nil {
		return err
	}

	didWork := false
	for _, action := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch action.Kind {
		case core.Uninstall:
			refs, err = a.applyUninstall(ctx, action, project, refs)
		case core.Install:
			refs, err = a.applyInstall(ctx, action, project, refs, projCtx)
		}
		if err != nil {
			return &core.AggregateError{Action: action, Inner: err}
		}
		didWork = true
	}

	if didWork && !projCtx.BindingRedirectsDisabled {
		if err := a.projects.WriteBindingRedirects(); err != nil && err != ErrBindingRedirectsUnsupported {
			return fmt.Errorf("writing binding redirects: %w", err)
		}
	}

	return nil
}

func (a *Applier) applyUninstall(ctx context.Context, action core.Action, project Project, refs []core.PackageReference) ([]core.PackageReference, error) {
	idx := -1
	for i, r := range refs {
		if r.Identity.Key() == action.Identity.Key() {
			idx = i
			break
		}
	}
	if idx == -1 {
		return refs, nil
	}
	identity := refs[idx].Identity

	if err := a.projects.RemoveReferences(identity); err != nil {
		return refs, fmt.Errorf("removing project references: %w", err)
	}

	updated := make([]core.PackageReference, 0, len(refs)-1)
	updated = append(updated, refs[:idx]...)
	updated = append(updated, refs[idx+1:]...)

	if err := WriteManifest(project.ManifestPath, updated); err != nil {
		return refs, err
	}

	if _, err := a.store.RemoveReference(identity, project.ProjectKey); err != nil {
		return updated, fmt.Errorf("releasing store reference: %w", err)
	}

	return updated, nil
}

func (a *Applier) applyInstall(ctx context.Context, action core.Action, project Project, refs []core.PackageReference, projCtx core.ProjectContext) ([]core.PackageReference, error) {
	identity := action.Identity

	info, sourceURL, err := a.gateway.DependencyInfo(ctx, identity)
	if err != nil {
		return refs, fmt.Errorf("fetching package metadata: %w", err)
	}
	if gateErr := a.checkMinClientVersion(info); gateErr != nil {
		return refs, gateErr
	}

	if !a.store.IsPresent(identity) {
		downloadURL, err := a.gateway.DownloadURL(identity, sourceURL)
		if err != nil {
			return refs, fmt.Errorf("resolving download url: %w", err)
		}
		if err := a.fetchAndExtract(ctx, identity, downloadURL); err != nil {
			return refs, err
		}
	}
	a.store.AddReference(identity, project.ProjectKey)

	contentRefs, err := a.selectContent(identity, project.TargetFramework)
	if err != nil {
		return refs, err
	}
	if err := a.projects.AddReferences(identity, contentRefs); err != nil {
		return refs, fmt.Errorf("adding project references: %w", err)
	}

	if projCtx.Direct && projCtx.ExecutionContext != nil {
		if readme := a.store.ReadmePath(identity); readme != "" {
			projCtx.ExecutionContext.FilesOpened = append(projCtx.ExecutionContext.FilesOpened, readme)
		}
	}

	existing := findReference(refs, identity.Key())
	newRef := core.PackageReference{
		Identity:        identity,
		TargetFramework: project.TargetFramework,
	}
	if existing != nil {
		preserved := existing.Clone()
		preserved.Identity = identity
		preserved.TargetFramework = project.TargetFramework
		newRef = preserved
	}

	updated := replaceOrAppend(refs, newRef)
	if err := WriteManifest(project.ManifestPath, updated); err != nil {
		return refs, err
	}

	return updated, nil
}

// Restore materializes identity into the shared store without touching any
// project's manifest or invoking ProjectSystem; a no-op if the content is
// already present.
func (a *Applier) Restore(ctx context.Context, identity core.Identity) error {
	info, sourceURL, err := a.gateway.DependencyInfo(ctx, identity)
	if err != nil {
		return fmt.Errorf("fetching package metadata: %w", err)
	}
	if err := a.checkMinClientVersion(info); err != nil {
		return err
	}
	if a.store.IsPresent(identity) {
		return nil
	}
	downloadURL, err := a.gateway.DownloadURL(identity, sourceURL)
	if err != nil {
		return fmt.Errorf("resolving download url: %w", err)
	}
	return a.fetchAndExtract(ctx, identity, downloadURL)
}

func (a *Applier) checkMinClientVersion(info *core.ResolvedDependencyInfo) error {
	const implementationVersion = "6.0.0"
	if info.MinClientVersion != "" {
		min, err := core.Parse(info.MinClientVersion)
		if err == nil {
			impl, _ := core.Parse(implementationVersion)
			if min.GreaterThan(impl) {
				return &core.VersionNotSatisfiedError{Identity: info.Identity, Reason: fmt.Sprintf("requires client %s", info.MinClientVersion)}
			}
		}
	}
	for _, pt := range info.PackageTypes {
		if !knownPackageTypes[pt] {
			return &core.VersionNotSatisfiedError{Identity: info.Identity, Reason: fmt.Sprintf("unsupported package type %q", pt)}
		}
	}
	return nil
}

var knownPackageTypes = map[string]bool{
	"":           true,
	"Dependency": true,
	"DotnetTool": true,
	"Template":   true,
}

func (a *Applier) fetchAndExtract(ctx context.Context, identity core.Identity, url string) error {
	artifact, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", identity, err)
	}
	defer artifact.Body.Close()

	tmp, err := os.CreateTemp("", "nuget-*.nupkg")
	if err != nil {
		return fmt.Errorf("buffering %s: %w", identity, err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	size, err := io.Copy(tmp, artifact.Body)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", identity, err)
	}

	return a.store.Extract(identity, tmp, size)
}

// selectContent chooses the best-matching lib/ and ref/ content folders in
// identity's store directory for targetFramework, per §6's
// longest-compatible-framework rule. A package with no framework-specific
// content at all is always installable.
func (a *Applier) selectContent(identity core.Identity, targetFramework string) ([]ContentReference, error) {
	var out []ContentReference
	anyFrameworkSpecific := false

	for _, kind := range []string{"lib", "ref"} {
		folders, err := a.store.ReferenceFolders(identity, kind)
		if err != nil {
			return nil, err
		}
		if len(folders) == 0 {
			continue
		}
		anyFrameworkSpecific = true

		var bestTFM, bestPath string
		bestScore := -1
		for tfm, path := range folders {
			if !core.IsCompatible(targetFramework, tfm) {
				continue
			}
			if score := core.FrameworkSpecificity(tfm); score > bestScore {
				bestScore, bestTFM, bestPath = score, tfm, path
			}
		}
		if bestPath != "" {
			out = append(out, ContentReference{Identity: identity, Kind: kind, TargetFramework: bestTFM, Path: bestPath})
		}
	}

	if anyFrameworkSpecific && len(out) == 0 {
		return nil, &core.NoCompatibleItemsError{Identity: identity, Framework: targetFramework}
	}
	return out, nil
}

func findReference(refs []core.PackageReference, key string) *core.PackageReference {
	for i := range refs {
		if refs[i].Identity.Key() == key {
			return &refs[i]
		}
	}
	return nil
}

func replaceOrAppend(refs []core.PackageReference, ref core.PackageReference) []core.PackageReference {
	for i := range refs {
		if refs[i].Identity.Key() == ref.Identity.Key() {
			out := make([]core.PackageReference, len(refs))
			copy(out, refs)
			out[i] = ref
			return out
		}
	}
	out := make([]core.PackageReference, len(refs), len(refs)+1)
	copy(out, refs)
	return append(out, ref)
}
