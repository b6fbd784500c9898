// Package source implements the SourceGateway: the abstraction over NuGet
// feeds that lists versions, fetches dependency info, and resolves
// download URLs, aggregating across multiple configured feeds and
// memoizing per-operation fetches via the GatherCache.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/git-pkgs/nuget/internal/core"
)

// Source is a single configured feed, speaking either the V3 (JSON) or
// legacy V2 (OData/XML) protocol.
type Source interface {
	// SourceURL is the stable PackageSource.Source URL used for equality and
	// plan attribution.
	SourceURL() string

	// ListVersions returns the versions known for id. Unlisted versions are
	// excluded unless includeUnlisted is true.
	ListVersions(ctx context.Context, id string, includeUnlisted bool) ([]core.Version, error)

	// DependencyInfo returns dependency and metadata information for
	// identity. Returns a *core.NotFoundError if the identity is unknown to
	// this source.
	DependencyInfo(ctx context.Context, identity core.Identity) (*core.ResolvedDependencyInfo, error)

	// DownloadURL returns the nupkg download URL for identity.
	DownloadURL(identity core.Identity) string
}

// Gateway composes multiple Sources into the single abstraction the
// Resolver and Applier consume: ListVersions unions and dedupes across
// sources, DependencyInfo probes sources in declared order and returns the
// first hit, and failures from individual sources are recoverable (the next
// source is tried) unless all fail.
type Gateway struct {
	sources []Source
	cache   *Cache
}

// NewGateway returns a Gateway over sources, probed in the given order.
func NewGateway(sources ...Source) *Gateway {
	return &Gateway{sources: sources, cache: NewCache()}
}

// Cache returns the gateway's GatherCache, created by NewGateway and kept
// for the gateway's lifetime; it is not cleared between operations.
func (g *Gateway) Cache() *Cache {
	return g.cache
}

// ListVersions unions versions for id across every configured source,
// deduping by normalized version. An error is returned only if every source
// fails.
func (g *Gateway) ListVersions(ctx context.Context, id string, includeUnlisted bool) ([]core.Version, error) {
	seen := make(map[string]bool)
	var result []core.Version
	var errs []error

	for _, src := range g.sources {
		versions, err := src.ListVersions(ctx, id, includeUnlisted)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, v := range versions {
			key := v.Normalized()
			if seen[key] {
				continue
			}
			seen[key] = true
			result = append(result, v)
		}
	}

	if len(result) == 0 && len(errs) == len(g.sources) && len(g.sources) > 0 {
		return nil, &core.SourceUnavailableError{Causes: errs}
	}

	return result, nil
}

// DependencyInfo probes sources in order for identity, deduplicating
// concurrent fetches for the same (source, identity) pair via the
// GatherCache, and returns the first hit along with the URL of the source
// that served it.
func (g *Gateway) DependencyInfo(ctx context.Context, identity core.Identity) (*core.ResolvedDependencyInfo, string, error) {
	var errs []error

	for _, src := range g.sources {
		key := Key{Source: src.SourceURL(), Identity: identity}
		info, err := g.cache.Gather(ctx, key, func(ctx context.Context) (*core.ResolvedDependencyInfo, error) {
			return src.DependencyInfo(ctx, identity)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return info, src.SourceURL(), nil
	}

	if len(g.sources) == 0 {
		return nil, "", &core.NotFoundError{ID: identity.ID, Version: identity.Version.String()}
	}

	for _, err := range errs {
		var notFound *core.NotFoundError
		if !errors.As(err, &notFound) {
			return nil, "", &core.SourceUnavailableError{Causes: errs}
		}
	}

	return nil, "", &core.NotFoundError{ID: identity.ID, Version: identity.Version.String()}
}

// LatestVersionPolicy governs getLatestVersion admission.
type LatestVersionPolicy struct {
	IncludePrerelease bool
	IncludeUnlisted   bool
}

// GetLatestVersion returns the greatest version across sources satisfying
// policy. Fails with *core.NoLatestVersionError if none qualify — notably,
// if policy forbids prerelease and only prereleases exist, it does not fall
// back to a prerelease.
func (g *Gateway) GetLatestVersion(ctx context.Context, id string, policy LatestVersionPolicy) (core.Version, error) {
	versions, err := g.ListVersions(ctx, id, policy.IncludeUnlisted)
	if err != nil {
		return core.Version{}, err
	}

	var best core.Version
	found := false
	for _, v := range versions {
		if v.IsPrerelease() && !policy.IncludePrerelease {
			continue
		}
		if !found || v.GreaterThan(best) {
			best = v
			found = true
		}
	}

	if !found {
		return core.Version{}, &core.NoLatestVersionError{ID: id}
	}
	return best, nil
}

// DownloadURL resolves the download URL for identity from the source that
// originally served its dependency info, or the first configured source if
// sourceURL is empty/unknown.
func (g *Gateway) DownloadURL(identity core.Identity, sourceURL string) (string, error) {
	for _, src := range g.sources {
		if sourceURL == "" || src.SourceURL() == sourceURL {
			return src.DownloadURL(identity), nil
		}
	}
	return "", fmt.Errorf("nuget: no configured source matches %q", sourceURL)
}
