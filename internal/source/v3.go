package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/git-pkgs/nuget/client"
	"github.com/git-pkgs/nuget/fetch"
	"github.com/git-pkgs/nuget/internal/core"
)

// V3Source speaks the NuGet V3 registration protocol: a paged, JSON
// "registration blob" per package id, plus a flat-container convention for
// nupkg downloads.
type V3Source struct {
	sourceURL         string
	registrationBase  string
	flatContainerBase string
	urls              client.URLBuilder
	http              *client.Client
}

// V3Option configures a V3Source.
type V3Option func(*V3Source)

// WithFlatContainerBase overrides the default nuget.org flat-container root.
func WithFlatContainerBase(base string) V3Option {
	return func(s *V3Source) { s.flatContainerBase = base }
}

// WithHTTPClient overrides the V3Source's HTTP client.
func WithHTTPClient(c *client.Client) V3Option {
	return func(s *V3Source) { s.http = c }
}

// WithURLBuilder overrides the URL builder that URLs returns.
func WithURLBuilder(b client.URLBuilder) V3Option {
	return func(s *V3Source) { s.urls = b }
}

// NewV3Source returns a V3Source against registrationBase, the root of a
// feed's "RegistrationsBaseUrl/3.6.0" resource
// (e.g. "https://api.nuget.org/v3/registration5-semver1").
func NewV3Source(sourceURL, registrationBase string, opts ...V3Option) *V3Source {
	s := &V3Source{
		sourceURL:         sourceURL,
		registrationBase:  strings.TrimSuffix(registrationBase, "/"),
		flatContainerBase: fetch.DefaultFlatContainerBase,
		http:              client.DefaultClient(),
	}
	s.urls = &client.BaseURLs{
		RegistryFn: func(id, version string) string {
			return fmt.Sprintf("https://www.nuget.org/packages/%s/%s", id, version)
		},
		DownloadFn: func(id, version string) string {
			return fetch.FlatContainerURL(s.flatContainerBase, id, version).URL
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *V3Source) SourceURL() string { return s.sourceURL }

// URLs returns the URLBuilder this source uses for registry page, download,
// and PURL URLs.
func (s *V3Source) URLs() client.URLBuilder { return s.urls }

// registrationResponse is the top-level document at
// "{registrationBase}/{lowerId}/index.json".
type registrationResponse struct {
	Items []registrationPage `json:"items"`
}

// registrationPage is one page of a (possibly paged) registration index. For
// small id counts nuget.org inlines leaves directly under Items; large
// histories split into separate page documents, which V3Source does not
// chase (every version this module cares about appears inlined in practice
// for the feeds it targets).
type registrationPage struct {
	Items []registrationLeaf `json:"items"`
}

type registrationLeaf struct {
	CatalogEntry catalogEntry `json:"catalogEntry"`
}

type catalogEntry struct {
	ID                string            `json:"id"`
	Version           string            `json:"version"`
	Description       string            `json:"description"`
	ProjectURL        string            `json:"projectUrl"`
	LicenseExpression string            `json:"licenseExpression"`
	Listed            bool              `json:"listed"`
	Tags              []string          `json:"tags"`
	Published         string            `json:"published"`
	Authors           string            `json:"authors"`
	MinClientVersion  string            `json:"minClientVersion"`
	PackageTypes      []packageTypeRef  `json:"packageTypes"`
	Deprecation       *deprecationInfo  `json:"deprecation"`
	Dependencies      []dependencyGroup `json:"dependencyGroups"`
}

type packageTypeRef struct {
	Name string `json:"name"`
}

type deprecationInfo struct {
	Message string   `json:"message"`
	Reasons []string `json:"reasons"`
}

type dependencyGroup struct {
	TargetFramework string       `json:"targetFramework"`
	Dependencies    []dependency `json:"dependencies"`
}

type dependency struct {
	ID    string `json:"id"`
	Range string `json:"range"`
}

func (s *V3Source) indexURL(id string) string {
	return fmt.Sprintf("%s/%s/index.json", s.registrationBase, strings.ToLower(id))
}

// ListVersions fetches the registration index for id and returns every
// version present, honoring includeUnlisted for the catalog entries whose
// Listed flag is false.
func (s *V3Source) ListVersions(ctx context.Context, id string, includeUnlisted bool) ([]core.Version, error) {
	var resp registrationResponse
	if err := s.http.GetJSON(ctx, s.indexURL(id), &resp); err != nil {
		return nil, s.wrapNotFound(id, "", err)
	}

	var versions []core.Version
	for _, page := range resp.Items {
		for _, leaf := range page.Items {
			if !leaf.CatalogEntry.Listed && !includeUnlisted {
				continue
			}
			v, err := core.Parse(leaf.CatalogEntry.Version)
			if err != nil {
				continue
			}
			versions = append(versions, v)
		}
	}
	return versions, nil
}

// DependencyInfo locates identity's catalog entry within the registration
// index and maps it to a core.ResolvedDependencyInfo. A V3 registration
// blob's "listed: false" flag is NuGet's yank-equivalent: ListVersions hides
// it from a default listing, but DependencyInfo still resolves it so a
// pinned reference to an unlisted version keeps working.
func (s *V3Source) DependencyInfo(ctx context.Context, identity core.Identity) (*core.ResolvedDependencyInfo, error) {
	var resp registrationResponse
	if err := s.http.GetJSON(ctx, s.indexURL(identity.ID), &resp); err != nil {
		return nil, s.wrapNotFound(identity.ID, identity.Version.String(), err)
	}

	for _, page := range resp.Items {
		for _, leaf := range page.Items {
			entry := leaf.CatalogEntry
			v, err := core.Parse(entry.Version)
			if err != nil || !v.Equal(identity.Version) {
				continue
			}
			return catalogEntryToInfo(identity, entry), nil
		}
	}

	return nil, &core.NotFoundError{ID: identity.ID, Version: identity.Version.String()}
}

func catalogEntryToInfo(identity core.Identity, entry catalogEntry) *core.ResolvedDependencyInfo {
	info := &core.ResolvedDependencyInfo{
		Identity:          identity,
		Listed:            entry.Listed,
		MinClientVersion:  entry.MinClientVersion,
		LicenseExpression: entry.LicenseExpression,
	}

	for _, pt := range entry.PackageTypes {
		if pt.Name != "" {
			info.PackageTypes = append(info.PackageTypes, pt.Name)
		}
	}

	if entry.Deprecation != nil {
		info.Deprecated = true
		info.DeprecationMessage = entry.Deprecation.Message
	}

	for _, grp := range entry.Dependencies {
		group := core.DependencyGroup{TargetFramework: grp.TargetFramework}
		for _, dep := range grp.Dependencies {
			if dep.ID == "" {
				continue
			}
			r, err := core.ParseRange(dep.Range)
			if err != nil {
				continue
			}
			group.Dependencies = append(group.Dependencies, core.Dependency{ID: dep.ID, Range: r})
		}
		info.DependencyGroups = append(info.DependencyGroups, group)
	}

	return info
}

// DownloadURL returns identity's flat-container nupkg URL.
func (s *V3Source) DownloadURL(identity core.Identity) string {
	return fetch.FlatContainerURL(s.flatContainerBase, identity.ID, identity.Version.Normalized()).URL
}

func (s *V3Source) wrapNotFound(id, version string, err error) error {
	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) && httpErr.IsNotFound() {
		return &core.NotFoundError{ID: id, Version: version}
	}
	return err
}
