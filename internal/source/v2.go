package source

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/git-pkgs/nuget/client"
	"github.com/git-pkgs/nuget/internal/core"
)

// V2Source speaks the legacy NuGet V2 protocol: an OData/Atom feed queried
// via "FindPackagesById()?id='<id>'", returning one <entry> per version with
// package metadata packed into a pipe/colon-delimited Dependencies
// string rather than the V3 protocol's structured JSON. Used as a fallback
// for the handful of private feeds that never migrated off V2; no
// third-party OData client exists in the ecosystem this module draws from,
// so the feed XML is walked directly with encoding/xml.
type V2Source struct {
	sourceURL string
	base      string
	http      *client.Client
}

// NewV2Source returns a V2Source against base, a V2 feed root (e.g.
// "https://www.nuget.org/api/v2").
func NewV2Source(sourceURL, base string, httpClient *client.Client) *V2Source {
	if httpClient == nil {
		httpClient = client.DefaultClient()
	}
	return &V2Source{
		sourceURL: sourceURL,
		base:      strings.TrimSuffix(base, "/"),
		http:      httpClient,
	}
}

func (s *V2Source) SourceURL() string { return s.sourceURL }

// odataFeed is the Atom feed returned by FindPackagesById().
type odataFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []odataEntry `xml:"entry"`
}

type odataEntry struct {
	Title      string          `xml:"title"`
	Properties odataProperties `xml:"properties"`
}

type odataProperties struct {
	Version           string `xml:"Version"`
	Description       string `xml:"Description"`
	Authors           string `xml:"Authors"`
	ProjectURL        string `xml:"ProjectUrl"`
	LicenseExpression string `xml:"LicenseExpression"`
	IsLatestVersion   bool   `xml:"IsLatestVersion"`
	Listed            *bool  `xml:"Listed"`
	Dependencies      string `xml:"Dependencies"`
	MinClientVersion  string `xml:"MinClientVersion"`
	PackageType       string `xml:"PackageType"`
}

func (s *V2Source) findByIDURL(id string) string {
	return fmt.Sprintf("%s/FindPackagesById()?id='%s'", s.base, id)
}

func (s *V2Source) fetchEntries(ctx context.Context, id string) ([]odataEntry, error) {
	var feed odataFeed
	if err := s.http.GetXML(ctx, s.findByIDURL(id), &feed); err != nil {
		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsNotFound() {
			return nil, &core.NotFoundError{ID: id}
		}
		return nil, err
	}
	return feed.Entries, nil
}

// isListed reports whether an entry's Listed element marks it listed,
// treating an absent element (nil) as listed per ListVersions' doc comment.
func isListed(listed *bool) bool {
	return listed == nil || *listed
}

// ListVersions fetches the FindPackagesById() feed for id and returns its
// versions. V2 feeds carry Listed primarily via IsLatestVersion-adjacent
// visibility conventions rather than a dedicated flag on every entry; this
// treats an entry's explicit Listed element as authoritative when present
// and otherwise assumes listed, since unlisted-by-omission is rare on V2.
func (s *V2Source) ListVersions(ctx context.Context, id string, includeUnlisted bool) ([]core.Version, error) {
	entries, err := s.fetchEntries(ctx, id)
	if err != nil {
		return nil, err
	}

	var versions []core.Version
	for _, e := range entries {
		if !isListed(e.Properties.Listed) && !includeUnlisted {
			continue
		}
		v, err := core.Parse(e.Properties.Version)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// DependencyInfo finds identity's entry in the FindPackagesById() feed and
// parses its pipe/colon-delimited Dependencies string
// ("id:range:targetFramework|id:range:targetFramework|...") into dependency
// groups.
func (s *V2Source) DependencyInfo(ctx context.Context, identity core.Identity) (*core.ResolvedDependencyInfo, error) {
	entries, err := s.fetchEntries(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		v, err := core.Parse(e.Properties.Version)
		if err != nil || !v.Equal(identity.Version) {
			continue
		}
		return odataEntryToInfo(identity, e), nil
	}

	return nil, &core.NotFoundError{ID: identity.ID, Version: identity.Version.String()}
}

func odataEntryToInfo(identity core.Identity, e odataEntry) *core.ResolvedDependencyInfo {
	info := &core.ResolvedDependencyInfo{
		Identity:          identity,
		Listed:            isListed(e.Properties.Listed),
		MinClientVersion:  e.Properties.MinClientVersion,
		LicenseExpression: e.Properties.LicenseExpression,
	}
	if e.Properties.PackageType != "" {
		info.PackageTypes = []string{e.Properties.PackageType}
	}

	groups := make(map[string]*core.DependencyGroup)
	var order []string

	for _, spec := range strings.Split(e.Properties.Dependencies, "|") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		parts := strings.Split(spec, ":")
		id := strings.TrimSpace(parts[0])
		if id == "" {
			continue
		}
		var rangeStr, framework string
		if len(parts) > 1 {
			rangeStr = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			framework = strings.TrimSpace(parts[2])
		}
		if rangeStr == "" {
			rangeStr = "0.0.0"
		}
		r, err := core.ParseRange(rangeStr)
		if err != nil {
			continue
		}

		g, ok := groups[framework]
		if !ok {
			g = &core.DependencyGroup{TargetFramework: framework}
			groups[framework] = g
			order = append(order, framework)
		}
		g.Dependencies = append(g.Dependencies, core.Dependency{ID: id, Range: r})
	}

	for _, fw := range order {
		info.DependencyGroups = append(info.DependencyGroups, *groups[fw])
	}

	return info
}

// DownloadURL returns identity's V2 package-content URL.
func (s *V2Source) DownloadURL(identity core.Identity) string {
	return fmt.Sprintf("%s/package/%s/%s", s.base, identity.ID, identity.Version.Normalized())
}
