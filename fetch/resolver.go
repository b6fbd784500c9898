package fetch

import (
	"fmt"
	"strings"
)

// ArtifactInfo describes a downloadable nupkg artifact.
type ArtifactInfo struct {
	URL      string
	Filename string
}

// DefaultFlatContainerBase is nuget.org's public v3-flatcontainer root, used
// when a source does not advertise its own PackageBaseAddress resource.
const DefaultFlatContainerBase = "https://api.nuget.org/v3-flatcontainer"

// FlatContainerURL returns the canonical v3-flatcontainer download URL for
// id/version: "<baseURL>/<lowerId>/<lowerVersion>/<lowerId>.<lowerVersion>.nupkg".
// NuGet package ids and normalized versions are case-insensitive, so both
// segments are lowercased, matching every V3 feed's PackageBaseAddress
// convention.
func FlatContainerURL(baseURL, id, version string) ArtifactInfo {
	lowerID := strings.ToLower(id)
	lowerVersion := strings.ToLower(version)
	base := strings.TrimSuffix(baseURL, "/")
	return ArtifactInfo{
		URL:      fmt.Sprintf("%s/%s/%s/%s.%s.nupkg", base, lowerID, lowerVersion, lowerID, lowerVersion),
		Filename: fmt.Sprintf("%s.%s.nupkg", lowerID, lowerVersion),
	}
}
