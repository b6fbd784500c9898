// Package client provides the HTTP transport shared by the NuGet source
// gateway: a retrying client for feed JSON/XML calls and a URLBuilder
// abstraction for the per-source URLs (registry page, download, PURL) that
// accompany a resolved identity.
package client

import "fmt"

// URLBuilder constructs URLs for a feed source.
type URLBuilder interface {
	Registry(id, version string) string
	Download(id, version string) string
	Documentation(id, version string) string
	PURL(id, version string) string
}

// BaseURLs provides a default URLBuilder implementation.
type BaseURLs struct {
	RegistryFn      func(name, version string) string
	DownloadFn      func(name, version string) string
	DocumentationFn func(name, version string) string
	PURLFn          func(name, version string) string
}

func (b *BaseURLs) Registry(id, version string) string {
	if b.RegistryFn != nil {
		return b.RegistryFn(id, version)
	}
	return ""
}

func (b *BaseURLs) Download(id, version string) string {
	if b.DownloadFn != nil {
		return b.DownloadFn(id, version)
	}
	return ""
}

func (b *BaseURLs) Documentation(id, version string) string {
	if b.DocumentationFn != nil {
		return b.DocumentationFn(id, version)
	}
	return ""
}

func (b *BaseURLs) PURL(id, version string) string {
	if b.PURLFn != nil {
		return b.PURLFn(id, version)
	}
	if version != "" {
		return fmt.Sprintf("pkg:nuget/%s@%s", id, version)
	}
	return fmt.Sprintf("pkg:nuget/%s", id)
}

// BuildURLs returns a map of all non-empty URLs for an identity.
// Keys are "registry", "download", "docs", and "purl".
func BuildURLs(urls URLBuilder, id, version string) map[string]string {
	result := make(map[string]string)
	if v := urls.Registry(id, version); v != "" {
		result["registry"] = v
	}
	if v := urls.Download(id, version); v != "" {
		result["download"] = v
	}
	if v := urls.Documentation(id, version); v != "" {
		result["docs"] = v
	}
	if v := urls.PURL(id, version); v != "" {
		result["purl"] = v
	}
	return result
}
