package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/git-pkgs/nuget/internal/core"
)

func writeFeed(w http.ResponseWriter, entries []odataEntry) {
	w.Header().Set("Content-Type", "application/atom+xml")
	fmt.Fprint(w, `<?xml version="1.0" encoding="utf-8"?><feed xmlns="http://www.w3.org/2005/Atom">`)
	for _, e := range entries {
		listedElement := ""
		if e.Properties.Listed != nil {
			listedElement = fmt.Sprintf("<Listed>%t</Listed>", *e.Properties.Listed)
		}
		fmt.Fprintf(w, `<entry><properties>`+
			`<Version>%s</Version>`+
			`%s`+
			`<Dependencies>%s</Dependencies>`+
			`<LicenseExpression>%s</LicenseExpression>`+
			`</properties></entry>`,
			e.Properties.Version, listedElement, e.Properties.Dependencies, e.Properties.LicenseExpression)
	}
	fmt.Fprint(w, `</feed>`)
}

func boolPtr(b bool) *bool { return &b }

func TestV2Source_ListVersions_OmittedListedElementIsListed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFeed(w, []odataEntry{
			{Properties: odataProperties{Version: "1.0.0"}},
		})
	}))
	defer server.Close()

	src := NewV2Source(server.URL, server.URL, nil)

	versions, err := src.ListVersions(context.Background(), "Example", false)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("entry with no <Listed> element should be treated as listed, got %d versions", len(versions))
	}
}

func TestV2Source_ListVersions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/FindPackagesById()" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		writeFeed(w, []odataEntry{
			{Properties: odataProperties{Version: "1.2.0", Listed: boolPtr(true)}},
			{Properties: odataProperties{Version: "1.1.0", Listed: boolPtr(false)}},
		})
	}))
	defer server.Close()

	src := NewV2Source(server.URL, server.URL, nil)

	versions, err := src.ListVersions(context.Background(), "Example", false)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("expected 1 listed version, got %d", len(versions))
	}

	all, err := src.ListVersions(context.Background(), "Example", true)
	if err != nil {
		t.Fatalf("ListVersions(includeUnlisted): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 versions including unlisted, got %d", len(all))
	}
}

func TestV2Source_DependencyInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFeed(w, []odataEntry{
			{Properties: odataProperties{
				Version:           "2.0.0",
				Listed:            boolPtr(true),
				LicenseExpression: "Apache-2.0",
				Dependencies:      "Newtonsoft.Json:[9.0.1, ):net45|Castle.Core:[4.0.0, ):net45|Newtonsoft.Json:[9.0.1, ):net40",
			}},
		})
	}))
	defer server.Close()

	src := NewV2Source(server.URL, server.URL, nil)
	identity := core.Identity{ID: "Example", Version: core.MustParse("2.0.0")}

	info, err := src.DependencyInfo(context.Background(), identity)
	if err != nil {
		t.Fatalf("DependencyInfo: %v", err)
	}
	if info.LicenseExpression != "Apache-2.0" {
		t.Errorf("LicenseExpression = %q, want Apache-2.0", info.LicenseExpression)
	}
	if len(info.DependencyGroups) != 2 {
		t.Fatalf("expected 2 dependency groups (net45, net40), got %d", len(info.DependencyGroups))
	}

	net45 := info.DependenciesFor("net45")
	if len(net45) != 2 {
		t.Errorf("net45 dependencies = %d, want 2", len(net45))
	}
}

func TestV2Source_DependencyInfo_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	src := NewV2Source(server.URL, server.URL, nil)
	identity := core.Identity{ID: "missing", Version: core.MustParse("1.0.0")}

	_, err := src.DependencyInfo(context.Background(), identity)
	if _, ok := err.(*core.NotFoundError); !ok {
		t.Errorf("err = %v (%T), want *core.NotFoundError", err, err)
	}
}

func TestV2Source_DownloadURL(t *testing.T) {
	src := NewV2Source("https://www.nuget.org/api/v2", "https://www.nuget.org/api/v2", nil)
	identity := core.Identity{ID: "jQuery", Version: core.MustParse("1.4.4")}

	want := "https://www.nuget.org/api/v2/package/jQuery/1.4.4"
	if got := src.DownloadURL(identity); got != want {
		t.Errorf("DownloadURL = %q, want %q", got, want)
	}
}
