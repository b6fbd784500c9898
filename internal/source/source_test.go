package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/git-pkgs/nuget/client"
	"github.com/git-pkgs/nuget/internal/core"
)

func newTestV3Server(t *testing.T, versions map[string]bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var leaves []registrationLeaf
		for v, listed := range versions {
			leaves = append(leaves, registrationLeaf{CatalogEntry: catalogEntry{ID: "Example", Version: v, Listed: listed}})
		}
		resp := registrationResponse{Items: []registrationPage{{Items: leaves}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestGateway_ListVersions_UnionsAcrossSources(t *testing.T) {
	s1 := newTestV3Server(t, map[string]bool{"1.0.0": true})
	defer s1.Close()
	s2 := newTestV3Server(t, map[string]bool{"1.0.0": true, "2.0.0": true})
	defer s2.Close()

	gw := NewGateway(
		NewV3Source(s1.URL, s1.URL+"/registration5-semver1"),
		NewV3Source(s2.URL, s2.URL+"/registration5-semver1"),
	)

	versions, err := gw.ListVersions(context.Background(), "Example", false)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 deduped versions, got %d: %v", len(versions), versions)
	}
}

func TestGateway_ListVersions_AllSourcesFail(t *testing.T) {
	s1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer s1.Close()

	gw := NewGateway(NewV3Source(s1.URL, s1.URL+"/registration5-semver1", WithHTTPClient(client.NewClient(client.WithMaxRetries(0)))))

	_, err := gw.ListVersions(context.Background(), "Example", false)
	if _, ok := err.(*core.SourceUnavailableError); !ok {
		t.Errorf("err = %v (%T), want *core.SourceUnavailableError", err, err)
	}
}

func TestGateway_DependencyInfo_ProbesInOrder(t *testing.T) {
	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer missing.Close()

	present := newTestV3Server(t, map[string]bool{"1.0.0": true})
	defer present.Close()

	gw := NewGateway(
		NewV3Source(missing.URL, missing.URL+"/registration5-semver1"),
		NewV3Source(present.URL, present.URL+"/registration5-semver1"),
	)

	identity := core.Identity{ID: "Example", Version: core.MustParse("1.0.0")}
	info, sourceURL, err := gw.DependencyInfo(context.Background(), identity)
	if err != nil {
		t.Fatalf("DependencyInfo: %v", err)
	}
	if sourceURL != present.URL {
		t.Errorf("sourceURL = %q, want %q", sourceURL, present.URL)
	}
	if info.Identity.ID != "Example" {
		t.Errorf("info.Identity.ID = %q, want Example", info.Identity.ID)
	}
}

func TestGateway_DependencyInfo_AllSourcesFailWithNonNotFoundError(t *testing.T) {
	s1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer s1.Close()

	gw := NewGateway(NewV3Source(s1.URL, s1.URL+"/registration5-semver1", WithHTTPClient(client.NewClient(client.WithMaxRetries(0)))))

	identity := core.Identity{ID: "Example", Version: core.MustParse("1.0.0")}
	_, _, err := gw.DependencyInfo(context.Background(), identity)
	if _, ok := err.(*core.SourceUnavailableError); !ok {
		t.Errorf("err = %v (%T), want *core.SourceUnavailableError", err, err)
	}
}

func TestGateway_DependencyInfo_AllSourcesNotFound(t *testing.T) {
	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer missing.Close()

	gw := NewGateway(NewV3Source(missing.URL, missing.URL+"/registration5-semver1"))

	identity := core.Identity{ID: "Example", Version: core.MustParse("1.0.0")}
	_, _, err := gw.DependencyInfo(context.Background(), identity)
	if _, ok := err.(*core.NotFoundError); !ok {
		t.Errorf("err = %v (%T), want *core.NotFoundError", err, err)
	}
}

func TestGateway_GetLatestVersion_ExcludesPrerelease(t *testing.T) {
	s := newTestV3Server(t, map[string]bool{"1.0.0": true, "2.0.0-beta": true})
	defer s.Close()

	gw := NewGateway(NewV3Source(s.URL, s.URL+"/registration5-semver1"))

	v, err := gw.GetLatestVersion(context.Background(), "Example", LatestVersionPolicy{})
	if err != nil {
		t.Fatalf("GetLatestVersion: %v", err)
	}
	if v.String() != "1.0.0" {
		t.Errorf("latest = %q, want 1.0.0 (prerelease excluded)", v.String())
	}
}

func TestGateway_GetLatestVersion_NoneQualify(t *testing.T) {
	s := newTestV3Server(t, map[string]bool{"2.0.0-beta": true})
	defer s.Close()

	gw := NewGateway(NewV3Source(s.URL, s.URL+"/registration5-semver1"))

	_, err := gw.GetLatestVersion(context.Background(), "Example", LatestVersionPolicy{})
	if _, ok := err.(*core.NoLatestVersionError); !ok {
		t.Errorf("err = %v (%T), want *core.NoLatestVersionError", err, err)
	}
}
