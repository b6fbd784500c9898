package nuget

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/git-pkgs/nuget/fetch"
	"github.com/git-pkgs/nuget/internal/applier"
	"github.com/git-pkgs/nuget/internal/core"
	"github.com/git-pkgs/nuget/internal/source"
)

// catalogEntry is one package's worth of metadata and content served by
// fakeCatalog.
type catalogEntry struct {
	info  *core.ResolvedDependencyInfo
	nupkg []byte
}

// fakeCatalog is an in-memory source.Source serving a fixed set of
// packages, with no network I/O, for end-to-end façade tests.
type fakeCatalog struct {
	byIdentity map[string]catalogEntry
	versions   map[string][]core.Version
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		byIdentity: make(map[string]catalogEntry),
		versions:   make(map[string][]core.Version),
	}
}

func (c *fakeCatalog) add(identity core.Identity, deps []core.Dependency, nupkg []byte) {
	info := &core.ResolvedDependencyInfo{
		Identity: identity,
		Listed:   true,
	}
	if deps != nil {
		info.DependencyGroups = []core.DependencyGroup{{TargetFramework: "", Dependencies: deps}}
	}
	c.byIdentity[identity.String()] = catalogEntry{info: info, nupkg: nupkg}
	key := identity.Key()
	c.versions[key] = append(c.versions[key], identity.Version)
}

func (c *fakeCatalog) SourceURL() string { return "https://fake.example/v3/index.json" }

func (c *fakeCatalog) ListVersions(ctx context.Context, id string, includeUnlisted bool) ([]core.Version, error) {
	return c.versions[(core.Identity{ID: id}).Key()], nil
}

func (c *fakeCatalog) DependencyInfo(ctx context.Context, identity core.Identity) (*core.ResolvedDependencyInfo, error) {
	entry, ok := c.byIdentity[identity.String()]
	if !ok {
		return nil, &core.NotFoundError{ID: identity.ID, Version: identity.Version.Normalized()}
	}
	return entry.info, nil
}

func (c *fakeCatalog) DownloadURL(identity core.Identity) string {
	return "https://fake.example/flat/" + identity.Key() + "/" + identity.Version.Normalized() + "/package.nupkg"
}

// fakeFetcher serves the nupkg bytes a fakeCatalog associates with each
// identity's download URL.
type fakeFetcher struct {
	catalog *fakeCatalog
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*fetch.Artifact, error) {
	for _, entry := range f.catalog.byIdentity {
		if f.catalog.DownloadURL(entry.info.Identity) == url {
			return &fetch.Artifact{Body: io.NopCloser(bytes.NewReader(entry.nupkg)), Size: int64(len(entry.nupkg))}, nil
		}
	}
	return nil, &core.NotFoundError{ID: url}
}

func (f *fakeFetcher) Head(ctx context.Context, url string) (int64, string, error) {
	return 0, "application/zip", nil
}

func buildNupkg(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPackageManager_InstallResolvesPlansAndApplies(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "packages.config")
	storeRoot := filepath.Join(dir, "packages")

	jquery := core.Identity{ID: "jQuery", Version: core.MustParse("1.4.4")}
	validation := core.Identity{ID: "jQuery.Validation", Version: core.MustParse("1.13.1")}

	catalog := newFakeCatalog()
	catalog.add(jquery, nil, buildNupkg(t, map[string]string{"lib/net45/jquery.js": "x"}))
	catalog.add(validation, []core.Dependency{{ID: "jQuery", Range: core.MustParseRange("[1.4.4, )")}},
		buildNupkg(t, map[string]string{"lib/net45/jquery.validate.js": "y"}))

	gateway := source.NewGateway(catalog)
	store := applier.NewFolderStore(storeRoot)
	fetcher := &fakeFetcher{catalog: catalog}
	mgr := NewPackageManager(gateway, store, fetcher, applier.NullProjectSystem{}, "net45")

	project := Project{ProjectKey: manifestPath, ManifestPath: manifestPath, TargetFramework: "net45"}
	targets := []Target{{ID: "jQuery.Validation"}}

	err := mgr.Install(context.Background(), project, targets, nil, ResolutionContext{DependencyBehavior: Highest}, ProjectContext{})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	refs, err := applier.ReadManifest(manifestPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("refs = %+v, want 2 entries", refs)
	}
	if !store.IsPresent(jquery) || !store.IsPresent(validation) {
		t.Error("both packages should be materialized in the store")
	}

	ordered, err := mgr.GetInstalledPackagesInDependencyOrder(context.Background(), project)
	if err != nil {
		t.Fatal(err)
	}
	if len(ordered) != 2 || ordered[0].Identity.Key() != "jquery" || ordered[1].Identity.Key() != "jquery.validation" {
		t.Fatalf("ordered = %+v, want jQuery before jQuery.Validation", ordered)
	}
}

func TestPackageManager_PreviewInstallThenExecute(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "packages.config")
	storeRoot := filepath.Join(dir, "packages")

	jquery := core.Identity{ID: "jQuery", Version: core.MustParse("1.4.4")}

	catalog := newFakeCatalog()
	catalog.add(jquery, nil, buildNupkg(t, map[string]string{"lib/net45/jquery.js": "x"}))

	gateway := source.NewGateway(catalog)
	store := applier.NewFolderStore(storeRoot)
	fetcher := &fakeFetcher{catalog: catalog}
	mgr := NewPackageManager(gateway, store, fetcher, applier.NullProjectSystem{}, "net45")

	project := Project{ProjectKey: manifestPath, ManifestPath: manifestPath, TargetFramework: "net45"}
	targets := []Target{{ID: "jQuery"}}

	plan, err := mgr.PreviewInstall(context.Background(), project, targets, nil, ResolutionContext{DependencyBehavior: Highest})
	if err != nil {
		t.Fatalf("PreviewInstall: %v", err)
	}
	if len(plan.Identities(Install)) != 1 {
		t.Fatalf("plan = %+v, want one Install action", plan)
	}

	// Nothing should be applied until Execute runs the previewed plan.
	if store.IsPresent(jquery) {
		t.Fatal("PreviewInstall must not materialize any package")
	}

	if err := mgr.Execute(context.Background(), plan, project, ProjectContext{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !store.IsPresent(jquery) {
		t.Error("Execute should have materialized the previewed plan")
	}
	refs, err := applier.ReadManifest(manifestPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Identity.Key() != "jquery" {
		t.Fatalf("refs = %+v, want jQuery entry", refs)
	}
}

func TestPackageManager_UninstallRefusesLiveDependent(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "packages.config")
	storeRoot := filepath.Join(dir, "packages")

	jquery := core.Identity{ID: "jQuery", Version: core.MustParse("1.4.4")}
	validation := core.Identity{ID: "jQuery.Validation", Version: core.MustParse("1.13.1")}

	catalog := newFakeCatalog()
	catalog.add(jquery, nil, buildNupkg(t, map[string]string{"lib/net45/jquery.js": "x"}))
	catalog.add(validation, []core.Dependency{{ID: "jQuery", Range: core.MustParseRange("[1.4.4, )")}},
		buildNupkg(t, map[string]string{"lib/net45/jquery.validate.js": "y"}))

	gateway := source.NewGateway(catalog)
	store := applier.NewFolderStore(storeRoot)
	fetcher := &fakeFetcher{catalog: catalog}
	mgr := NewPackageManager(gateway, store, fetcher, applier.NullProjectSystem{}, "net45")

	project := Project{ProjectKey: manifestPath, ManifestPath: manifestPath, TargetFramework: "net45"}

	err := mgr.Install(context.Background(), project, []Target{{ID: "jQuery.Validation"}}, nil, ResolutionContext{DependencyBehavior: Highest}, ProjectContext{})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	installed := []Identity{jquery, validation}
	_, err = mgr.PreviewUninstall(context.Background(), installed, []string{"jQuery"}, UninstallationContext{})
	if _, ok := err.(*core.DependentsError); !ok {
		t.Fatalf("err = %v (%T), want *core.DependentsError", err, err)
	}
}

func TestTargetFromPURL_PinsVersionWhenPresent(t *testing.T) {
	p, err := ParsePURL("pkg:nuget/Newtonsoft.Json@13.0.3")
	if err != nil {
		t.Fatalf("ParsePURL: %v", err)
	}
	target, err := TargetFromPURL(p)
	if err != nil {
		t.Fatalf("TargetFromPURL: %v", err)
	}
	if target.ID != "Newtonsoft.Json" || target.Version == nil || target.Version.String() != "13.0.3" {
		t.Fatalf("target = %+v", target)
	}
}

func TestTargetFromPURL_IDOnlyWhenVersionless(t *testing.T) {
	p, err := ParsePURL("pkg:nuget/Newtonsoft.Json")
	if err != nil {
		t.Fatalf("ParsePURL: %v", err)
	}
	target, err := TargetFromPURL(p)
	if err != nil {
		t.Fatalf("TargetFromPURL: %v", err)
	}
	if target.ID != "Newtonsoft.Json" || target.Version != nil {
		t.Fatalf("target = %+v, want id-only target", target)
	}
}

func TestPackageManager_RestorePackageIsManifestFree(t *testing.T) {
	dir := t.TempDir()
	storeRoot := filepath.Join(dir, "packages")

	jquery := core.Identity{ID: "jQuery", Version: core.MustParse("1.4.4")}
	catalog := newFakeCatalog()
	catalog.add(jquery, nil, buildNupkg(t, map[string]string{"lib/net45/jquery.js": "x"}))

	gateway := source.NewGateway(catalog)
	store := applier.NewFolderStore(storeRoot)
	fetcher := &fakeFetcher{catalog: catalog}
	mgr := NewPackageManager(gateway, store, fetcher, applier.NullProjectSystem{}, "net45")

	if err := mgr.RestorePackage(context.Background(), jquery); err != nil {
		t.Fatalf("RestorePackage: %v", err)
	}
	if !store.IsPresent(jquery) {
		t.Error("store directory not materialized by RestorePackage")
	}
}
