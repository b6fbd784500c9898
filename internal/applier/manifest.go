// Package applier executes an ordered ActionPlan against one project: it
// edits the XML manifest, materializes or removes package contents in the
// shared FolderStore, and invokes ProjectSystem callbacks, all with the
// atomicity and attribute-preservation guarantees described for a
// packages.config-equivalent manifest.
package applier

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/git-pkgs/nuget/internal/core"
)

// canonicalAttrs are the attributes the applier itself sets. allowedVersions
// and developmentDependency map to their own PackageReference fields; any
// other attribute on a <package> element round-trips into
// PackageReference.Extra untouched.
var canonicalAttrs = map[string]bool{
	"id":              true,
	"version":         true,
	"targetFramework": true,
}

type xmlPackagesFile struct {
	XMLName  xml.Name            `xml:"packages"`
	Packages []xmlPackageElement `xml:"package"`
}

type xmlPackageElement struct {
	Attrs []xml.Attr `xml:",any,attr"`
	// InnerXML captures any child elements nested under <package> verbatim,
	// so unrecognized markup round-trips across an update instead of being
	// silently dropped.
	InnerXML string `xml:",innerxml"`
}

func attrValue(attrs []xml.Attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// ReadManifest parses the packages.config-equivalent XML file at path into
// an ordered list of PackageReference, preserving every attribute the
// applier does not itself recognize. A missing file is reported as an empty,
// non-error manifest; a malformed one surfaces *core.ManifestParseError.
func ReadManifest(path string) ([]core.PackageReference, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &core.ManifestParseError{Path: path, Err: err}
	}

	var doc xmlPackagesFile
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &core.ManifestParseError{Path: path, Err: err}
	}

	refs := make([]core.PackageReference, 0, len(doc.Packages))
	for _, el := range doc.Packages {
		ref, err := elementToReference(el)
		if err != nil {
			return nil, &core.ManifestParseError{Path: path, Err: err}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func elementToReference(el xmlPackageElement) (core.PackageReference, error) {
	id, ok := attrValue(el.Attrs, "id")
	if !ok {
		return core.PackageReference{}, fmt.Errorf("package element missing id attribute")
	}
	versionStr, ok := attrValue(el.Attrs, "version")
	if !ok {
		return core.PackageReference{}, fmt.Errorf("package %s missing version attribute", id)
	}
	version, err := core.Parse(versionStr)
	if err != nil {
		return core.PackageReference{}, fmt.Errorf("package %s: %w", id, err)
	}
	tfm, _ := attrValue(el.Attrs, "targetFramework")

	ref := core.PackageReference{
		Identity:        core.Identity{ID: id, Version: version},
		TargetFramework: tfm,
		ExtraXML:        el.InnerXML,
	}

	if allowed, ok := attrValue(el.Attrs, "allowedVersions"); ok && allowed != "" {
		r, err := core.ParseRange(allowed)
		if err != nil {
			return core.PackageReference{}, fmt.Errorf("package %s: allowedVersions: %w", id, err)
		}
		ref.AllowedVersions = &r
	}
	if dd, ok := attrValue(el.Attrs, "developmentDependency"); ok {
		ref.DevelopmentDependency, _ = strconv.ParseBool(dd)
	}

	for _, a := range el.Attrs {
		if canonicalAttrs[a.Name.Local] || a.Name.Local == "allowedVersions" || a.Name.Local == "developmentDependency" {
			continue
		}
		if ref.Extra == nil {
			ref.Extra = make(map[string]string)
		}
		ref.Extra[a.Name.Local] = a.Value
	}

	return ref, nil
}

func referenceToElement(ref core.PackageReference) xmlPackageElement {
	attrs := []xml.Attr{
		{Name: xml.Name{Local: "id"}, Value: ref.Identity.ID},
		{Name: xml.Name{Local: "version"}, Value: ref.Identity.Version.Normalized()},
	}
	if ref.TargetFramework != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "targetFramework"}, Value: ref.TargetFramework})
	}
	if ref.AllowedVersions != nil {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "allowedVersions"}, Value: ref.AllowedVersions.String()})
	}
	if ref.DevelopmentDependency {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "developmentDependency"}, Value: "true"})
	}
	for k, v := range ref.Extra {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: k}, Value: v})
	}
	return xmlPackageElement{Attrs: attrs, InnerXML: ref.ExtraXML}
}

// WriteManifest writes refs to path in manifest order, replacing any
// existing file atomically: it writes to a sibling temp file and renames it
// over path, so a concurrent reader never observes a torn file.
func WriteManifest(path string, refs []core.PackageReference) error {
	doc := xmlPackagesFile{Packages: make([]xmlPackageElement, len(refs))}
	for i, ref := range refs {
		doc.Packages[i] = referenceToElement(ref)
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	data = append([]byte(xml.Header), data...)
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp manifest: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp manifest: %w", err)
	}

	return nil
}
