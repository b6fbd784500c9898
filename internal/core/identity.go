package core

import (
	"fmt"
	"strings"
)

// Identity is a (id, version) pair, the atomic unit of a resolved set and a
// plan entry. Id comparison throughout the core is case-insensitive ASCII
// fold; Key returns the folded form for use as a map key.
type Identity struct {
	ID      string
	Version Version
}

// Key returns the case-folded id, suitable as a map key for identity
// comparisons that should ignore id casing.
func (i Identity) Key() string {
	return strings.ToLower(i.ID)
}

// Equal reports whether i and other name the same package at the same
// version, comparing the id case-insensitively and the version by value.
func (i Identity) Equal(other Identity) bool {
	return i.Key() == other.Key() && i.Version.Equal(other.Version)
}

// String renders the identity as "Id.Version", the form used for store
// directory names.
func (i Identity) String() string {
	return fmt.Sprintf("%s.%s", i.ID, i.Version.Normalized())
}

// PURL renders the identity as a Package URL of type "nuget".
func (i Identity) PURL() string {
	return fmt.Sprintf("pkg:nuget/%s@%s", i.ID, i.Version.Normalized())
}

// StoreDirName returns the directory name this identity occupies in a
// FolderStore: "<Id>.<NormalizedVersion>".
func (i Identity) StoreDirName() string {
	return i.String()
}
