// Package core provides the shared data model for the package management
// core: versions, ranges, identities, frameworks, and the error kinds the
// resolver, planner, and applier surface.
package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a NuGet-flavored version: a 2-to-4 segment numeric tuple plus
// an optional dot-separated prerelease label and optional build metadata.
// Ordering follows the numeric tuple first, then prerelease precedence per
// SemVer 2 rules; metadata never participates in ordering or equality.
type Version struct {
	Major, Minor, Patch, Revision int
	hasRevision                   bool
	pre                           []preIdentifier
	metadata                      string
	original                      string
}

type preIdentifier struct {
	value   string
	numeric bool
	number  int64
}

// Parse parses a version string of the form "major[.minor[.patch[.revision]]][-prerelease][+metadata]".
// Two, three, or four numeric segments are accepted; missing trailing segments default to zero.
func Parse(s string) (Version, error) {
	original := s
	if s == "" {
		return Version{}, fmt.Errorf("nuget: empty version string")
	}

	var meta string
	if idx := strings.IndexByte(s, '+'); idx != -1 {
		meta = s[idx+1:]
		s = s[:idx]
	}

	var preRaw string
	hasPre := false
	if idx := strings.IndexByte(s, '-'); idx != -1 {
		preRaw = s[idx+1:]
		s = s[:idx]
		hasPre = true
	}

	segs := strings.Split(s, ".")
	if len(segs) < 2 || len(segs) > 4 {
		return Version{}, fmt.Errorf("nuget: invalid version %q: expected 2-4 numeric segments", original)
	}

	nums := make([]int, 4)
	for i, seg := range segs {
		n, err := strconv.Atoi(seg)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("nuget: invalid version %q: segment %q is not a non-negative integer", original, seg)
		}
		nums[i] = n
	}

	v := Version{
		Major:       nums[0],
		Minor:       nums[1],
		Patch:       nums[2],
		Revision:    nums[3],
		hasRevision: len(segs) == 4,
		metadata:    meta,
		original:    original,
	}

	if hasPre {
		if preRaw == "" {
			return Version{}, fmt.Errorf("nuget: invalid version %q: empty prerelease label", original)
		}
		for _, part := range strings.Split(preRaw, ".") {
			if part == "" {
				return Version{}, fmt.Errorf("nuget: invalid version %q: empty prerelease identifier", original)
			}
			id := preIdentifier{value: part}
			if n, err := strconv.ParseInt(part, 10, 64); err == nil && (part == "0" || part[0] != '0') {
				id.numeric = true
				id.number = n
			}
			v.pre = append(v.pre, id)
		}
	}

	return v, nil
}

// MustParse parses s and panics on error; intended for tests and literal constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsPrerelease reports whether the version carries a prerelease label.
func (v Version) IsPrerelease() bool {
	return len(v.pre) > 0
}

// Metadata returns the build metadata suffix, if any, without the leading '+'.
func (v Version) Metadata() string {
	return v.metadata
}

// Prerelease returns the dot-joined prerelease label, without the leading '-'.
func (v Version) Prerelease() string {
	if len(v.pre) == 0 {
		return ""
	}
	parts := make([]string, len(v.pre))
	for i, id := range v.pre {
		parts[i] = id.value
	}
	return strings.Join(parts, ".")
}

// BaseVersion returns v with its prerelease and metadata stripped.
func (v Version) BaseVersion() Version {
	v.pre = nil
	v.metadata = ""
	v.original = ""
	return v
}

// Compare returns -1, 0, or 1 comparing v to other, following NuGet/SemVer
// precedence: numeric tuple first, then prerelease (absent prerelease sorts
// after any prerelease of the same tuple), then lexical/numeric comparison of
// dot-separated prerelease identifiers. Metadata is ignored.
func (v Version) Compare(other Version) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Patch, other.Patch); c != 0 {
		return c
	}
	if c := compareInt(v.Revision, other.Revision); c != 0 {
		return c
	}

	switch {
	case len(v.pre) == 0 && len(other.pre) == 0:
		return 0
	case len(v.pre) == 0:
		return 1
	case len(other.pre) == 0:
		return -1
	}

	for i := 0; i < len(v.pre) && i < len(other.pre); i++ {
		a, b := v.pre[i], other.pre[i]
		switch {
		case a.numeric && b.numeric:
			if c := compareInt64(a.number, b.number); c != 0 {
				return c
			}
		case a.numeric:
			return -1
		case b.numeric:
			return 1
		default:
			if c := strings.Compare(a.value, b.value); c != 0 {
				return c
			}
		}
	}
	return compareInt(len(v.pre), len(other.pre))
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal reports whether v and other compare equal.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// LessThan reports whether v sorts before other.
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }

// GreaterThan reports whether v sorts after other.
func (v Version) GreaterThan(other Version) bool { return v.Compare(other) > 0 }

// String renders the version, preserving the originally parsed text when
// available; constructed values are rendered in normalized form (trailing
// ".0" segments beyond the third are dropped from display, never from
// comparison).
func (v Version) String() string {
	if v.original != "" {
		return v.original
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(v.Major))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(v.Minor))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(v.Patch))
	if v.hasRevision && v.Revision != 0 {
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(v.Revision))
	}
	if len(v.pre) > 0 {
		b.WriteByte('-')
		b.WriteString(v.Prerelease())
	}
	if v.metadata != "" {
		b.WriteByte('+')
		b.WriteString(v.metadata)
	}
	return b.String()
}

// Normalized renders v without build metadata or a preserved original
// string; this is the form used for store directory names and manifest
// persistence.
func (v Version) Normalized() string {
	v.metadata = ""
	v.original = ""
	return v.String()
}
