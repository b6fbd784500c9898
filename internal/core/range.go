package core

import (
	"fmt"
	"strings"
)

// Range is a version range expressed with NuGet bracket syntax: "[1.0,2.0)"
// is inclusive-lower/exclusive-upper, "1.0" alone is a floating minimum
// ("accept any version >= 1.0"), and "[1.0]" is a single-point range.
type Range struct {
	MinVersion        Version
	HasMin            bool
	MinInclusive      bool
	MaxVersion        Version
	HasMax            bool
	MaxInclusive      bool
	IncludePrerelease bool
	original          string
}

// ParseRange parses a NuGet-style version range string.
func ParseRange(s string) (Range, error) {
	original := s
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("nuget: empty version range")
	}

	if s[0] != '[' && s[0] != '(' {
		v, err := Parse(s)
		if err != nil {
			return Range{}, fmt.Errorf("nuget: invalid version range %q: %w", original, err)
		}
		return Range{MinVersion: v, HasMin: true, MinInclusive: true, original: original}, nil
	}

	if len(s) < 2 || (s[len(s)-1] != ']' && s[len(s)-1] != ')') {
		return Range{}, fmt.Errorf("nuget: invalid version range %q: unbalanced brackets", original)
	}

	minInclusive := s[0] == '['
	maxInclusive := s[len(s)-1] == ']'
	body := s[1 : len(s)-1]

	parts := strings.SplitN(body, ",", 2)
	r := Range{original: original}

	if len(parts) == 1 {
		// Single-point range: "[1.0.0]"
		v, err := Parse(strings.TrimSpace(parts[0]))
		if err != nil {
			return Range{}, fmt.Errorf("nuget: invalid version range %q: %w", original, err)
		}
		r.MinVersion, r.HasMin, r.MinInclusive = v, true, true
		r.MaxVersion, r.HasMax, r.MaxInclusive = v, true, true
		return r, nil
	}

	minStr := strings.TrimSpace(parts[0])
	maxStr := strings.TrimSpace(parts[1])

	if minStr != "" {
		v, err := Parse(minStr)
		if err != nil {
			return Range{}, fmt.Errorf("nuget: invalid version range %q: %w", original, err)
		}
		r.MinVersion, r.HasMin, r.MinInclusive = v, true, minInclusive
	}
	if maxStr != "" {
		v, err := Parse(maxStr)
		if err != nil {
			return Range{}, fmt.Errorf("nuget: invalid version range %q: %w", original, err)
		}
		r.MaxVersion, r.HasMax, r.MaxInclusive = v, true, maxInclusive
	}

	return r, nil
}

// MustParseRange parses s and panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// IsFloating reports whether the range has no upper bound, e.g. was written
// as a bare version with no brackets.
func (r Range) IsFloating() bool {
	return !r.HasMax
}

// IsExact reports whether the range pins a single version.
func (r Range) IsExact() bool {
	return r.HasMin && r.HasMax && r.MinInclusive && r.MaxInclusive && r.MinVersion.Equal(r.MaxVersion)
}

// Satisfies reports whether v falls within the range, honoring prerelease
// admission rules: a prerelease version satisfies the range only if the
// range itself admits prerelease versions, or v shares the same base version
// as the range's lower bound (the common "exact prerelease pin" case).
func (r Range) Satisfies(v Version) bool {
	if v.IsPrerelease() && !r.admitsPrerelease(v) {
		return false
	}

	if r.HasMin {
		c := v.Compare(r.MinVersion)
		if r.MinInclusive {
			if c < 0 {
				return false
			}
		} else if c <= 0 {
			return false
		}
	}

	if r.HasMax {
		c := v.Compare(r.MaxVersion)
		if r.MaxInclusive {
			if c > 0 {
				return false
			}
		} else if c >= 0 {
			return false
		}
	}

	return true
}

func (r Range) admitsPrerelease(v Version) bool {
	if r.IncludePrerelease {
		return true
	}
	if r.HasMin && r.MinVersion.IsPrerelease() && v.BaseVersion().Equal(r.MinVersion.BaseVersion()) {
		return true
	}
	return false
}

// Intersect returns the tightest range satisfying both r and other. The
// result's IncludePrerelease is the logical OR of both inputs. Returns
// ok=false if the ranges do not overlap.
func (r Range) Intersect(other Range) (Range, bool) {
	result := Range{IncludePrerelease: r.IncludePrerelease || other.IncludePrerelease}

	result.MinVersion, result.HasMin, result.MinInclusive = tightestMin(r, other)
	result.MaxVersion, result.HasMax, result.MaxInclusive = tightestMax(r, other)

	if result.HasMin && result.HasMax {
		c := result.MinVersion.Compare(result.MaxVersion)
		if c > 0 {
			return Range{}, false
		}
		if c == 0 && !(result.MinInclusive && result.MaxInclusive) {
			return Range{}, false
		}
	}

	return result, true
}

func tightestMin(a, b Range) (Version, bool, bool) {
	switch {
	case !a.HasMin:
		return b.MinVersion, b.HasMin, b.MinInclusive
	case !b.HasMin:
		return a.MinVersion, a.HasMin, a.MinInclusive
	default:
		c := a.MinVersion.Compare(b.MinVersion)
		switch {
		case c > 0:
			return a.MinVersion, true, a.MinInclusive
		case c < 0:
			return b.MinVersion, true, b.MinInclusive
		default:
			return a.MinVersion, true, a.MinInclusive && b.MinInclusive
		}
	}
}

func tightestMax(a, b Range) (Version, bool, bool) {
	switch {
	case !a.HasMax:
		return b.MaxVersion, b.HasMax, b.MaxInclusive
	case !b.HasMax:
		return a.MaxVersion, a.HasMax, a.MaxInclusive
	default:
		c := a.MaxVersion.Compare(b.MaxVersion)
		switch {
		case c < 0:
			return a.MaxVersion, true, a.MaxInclusive
		case c > 0:
			return b.MaxVersion, true, b.MaxInclusive
		default:
			return a.MaxVersion, true, a.MaxInclusive && b.MaxInclusive
		}
	}
}

// String renders the range in NuGet bracket syntax.
func (r Range) String() string {
	if r.original != "" {
		return r.original
	}
	if !r.HasMax {
		return r.MinVersion.String()
	}
	if r.IsExact() {
		return "[" + r.MinVersion.String() + "]"
	}
	var b strings.Builder
	if r.MinInclusive {
		b.WriteByte('[')
	} else {
		b.WriteByte('(')
	}
	if r.HasMin {
		b.WriteString(r.MinVersion.String())
	}
	b.WriteByte(',')
	if r.HasMax {
		b.WriteString(r.MaxVersion.String())
	}
	if r.MaxInclusive {
		b.WriteByte(']')
	} else {
		b.WriteByte(')')
	}
	return b.String()
}
