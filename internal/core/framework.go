package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Framework is a parsed Target Framework Moniker. It supports the compact
// forms used throughout NuGet package metadata and manifests: "net8.0",
// "netstandard2.1", "netcoreapp3.1", "net481" (legacy .NET Framework
// 4-digit compact form), and "net6.0-windows" (platform-qualified).
type Framework struct {
	Identifier string // ".NETCoreApp", ".NETStandard", ".NETFramework"
	Major      int
	Minor      int
	Patch      int
	Platform   string
	original   string
}

// Any is the special framework that matches every project framework; used
// for dependency groups with no TargetFramework attribute.
var Any = Framework{Identifier: "Any"}

// ParseFramework parses a short-folder-name TFM such as "net8.0",
// "netstandard2.1", "netcoreapp3.1", or "net481".
func ParseFramework(tfm string) (Framework, error) {
	original := tfm
	s := strings.ToLower(strings.TrimSpace(tfm))
	if s == "" || s == "any" {
		return Any, nil
	}

	platform := ""
	if idx := strings.IndexByte(s, '-'); idx != -1 {
		platform = s[idx+1:]
		s = s[:idx]
	}

	switch {
	case strings.HasPrefix(s, "netstandard"):
		major, minor, err := parseCompact(s[len("netstandard"):])
		if err != nil {
			return Framework{}, fmt.Errorf("nuget: invalid framework %q: %w", original, err)
		}
		return Framework{Identifier: ".NETStandard", Major: major, Minor: minor, original: original}, nil

	case strings.HasPrefix(s, "netcoreapp"):
		major, minor, err := parseCompact(s[len("netcoreapp"):])
		if err != nil {
			return Framework{}, fmt.Errorf("nuget: invalid framework %q: %w", original, err)
		}
		return Framework{Identifier: ".NETCoreApp", Major: major, Minor: minor, original: original}, nil

	case strings.HasPrefix(s, "net"):
		rest := s[len("net"):]
		if rest == "" {
			return Framework{}, fmt.Errorf("nuget: invalid framework %q", original)
		}
		if strings.Contains(rest, ".") {
			// Dotted form is .NET 5+ ("net8.0") unless numerically >= 5 wasn't
			// the intent historically, but the dotted form was introduced with
			// .NET 5 and never used for .NET Framework.
			major, minor, err := parseCompact(rest)
			if err != nil {
				return Framework{}, fmt.Errorf("nuget: invalid framework %q: %w", original, err)
			}
			return Framework{Identifier: ".NETCoreApp", Major: major, Minor: minor, Platform: platform, original: original}, nil
		}
		// Compact legacy .NET Framework form: "net481" -> 4.8.1, "net45" -> 4.5.
		major, minor, patch, err := parseLegacyCompact(rest)
		if err != nil {
			return Framework{}, fmt.Errorf("nuget: invalid framework %q: %w", original, err)
		}
		return Framework{Identifier: ".NETFramework", Major: major, Minor: minor, Patch: patch, original: original}, nil

	default:
		return Framework{}, fmt.Errorf("nuget: unrecognized framework %q", original)
	}
}

func parseCompact(s string) (major, minor int, err error) {
	parts := strings.SplitN(s, ".", 2)
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid major segment %q", parts[0])
	}
	if len(parts) == 2 {
		minor, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid minor segment %q", parts[1])
		}
	}
	return major, minor, nil
}

// parseLegacyCompact parses the 2-4 digit compact .NET Framework form, e.g.
// "45" -> 4,5,0 and "481" -> 4,8,1.
func parseLegacyCompact(s string) (major, minor, patch int, err error) {
	if len(s) < 2 || len(s) > 4 {
		return 0, 0, 0, fmt.Errorf("invalid compact version %q", s)
	}
	major, err = strconv.Atoi(s[:1])
	if err != nil {
		return 0, 0, 0, err
	}
	minor, err = strconv.Atoi(s[1:2])
	if err != nil {
		return 0, 0, 0, err
	}
	if len(s) > 2 {
		patch, err = strconv.Atoi(s[2:])
		if err != nil {
			return 0, 0, 0, err
		}
	}
	return major, minor, patch, nil
}

// String renders the framework as its short folder name, or the original
// text if it was parsed rather than constructed.
func (f Framework) String() string {
	if f.original != "" {
		return f.original
	}
	if f.Identifier == "Any" {
		return "any"
	}
	return fmt.Sprintf("%s%d.%d", f.shortPrefix(), f.Major, f.Minor)
}

func (f Framework) shortPrefix() string {
	switch f.Identifier {
	case ".NETStandard":
		return "netstandard"
	case ".NETCoreApp":
		return "net"
	case ".NETFramework":
		return "net"
	default:
		return strings.ToLower(f.Identifier)
	}
}

// netStandardCompat maps a consuming platform's major version to the
// highest netstandard ordinal (major*10+minor) it can consume, grounded on
// the NuGet.Client compatibility tables. Keyed on major only, so e.g. net472
// and net461 both collapse to major 4's entry even though NuGet.Client's own
// table gives later net4x minors broader netstandard reach.
var netStandardCompat = map[int]int{
	1: 16, 2: 20, 3: 21, 4: 11, 5: 21, 6: 21, 7: 21, 8: 21, 9: 21, 10: 21,
}

// IsCompatible reports whether a package asset built for candidate can be
// consumed by a project targeting project. Both are short-folder-name TFM
// strings (as stored in manifest/registration data); if either fails to
// parse, the two are compatible only when they are equal ignoring case.
func IsCompatible(project, candidate string) bool {
	if candidate == "" || strings.EqualFold(candidate, "any") {
		return true
	}
	p, err1 := ParseFramework(project)
	c, err2 := ParseFramework(candidate)
	if err1 != nil || err2 != nil {
		return strings.EqualFold(project, candidate)
	}
	return p.isCompatibleWith(c)
}

func (p Framework) isCompatibleWith(c Framework) bool {
	if c.Identifier == "Any" {
		return true
	}
	if p.Identifier == c.Identifier {
		return p.Major > c.Major || (p.Major == c.Major && p.Minor >= c.Minor)
	}
	if c.Identifier == ".NETStandard" {
		if p.Identifier == ".NETStandard" {
			return p.Major > c.Major || (p.Major == c.Major && p.Minor >= c.Minor)
		}
		max, ok := netStandardCompat[p.Major]
		if !ok {
			return false
		}
		return c.Major*10+c.Minor <= max
	}
	return false
}

// FrameworkSpecificity orders candidate frameworks by how specific they are,
// for nearest-match selection among multiple compatible groups: higher is
// more specific (preferred).
func FrameworkSpecificity(tfm string) int {
	f, err := ParseFramework(tfm)
	if err != nil {
		return -1
	}
	if f.Identifier == "Any" {
		return 0
	}
	score := f.Major*1000 + f.Minor*10 + f.Patch
	if f.Identifier == ".NETStandard" {
		// netstandard is the least specific non-Any framework: any
		// framework-specific group should win a nearest-match tie.
		return score
	}
	return score + 1_000_000
}
