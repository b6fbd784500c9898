package resolver

import "github.com/git-pkgs/nuget/internal/core"

// filterCandidates narrows versions to those admissible under r, the
// AllowedVersions lock (if any), and the prerelease/constraints policy
// described in §4.4 step 2.
func filterCandidates(
	versions []core.Version,
	r *core.Range,
	policy core.ResolutionContext,
	installedVersion *core.Version,
	pinnedVersion *core.Version,
	allowed *core.Range,
) []core.Version {
	var out []core.Version

	for _, v := range versions {
		if allowed != nil && !allowed.Satisfies(v) {
			continue
		}
		if r != nil && !r.Satisfies(v) {
			continue
		}
		if v.IsPrerelease() && !policy.IncludePrerelease {
			admitted := false
			if pinnedVersion != nil && pinnedVersion.Equal(v) {
				admitted = true
			}
			if installedVersion != nil && installedVersion.Equal(v) {
				admitted = true
			}
			if !admitted {
				continue
			}
		}
		if policy.VersionConstraints != core.NoConstraints && installedVersion != nil {
			if !policy.VersionConstraints.Satisfies(*installedVersion, v) {
				continue
			}
		}
		out = append(out, v)
	}

	return out
}

// selectVersion picks one candidate per the DependencyBehavior rules in
// §4.4 step 3.
func selectVersion(candidates []core.Version, behavior core.DependencyBehavior, installedVersion *core.Version) (core.Version, bool) {
	if len(candidates) == 0 {
		return core.Version{}, false
	}

	switch behavior {
	case core.Lowest:
		return lowest(candidates), true

	case core.HighestPatch:
		if installedVersion != nil {
			if v, ok := highestMatching(candidates, func(v core.Version) bool {
				return v.Major == installedVersion.Major && v.Minor == installedVersion.Minor
			}); ok {
				return v, true
			}
		}
		return highest(candidates), true

	case core.HighestMinor:
		if installedVersion != nil {
			if v, ok := highestMatching(candidates, func(v core.Version) bool {
				return v.Major == installedVersion.Major
			}); ok {
				return v, true
			}
		}
		return highest(candidates), true

	default: // core.Highest, and the fallback for any other/unset value
		return highest(candidates), true
	}
}

func lowest(candidates []core.Version) core.Version {
	best := candidates[0]
	for _, v := range candidates[1:] {
		if v.LessThan(best) {
			best = v
		}
	}
	return best
}

func highest(candidates []core.Version) core.Version {
	best := candidates[0]
	for _, v := range candidates[1:] {
		if v.GreaterThan(best) {
			best = v
		}
	}
	return best
}

func highestMatching(candidates []core.Version, pred func(core.Version) bool) (core.Version, bool) {
	var best core.Version
	found := false
	for _, v := range candidates {
		if !pred(v) {
			continue
		}
		if !found || v.GreaterThan(best) {
			best = v
			found = true
		}
	}
	return best, found
}
