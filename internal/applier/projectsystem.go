package applier

import "github.com/git-pkgs/nuget/internal/core"

// ContentReference is one framework-compatible asset folder the applier
// selected for an install, handed to ProjectSystem.AddReferences so the
// build-system integration (delegated outside this core) can wire it in.
type ContentReference struct {
	Identity core.Identity
	// Kind is "lib" or "ref", mirroring the nupkg's top-level asset folders.
	Kind string
	// TargetFramework is the store-folder TFM chosen as the best match for
	// the project's framework, e.g. "net6.0".
	TargetFramework string
	// Path is the on-disk folder selected.
	Path string
}

// ProjectSystem is the build-system integration boundary: the applier never
// touches MSBuild files, binding redirects, or build output directly, and
// instead calls back through this interface.
type ProjectSystem interface {
	// AddReferences wires refs into the project's build. Called once per
	// successful Install action.
	AddReferences(identity core.Identity, refs []ContentReference) error
	// RemoveReferences unwires identity's content from the project's build.
	// Called once per Uninstall action, before the manifest entry is dropped.
	RemoveReferences(identity core.Identity) error
	// WriteBindingRedirects regenerates the project's binding-redirect
	// configuration. Optional: a ProjectSystem that doesn't support it
	// returns ErrBindingRedirectsUnsupported and the applier treats that as
	// a no-op rather than a failure.
	WriteBindingRedirects() error
}

// ErrBindingRedirectsUnsupported signals a ProjectSystem with no binding
// redirect support; the applier swallows it rather than treating the
// feature as a hard requirement.
var ErrBindingRedirectsUnsupported = bindingRedirectsUnsupported{}

type bindingRedirectsUnsupported struct{}

func (bindingRedirectsUnsupported) Error() string { return "binding redirects not supported" }

// NullProjectSystem is a ProjectSystem that performs no build integration,
// for callers (tests, headless restores) with no MSBuild project to update.
type NullProjectSystem struct{}

func (NullProjectSystem) AddReferences(core.Identity, []ContentReference) error { return nil }
func (NullProjectSystem) RemoveReferences(core.Identity) error                  { return nil }
func (NullProjectSystem) WriteBindingRedirects() error                          { return ErrBindingRedirectsUnsupported }
