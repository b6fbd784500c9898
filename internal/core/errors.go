package core

import "fmt"

// Error kinds surfaced by the resolver, planner, and applier. Each names the
// identity it concerns; several wrap an inner cause recoverable with
// errors.As, the inner-field equivalent of carrying a primary cause across
// an aggregate.

// AlreadyInstalledError is returned when an install targets an identity
// already present in the project.
type AlreadyInstalledError struct {
	ID      string
	Project string
}

func (e *AlreadyInstalledError) Error() string {
	return fmt.Sprintf("package %s is already installed in project %s", e.ID, e.Project)
}

// NotFoundError is returned when an identity cannot be resolved in any
// configured source.
type NotFoundError struct {
	ID      string
	Version string
}

func (e *NotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("package %s %s not found in any source", e.ID, e.Version)
	}
	return fmt.Sprintf("package %s not found in any source", e.ID)
}

// NoLatestVersionError is returned when an id-only install has no
// permissible version available under the active policy.
type NoLatestVersionError struct {
	ID string
}

func (e *NoLatestVersionError) Error() string {
	return fmt.Sprintf("no latest version of %s satisfies the current policy", e.ID)
}

// DependentsError is returned when an uninstall is refused because
// dependents remain and forceRemove was not set.
type DependentsError struct {
	ID         string
	Dependents []string
}

func (e *DependentsError) Error() string {
	return fmt.Sprintf("unable to uninstall %s because %v depend on it", e.ID, e.Dependents)
}

// ConflictError is returned when the chosen versions cannot jointly satisfy
// all range constraints on the same id.
type ConflictError struct {
	ID    string
	Sides []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("dependency conflict on %s: %v", e.ID, e.Sides)
}

// DowngradeError is returned when an id-only install would downgrade the
// currently installed version without the caller explicitly requesting it.
type DowngradeError struct {
	ID       string
	From, To Version
}

func (e *DowngradeError) Error() string {
	return fmt.Sprintf("installing %s %s would downgrade from the installed %s", e.ID, e.To, e.From)
}

// NoCompatibleItemsError is returned when a package has no
// framework-compatible content for the project's target framework.
type NoCompatibleItemsError struct {
	Identity  Identity
	Framework string
}

func (e *NoCompatibleItemsError) Error() string {
	return fmt.Sprintf("package %s has no content compatible with framework %s", e.Identity, e.Framework)
}

// VersionNotSatisfiedError is returned when a package declares a
// MinClientVersion or package type this implementation does not support.
type VersionNotSatisfiedError struct {
	Identity Identity
	Reason   string
}

func (e *VersionNotSatisfiedError) Error() string {
	return fmt.Sprintf("package %s cannot be installed: %s", e.Identity, e.Reason)
}

// ManifestParseError is returned when a manifest file is corrupt XML; no
// partial parse is accepted.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("parsing manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error { return e.Err }

// SourceUnavailableError is returned when every configured source failed
// and the operation cannot proceed.
type SourceUnavailableError struct {
	Causes []error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("all sources unavailable: %v", e.Causes)
}

func (e *SourceUnavailableError) Unwrap() []error { return e.Causes }

// AggregateError wraps the primary cause of an apply-time failure alongside
// the action that triggered it; callers always recover the original cause
// via errors.As or errors.Is on Unwrap.
type AggregateError struct {
	Action Action
	Inner  error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("applying %s %s: %v", e.Action.Kind, e.Action.Identity, e.Inner)
}

func (e *AggregateError) Unwrap() error { return e.Inner }
