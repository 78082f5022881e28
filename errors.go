package treestate

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrNoProvider is returned when an operation that requires a
	// provider is invoked and Config.GetHierarchyProvider is nil.
	ErrNoProvider = errors.New("treestate: no hierarchy provider")

	// ErrDisposed is returned by TreeState operations invoked after
	// Dispose.
	ErrDisposed = errors.New("treestate: disposed")

	// ErrInvalidReloadState is returned when ReloadOptions names an
	// unsupported State, or requests State: reset below the root.
	ErrInvalidReloadState = errors.New("treestate: invalid reload state")
)

// childrenLoadError wraps a provider failure into the node-level error
// whose message is surfaced on a hierarchy model node's Error field.
// It mirrors the wrapping discipline of providers/s3
// (github.com/pkg/errors.Wrapf at the provider-call boundary) so every
// failure keeps the original cause alongside the parent id.
func childrenLoadError(parentId NodeId, cause error) error {
	return pkgerrors.Wrapf(cause, "treestate: load children of %q", parentId)
}
