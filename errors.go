package xref

import "errors"

var (
	// ErrProviderFailure wraps a provider that could not produce a tree for
	// a unit. Nothing from that unit is flushed.
	ErrProviderFailure = errors.New("xref: provider failure")

	// ErrStoreFailure wraps a failed flush. The transaction is rolled back.
	ErrStoreFailure = errors.New("xref: store failure")

	// ErrUnsupportedFile is returned for a path no provider is registered for.
	ErrUnsupportedFile = errors.New("xref: unsupported file")
)
