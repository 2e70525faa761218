package types

import "errors"

// Error taxonomy for the retrieval pipeline.
//
// NotFound and empty results are different things: an unknown movie id
// yields an empty result set, not an error. Only a missing bundle file is
// a NotFound error. Corruption and dimensionality mismatches have no safe
// fallback and always propagate; encoding and enrichment failures are
// absorbed locally and never reach the caller.
var (
	// ErrBundleNotFound is returned when the persisted bundle cannot be
	// located at any of the attempted resolution paths.
	ErrBundleNotFound = errors.New("embedding bundle not found")

	// ErrCorruptBundle is returned when the bundle exists but fails to
	// deserialize or fails internal consistency checks.
	ErrCorruptBundle = errors.New("embedding bundle is corrupt")

	// ErrIncompatibleBundle is returned when the bundle declares a format
	// version this build does not understand.
	ErrIncompatibleBundle = errors.New("incompatible bundle format version")

	// ErrDimensionMismatch is returned when a vector's width does not match
	// what the consumer expects. Fatal; never silently truncated or padded.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrModelUnavailable indicates the semantic model could not be loaded
	// or invoked. Recovered internally by the zero-vector fallback.
	ErrModelUnavailable = errors.New("semantic model unavailable")

	// ErrRemoteEncoding indicates the remote embedding service failed after
	// exhausting retries. Recovered internally by local encoding.
	ErrRemoteEncoding = errors.New("remote encoding failed")
)
