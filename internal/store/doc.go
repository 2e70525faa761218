// Package store reads and writes the Persisted State Bundle: a single
// versioned SQLite file holding the movie metadata table, the embedding
// matrix (quantized uint8 or raw float32 rows), and the optional
// dimensionality-reduction transform.
//
// # Format
//
// The bundle is self-describing. A bundle_meta table carries the format
// version, vector width, row encoding, and movie count; a loader that does
// not recognize the version rejects the bundle cleanly at open time. Row
// positions are explicit: movies.pos and embeddings.pos share one domain,
// and movie-id lookups go through the pos mapping rather than relying on
// incidental row ordering.
//
// # Laziness
//
// Open reads the header and the (small) metadata table immediately and
// validates internal consistency; the (large) embedding matrix stays on
// disk until Materialize is called. Materialize latches only a successful
// read, so concurrent readers share a single in-memory copy and a failed
// or canceled read does not poison later calls. Row serves single vectors
// without forcing the full matrix in.
//
// # Drivers
//
// Two SQLite drivers are selected by build tag: modernc.org/sqlite (pure
// Go, default) and mattn/go-sqlite3 (cgo, -tags cgo_sqlite). See
// build_purego.go and build_cgo.go.
package store
