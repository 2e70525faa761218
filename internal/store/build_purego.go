//go:build !cgo_sqlite
// +build !cgo_sqlite

package store

// This file is compiled by default, without CGO.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// The modernc driver is a pure Go SQLite implementation: no C compiler
// required, cross-compiles everywhere, slightly slower bundle reads.
// Suitable for development and smaller bundles.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
