// Package encoder turns free text into embedding vectors, choosing at call
// time between a real semantic model and a cheap degenerate fallback.
//
// # Decision rule
//
// Every Encode call walks the same ladder:
//
//  1. Keyword-only operating mode → all-zero fallback, model never runs.
//  2. forceSemantic → memory-safety check (current RSS plus an estimated
//     model-load overhead against a fixed ceiling); if it fits, invoke the
//     model. Model failures are logged and absorbed by the fallback.
//  3. Otherwise → fallback.
//
// The fallback is an all-zero vector of the width currently in effect
// (the reduction transform's output width when one is active, else the
// model's native width). Zero vectors make every cosine similarity 0,
// which downstream ranking must read as "no semantic signal", not as a
// meaningful score.
//
// # Remote encoding
//
// When a remote embedding service is configured, semantic encoding calls
// it first, retrying with exponential backoff while the service reports
// the model is still warming up. Any other failure, or retry exhaustion,
// falls back to the local model, and a local failure falls back to zeros.
// Only a dimensionality mismatch against the active reduction transform
// is a hard error; it has no safe fallback.
//
// # Lifecycle
//
// The local model loads lazily on first semantic use and stays resident
// for the process lifetime. Encoded query vectors are kept in a bounded
// LRU cache keyed by content hash.
package encoder
