// Package types defines the shared domain types for the recommendation
// core: the immutable Movie metadata record, the ranked Recommendation
// result, and the error taxonomy used across the pipeline.
package types
