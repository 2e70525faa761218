// Package engine ranks a loaded embedding bundle against queries.
//
// Three operations are exposed: RecommendByQuery encodes free text and
// ranks every movie against it, RecommendSimilar ranks against the stored
// embedding of a reference movie with the reference excluded, and Search
// does a plain case-insensitive title scan with no scoring.
//
// Ranking is deterministic: cosine similarity accumulated in float64,
// sorted descending with ties kept in original table order. Scoring is
// partitioned across worker goroutines by row range, which never changes
// the output.
package engine
