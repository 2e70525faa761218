package types

// Recommendation is a single ranked retrieval result. Recommendations are
// produced fresh per query and never persisted.
//
// Score carries the raw cosine similarity, including near-zero values: when
// the encoder degrades to its zero-vector fallback every score is exactly 0
// and the ranking preserves the original table order. Callers cannot
// distinguish that case from a genuinely weak semantic match by inspecting
// the result; that ambiguity matches the serving contract.
type Recommendation struct {
	Movie

	// Score is the cosine similarity in [-1, 1] between the query vector
	// and this movie's stored embedding.
	Score float64 `json:"similarity_score"`

	// Rank is the 1-based position in the result set.
	Rank int `json:"rank"`

	// Explanation is a human-readable score bucket, e.g.
	// "excellent match (92.3%)".
	Explanation string `json:"explanation"`

	// Enrichment fields, populated only when an external enricher is
	// configured and a confident candidate match was found.
	ExternalID     string  `json:"external_id,omitempty"`
	PosterURL      string  `json:"poster_url,omitempty"`
	ExternalRating float64 `json:"external_rating,omitempty"`
}
