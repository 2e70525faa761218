package types

// MaxTags caps the number of free-form tags carried per movie. The offline
// preparation stage aggregates community tags and keeps only the most
// frequent ones; anything past this limit is dropped at bundle-write time.
const MaxTags = 15

// Movie is the immutable per-item metadata record. Movies are built once
// during the offline preparation stage and are read-only at serving time.
//
// Numeric fields are deliberately narrow (int16/int32/float32) to bound the
// resident size of the metadata table; the values themselves are unchanged,
// only the widths shrink.
type Movie struct {
	// ID is the dataset movie identifier. Unique across the bundle.
	ID int64 `json:"movieId"`

	// Title is the display title.
	Title string `json:"title"`

	// Year is the release year, or 0 when unknown.
	Year int16 `json:"year,omitempty"`

	// Genres holds the genre tags in their original order.
	Genres []string `json:"genres,omitempty"`

	// AvgRating is the aggregate rating in [0, 5].
	AvgRating float32 `json:"avg_rating"`

	// RatingCount is the number of ratings behind AvgRating.
	RatingCount int32 `json:"rating_count"`

	// Tags holds up to MaxTags free-form tags in their original order.
	Tags []string `json:"tags,omitempty"`
}
