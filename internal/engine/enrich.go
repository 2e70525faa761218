package engine

import (
	"context"
	"strings"

	"github.com/dshills/cinematch/internal/logging"
	"github.com/dshills/cinematch/pkg/types"
)

// Candidate is one external search hit for a movie title.
type Candidate struct {
	ExternalID string
	Title      string
	Year       int16
	ImageURL   string
	Type       string
}

// Details carries the external metadata attached to a recommendation.
type Details struct {
	ExternalID string
	PosterURL  string
	Rating     float64
}

// Enricher looks up third-party metadata for ranked movies. Implementations
// talk to an external catalog; the engine only depends on this interface.
type Enricher interface {
	// SearchTitle returns candidate matches for a title, best guesses first
	// or in arbitrary order. The engine rescores them itself.
	SearchTitle(ctx context.Context, title string) ([]Candidate, error)

	// Details fetches full metadata for one candidate.
	Details(ctx context.Context, externalID string) (Details, error)
}

// candidateScore rates how well an external candidate matches a local
// movie. Title contributions are exclusive: an exact match does not also
// collect the prefix and substring bonuses.
func candidateScore(c Candidate, title string, year int16) float64 {
	var score float64

	ct := strings.ToLower(c.Title)
	lt := strings.ToLower(title)
	switch {
	case ct == lt:
		score += 3
	case strings.HasPrefix(ct, lt):
		score += 1.5
	case strings.Contains(ct, lt):
		score += 0.8
	}

	if year != 0 && c.Year == year {
		score += 0.7
	}
	if c.ImageURL != "" {
		score += 0.3
	}
	if c.Type == "movie" {
		score += 0.4
	}
	return score
}

// bestCandidate picks the highest-scoring candidate, earliest wins ties.
// Returns false when the list is empty.
func bestCandidate(candidates []Candidate, title string, year int16) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	bestScore := candidateScore(best, title, year)
	for _, c := range candidates[1:] {
		if s := candidateScore(c, title, year); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, true
}

// enrich attaches external metadata to each recommendation in place.
// A failure on one movie is logged and skipped; the rest of the batch still
// gets enriched, and the recommendation keeps its local metadata.
func (e *Engine) enrich(ctx context.Context, recs []types.Recommendation) {
	if e.enricher == nil {
		return
	}
	for i := range recs {
		candidates, err := e.enricher.SearchTitle(ctx, recs[i].Title)
		if err != nil {
			logging.Warn().Err(err).Str("title", recs[i].Title).Msg("enrichment search failed")
			continue
		}
		best, ok := bestCandidate(candidates, recs[i].Title, recs[i].Year)
		if !ok {
			continue
		}
		details, err := e.enricher.Details(ctx, best.ExternalID)
		if err != nil {
			logging.Warn().Err(err).Str("external_id", best.ExternalID).Msg("enrichment details failed")
			continue
		}
		recs[i].ExternalID = details.ExternalID
		recs[i].PosterURL = details.PosterURL
		recs[i].ExternalRating = details.Rating
	}
}
