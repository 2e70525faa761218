package engine

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/cinematch/internal/encoder"
	"github.com/dshills/cinematch/internal/logging"
	"github.com/dshills/cinematch/internal/store"
	"github.com/dshills/cinematch/pkg/types"
)

// minParallelRows is the matrix size below which parallel scoring is not
// worth the goroutine overhead.
const minParallelRows = 2048

// Engine answers the three retrieval queries over one loaded bundle:
// rank against a query, rank against a reference movie, and title search.
//
// The store and encoder are read-mostly after construction, so an Engine
// is safe for concurrent use.
type Engine struct {
	store    *store.Store
	encoder  *encoder.Encoder
	enricher Enricher
	workers  int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithEnricher installs an external metadata enricher invoked per result.
// Enrichment failures are absorbed; results degrade to metadata-only.
func WithEnricher(enricher Enricher) Option {
	return func(e *Engine) { e.enricher = enricher }
}

// WithWorkers sets the number of goroutines used for per-row similarity
// scoring. Defaults to runtime.NumCPU(). Scoring is read-only and
// partitioned by row range, so the worker count never affects ordering.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New creates a retrieval engine over a loaded store and an encoder.
func New(st *store.Store, enc *encoder.Encoder, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		encoder: enc,
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecommendByQuery ranks every movie against a free-text query and returns
// the top k.
//
// No minimum-similarity threshold is applied: when the encoder degrades to
// its zero-vector fallback all scores are 0 and the top k still come back,
// in original table order, rather than an empty result.
func (e *Engine) RecommendByQuery(ctx context.Context, query string, k int) ([]types.Recommendation, error) {
	res, err := e.encoder.Encode(ctx, []string{query}, true)
	if err != nil {
		return nil, err
	}
	vec := res.Vectors[0]
	if len(vec) != e.store.Dim() {
		return nil, fmt.Errorf("%w: query vector is %d wide, store holds %d-wide rows",
			types.ErrDimensionMismatch, len(vec), e.store.Dim())
	}
	if !res.Semantic {
		logging.Warn().Str("query", query).Msg("ranking without semantic signal")
	}

	recs, err := e.rank(ctx, vec, -1, k)
	if err != nil {
		return nil, err
	}
	e.enrich(ctx, recs)
	return recs, nil
}

// RecommendSimilar ranks every other movie against the stored embedding of
// a reference movie. An unknown movie id yields an empty result, not an
// error; the reference movie itself is excluded before truncation.
func (e *Engine) RecommendSimilar(ctx context.Context, movieID int64, k int) ([]types.Recommendation, error) {
	pos, ok := e.store.PosForID(movieID)
	if !ok {
		return []types.Recommendation{}, nil
	}
	vec, err := e.store.Row(ctx, pos)
	if err != nil {
		return nil, err
	}

	recs, err := e.rank(ctx, vec, pos, k)
	if err != nil {
		return nil, err
	}
	e.enrich(ctx, recs)
	return recs, nil
}

// Search returns up to limit movies whose title contains term,
// case-insensitively, in original table order. No similarity scoring.
func (e *Engine) Search(term string, limit int) []types.Movie {
	results := []types.Movie{}
	if limit <= 0 {
		return results
	}
	needle := strings.ToLower(term)
	for _, m := range e.store.Movies() {
		if strings.Contains(strings.ToLower(m.Title), needle) {
			results = append(results, m)
			if len(results) == limit {
				break
			}
		}
	}
	return results
}

// rank scores the query vector against every row, sorts by similarity
// descending with ties broken by original index ascending, and returns the
// top k enriched with metadata and explanation buckets. excludePos removes
// one position from the candidate set (-1 for none).
func (e *Engine) rank(ctx context.Context, query []float32, excludePos, k int) ([]types.Recommendation, error) {
	matrix, err := e.store.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	scores, err := e.scoreAll(ctx, query, matrix)
	if err != nil {
		return nil, err
	}

	order := make([]int, 0, len(matrix))
	for i := range matrix {
		if i == excludePos {
			continue
		}
		order = append(order, i)
	}
	// Stable sort on an index slice that starts in ascending order: equal
	// scores keep their original positional order.
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k < 0 {
		k = 0
	}
	if k > len(order) {
		k = len(order)
	}

	recs := make([]types.Recommendation, 0, k)
	for rank, pos := range order[:k] {
		movie, err := e.store.Movie(pos)
		if err != nil {
			return nil, err
		}
		recs = append(recs, types.Recommendation{
			Movie:       movie,
			Score:       scores[pos],
			Rank:        rank + 1,
			Explanation: explainScore(scores[pos]),
		})
	}
	return recs, nil
}

// scoreAll computes cosine similarity between the query and every row.
// Large matrices are partitioned across workers; each worker writes a
// disjoint range of the preallocated score slice, so the result is
// identical to the sequential computation.
func (e *Engine) scoreAll(ctx context.Context, query []float32, matrix [][]float32) ([]float64, error) {
	scores := make([]float64, len(matrix))
	if e.workers <= 1 || len(matrix) < minParallelRows {
		for i, row := range matrix {
			scores[i] = cosineSimilarity(query, row)
		}
		return scores, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	chunk := (len(matrix) + e.workers - 1) / e.workers
	for start := 0; start < len(matrix); start += chunk {
		start := start
		end := min(start+chunk, len(matrix))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				scores[i] = cosineSimilarity(query, matrix[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// cosineSimilarity computes the cosine similarity between two vectors.
// A zero-magnitude vector on either side scores 0, which is what makes
// the encoder's zero-vector fallback rank in original table order.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
