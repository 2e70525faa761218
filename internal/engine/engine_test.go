package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cinematch/internal/codec"
	"github.com/dshills/cinematch/internal/encoder"
	"github.com/dshills/cinematch/internal/store"
	"github.com/dshills/cinematch/pkg/types"
)

func identityTransform(t *testing.T, dim int) *codec.Transform {
	t.Helper()
	weights := make([]float32, dim*dim)
	for i := 0; i < dim; i++ {
		weights[i*dim+i] = 1
	}
	tr, err := codec.NewTransform(dim, dim, weights)
	require.NoError(t, err)
	return tr
}

// fixedModel returns one canned vector for every text.
type fixedModel struct {
	vec []float32
}

func (m *fixedModel) Name() string   { return "fixed" }
func (m *fixedModel) Dimension() int { return len(m.vec) }

func (m *fixedModel) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, len(m.vec))
		copy(v, m.vec)
		out[i] = v
	}
	return out, nil
}

// newTestEngine writes a raw-encoded bundle from the given movies and
// matrix, then wires an engine whose encoder always answers with queryVec.
func newTestEngine(t *testing.T, movies []types.Movie, matrix [][]float32, queryVec []float32) (*store.Store, *Engine) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bundle.db")
	require.NoError(t, store.Write(path, movies, matrix, nil, store.WriteOptions{
		Encoding: store.EncodingFloat32,
	}))

	st, err := store.Open(path, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	enc := encoder.New(encoder.Config{},
		encoder.WithLoader(func() (encoder.Model, error) {
			return &fixedModel{vec: queryVec}, nil
		}),
		encoder.WithMemoryProbe(func() (uint64, error) { return 0, nil }),
	)
	return st, New(st, enc)
}

func twoMovies() ([]types.Movie, [][]float32) {
	movies := []types.Movie{
		{ID: 1, Title: "Alpha", Genres: []string{"Action"}},
		{ID: 2, Title: "Beta", Genres: []string{"Comedy"}},
	}
	matrix := [][]float32{
		{1, 0},
		{0, 1},
	}
	return movies, matrix
}

func TestRecommendByQuery_RanksBySimilarity(t *testing.T) {
	movies, matrix := twoMovies()
	_, eng := newTestEngine(t, movies, matrix, []float32{1, 0})

	recs, err := eng.RecommendByQuery(context.Background(), "action", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, int64(1), recs[0].ID)
	assert.InDelta(t, 1.0, recs[0].Score, 1e-9)
	assert.Equal(t, 1, recs[0].Rank)
	assert.Contains(t, recs[0].Explanation, "excellent match")

	assert.Equal(t, int64(2), recs[1].ID)
	assert.InDelta(t, 0.0, recs[1].Score, 1e-9)
	assert.Equal(t, 2, recs[1].Rank)
	assert.Contains(t, recs[1].Explanation, "weak match")
}

func TestRecommendByQuery_TiesKeepTableOrder(t *testing.T) {
	movies := []types.Movie{
		{ID: 10, Title: "First"},
		{ID: 20, Title: "Second"},
		{ID: 30, Title: "Third"},
	}
	// All rows identical: every score ties.
	matrix := [][]float32{
		{1, 1},
		{1, 1},
		{1, 1},
	}
	_, eng := newTestEngine(t, movies, matrix, []float32{1, 1})

	recs, err := eng.RecommendByQuery(context.Background(), "anything", 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(10), recs[0].ID)
	assert.Equal(t, int64(20), recs[1].ID)
	assert.Equal(t, int64(30), recs[2].ID)
}

func TestRecommendByQuery_KTruncation(t *testing.T) {
	movies, matrix := twoMovies()
	_, eng := newTestEngine(t, movies, matrix, []float32{1, 0})
	ctx := context.Background()

	recs, err := eng.RecommendByQuery(ctx, "q", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = eng.RecommendByQuery(ctx, "q", -5)
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = eng.RecommendByQuery(ctx, "q", 100)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRecommendByQuery_DimensionMismatchIsFatal(t *testing.T) {
	movies, matrix := twoMovies()
	// Encoder answers 3-wide against a 2-wide store.
	_, eng := newTestEngine(t, movies, matrix, []float32{1, 0, 0})

	_, err := eng.RecommendByQuery(context.Background(), "q", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDimensionMismatch))
}

func TestRecommendByQuery_KeywordOnlyIsDeterministic(t *testing.T) {
	movies, matrix := twoMovies()
	path := filepath.Join(t.TempDir(), "bundle.db")
	require.NoError(t, store.Write(path, movies, matrix, nil, store.WriteOptions{}))

	st, err := store.Open(path, store.Options{})
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	// Without a transform the fallback would be 384-wide; pin the encoder
	// output to the store width through an identity-sized projection.
	enc := encoder.New(encoder.Config{KeywordOnly: true}, encoder.WithTransform(identityTransform(t, 2)))
	eng := New(st, enc)

	// Zero query vectors score 0 against everything; ranking degrades to
	// table order and stays stable across calls.
	for i := 0; i < 3; i++ {
		recs, err := eng.RecommendByQuery(context.Background(), "space opera", 2)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, int64(1), recs[0].ID)
		assert.Equal(t, int64(2), recs[1].ID)
		assert.Equal(t, 0.0, recs[0].Score)
		assert.Contains(t, recs[0].Explanation, "weak match")
	}
}

func TestRecommendSimilar_ExcludesSelf(t *testing.T) {
	movies, matrix := twoMovies()
	_, eng := newTestEngine(t, movies, matrix, nil)

	recs, err := eng.RecommendSimilar(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(2), recs[0].ID)
	assert.InDelta(t, 0.0, recs[0].Score, 1e-9)
}

func TestRecommendSimilar_UnknownIDIsEmpty(t *testing.T) {
	movies, matrix := twoMovies()
	_, eng := newTestEngine(t, movies, matrix, nil)

	recs, err := eng.RecommendSimilar(context.Background(), 999, 5)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRecommendSimilar_KLargerThanCatalog(t *testing.T) {
	movies := []types.Movie{
		{ID: 1, Title: "A"},
		{ID: 2, Title: "B"},
		{ID: 3, Title: "C"},
	}
	matrix := [][]float32{
		{1, 0},
		{0.9, 0.1},
		{0, 1},
	}
	_, eng := newTestEngine(t, movies, matrix, nil)

	recs, err := eng.RecommendSimilar(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2, "reference movie excluded before truncation")
	assert.Equal(t, int64(2), recs[0].ID)
	assert.Equal(t, int64(3), recs[1].ID)
	assert.Greater(t, recs[0].Score, recs[1].Score)
}

func TestSearch(t *testing.T) {
	movies := []types.Movie{
		{ID: 1, Title: "The Matrix"},
		{ID: 2, Title: "Matrix Reloaded"},
		{ID: 3, Title: "Inception"},
	}
	matrix := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	_, eng := newTestEngine(t, movies, matrix, nil)

	tests := []struct {
		name    string
		term    string
		limit   int
		wantIDs []int64
	}{
		{"case insensitive substring", "matrix", 10, []int64{1, 2}},
		{"limit applies", "matrix", 1, []int64{1}},
		{"no matches", "godzilla", 10, nil},
		{"zero limit", "matrix", 0, nil},
		{"table order preserved", "e", 10, []int64{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eng.Search(tt.term, tt.limit)
			ids := make([]int64, 0, len(got))
			for _, m := range got {
				ids = append(ids, m.ID)
			}
			if tt.wantIDs == nil {
				assert.Empty(t, ids)
				return
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero query", []float32{0, 0}, []float32{1, 1}, 0},
		{"zero row", []float32{1, 1}, []float32{0, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestScoreAll_ParallelMatchesSequential(t *testing.T) {
	// Big enough to cross the parallel threshold.
	rows := minParallelRows + 100
	matrix := make([][]float32, rows)
	for i := range matrix {
		matrix[i] = []float32{float32(i % 7), float32((i + 3) % 5), 1}
	}
	query := []float32{0.3, -0.2, 0.9}

	seq := New(nil, nil, WithWorkers(1))
	par := New(nil, nil, WithWorkers(8))

	ctx := context.Background()
	want, err := seq.scoreAll(ctx, query, matrix)
	require.NoError(t, err)
	got, err := par.scoreAll(ctx, query, matrix)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}
