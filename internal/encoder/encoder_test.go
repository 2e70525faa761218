package encoder

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cinematch/internal/codec"
	"github.com/dshills/cinematch/pkg/types"
)

// stubModel returns canned vectors and counts invocations.
type stubModel struct {
	dim     int
	calls   int
	encode  func(texts []string) ([][]float32, error)
	loadErr error
}

func (m *stubModel) Name() string   { return "stub" }
func (m *stubModel) Dimension() int { return m.dim }

func (m *stubModel) Encode(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.encode != nil {
		return m.encode(texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, m.dim)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func withStub(m *stubModel) Option {
	return WithLoader(func() (Model, error) {
		if m.loadErr != nil {
			return nil, m.loadErr
		}
		return m, nil
	})
}

// lowMemory simulates a process already over any reasonable ceiling.
func lowMemory() (uint64, error) { return 1 << 40, nil }

func zeroMemory() (uint64, error) { return 0, nil }

func allZero(vectors [][]float32, dim int) bool {
	for _, vec := range vectors {
		if len(vec) != dim {
			return false
		}
		for _, v := range vec {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

func TestEncode_EmptyInput(t *testing.T) {
	e := New(Config{})
	res, err := e.Encode(context.Background(), nil, true)
	require.NoError(t, err)
	assert.Empty(t, res.Vectors)
	assert.False(t, res.Semantic)
}

func TestEncode_KeywordOnlyAlwaysFallsBack(t *testing.T) {
	model := &stubModel{dim: NativeDimension}
	e := New(Config{KeywordOnly: true}, withStub(model), WithMemoryProbe(zeroMemory))

	res, err := e.Encode(context.Background(), []string{"a", "b"}, true)
	require.NoError(t, err)

	assert.False(t, res.Semantic)
	assert.True(t, allZero(res.Vectors, NativeDimension))
	assert.Zero(t, model.calls, "keyword-only mode must never invoke the model")
}

func TestEncode_NotForcedFallsBack(t *testing.T) {
	model := &stubModel{dim: NativeDimension}
	e := New(Config{}, withStub(model), WithMemoryProbe(zeroMemory))

	res, err := e.Encode(context.Background(), []string{"a"}, false)
	require.NoError(t, err)

	assert.False(t, res.Semantic)
	assert.True(t, allZero(res.Vectors, NativeDimension))
	assert.Zero(t, model.calls)
}

func TestEncode_MemoryCeilingFallsBack(t *testing.T) {
	model := &stubModel{dim: NativeDimension}
	e := New(Config{}, withStub(model), WithMemoryProbe(lowMemory))

	res, err := e.Encode(context.Background(), []string{"a"}, true)
	require.NoError(t, err)

	assert.False(t, res.Semantic)
	assert.Zero(t, model.calls)
}

func TestEncode_ProbeFailureStillEncodes(t *testing.T) {
	model := &stubModel{dim: NativeDimension}
	e := New(Config{}, withStub(model),
		WithMemoryProbe(func() (uint64, error) { return 0, errors.New("no procfs") }))

	res, err := e.Encode(context.Background(), []string{"a"}, true)
	require.NoError(t, err)
	assert.True(t, res.Semantic)
}

func TestEncode_SemanticPath(t *testing.T) {
	model := &stubModel{dim: NativeDimension}
	e := New(Config{}, withStub(model), WithMemoryProbe(zeroMemory))

	res, err := e.Encode(context.Background(), []string{"space movie"}, true)
	require.NoError(t, err)

	assert.True(t, res.Semantic)
	require.Len(t, res.Vectors, 1)
	assert.Len(t, res.Vectors[0], NativeDimension)
	assert.Equal(t, float32(1), res.Vectors[0][0])
	assert.Equal(t, 1, model.calls)
}

func TestEncode_AppliesTransform(t *testing.T) {
	// 4 -> 2 projection: pick elements 0 and 2.
	transform, err := codec.NewTransform(4, 2, []float32{
		1, 0, 0, 0,
		0, 0, 1, 0,
	})
	require.NoError(t, err)

	model := &stubModel{dim: 4, encode: func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 2, 3, 4}}, nil
	}}
	e := New(Config{}, withStub(model), WithTransform(transform), WithMemoryProbe(zeroMemory))

	assert.Equal(t, 2, e.Dimension())

	res, err := e.Encode(context.Background(), []string{"a"}, true)
	require.NoError(t, err)
	assert.True(t, res.Semantic)
	assert.Equal(t, [][]float32{{1, 3}}, res.Vectors)
}

func TestEncode_TransformMismatchIsFatal(t *testing.T) {
	transform, err := codec.NewTransform(8, 2, make([]float32, 16))
	require.NoError(t, err)

	// Model emits 4-wide vectors into an 8-wide transform.
	model := &stubModel{dim: 4, encode: func(texts []string) ([][]float32, error) {
		return [][]float32{make([]float32, 4)}, nil
	}}
	e := New(Config{}, withStub(model), WithTransform(transform), WithMemoryProbe(zeroMemory))

	_, err = e.Encode(context.Background(), []string{"a"}, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDimensionMismatch))
}

func TestEncode_ModelErrorFallsBack(t *testing.T) {
	model := &stubModel{dim: NativeDimension, encode: func(texts []string) ([][]float32, error) {
		return nil, errors.New("inference blew up")
	}}
	e := New(Config{}, withStub(model), WithMemoryProbe(zeroMemory))

	res, err := e.Encode(context.Background(), []string{"a"}, true)
	require.NoError(t, err)
	assert.False(t, res.Semantic)
	assert.True(t, allZero(res.Vectors, NativeDimension))
}

func TestEncode_LoadErrorFallsBack(t *testing.T) {
	model := &stubModel{dim: NativeDimension, loadErr: errors.New("weights missing")}
	e := New(Config{}, withStub(model), WithMemoryProbe(zeroMemory))

	res, err := e.Encode(context.Background(), []string{"a"}, true)
	require.NoError(t, err)
	assert.False(t, res.Semantic)
}

func TestEncode_ModelLoadsOnce(t *testing.T) {
	loads := 0
	model := &stubModel{dim: NativeDimension}
	e := New(Config{}, WithMemoryProbe(zeroMemory),
		WithLoader(func() (Model, error) {
			loads++
			return model, nil
		}))

	for i := 0; i < 3; i++ {
		_, err := e.Encode(context.Background(), []string{fmt.Sprintf("text %d", i)}, true)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, loads)
}

func TestEncode_CacheHitSkipsModel(t *testing.T) {
	model := &stubModel{dim: NativeDimension}
	e := New(Config{}, withStub(model), WithMemoryProbe(zeroMemory))

	ctx := context.Background()
	first, err := e.Encode(ctx, []string{"repeated"}, true)
	require.NoError(t, err)
	second, err := e.Encode(ctx, []string{"repeated"}, true)
	require.NoError(t, err)

	assert.Equal(t, 1, model.calls)
	assert.Equal(t, first.Vectors, second.Vectors)
	assert.True(t, second.Semantic)
}

func TestEncode_MixedCacheHitsPreserveOrder(t *testing.T) {
	model := &stubModel{dim: 4, encode: func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text)), 0, 0, 0}
		}
		return out, nil
	}}
	e := New(Config{}, withStub(model), WithMemoryProbe(zeroMemory))

	ctx := context.Background()
	_, err := e.Encode(ctx, []string{"bb"}, true)
	require.NoError(t, err)

	res, err := e.Encode(ctx, []string{"a", "bb", "ccc"}, true)
	require.NoError(t, err)

	assert.Equal(t, float32(1), res.Vectors[0][0])
	assert.Equal(t, float32(2), res.Vectors[1][0])
	assert.Equal(t, float32(3), res.Vectors[2][0])
	assert.Equal(t, 2, model.calls, "second call should only encode the two misses")
}

func TestDimension(t *testing.T) {
	e := New(Config{})
	assert.Equal(t, NativeDimension, e.Dimension())

	transform, err := codec.NewTransform(NativeDimension, 32, make([]float32, NativeDimension*32))
	require.NoError(t, err)
	e = New(Config{}, WithTransform(transform))
	assert.Equal(t, 32, e.Dimension())
}

func TestHashModel_Deterministic(t *testing.T) {
	m := NewHashModel()
	ctx := context.Background()

	a, err := m.Encode(ctx, []string{"heist thriller"})
	require.NoError(t, err)
	b, err := m.Encode(ctx, []string{"heist thriller"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a[0], NativeDimension)
	for _, v := range a[0] {
		assert.GreaterOrEqual(t, v, float32(-1))
		assert.LessOrEqual(t, v, float32(1))
	}
}
