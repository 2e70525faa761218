package encoder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dshills/cinematch/internal/codec"
	"github.com/dshills/cinematch/internal/logging"
	"github.com/dshills/cinematch/pkg/types"
)

// Config holds encoder operating modes.
type Config struct {
	// KeywordOnly disables semantic encoding entirely: Encode always
	// returns the zero-vector fallback, regardless of forceSemantic.
	KeywordOnly bool

	// MemoryCeilingBytes is the projected-memory ceiling for the safety
	// check. Zero selects DefaultMemoryCeilingBytes.
	MemoryCeilingBytes uint64

	// RemoteURL, when set, routes semantic encoding through an external
	// embedding service before trying the local model.
	RemoteURL string

	// CacheSize bounds the query-vector LRU cache. Zero selects
	// DefaultCacheSize.
	CacheSize int
}

// Result is the outcome of one Encode call. Semantic distinguishes a real
// model invocation from the degenerate all-zero fallback so callers can
// tell "weak match" apart from "no semantic signal" without parsing logs.
type Result struct {
	// Vectors holds one vector per input text, all the same width.
	Vectors [][]float32

	// Semantic is true when the vectors came from the model, false when
	// the zero-vector fallback was used.
	Semantic bool
}

// Encoder turns text into vectors, arbitrating between the semantic model
// and the zero-vector fallback.
//
// The model is loaded lazily on first semantic use and kept for the
// process lifetime, guarded by a one-time-init primitive; an Encoder is
// safe for concurrent use. Encoders are plain values handed to their
// consumers; there is no package-level instance.
type Encoder struct {
	cfg       Config
	transform *codec.Transform
	remote    *RemoteModel
	cache     *vectorCache

	// loader builds the local model on first use.
	loader func() (Model, error)

	// probe reports current process memory use.
	probe func() (uint64, error)

	loadOnce sync.Once
	model    Model
	loadErr  error
	resident atomic.Bool
}

// Option customizes an Encoder.
type Option func(*Encoder)

// WithTransform installs the reduction transform that keeps query vectors
// commensurate with stored vectors. Semantic outputs are projected through
// it; fallback vectors take its output width.
func WithTransform(t *codec.Transform) Option {
	return func(e *Encoder) { e.transform = t }
}

// WithLoader replaces how the local model is constructed on first use.
func WithLoader(load func() (Model, error)) Option {
	return func(e *Encoder) { e.loader = load }
}

// WithMemoryProbe replaces the process-memory estimator. Intended for
// tests.
func WithMemoryProbe(probe func() (uint64, error)) Option {
	return func(e *Encoder) { e.probe = probe }
}

// New creates an Encoder with the given operating modes.
func New(cfg Config, opts ...Option) *Encoder {
	if cfg.MemoryCeilingBytes == 0 {
		cfg.MemoryCeilingBytes = DefaultMemoryCeilingBytes
	}
	e := &Encoder{
		cfg:    cfg,
		cache:  newVectorCache(cfg.CacheSize),
		loader: func() (Model, error) { return NewHashModel(), nil },
		probe:  processRSS,
	}
	if cfg.RemoteURL != "" {
		e.remote = NewRemoteModel(cfg.RemoteURL)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the width vectors from this Encoder currently have:
// the transform's output width when one is active, else the model's
// native width.
func (e *Encoder) Dimension() int {
	if e.transform != nil {
		return e.transform.OutDim()
	}
	if e.resident.Load() {
		return e.model.Dimension()
	}
	return NativeDimension
}

// Encode turns texts into vectors.
//
// The decision rule, in order:
//  1. Keyword-only mode set: always the fallback, the model is never
//     invoked.
//  2. forceSemantic: run the memory-safety check; if the projected usage
//     fits under the ceiling, invoke the model (remote first when
//     configured, then local). Any model failure is logged and absorbed
//     by the fallback.
//  3. Otherwise: the fallback.
//
// The fallback is an all-zero vector per text, at the width currently in
// effect. Zero vectors score 0 against everything under cosine
// similarity; downstream ranking reads that as "no semantic signal", not
// as a meaningful ordering.
//
// The only hard error is a dimensionality mismatch between the model
// output and the active transform, which has no safe fallback.
func (e *Encoder) Encode(ctx context.Context, texts []string, forceSemantic bool) (*Result, error) {
	if len(texts) == 0 {
		return &Result{Vectors: [][]float32{}}, nil
	}

	if e.cfg.KeywordOnly {
		logging.Debug().Int("texts", len(texts)).Msg("keyword-only mode, using fallback encoding")
		return e.fallback(texts), nil
	}
	if !forceSemantic {
		return e.fallback(texts), nil
	}

	if err := e.checkMemory(); err != nil {
		logging.Warn().Err(err).Msg("memory safety check failed, using fallback encoding")
		return e.fallback(texts), nil
	}

	vectors, err := e.encodeSemantic(ctx, texts)
	if err != nil {
		if errors.Is(err, types.ErrDimensionMismatch) {
			return nil, err
		}
		logging.Warn().Err(err).Msg("semantic encoding failed, using fallback encoding")
		return e.fallback(texts), nil
	}
	return &Result{Vectors: vectors, Semantic: true}, nil
}

// fallback builds the degenerate all-zero response.
func (e *Encoder) fallback(texts []string) *Result {
	dim := e.Dimension()
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = make([]float32, dim)
	}
	return &Result{Vectors: vectors, Semantic: false}
}

// checkMemory estimates whether invoking the model would push the process
// over the configured ceiling. Loading fresh is budgeted much heavier than
// re-invoking a resident (or remote) model.
func (e *Encoder) checkMemory() error {
	rss, err := e.probe()
	if err != nil {
		// Can't estimate; let the model try rather than degrade on a
		// probe failure.
		logging.Debug().Err(err).Msg("memory probe failed")
		return nil
	}
	overhead := ModelFreshLoadOverheadBytes
	if e.resident.Load() || e.remote != nil {
		overhead = ModelResidentOverheadBytes
	}
	projected := rss + overhead
	if projected > e.cfg.MemoryCeilingBytes {
		return fmt.Errorf("projected memory %d MiB exceeds ceiling %d MiB",
			projected>>20, e.cfg.MemoryCeilingBytes>>20)
	}
	return nil
}

// encodeSemantic runs the real model for cache misses and assembles the
// response in input order. Outputs pass through the reduction transform
// when one is active.
func (e *Encoder) encodeSemantic(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if vec, ok := e.cache.get(hashText(text)); ok {
			vectors[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return vectors, nil
	}

	raw, err := e.invokeModel(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(missTexts) {
		return nil, fmt.Errorf("model returned %d vectors for %d texts", len(raw), len(missTexts))
	}

	for n, vec := range raw {
		if e.transform != nil {
			vec, err = e.transform.Apply(vec)
			if err != nil {
				return nil, err
			}
		}
		vectors[missIdx[n]] = vec
		e.cache.set(hashText(missTexts[n]), vec)
	}
	return vectors, nil
}

// invokeModel prefers the remote service when configured and falls back to
// the lazily-loaded local model on any remote failure.
func (e *Encoder) invokeModel(ctx context.Context, texts []string) ([][]float32, error) {
	if e.remote != nil {
		vectors, err := e.remote.Encode(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		logging.Warn().Err(err).Msg("remote encoding failed, trying local model")
	}

	model, err := e.localModel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrModelUnavailable, err)
	}
	return model.Encode(ctx, texts)
}

// localModel loads the local model exactly once per process lifetime.
// Unloading is out of scope: once resident, the model stays resident.
func (e *Encoder) localModel() (Model, error) {
	e.loadOnce.Do(func() {
		e.model, e.loadErr = e.loader()
		if e.loadErr == nil {
			e.resident.Store(true)
			logging.Info().Str("model", e.model.Name()).Msg("local model loaded")
		}
	})
	return e.model, e.loadErr
}
