package encoder

import (
	"context"
	"crypto/sha256"
)

const (
	// DefaultModelName is the sentence encoder the offline stage embeds with.
	DefaultModelName = "all-MiniLM-L6-v2"

	// NativeDimension is the raw output width of the default model.
	NativeDimension = 384
)

// Model is a black-box "texts in, fixed-width vectors out" encoder. The
// retrieval core never trains or tunes a model; it only invokes one.
type Model interface {
	// Encode returns one vector per input text, each Dimension() wide.
	Encode(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the model's native output width.
	Dimension() int

	// Name identifies the model for logging.
	Name() string
}

// hashModel is the bundled local model: a deterministic content-hash
// embedding in the style of an offline fallback encoder. It carries no
// semantic signal worth trusting, but it is cheap, has zero external
// dependencies, and produces stable vectors for caching and tests.
type hashModel struct{}

// NewHashModel returns the deterministic local model.
func NewHashModel() Model { return hashModel{} }

func (hashModel) Name() string { return "local-hash" }

func (hashModel) Dimension() int { return NativeDimension }

func (hashModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := make([]float32, NativeDimension)
		sum := sha256.Sum256([]byte(text))
		j := 0
		for j < NativeDimension {
			for _, b := range sum {
				if j >= NativeDimension {
					break
				}
				vec[j] = float32(b)/127.5 - 1
				j++
			}
			sum = sha256.Sum256(sum[:])
		}
		out[i] = vec
	}
	return out, nil
}
