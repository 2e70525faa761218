package codec

import (
	"fmt"

	"github.com/dshills/cinematch/pkg/types"
)

// Transform is a fixed linear projection from InDim-wide vectors to
// OutDim-wide vectors, learned once offline and persisted alongside the
// embedding matrix. A query vector must pass through the same transform
// that produced the stored vectors before the two are compared.
type Transform struct {
	inDim   int
	outDim  int
	weights []float32 // row-major, OutDim rows of InDim weights
}

// NewTransform builds a Transform from row-major weights. The weight count
// must equal inDim*outDim.
func NewTransform(inDim, outDim int, weights []float32) (*Transform, error) {
	if inDim <= 0 || outDim <= 0 {
		return nil, fmt.Errorf("invalid transform shape %dx%d", outDim, inDim)
	}
	if len(weights) != inDim*outDim {
		return nil, fmt.Errorf("transform weights length %d does not match shape %dx%d", len(weights), outDim, inDim)
	}
	w := make([]float32, len(weights))
	copy(w, weights)
	return &Transform{inDim: inDim, outDim: outDim, weights: w}, nil
}

// InDim returns the expected input width.
func (t *Transform) InDim() int { return t.inDim }

// OutDim returns the projected output width.
func (t *Transform) OutDim() int { return t.outDim }

// Weights returns the row-major weight matrix.
func (t *Transform) Weights() []float32 { return t.weights }

// Apply projects vec into the reduced space. A width mismatch is a hard
// error, never a silent truncation or padding.
func (t *Transform) Apply(vec []float32) ([]float32, error) {
	if len(vec) != t.inDim {
		return nil, fmt.Errorf("%w: transform expects %d inputs, got %d",
			types.ErrDimensionMismatch, t.inDim, len(vec))
	}
	out := make([]float32, t.outDim)
	for i := 0; i < t.outDim; i++ {
		row := t.weights[i*t.inDim : (i+1)*t.inDim]
		var sum float64
		for j, w := range row {
			sum += float64(w) * float64(vec[j])
		}
		out[i] = float32(sum)
	}
	return out, nil
}
