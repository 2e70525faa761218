package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// quantScale maps the float range [-1, 1] onto the byte range [0, 255].
const quantScale = 127.5

// MaxQuantError is the worst-case per-element error of a
// Quantize/Dequantize round trip: half a quantization step either way,
// plus rounding, stays within one full step.
const MaxQuantError = 1.0 / quantScale

// Quantize lossily compresses a vector into one byte per element. Each
// element is clipped to [-1, 1] (NaN clips to 0, infinities to the nearest
// bound) and mapped affinely onto [0, 255] with round-to-nearest.
func Quantize(vec []float32) []byte {
	out := make([]byte, len(vec))
	for i, v := range vec {
		out[i] = quantizeElem(v)
	}
	return out
}

func quantizeElem(v float32) byte {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		f = 0
	case f > 1:
		f = 1
	case f < -1:
		f = -1
	}
	return byte(math.Round((f + 1) * quantScale))
}

// Dequantize reverses Quantize. The round trip is exact only up to
// MaxQuantError per element, never bit-exact.
func Dequantize(b []byte) []float32 {
	out := make([]float32, len(b))
	for i, q := range b {
		out[i] = float32(float64(q)/quantScale - 1)
	}
	return out
}

// EncodeFloat32 encodes a vector as a little-endian sequence of IEEE 754
// float32 values, 4 bytes per element. Used for raw-form embedding rows
// and projection weights inside the persisted bundle.
func EncodeFloat32(vec []float32) []byte {
	blob := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// DecodeFloat32 reverses EncodeFloat32. A blob length that is not a
// multiple of 4 indicates corruption.
func DecodeFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid float32 blob length %d (not a multiple of 4)", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}
