// Package codec compresses embedding vectors for storage and reverses that
// compression for comparison.
//
// Two representations are supported: lossy 8-bit quantization (one byte per
// element, affine map between [-1,1] and [0,255]) and raw little-endian
// float32 blobs. The package also owns the fixed linear dimensionality
// reduction (Transform) persisted alongside a bundle's embedding matrix.
//
// Quantization is not bit-exact: a round trip is only guaranteed accurate
// to within MaxQuantError per element. Consumers comparing vectors must
// treat dequantized values as approximations.
package codec
