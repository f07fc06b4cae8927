// Package vec provides the float32 vector representation shared by the
// embedding cache, the intent classifier, and the product search engine,
// together with the binary codec used to store vectors in BLOB columns.
package vec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for vector operations.
var (
	ErrEmptyVector       = errors.New("vec: empty vector")
	ErrDimensionMismatch = errors.New("vec: dimension mismatch")
	ErrMalformedBlob     = errors.New("vec: malformed blob")
)

// Encode serializes a vector as little-endian float32 values.
// The layout matches what the SQLite distance function expects.
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Decode deserializes a little-endian float32 blob produced by Encode.
func Decode(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, ErrEmptyVector
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedBlob, len(blob))
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}

// Cosine returns the cosine similarity between a and b in [-1, 1].
// Vectors of different lengths or zero magnitude yield an error rather
// than a silent zero, so callers never mistake bad input for "dissimilar".
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("%w: zero magnitude", ErrEmptyVector)
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// CosineDistance returns 1 - Cosine(a, b). For the unit-length embeddings
// produced by the providers this stays within [0, 1]; similarity is
// recovered as 1 - distance in exactly one place (the search engine).
func CosineDistance(a, b []float32) (float64, error) {
	sim, err := Cosine(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}
