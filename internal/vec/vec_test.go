package vec

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	in := []float32{0.25, -1.5, 3.75, 0}
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	if _, err := Decode(nil); !errors.Is(err, ErrEmptyVector) {
		t.Errorf("nil blob: err = %v, want ErrEmptyVector", err)
	}
	if _, err := Decode([]byte{1, 2, 3}); !errors.Is(err, ErrMalformedBlob) {
		t.Errorf("3-byte blob: err = %v, want ErrMalformedBlob", err)
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{2, 0}, []float32{5, 0}, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Cosine(tc.a, tc.b)
			if err != nil {
				t.Fatalf("Cosine: %v", err)
			}
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCosineErrors(t *testing.T) {
	t.Parallel()

	if _, err := Cosine([]float32{1}, []float32{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("mismatched dims: err = %v, want ErrDimensionMismatch", err)
	}
	if _, err := Cosine(nil, []float32{1}); !errors.Is(err, ErrEmptyVector) {
		t.Errorf("empty vector: err = %v, want ErrEmptyVector", err)
	}
	if _, err := Cosine([]float32{0, 0}, []float32{1, 1}); !errors.Is(err, ErrEmptyVector) {
		t.Errorf("zero magnitude: err = %v, want ErrEmptyVector", err)
	}
}

func TestCosineDistance(t *testing.T) {
	t.Parallel()

	d, err := CosineDistance([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("CosineDistance: %v", err)
	}
	if math.Abs(d-1) > 1e-9 {
		t.Errorf("distance = %v, want 1", d)
	}
}
