package core

import "math"

// Norm returns the L2 norm of vec.
func Norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of vec. A zero vector is returned
// unchanged.
func Normalize(vec []float32) []float32 {
	norm := Norm(vec)
	out := make([]float32, len(vec))
	if norm == 0 {
		copy(out, vec)
		return out
	}
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// Dot returns the dot product of a and b. Both must have the same length.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// CheckDimension returns a *DimensionMismatchError when len(vec) != dim.
func CheckDimension(vec []float32, dim int) error {
	if len(vec) != dim {
		return &DimensionMismatchError{Expected: dim, Got: len(vec)}
	}
	return nil
}
