package vectorindex

import (
	"fmt"
	"math"
)

// roundingTolerance absorbs float error around +/-1 before a similarity is treated as corrupt.
const roundingTolerance = 1e-6

// norm validates the vector against the index dimension and returns its L2 norm.
func norm(vec []float32, dim int) (float64, error) {
	if len(vec) != dim {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dim, len(vec))
	}

	var sum float64
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%w: non-finite component", ErrDegenerateVector)
		}
		sum += f * f
	}
	if sum == 0 {
		return 0, fmt.Errorf("%w: zero norm", ErrDegenerateVector)
	}

	return math.Sqrt(sum), nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// cosine computes dot(a,b) / (|a|*|b|) from precomputed norms.
func cosine(a []float32, aNorm float64, b []float32, bNorm float64) (float64, error) {
	sim := dot(a, b) / (aNorm * bNorm)
	if math.IsNaN(sim) || sim > 1+roundingTolerance || sim < -1-roundingTolerance {
		return 0, fmt.Errorf("%w: %v", ErrCorruptSimilarity, sim)
	}
	return math.Max(-1, math.Min(1, sim)), nil
}

// Cosine returns the cosine similarity of two equally sized vectors.
func Cosine(a, b []float32) (float64, error) {
	an, err := norm(a, len(a))
	if err != nil {
		return 0, err
	}
	bn, err := norm(b, len(a))
	if err != nil {
		return 0, err
	}
	return cosine(a, an, b, bn)
}
