package recognizer

import "math"

// CosineDistance reports how far apart two face signatures point, from 0
// (same direction) to 2 (opposite). Confidence converts this into the 0-100
// score the grant thresholds are written against. Signatures of mismatched
// or zero length score as maximally distant rather than erroring.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Rounding can push the ratio just outside [-1, 1].
	sim = math.Max(-1, math.Min(1, sim))
	return 1 - sim
}
