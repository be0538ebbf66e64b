package utils

import "math"

// CosineSimilarity calculates the cosine similarity between two float32
// vectors. Returns 0 when lengths differ, either vector is empty, or either
// has zero magnitude. Result is in [-1, 1].
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// DotProduct returns the dot product of two equal-length vectors, 0 otherwise.
func DotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var result float64
	for i := range a {
		result += float64(a[i]) * float64(b[i])
	}
	return result
}

// Magnitude returns the L2 norm of v.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns v scaled to unit length, or nil for empty or
// zero-magnitude input.
func Normalize(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	mag := Magnitude(v)
	if mag == 0 {
		return nil
	}
	result := make([]float32, len(v))
	for i, x := range v {
		result[i] = float32(float64(x) / mag)
	}
	return result
}
