package semantic

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b. Vectors of different
// length or with a zero norm score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK scores every candidate against query and returns the k best, highest
// first. Equal scores keep candidate order.
func TopK(query []float32, candidates []Candidate, k int) []SearchResult {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	scored := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		scored[i] = SearchResult{ID: c.ID, Score: float32(Cosine(query, c.Vector))}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
