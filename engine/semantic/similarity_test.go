package semantic

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTopK(t *testing.T) {
	candidates := []Candidate{
		{ID: "far", Vector: []float32{0, 1}},
		{ID: "near", Vector: []float32{1, 0.1}},
		{ID: "tie-a", Vector: []float32{1, 1}},
		{ID: "tie-b", Vector: []float32{2, 2}},
	}
	got := TopK([]float32{1, 0}, candidates, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	order := []string{got[0].ID, got[1].ID, got[2].ID}
	if order[0] != "near" || order[1] != "tie-a" || order[2] != "tie-b" {
		t.Fatalf("unexpected order %v", order)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatal("scores must be non-increasing")
		}
	}
}

func TestTopKEdges(t *testing.T) {
	if got := TopK([]float32{1}, nil, 3); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := TopK([]float32{1}, []Candidate{{ID: "a", Vector: []float32{1}}}, 0); got != nil {
		t.Fatalf("expected nil for k=0, got %v", got)
	}
	if got := TopK([]float32{1}, []Candidate{{ID: "a", Vector: []float32{1}}}, 10); len(got) != 1 {
		t.Fatalf("k larger than candidates must return all, got %d", len(got))
	}
}
