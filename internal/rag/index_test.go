package rag

import (
	"math"
	"testing"
)

func TestIndex_SearchOrdering(t *testing.T) {
	ix := NewIndex(2)
	err := ix.Add([][]float32{
		{10, 0}, // far
		{1, 0},  // nearest
		{3, 0},  // middle
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	idxs, dists := ix.Search([]float32{0, 0}, 3)
	want := []int{1, 2, 0}
	for i, w := range want {
		if idxs[i] != w {
			t.Errorf("rank %d: got index %d, want %d", i, idxs[i], w)
		}
	}
	for i := 1; i < len(dists); i++ {
		if dists[i] < dists[i-1] {
			t.Errorf("distances not ascending: %v", dists)
		}
	}
	if math.Abs(dists[0]-1.0) > 1e-9 {
		t.Errorf("nearest distance = %f, want 1.0", dists[0])
	}
}

func TestIndex_KClamped(t *testing.T) {
	ix := NewIndex(2)
	_ = ix.Add([][]float32{{0, 1}, {1, 0}})

	idxs, dists := ix.Search([]float32{0, 0}, 10)
	if len(idxs) != 2 || len(dists) != 2 {
		t.Fatalf("expected 2 results, got %d/%d", len(idxs), len(dists))
	}
}

func TestIndex_EmptyAndInvalid(t *testing.T) {
	ix := NewIndex(2)

	if idxs, _ := ix.Search([]float32{0, 0}, 3); idxs != nil {
		t.Errorf("empty index should return nil, got %v", idxs)
	}

	_ = ix.Add([][]float32{{0, 1}})
	if idxs, _ := ix.Search([]float32{0, 0}, 0); idxs != nil {
		t.Errorf("k=0 should return nil, got %v", idxs)
	}
	if idxs, _ := ix.Search([]float32{0, 0, 0}, 1); idxs != nil {
		t.Errorf("dimension-mismatched query should return nil, got %v", idxs)
	}
}

func TestIndex_AddDimensionMismatch(t *testing.T) {
	ix := NewIndex(3)
	if err := ix.Add([][]float32{{1, 2}}); err == nil {
		t.Error("expected error for wrong-dimension vector")
	}
	if ix.Len() != 0 {
		t.Errorf("rejected add should not grow the index, len=%d", ix.Len())
	}
}

func TestIndex_Reset(t *testing.T) {
	ix := NewIndex(1)
	_ = ix.Add([][]float32{{1}, {2}, {3}})
	if ix.Len() != 3 {
		t.Fatalf("len = %d, want 3", ix.Len())
	}
	ix.Reset()
	if ix.Len() != 0 {
		t.Errorf("len after reset = %d, want 0", ix.Len())
	}
}
