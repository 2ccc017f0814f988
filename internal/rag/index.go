package rag

import (
	"errors"
	"math"
	"sort"
)

// Index is a flat, brute-force Euclidean nearest-neighbor index.
// Corpora are single-document working sets, so exact O(n) search beats
// an approximate structure here. The index is not safe for concurrent
// use on its own; the retrieval service serializes access.
type Index struct {
	dim     int
	vectors [][]float32
}

// NewIndex creates an empty index for vectors of the given dimension.
func NewIndex(dim int) *Index {
	return &Index{dim: dim}
}

// Add appends vectors to the index in order.
func (ix *Index) Add(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != ix.dim {
			return errors.New("vector dimension mismatch")
		}
	}
	ix.vectors = append(ix.vectors, vectors...)
	return nil
}

// Search returns the indices of the k nearest stored vectors to query,
// with their L2 distances, in ascending-distance order. k is clamped to
// the number of stored vectors.
func (ix *Index) Search(query []float32, k int) ([]int, []float64) {
	if k > len(ix.vectors) {
		k = len(ix.vectors)
	}
	if k <= 0 || len(query) != ix.dim {
		return nil, nil
	}

	dists := make([]float64, len(ix.vectors))
	order := make([]int, len(ix.vectors))
	for i, v := range ix.vectors {
		dists[i] = l2(query, v)
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return dists[order[a]] < dists[order[b]] })

	idxs := make([]int, k)
	out := make([]float64, k)
	for i := 0; i < k; i++ {
		idxs[i] = order[i]
		out[i] = dists[order[i]]
	}
	return idxs, out
}

// Len returns the number of stored vectors.
func (ix *Index) Len() int { return len(ix.vectors) }

// Reset removes all stored vectors.
func (ix *Index) Reset() { ix.vectors = nil }

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
