package es

import (
	"gonum.org/v1/gonum/floats"
)

// CenteredRanks maps fitness values to their ranks scaled into [-0.5, 0.5].
func CenteredRanks(x []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	idx := argsort(x)
	for rank, i := range idx {
		out[i] = float64(rank)/float64(n-1) - 0.5
	}
	return out
}

// argsort returns the indices that sort x ascending without modifying x.
func argsort(x []float64) []int {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	idx := make([]int, len(x))
	floats.Argsort(sorted, idx)
	return idx
}

// argsortDesc returns the indices that sort x descending.
func argsortDesc(x []float64) []int {
	idx := argsort(x)
	for i, j := 0, len(idx)-1; i < j; i, j = i+1, j-1 {
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}
