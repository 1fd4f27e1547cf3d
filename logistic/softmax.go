package logistic

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Softmax maps a matrix of raw scores to row-stochastic probabilities.
//
// For each row the maximum entry is subtracted before exponentiation so
// that large scores cannot overflow; the row is then normalized to sum
// to 1. The function is pure and total over finite inputs.
//
// Parameters:
//   - scores: real-valued matrix of shape (n_samples x n_classes)
//
// Returns:
//   - *mat.Dense: probability matrix of the same shape, rows summing to 1
func Softmax(scores mat.Matrix) *mat.Dense {
	n, k := scores.Dims()
	probs := mat.NewDense(n, k, nil)

	for i := 0; i < n; i++ {
		rowMax := scores.At(i, 0)
		for j := 1; j < k; j++ {
			if v := scores.At(i, j); v > rowMax {
				rowMax = v
			}
		}

		sum := 0.0
		for j := 0; j < k; j++ {
			e := math.Exp(scores.At(i, j) - rowMax)
			probs.Set(i, j, e)
			sum += e
		}

		for j := 0; j < k; j++ {
			probs.Set(i, j, probs.At(i, j)/sum)
		}
	}

	return probs
}
