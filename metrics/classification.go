// Package metrics provides evaluation metrics for probabilistic readouts.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/readout/pkg/errors"
)

// Accuracy computes the fraction of matching entries between two
// (n_samples x 1) label columns, as produced by Predict.
//
// Parameters:
//   - yTrue: ground-truth class indices
//   - yPred: predicted class indices
//
// Returns:
//   - float64: fraction of rows where the labels agree
//   - error: DimensionError when the shapes differ, or an empty-data error
func Accuracy(yTrue, yPred mat.Matrix) (float64, error) {
	n, c := yTrue.Dims()
	pn, pc := yPred.Dims()

	if n == 0 {
		return 0, scigoErrors.NewModelError("Accuracy", "empty data", scigoErrors.ErrEmptyData)
	}
	if pn != n {
		return 0, scigoErrors.NewDimensionError("Accuracy", n, pn, 0)
	}
	if c != 1 || pc != 1 {
		return 0, scigoErrors.NewValueError("Accuracy", "inputs must be column vectors of labels")
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.At(i, 0) == yPred.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// LogLoss computes the mean cross-entropy between one-hot (or soft) targets
// and predicted probabilities:
//
//	-1/n * sum_i sum_c Y[i,c] * log(max(P[i,c], eps))
//
// Probabilities are floored at eps before the logarithm. Pass eps <= 0 to
// use the default floor of 1e-15.
func LogLoss(yTrue, proba mat.Matrix, eps float64) (float64, error) {
	n, k := yTrue.Dims()
	pn, pk := proba.Dims()

	if n == 0 {
		return 0, scigoErrors.NewModelError("LogLoss", "empty data", scigoErrors.ErrEmptyData)
	}
	if pn != n {
		return 0, scigoErrors.NewDimensionError("LogLoss", n, pn, 0)
	}
	if pk != k {
		return 0, scigoErrors.NewDimensionError("LogLoss", k, pk, 1)
	}
	if eps <= 0 {
		eps = 1e-15
	}

	loss := 0.0
	for i := 0; i < n; i++ {
		for c := 0; c < k; c++ {
			t := yTrue.At(i, c)
			if t == 0 {
				continue
			}
			p := proba.At(i, c)
			if p < eps {
				p = eps
			}
			loss -= t * math.Log(p)
		}
	}
	return loss / float64(n), nil
}
