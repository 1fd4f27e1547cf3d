package logistic_test

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/readout/logistic"
)

// ExampleSoftmaxRegression demonstrates turning feature vectors into class
// predictions. The coefficients are set explicitly; the first feature votes
// for class 0 and the second for class 1.
func ExampleSoftmaxRegression() {
	m, err := logistic.NewSoftmaxRegression(2, 2, logistic.WithSeed(42))
	if err != nil {
		return
	}
	if err := m.SetCoef(mat.NewDense(2, 2, []float64{
		5.0, -5.0,
		-5.0, 5.0,
	})); err != nil {
		return
	}

	X := mat.NewDense(2, 2, []float64{
		1.0, 0.0,
		0.0, 1.0,
	})
	pred, err := m.Predict(X)
	if err != nil {
		return
	}
	fmt.Printf("sample 0 -> class %.0f\n", pred.At(0, 0))
	fmt.Printf("sample 1 -> class %.0f\n", pred.At(1, 0))

	// Output: sample 0 -> class 0
	// sample 1 -> class 1
}

// ExampleSoftmaxRegression_fitLabels shows fitting from integer class
// labels, which are expanded to one-hot targets internally.
func ExampleSoftmaxRegression_fitLabels() {
	X := mat.NewDense(2, 2, []float64{
		1.0, 0.0,
		0.0, 1.0,
	})

	m, err := logistic.NewSoftmaxRegression(2, 2, logistic.WithSeed(42))
	if err != nil {
		return
	}
	if _, err := m.FitLabels(X, []int{0, 1}); err != nil {
		return
	}

	fmt.Println("fitted:", m.IsFitted())
	fmt.Println("within budget:", m.NIter() <= 20)

	// Output: fitted: true
	// within budget: true
}
