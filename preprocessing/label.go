// Package preprocessing provides encoders that bridge label representations
// to the matrix inputs readout estimators consume.
package preprocessing

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/readout/core/model"
	scigoErrors "github.com/ezoic/readout/pkg/errors"
)

// OneHot expands integer class labels to one-hot rows by identity-matrix
// row lookup. Labels must lie in [0, numClasses).
//
// Parameters:
//   - labels: class index per sample
//   - numClasses: number of columns of the result
//
// Returns:
//   - *mat.Dense: matrix of shape (len(labels) x numClasses) with exactly
//     one 1.0 per row
//   - error: ValueError when numClasses is not positive or a label is out
//     of range
func OneHot(labels []int, numClasses int) (*mat.Dense, error) {
	if numClasses <= 0 {
		return nil, scigoErrors.NewValueError("OneHot", "numClasses must be positive")
	}

	out := mat.NewDense(len(labels), numClasses, nil)
	for i, label := range labels {
		if label < 0 || label >= numClasses {
			return nil, scigoErrors.NewValueError("OneHot",
				fmt.Sprintf("label %d at index %d is outside [0, %d)", label, i, numClasses))
		}
		out.Set(i, label, 1.0)
	}
	return out, nil
}

// LabelBinarizer is a scikit-learn style encoder between arbitrary integer
// class labels and one-hot matrices. Unlike OneHot it learns the class set
// from data, so labels need not be contiguous indices.
type LabelBinarizer struct {
	state *model.StateManager

	// Classes is the sorted list of distinct labels seen during Fit.
	Classes []int

	// classToIdx maps a label to its column index.
	classToIdx map[int]int
}

// NewLabelBinarizer creates a new LabelBinarizer.
func NewLabelBinarizer() *LabelBinarizer {
	return &LabelBinarizer{state: model.NewStateManager()}
}

// Fit learns the distinct classes from labels.
func (e *LabelBinarizer) Fit(labels []int) (err error) {
	defer scigoErrors.Recover(&err, "LabelBinarizer.Fit")
	if len(labels) == 0 {
		return scigoErrors.NewModelError("LabelBinarizer.Fit", "empty data", scigoErrors.ErrEmptyData)
	}

	classSet := make(map[int]bool)
	for _, label := range labels {
		classSet[label] = true
	}

	e.Classes = make([]int, 0, len(classSet))
	for class := range classSet {
		e.Classes = append(e.Classes, class)
	}
	sort.Ints(e.Classes)

	e.classToIdx = make(map[int]int, len(e.Classes))
	for idx, class := range e.Classes {
		e.classToIdx[class] = idx
	}

	e.state.SetDimensions(len(e.Classes), len(labels))
	e.state.SetFitted()
	return nil
}

// Transform encodes labels as one-hot rows over the learned classes.
func (e *LabelBinarizer) Transform(labels []int) (_ *mat.Dense, err error) {
	defer scigoErrors.Recover(&err, "LabelBinarizer.Transform")
	if !e.state.IsFitted() {
		return nil, scigoErrors.NewNotFittedError("LabelBinarizer", "Transform")
	}

	out := mat.NewDense(len(labels), len(e.Classes), nil)
	for i, label := range labels {
		idx, known := e.classToIdx[label]
		if !known {
			return nil, scigoErrors.NewValueError("LabelBinarizer.Transform",
				fmt.Sprintf("unknown label %d at index %d", label, i))
		}
		out.Set(i, idx, 1.0)
	}
	return out, nil
}

// FitTransform learns the classes from labels and encodes the same labels.
func (e *LabelBinarizer) FitTransform(labels []int) (*mat.Dense, error) {
	if err := e.Fit(labels); err != nil {
		return nil, err
	}
	return e.Transform(labels)
}

// InverseTransform maps one-hot (or probability) rows back to labels by row
// argmax.
func (e *LabelBinarizer) InverseTransform(y mat.Matrix) (_ []int, err error) {
	defer scigoErrors.Recover(&err, "LabelBinarizer.InverseTransform")
	if !e.state.IsFitted() {
		return nil, scigoErrors.NewNotFittedError("LabelBinarizer", "InverseTransform")
	}

	n, k := y.Dims()
	if k != len(e.Classes) {
		return nil, scigoErrors.NewDimensionError("LabelBinarizer.InverseTransform", len(e.Classes), k, 1)
	}

	labels := make([]int, n)
	for i := 0; i < n; i++ {
		best := 0
		bestV := y.At(i, 0)
		for c := 1; c < k; c++ {
			if v := y.At(i, c); v > bestV {
				bestV = v
				best = c
			}
		}
		labels[i] = e.Classes[best]
	}
	return labels, nil
}
