package errors_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/readout/pkg/errors"
)

// TestErrorWrappingCompatibility tests Go 1.13+ error wrapping with the
// library's custom types.
func TestErrorWrappingCompatibility(t *testing.T) {
	originalErr := scigoErrors.NewNotFittedError("SoftmaxRegression", "Sample")

	wrappedErr := fmt.Errorf("pipeline step failed: %w", originalErr)

	if !errors.Is(wrappedErr, originalErr) {
		t.Errorf("errors.Is failed to identify wrapped error")
	}

	var notFittedErr *scigoErrors.NotFittedError
	if !errors.As(wrappedErr, &notFittedErr) {
		t.Errorf("errors.As failed to extract NotFittedError")
	}

	if notFittedErr.ModelName != "SoftmaxRegression" {
		t.Errorf("expected ModelName 'SoftmaxRegression', got '%s'", notFittedErr.ModelName)
	}
}

func TestDimensionErrorFields(t *testing.T) {
	err := scigoErrors.NewDimensionError("logistic.Gradient", 4, 3, 0)

	var dimErr *scigoErrors.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionError, got %T", err)
	}
	if dimErr.Expected != 4 || dimErr.Got != 3 || dimErr.Axis != 0 {
		t.Errorf("unexpected fields: %+v", dimErr)
	}
}

func TestNumericalInstabilityErrorTruncatesValues(t *testing.T) {
	values := []float64{math.NaN(), 1, 2, 3, 4, 5, 6, 7}
	err := scigoErrors.NewNumericalInstabilityError("newton_step", values, 3)

	var numErr *scigoErrors.NumericalInstabilityError
	if !errors.As(err, &numErr) {
		t.Fatalf("expected NumericalInstabilityError, got %T", err)
	}
	if numErr.Iteration != 3 {
		t.Errorf("expected iteration 3, got %d", numErr.Iteration)
	}
	// The message caps the displayed values so it stays readable.
	msg := err.Error()
	if len(msg) == 0 {
		t.Fatal("empty error message")
	}
}

func TestCheckScalar(t *testing.T) {
	if err := scigoErrors.CheckScalar("objective", 1.5, 0); err != nil {
		t.Errorf("finite value must pass: %v", err)
	}
	if err := scigoErrors.CheckScalar("objective", math.NaN(), 0); err == nil {
		t.Error("NaN must fail the check")
	}
	if err := scigoErrors.CheckScalar("objective", math.Inf(1), 0); err == nil {
		t.Error("Inf must fail the check")
	}
}

func TestCheckMatrix(t *testing.T) {
	clean := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if err := scigoErrors.CheckMatrix("gradient", clean, 2, 2, 0); err != nil {
		t.Errorf("finite matrix must pass: %v", err)
	}

	dirty := mat.NewDense(2, 2, []float64{1, math.Inf(-1), 3, 4})
	err := scigoErrors.CheckMatrix("gradient", dirty, 2, 2, 1)
	if err == nil {
		t.Fatal("matrix with Inf must fail the check")
	}
	var numErr *scigoErrors.NumericalInstabilityError
	if !errors.As(err, &numErr) {
		t.Errorf("expected NumericalInstabilityError, got %T", err)
	}
}

func TestWarningHandler(t *testing.T) {
	var got error
	scigoErrors.SetWarningHandler(func(w error) { got = w })
	defer scigoErrors.SetWarningHandler(func(w error) {})

	warning := scigoErrors.NewConvergenceWarning("Newton-Raphson", 20, "budget exhausted")
	scigoErrors.Warn(warning)

	if got == nil {
		t.Fatal("warning handler was not invoked")
	}
	var convWarn *scigoErrors.ConvergenceWarning
	if !errors.As(got, &convWarn) {
		t.Fatalf("expected ConvergenceWarning, got %T", got)
	}
	if convWarn.Iterations != 20 {
		t.Errorf("expected 20 iterations, got %d", convWarn.Iterations)
	}
}

func TestRecoverConvertsPanic(t *testing.T) {
	fn := func() (err error) {
		defer scigoErrors.Recover(&err, "test operation")
		panic("boom")
	}

	err := fn()
	if err == nil {
		t.Fatal("expected panic to be converted to an error")
	}
	var panicErr *scigoErrors.PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("expected PanicError, got %T: %v", err, err)
	}
	if panicErr.Operation != "test operation" {
		t.Errorf("unexpected operation: %s", panicErr.Operation)
	}
}
