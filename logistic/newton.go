package logistic

import (
	"math"

	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/readout/pkg/errors"
)

const (
	// maxHessianModifications bounds how many times a multiple of the
	// identity is added to the negated Hessian before the solve is
	// declared failed.
	maxHessianModifications = 20

	// hessianShift is the smallest diagonal shift tried when the negated
	// Hessian is not positive definite.
	hessianShift = 1e-3

	// hessianShiftIncrease is the factor by which the shift grows between
	// trial factorizations.
	hessianShiftIncrease = 5.0

	// maxStepHalvings bounds the backtracking line search.
	maxStepHalvings = 10

	// stepTolerance is the amount by which an accepted step may decrease
	// the objective before it counts as a regression.
	stepTolerance = 1e-10
)

// Gradient computes the gradient of the weighted multinomial log-likelihood
// with respect to the parameter matrix.
//
// The entry grad[j,c] is the weighted sum over samples of
// X[i,j] * (Y[i,c] - P[i,c]). It is exact for a softmax model: no
// approximation is involved. The posterior matrix must already equal
// Softmax(X * params) for the parameters the gradient is taken at.
//
// Parameters:
//   - x: feature matrix of shape (n_samples x n_features)
//   - y: target matrix of shape (n_samples x n_classes); rows may be one-hot
//     or continuous (soft targets)
//   - post: posterior matrix of shape (n_samples x n_classes)
//   - weights: per-sample non-negative weights of length n_samples
//
// Returns:
//   - *mat.Dense: gradient of shape (n_features x n_classes)
//   - error: DimensionError on incompatible shapes
func Gradient(x, y, post mat.Matrix, weights []float64) (*mat.Dense, error) {
	n, d := x.Dims()
	yn, k := y.Dims()
	pn, pk := post.Dims()

	if yn != n {
		return nil, scigoErrors.NewDimensionError("logistic.Gradient", n, yn, 0)
	}
	if pn != n {
		return nil, scigoErrors.NewDimensionError("logistic.Gradient", n, pn, 0)
	}
	if pk != k {
		return nil, scigoErrors.NewDimensionError("logistic.Gradient", k, pk, 1)
	}
	if len(weights) != n {
		return nil, scigoErrors.NewDimensionError("logistic.Gradient", n, len(weights), 0)
	}

	grad := mat.NewDense(d, k, nil)
	for i := 0; i < n; i++ {
		w := weights[i]
		if w == 0 {
			continue
		}
		for j := 0; j < d; j++ {
			xv := w * x.At(i, j)
			if xv == 0 {
				continue
			}
			for c := 0; c < k; c++ {
				grad.Set(j, c, grad.At(j, c)+xv*(y.At(i, c)-post.At(i, c)))
			}
		}
	}

	return grad, nil
}

// Hessian computes the Hessian of the weighted multinomial log-likelihood
// with respect to the flattened parameter matrix.
//
// Parameters are flattened feature-major, matching gonum's row-major Dense
// layout: entry (j, c) of the parameter matrix maps to index j*k + c. The
// Hessian entry for parameter pairs (j1,c1), (j2,c2) is
//
//	-sum_i w_i * X[i,j1] * X[i,j2] * P[i,c1] * (delta(c1,c2) - P[i,c2])
//
// which is the exact joint Hessian over all classes, not the per-class
// block-diagonal approximation. The result is negative semi-definite; it is
// singular along the softmax gauge direction and near-singular when
// posteriors are close to deterministic, which is why NewtonStep carries a
// diagonal-shift strategy.
//
// The target matrix does not enter the curvature; it is accepted so that
// Gradient and Hessian share one signature.
//
// Parameters:
//   - x: feature matrix of shape (n_samples x n_features)
//   - y: target matrix of shape (n_samples x n_classes)
//   - post: posterior matrix of shape (n_samples x n_classes)
//   - weights: per-sample non-negative weights of length n_samples
//
// Returns:
//   - *mat.SymDense: Hessian of order n_features*n_classes
//   - error: DimensionError on incompatible shapes
func Hessian(x, y, post mat.Matrix, weights []float64) (*mat.SymDense, error) {
	n, d := x.Dims()
	yn, k := y.Dims()
	pn, pk := post.Dims()

	if yn != n {
		return nil, scigoErrors.NewDimensionError("logistic.Hessian", n, yn, 0)
	}
	if pn != n {
		return nil, scigoErrors.NewDimensionError("logistic.Hessian", n, pn, 0)
	}
	if pk != k {
		return nil, scigoErrors.NewDimensionError("logistic.Hessian", k, pk, 1)
	}
	if len(weights) != n {
		return nil, scigoErrors.NewDimensionError("logistic.Hessian", n, len(weights), 0)
	}

	dim := d * k
	data := make([]float64, dim*dim)
	p := make([]float64, k)

	for i := 0; i < n; i++ {
		w := weights[i]
		if w == 0 {
			continue
		}
		for c := 0; c < k; c++ {
			p[c] = post.At(i, c)
		}
		for j1 := 0; j1 < d; j1++ {
			x1 := x.At(i, j1)
			if x1 == 0 {
				continue
			}
			for j2 := 0; j2 < d; j2++ {
				x12 := w * x1 * x.At(i, j2)
				if x12 == 0 {
					continue
				}
				for c1 := 0; c1 < k; c1++ {
					row := (j1*k + c1) * dim
					for c2 := 0; c2 < k; c2++ {
						delta := 0.0
						if c1 == c2 {
							delta = 1.0
						}
						data[row+j2*k+c2] -= x12 * p[c1] * (delta - p[c2])
					}
				}
			}
		}
	}

	return mat.NewSymDense(dim, data), nil
}

// NewtonStep produces an updated parameter matrix from one damped
// Newton-Raphson step.
//
// The ascent direction u solves (-H + tau*I) u = g by Cholesky
// factorization, where tau starts at zero and is escalated through
// successively larger multiples of the identity until the factorization
// succeeds (the modified-Newton strategy of Nocedal & Wright, alg. 3.3).
// The candidate params + alpha*u is then backtracked by step halving until
// the objective no longer falls below its current value by more than a
// numerically negligible amount; if no halving produces such a candidate
// the step is rejected and the current parameters are returned unchanged.
//
// Parameters:
//   - grad: gradient with the same shape as params
//   - hess: Hessian over the flattened parameters, order rows*cols of params
//   - params: current parameter matrix
//   - objective: maps a flattened candidate parameter vector to its
//     log-likelihood
//
// Returns:
//   - *mat.Dense: updated parameters, same shape as params
//   - error: DimensionError on incompatible shapes, or
//     NumericalInstabilityError when the inputs are non-finite or no
//     diagonal shift yields a factorizable system
func NewtonStep(grad *mat.Dense, hess *mat.SymDense, params *mat.Dense, objective func([]float64) float64) (*mat.Dense, error) {
	d, k := params.Dims()
	gd, gk := grad.Dims()
	if gd != d {
		return nil, scigoErrors.NewDimensionError("logistic.NewtonStep", d, gd, 0)
	}
	if gk != k {
		return nil, scigoErrors.NewDimensionError("logistic.NewtonStep", k, gk, 1)
	}
	dim := d * k
	if hd := hess.SymmetricDim(); hd != dim {
		return nil, scigoErrors.NewDimensionError("logistic.NewtonStep", dim, hd, 0)
	}

	if err := scigoErrors.CheckMatrix("newton_step_gradient", grad, d, k, 0); err != nil {
		return nil, err
	}
	if err := scigoErrors.CheckMatrix("newton_step_hessian", hess, dim, dim, 0); err != nil {
		return nil, err
	}

	g := flatten(grad)

	// Factorize B = -H + tau*I, escalating tau until B is positive
	// definite. The exact Hessian is only negative semi-definite, so a
	// shift is routinely needed near deterministic posteriors.
	minDiag := math.Inf(1)
	for i := 0; i < dim; i++ {
		if v := -hess.At(i, i); v < minDiag {
			minDiag = v
		}
	}
	tau := 0.0
	if minDiag <= 0 {
		tau = hessianShift - minDiag
	}

	b := mat.NewSymDense(dim, nil)
	var chol mat.Cholesky
	factorized := false
	for mod := 0; mod < maxHessianModifications; mod++ {
		for i := 0; i < dim; i++ {
			for j := i; j < dim; j++ {
				v := -hess.At(i, j)
				if i == j {
					v += tau
				}
				b.SetSym(i, j, v)
			}
		}
		if chol.Factorize(b) {
			factorized = true
			break
		}
		tau = math.Max(hessianShiftIncrease*tau, hessianShift)
	}
	if !factorized {
		diag := make([]float64, 0, 5)
		for i := 0; i < dim && i < 5; i++ {
			diag = append(diag, hess.At(i, i))
		}
		return nil, scigoErrors.NewNumericalInstabilityError("newton_step", diag, 0)
	}

	var step mat.VecDense
	if err := chol.SolveVecTo(&step, mat.NewVecDense(dim, g)); err != nil {
		// A Condition error means the solution was computed but the
		// system is ill-conditioned, which is routine at the
		// gauge-singular Hessian. The damping below keeps the step safe.
		var cond mat.Condition
		if !scigoErrors.As(err, &cond) {
			return nil, scigoErrors.NewNumericalInstabilityError("newton_step_solve", g, 0)
		}
	}
	if err := scigoErrors.CheckValues("newton_step_direction", step.RawVector().Data, 0); err != nil {
		return nil, err
	}

	// Step halving: the Hessian model can overshoot, so damp until the
	// candidate does not regress the objective. If no halving yields an
	// acceptable candidate the step is rejected outright.
	flat := flatten(params)
	current := objective(flat)
	cand := make([]float64, dim)
	alpha := 1.0
	accepted := false
	for h := 0; h <= maxStepHalvings; h++ {
		for i := range cand {
			cand[i] = flat[i] + alpha*step.AtVec(i)
		}
		if objective(cand) >= current-stepTolerance {
			accepted = true
			break
		}
		alpha *= 0.5
	}
	if !accepted {
		copy(cand, flat)
	}

	return mat.NewDense(d, k, cand), nil
}

// flatten copies a matrix into a row-major slice.
func flatten(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[i*c+j] = m.At(i, j)
		}
	}
	return out
}
