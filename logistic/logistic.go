package logistic

import (
	crand "crypto/rand"
	"math"
	"math/big"
	"math/rand/v2"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ezoic/readout/core/model"
	scigoErrors "github.com/ezoic/readout/pkg/errors"
	scigoLog "github.com/ezoic/readout/pkg/log"
	"github.com/ezoic/readout/preprocessing"
)

// Method selects the optimization path used by Fit.
type Method string

const (
	// MethodNewtonRaphson selects the second-order Newton-Raphson loop.
	MethodNewtonRaphson Method = "Newton-Raphson"
	// MethodLBFGS selects the external quasi-Newton solver. Any method
	// value other than MethodNewtonRaphson takes this path as well; an
	// unrecognized method is never a silent no-op.
	MethodLBFGS Method = "L-BFGS"
)

const (
	// defaultMaxIter is the Newton-Raphson iteration budget.
	defaultMaxIter = 20

	// likelihoodEpsilon is added to the per-sample likelihood before the
	// logarithm so an underflowed probability cannot produce -Inf. It is a
	// numerical floor, not a smoothing prior.
	likelihoodEpsilon = 1e-7

	// convergenceThreshold is the absolute log-likelihood improvement below
	// which the Newton loop stops. It is a calibration constant independent
	// of dataset size; a relative or per-sample threshold would scale
	// better. TODO: normalize by sample count once callers can opt in.
	convergenceThreshold = 1.0

	// Settings for the external fallback solver.
	fallbackMaxIter           = 100
	fallbackGradientTolerance = 1e-4
)

// SoftmaxRegression is a multinomial logistic regression readout. It maps a
// feature vector to class probabilities through a softmax of a linear
// transform and is trained by maximizing the log-likelihood of weighted
// multinomial observations.
//
// Targets may be one-hot rows or continuous values in the same shape (soft
// targets); both are treated identically. The gradient and Hessian routines
// are weight-aware so the readout can serve as a component of a
// mixture-of-experts model, where responsibilities act as sample weights.
//
// The parameter matrix is valid from construction (random initialization),
// so prediction, likelihood scoring, and sampling work before Fit is called.
type SoftmaxRegression struct {
	state *model.StateManager

	// Hyperparameters
	inputDim    int
	outputDim   int
	method      Method
	maxIter     int
	verbose     bool
	randomState int64

	// Injected collaborators
	src    rand.Source
	rng    *rand.Rand
	logger zerolog.Logger

	// Parameters, shape (inputDim x outputDim). Owned exclusively by the
	// estimator; replaced only on successful Fit or SetCoef.
	params *mat.Dense

	// Fitting diagnostics
	nIter   int
	history []float64
}

// Option is a functional option for SoftmaxRegression.
type Option func(*SoftmaxRegression)

// WithMethod sets the optimization method used by Fit.
func WithMethod(method Method) Option {
	return func(m *SoftmaxRegression) {
		m.method = method
	}
}

// WithMaxIter sets the Newton-Raphson iteration budget.
func WithMaxIter(maxIter int) Option {
	return func(m *SoftmaxRegression) {
		m.maxIter = maxIter
	}
}

// WithVerbose enables per-iteration progress logging during fitting.
// Progress output is purely observational and has no effect on results.
func WithVerbose(verbose bool) Option {
	return func(m *SoftmaxRegression) {
		m.verbose = verbose
	}
}

// WithSeed sets the random seed for parameter initialization and sampling,
// making both deterministic. A negative seed (the default) draws a seed from
// crypto/rand.
func WithSeed(seed int64) Option {
	return func(m *SoftmaxRegression) {
		m.randomState = seed
	}
}

// WithLogger sets the logger that receives progress events.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *SoftmaxRegression) {
		m.logger = logger
	}
}

// NewSoftmaxRegression creates a softmax regression readout for inputDim
// features and outputDim classes.
//
// Parameters are initialized uniformly in [-3/sqrt(inputDim),
// 3/sqrt(inputDim)] from the model's random source.
//
// Example:
//
//	m, err := logistic.NewSoftmaxRegression(2, 2,
//	    logistic.WithSeed(42),
//	    logistic.WithVerbose(true),
//	)
func NewSoftmaxRegression(inputDim, outputDim int, opts ...Option) (*SoftmaxRegression, error) {
	if inputDim <= 0 {
		return nil, scigoErrors.NewValueError("NewSoftmaxRegression", "inputDim must be positive")
	}
	if outputDim <= 0 {
		return nil, scigoErrors.NewValueError("NewSoftmaxRegression", "outputDim must be positive")
	}

	m := &SoftmaxRegression{
		state:       model.NewStateManager(),
		inputDim:    inputDim,
		outputDim:   outputDim,
		method:      MethodNewtonRaphson,
		maxIter:     defaultMaxIter,
		verbose:     false,
		randomState: -1,
		logger:      scigoLog.GetLoggerWithName("SoftmaxRegression"),
	}

	for _, opt := range opts {
		opt(m)
	}

	seed := m.randomState
	if seed < 0 {
		seedBig, _ := crand.Int(crand.Reader, big.NewInt(math.MaxInt64))
		seed = seedBig.Int64()
	}
	m.src = rand.NewPCG(uint64(seed), uint64(seed))
	m.rng = rand.New(m.src)

	// Uniform in [-scale, scale] with scale = 3/sqrt(inputDim).
	scale := 3.0 / math.Sqrt(float64(inputDim))
	data := make([]float64, inputDim*outputDim)
	for i := range data {
		data[i] = scale * (2.0*m.rng.Float64() - 1.0)
	}
	m.params = mat.NewDense(inputDim, outputDim, data)

	return m, nil
}

// Coef returns a copy of the parameter matrix, shape (inputDim x outputDim).
func (m *SoftmaxRegression) Coef() *mat.Dense {
	return mat.DenseCopyOf(m.params)
}

// SetCoef replaces the parameter matrix. The shape must match the one fixed
// at construction. This is the composition hook for mixture-of-experts
// training, where an outer loop owns the optimization.
func (m *SoftmaxRegression) SetCoef(coef mat.Matrix) error {
	r, c := coef.Dims()
	if r != m.inputDim {
		return scigoErrors.NewDimensionError("SoftmaxRegression.SetCoef", m.inputDim, r, 0)
	}
	if c != m.outputDim {
		return scigoErrors.NewDimensionError("SoftmaxRegression.SetCoef", m.outputDim, c, 1)
	}
	m.params = mat.DenseCopyOf(coef)
	return nil
}

// IsFitted returns whether Fit has completed on this estimator.
func (m *SoftmaxRegression) IsFitted() bool {
	return m.state.IsFitted()
}

// NIter returns the number of optimization iterations performed by the last
// Fit call.
func (m *SoftmaxRegression) NIter() int {
	return m.nIter
}

// History returns the log-likelihood recorded at each accepted iterate of
// the last Fit call, starting with the value at the initial parameters.
func (m *SoftmaxRegression) History() []float64 {
	return append([]float64(nil), m.history...)
}

// scores computes the linear map X * params after validating the feature
// dimension.
func (m *SoftmaxRegression) scores(x mat.Matrix) (*mat.Dense, error) {
	_, d := x.Dims()
	if d != m.inputDim {
		return nil, scigoErrors.NewDimensionError("SoftmaxRegression", m.inputDim, d, 1)
	}
	var s mat.Dense
	s.Mul(x, m.params)
	return &s, nil
}

// PredictProba returns the conditional class probabilities P(y|x) for each
// row of x, shape (n_samples x outputDim). Rows sum to 1.
func (m *SoftmaxRegression) PredictProba(x mat.Matrix) (_ mat.Matrix, err error) {
	defer scigoErrors.Recover(&err, "SoftmaxRegression.PredictProba")
	s, err := m.scores(x)
	if err != nil {
		return nil, err
	}
	return Softmax(s), nil
}

// Predict returns the most probable class index for each row of x as an
// (n_samples x 1) matrix.
func (m *SoftmaxRegression) Predict(x mat.Matrix) (_ mat.Matrix, err error) {
	defer scigoErrors.Recover(&err, "SoftmaxRegression.Predict")
	post, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}

	n, k := post.Dims()
	pred := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		best := 0
		bestP := post.At(i, 0)
		for c := 1; c < k; c++ {
			if p := post.At(i, c); p > bestP {
				bestP = p
				best = c
			}
		}
		pred.Set(i, 0, float64(best))
	}
	return pred, nil
}

// LogLikelihood computes the log-likelihood of the data {x, y} under the
// current parameters:
//
//	sum_i log( prod_c P(y=c|x_i)^Y[i,c] + 1e-7 )
//
// The additive epsilon keeps the logarithm finite when a predicted
// probability underflows to zero for an observed class.
func (m *SoftmaxRegression) LogLikelihood(x, y mat.Matrix) (_ float64, err error) {
	defer scigoErrors.Recover(&err, "SoftmaxRegression.LogLikelihood")
	n, _ := x.Dims()
	yn, yk := y.Dims()
	if yn != n {
		return 0, scigoErrors.NewDimensionError("SoftmaxRegression.LogLikelihood", n, yn, 0)
	}
	if yk != m.outputDim {
		return 0, scigoErrors.NewDimensionError("SoftmaxRegression.LogLikelihood", m.outputDim, yk, 1)
	}
	s, err := m.scores(x)
	if err != nil {
		return 0, err
	}
	return weightedLogLikelihood(Softmax(s), y, ones(n)), nil
}

// Sample draws one categorical sample per row of x from P(y|x) and returns
// the draws as one-hot rows, shape (n_samples x outputDim). The draws come
// from the model's injected random source, so a seeded model samples
// deterministically.
func (m *SoftmaxRegression) Sample(x mat.Matrix) (_ mat.Matrix, err error) {
	defer scigoErrors.Recover(&err, "SoftmaxRegression.Sample")
	post, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}

	n, k := post.Dims()
	out := mat.NewDense(n, k, nil)
	w := make([]float64, k)
	for i := 0; i < n; i++ {
		for c := 0; c < k; c++ {
			w[c] = post.At(i, c)
		}
		dist := distuv.NewCategorical(w, m.src)
		out.Set(i, int(dist.Rand()), 1.0)
	}
	return out, nil
}

// Fit learns the parameter matrix from features x and targets y.
//
// Targets are (n_samples x outputDim); rows may be one-hot or continuous.
// The configured Method selects the optimizer: MethodNewtonRaphson runs the
// second-order loop, anything else delegates to the external quasi-Newton
// solver with negated objective, gradient and Hessian callbacks.
//
// Returns the fitted parameter matrix. The estimator's stored parameters
// are replaced only on successful completion, so a failed call leaves the
// previous parameters intact.
func (m *SoftmaxRegression) Fit(x, y mat.Matrix) (_ *mat.Dense, err error) {
	defer scigoErrors.Recover(&err, "SoftmaxRegression.Fit")

	n, d := x.Dims()
	if n == 0 {
		return nil, scigoErrors.NewModelError("SoftmaxRegression.Fit", "empty data", scigoErrors.ErrEmptyData)
	}
	if d != m.inputDim {
		return nil, scigoErrors.NewDimensionError("SoftmaxRegression.Fit", m.inputDim, d, 1)
	}
	yn, yk := y.Dims()
	if yn != n {
		return nil, scigoErrors.NewDimensionError("SoftmaxRegression.Fit", n, yn, 0)
	}
	if yk != m.outputDim {
		return nil, scigoErrors.NewDimensionError("SoftmaxRegression.Fit", m.outputDim, yk, 1)
	}

	// Unit weights at this layer; mixture responsibilities would replace
	// them in a composed model.
	weights := ones(n)

	objective := func(theta []float64) float64 {
		p := mat.NewDense(m.inputDim, m.outputDim, theta)
		var s mat.Dense
		s.Mul(x, p)
		return weightedLogLikelihood(Softmax(&s), y, weights)
	}

	var fitted *mat.Dense
	switch m.method {
	case MethodNewtonRaphson:
		fitted = m.fitNewton(x, y, weights, objective)
	default:
		fitted, err = m.fitFallback(x, y, weights, objective)
		if err != nil {
			return nil, err
		}
	}

	m.params = fitted
	m.state.SetDimensions(d, n)
	m.state.SetFitted()
	return mat.DenseCopyOf(fitted), nil
}

// FitLabels is Fit with integer class labels. Labels are expanded to
// one-hot rows (identity-matrix row lookup) before fitting, so
// FitLabels(x, []int{0, 1}) is identical to Fit with the corresponding
// one-hot target matrix.
func (m *SoftmaxRegression) FitLabels(x mat.Matrix, labels []int) (*mat.Dense, error) {
	y, err := preprocessing.OneHot(labels, m.outputDim)
	if err != nil {
		return nil, err
	}
	return m.Fit(x, y)
}

// fitNewton runs the Newton-Raphson loop. Each iteration recomputes the
// posterior, gradient and Hessian at the current parameters and applies one
// damped Newton step; the loop stops when the absolute log-likelihood
// improvement falls below convergenceThreshold or the iteration budget is
// exhausted. The latest accepted iterate is always returned; there is no
// revert-to-best. A failed Newton step raises a ConvergenceWarning and ends
// the loop with the last accepted parameters.
func (m *SoftmaxRegression) fitNewton(x, y mat.Matrix, weights []float64, objective func([]float64) float64) *mat.Dense {
	params := mat.DenseCopyOf(m.params)
	oldValue := objective(flatten(params))

	m.nIter = 0
	m.history = append(m.history[:0], oldValue)

	if m.verbose {
		m.logger.Info().Str("method", string(MethodNewtonRaphson)).Float64("log_likelihood", oldValue).Msg("fitting started")
	}

	for iter := 0; iter < m.maxIter; iter++ {
		if m.verbose {
			m.logger.Info().Int("iteration", iter).Float64("log_likelihood", oldValue).Msg("newton-raphson iteration")
		}

		var s mat.Dense
		s.Mul(x, params)
		post := Softmax(&s)

		grad, err := Gradient(x, y, post, weights)
		var hess *mat.SymDense
		if err == nil {
			hess, err = Hessian(x, y, post, weights)
		}
		var next *mat.Dense
		if err == nil {
			next, err = NewtonStep(grad, hess, params, objective)
		}
		if err != nil {
			// Recovery policy: keep the last accepted iterate rather than
			// propagating the failure.
			scigoErrors.Warn(scigoErrors.NewConvergenceWarning(string(MethodNewtonRaphson), iter, err.Error()))
			if m.verbose {
				m.logger.Warn().Err(err).Int("iteration", iter).Msg("newton step failed, keeping last accepted parameters")
			}
			break
		}

		params = next
		m.nIter = iter + 1

		newValue := objective(flatten(params))
		m.history = append(m.history, newValue)
		if newValue < oldValue+convergenceThreshold {
			break
		}
		oldValue = newValue
	}

	if m.verbose {
		m.logger.Info().Int("iterations", m.nIter).Msg("The End.")
	}
	return params
}

// fitFallback delegates to gonum's optimizer, minimizing the negated
// log-likelihood with analytic gradient and Hessian callbacks. L-BFGS only
// consumes the gradient; the Hessian callback is supplied for Hessian-aware
// methods sharing the same problem definition.
func (m *SoftmaxRegression) fitFallback(x, y mat.Matrix, weights []float64, objective func([]float64) float64) (*mat.Dense, error) {
	d, k := m.inputDim, m.outputDim
	dim := d * k

	posterior := func(theta []float64) *mat.Dense {
		p := mat.NewDense(d, k, theta)
		var s mat.Dense
		s.Mul(x, p)
		return Softmax(&s)
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			return -objective(theta)
		},
		Grad: func(grad, theta []float64) {
			g, err := Gradient(x, y, posterior(theta), weights)
			if err != nil {
				for i := range grad {
					grad[i] = math.NaN()
				}
				return
			}
			gf := flatten(g)
			for i := range grad {
				grad[i] = -gf[i]
			}
		},
		Hess: func(hess *mat.SymDense, theta []float64) {
			h, err := Hessian(x, y, posterior(theta), weights)
			if err != nil {
				return
			}
			for i := 0; i < dim; i++ {
				for j := i; j < dim; j++ {
					hess.SetSym(i, j, -h.At(i, j))
				}
			}
		},
	}

	settings := optimize.Settings{
		GradientThreshold: fallbackGradientTolerance,
		MajorIterations:   fallbackMaxIter,
	}

	if m.verbose {
		m.logger.Info().Str("method", string(m.method)).Msg("fitting started with fallback solver")
	}

	result, err := optimize.Minimize(problem, flatten(m.params), &settings, &optimize.LBFGS{})
	if err != nil {
		return nil, scigoErrors.Wrap(err, "fallback optimization failed")
	}

	m.nIter = result.Stats.MajorIterations
	m.history = append(m.history[:0], objective(flatten(m.params)), -result.F)

	if m.verbose {
		m.logger.Info().Int("iterations", m.nIter).Float64("log_likelihood", -result.F).Msg("The End.")
	}
	return mat.NewDense(d, k, result.X), nil
}

// weightedLogLikelihood evaluates the weighted objective
// sum_i w_i * log(prod_c post[i,c]^y[i,c] + likelihoodEpsilon).
// For unit weights it reduces to the readout objective exactly.
func weightedLogLikelihood(post, y mat.Matrix, weights []float64) float64 {
	n, k := post.Dims()
	ll := 0.0
	for i := 0; i < n; i++ {
		lik := 1.0
		for c := 0; c < k; c++ {
			lik *= math.Pow(post.At(i, c), y.At(i, c))
		}
		ll += weights[i] * math.Log(lik+likelihoodEpsilon)
	}
	return ll
}

// ones returns an all-ones weight vector of length n.
func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0
	}
	return w
}
