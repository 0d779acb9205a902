// Package gp implements Gaussian-process regression, sequential Bayesian
// optimisation over a bounded box and GP-regularised linear inversion.
//
// A Regressor is built once per training set. Hyperparameters are either
// supplied or chosen by minimising the negative log marginal likelihood
// with differential evolution, after which the training covariance is
// factorised once and reused by every prediction.
package gp

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/neutronics-workshop/gptools/core/model"
	"github.com/neutronics-workshop/gptools/core/parallel"
	"github.com/neutronics-workshop/gptools/kernel"
	"github.com/neutronics-workshop/gptools/optimize"
	"github.com/neutronics-workshop/gptools/pkg/errors"
	"github.com/neutronics-workshop/gptools/pkg/log"
)

// varianceWarnTolerance is the relative size, against a², below which a
// negative posterior variance is treated as round-off and clipped silently.
const varianceWarnTolerance = 1e-10

// Regressor is a Gaussian-process regression model over N-dimensional
// coordinates. It is safe for concurrent prediction once constructed.
type Regressor struct {
	state *model.StateManager

	x     [][]float64
	y     []float64
	yVec  *mat.VecDense
	yErr  []float64
	noise []float64
	dims  int

	kern         kernel.Kernel
	scaleLengths []float64
	cache        *kernel.DistanceCache

	amplitude float64
	shape     []float64
	lengths   []float64
	nlml      float64

	chol mat.Cholesky
	h    *mat.VecDense

	logger log.Logger
}

var _ model.Regressor = (*Regressor)(nil)

// NewRegressor builds a regressor from coordinates x (one slice per point,
// all of equal length) and values y.
func NewRegressor(x [][]float64, y []float64, opts ...Option) (*Regressor, error) {
	cfg := newConfig(opts)
	return newRegressor(x, y, cfg, cfg.seed)
}

// NewRegressor1D builds a regressor from scalar coordinates.
func NewRegressor1D(x, y []float64, opts ...Option) (*Regressor, error) {
	return NewRegressor(Column(x), y, opts...)
}

// Column turns scalar coordinates into length-1 coordinate vectors.
func Column(x []float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, v := range x {
		out[i] = []float64{v}
	}
	return out
}

func newRegressor(x [][]float64, y []float64, cfg *config, seed *uint64) (*Regressor, error) {
	const op = "NewRegressor"

	if len(x) != len(y) {
		return nil, errors.NewValueError(op, fmt.Sprintf("x and y must have the same length (got %d and %d)", len(x), len(y)))
	}
	if len(y) == 0 {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	dims := len(x[0])
	if dims == 0 {
		return nil, errors.NewValueError(op, "coordinates must have at least one dimension")
	}
	for _, p := range x {
		if len(p) != dims {
			return nil, errors.NewDimensionError(op, dims, len(p), 1)
		}
		if err := errors.CheckNumericalStability(op, p, 0); err != nil {
			return nil, err
		}
	}
	if err := errors.CheckNumericalStability(op, y, 0); err != nil {
		return nil, err
	}

	r := &Regressor{
		state: model.NewStateManager(),
		x:     cloneCoordinates(x),
		y:     append([]float64(nil), y...),
		dims:  dims,
		kern:  cfg.kern,
	}
	r.yVec = mat.NewVecDense(len(r.y), append([]float64(nil), r.y...))
	r.logger = cfg.logger.With(
		log.ModelNameKey, "Regressor",
		log.ComponentKey, "gp",
		log.KernelKey, r.kern.Name(),
	)

	if err := r.setNoise(op, cfg); err != nil {
		return nil, err
	}
	if cfg.scaleLengths != nil {
		if len(cfg.scaleLengths) != dims {
			return nil, errors.NewValueError(op, "exactly one scale length per dimension is required")
		}
		for _, l := range cfg.scaleLengths {
			if !(l > 0) {
				return nil, errors.NewValueError(op, "scale lengths must be strictly positive")
			}
		}
		r.scaleLengths = append([]float64(nil), cfg.scaleLengths...)
	}

	// ハイパーパラメータに依存しない距離行列を先に計算しておく
	r.cache = kernel.NewDistanceCache(r.x)

	if cfg.hyper != nil {
		if err := r.setHyperparameters(op, *cfg.hyper); err != nil {
			return nil, err
		}
	} else if err := r.searchHyperparameters(cfg, seed); err != nil {
		return nil, err
	}

	if err := r.factorize(op); err != nil {
		return nil, err
	}
	r.state.SetFitted(dims, len(r.y))

	r.logger.Debug("regressor fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, len(r.y),
		log.FeaturesKey, dims,
		log.AmplitudeKey, r.amplitude,
		log.LengthsKey, r.lengths,
		log.NegLogLikelihoodKey, r.nlml,
	)
	return r, nil
}

func (r *Regressor) setNoise(op string, cfg *config) error {
	n := len(r.y)
	r.noise = make([]float64, n)
	if cfg.hasErrors {
		if len(cfg.yErr) != n {
			return errors.NewValueError(op, "y_err must be the same length as y")
		}
		for i, e := range cfg.yErr {
			if math.IsNaN(e) || math.IsInf(e, 0) || e < 0 {
				return errors.NewValueError(op, "y_err values must be finite and non-negative")
			}
			r.noise[i] = e * e
		}
		r.yErr = append([]float64(nil), cfg.yErr...)
		return nil
	}

	// 誤差が与えられない場合は値域の 1e-5 倍を標準偏差とする
	span := floats.Max(r.y) - floats.Min(r.y)
	if span == 0 {
		span = 1
	}
	floor := span * RelativeNoiseFloor
	for i := range r.noise {
		r.noise[i] = floor * floor
	}
	return nil
}

func (r *Regressor) setHyperparameters(op string, h Hyperparameters) error {
	if !(h.Amplitude > 0) || math.IsInf(h.Amplitude, 0) {
		return errors.NewValueError(op, "amplitude must be strictly positive")
	}
	lengths, err := h.Length.Resolve(r.dims)
	if err != nil {
		return err
	}
	if len(h.Shape) != r.kern.NumShape() {
		return errors.NewValueError(op, fmt.Sprintf("kernel %s takes %d shape hyperparameters, got %d",
			r.kern.Name(), r.kern.NumShape(), len(h.Shape)))
	}
	for _, s := range h.Shape {
		if !(s > 0) {
			return errors.NewValueError(op, "shape hyperparameters must be strictly positive")
		}
	}
	if r.scaleLengths != nil {
		for i := range lengths {
			lengths[i] *= r.scaleLengths[i]
		}
	}
	r.amplitude = h.Amplitude
	r.shape = append([]float64(nil), h.Shape...)
	r.lengths = lengths
	return nil
}

// searchHyperparameters minimises the negative log marginal likelihood over
// θ = [log a, log shape..., log lengths...] with differential evolution.
func (r *Regressor) searchHyperparameters(cfg *config, seed *uint64) error {
	bounds := r.searchBounds()
	r.logger.Debug("searching hyperparameters",
		log.OperationKey, log.OperationSearch,
		log.SamplesKey, len(r.y),
		log.FeaturesKey, r.dims,
	)
	res, err := cfg.searcher(seed).Minimize(context.Background(), r.negLogLikelihood, bounds)
	if err != nil {
		return errors.Wrap(err, "hyperparameter search")
	}
	r.amplitude, r.shape, r.lengths = r.unpack(res.X)
	return nil
}

// searchBounds derives the log-space box for θ from the spread of the values
// and the spread of the pairwise distances.
func (r *Regressor) searchBounds() []optimize.Bound {
	_, sd := stat.PopMeanStdDev(r.y, nil)
	if !(sd > 0) {
		sd = 1
	}
	aLog := math.Log(sd)
	bounds := []optimize.Bound{{Lower: aLog - amplitudeSearchWidth, Upper: aLog + amplitudeSearchWidth}}

	for _, b := range r.kern.ShapeBounds() {
		bounds = append(bounds, optimize.Bound{Lower: b[0], Upper: b[1]})
	}

	if r.scaleLengths != nil {
		lo, hi, ok := r.cache.ScaledRange(r.scaleLengths)
		return append(bounds, lengthBound(lo, hi, ok))
	}
	for k := 0; k < r.dims; k++ {
		lo, hi, ok := r.cache.AxisRange(k)
		bounds = append(bounds, lengthBound(lo, hi, ok))
	}
	return bounds
}

func lengthBound(lo, hi float64, ok bool) optimize.Bound {
	if !ok {
		return optimize.Bound{Lower: -lengthSearchPad, Upper: lengthSearchPad}
	}
	return optimize.Bound{Lower: math.Log(lo) - lengthSearchPad, Upper: math.Log(hi) + lengthSearchPad}
}

func (r *Regressor) unpack(theta []float64) (a float64, shape, lengths []float64) {
	a = math.Exp(theta[0])
	ns := r.kern.NumShape()
	shape = make([]float64, ns)
	for i := range shape {
		shape[i] = math.Exp(theta[1+i])
	}
	rest := theta[1+ns:]
	lengths = make([]float64, r.dims)
	if r.scaleLengths != nil {
		s := math.Exp(rest[0])
		for i := range lengths {
			lengths[i] = s * r.scaleLengths[i]
		}
		return a, shape, lengths
	}
	for i := range lengths {
		lengths[i] = math.Exp(rest[i])
	}
	return a, shape, lengths
}

// covariance returns K = k(x, x) + diag(noise).
func (r *Regressor) covariance(a float64, shape, lengths []float64) *mat.SymDense {
	n := len(r.y)
	r2 := r.cache.ScaledSquared(lengths)
	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := r.kern.Eval(a, shape, r2.At(i, j))
			if i == j {
				v += r.noise[i]
			}
			K.SetSym(i, j, v)
		}
	}
	return K
}

// negLogLikelihood returns yᵀK⁻¹y + log|K| for log-hyperparameters theta,
// or SingularPenalty when K cannot be factorised.
func (r *Regressor) negLogLikelihood(theta []float64) float64 {
	a, shape, lengths := r.unpack(theta)
	var chol mat.Cholesky
	if ok := chol.Factorize(r.covariance(a, shape, lengths)); !ok {
		return SingularPenalty
	}
	var alpha mat.VecDense
	if err := solveVec(&chol, &alpha, r.yVec); err != nil {
		return SingularPenalty
	}
	v := mat.Dot(r.yVec, &alpha) + chol.LogDet()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return SingularPenalty
	}
	return v
}

func (r *Regressor) factorize(op string) error {
	n := len(r.y)
	K := r.covariance(r.amplitude, r.shape, r.lengths)
	if err := errors.CheckMatrix(op, K, n, n, 0); err != nil {
		r.logger.Error("covariance matrix is not finite", err,
			log.AmplitudeKey, r.amplitude,
			log.LengthsKey, r.lengths,
		)
		return err
	}
	if ok := r.chol.Factorize(K); !ok {
		r.logger.Error("covariance matrix is not positive definite",
			log.ErrorCodeKey, log.ErrorSingularMatrix,
			log.AmplitudeKey, r.amplitude,
			log.LengthsKey, r.lengths,
		)
		return errors.NewModelError(op, "singular covariance matrix", errors.ErrSingularMatrix)
	}
	r.h = mat.NewVecDense(n, nil)
	if err := solveVec(&r.chol, r.h, r.yVec); err != nil {
		return errors.NewModelError(op, "singular covariance matrix", errors.ErrSingularMatrix)
	}
	r.nlml = mat.Dot(r.yVec, r.h) + r.chol.LogDet()
	return nil
}

// solveVec solves the factorised system, accepting ill-conditioned results.
func solveVec(chol *mat.Cholesky, dst *mat.VecDense, b mat.Vector) error {
	err := chol.SolveVecTo(dst, b)
	var cond mat.Condition
	if err != nil && errors.As(err, &cond) {
		return nil
	}
	return err
}

func solveMat(chol *mat.Cholesky, dst *mat.Dense, b mat.Matrix) error {
	err := chol.SolveTo(dst, b)
	var cond mat.Condition
	if err != nil && errors.As(err, &cond) {
		return nil
	}
	return err
}

// Predict returns the posterior mean and standard deviation at each query.
func (r *Regressor) Predict(q [][]float64) (mu, sigma []float64, err error) {
	if err := r.checkQueries("Regressor.Predict", q); err != nil {
		return nil, nil, err
	}
	mu = make([]float64, len(q))
	sigma = make([]float64, len(q))
	for i, v := range q {
		if mu[i], sigma[i], err = r.evaluate("Regressor.Predict", i, v); err != nil {
			return nil, nil, err
		}
	}
	return mu, sigma, nil
}

// PredictParallel is Predict spread over worker goroutines. threads == -1
// uses every CPU; any other value must be positive.
func (r *Regressor) PredictParallel(q [][]float64, threads int) (mu, sigma []float64, err error) {
	const op = "Regressor.PredictParallel"
	workers, ok := parallel.ResolveWorkers(threads)
	if !ok {
		return nil, nil, errors.NewValueError(op, "threads must be either -1 or an integer greater than zero")
	}
	if err := r.checkQueries(op, q); err != nil {
		return nil, nil, err
	}
	r.logger.Debug("parallel prediction",
		log.OperationKey, log.OperationPredict,
		log.QueriesKey, len(q),
		log.ThreadsKey, workers,
	)

	mu = make([]float64, len(q))
	sigma = make([]float64, len(q))
	errs := make([]error, len(q))
	parallel.ParallelizeWorkers(len(q), workers, func(start, end int) {
		for i := start; i < end; i++ {
			mu[i], sigma[i], errs[i] = r.evaluate(op, i, q[i])
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}
	return mu, sigma, nil
}

// Evaluate returns the posterior mean and standard deviation at one point.
func (r *Regressor) Evaluate(v []float64) (mu, sigma float64, err error) {
	if err := r.state.RequireFeatures("Regressor.Evaluate", len(v)); err != nil {
		return 0, 0, err
	}
	return r.evaluate("Regressor.Evaluate", 0, v)
}

func (r *Regressor) checkQueries(op string, q [][]float64) error {
	if err := r.state.RequireFitted("Regressor", op); err != nil {
		return err
	}
	for _, v := range q {
		if err := r.state.RequireFeatures(op, len(v)); err != nil {
			return err
		}
	}
	return nil
}

// evaluate computes mean K_qx·H and variance k(q,q) − K_qx·K⁻¹·K_qxᵀ. idx
// only labels the clipping warning.
func (r *Regressor) evaluate(op string, idx int, v []float64) (float64, float64, error) {
	kq := mat.NewVecDense(len(r.x), nil)
	for j, xj := range r.x {
		kq.SetVec(j, kernel.Covariance(r.kern, r.amplitude, r.shape, r.lengths, v, xj))
	}
	mu := mat.Dot(kq, r.h)

	prior := r.kern.Eval(r.amplitude, r.shape, 0)
	var w mat.VecDense
	if err := solveVec(&r.chol, &w, kq); err != nil {
		return 0, 0, errors.NewModelError(op, "posterior variance solve failed", err)
	}
	variance := prior - mat.Dot(kq, &w)

	if clipped, neg := errors.ClipVariance(variance); neg {
		if variance < -varianceWarnTolerance*prior {
			errors.Warn(errors.NewNegativeVarianceWarning(variance, idx))
		}
		variance = clipped
	}
	return mu, math.Sqrt(variance), nil
}

// BuildPosterior returns the joint posterior mean vector and covariance
// matrix over at least two query points.
func (r *Regressor) BuildPosterior(q [][]float64) (*mat.VecDense, *mat.SymDense, error) {
	const op = "Regressor.BuildPosterior"
	if len(q) < 2 {
		return nil, nil, errors.NewValueError(op, "the number of specified points must be greater than 1")
	}
	if err := r.checkQueries(op, q); err != nil {
		return nil, nil, err
	}

	Kqx := kernel.Matrix(r.kern, r.amplitude, r.shape, r.lengths, q, r.x)
	Kqq := kernel.SymMatrix(r.kern, r.amplitude, r.shape, r.lengths, q)

	mu := mat.NewVecDense(len(q), nil)
	mu.MulVec(Kqx, r.h)

	var W mat.Dense
	if err := solveMat(&r.chol, &W, Kqx.T()); err != nil {
		return nil, nil, errors.NewModelError(op, "singular covariance matrix", errors.ErrSingularMatrix)
	}
	var P mat.Dense
	P.Mul(Kqx, &W)

	m := len(q)
	cov := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			cov.SetSym(i, j, Kqq.At(i, j)-0.5*(P.At(i, j)+P.At(j, i)))
		}
	}
	r.logger.Debug("posterior built",
		log.OperationKey, log.OperationPosterior,
		log.QueriesKey, m,
	)
	return mu, cov, nil
}

// Hyperparameters returns the fitted hyperparameters with per-dimension lengths.
func (r *Regressor) Hyperparameters() Hyperparameters {
	return Hyperparameters{
		Amplitude: r.amplitude,
		Length:    kernel.PerDimensionLengths(r.lengths...),
		Shape:     append([]float64(nil), r.shape...),
	}
}

// NegativeLogMarginalLikelihood returns yᵀK⁻¹y + log|K| at the fitted
// hyperparameters.
func (r *Regressor) NegativeLogMarginalLikelihood() float64 { return r.nlml }

// Kernel returns the covariance kernel.
func (r *Regressor) Kernel() kernel.Kernel { return r.kern }

// Dims returns the coordinate dimensionality and the number of training points.
func (r *Regressor) Dims() (nFeatures, nSamples int) { return r.state.GetDimensions() }

func cloneCoordinates(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, p := range x {
		out[i] = append([]float64(nil), p...)
	}
	return out
}
