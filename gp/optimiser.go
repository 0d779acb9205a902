package gp

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/neutronics-workshop/gptools/core/model"
	"github.com/neutronics-workshop/gptools/optimize"
	"github.com/neutronics-workshop/gptools/pkg/errors"
	"github.com/neutronics-workshop/gptools/pkg/log"
)

// Optimiser performs sequential Bayesian optimisation of an expensive
// function over a box. Each AddEvaluation rebuilds the underlying Regressor
// from scratch. An Optimiser is not safe for concurrent use.
type Optimiser struct {
	cfg    *config
	bounds []optimize.Bound
	dims   int

	x    [][]float64
	y    []float64
	yErr []float64

	gp    *Regressor
	muMax float64

	seeds  *rand.Rand
	logger log.Logger
}

var _ model.Regressor = (*Optimiser)(nil)

// NewOptimiser fits a regressor to the initial observations and prepares to
// propose new points inside bounds, one closed interval per dimension. At
// least two initial observations are recommended.
func NewOptimiser(x [][]float64, y []float64, bounds []optimize.Bound, opts ...Option) (*Optimiser, error) {
	const op = "NewOptimiser"
	cfg := newConfig(opts)

	if err := optimize.ValidateBounds(op, bounds); err != nil {
		return nil, err
	}
	if len(x) > 0 && len(x[0]) != len(bounds) {
		return nil, errors.NewDimensionError(op, len(bounds), len(x[0]), 1)
	}

	o := &Optimiser{
		cfg:    cfg,
		bounds: append([]optimize.Bound(nil), bounds...),
		dims:   len(bounds),
		x:      cloneCoordinates(x),
		y:      append([]float64(nil), y...),
		logger: cfg.logger.With(log.ModelNameKey, "Optimiser", log.ComponentKey, "gp"),
	}
	if cfg.hasErrors {
		o.yErr = append([]float64(nil), cfg.yErr...)
	}
	if cfg.seed != nil {
		o.seeds = rand.New(rand.NewPCG(*cfg.seed, *cfg.seed))
	}

	gp, err := o.retrain(o.x, o.y, o.yErr)
	if err != nil {
		return nil, err
	}
	o.gp = gp
	o.muMax = floats.Max(o.y)
	return o, nil
}

// NewOptimiser1D is NewOptimiser for scalar coordinates.
func NewOptimiser1D(x, y []float64, bound optimize.Bound, opts ...Option) (*Optimiser, error) {
	return NewOptimiser(Column(x), y, []optimize.Bound{bound}, opts...)
}

func (o *Optimiser) nextSeed() *uint64 {
	if o.seeds == nil {
		return nil
	}
	s := o.seeds.Uint64()
	return &s
}

func (o *Optimiser) retrain(x [][]float64, y, yErr []float64) (*Regressor, error) {
	cfg := *o.cfg
	cfg.hasErrors = yErr != nil
	cfg.yErr = yErr
	return newRegressor(x, y, &cfg, o.nextSeed())
}

// AddEvaluation appends one observation and retrains. yErr is required when
// errors were supplied at construction and ignored otherwise. On error the
// optimiser is left unchanged.
func (o *Optimiser) AddEvaluation(x []float64, y float64, yErr ...float64) error {
	const op = "Optimiser.AddEvaluation"
	if len(x) != o.dims {
		return errors.NewDimensionError(op, o.dims, len(x), 1)
	}
	if len(yErr) > 1 {
		return errors.NewValueError(op, "at most one y_err value may be given per evaluation")
	}

	var newErr []float64
	switch {
	case o.yErr != nil && len(yErr) == 0:
		return errors.NewValueError(op, "y_err must be specified for new evaluations if errors were given at construction")
	case o.yErr != nil:
		newErr = append(append([]float64(nil), o.yErr...), yErr[0])
	case len(yErr) == 1:
		o.logger.Debug("y_err ignored, optimiser was constructed without errors",
			log.CoordinatesKey, x,
		)
	}

	newX := append(cloneCoordinates(o.x), append([]float64(nil), x...))
	newY := append(append([]float64(nil), o.y...), y)
	gp, err := o.retrain(newX, newY, newErr)
	if err != nil {
		return err
	}

	o.x, o.y, o.yErr, o.gp = newX, newY, newErr, gp
	o.muMax = floats.Max(o.y)
	o.logger.Debug("evaluation added",
		log.SamplesKey, len(o.y),
		log.ValueKey, y,
		log.BestValueKey, o.muMax,
	)
	return nil
}

// SearchForMaximum proposes the point maximising expected improvement over
// the best value observed so far.
func (o *Optimiser) SearchForMaximum(ctx context.Context) ([]float64, error) {
	return o.Propose(ctx, ExpectedImprovement)
}

// LearnFunction proposes the point of largest posterior variance.
func (o *Optimiser) LearnFunction(ctx context.Context) ([]float64, error) {
	return o.Propose(ctx, MaxVariance)
}

// Propose maximises the given acquisition over the bounds with differential
// evolution. The result always lies inside the bounds.
func (o *Optimiser) Propose(ctx context.Context, acq Acquisition) ([]float64, error) {
	op := fmt.Sprintf("Optimiser.Propose(%s)", acq)
	var score func(mu, sigma, muMax float64) float64
	switch acq {
	case ExpectedImprovement:
		score = negExpectedImprovement
	case MaxVariance:
		score = negVariance
	default:
		return nil, errors.NewValueError(op, "unknown acquisition")
	}

	gp, muMax := o.gp, o.muMax
	f := func(x []float64) float64 {
		mu, sigma, err := gp.evaluate(op, 0, x)
		if err != nil {
			return SingularPenalty
		}
		return score(mu, sigma, muMax)
	}
	res, err := o.cfg.searcher(o.nextSeed()).Minimize(ctx, f, o.bounds)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	proposal := optimize.ClampAll(nil, res.X, o.bounds)
	o.logger.Debug("proposal",
		log.OperationKey, log.OperationSearch,
		log.CoordinatesKey, proposal,
		log.EvaluationsKey, res.Evaluations,
	)
	return proposal, nil
}

// AcquisitionValue returns the acquisition score at x (higher is better).
func (o *Optimiser) AcquisitionValue(x []float64, acq Acquisition) (float64, error) {
	mu, sigma, err := o.gp.Evaluate(x)
	if err != nil {
		return 0, err
	}
	if acq == MaxVariance {
		return -negVariance(mu, sigma, o.muMax), nil
	}
	return -negExpectedImprovement(mu, sigma, o.muMax), nil
}

// Predict evaluates the current regressor at the query points.
func (o *Optimiser) Predict(q [][]float64) (mu, sigma []float64, err error) {
	return o.gp.Predict(q)
}

// BuildPosterior returns the joint posterior of the current regressor.
func (o *Optimiser) BuildPosterior(q [][]float64) (*mat.VecDense, *mat.SymDense, error) {
	return o.gp.BuildPosterior(q)
}

// Dims returns the coordinate dimensionality and the number of observations.
func (o *Optimiser) Dims() (nFeatures, nSamples int) { return o.dims, len(o.y) }

// MuMax returns the largest observed value.
func (o *Optimiser) MuMax() float64 { return o.muMax }

// Best returns the coordinate of the largest observed value and that value.
func (o *Optimiser) Best() ([]float64, float64) {
	i := floats.MaxIdx(o.y)
	return append([]float64(nil), o.x[i]...), o.y[i]
}

// Evaluations returns copies of the observations in insertion order. yErr is
// nil when the optimiser was constructed without errors.
func (o *Optimiser) Evaluations() (x [][]float64, y, yErr []float64) {
	x = cloneCoordinates(o.x)
	y = append([]float64(nil), o.y...)
	if o.yErr != nil {
		yErr = append([]float64(nil), o.yErr...)
	}
	return x, y, yErr
}

// Bounds returns a copy of the search box.
func (o *Optimiser) Bounds() []optimize.Bound {
	return append([]optimize.Bound(nil), o.bounds...)
}

// Regressor returns the regressor fitted to the current observations.
func (o *Optimiser) Regressor() *Regressor { return o.gp }
