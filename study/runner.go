package study

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/neutronics-workshop/gptools/gp"
	"github.com/neutronics-workshop/gptools/kernel"
	"github.com/neutronics-workshop/gptools/optimize"
	"github.com/neutronics-workshop/gptools/pkg/errors"
	"github.com/neutronics-workshop/gptools/pkg/log"
	"github.com/neutronics-workshop/gptools/preprocessing"
	"github.com/neutronics-workshop/gptools/sampling"
)

// Runner drives a parameter study: initial designs, the optimisation loop
// and surrogate fitting over everything in the store.
type Runner struct {
	cfg       Config
	objective Objective
	store     Store
	bounds    []optimize.Bound
	names     []string
	scaler    *preprocessing.BoundsScaler
	acq       gp.Acquisition
	kern      kernel.Kernel
	rng       *rand.Rand
	gpOpts    []gp.Option
	logger    log.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger used by the runner and the models it builds.
func WithRunnerLogger(l log.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithRegressorOptions appends options passed to every regressor and
// optimiser the runner builds.
func WithRegressorOptions(opts ...gp.Option) RunnerOption {
	return func(r *Runner) { r.gpOpts = append(r.gpOpts, opts...) }
}

// NewRunner prepares a study. A nil objective is built from cfg.Objective.
// The store must already be initialised.
func NewRunner(cfg Config, objective Objective, store Store, opts ...RunnerOption) (*Runner, error) {
	cfg.ApplyDefaults()
	if err := cfg.validateSearch(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.NewValueError("NewRunner", "a store is required")
	}
	if objective == nil {
		var err error
		if objective, err = NewObjective(cfg); err != nil {
			return nil, err
		}
	}

	bounds := cfg.Bounds()
	scaler, err := preprocessing.NewBoundsScaler(bounds)
	if err != nil {
		return nil, err
	}
	acq, err := gp.ParseAcquisition(cfg.Acquisition)
	if err != nil {
		return nil, err
	}
	kern, err := kernel.ByName(cfg.Kernel)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:       cfg,
		objective: objective,
		store:     store,
		bounds:    bounds,
		names:     cfg.Names(),
		scaler:    scaler,
		acq:       acq,
		kern:      kern,
		logger:    log.GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(
		log.ComponentKey, "study",
		log.StudyIDKey, cfg.Name,
		log.StoreKey, cfg.Store.Kind,
	)

	if cfg.Seed != nil {
		r.rng = rand.New(rand.NewPCG(*cfg.Seed, *cfg.Seed^0x9e3779b97f4a7c15))
	} else {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return r, nil
}

// Config returns the study configuration with defaults applied.
func (r *Runner) Config() Config { return r.cfg }

func (r *Runner) regressorOptions(yErr []float64) []gp.Option {
	opts := []gp.Option{gp.WithKernel(r.kern), gp.WithLogger(r.logger)}
	if r.cfg.Seed != nil {
		opts = append(opts, gp.WithRandomState(*r.cfg.Seed))
	}
	opts = append(opts, r.gpOpts...)
	if yErr != nil {
		opts = append(opts, gp.WithErrors(yErr))
	}
	return opts
}

func (r *Runner) evaluate(ctx context.Context, x []float64) (Outcome, error) {
	var out Outcome
	err := errors.SafeExecute("Runner.evaluate", func() error {
		var err error
		out, err = r.objective.Evaluate(ctx, x)
		return err
	})
	return out, err
}

// record evaluates x and persists the result.
func (r *Runner) record(ctx context.Context, sample string, iteration int, x []float64) (Record, error) {
	start := time.Now()
	out, err := r.evaluate(ctx, x)
	if err == nil {
		err = errors.CheckScalar("Runner.evaluate", out.Value, iteration)
	}
	if err != nil {
		r.logger.Error("objective failed", err,
			log.SampleKindKey, sample,
			log.IterationKey, iteration,
			log.CoordinatesKey, x,
		)
		return Record{}, errors.Wrapf(err, "evaluate %v", x)
	}
	rec := NewRecord(sample, iteration, r.names, x, out)
	if err := r.store.Save(ctx, rec); err != nil {
		return Record{}, errors.Wrapf(err, "save record %s", rec.ID)
	}
	r.logger.Debug("evaluation recorded",
		log.SampleKindKey, sample,
		log.IterationKey, iteration,
		log.CoordinatesKey, x,
		log.ValueKey, out.Value,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return rec, nil
}

// Sample evaluates a design of n points mapped onto the search box. An empty
// design or a non-positive n falls back to the configured initial design.
func (r *Runner) Sample(ctx context.Context, design string, n int) ([]Record, error) {
	if design == "" {
		design = r.cfg.Design
	}
	if n <= 0 {
		n = r.cfg.InitialPoints
	}
	unit, err := sampling.Generate(design, n, len(r.bounds), r.rng)
	if err != nil {
		return nil, err
	}
	points, err := r.scaler.Transform(unit)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(points))
	for _, p := range points {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec, err := r.record(ctx, design, 0, p)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	r.logger.Info("design evaluated",
		log.SampleKindKey, design,
		log.SamplesKey, len(out),
	)
	return out, nil
}

// Optimise resumes the study from the store and runs iterations steps of
// propose, evaluate, persist and retrain. When the store holds fewer than
// two records the corners of the box are evaluated first. Records produced
// before an error or cancellation are returned together with the error.
func (r *Runner) Optimise(ctx context.Context, iterations int) ([]Record, error) {
	if iterations <= 0 {
		iterations = r.cfg.Iterations
	}
	records, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		seeded, err := r.Sample(ctx, sampling.KindCorners, 0)
		if err != nil {
			return seeded, err
		}
		records = append(records, seeded...)
	}

	x, y, yErr := Training(records)
	opt, err := gp.NewOptimiser(x, y, r.bounds, r.regressorOptions(yErr)...)
	if err != nil {
		return nil, err
	}

	var out []Record
	start := LastIteration(records)
	for i := 1; i <= iterations; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		next, err := opt.Propose(ctx, r.acq)
		if err != nil {
			return out, err
		}
		rec, err := r.record(ctx, r.acq.String(), start+i, next)
		if err != nil {
			return out, err
		}
		out = append(out, rec)

		var recErr []float64
		if rec.Error != nil {
			recErr = []float64{*rec.Error}
		}
		if err := opt.AddEvaluation(next, rec.Value, recErr...); err != nil {
			return out, err
		}
		_, best := opt.Best()
		r.logger.Info("optimiser step",
			log.IterationKey, rec.Iteration,
			log.CoordinatesKey, next,
			log.ValueKey, rec.Value,
			log.BestValueKey, best,
		)
	}
	return out, nil
}

// Fit builds a regressor over every stored record.
func (r *Runner) Fit(ctx context.Context) (*gp.Regressor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	x, y, yErr := Training(records)
	reg, err := gp.NewRegressor(x, y, r.regressorOptions(yErr)...)
	if err != nil {
		return nil, err
	}
	h := reg.Hyperparameters()
	r.logger.Info("surrogate fitted",
		log.SamplesKey, len(y),
		log.AmplitudeKey, h.Amplitude,
		log.LengthsKey, h.Length.Values(),
		log.NegLogLikelihoodKey, reg.NegativeLogMarginalLikelihood(),
	)
	return reg, nil
}

// History returns every stored record.
func (r *Runner) History(ctx context.Context) ([]Record, error) {
	return r.store.List(ctx)
}

// Best returns the stored record with the largest value.
func (r *Runner) Best(ctx context.Context) (Record, error) {
	records, err := r.store.List(ctx)
	if err != nil {
		return Record{}, err
	}
	best, ok := BestRecord(records)
	if !ok {
		return Record{}, errors.Wrap(errors.ErrNotFound, "study has no records")
	}
	return best, nil
}
