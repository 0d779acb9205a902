package gp

import (
	"github.com/neutronics-workshop/gptools/kernel"
	"github.com/neutronics-workshop/gptools/optimize"
	"github.com/neutronics-workshop/gptools/pkg/log"
)

// SingularPenalty is the negative log marginal likelihood reported for
// hyperparameters whose covariance matrix cannot be factorised. It steers the
// global search away from that region instead of aborting it.
const SingularPenalty = 1e50

// RelativeNoiseFloor sets the default observation error, as a fraction of
// the range of the training values, used when no errors are supplied. The
// resulting variance is (range·RelativeNoiseFloor)².
const RelativeNoiseFloor = 1e-5

// Widths of the hyperparameter search box, in natural-log units.
const (
	amplitudeSearchWidth = 4.0
	lengthSearchPad      = 1.0
)

// Hyperparameters of a covariance kernel.
type Hyperparameters struct {
	// Amplitude is the signal standard deviation a.
	Amplitude float64
	// Length is a single global length-scale or one per dimension.
	Length kernel.LengthScale
	// Shape holds extra kernel hyperparameters, e.g. α for the rational
	// quadratic. Empty for the squared exponential.
	Shape []float64
}

// Option configures a Regressor or an Optimiser.
type Option func(*config)

type config struct {
	yErr         []float64
	hasErrors    bool
	scaleLengths []float64
	hyper        *Hyperparameters
	kern         kernel.Kernel
	seed         *uint64
	searchOpts   []optimize.DEOption
	logger       log.Logger
}

func newConfig(opts []Option) *config {
	cfg := &config{kern: kernel.SquaredExponential{}}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.GetLogger()
	}
	return cfg
}

// WithErrors sets the per-point observation-error standard deviations.
func WithErrors(yErr []float64) Option {
	return func(c *config) {
		c.yErr = append([]float64(nil), yErr...)
		c.hasErrors = true
	}
}

// WithScaleLengths fixes the relative length-scales of each dimension. The
// hyperparameters then reduce to an amplitude and one scalar multiplier.
func WithScaleLengths(l ...float64) Option {
	return func(c *config) { c.scaleLengths = append([]float64(nil), l...) }
}

// WithHyperparameters fixes the hyperparameters and skips the likelihood search.
func WithHyperparameters(h Hyperparameters) Option {
	return func(c *config) {
		h.Shape = append([]float64(nil), h.Shape...)
		c.hyper = &h
	}
}

// WithKernel selects the covariance kernel. Default: squared exponential.
func WithKernel(k kernel.Kernel) Option {
	return func(c *config) { c.kern = k }
}

// WithRandomState seeds every differential-evolution search so that fits and
// proposals are reproducible.
func WithRandomState(seed uint64) Option {
	return func(c *config) { c.seed = &seed }
}

// WithSearchOptions passes extra options to the differential-evolution searches.
func WithSearchOptions(opts ...optimize.DEOption) Option {
	return func(c *config) { c.searchOpts = append(c.searchOpts, opts...) }
}

// WithLogger sets the logger. Default: log.GetLogger().
func WithLogger(l log.Logger) Option {
	return func(c *config) { c.logger = l }
}

func (c *config) searcher(seed *uint64) *optimize.DifferentialEvolution {
	opts := []optimize.DEOption{optimize.WithDELogger(c.logger)}
	if seed != nil {
		opts = append(opts, optimize.WithSeed(*seed))
	}
	opts = append(opts, c.searchOpts...)
	return optimize.NewDifferentialEvolution(opts...)
}
