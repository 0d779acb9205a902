package gp

import (
	"github.com/neutronics-workshop/gptools/core/model"
	"github.com/neutronics-workshop/gptools/kernel"
	"github.com/neutronics-workshop/gptools/pkg/errors"
)

// Snapshot is the JSON form of a fitted Regressor: its training data and
// the effective per-dimension hyperparameters.
type Snapshot struct {
	Kernel           string      `json:"kernel"`
	X                [][]float64 `json:"x"`
	Y                []float64   `json:"y"`
	YErr             []float64   `json:"y_err,omitempty"`
	Amplitude        float64     `json:"amplitude"`
	Lengths          []float64   `json:"lengths"`
	Shape            []float64   `json:"shape,omitempty"`
	NegLogLikelihood float64     `json:"neg_log_likelihood"`
}

// Snapshot captures the regressor's state.
func (r *Regressor) Snapshot() Snapshot {
	return Snapshot{
		Kernel:           r.kern.Name(),
		X:                cloneCoordinates(r.x),
		Y:                append([]float64(nil), r.y...),
		YErr:             append([]float64(nil), r.yErr...),
		Amplitude:        r.amplitude,
		Lengths:          append([]float64(nil), r.lengths...),
		Shape:            append([]float64(nil), r.shape...),
		NegLogLikelihood: r.nlml,
	}
}

// NewRegressorFromSnapshot rebuilds a regressor with the stored
// hyperparameters; no search is performed. opts may set the logger.
func NewRegressorFromSnapshot(s Snapshot, opts ...Option) (*Regressor, error) {
	k, err := kernel.ByName(s.Kernel)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		WithKernel(k),
		WithHyperparameters(Hyperparameters{
			Amplitude: s.Amplitude,
			Length:    kernel.PerDimensionLengths(s.Lengths...),
			Shape:     s.Shape,
		}),
		func(c *config) { c.scaleLengths = nil },
	)
	if len(s.YErr) > 0 {
		opts = append(opts, WithErrors(s.YErr))
	}
	return NewRegressor(s.X, s.Y, opts...)
}

// SaveSnapshot writes the regressor's snapshot to filename as JSON.
func (r *Regressor) SaveSnapshot(filename string) error {
	return model.SaveJSON(r.Snapshot(), filename)
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(filename string) (Snapshot, error) {
	var s Snapshot
	if err := model.LoadJSON(&s, filename); err != nil {
		return Snapshot{}, err
	}
	if len(s.X) == 0 {
		return Snapshot{}, errors.NewModelError("LoadSnapshot", "empty snapshot", errors.ErrEmptyData)
	}
	return s, nil
}

// LoadRegressor reads a snapshot and rebuilds the regressor.
func LoadRegressor(filename string, opts ...Option) (*Regressor, error) {
	s, err := LoadSnapshot(filename)
	if err != nil {
		return nil, err
	}
	return NewRegressorFromSnapshot(s, opts...)
}
