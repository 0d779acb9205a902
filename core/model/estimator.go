package model

import "gonum.org/v1/gonum/mat"

// Predictor returns the posterior mean and standard deviation at each query.
type Predictor interface {
	Predict(q [][]float64) (mu, sigma []float64, err error)
}

// PosteriorBuilder returns the joint posterior over a set of query points.
type PosteriorBuilder interface {
	BuildPosterior(q [][]float64) (*mat.VecDense, *mat.SymDense, error)
}

// Regressor is a fitted surrogate model over scalar observations.
type Regressor interface {
	Predictor
	PosteriorBuilder
	// Dims returns the dimensionality of the coordinates and the number of
	// training samples.
	Dims() (nFeatures, nSamples int)
}
