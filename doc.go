// Package gptools provides Gaussian-process regression, Bayesian
// optimisation and linear-inverse-problem tools for Go, built for parameter
// studies over expensive simulations.
//
// # Features
//
// - Regression: posterior mean, standard deviation and joint covariance
// - Optimisation: expected-improvement and maximum-variance proposals
// - Inversion: linear inverse problems with a Gaussian-process prior
// - Studies: sampling designs, resumable optimisation loops and record stores
// - Robust Error Handling: typed errors with stack traces
//
// # Installation
//
//	go get github.com/neutronics-workshop/gptools
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/neutronics-workshop/gptools/gp"
//	)
//
//	func main() {
//	    reg, err := gp.NewRegressor1D(
//	        []float64{0, 1, 2, 3},
//	        []float64{0, 0.84, 0.91, 0.14},
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    mu, sigma, err := reg.Predict([][]float64{{1.5}, {2.5}})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(mu, sigma)
//	}
//
// # Packages
//
//   - gp: Regressor, Optimiser and Inverter
//   - kernel: covariance kernels, length scales and distance caches
//   - optimize: differential evolution and bounded local minimisers
//   - sampling: corner, uniform, grid and Halton designs on the unit cube
//   - preprocessing: mapping between the unit cube and a search box
//   - metrics: regression and predictive-distribution metrics
//   - study: objectives, record stores and the parameter-study runner
//   - core/model: shared interfaces, fitted-state tracking and JSON persistence
//   - core/parallel: parallel processing utilities
//   - pkg/errors, pkg/log: error types and structured logging
//
// The gpstudy command in cmd/gpstudy drives studies from a JSON configuration.
//
// # Performance
//
// Hyperparameters are selected by maximising the marginal likelihood with
// differential evolution. Pairwise squared distances are computed once per
// fit, so each likelihood evaluation costs one Cholesky factorisation.
// Large query sets can be predicted in parallel with Regressor.PredictParallel.
package gptools
