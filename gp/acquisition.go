package gp

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/neutronics-workshop/gptools/pkg/errors"
)

// Acquisition selects the criterion an Optimiser maximises to propose the
// next evaluation.
type Acquisition int

const (
	// ExpectedImprovement seeks the maximum of the objective.
	ExpectedImprovement Acquisition = iota
	// MaxVariance proposes the point of largest posterior variance, for
	// space-filling exploration.
	MaxVariance
)

// String returns the configuration name of the acquisition.
func (a Acquisition) String() string {
	switch a {
	case ExpectedImprovement:
		return "expected-improvement"
	case MaxVariance:
		return "variance"
	default:
		return "unknown"
	}
}

// ParseAcquisition maps a configuration name to an Acquisition. An empty
// name selects ExpectedImprovement.
func ParseAcquisition(name string) (Acquisition, error) {
	switch name {
	case "", "expected-improvement", "ei":
		return ExpectedImprovement, nil
	case "variance", "learn":
		return MaxVariance, nil
	default:
		return 0, errors.NewValidationError("acquisition", "unknown acquisition", name)
	}
}

// negExpectedImprovement returns −EI for a posterior N(mu, sigma²) against
// the incumbent muMax:
//
//	−(μ − μmax)·Φ(Z) − σ·φ(Z),  Z = (μ − μmax)/σ
//
// With σ = 0 the improvement is deterministic and the value is −max(μ−μmax, 0).
func negExpectedImprovement(mu, sigma, muMax float64) float64 {
	d := mu - muMax
	if !(sigma > 0) {
		return -math.Max(d, 0)
	}
	z := d / sigma
	return -d*distuv.UnitNormal.CDF(z) - sigma*distuv.UnitNormal.Prob(z)
}

// negVariance returns −σ².
func negVariance(_, sigma, _ float64) float64 {
	return -sigma * sigma
}
