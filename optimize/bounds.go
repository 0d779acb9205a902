// Package optimize provides bounded global and local minimisers used to
// select Gaussian-process hyperparameters and to search acquisition
// functions: a differential-evolution global search and bounded wrappers
// around gonum's L-BFGS and Nelder-Mead methods.
package optimize

import (
	"math"

	"github.com/neutronics-workshop/gptools/pkg/errors"
)

// Bound is a closed interval [Lower, Upper] for one coordinate.
type Bound struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Width returns Upper − Lower.
func (b Bound) Width() float64 { return b.Upper - b.Lower }

// Contains reports whether v lies inside the bound.
func (b Bound) Contains(v float64) bool { return v >= b.Lower && v <= b.Upper }

// Clamp projects v onto the bound.
func (b Bound) Clamp(v float64) float64 { return math.Min(math.Max(v, b.Lower), b.Upper) }

// Func is a scalar objective of a coordinate vector.
type Func func(x []float64) float64

// Result is the outcome of a minimisation.
type Result struct {
	X           []float64
	F           float64
	Iterations  int
	Evaluations int
	Converged   bool
}

// ValidateBounds checks that there is at least one bound and that each has
// finite Lower < Upper.
func ValidateBounds(op string, bounds []Bound) error {
	if len(bounds) == 0 {
		return errors.NewValueError(op, "at least one bound is required")
	}
	for i, b := range bounds {
		if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) || math.IsInf(b.Lower, 0) || math.IsInf(b.Upper, 0) {
			return errors.NewValidationError("bounds", "bounds must be finite", i)
		}
		if !(b.Lower < b.Upper) {
			return errors.NewValidationError("bounds", "lower bound must be below upper bound", b)
		}
	}
	return nil
}

// ClampAll projects x onto the box, writing into dst (allocated if nil).
func ClampAll(dst, x []float64, bounds []Bound) []float64 {
	if dst == nil {
		dst = make([]float64, len(x))
	}
	for i, b := range bounds {
		dst[i] = b.Clamp(x[i])
	}
	return dst
}

// Contains reports whether x lies inside the box.
func Contains(x []float64, bounds []Bound) bool {
	for i, b := range bounds {
		if !b.Contains(x[i]) {
			return false
		}
	}
	return true
}

// boxPenalty returns the squared distance from x to the box, scaled per
// coordinate by the box width.
func boxPenalty(x []float64, bounds []Bound) float64 {
	var p float64
	for i, b := range bounds {
		var d float64
		switch {
		case x[i] < b.Lower:
			d = (b.Lower - x[i]) / b.Width()
		case x[i] > b.Upper:
			d = (x[i] - b.Upper) / b.Width()
		}
		p += d * d
	}
	return p
}
