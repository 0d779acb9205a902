// Package kernel provides stationary covariance functions for Gaussian-process
// models, the length-scale variant used to parameterise them and a cache of
// hyperparameter-independent pairwise distances.
package kernel

import (
	"math"

	"github.com/neutronics-workshop/gptools/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Kernel evaluates a stationary covariance from the scaled squared distance
// r2 = Σᵢ((x1ᵢ − x2ᵢ)/lᵢ)². Shape holds any hyperparameters beyond the
// amplitude and the length-scales.
type Kernel interface {
	// Name returns the identifier used in snapshots and configuration.
	Name() string
	// NumShape returns the number of extra shape hyperparameters.
	NumShape() int
	// ShapeBounds returns natural-log bounds for each shape hyperparameter.
	ShapeBounds() [][2]float64
	// Eval returns the covariance for amplitude a. Eval(a, shape, 0) == a².
	Eval(a float64, shape []float64, r2 float64) float64
}

// Kernel names accepted by ByName.
const (
	SquaredExponentialName = "squared-exponential"
	RationalQuadraticName  = "rational-quadratic"
)

// SquaredExponential is the Gaussian covariance a²·exp(−r²/2).
type SquaredExponential struct{}

// Name implements Kernel.
func (SquaredExponential) Name() string { return SquaredExponentialName }

// NumShape implements Kernel.
func (SquaredExponential) NumShape() int { return 0 }

// ShapeBounds implements Kernel.
func (SquaredExponential) ShapeBounds() [][2]float64 { return nil }

// Eval implements Kernel.
func (SquaredExponential) Eval(a float64, _ []float64, r2 float64) float64 {
	return a * a * math.Exp(-0.5*r2)
}

// RationalQuadratic is a²·(1 + r²/(2α))^(−α), a scale mixture of squared
// exponentials. Its single shape hyperparameter is α.
type RationalQuadratic struct{}

// Name implements Kernel.
func (RationalQuadratic) Name() string { return RationalQuadraticName }

// NumShape implements Kernel.
func (RationalQuadratic) NumShape() int { return 1 }

// ShapeBounds implements Kernel.
func (RationalQuadratic) ShapeBounds() [][2]float64 { return [][2]float64{{-3, 3}} }

// Eval implements Kernel.
func (RationalQuadratic) Eval(a float64, shape []float64, r2 float64) float64 {
	alpha := shape[0]
	return a * a * math.Pow(1+r2/(2*alpha), -alpha)
}

// ByName returns the kernel registered under name. An empty name selects the
// squared exponential.
func ByName(name string) (Kernel, error) {
	switch name {
	case "", SquaredExponentialName:
		return SquaredExponential{}, nil
	case RationalQuadraticName:
		return RationalQuadratic{}, nil
	default:
		return nil, errors.NewValidationError("kernel", "unknown kernel", name)
	}
}

// ScaledSquaredDistance returns Σᵢ((aᵢ − bᵢ)/lᵢ)².
func ScaledSquaredDistance(a, b, lengths []float64) float64 {
	var z float64
	for i := range a {
		d := (a[i] - b[i]) / lengths[i]
		z += d * d
	}
	return z
}

// Covariance evaluates k between two coordinates.
func Covariance(k Kernel, a float64, shape, lengths, x1, x2 []float64) float64 {
	return k.Eval(a, shape, ScaledSquaredDistance(x1, x2, lengths))
}

// Matrix returns the len(v1)×len(v2) covariance matrix between two point sets.
func Matrix(k Kernel, a float64, shape, lengths []float64, v1, v2 [][]float64) *mat.Dense {
	m := mat.NewDense(len(v1), len(v2), nil)
	for i, p := range v1 {
		for j, q := range v2 {
			m.Set(i, j, Covariance(k, a, shape, lengths, p, q))
		}
	}
	return m
}

// SymMatrix returns the symmetric covariance matrix of a point set.
func SymMatrix(k Kernel, a float64, shape, lengths []float64, v [][]float64) *mat.SymDense {
	m := mat.NewSymDense(len(v), nil)
	for i := range v {
		for j := i; j < len(v); j++ {
			m.SetSym(i, j, Covariance(k, a, shape, lengths, v[i], v[j]))
		}
	}
	return m
}
