// Package sampling generates space-filling designs on the unit hypercube.
// Use preprocessing.BoundsScaler to map them onto a search box.
package sampling

import (
	"math/rand/v2"

	"github.com/neutronics-workshop/gptools/pkg/errors"
)

// Design kinds accepted by Generate.
const (
	KindCorners = "corners"
	KindUniform = "uniform"
	KindGrid    = "grid"
	KindHalton  = "halton"
)

// Corners returns the 2^d vertices of the unit hypercube.
func Corners(d int) [][]float64 {
	n := 1 << d
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		p := make([]float64, d)
		for j := 0; j < d; j++ {
			if i&(1<<j) != 0 {
				p[j] = 1
			}
		}
		out[i] = p
	}
	return out
}

// Uniform returns n independent uniform points.
func Uniform(n, d int, rng *rand.Rand) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		p := make([]float64, d)
		for j := range p {
			p[j] = rng.Float64()
		}
		out[i] = p
	}
	return out
}

// Grid returns the full factorial grid with k evenly spaced points per axis,
// endpoints included. k == 1 places the single level at the centre.
func Grid(k, d int) [][]float64 {
	levels := make([]float64, k)
	for i := range levels {
		if k == 1 {
			levels[i] = 0.5
		} else {
			levels[i] = float64(i) / float64(k-1)
		}
	}
	total := 1
	for j := 0; j < d; j++ {
		total *= k
	}
	out := make([][]float64, total)
	for i := 0; i < total; i++ {
		p := make([]float64, d)
		idx := i
		for j := 0; j < d; j++ {
			p[j] = levels[idx%k]
			idx /= k
		}
		out[i] = p
	}
	return out
}

// Halton returns the first n points of the Halton sequence in d dimensions,
// using the first d primes as bases and starting at index 1 so the origin
// is never emitted.
func Halton(n, d int) [][]float64 {
	bases := primes(d)
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		p := make([]float64, d)
		for j, b := range bases {
			p[j] = radicalInverse(i+1, b)
		}
		out[i] = p
	}
	return out
}

// Generate builds a design by kind. For KindGrid n is the number of levels
// per axis; for KindCorners n is ignored.
func Generate(kind string, n, d int, rng *rand.Rand) ([][]float64, error) {
	if d < 1 {
		return nil, errors.NewValueError("sampling.Generate", "dimension must be at least 1")
	}
	switch kind {
	case KindCorners:
		return Corners(d), nil
	}
	if n < 1 {
		return nil, errors.NewValueError("sampling.Generate", "number of points must be at least 1")
	}
	switch kind {
	case KindUniform:
		if rng == nil {
			return nil, errors.NewValueError("sampling.Generate", "uniform design requires a random source")
		}
		return Uniform(n, d, rng), nil
	case KindGrid:
		return Grid(n, d), nil
	case "", KindHalton:
		return Halton(n, d), nil
	default:
		return nil, errors.NewValidationError("design", "unknown design kind", kind)
	}
}

func radicalInverse(i, base int) float64 {
	var r float64
	f := 1 / float64(base)
	for ; i > 0; i /= base {
		r += f * float64(i%base)
		f /= float64(base)
	}
	return r
}

func primes(n int) []int {
	out := make([]int, 0, n)
	for c := 2; len(out) < n; c++ {
		prime := true
		for _, p := range out {
			if p*p > c {
				break
			}
			if c%p == 0 {
				prime = false
				break
			}
		}
		if prime {
			out = append(out, c)
		}
	}
	return out
}
