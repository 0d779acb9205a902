package kernel

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DistanceCache holds, for each dimension k, the matrix −½(x_ik − x_jk)².
// It depends only on the training coordinates, so the covariance matrix
// can be rebuilt for new hyperparameters without revisiting the data.
type DistanceCache struct {
	n     int
	dims  int
	halfs []*mat.SymDense
}

// NewDistanceCache precomputes the per-dimension distance matrices.
func NewDistanceCache(x [][]float64) *DistanceCache {
	n := len(x)
	dims := 0
	if n > 0 {
		dims = len(x[0])
	}
	c := &DistanceCache{n: n, dims: dims, halfs: make([]*mat.SymDense, dims)}
	for k := 0; k < dims; k++ {
		d := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				diff := x[i][k] - x[j][k]
				d.SetSym(i, j, -0.5*diff*diff)
			}
		}
		c.halfs[k] = d
	}
	return c
}

// Size returns the number of points and their dimensionality.
func (c *DistanceCache) Size() (n, dims int) { return c.n, c.dims }

// ScaledSquared returns r²_ij = Σ_k (x_ik − x_jk)²/l_k².
func (c *DistanceCache) ScaledSquared(lengths []float64) *mat.SymDense {
	r2 := mat.NewSymDense(c.n, nil)
	for k, d := range c.halfs {
		w := -2 / (lengths[k] * lengths[k])
		for i := 0; i < c.n; i++ {
			for j := i + 1; j < c.n; j++ {
				r2.SetSym(i, j, r2.At(i, j)+w*d.At(i, j))
			}
		}
	}
	return r2
}

// AxisRange returns the smallest non-zero and the largest separation between
// points along dimension k. ok is false if every point shares that coordinate.
func (c *DistanceCache) AxisRange(k int) (minNonZero, max float64, ok bool) {
	d := c.halfs[k]
	return separationRange(c.n, func(i, j int) float64 { return math.Sqrt(-2 * d.At(i, j)) })
}

// ScaledRange is AxisRange for the combined distance with each dimension
// divided by scale[k].
func (c *DistanceCache) ScaledRange(scale []float64) (minNonZero, max float64, ok bool) {
	r2 := c.ScaledSquared(scale)
	return separationRange(c.n, func(i, j int) float64 { return math.Sqrt(r2.At(i, j)) })
}

func separationRange(n int, dist func(i, j int) float64) (minNonZero, max float64, ok bool) {
	minNonZero = math.Inf(1)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := dist(i, j)
			if v > max {
				max = v
			}
			if v > 0 && v < minNonZero {
				minNonZero = v
			}
		}
	}
	if math.IsInf(minNonZero, 1) {
		return 0, 0, false
	}
	return minNonZero, max, true
}
