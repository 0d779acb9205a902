package optimize

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neutronics-workshop/gptools/pkg/errors"
)

func sphere(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += (v - 1) * (v - 1)
	}
	return s
}

func rosenbrock(x []float64) float64 {
	a, b := 1-x[0], x[1]-x[0]*x[0]
	return a*a + 100*b*b
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name    string
		bounds  []Bound
		wantErr bool
	}{
		{"valid", []Bound{{0, 1}, {-2, 3}}, false},
		{"empty", nil, true},
		{"inverted", []Bound{{1, 0}}, true},
		{"degenerate", []Bound{{1, 1}}, true},
		{"infinite", []Bound{{0, math.Inf(1)}}, true},
		{"nan", []Bound{{math.NaN(), 1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBounds("test", tt.bounds)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBoundHelpers(t *testing.T) {
	b := Bound{Lower: -1, Upper: 2}
	assert.Equal(t, 3.0, b.Width())
	assert.True(t, b.Contains(2))
	assert.False(t, b.Contains(2.1))
	assert.Equal(t, -1.0, b.Clamp(-5))
	assert.Equal(t, 0.5, b.Clamp(0.5))

	bounds := []Bound{{0, 1}, {0, 1}}
	assert.Equal(t, []float64{1, 0}, ClampAll(nil, []float64{3, -3}, bounds))
	assert.True(t, Contains([]float64{0.2, 1}, bounds))
	assert.False(t, Contains([]float64{0.2, 1.1}, bounds))
	assert.Zero(t, boxPenalty([]float64{0.5, 0.5}, bounds))
	assert.InDelta(t, 0.25, boxPenalty([]float64{1.5, 0.5}, bounds), 1e-12)
}

func TestDifferentialEvolutionFindsMinimum(t *testing.T) {
	tests := []struct {
		name   string
		f      Func
		bounds []Bound
		want   []float64
		tol    float64
	}{
		{"sphere", sphere, []Bound{{-5, 5}, {-5, 5}, {-5, 5}}, []float64{1, 1, 1}, 1e-3},
		{"rosenbrock", rosenbrock, []Bound{{-2, 2}, {-2, 2}}, []float64{1, 1}, 1e-2},
		{"boundary minimum", func(x []float64) float64 { return x[0] }, []Bound{{2, 3}}, []float64{2}, 1e-4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := NewDifferentialEvolution(WithSeed(7))
			res, err := de.Minimize(context.Background(), tt.f, tt.bounds)
			require.NoError(t, err)
			require.Len(t, res.X, len(tt.want))
			assert.True(t, Contains(res.X, tt.bounds))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], res.X[i], tt.tol)
			}
			assert.Positive(t, res.Evaluations)
		})
	}
}

func TestDifferentialEvolutionDeterministic(t *testing.T) {
	bounds := []Bound{{-3, 3}, {-3, 3}}
	a, err := NewDifferentialEvolution(WithSeed(42), WithPolish(false)).Minimize(context.Background(), sphere, bounds)
	require.NoError(t, err)
	b, err := NewDifferentialEvolution(WithSeed(42), WithPolish(false)).Minimize(context.Background(), sphere, bounds)
	require.NoError(t, err)
	assert.Equal(t, a.X, b.X)
	assert.Equal(t, a.F, b.F)
	assert.Equal(t, a.Evaluations, b.Evaluations)
}

func TestDifferentialEvolutionWarnsWithoutConvergence(t *testing.T) {
	var mu sync.Mutex
	var warnings []error
	errors.SetWarningHandler(func(w error) {
		mu.Lock()
		defer mu.Unlock()
		warnings = append(warnings, w)
	})
	t.Cleanup(func() { errors.SetWarningHandler(func(error) {}) })

	de := NewDifferentialEvolution(WithSeed(1), WithMaxIterations(1), WithTolerance(0, 0), WithPolish(false))
	res, err := de.Minimize(context.Background(), sphere, []Bound{{-5, 5}, {-5, 5}})
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, warnings, 1)
	var cw *errors.ConvergenceWarning
	assert.True(t, errors.As(warnings[0], &cw))
}

func TestDifferentialEvolutionHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDifferentialEvolution(WithSeed(3)).Minimize(ctx, sphere, []Bound{{0, 1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDifferentialEvolutionTreatsNaNAsWorst(t *testing.T) {
	f := func(x []float64) float64 {
		if x[0] < 0 {
			return math.NaN()
		}
		return (x[0] - 0.5) * (x[0] - 0.5)
	}
	res, err := NewDifferentialEvolution(WithSeed(11)).Minimize(context.Background(), f, []Bound{{-1, 1}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.X[0], 1e-3)
}

func TestLocalMinimizers(t *testing.T) {
	bounds := []Bound{{-2, 2}, {-2, 2}}
	tests := []struct {
		name string
		run  func(Func, []float64, []Bound) (Result, error)
	}{
		{"lbfgs", LBFGS},
		{"nelder-mead", NelderMead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.run(sphere, []float64{-1.5, 0.3}, bounds)
			require.NoError(t, err)
			assert.InDelta(t, 1.0, res.X[0], 1e-3)
			assert.InDelta(t, 1.0, res.X[1], 1e-3)
			assert.InDelta(t, 0.0, res.F, 1e-5)
		})
	}
}

func TestLBFGSStaysInsideBox(t *testing.T) {
	// unconstrained minimum at (1, 1) lies outside the box
	bounds := []Bound{{-1, 0}, {-1, 0}}
	res, err := LBFGS(sphere, []float64{-0.5, -0.5}, bounds)
	require.NoError(t, err)
	assert.True(t, Contains(res.X, bounds))
	assert.InDelta(t, 0.0, res.X[0], 1e-3)
	assert.InDelta(t, 0.0, res.X[1], 1e-3)
}

func TestLBFGSRejectsMismatchedStart(t *testing.T) {
	_, err := LBFGS(sphere, []float64{0}, []Bound{{0, 1}, {0, 1}})
	var derr *errors.DimensionError
	assert.True(t, errors.As(err, &derr))
}
