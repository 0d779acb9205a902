package gp

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neutronics-workshop/gptools/optimize"
	"github.com/neutronics-workshop/gptools/pkg/errors"
	"github.com/neutronics-workshop/gptools/pkg/log"
)

func TestNegExpectedImprovement(t *testing.T) {
	tests := []struct {
		name              string
		mu, sigma, muMax float64
		want              float64
	}{
		{"at incumbent", 1, 1, 1, -1 / math.Sqrt(2*math.Pi)},
		{"zero sigma above", 3, 0, 1, -2},
		{"zero sigma below", 0, 0, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, negExpectedImprovement(tt.mu, tt.sigma, tt.muMax), 1e-12)
		})
	}

	// more uncertainty means more expected improvement
	prev := 0.0
	for _, s := range []float64{0.5, 1, 2, 4} {
		v := negExpectedImprovement(0, s, 1)
		assert.Less(t, v, prev)
		prev = v
	}
	assert.Equal(t, -4.0, negVariance(0, 2, 0))
}

func TestParseAcquisition(t *testing.T) {
	tests := []struct {
		in      string
		want    Acquisition
		wantErr bool
	}{
		{"", ExpectedImprovement, false},
		{"expected-improvement", ExpectedImprovement, false},
		{"variance", MaxVariance, false},
		{"ucb", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAcquisition(tt.in)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		if tt.in != "" {
			assert.Equal(t, tt.in, got.String())
		}
	}
}

func TestOptimiserCornerScenario(t *testing.T) {
	bounds := []optimize.Bound{{Lower: 0, Upper: 100}}
	opt, err := NewOptimiser([][]float64{{0}, {100}}, []float64{1.2, 0.4}, bounds, WithRandomState(1))
	require.NoError(t, err)

	x, err := opt.SearchForMaximum(context.Background())
	require.NoError(t, err)
	require.Len(t, x, 1)
	assert.GreaterOrEqual(t, x[0], 0.0)
	assert.LessOrEqual(t, x[0], 100.0)
}

func TestOptimiserProposalsWithinBounds(t *testing.T) {
	tests := []struct {
		name   string
		bounds []optimize.Bound
		f      func([]float64) float64
	}{
		{"unit interval", []optimize.Bound{{Lower: -1, Upper: 1}}, func(x []float64) float64 { return -x[0] * x[0] }},
		{"offset interval", []optimize.Bound{{Lower: 10, Upper: 12}}, func(x []float64) float64 { return math.Sin(x[0]) }},
		{"rectangle", []optimize.Bound{{Lower: -5, Upper: 5}, {Lower: 0, Upper: 1}}, func(x []float64) float64 {
			return -(x[0]-1)*(x[0]-1) - 4*(x[1]-0.3)*(x[1]-0.3)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var x [][]float64
			var y []float64
			for _, frac := range []float64{0, 1, 0.37} {
				p := make([]float64, len(tt.bounds))
				for i, b := range tt.bounds {
					p[i] = b.Lower + frac*b.Width()
				}
				x = append(x, p)
				y = append(y, tt.f(p))
			}
			opt, err := NewOptimiser(x, y, tt.bounds, WithRandomState(7))
			require.NoError(t, err)

			for iter := 0; iter < 3; iter++ {
				for _, acq := range []Acquisition{ExpectedImprovement, MaxVariance} {
					p, err := opt.Propose(context.Background(), acq)
					require.NoError(t, err)
					assert.True(t, optimize.Contains(p, tt.bounds), "%v outside %v", p, tt.bounds)
				}
				p, err := opt.SearchForMaximum(context.Background())
				require.NoError(t, err)
				require.NoError(t, opt.AddEvaluation(p, tt.f(p)))
			}
			_, n := opt.Dims()
			assert.Equal(t, 6, n)
		})
	}
}

func TestOptimiserFindsMaximum(t *testing.T) {
	f := func(x []float64) float64 { return -(x[0] - 3) * (x[0] - 3) }
	opt, err := NewOptimiser1D([]float64{0, 10, 6}, []float64{f([]float64{0}), f([]float64{10}), f([]float64{6})},
		optimize.Bound{Lower: 0, Upper: 10}, WithRandomState(21))
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		x, err := opt.SearchForMaximum(context.Background())
		require.NoError(t, err)
		require.NoError(t, opt.AddEvaluation(x, f(x)))
	}
	best, value := opt.Best()
	assert.InDelta(t, 3.0, best[0], 1.0)
	assert.Equal(t, value, opt.MuMax())
}

func TestOptimiserLearnFunctionExplores(t *testing.T) {
	opt, err := NewOptimiser1D([]float64{0, 1}, []float64{0, 0.5}, optimize.Bound{Lower: 0, Upper: 10}, WithRandomState(2))
	require.NoError(t, err)
	x, err := opt.LearnFunction(context.Background())
	require.NoError(t, err)
	// the largest posterior variance is far from both samples
	assert.Greater(t, x[0], 2.0)
}

func TestOptimiserAddEvaluationErrors(t *testing.T) {
	bounds := []optimize.Bound{{Lower: 0, Upper: 4}}
	x := [][]float64{{0}, {2}, {4}}
	y := []float64{0, 1, 0}

	withErr, err := NewOptimiser(x, y, bounds, WithErrors([]float64{0.1, 0.1, 0.1}), WithRandomState(1))
	require.NoError(t, err)

	var verr *errors.ValueError
	err = withErr.AddEvaluation([]float64{1}, 0.7)
	require.True(t, errors.As(err, &verr))
	_, n := withErr.Dims()
	assert.Equal(t, 3, n, "failed evaluation must not be recorded")

	err = withErr.AddEvaluation([]float64{1}, 0.7, 0.1, 0.2)
	assert.True(t, errors.As(err, &verr))

	require.NoError(t, withErr.AddEvaluation([]float64{1}, 0.7, 0.05))
	ex, ey, eErr := withErr.Evaluations()
	assert.Len(t, ex, 4)
	assert.Equal(t, 0.7, ey[3])
	assert.Equal(t, []float64{0.1, 0.1, 0.1, 0.05}, eErr)

	logger, _ := log.NewTestLogger(log.LevelDebug)
	noErr, err := NewOptimiser(x, y, bounds, WithRandomState(1), WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, noErr.AddEvaluation([]float64{1}, 0.7, 0.1))
	assert.True(t, logger.ContainsMessage("y_err ignored, optimiser was constructed without errors"))
	_, _, eErr = noErr.Evaluations()
	assert.Nil(t, eErr)

	var derr *errors.DimensionError
	err = noErr.AddEvaluation([]float64{1, 2}, 0.7)
	assert.True(t, errors.As(err, &derr))

	require.NoError(t, noErr.AddEvaluation([]float64{3}, 5))
	assert.Equal(t, 5.0, noErr.MuMax())
	best, v := noErr.Best()
	assert.Equal(t, []float64{3}, best)
	assert.Equal(t, 5.0, v)
	_, n = noErr.Dims()
	assert.Equal(t, 5, n)
}

func TestOptimiserConstructionErrors(t *testing.T) {
	x := [][]float64{{0}, {1}}
	y := []float64{0, 1}

	_, err := NewOptimiser(x, y, nil)
	assert.Error(t, err)

	_, err = NewOptimiser(x, y, []optimize.Bound{{Lower: 1, Upper: 0}})
	assert.Error(t, err)

	var derr *errors.DimensionError
	_, err = NewOptimiser(x, y, []optimize.Bound{{Lower: 0, Upper: 1}, {Lower: 0, Upper: 1}})
	assert.True(t, errors.As(err, &derr))

	var verr *errors.ValueError
	_, err = NewOptimiser(x, []float64{1}, []optimize.Bound{{Lower: 0, Upper: 1}})
	assert.True(t, errors.As(err, &verr))
}

func TestOptimiserProposeCancelled(t *testing.T) {
	opt, err := NewOptimiser1D([]float64{0, 1}, []float64{0, 1}, optimize.Bound{Lower: 0, Upper: 1}, WithRandomState(1))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = opt.SearchForMaximum(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = opt.Propose(context.Background(), Acquisition(42))
	assert.Error(t, err)
}

func TestOptimiserSeededProposalsReproducible(t *testing.T) {
	run := func() []float64 {
		opt, err := NewOptimiser1D([]float64{0, 5, 10}, []float64{1, 3, 2}, optimize.Bound{Lower: 0, Upper: 10}, WithRandomState(99))
		require.NoError(t, err)
		x, err := opt.SearchForMaximum(context.Background())
		require.NoError(t, err)
		return x
	}
	assert.Equal(t, run(), run())
}

func TestOptimiserAcquisitionValue(t *testing.T) {
	opt, err := NewOptimiser1D([]float64{0, 1, 2}, []float64{0, 1, 0}, optimize.Bound{Lower: 0, Upper: 2},
		WithHyperparameters(Hyperparameters{Amplitude: 1, Length: unitLength()}))
	require.NoError(t, err)

	atBest, err := opt.AcquisitionValue([]float64{1}, ExpectedImprovement)
	require.NoError(t, err)
	between, err := opt.AcquisitionValue([]float64{1.3}, ExpectedImprovement)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atBest, 0.0)
	assert.Less(t, atBest, 1e-3)
	assert.Greater(t, between, atBest)

	v, err := opt.AcquisitionValue([]float64{0.5}, MaxVariance)
	require.NoError(t, err)
	assert.InDelta(t, 0.017892, v, 1e-3)
}
