package study

import (
	"context"
	"math"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neutronics-workshop/gptools/pkg/errors"
)

func TestBuiltinObjectives(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
		want float64
	}{
		{BuiltinParaboloid, []float64{1, 2}, -5},
		{BuiltinParaboloid, []float64{0}, 0},
		{BuiltinGaussianPeak, []float64{0, 0}, 1},
		{BuiltinGaussianPeak, []float64{1}, math.Exp(-0.5)},
		{BuiltinBranin, []float64{math.Pi, 2.275}, -0.397887},
		{BuiltinBranin, []float64{-math.Pi, 12.275}, -0.397887},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := Builtin(tt.name)
			require.NoError(t, err)
			out, err := obj.Evaluate(context.Background(), tt.x)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, out.Value, 1e-6)
			assert.Nil(t, out.Error)
		})
	}

	_, err := Builtin("rosenbrock")
	assert.Error(t, err)

	branin, err := Builtin(BuiltinBranin)
	require.NoError(t, err)
	_, err = branin.Evaluate(context.Background(), []float64{1, 2, 3})
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = branin.Evaluate(ctx, []float64{1, 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		value   float64
		err     *float64
		wantErr bool
	}{
		{"value only", "1.25\n", 1.25, nil, false},
		{"value and error", "1.25 0.01", 1.25, ptr(0.01), false},
		{"last line wins", "running transport\n  \n0.9 0.02\n\n", 0.9, ptr(0.02), false},
		{"scientific", "1e-3", 1e-3, nil, false},
		{"empty", "", 0, nil, true},
		{"not a number", "tbr=1.1", 0, nil, true},
		{"nan", "NaN", 0, nil, true},
		{"negative error", "1 -0.1", 0, nil, true},
		{"too many fields", "1 2 3", 0, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ParseOutcome(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.value, out.Value)
			assert.Equal(t, tt.err, out.Error)
		})
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandObjective(t *testing.T) {
	requireShell(t)
	ctx := context.Background()

	t.Run("arguments", func(t *testing.T) {
		obj := &CommandObjective{Path: "sh", Args: []string{"-c", `echo "$1" 0.5`, "objective"}}
		out, err := obj.Evaluate(ctx, []float64{2.5})
		require.NoError(t, err)
		assert.Equal(t, 2.5, out.Value)
		require.NotNil(t, out.Error)
		assert.Equal(t, 0.5, *out.Error)
	})

	t.Run("environment", func(t *testing.T) {
		obj := &CommandObjective{
			Path:  "sh",
			Args:  []string{"-c", `echo "$GPTOOLS_LITHIUM_6"`},
			Names: []string{"lithium-6", "thickness"},
		}
		out, err := obj.Evaluate(ctx, []float64{60, 120})
		require.NoError(t, err)
		assert.Equal(t, 60.0, out.Value)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		obj := &CommandObjective{Path: "sh", Args: []string{"-c", "echo 1"}, Names: []string{"a"}}
		_, err := obj.Evaluate(ctx, []float64{1, 2})
		var de *errors.DimensionError
		assert.True(t, errors.As(err, &de))
	})

	t.Run("failure", func(t *testing.T) {
		obj := &CommandObjective{Path: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}}
		_, err := obj.Evaluate(ctx, []float64{1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("timeout", func(t *testing.T) {
		obj := &CommandObjective{Path: "sh", Args: []string{"-c", "exec sleep 5"}, Timeout: 50 * time.Millisecond}
		_, err := obj.Evaluate(ctx, []float64{1})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestNewObjective(t *testing.T) {
	cfg := validConfig()
	obj, err := NewObjective(cfg)
	require.NoError(t, err)
	out, err := obj.Evaluate(context.Background(), []float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, -2.0, out.Value)

	cfg.Objective = ObjectiveConfig{Command: []string{"./transport", "--fast"}, Timeout: "2s"}
	obj, err = NewObjective(cfg)
	require.NoError(t, err)
	cmd, ok := obj.(*CommandObjective)
	require.True(t, ok)
	assert.Equal(t, "./transport", cmd.Path)
	assert.Equal(t, []string{"--fast"}, cmd.Args)
	assert.Equal(t, []string{"enrichment", "thickness"}, cmd.Names)
	assert.Equal(t, 2*time.Second, cmd.Timeout)

	cfg.Objective = ObjectiveConfig{}
	_, err = NewObjective(cfg)
	assert.Error(t, err)
}

func ptr(v float64) *float64 { return &v }
