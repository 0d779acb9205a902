package study

import (
	"bytes"
	"context"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/neutronics-workshop/gptools/pkg/errors"
)

// Outcome is the result of one objective evaluation. Error is the standard
// deviation of the measurement and is nil for noise-free objectives.
type Outcome struct {
	Value float64
	Error *float64
}

// Objective is a function to be maximised over the study's search box.
type Objective interface {
	Evaluate(ctx context.Context, x []float64) (Outcome, error)
}

// ObjectiveFunc adapts a plain function to Objective.
type ObjectiveFunc func(ctx context.Context, x []float64) (Outcome, error)

// Evaluate calls f.
func (f ObjectiveFunc) Evaluate(ctx context.Context, x []float64) (Outcome, error) {
	return f(ctx, x)
}

// Builtin objective names.
const (
	BuiltinParaboloid   = "paraboloid"
	BuiltinGaussianPeak = "gaussian-peak"
	BuiltinBranin       = "branin"
)

// IsBuiltin reports whether name is a builtin objective.
func IsBuiltin(name string) bool {
	switch name {
	case BuiltinParaboloid, BuiltinGaussianPeak, BuiltinBranin:
		return true
	}
	return false
}

// Builtin returns an analytic objective by name. All builtins are posed for
// maximisation:
//
//	paraboloid     −Σ xᵢ²                      max 0 at the origin
//	gaussian-peak  exp(−½ Σ xᵢ²)               max 1 at the origin
//	branin         −branin(x₀, x₁), 2-D only   max ≈ −0.397887
func Builtin(name string) (Objective, error) {
	var f func(x []float64) (float64, error)
	switch name {
	case BuiltinParaboloid:
		f = func(x []float64) (float64, error) {
			s := 0.0
			for _, v := range x {
				s += v * v
			}
			return -s, nil
		}
	case BuiltinGaussianPeak:
		f = func(x []float64) (float64, error) {
			s := 0.0
			for _, v := range x {
				s += v * v
			}
			return math.Exp(-0.5 * s), nil
		}
	case BuiltinBranin:
		f = func(x []float64) (float64, error) {
			if len(x) != 2 {
				return 0, errors.NewDimensionError("branin", 2, len(x), 1)
			}
			return -branin(x[0], x[1]), nil
		}
	default:
		return nil, errors.NewValidationError("objective.builtin", "unknown builtin objective", name)
	}
	return ObjectiveFunc(func(ctx context.Context, x []float64) (Outcome, error) {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		v, err := f(x)
		return Outcome{Value: v}, err
	}), nil
}

func branin(x1, x2 float64) float64 {
	const (
		a = 1.0
		r = 6.0
		s = 10.0
	)
	b := 5.1 / (4 * math.Pi * math.Pi)
	c := 5 / math.Pi
	t := 1 / (8 * math.Pi)
	u := x2 - b*x1*x1 + c*x1 - r
	return a*u*u + s*(1-t)*math.Cos(x1) + s
}

// commandWaitDelay bounds how long a cancelled command may keep its output
// pipes open, e.g. through orphaned grandchildren.
const commandWaitDelay = 2 * time.Second

// CommandObjective evaluates an external program. The coordinates are
// appended to Args and also exported as GPTOOLS_<NAME> environment
// variables. The last non-empty line of stdout must hold "value [error]".
type CommandObjective struct {
	Path    string
	Args    []string
	Dir     string
	Names   []string
	Timeout time.Duration
}

// NewObjective builds the objective described by cfg.
func NewObjective(cfg Config) (Objective, error) {
	if cfg.Objective.Builtin != "" {
		return Builtin(cfg.Objective.Builtin)
	}
	if len(cfg.Objective.Command) == 0 {
		return nil, errors.NewValidationError("objective", "no objective configured", cfg.Objective)
	}
	return &CommandObjective{
		Path:    cfg.Objective.Command[0],
		Args:    append([]string(nil), cfg.Objective.Command[1:]...),
		Dir:     cfg.Objective.Dir,
		Names:   cfg.Names(),
		Timeout: cfg.ObjectiveTimeout(),
	}, nil
}

// Evaluate runs the command once for x.
func (o *CommandObjective) Evaluate(ctx context.Context, x []float64) (out Outcome, err error) {
	defer errors.Recover(&err, "CommandObjective.Evaluate")

	if len(o.Names) > 0 && len(o.Names) != len(x) {
		return Outcome{}, errors.NewDimensionError("CommandObjective.Evaluate", len(o.Names), len(x), 1)
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	args := append([]string(nil), o.Args...)
	env := os.Environ()
	for i, v := range x {
		s := strconv.FormatFloat(v, 'g', -1, 64)
		args = append(args, s)
		if len(o.Names) > 0 {
			env = append(env, "GPTOOLS_"+envName(o.Names[i])+"="+s)
		}
	}

	cmd := exec.CommandContext(ctx, o.Path, args...)
	cmd.Dir = o.Dir
	cmd.Env = env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = commandWaitDelay
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, errors.Wrapf(ctxErr, "objective %s", o.Path)
		}
		return Outcome{}, errors.Wrapf(err, "objective %s failed: %s", o.Path, strings.TrimSpace(stderr.String()))
	}
	return ParseOutcome(stdout.String())
}

// ParseOutcome parses "value [error]" from the last non-empty line of s.
func ParseOutcome(s string) (Outcome, error) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	line := strings.TrimSpace(lines[len(lines)-1])
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields) > 2 {
		return Outcome{}, errors.NewValueError("ParseOutcome", "expected \"value [error]\", got "+strconv.Quote(line))
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Outcome{}, errors.NewValueError("ParseOutcome", "objective value is not a finite number: "+strconv.Quote(fields[0]))
	}
	out := Outcome{Value: v}
	if len(fields) == 2 {
		e, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || !(e >= 0) || math.IsInf(e, 0) {
			return Outcome{}, errors.NewValueError("ParseOutcome", "objective error must be a finite non-negative number: "+strconv.Quote(fields[1]))
		}
		out.Error = &e
	}
	return out, nil
}

func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
