package optimize

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	gonumopt "gonum.org/v1/gonum/optimize"

	"github.com/neutronics-workshop/gptools/pkg/errors"
)

// penaltyWeight scales the out-of-box penalty added to bounded objectives.
const penaltyWeight = 1e6

// boxed wraps f so that it is evaluated at the projection of x onto the box,
// plus a quadratic penalty for leaving it. Inside the box it equals f.
func boxed(f Func, bounds []Bound) func([]float64) float64 {
	buf := make([]float64, len(bounds))
	return func(x []float64) float64 {
		v := f(ClampAll(buf, x, bounds))
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		return v + penaltyWeight*boxPenalty(x, bounds)
	}
}

// LBFGS minimises f within bounds from x0 using gonum's L-BFGS with a
// central finite-difference gradient. The returned X is always inside the
// box. A line-search failure is not an error as long as some progress was
// recorded; the best location found is returned.
func LBFGS(f Func, x0 []float64, bounds []Bound) (Result, error) {
	return minimizeLocal(f, x0, bounds, &gonumopt.LBFGS{}, true)
}

// NelderMead minimises f within bounds from x0 using gonum's derivative-free
// simplex method.
func NelderMead(f Func, x0 []float64, bounds []Bound) (Result, error) {
	return minimizeLocal(f, x0, bounds, &gonumopt.NelderMead{}, false)
}

func minimizeLocal(f Func, x0 []float64, bounds []Bound, method gonumopt.Method, gradient bool) (Result, error) {
	const op = "optimize.Local"
	if err := ValidateBounds(op, bounds); err != nil {
		return Result{}, err
	}
	if len(x0) != len(bounds) {
		return Result{}, errors.NewDimensionError(op, len(bounds), len(x0), 1)
	}

	obj := boxed(f, bounds)
	problem := gonumopt.Problem{Func: obj}
	if gradient {
		settings := &fd.Settings{Formula: fd.Central}
		problem.Grad = func(grad, x []float64) {
			fd.Gradient(grad, obj, x, settings)
		}
	}

	start := ClampAll(nil, x0, bounds)
	startF := obj(start)
	res, err := gonumopt.Minimize(problem, start, &gonumopt.Settings{
		MajorIterations: 500,
		Converger: &gonumopt.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 20,
		},
	}, method)
	if res == nil {
		if err == nil {
			err = errors.New("optimizer returned no result")
		}
		return Result{}, errors.Wrap(err, op)
	}

	out := Result{
		X:           ClampAll(nil, res.X, bounds),
		Iterations:  res.MajorIterations,
		Evaluations: res.FuncEvaluations + 1,
		Converged:   err == nil,
	}
	out.F = f(out.X)
	if math.IsNaN(out.F) || out.F > startF {
		out.X, out.F = start, startF
	}
	return out, nil
}
