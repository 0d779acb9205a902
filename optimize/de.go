package optimize

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/neutronics-workshop/gptools/pkg/errors"
	"github.com/neutronics-workshop/gptools/pkg/log"
)

// DifferentialEvolution is a best1bin differential-evolution minimiser over
// a box. The population is initialised by Latin hypercube sampling in the
// unit cube and mapped onto the bounds.
type DifferentialEvolution struct {
	popSize       int
	maxIter       int
	tol           float64
	atol          float64
	mutation      [2]float64
	recombination float64
	polish        bool
	rng           *rand.Rand
	logger        log.Logger
}

// DEOption configures a DifferentialEvolution.
type DEOption func(*DifferentialEvolution)

// WithPopulationSize sets the population multiplier; the population has
// m·len(bounds) members (at least 5).
func WithPopulationSize(m int) DEOption {
	return func(de *DifferentialEvolution) { de.popSize = m }
}

// WithMaxIterations sets the maximum number of generations.
func WithMaxIterations(n int) DEOption {
	return func(de *DifferentialEvolution) { de.maxIter = n }
}

// WithTolerance sets the relative and absolute convergence tolerances on the
// spread of population energies.
func WithTolerance(tol, atol float64) DEOption {
	return func(de *DifferentialEvolution) { de.tol, de.atol = tol, atol }
}

// WithMutation sets the dithering range for the differential weight.
func WithMutation(lo, hi float64) DEOption {
	return func(de *DifferentialEvolution) { de.mutation = [2]float64{lo, hi} }
}

// WithRecombination sets the crossover probability.
func WithRecombination(cr float64) DEOption {
	return func(de *DifferentialEvolution) { de.recombination = cr }
}

// WithPolish enables or disables the final Nelder-Mead refinement of the best member.
func WithPolish(polish bool) DEOption {
	return func(de *DifferentialEvolution) { de.polish = polish }
}

// WithSeed makes the search reproducible.
func WithSeed(seed uint64) DEOption {
	return func(de *DifferentialEvolution) { de.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithRand sets the random source directly.
func WithRand(rng *rand.Rand) DEOption {
	return func(de *DifferentialEvolution) { de.rng = rng }
}

// WithDELogger sets the logger used for per-run diagnostics.
func WithDELogger(l log.Logger) DEOption {
	return func(de *DifferentialEvolution) { de.logger = l }
}

// NewDifferentialEvolution returns a minimiser with population multiplier
// 15, 1000 generations, tol 0.01, mutation dithered in [0.5, 1),
// recombination 0.7 and polishing enabled.
func NewDifferentialEvolution(opts ...DEOption) *DifferentialEvolution {
	de := &DifferentialEvolution{
		popSize:       15,
		maxIter:       1000,
		tol:           0.01,
		mutation:      [2]float64{0.5, 1},
		recombination: 0.7,
		polish:        true,
	}
	for _, opt := range opts {
		opt(de)
	}
	if de.rng == nil {
		de.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if de.logger == nil {
		de.logger = log.GetLogger()
	}
	de.logger = de.logger.With(log.ComponentKey, "differential_evolution")
	return de
}

// Minimize searches bounds for the minimum of f. A ConvergenceWarning is
// emitted through errors.Warn if the generation limit is reached before the
// population energies settle. ctx is checked between generations.
func (de *DifferentialEvolution) Minimize(ctx context.Context, f Func, bounds []Bound) (Result, error) {
	const op = "DifferentialEvolution.Minimize"
	if err := ValidateBounds(op, bounds); err != nil {
		return Result{}, err
	}

	dims := len(bounds)
	np := max(5, de.popSize*dims)
	evals := 0
	eval := func(unit []float64) float64 {
		evals++
		v := f(de.scale(unit, bounds))
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}

	pop := de.latinHypercube(np, dims)
	energies := make([]float64, np)
	for i := range pop {
		energies[i] = eval(pop[i])
	}
	best := floats.MinIdx(energies)

	trial := make([]float64, dims)
	converged := false
	iter := 0
	for iter = 1; iter <= de.maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, errors.Wrap(err, op)
		}
		weight := de.mutation[0] + de.rng.Float64()*(de.mutation[1]-de.mutation[0])

		for i := 0; i < np; i++ {
			r1, r2 := de.pickTwo(np, i)
			fill := de.rng.IntN(dims)
			for j := 0; j < dims; j++ {
				if j == fill || de.rng.Float64() < de.recombination {
					v := pop[best][j] + weight*(pop[r1][j]-pop[r2][j])
					if v < 0 || v > 1 {
						v = de.rng.Float64()
					}
					trial[j] = v
				} else {
					trial[j] = pop[i][j]
				}
			}
			e := eval(trial)
			if e <= energies[i] {
				copy(pop[i], trial)
				energies[i] = e
				if e <= energies[best] {
					best = i
				}
			}
		}

		if de.settled(energies) {
			converged = true
			break
		}
	}
	if iter > de.maxIter {
		iter = de.maxIter
	}

	res := Result{
		X:           de.scale(pop[best], bounds),
		F:           energies[best],
		Iterations:  iter,
		Evaluations: evals,
		Converged:   converged,
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("differential_evolution", de.maxIter,
			"maximum number of generations reached"))
	}

	if de.polish {
		polished, err := NelderMead(f, res.X, bounds)
		if err == nil {
			res.Evaluations += polished.Evaluations
			if polished.F < res.F {
				res.X, res.F = polished.X, polished.F
			}
		}
	}

	de.logger.Debug("differential evolution finished",
		log.IterationKey, res.Iterations,
		log.EvaluationsKey, res.Evaluations,
		log.ConvergedKey, res.Converged,
		log.BestValueKey, res.F,
	)
	return res, nil
}

func (de *DifferentialEvolution) settled(energies []float64) bool {
	for _, e := range energies {
		if math.IsInf(e, 0) {
			return false
		}
	}
	mean, std := stat.PopMeanStdDev(energies, nil)
	return std <= de.atol+de.tol*math.Abs(mean)
}

func (de *DifferentialEvolution) pickTwo(np, exclude int) (int, int) {
	r1 := exclude
	for r1 == exclude {
		r1 = de.rng.IntN(np)
	}
	r2 := exclude
	for r2 == exclude || r2 == r1 {
		r2 = de.rng.IntN(np)
	}
	return r1, r2
}

func (de *DifferentialEvolution) latinHypercube(np, dims int) [][]float64 {
	pop := make([][]float64, np)
	for i := range pop {
		pop[i] = make([]float64, dims)
	}
	seg := 1 / float64(np)
	for j := 0; j < dims; j++ {
		perm := de.rng.Perm(np)
		for i := 0; i < np; i++ {
			pop[i][j] = (float64(perm[i]) + de.rng.Float64()) * seg
		}
	}
	return pop
}

func (de *DifferentialEvolution) scale(unit []float64, bounds []Bound) []float64 {
	x := make([]float64, len(unit))
	for i, b := range bounds {
		x[i] = b.Lower + unit[i]*b.Width()
	}
	return x
}
