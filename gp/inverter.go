package gp

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/neutronics-workshop/gptools/kernel"
	"github.com/neutronics-workshop/gptools/optimize"
	"github.com/neutronics-workshop/gptools/pkg/errors"
	"github.com/neutronics-workshop/gptools/pkg/log"
)

// Selector is the criterion an Inverter minimises to choose its free
// hyperparameters.
type Selector int

const (
	// Evidence minimises the negative log marginal likelihood of the data.
	Evidence Selector = iota
	// NonNegativeML minimises the data misfit of the posterior mean after
	// negative entries are clipped to zero.
	NonNegativeML
)

// String returns the configuration name of the selector.
func (s Selector) String() string {
	switch s {
	case Evidence:
		return "evidence"
	case NonNegativeML:
		return "NNML"
	default:
		return "unknown"
	}
}

// ParseSelector maps "evidence" or "NNML" to a Selector.
func ParseSelector(name string) (Selector, error) {
	switch name {
	case "", "evidence":
		return Evidence, nil
	case "NNML", "nnml":
		return NonNegativeML, nil
	default:
		return 0, errors.NewValidationError("selector", "the selector must be either evidence or NNML", name)
	}
}

// Indices of the Inverter hyperparameters in θ.
const (
	invAmplitude = iota
	invLength
	invMean
	invParams
)

// starting grids (natural log) for each hyperparameter
var inverterGuesses = [invParams][]float64{
	{-6, -4, -2, 0},
	{-6, -5, -4, -3, -2},
	{-8, -6, -4, -2, 0},
}

const (
	// number of best-ranked guesses refined with L-BFGS
	inverterStarts = 3
	// margin added on each side of a guess grid to bound the refinement
	inverterSearchMargin = 10.0
)

// InverterOption configures an Inverter.
type InverterOption func(*inverterConfig)

type inverterConfig struct {
	fixed    [invParams]*float64
	selector Selector
	logger   log.Logger
}

// WithAmplitude fixes the prior amplitude.
func WithAmplitude(a float64) InverterOption {
	return func(c *inverterConfig) { c.fixed[invAmplitude] = &a }
}

// WithLengthScale fixes the prior length-scale.
func WithLengthScale(l float64) InverterOption {
	return func(c *inverterConfig) { c.fixed[invLength] = &l }
}

// WithPriorMean fixes the (positive) prior mean.
func WithPriorMean(m float64) InverterOption {
	return func(c *inverterConfig) { c.fixed[invMean] = &m }
}

// WithSelector chooses the hyperparameter selection criterion. Default: Evidence.
func WithSelector(s Selector) InverterOption {
	return func(c *inverterConfig) { c.selector = s }
}

// WithInverterLogger sets the logger. Default: log.GetLogger().
func WithInverterLogger(l log.Logger) InverterOption {
	return func(c *inverterConfig) { c.logger = l }
}

// Inverter solves y = Gb + ε for b under a squared-exponential GP prior
// over the grid of points x on which b is defined, with ε ~ N(0, S_y).
// Amplitude, length-scale and prior mean may each be fixed or selected.
type Inverter struct {
	x        [][]float64
	y        *mat.VecDense
	sy       *mat.SymDense
	syChol   mat.Cholesky
	g        *mat.Dense
	f        *mat.VecDense
	cache    *kernel.DistanceCache
	selector Selector

	amplitude float64
	length    float64
	mean      float64

	muB *mat.VecDense
	sB  *mat.SymDense

	logger log.Logger
}

// NewInverter validates shapes, selects the free hyperparameters and builds
// the posterior. x has one coordinate per parameter (len(x) = columns of G),
// y and cov describe the data (len(y) = rows of G).
func NewInverter(x [][]float64, y []float64, cov, g mat.Matrix, opts ...InverterOption) (*Inverter, error) {
	const op = "NewInverter"
	cfg := &inverterConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.GetLogger()
	}
	if cfg.selector != Evidence && cfg.selector != NonNegativeML {
		return nil, errors.NewValidationError("selector", "the selector must be either evidence or NNML", int(cfg.selector))
	}

	if len(x) == 0 || len(y) == 0 {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	dims := len(x[0])
	for _, p := range x {
		if len(p) != dims {
			return nil, errors.NewDimensionError(op, dims, len(p), 1)
		}
	}
	sr, sc := cov.Dims()
	if sr != sc {
		return nil, errors.NewDimensionError(op, sr, sc, 1)
	}
	if sr != len(y) {
		return nil, errors.NewDimensionError(op, len(y), sr, 0)
	}
	gr, gc := g.Dims()
	if gr != len(y) {
		return nil, errors.NewDimensionError(op, len(y), gr, 0)
	}
	if gc != len(x) {
		return nil, errors.NewDimensionError(op, len(x), gc, 1)
	}
	if err := errors.CheckNumericalStability(op, y, 0); err != nil {
		return nil, err
	}
	for _, v := range cfg.fixed {
		if v != nil && !(*v > 0) {
			return nil, errors.NewValueError(op, "fixed hyperparameters must be strictly positive")
		}
	}

	inv := &Inverter{
		x:        cloneCoordinates(x),
		y:        mat.NewVecDense(len(y), append([]float64(nil), y...)),
		sy:       symmetrize(cov),
		g:        mat.DenseCopyOf(g),
		selector: cfg.selector,
		logger: cfg.logger.With(
			log.ModelNameKey, "Inverter",
			log.ComponentKey, "gp",
			log.SelectorKey, cfg.selector.String(),
		),
	}
	if ok := inv.syChol.Factorize(inv.sy); !ok {
		return nil, errors.NewModelError(op, "data covariance matrix is not positive definite", errors.ErrSingularMatrix)
	}
	inv.f = mat.NewVecDense(gr, nil)
	inv.f.MulVec(inv.g, ones(gc))
	inv.cache = kernel.NewDistanceCache(inv.x)

	theta := inv.selectHyperparameters(cfg.fixed)
	inv.amplitude = math.Exp(theta[invAmplitude])
	inv.length = math.Exp(theta[invLength])
	inv.mean = math.Exp(theta[invMean])

	muB, sB, ok := inv.posterior(inv.amplitude, inv.length, inv.mean)
	if !ok {
		return nil, errors.NewModelError(op, "singular covariance matrix", errors.ErrSingularMatrix)
	}
	inv.muB, inv.sB = muB, sB

	inv.logger.Debug("inversion complete",
		log.OperationKey, log.OperationInvert,
		log.SamplesKey, gr,
		log.FeaturesKey, gc,
		log.AmplitudeKey, inv.amplitude,
		log.LengthsKey, inv.length,
	)
	return inv, nil
}

// NewInverter1D is NewInverter for a scalar parameter grid.
func NewInverter1D(x, y []float64, cov, g mat.Matrix, opts ...InverterOption) (*Inverter, error) {
	return NewInverter(Column(x), y, cov, g, opts...)
}

// selectHyperparameters returns θ = log(amplitude, length, mean). Free
// entries are chosen by ranking every combination of the guess grids,
// refining the best few with L-BFGS and keeping the lowest criterion.
func (inv *Inverter) selectHyperparameters(fixed [invParams]*float64) []float64 {
	theta := make([]float64, invParams)
	var free []int
	for i, v := range fixed {
		if v == nil {
			free = append(free, i)
		} else {
			theta[i] = math.Log(*v)
		}
	}
	if len(free) == 0 {
		return theta
	}

	criterion := inv.evidence
	if inv.selector == NonNegativeML {
		criterion = inv.nonNegativeMisfit
	}
	full := func(z []float64) []float64 {
		t := append([]float64(nil), theta...)
		for k, i := range free {
			t[i] = z[k]
		}
		return t
	}
	objective := func(z []float64) float64 { return criterion(full(z)) }

	grids := make([][]float64, len(free))
	bounds := make([]optimize.Bound, len(free))
	for k, i := range free {
		grids[k] = inverterGuesses[i]
		bounds[k] = optimize.Bound{
			Lower: slices.Min(grids[k]) - inverterSearchMargin,
			Upper: slices.Max(grids[k]) + inverterSearchMargin,
		}
	}

	type scored struct {
		z []float64
		v float64
	}
	guesses := cartesian(grids)
	ranked := make([]scored, len(guesses))
	for i, g := range guesses {
		ranked[i] = scored{z: g, v: objective(g)}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int { return cmp.Compare(a.v, b.v) })

	best := ranked[0]
	for _, start := range ranked[:min(inverterStarts, len(ranked))] {
		res, err := optimize.LBFGS(objective, start.z, bounds)
		if err != nil {
			continue
		}
		if res.F < best.v {
			best = scored{z: res.X, v: res.F}
		}
	}
	inv.logger.Debug("hyperparameters selected",
		log.OperationKey, log.OperationSearch,
		log.EvaluationsKey, len(guesses),
		log.NegLogLikelihoodKey, best.v,
	)
	return full(best.z)
}

// prior returns S_p = a²·exp(−½·r²/l²) over the parameter grid.
func (inv *Inverter) prior(a, l float64) *mat.SymDense {
	_, dims := inv.cache.Size()
	lengths := make([]float64, dims)
	for i := range lengths {
		lengths[i] = l
	}
	r2 := inv.cache.ScaledSquared(lengths)
	n := r2.SymmetricDim()
	sp := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sp.SetSym(i, j, kernel.SquaredExponential{}.Eval(a, nil, r2.At(i, j)))
		}
	}
	return sp
}

// evidence is uᵀS_m⁻¹u + log|S_m| with S_m = G·S_p·Gᵀ + S_y and u = y − μ·G·1.
func (inv *Inverter) evidence(theta []float64) float64 {
	a, l, mu := math.Exp(theta[invAmplitude]), math.Exp(theta[invLength]), math.Exp(theta[invMean])
	sp := inv.prior(a, l)

	var gsp mat.Dense
	gsp.Mul(inv.g, sp)
	var sm mat.Dense
	sm.Mul(&gsp, inv.g.T())
	sm.Add(&sm, inv.sy)

	var chol mat.Cholesky
	if ok := chol.Factorize(symmetrize(&sm)); !ok {
		return SingularPenalty
	}
	u := inv.residualAgainstMean(mu)
	var iu mat.VecDense
	if err := solveVec(&chol, &iu, u); err != nil {
		return SingularPenalty
	}
	v := mat.Dot(u, &iu) + chol.LogDet()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return SingularPenalty
	}
	return v
}

// nonNegativeMisfit is rᵀS_y⁻¹r for r = y − G·max(μ_b, 0).
func (inv *Inverter) nonNegativeMisfit(theta []float64) float64 {
	a, l, mu := math.Exp(theta[invAmplitude]), math.Exp(theta[invLength]), math.Exp(theta[invMean])
	muB, _, ok := inv.posterior(a, l, mu)
	if !ok {
		return SingularPenalty
	}
	for i := 0; i < muB.Len(); i++ {
		if muB.AtVec(i) < 0 {
			muB.SetVec(i, 0)
		}
	}
	res := mat.NewVecDense(inv.y.Len(), nil)
	res.MulVec(inv.g, muB)
	res.SubVec(inv.y, res)

	var ir mat.VecDense
	if err := solveVec(&inv.syChol, &ir, res); err != nil {
		return SingularPenalty
	}
	v := mat.Dot(res, &ir)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return SingularPenalty
	}
	return v
}

// posterior applies the Woodbury identity:
//
//	K = G·S_p,  V = S_y + K·Gᵀ,  S_b = S_p − Kᵀ·V⁻¹·K
//	μ_b = μ·1 + S_b·Gᵀ·S_y⁻¹·(y − μ·G·1)
func (inv *Inverter) posterior(a, l, mu float64) (*mat.VecDense, *mat.SymDense, bool) {
	sp := inv.prior(a, l)
	n := sp.SymmetricDim()

	var k mat.Dense
	k.Mul(inv.g, sp)
	var v mat.Dense
	v.Mul(&k, inv.g.T())
	v.Add(&v, inv.sy)

	var vChol mat.Cholesky
	if ok := vChol.Factorize(symmetrize(&v)); !ok {
		return nil, nil, false
	}
	var ivk mat.Dense
	if err := solveMat(&vChol, &ivk, &k); err != nil {
		return nil, nil, false
	}
	var kt mat.Dense
	kt.Mul(k.T(), &ivk)

	sb := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sb.SetSym(i, j, sp.At(i, j)-0.5*(kt.At(i, j)+kt.At(j, i)))
		}
	}

	var w mat.VecDense
	if err := solveVec(&inv.syChol, &w, inv.residualAgainstMean(mu)); err != nil {
		return nil, nil, false
	}
	var gtw mat.VecDense
	gtw.MulVec(inv.g.T(), &w)
	muB := mat.NewVecDense(n, nil)
	muB.MulVec(sb, &gtw)
	for i := 0; i < n; i++ {
		muB.SetVec(i, muB.AtVec(i)+mu)
	}
	return muB, sb, true
}

func (inv *Inverter) residualAgainstMean(mu float64) *mat.VecDense {
	u := mat.NewVecDense(inv.y.Len(), nil)
	u.AddScaledVec(inv.y, -mu, inv.f)
	return u
}

// PosteriorMean returns μ_b.
func (inv *Inverter) PosteriorMean() []float64 {
	return append([]float64(nil), inv.muB.RawVector().Data...)
}

// PosteriorCovariance returns a copy of S_b.
func (inv *Inverter) PosteriorCovariance() *mat.SymDense {
	return mat.NewSymDense(inv.sB.SymmetricDim(), append([]float64(nil), inv.sB.RawSymmetric().Data...))
}

// PosteriorStdDev returns the square roots of the diagonal of S_b, with
// negative round-off clipped to zero.
func (inv *Inverter) PosteriorStdDev() []float64 {
	n := inv.sB.SymmetricDim()
	out := make([]float64, n)
	for i := range out {
		v, _ := errors.ClipVariance(inv.sB.At(i, i))
		out[i] = math.Sqrt(v)
	}
	return out
}

// Hyperparameters returns the amplitude, length-scale and prior mean used.
func (inv *Inverter) Hyperparameters() (amplitude, length, mean float64) {
	return inv.amplitude, inv.length, inv.mean
}

// Selector returns the selection criterion.
func (inv *Inverter) Selector() Selector { return inv.selector }

// Criterion evaluates the selection criterion at the given hyperparameters.
func (inv *Inverter) Criterion(amplitude, length, mean float64) float64 {
	theta := []float64{math.Log(amplitude), math.Log(length), math.Log(mean)}
	if inv.selector == NonNegativeML {
		return inv.nonNegativeMisfit(theta)
	}
	return inv.evidence(theta)
}

func symmetrize(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return s
}

func ones(n int) *mat.VecDense {
	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, 1)
	}
	return v
}

// cartesian returns every combination taking one value from each grid.
func cartesian(grids [][]float64) [][]float64 {
	out := [][]float64{{}}
	for _, g := range grids {
		next := make([][]float64, 0, len(out)*len(g))
		for _, prefix := range out {
			for _, v := range g {
				next = append(next, append(append([]float64(nil), prefix...), v))
			}
		}
		out = next
	}
	return out
}
