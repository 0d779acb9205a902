package gp

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/neutronics-workshop/gptools/metrics"
	"github.com/neutronics-workshop/gptools/pkg/errors"
)

// LeaveOneOutResult holds closed-form leave-one-out predictions for each
// training point and the metrics they score against the training values.
type LeaveOneOutResult struct {
	Mean    []float64
	Sigma   []float64
	Metrics metrics.Summary
}

// LeaveOneOut predicts every training value from the other n−1 points
// without refitting:
//
//	μᵢ = yᵢ − [K⁻¹y]ᵢ / [K⁻¹]ᵢᵢ,  σᵢ² = 1 / [K⁻¹]ᵢᵢ
//
// σᵢ includes the observation noise of point i. Hyperparameters are those of
// the full fit.
func (r *Regressor) LeaveOneOut() (*LeaveOneOutResult, error) {
	const op = "Regressor.LeaveOneOut"
	n := len(r.y)
	if n < 2 {
		return nil, errors.NewValueError(op, "leave-one-out requires at least two training points")
	}

	var inv mat.SymDense
	if err := r.chol.InverseTo(&inv); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, errors.NewModelError(op, "singular covariance matrix", errors.ErrSingularMatrix)
		}
	}

	res := &LeaveOneOutResult{Mean: make([]float64, n), Sigma: make([]float64, n)}
	for i := 0; i < n; i++ {
		kii := inv.At(i, i)
		if !(kii > 0) {
			return nil, errors.NewNumericalInstabilityError(op, []float64{kii}, i)
		}
		res.Mean[i] = r.y[i] - r.h.AtVec(i)/kii
		res.Sigma[i] = math.Sqrt(1 / kii)
	}

	summary, err := metrics.Summarize(r.yVec,
		mat.NewVecDense(n, append([]float64(nil), res.Mean...)),
		mat.NewVecDense(n, append([]float64(nil), res.Sigma...)))
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	res.Metrics = summary
	return res, nil
}
