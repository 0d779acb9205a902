package kernel

import (
	"github.com/neutronics-workshop/gptools/pkg/errors"
)

// LengthKind tags how a LengthScale is specified.
type LengthKind int

const (
	// Unset means no length-scale was given.
	Unset LengthKind = iota
	// Global uses one length-scale for every dimension.
	Global
	// PerDimension uses one length-scale per dimension.
	PerDimension
)

// LengthScale is either a single global length-scale or a vector of
// per-dimension length-scales.
type LengthScale struct {
	kind   LengthKind
	values []float64
}

// GlobalLength returns a length-scale shared by every dimension.
func GlobalLength(s float64) LengthScale {
	return LengthScale{kind: Global, values: []float64{s}}
}

// PerDimensionLengths returns one length-scale per dimension.
func PerDimensionLengths(l ...float64) LengthScale {
	return LengthScale{kind: PerDimension, values: append([]float64(nil), l...)}
}

// Kind reports how the length-scale was specified.
func (ls LengthScale) Kind() LengthKind { return ls.kind }

// Values returns a copy of the stored values.
func (ls LengthScale) Values() []float64 { return append([]float64(nil), ls.values...) }

// Resolve expands the length-scale to n dimensions. A global length is
// broadcast; per-dimension lengths must have exactly n entries. All values
// must be strictly positive.
func (ls LengthScale) Resolve(n int) ([]float64, error) {
	const op = "LengthScale.Resolve"

	var out []float64
	switch ls.kind {
	case Global:
		out = make([]float64, n)
		for i := range out {
			out[i] = ls.values[0]
		}
	case PerDimension:
		if len(ls.values) != n {
			return nil, errors.NewDimensionError(op, n, len(ls.values), 1)
		}
		out = append([]float64(nil), ls.values...)
	default:
		return nil, errors.NewValueError(op, "length-scale is not set")
	}

	for _, v := range out {
		if !(v > 0) {
			return nil, errors.NewValueError(op, "length-scales must be strictly positive")
		}
	}
	return out, nil
}
