// Package preprocessing は探索範囲と単位超立方体の間の座標変換を提供する
package preprocessing

import (
	"fmt"
	"math"

	"github.com/neutronics-workshop/gptools/core/model"
	"github.com/neutronics-workshop/gptools/optimize"
	"github.com/neutronics-workshop/gptools/pkg/errors"
)

// BoundsScaler は単位超立方体 [0,1]^d と探索範囲の間で座標を相互に変換する。
// サンプリング設計は単位超立方体上で生成され、このスケーラーで実座標に写される。
type BoundsScaler struct {
	state *model.StateManager

	// Lower は各次元の下限
	Lower []float64

	// Scale は各次元の幅 (upper - lower)
	Scale []float64
}

// NewBoundsScaler は探索範囲から BoundsScaler を作成する
//
// 使用例:
//
//	scaler, err := preprocessing.NewBoundsScaler(bounds)
//	points, err := scaler.Transform(sampling.Halton(8, len(bounds)))
func NewBoundsScaler(bounds []optimize.Bound) (*BoundsScaler, error) {
	if err := optimize.ValidateBounds("NewBoundsScaler", bounds); err != nil {
		return nil, err
	}
	s := &BoundsScaler{
		state: model.NewStateManager(),
		Lower: make([]float64, len(bounds)),
		Scale: make([]float64, len(bounds)),
	}
	for j, b := range bounds {
		s.Lower[j] = b.Lower
		s.Scale[j] = b.Width()
	}
	s.state.SetFitted(len(bounds), 0)
	return s, nil
}

// NewBoundsScalerDefault は範囲未設定の BoundsScaler を作成する。Fit で範囲を学習する。
func NewBoundsScalerDefault() *BoundsScaler {
	return &BoundsScaler{state: model.NewStateManager()}
}

// Fit はデータの各次元の最小値・最大値を範囲として学習する
func (s *BoundsScaler) Fit(x [][]float64) error {
	if len(x) == 0 || len(x[0]) == 0 {
		return errors.NewModelError("BoundsScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	c := len(x[0])
	s.Lower = make([]float64, c)
	s.Scale = make([]float64, c)

	for j := 0; j < c; j++ {
		min, max := math.Inf(1), math.Inf(-1)
		for _, p := range x {
			if len(p) != c {
				return errors.NewDimensionError("BoundsScaler.Fit", c, len(p), 1)
			}
			min = math.Min(min, p[j])
			max = math.Max(max, p[j])
		}
		s.Lower[j] = min
		// 定数の次元はスケールを1にする
		if dataRange := max - min; math.Abs(dataRange) < 1e-8 {
			s.Scale[j] = 1.0
		} else {
			s.Scale[j] = dataRange
		}
	}

	s.state.SetFitted(c, len(x))
	return nil
}

// Transform は単位超立方体上の点を探索範囲に写す
func (s *BoundsScaler) Transform(unit [][]float64) ([][]float64, error) {
	return s.apply("Transform", unit, func(j int, v float64) float64 {
		return s.Lower[j] + v*s.Scale[j]
	})
}

// InverseTransform は探索範囲の点を単位超立方体に戻す
func (s *BoundsScaler) InverseTransform(x [][]float64) ([][]float64, error) {
	return s.apply("InverseTransform", x, func(j int, v float64) float64 {
		return (v - s.Lower[j]) / s.Scale[j]
	})
}

// Bounds はスケーラーの範囲を optimize.Bound として返す
func (s *BoundsScaler) Bounds() []optimize.Bound {
	out := make([]optimize.Bound, len(s.Lower))
	for j := range out {
		out[j] = optimize.Bound{Lower: s.Lower[j], Upper: s.Lower[j] + s.Scale[j]}
	}
	return out
}

func (s *BoundsScaler) apply(method string, x [][]float64, f func(j int, v float64) float64) ([][]float64, error) {
	if err := s.state.RequireFitted("BoundsScaler", method); err != nil {
		return nil, err
	}
	out := make([][]float64, len(x))
	for i, p := range x {
		if err := s.state.RequireFeatures("BoundsScaler."+method, len(p)); err != nil {
			return nil, err
		}
		out[i] = make([]float64, len(p))
		for j, v := range p {
			out[i][j] = f(j, v)
		}
	}
	return out, nil
}

// String はスケーラーの文字列表現を返す
func (s *BoundsScaler) String() string {
	if !s.state.IsFitted() {
		return "BoundsScaler()"
	}
	return fmt.Sprintf("BoundsScaler(n_features=%d)", len(s.Lower))
}
