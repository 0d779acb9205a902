// Package metrics は回帰モデルとガウス過程の予測精度を評価する指標を提供する
package metrics

import (
	"math"

	"github.com/neutronics-workshop/gptools/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}

	return sum / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MAE = (1/n) * Σ|yTrue - yPred|
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}

	return sum / float64(n), nil
}

// R2Score は決定係数（R²）を計算する
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var yMean float64
	for i := 0; i < n; i++ {
		yMean += yTrue.AtVec(i)
	}
	yMean /= float64(n)

	// 全変動（TSS）と残差変動（RSS）を計算
	var tss, rss float64
	for i := 0; i < n; i++ {
		yTrueVal := yTrue.AtVec(i)
		yPredVal := yPred.AtVec(i)

		tss += (yTrueVal - yMean) * (yTrueVal - yMean)
		rss += (yTrueVal - yPredVal) * (yTrueVal - yPredVal)
	}

	// 全変動が0の場合（すべてのyTrueが同じ値）
	if tss == 0 {
		return 0, errors.Newf("R2Score: total sum of squares is zero (no variance in yTrue)")
	}

	return 1 - rss/tss, nil
}

// MeanNegativeLogPredictiveDensity は予測分布 N(mu, sigma²) の下での平均負対数尤度を計算する。
// sigma が 0 の点は評価できないためエラーとする。
//
//	NLPD = (1/n) * Σ [ ½log(2πσ²) + (y − μ)²/(2σ²) ]
func MeanNegativeLogPredictiveDensity(yTrue, mu, sigma *mat.VecDense) (float64, error) {
	return meanLogLoss("MeanNegativeLogPredictiveDensity", yTrue, mu, sigma)
}

// MeanStandardisedLogLoss は NLPD から、yTrue の平均と分散を持つ自明な正規モデルの
// 損失を差し引いた値を返す。負の値は自明なモデルより良い予測を意味する。
//
//	MSLL = NLPD − [ ½log(2πs²) + ½ ]    (s² は yTrue の母分散)
func MeanStandardisedLogLoss(yTrue, mu, sigma *mat.VecDense) (float64, error) {
	const op = "MeanStandardisedLogLoss"
	nlpd, err := meanLogLoss(op, yTrue, mu, sigma)
	if err != nil {
		return 0, err
	}
	_, variance := stat.PopMeanVariance(mat.Col(nil, 0, yTrue), nil)
	if !(variance > 0) {
		return 0, errors.NewValueError(op, "yTrue has no variance")
	}
	return nlpd - (0.5*math.Log(2*math.Pi*variance) + 0.5), nil
}

func meanLogLoss(op string, yTrue, mu, sigma *mat.VecDense) (float64, error) {
	n, err := checkPair(op, yTrue, mu)
	if err != nil {
		return 0, err
	}
	if sigma.Len() != n {
		return 0, errors.NewDimensionError(op, n, sigma.Len(), 0)
	}

	var sum float64
	for i := 0; i < n; i++ {
		s := sigma.AtVec(i)
		if !(s > 0) {
			return 0, errors.NewValueError(op, "predictive standard deviations must be positive")
		}
		v := s * s
		r := yTrue.AtVec(i) - mu.AtVec(i)
		sum += 0.5*math.Log(2*math.Pi*v) + r*r/(2*v)
	}
	return sum / float64(n), nil
}

// Summary はまとめて計算した回帰指標
type Summary struct {
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	// R2 は yTrue に分散がない場合 NaN になる
	R2 float64 `json:"r2"`
	// NLPD は sigma が与えられない場合 NaN になる
	NLPD float64 `json:"nlpd"`
	// MSLL は sigma が与えられないか yTrue に分散がない場合 NaN になる
	MSLL float64 `json:"msll"`
}

// Summarize は MSE, RMSE, MAE, R² と（sigma があれば）NLPD, MSLL を計算する
func Summarize(yTrue, mu, sigma *mat.VecDense) (Summary, error) {
	var s Summary
	var err error
	if s.MSE, err = MSE(yTrue, mu); err != nil {
		return Summary{}, err
	}
	s.RMSE = math.Sqrt(s.MSE)
	if s.MAE, err = MAE(yTrue, mu); err != nil {
		return Summary{}, err
	}
	if s.R2, err = R2Score(yTrue, mu); err != nil {
		s.R2 = math.NaN()
	}
	s.NLPD, s.MSLL = math.NaN(), math.NaN()
	if sigma != nil {
		if s.NLPD, err = MeanNegativeLogPredictiveDensity(yTrue, mu, sigma); err != nil {
			s.NLPD = math.NaN()
		}
		if s.MSLL, err = MeanStandardisedLogLoss(yTrue, mu, sigma); err != nil {
			s.MSLL = math.NaN()
		}
	}
	return s, nil
}

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}
