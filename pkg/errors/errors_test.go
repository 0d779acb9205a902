package errors

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		kind     string
		err      error
		wantMsg  string
		hasStack bool
	}{
		{
			name:     "with original error",
			op:       "Regressor.Fit",
			kind:     "singular covariance",
			err:      fmt.Errorf("test error"),
			wantMsg:  "gptools: Regressor.Fit: singular covariance: test error",
			hasStack: true,
		},
		{
			name:     "without original error",
			op:       "Regressor.Predict",
			kind:     "not fitted",
			err:      nil,
			wantMsg:  "gptools: Regressor.Predict: not fitted",
			hasStack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			if tt.hasStack {
				formatted := fmt.Sprintf("%+v", err)
				if !strings.Contains(formatted, "errors_test.go") {
					t.Error("Expected stack trace to contain test file name")
				}
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestModelErrorUnwrapsSentinel(t *testing.T) {
	err := NewModelError("Regressor.Fit", "singular covariance", ErrSingularMatrix)
	if !Is(err, ErrSingularMatrix) {
		t.Error("Expected Is(err, ErrSingularMatrix) to be true")
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Regressor.BuildPosterior", 2, 3, 1)

	want := "gptools: Regressor.BuildPosterior: dimension mismatch on axis 1 (features). Expected 2, got 3"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Fatal("Error should be castable to *DimensionError")
	}
	if dimErr.Expected != 2 || dimErr.Got != 3 {
		t.Errorf("unexpected fields: %+v", dimErr)
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("Regressor", "Predict")

	want := "gptools: Regressor: this model is not fitted yet. Fit it before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewValueError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		message string
		wantMsg string
	}{
		{
			name:    "length mismatch",
			op:      "NewRegressor",
			message: "x and y must have the same length: 3 != 2",
			wantMsg: "gptools: NewRegressor: x and y must have the same length: 3 != 2",
		},
		{
			name:    "missing error",
			op:      "Optimiser.AddEvaluation",
			message: "y_err must be specified",
			wantMsg: "gptools: Optimiser.AddEvaluation: y_err must be specified",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValueError(tt.op, tt.message)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			var valErr *ValueError
			if !As(err, &valErr) {
				t.Error("Error should be castable to *ValueError")
			}
		})
	}
}

func TestNewConvergenceWarning(t *testing.T) {
	warn := NewConvergenceWarning("differential_evolution", 1000, "population spread above tolerance")

	want := "differential_evolution failed to converge after 1000 iterations: population spread above tolerance"
	if warn.Error() != want {
		t.Errorf("Error() = %v, want %v", warn.Error(), want)
	}
}

func TestWarnRoutesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	SetZerologWarnFunc(func(w error) {
		event := logger.Warn()
		if obj, ok := w.(zerolog.LogObjectMarshaler); ok {
			event = event.EmbedObject(obj)
		}
		event.Msg(w.Error())
	})
	defer SetZerologWarnFunc(nil)

	Warn(NewConvergenceWarning("differential_evolution", 10, ""))

	out := buf.String()
	if !strings.Contains(out, `"type":"ConvergenceWarning"`) {
		t.Errorf("expected structured warning, got %q", out)
	}
	if !strings.Contains(out, `"iterations":10`) {
		t.Errorf("expected iterations field, got %q", out)
	}
}

func TestWarnFallsBackToHandler(t *testing.T) {
	var got error
	SetWarningHandler(func(w error) { got = w })

	w := NewNegativeVarianceWarning(-1e-12, 3)
	Warn(w)

	if got != w {
		t.Errorf("handler received %v, want %v", got, w)
	}
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "NewRegressor", 2, 0)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}

	expectedMsg := "in NewRegressor: expected 2, got 0"
	if !strings.Contains(wrapped.Error(), expectedMsg) {
		t.Errorf("Expected wrapped error to contain %q", expectedMsg)
	}
}

func TestCheckNumericalStability(t *testing.T) {
	if err := CheckNumericalStability("NewRegressor", []float64{1, 2, 3}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := CheckScalar("objective", nan(), 4)
	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatalf("expected NumericalInstabilityError, got %T", err)
	}
	if numErr.Iteration != 4 {
		t.Errorf("Iteration = %d, want 4", numErr.Iteration)
	}
}

type grid [][]float64

func (g grid) At(i, j int) float64 { return g[i][j] }

func TestCheckMatrix(t *testing.T) {
	finite := grid{{1, 0.5}, {0.5, 1}}
	if err := CheckMatrix("Regressor.factorize", finite, 2, 2, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	overflow := grid{{1, 0.5}, {0.5, 1}}
	big := 1e308
	overflow[1][1] = big * 10
	err := CheckMatrix("Regressor.factorize", overflow, 2, 2, 0)
	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatalf("expected NumericalInstabilityError, got %T", err)
	}
	if len(numErr.Values) != 1 {
		t.Errorf("Values = %v, want one non-finite entry", numErr.Values)
	}
}

func TestWithStack(t *testing.T) {
	if WithStack(nil) != nil {
		t.Error("WithStack(nil) should be nil")
	}
	err := WithStack(ErrNotFound)
	if !Is(err, ErrNotFound) {
		t.Error("Expected Is(err, ErrNotFound) to be true")
	}
	if detail := fmt.Sprintf("%+v", err); !strings.Contains(detail, "TestWithStack") {
		t.Errorf("expected stack trace naming the caller, got %q", detail)
	}
}

func TestClipVariance(t *testing.T) {
	v, clipped := ClipVariance(-1e-15)
	if v != 0 || !clipped {
		t.Errorf("ClipVariance(-1e-15) = (%v, %v)", v, clipped)
	}
	v, clipped = ClipVariance(0.25)
	if v != 0.25 || clipped {
		t.Errorf("ClipVariance(0.25) = (%v, %v)", v, clipped)
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}
