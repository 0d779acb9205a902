package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gperrors "github.com/neutronics-workshop/gptools/pkg/errors"
)

func TestTestLoggerLevels(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelInfo)

	testLogger.Debug("hidden debug")
	testLogger.Info("info message", "key1", "value1", "number", 42)
	testLogger.Warn("warning message")
	testLogger.Error("error message", fmt.Errorf("boom"), ErrorCodeKey, ErrorSingularMatrix)

	require.NotEmpty(t, buffer.String())
	assert.False(t, testLogger.ContainsMessage("hidden debug"))
	assert.True(t, testLogger.ContainsMessage("info message"))
	assert.True(t, testLogger.ContainsMessage("warning message"))
	assert.True(t, testLogger.ContainsField("key1", "value1"))
	assert.True(t, testLogger.ContainsField("number", 42.0))
	assert.True(t, testLogger.ContainsField(ErrAttrKey, "boom"))
	assert.True(t, testLogger.ContainsField(ErrorCodeKey, ErrorSingularMatrix))
}

func TestTestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	child := testLogger.With(ModelNameKey, "Regressor", ComponentKey, "gp")
	child.Info("hyperparameters selected", AmplitudeKey, 0.5, SamplesKey, 3)

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, "Regressor", entries[0][ModelNameKey])
	assert.Equal(t, "gp", entries[0][ComponentKey])
	assert.Equal(t, 0.5, entries[0][AmplitudeKey])
	assert.Equal(t, 3.0, entries[0][SamplesKey])
}

func TestTestLoggerConcurrent(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				testLogger.Info("query evaluated", "worker", id, "query", j)
			}
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo)

	logger.Debug("not emitted")
	logger.With(ModelNameKey, "Optimiser").Info("proposal", IterationKey, 3, CoordinatesKey, []float64{1, 2})
	logger.Error("objective failed", gperrors.NewValueError("objective", "bad output"), IterationKey, 4)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "info", first["level"])
	assert.Equal(t, "proposal", first["message"])
	assert.Equal(t, "Optimiser", first[ModelNameKey])
	assert.Equal(t, 3.0, first[IterationKey])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "error", second["level"])
	assert.Contains(t, second["error"], "bad output")

	ctx := context.Background()
	assert.True(t, logger.Enabled(ctx, LevelWarn))
	assert.False(t, logger.Enabled(ctx, LevelDebug))
}

func TestSetupZerologRoutesWarnings(t *testing.T) {
	previous := GetLogger()
	defer func() {
		SetLogger(previous)
		gperrors.SetZerologWarnFunc(nil)
	}()

	var buf bytes.Buffer
	SetupZerolog(&buf, LevelDebug)

	gperrors.Warn(gperrors.NewConvergenceWarning("differential_evolution", 1000, ""))
	assert.Contains(t, buf.String(), `"type":"ConvergenceWarning"`)
	assert.Contains(t, buf.String(), `"algorithm":"differential_evolution"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"info", LevelInfo, true},
		{"", LevelInfo, true},
		{"warn", LevelWarn, true},
		{"error", LevelError, true},
		{"verbose", LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
	_, err := SetupLogger(&bytes.Buffer{}, "verbose")
	assert.Error(t, err)
}

func TestSetupLoggerJSON(t *testing.T) {
	prev, prevSlog := GetLogger(), slog.Default()
	defer func() {
		SetLogger(prev)
		slog.SetDefault(prevSlog)
		gperrors.SetWarningHandler(func(error) {})
	}()

	var buf bytes.Buffer
	logger, err := SetupLogger(&buf, "info")
	require.NoError(t, err)
	assert.Same(t, logger, GetLogger())

	child := GetLogger().With(ComponentKey, "study")
	child.Debug("not emitted")
	child.Info("design evaluated", SamplesKey, 4)
	child.Error("objective failed", gperrors.NewValueError("objective", "bad output"), IterationKey, 2)
	gperrors.Warn(gperrors.NewNegativeVarianceWarning(-1e-3, 1))
	assert.True(t, logger.Enabled(context.Background(), LevelWarn))
	assert.False(t, logger.Enabled(context.Background(), LevelDebug))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var info, failure, warning map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &info))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &failure))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &warning))

	assert.Equal(t, "INFO", info["severity"])
	assert.Equal(t, "design evaluated", info["message"])
	assert.Equal(t, "study", info[ComponentKey])
	assert.Equal(t, 4.0, info[SamplesKey])

	assert.Equal(t, "ERROR", failure["severity"])
	assert.Contains(t, failure[ErrAttrKey], "bad output")
	assert.NotEmpty(t, failure[StacktraceAttrKey])
	assert.Equal(t, 2.0, failure[IterationKey])

	assert.Equal(t, "WARN", warning["severity"])
}

func BenchmarkZerologLogger(b *testing.B) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo).With(ModelNameKey, "Regressor")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("query evaluated", QueriesKey, 1, IterationKey, i)
	}
}
