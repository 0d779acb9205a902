package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "study.json")
	doc := `{
		"name": "cli",
		"dimensions": [{"name": "enrichment", "lower": -2, "upper": 3}],
		"objective": {"builtin": "gaussian-peak"},
		"initial_points": 4,
		"iterations": 2,
		"store": {"kind": "sqlite", "path": "` + filepath.ToSlash(filepath.Join(dir, "study.db")) + `"},
		"seed": 3
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestCLIWorkflow(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	model := filepath.Join(dir, "surrogate.json")

	out, err := runCLI(t, "sample", "-config", cfg, "-log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "evaluated 4 points")
	assert.Contains(t, out, "enrichment=")

	out, err = runCLI(t, "optimise", "-config", cfg, "-iterations", "2", "-log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "expected-improvement")
	assert.Contains(t, out, "best value")

	out, err = runCLI(t, "fit", "-config", cfg, "-model", model, "-log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "fitted 6 points")
	assert.Contains(t, out, "leave-one-out")
	assert.FileExists(t, model)

	out, err = runCLI(t, "predict", "-model", model, "-config", cfg, "-grid", "5", "-log-level", "error")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[0], "enrichment")
	assert.Contains(t, lines[0], "sigma")

	out, err = runCLI(t, "history", "-config", cfg, "-log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "6 evaluations")
	assert.Contains(t, out, "halton")
}

func TestCLIJSONLogging(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"sample", "-config", cfg, "-n", "2", "-log-format", "json"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "evaluated 2 points")

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(stderr.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		if entry["message"] == "design evaluated" {
			found = true
			assert.Equal(t, "INFO", entry["severity"])
			assert.Equal(t, "cli", entry["study.id"])
		}
	}
	assert.True(t, found, stderr.String())
}

func TestCLIPredictWithoutConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	model := filepath.Join(dir, "surrogate.json")

	_, err := runCLI(t, "sample", "-config", cfg, "-design", "grid", "-n", "3", "-log-level", "error")
	require.NoError(t, err)
	_, err = runCLI(t, "fit", "-config", cfg, "-model", model, "-log-level", "error")
	require.NoError(t, err)

	out, err := runCLI(t, "predict", "-model", model, "-grid", "3", "-log-level", "error")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "x0")
}

func TestCLIOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	records := filepath.Join(dir, "outputs")

	out, err := runCLI(t, "sample", "-config", cfg, "-store", "dir", "-path", records, "-n", "2", "-seed", "9", "-log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "evaluated 2 points")

	files, err := filepath.Glob(filepath.Join(records, "*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestCLIErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing command", nil, "missing command"},
		{"unknown command", []string{"train"}, "unknown command"},
		{"bad flag", []string{"sample", "-bogus"}, "bogus"},
		{"missing config", []string{"history", "-config", filepath.Join(dir, "none.json")}, "load study config"},
		{"bad log level", []string{"history", "-config", cfg, "-log-level", "loud"}, "log-level"},
		{"bad log format", []string{"history", "-config", cfg, "-log-format", "xml"}, "log-format"},
		{"bad seed", []string{"history", "-config", cfg, "-seed", "-1"}, "seed"},
		{"bad store", []string{"history", "-config", cfg, "-store", "postgres"}, "store.kind"},
		{"bad design", []string{"sample", "-config", cfg, "-design", "sobol", "-log-level", "error"}, "design"},
		{"missing model", []string{"predict", "-model", filepath.Join(dir, "none.json")}, "open"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	out, err := runCLI(t, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "usage: gpstudy")
}
