package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goprofile/app"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestGenerateThenAnalyze(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tx.csv")

	out, _, err := execute(t, "generate", path, "--rows", "400", "--seed", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 400 rows")

	report := filepath.Join(dir, "report.json")
	_, _, err = execute(t, "analyze", path, "--seed", "9", "--reservoir", "200", "--log-level", "error", "-o", report)
	require.NoError(t, err)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var results []app.FileResult
	require.NoError(t, json.Unmarshal(data, &results))
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Result)
	assert.Equal(t, int64(400), results[0].Result.RowsRead)
	assert.Equal(t, 200, results[0].Result.RowsRetained)
}

func TestAnalyzeSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.csv")
	_, _, err := execute(t, "generate", path, "--rows", "300")
	require.NoError(t, err)

	out, _, err := execute(t, "analyze", path, "--summary", "--max-rows", "100", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "100 rows read")
	assert.Contains(t, out, "COLUMN")
	assert.Contains(t, out, "unit_price")
	assert.Contains(t, out, "warning: row cap of 100 reached")
}

func TestAnalyzeReportsFailedFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "ok.csv")
	require.NoError(t, os.WriteFile(good, []byte("a,b\n1,2\n3,4\n"), 0o644))

	out, stderr, err := execute(t, "analyze", good, filepath.Join(dir, "slides.pdf"), "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files failed")
	assert.Contains(t, stderr, "slides.pdf")

	var results []app.FileResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.NotNil(t, results[0].Result)
	assert.Equal(t, "UNSUPPORTED_FORMAT", results[1].Code)
}

func TestAnalyzeRejectsInvalidFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\n1\n"), 0o644))

	_, _, err := execute(t, "analyze", path, "--column-workers", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ColumnWorkers")
}

func TestGenerateValidation(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, "generate", filepath.Join(dir, "x.csv"), "--size", "huge")
	assert.ErrorContains(t, err, "unknown size")

	_, _, err = execute(t, "generate", filepath.Join(dir, "x.parquet"), "--rows", "10")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestGenerateXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.xlsx")
	out, _, err := execute(t, "generate", path, "--rows", "50")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 50 rows")

	stdout, _, err := execute(t, "analyze", path, "--log-level", "error")
	require.NoError(t, err)
	var results []app.FileResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.NotNil(t, results[0].Result)
	assert.Equal(t, int64(50), results[0].Result.RowsRead)
}
