package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goprofile/adapters/memory"
	"goprofile/internal"
	"goprofile/internal/config"
	"goprofile/ports"
)

var quiet = internal.NewLogger(internal.LogLevelError)

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestNewWiresAnalysis(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.Seed = 3
	cfg.Analysis.MaxRows = 2

	monitor := memory.NewStatic(ports.MemoryPressureLow)
	c, err := New(cfg, WithLogger(quiet), WithMemoryMonitor(monitor))
	require.NoError(t, err)
	assert.Same(t, quiet, c.Logger)
	assert.Equal(t, monitor, c.Memory)
	assert.Same(t, quiet, c.SourceOptions.Logger)
	assert.Equal(t, int64(2), c.Engine.Config().MaxRows)

	path := filepath.Join(t.TempDir(), "small.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,x\n2,y\n3,z\n"), 0o644))

	result, err := c.Analysis.AnalyzeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.RowsRead)
	assert.True(t, result.Sampled)
}

func TestNewRejectsInvalidAnalysisConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.BatchSize = 0
	_, err := New(cfg, WithLogger(quiet))
	require.Error(t, err)
}
