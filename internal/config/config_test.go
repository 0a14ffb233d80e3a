package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goprofile/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10000, cfg.Analysis.ReservoirSize)
	assert.Equal(t, []float64{0.25, 0.5, 0.75, 0.9}, cfg.Analysis.Quantiles)
	assert.Equal(t, 100, cfg.Analysis.ClassifierSampleSize)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Empty(t, cfg.Server.DataRoot)
	assert.False(t, cfg.Server.AllowURLs)
	assert.False(t, cfg.Profiling.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GOPROFILE_MAX_ROWS", "5000")
	t.Setenv("GOPROFILE_RESERVOIR_SIZE", "250")
	t.Setenv("GOPROFILE_SEED", "42")
	t.Setenv("GOPROFILE_QUANTILES", "0.1, 0.5,0.99")
	t.Setenv("GOPROFILE_COLUMN_WORKERS", "3")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GOPROFILE_PPROF", "true")
	t.Setenv("GOPROFILE_PPROF_PORT", "6061")
	t.Setenv("GOPROFILE_DATA_ROOT", "/srv/tables")
	t.Setenv("GOPROFILE_ALLOW_URLS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.EqualValues(t, 5000, cfg.Analysis.MaxRows)
	assert.Equal(t, 250, cfg.Analysis.ReservoirSize)
	assert.EqualValues(t, 42, cfg.Analysis.Seed)
	assert.Equal(t, []float64{0.1, 0.5, 0.99}, cfg.Analysis.Quantiles)
	assert.Equal(t, 3, cfg.Analysis.ColumnWorkers)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
	assert.True(t, cfg.Profiling.Enabled)
	assert.Equal(t, "6061", cfg.Profiling.Port)
	assert.Equal(t, "/srv/tables", cfg.Server.DataRoot)
	assert.True(t, cfg.Server.AllowURLs)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"negative reservoir", "GOPROFILE_RESERVOIR_SIZE", "-1"},
		{"quantile out of range", "GOPROFILE_QUANTILES", "0.5,1.5"},
		{"quantile not a number", "GOPROFILE_QUANTILES", "median"},
		{"zero batch size", "GOPROFILE_BATCH_SIZE", "0"},
		{"unknown log level", "LOG_LEVEL", "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}
