package orchestrator

import (
	"fmt"

	"goprofile/domain/core"
	"goprofile/internal/classifier"
	"goprofile/internal/config"
	apperrors "goprofile/internal/errors"
	"goprofile/internal/multivariate"
)

// Config defines how one analysis run reads, samples and classifies
type Config struct {
	MaxRows          int64     `json:"max_rows"` // 0 reads the whole source
	ReservoirSize    int       `json:"reservoir_size"`
	MinReservoirSize int       `json:"min_reservoir_size"` // floor when shrinking under memory pressure
	MaxStride        int       `json:"max_stride"`
	Seed             int64     `json:"seed"` // 0 seeds from the clock
	Quantiles        []float64 `json:"quantiles"`
	BatchSize        int       `json:"batch_size"`
	ColumnWorkers    int       `json:"column_workers"`

	Classifier   classifier.Config   `json:"classifier"`
	Multivariate multivariate.Config `json:"-"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxRows:          0,
		ReservoirSize:    10000,
		MinReservoirSize: 100,
		MaxStride:        64,
		Seed:             0,
		Quantiles:        []float64{0.25, 0.5, 0.75, 0.9},
		BatchSize:        1024,
		ColumnWorkers:    1,
		Classifier:       classifier.DefaultConfig(),
		Multivariate:     multivariate.DefaultConfig(),
	}
}

// ConfigFrom maps the application configuration onto engine settings
func ConfigFrom(cfg config.AnalysisConfig) Config {
	c := DefaultConfig()
	c.MaxRows = cfg.MaxRows
	c.ReservoirSize = cfg.ReservoirSize
	c.Seed = cfg.Seed
	if len(cfg.Quantiles) > 0 {
		c.Quantiles = append([]float64(nil), cfg.Quantiles...)
	}
	c.BatchSize = cfg.BatchSize
	c.ColumnWorkers = cfg.ColumnWorkers
	c.Classifier.SampleSize = cfg.ClassifierSampleSize
	return c
}

// validate rejects settings that are programmer or configuration errors
func (c *Config) validate() error {
	if c.ReservoirSize < 0 {
		return configError("reservoir_size", fmt.Sprintf("must not be negative, got %d", c.ReservoirSize))
	}
	if c.BatchSize <= 0 {
		return configError("batch_size", fmt.Sprintf("must be positive, got %d", c.BatchSize))
	}
	if c.MaxRows < 0 {
		return configError("max_rows", fmt.Sprintf("must not be negative, got %d", c.MaxRows))
	}
	if len(c.Quantiles) == 0 {
		c.Quantiles = DefaultConfig().Quantiles
	}
	for _, q := range c.Quantiles {
		if !(q > 0 && q < 1) {
			return configError("quantiles", fmt.Sprintf("target %v is outside (0,1)", q))
		}
	}

	if c.ColumnWorkers < 1 {
		c.ColumnWorkers = 1
	}
	if c.MaxStride < 1 {
		c.MaxStride = 1
	}
	if c.MinReservoirSize <= 0 || c.MinReservoirSize > c.ReservoirSize {
		c.MinReservoirSize = c.ReservoirSize
	}
	if c.Multivariate.MinColumns == 0 {
		c.Multivariate = multivariate.DefaultConfig()
	}
	return nil
}

func configError(field, reason string) error {
	return apperrors.WithCode(apperrors.CodeConfigInvalid, core.NewConfigError(field, reason))
}
