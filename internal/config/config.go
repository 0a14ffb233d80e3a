package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"goprofile/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Analysis AnalysisConfig
	Memory   MemoryConfig
	Server    ServerConfig
	Profiling ProfilingConfig
	Log       LogConfig
}

// AnalysisConfig holds the streaming engine settings
type AnalysisConfig struct {
	MaxRows              int64     `validate:"gte=0"` // 0 means read the whole source
	ReservoirSize        int       `validate:"gte=0"`
	Seed                 int64     // 0 means non-deterministic sampling
	Quantiles            []float64 `validate:"min=1,dive,gt=0,lt=1"`
	ClassifierSampleSize int       `validate:"gt=0"`
	BatchSize            int       `validate:"gt=0"`
	ColumnWorkers        int       `validate:"gte=1"`
	FileWorkers          int       `validate:"gte=1"`
}

// MemoryConfig holds the memory-pressure monitor settings
type MemoryConfig struct {
	SoftLimitMB int `validate:"gte=0"` // 0 disables pressure monitoring
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port        string `validate:"required"`
	MaxUploadMB int    `validate:"gt=0"`
	DataRoot    string // directory the files endpoint may read; empty disables it
	AllowURLs   bool   // lets the files endpoint fetch http(s) sources
}

// ProfilingConfig holds the pprof listener settings
type ProfilingConfig struct {
	Enabled bool
	Port    string `validate:"required_if=Enabled true"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `validate:"oneof=ERROR WARN INFO DEBUG TRACE"`
}

// Default returns the configuration used when no environment overrides are set
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			MaxRows:              0,
			ReservoirSize:        10000,
			Seed:                 0,
			Quantiles:            []float64{0.25, 0.5, 0.75, 0.9},
			ClassifierSampleSize: 100,
			BatchSize:            1024,
			ColumnWorkers:        1,
			FileWorkers:          4,
		},
		Memory: MemoryConfig{SoftLimitMB: 0},
		Server:    ServerConfig{Port: "8080", MaxUploadMB: 256},
		Profiling: ProfilingConfig{Enabled: false, Port: "6060"},
		Log:       LogConfig{Level: "INFO"},
	}
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := Default()

	analysisConfig, err := loadAnalysisConfig(config.Analysis)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load analysis configuration")
	}
	config.Analysis = *analysisConfig

	config.Memory = MemoryConfig{
		SoftLimitMB: getEnvIntOrDefault("GOPROFILE_MEMORY_LIMIT_MB", config.Memory.SoftLimitMB),
	}
	config.Server = ServerConfig{
		Port:        getEnvOrDefault("PORT", config.Server.Port),
		MaxUploadMB: getEnvIntOrDefault("GOPROFILE_MAX_UPLOAD_MB", config.Server.MaxUploadMB),
		DataRoot:    getEnvOrDefault("GOPROFILE_DATA_ROOT", config.Server.DataRoot),
		AllowURLs:   getEnvBoolOrDefault("GOPROFILE_ALLOW_URLS", config.Server.AllowURLs),
	}
	config.Profiling = ProfilingConfig{
		Enabled: getEnvBoolOrDefault("GOPROFILE_PPROF", config.Profiling.Enabled),
		Port:    getEnvOrDefault("GOPROFILE_PPROF_PORT", config.Profiling.Port),
	}
	config.Log = LogConfig{
		Level: strings.ToUpper(getEnvOrDefault("LOG_LEVEL", config.Log.Level)),
	}

	if err := Validate(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadAnalysisConfig(defaults AnalysisConfig) (*AnalysisConfig, error) {
	quantiles := defaults.Quantiles
	if raw := os.Getenv("GOPROFILE_QUANTILES"); raw != "" {
		parsed, err := parseQuantiles(raw)
		if err != nil {
			return nil, err
		}
		quantiles = parsed
	}

	return &AnalysisConfig{
		MaxRows:              getEnvInt64OrDefault("GOPROFILE_MAX_ROWS", defaults.MaxRows),
		ReservoirSize:        getEnvIntOrDefault("GOPROFILE_RESERVOIR_SIZE", defaults.ReservoirSize),
		Seed:                 getEnvInt64OrDefault("GOPROFILE_SEED", defaults.Seed),
		Quantiles:            quantiles,
		ClassifierSampleSize: getEnvIntOrDefault("GOPROFILE_CLASSIFIER_SAMPLE", defaults.ClassifierSampleSize),
		BatchSize:            getEnvIntOrDefault("GOPROFILE_BATCH_SIZE", defaults.BatchSize),
		ColumnWorkers:        getEnvIntOrDefault("GOPROFILE_COLUMN_WORKERS", defaults.ColumnWorkers),
		FileWorkers:          getEnvIntOrDefault("GOPROFILE_FILE_WORKERS", defaults.FileWorkers),
	}, nil
}

// parseQuantiles parses a comma separated list like "0.25,0.5,0.75"
func parseQuantiles(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	quantiles := make([]float64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		q, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, errors.ConfigInvalid(fmt.Sprintf("GOPROFILE_QUANTILES: %q is not a number", part))
		}
		quantiles = append(quantiles, q)
	}
	return quantiles, nil
}

// Validate checks struct constraints and reports the first violation as CONFIG_INVALID
func Validate(config *Config) error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.ConfigInvalid(fmt.Sprintf("%s failed %q constraint (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
