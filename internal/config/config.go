package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"bootfit/internal/bootstrap"
	"bootfit/internal/compress"
	"bootfit/internal/errors"

	"github.com/go-playground/validator/v10"
)

// Store backends.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig `validate:"required"`
	Store     StoreConfig  `validate:"required"`
	Database  DatabaseConfig
	Bootstrap BootstrapConfig `validate:"required"`
	Log       LogConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port            string        `validate:"required"`
	MaxConcurrent   int           `validate:"gte=1"`
	ShutdownTimeout time.Duration `validate:"gte=0"`
}

// StoreConfig selects where bootstrap results are persisted
type StoreConfig struct {
	Backend   string `validate:"required,oneof=badger postgres memory"`
	BadgerDir string `validate:"required_if=Backend badger"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// BootstrapConfig holds bootstrap engine settings
type BootstrapConfig struct {
	MaxChisqMult        float64 `validate:"gt=0"`
	IterationMultiplier int     `validate:"gte=1"`
	IterationsPerWorker int     `validate:"gte=1"`
	MaxTries            int     `validate:"gte=1"`
	MaxWorkers          int     `validate:"gte=0"`
	PercentileLow       float64 `validate:"gte=0,lte=100"`
	PercentileHigh      float64 `validate:"gte=0,lte=100,gtfield=PercentileLow"`
	ReportInterval      int     `validate:"gte=0"`
	RetainSamples       bool
	Compression         string `validate:"omitempty,oneof=none zstd lz4"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string
}

// EngineConfig converts the settings into the bootstrap engine configuration
func (b BootstrapConfig) EngineConfig() bootstrap.Config {
	return bootstrap.Config{
		MaxChisqMult:        b.MaxChisqMult,
		IterationMultiplier: b.IterationMultiplier,
		IterationsPerWorker: b.IterationsPerWorker,
		MaxTries:            b.MaxTries,
		MaxWorkers:          b.MaxWorkers,
		PercentileLow:       b.PercentileLow,
		PercentileHigh:      b.PercentileHigh,
		ReportInterval:      b.ReportInterval,
		RetainSamples:       b.RetainSamples,
	}
}

// CompressionType parses the configured blob compression
func (b BootstrapConfig) CompressionType() (compress.Type, error) {
	return compress.ParseType(b.Compression)
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:    *loadServerConfig(),
		Store:     *loadStoreConfig(),
		Database:  DatabaseConfig{URL: getEnvOrDefault("DATABASE_URL", "")},
		Bootstrap: *loadBootstrapConfig(),
		Log:       LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "INFO")},
	}

	if err := Validate(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// Validate checks struct constraints and cross-section requirements
func Validate(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if config.Store.Backend == BackendPostgres && config.Database.URL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required for the postgres store")
	}
	if err := config.Bootstrap.EngineConfig().Validate(); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	return nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            getEnvOrDefault("PORT", "8080"),
		MaxConcurrent:   getEnvIntOrDefault("MAX_CONCURRENT_RUNS", 2),
		ShutdownTimeout: getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func loadStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend:   strings.ToLower(getEnvOrDefault("STORE_BACKEND", BackendBadger)),
		BadgerDir: getEnvOrDefault("BADGER_DIR", "./data/results"),
	}
}

func loadBootstrapConfig() *BootstrapConfig {
	defaults := bootstrap.DefaultConfig()
	return &BootstrapConfig{
		MaxChisqMult:        getEnvFloatOrDefault("BOOTSTRAP_MAX_CHISQ_MULT", defaults.MaxChisqMult),
		IterationMultiplier: getEnvIntOrDefault("BOOTSTRAP_ITERATION_MULTIPLIER", defaults.IterationMultiplier),
		IterationsPerWorker: getEnvIntOrDefault("BOOTSTRAP_ITERATIONS_PER_WORKER", defaults.IterationsPerWorker),
		MaxTries:            getEnvIntOrDefault("BOOTSTRAP_MAX_TRIES", defaults.MaxTries),
		MaxWorkers:          getEnvIntOrDefault("BOOTSTRAP_MAX_WORKERS", defaults.MaxWorkers),
		PercentileLow:       getEnvFloatOrDefault("BOOTSTRAP_PERCENTILE_LOW", defaults.PercentileLow),
		PercentileHigh:      getEnvFloatOrDefault("BOOTSTRAP_PERCENTILE_HIGH", defaults.PercentileHigh),
		ReportInterval:      getEnvIntOrDefault("BOOTSTRAP_REPORT_INTERVAL", defaults.ReportInterval),
		RetainSamples:       getEnvBoolOrDefault("BOOTSTRAP_RETAIN_SAMPLES", defaults.RetainSamples),
		Compression:         strings.ToLower(getEnvOrDefault("BOOTSTRAP_COMPRESSION", compress.Zstd.String())),
	}
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

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
