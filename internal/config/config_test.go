package config

import (
	"testing"
	"time"

	"bootfit/internal/compress"
	apperrors "bootfit/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("BOOTSTRAP_MAX_CHISQ_MULT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, BackendBadger, cfg.Store.Backend)
	assert.Equal(t, 5.0, cfg.Bootstrap.MaxChisqMult)

	engine := cfg.Bootstrap.EngineConfig()
	assert.NoError(t, engine.Validate())
	assert.Equal(t, []float64{2.5, 97.5}, engine.Percentiles())

	ct, err := cfg.Bootstrap.CompressionType()
	require.NoError(t, err)
	assert.Equal(t, compress.Zstd, ct)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("BOOTSTRAP_MAX_WORKERS", "3")
	t.Setenv("BOOTSTRAP_PERCENTILE_LOW", "5")
	t.Setenv("BOOTSTRAP_PERCENTILE_HIGH", "95")
	t.Setenv("BOOTSTRAP_RETAIN_SAMPLES", "false")
	t.Setenv("BOOTSTRAP_COMPRESSION", "lz4")
	t.Setenv("BOOTSTRAP_ITERATIONS_PER_WORKER", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 3, cfg.Bootstrap.MaxWorkers)
	assert.Equal(t, 200, cfg.Bootstrap.IterationsPerWorker, "unparseable values fall back to the default")
	assert.False(t, cfg.Bootstrap.RetainSamples)
	assert.Equal(t, []float64{5, 95}, cfg.Bootstrap.EngineConfig().Percentiles())
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := map[string]map[string]string{
		"postgres without url": {"STORE_BACKEND": "postgres", "DATABASE_URL": ""},
		"unknown backend":      {"STORE_BACKEND": "s3"},
		"inverted percentiles": {"BOOTSTRAP_PERCENTILE_LOW": "90", "BOOTSTRAP_PERCENTILE_HIGH": "10"},
		"zero chisq mult":      {"BOOTSTRAP_MAX_CHISQ_MULT": "0"},
		"unknown compression":  {"BOOTSTRAP_COMPRESSION": "brotli"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
		})
	}
}
