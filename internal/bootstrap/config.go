// Package bootstrap estimates parameter uncertainty by refitting a model to
// resampled observations in parallel workers and merging what they accept.
package bootstrap

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config holds every tunable of a bootstrap run. It is captured into each
// work unit before workers start and never read from process-wide state.
type Config struct {
	// MaxChisqMult bounds an accepted refit: redchi <= MaxChisqMult * base redchi.
	MaxChisqMult float64 `json:"max_chisq_mult" validate:"gt=0"`
	// IterationMultiplier caps refit attempts at IterationMultiplier * budget.
	IterationMultiplier int `json:"iteration_multiplier" validate:"gte=1"`
	// IterationsPerWorker sizes the worker pool: ceil(total / IterationsPerWorker).
	IterationsPerWorker int `json:"iterations_per_worker" validate:"gte=1"`
	// MaxTries bounds the initial fit retries of each worker.
	MaxTries int `json:"max_tries" validate:"gte=1"`
	// MaxWorkers caps parallelism. Zero uses the available CPUs.
	MaxWorkers     int     `json:"max_workers" validate:"gte=0"`
	PercentileLow  float64 `json:"percentile_low" validate:"gte=0,lte=100"`
	PercentileHigh float64 `json:"percentile_high" validate:"gte=0,lte=100,gtfield=PercentileLow"`
	// ReportInterval is the progress callback cadence in accepted iterations.
	// Zero disables progress reporting.
	ReportInterval int `json:"report_interval" validate:"gte=0"`
	// RetainSamples keeps raw fitted trajectories for percentile envelopes.
	RetainSamples bool `json:"retain_samples"`
}

// DefaultConfig returns the standard bootstrap settings with a 95% interval.
func DefaultConfig() Config {
	return Config{
		MaxChisqMult:        5,
		IterationMultiplier: 10,
		IterationsPerWorker: 200,
		MaxTries:            10,
		MaxWorkers:          0,
		PercentileLow:       2.5,
		PercentileHigh:      97.5,
		ReportInterval:      1000,
		RetainSamples:       true,
	}
}

var validate = validator.New()

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid bootstrap config: %w", err)
	}
	return nil
}

// Percentiles returns the configured percentile pair.
func (c Config) Percentiles() []float64 {
	return []float64{c.PercentileLow, c.PercentileHigh}
}
