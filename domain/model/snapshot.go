package model

import (
	"fmt"

	"bootfit/domain/timeseries"

	"github.com/tiendc/go-deepcopy"
)

// Snapshot is the value-only state of a fitted model: the model definition,
// the data it was fit to, and the best-fit parameters with their quality.
// Workers receive their own Clone and never share one.
type Snapshot struct {
	Definition Definition `json:"definition"`
	// Observed holds the selected columns of the observations.
	Observed *timeseries.Timeseries `json:"observed"`
	Columns  []string               `json:"columns"`
	// Parameters holds the best-fit values with their bounds.
	Parameters []Parameter `json:"parameters"`
	// BaseChisq is the reduced chi-square of the base fit.
	BaseChisq float64 `json:"base_chisq"`
	// Fitted and Residuals are aligned with Observed.
	Fitted    *timeseries.Timeseries `json:"fitted"`
	Residuals *timeseries.Timeseries `json:"residuals"`

	NumPoint         int      `json:"num_point"`
	EndTime          float64  `json:"end_time"`
	FitMethods       []string `json:"fit_methods"`
	BootstrapMethods []string `json:"bootstrap_methods"`
}

// Clone returns a deep copy that shares no memory with s.
func (s *Snapshot) Clone() (*Snapshot, error) {
	var out Snapshot
	if err := deepcopy.Copy(&out, s); err != nil {
		return nil, fmt.Errorf("snapshot: deep copy failed: %w", err)
	}
	return &out, nil
}

// HasBaseFit reports whether the snapshot carries a usable base fit.
func (s *Snapshot) HasBaseFit() bool {
	return s != nil && s.Observed != nil && s.Fitted != nil && s.Residuals != nil && len(s.Parameters) > 0
}

// Validate checks internal consistency of a fitted snapshot.
func (s *Snapshot) Validate() error {
	if !s.HasBaseFit() {
		return fmt.Errorf("snapshot: missing base fit")
	}
	if !s.Observed.SameSchema(s.Fitted) || !s.Observed.SameSchema(s.Residuals) {
		return fmt.Errorf("snapshot: observed, fitted and residual series disagree on schema")
	}
	for _, p := range s.Parameters {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return s.Definition.Validate()
}
