package api

import (
	"math"
	"strconv"
	"time"

	"bootfit/app"
	"bootfit/domain/model"
	"bootfit/domain/timeseries"
	"bootfit/internal/bootstrap"
	"bootfit/internal/fitter"
	"bootfit/ports"
)

// ObservedPayload is a time course in JSON. Null values are missing observations.
type ObservedPayload struct {
	Columns []string     `json:"columns"`
	Times   []float64    `json:"times"`
	Values  [][]*float64 `json:"values"`
}

// Timeseries converts the payload, mapping null to NaN.
func (p ObservedPayload) Timeseries() (*timeseries.Timeseries, error) {
	values := make([][]float64, len(p.Values))
	for c, col := range p.Values {
		values[c] = make([]float64, len(col))
		for i, v := range col {
			if v == nil {
				values[c][i] = math.NaN()
			} else {
				values[c][i] = *v
			}
		}
	}
	return timeseries.New(p.Columns, p.Times, values)
}

// RunRequest is the body of POST /api/runs.
type RunRequest struct {
	Model            model.Definition            `json:"model"`
	Observed         ObservedPayload             `json:"observed"`
	Parameters       []model.Parameter           `json:"parameters"`
	Columns          []string                    `json:"columns,omitempty"`
	NumPoint         int                         `json:"num_point,omitempty"`
	EndTime          float64                     `json:"end_time,omitempty"`
	FitMethods       []string                    `json:"fit_methods,omitempty"`
	BootstrapMethods []string                    `json:"bootstrap_methods,omitempty"`
	NumIteration     int                         `json:"num_iteration"`
	Synthesizer      bootstrap.SynthesizerConfig `json:"synthesizer"`
	// StreamID names the /api/events stream that receives progress.
	StreamID string `json:"stream_id,omitempty"`
}

// ServiceRequest builds the service request.
func (r RunRequest) ServiceRequest() (app.BootstrapRequest, error) {
	observed, err := r.Observed.Timeseries()
	if err != nil {
		return app.BootstrapRequest{}, err
	}
	params := make([]model.Parameter, len(r.Parameters))
	for i, p := range r.Parameters {
		if params[i], err = model.NewParameter(p.Name, p.Lower, p.Upper, p.Value); err != nil {
			return app.BootstrapRequest{}, err
		}
	}
	return app.BootstrapRequest{
		Definition: r.Model,
		Observed:   observed,
		Parameters: params,
		Fit: fitter.Options{
			Columns:  r.Columns,
			NumPoint: r.NumPoint,
			EndTime:  r.EndTime,
			Methods:  r.FitMethods,
		},
		BootstrapMethods: r.BootstrapMethods,
		NumIteration:     r.NumIteration,
		Synthesizer:      r.Synthesizer,
	}, nil
}

// finite maps NaN and infinities to JSON null.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ParameterSummary is one parameter of a RunView.
type ParameterSummary struct {
	Name        string              `json:"name"`
	Mean        *float64            `json:"mean"`
	Std         *float64            `json:"std"`
	Percentiles map[string]*float64 `json:"percentiles"`
	Samples     []float64           `json:"samples,omitempty"`
}

// RunView is the JSON representation of a stored run.
type RunView struct {
	ID                  string             `json:"id"`
	ModelName           string             `json:"model_name"`
	Fingerprint         string             `json:"fingerprint"`
	CreatedAt           time.Time          `json:"created_at"`
	NumIteration        int                `json:"num_iteration"`
	BootstrapErrorCount int                `json:"bootstrap_error_count"`
	RejectedCount       int                `json:"rejected_count"`
	FailedWorkers       int                `json:"failed_workers"`
	Partial             bool               `json:"partial"`
	BaseChisq           *float64           `json:"base_chisq,omitempty"`
	RuntimeMs           int64              `json:"runtime_ms,omitempty"`
	Parameters          []ParameterSummary `json:"parameters,omitempty"`
}

// NewRunView renders a result. Samples are included when withSamples is set.
func NewRunView(r *bootstrap.Result, stored *ports.StoredResult, withSamples bool) RunView {
	view := summaryView(stored)
	view.FailedWorkers = r.FailedWorkers
	for _, name := range r.Parameters {
		ps := ParameterSummary{
			Name:        name,
			Mean:        finite(r.MeanDct[name]),
			Std:         finite(r.StdDct[name]),
			Percentiles: make(map[string]*float64, len(r.Percentiles)),
		}
		for i, p := range r.Percentiles {
			ps.Percentiles[strconv.FormatFloat(p, 'g', -1, 64)] = finite(r.PercentileDct[name][i])
		}
		if withSamples {
			ps.Samples = r.ParameterDct[name]
		}
		view.Parameters = append(view.Parameters, ps)
	}
	return view
}

func summaryView(stored *ports.StoredResult) RunView {
	return RunView{
		ID:                  stored.ID,
		ModelName:           stored.ModelName,
		Fingerprint:         stored.Fingerprint,
		CreatedAt:           stored.CreatedAt,
		NumIteration:        stored.NumIteration,
		BootstrapErrorCount: stored.ErrorCount,
		RejectedCount:       stored.Rejected,
		Partial:             stored.Partial,
	}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
