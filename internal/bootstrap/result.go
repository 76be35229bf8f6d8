package bootstrap

import (
	"fmt"
	"math"
	"strings"

	"bootfit/domain/timeseries"
	apperrors "bootfit/internal/errors"

	"github.com/montanaflynn/stats"
)

// Result aggregates accepted bootstrap iterations.
//
// ParameterDct holds NumIteration accepted values per parameter. MeanDct,
// StdDct and PercentileDct are always derived from ParameterDct and are
// recomputed, never combined, when results merge.
type Result struct {
	RunID        string               `json:"run_id"`
	NumIteration int                  `json:"num_iteration"`
	Parameters   []string             `json:"parameters"`
	ParameterDct map[string][]float64 `json:"parameter_dct"`
	// PercentileDct[p][i] is the Percentiles[i]-th percentile of parameter p.
	PercentileDct map[string][]float64 `json:"percentile_dct"`
	MeanDct       map[string]float64   `json:"mean_dct"`
	StdDct        map[string]float64   `json:"std_dct"`
	Percentiles   []float64            `json:"percentiles"`

	FittedStatistic *timeseries.Statistic `json:"-"`

	BootstrapErrorCount int `json:"bootstrap_error_count"`
	RejectedCount       int `json:"rejected_count"`
	FailedWorkers       int `json:"failed_workers"`
	// Partial is set when fewer iterations were accepted than requested.
	Partial bool `json:"partial"`
}

// NewResult builds a result from parameter populations and the fitted
// trajectory accumulator, and computes the summaries.
func NewResult(names []string, parameterDct map[string][]float64, fitted *timeseries.Statistic, percentiles []float64) (*Result, error) {
	if len(names) == 0 {
		return nil, apperrors.InvalidInput("result needs at least one parameter")
	}
	n := -1
	dct := make(map[string][]float64, len(names))
	for _, name := range names {
		values, ok := parameterDct[name]
		if !ok {
			return nil, apperrors.SchemaMismatch("no values for parameter %q", name)
		}
		if n >= 0 && len(values) != n {
			return nil, apperrors.SchemaMismatch("parameter %q has %d values, expected %d", name, len(values), n)
		}
		n = len(values)
		dct[name] = append([]float64(nil), values...)
	}
	if fitted != nil && fitted.Count() != n {
		return nil, apperrors.SchemaMismatch("fitted statistic holds %d trajectories for %d iterations", fitted.Count(), n)
	}
	r := &Result{
		NumIteration:    n,
		Parameters:      append([]string(nil), names...),
		ParameterDct:    dct,
		Percentiles:     append([]float64(nil), percentiles...),
		FittedStatistic: fitted,
	}
	r.summarize()
	return r, nil
}

func (r *Result) summarize() {
	r.MeanDct = make(map[string]float64, len(r.Parameters))
	r.StdDct = make(map[string]float64, len(r.Parameters))
	r.PercentileDct = make(map[string][]float64, len(r.Parameters))
	for _, name := range r.Parameters {
		data := stats.Float64Data(r.ParameterDct[name])
		mean, err := stats.Mean(data)
		if err != nil {
			mean = math.NaN()
		}
		std, err := stats.StandardDeviationPopulation(data)
		if err != nil {
			std = math.NaN()
		}
		r.MeanDct[name] = mean
		r.StdDct[name] = std
		pcts := make([]float64, len(r.Percentiles))
		for i, p := range r.Percentiles {
			pcts[i] = timeseries.Quantile(data, p)
		}
		r.PercentileDct[name] = pcts
	}
}

// Merge combines results in the order given. Nil entries are skipped.
// Counts are summed, parameter populations concatenated, summaries
// recomputed and fitted statistics merged pairwise.
func Merge(results []*Result) (*Result, error) {
	var parts []*Result
	for _, r := range results {
		if r != nil {
			parts = append(parts, r)
		}
	}
	if len(parts) == 0 {
		return nil, apperrors.InvalidInput("no results to merge")
	}
	first := parts[0]
	dct := make(map[string][]float64, len(first.Parameters))
	var fittedStats []*timeseries.Statistic
	merged := &Result{
		RunID:       first.RunID,
		Parameters:  append([]string(nil), first.Parameters...),
		Percentiles: append([]float64(nil), first.Percentiles...),
	}
	for _, part := range parts {
		if !sameStrings(part.Parameters, first.Parameters) {
			return nil, apperrors.SchemaMismatch("cannot merge results over parameters %v and %v", first.Parameters, part.Parameters)
		}
		if !sameFloats(part.Percentiles, first.Percentiles) {
			return nil, apperrors.SchemaMismatch("cannot merge results with percentiles %v and %v", first.Percentiles, part.Percentiles)
		}
		for _, name := range part.Parameters {
			dct[name] = append(dct[name], part.ParameterDct[name]...)
		}
		if part.FittedStatistic != nil {
			fittedStats = append(fittedStats, part.FittedStatistic)
		}
		merged.NumIteration += part.NumIteration
		merged.BootstrapErrorCount += part.BootstrapErrorCount
		merged.RejectedCount += part.RejectedCount
		merged.FailedWorkers += part.FailedWorkers
		merged.Partial = merged.Partial || part.Partial
	}
	merged.ParameterDct = dct
	if len(fittedStats) > 0 {
		st, err := timeseries.MergeAll(fittedStats)
		if err != nil {
			return nil, err
		}
		merged.FittedStatistic = st
	}
	for _, name := range merged.Parameters {
		if len(dct[name]) != merged.NumIteration {
			return nil, apperrors.SchemaMismatch("parameter %q has %d values for %d iterations", name, len(dct[name]), merged.NumIteration)
		}
	}
	merged.summarize()
	return merged, nil
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Params returns the mean of every parameter in Parameters order.
func (r *Result) Params() []float64 {
	out := make([]float64, len(r.Parameters))
	for i, name := range r.Parameters {
		out[i] = r.MeanDct[name]
	}
	return out
}

// Copy returns a deep copy.
func (r *Result) Copy() *Result {
	out := *r
	out.Parameters = append([]string(nil), r.Parameters...)
	out.Percentiles = append([]float64(nil), r.Percentiles...)
	out.ParameterDct = make(map[string][]float64, len(r.ParameterDct))
	for k, v := range r.ParameterDct {
		out.ParameterDct[k] = append([]float64(nil), v...)
	}
	out.PercentileDct = make(map[string][]float64, len(r.PercentileDct))
	for k, v := range r.PercentileDct {
		out.PercentileDct[k] = append([]float64(nil), v...)
	}
	out.MeanDct = make(map[string]float64, len(r.MeanDct))
	for k, v := range r.MeanDct {
		out.MeanDct[k] = v
	}
	out.StdDct = make(map[string]float64, len(r.StdDct))
	for k, v := range r.StdDct {
		out.StdDct[k] = v
	}
	if r.FittedStatistic != nil {
		out.FittedStatistic = r.FittedStatistic.Copy()
	}
	return &out
}

// Envelope is the pointwise summary of accepted fitted trajectories. Low and
// High are nil when samples were not retained.
type Envelope struct {
	Mean *timeseries.Timeseries
	Std  *timeseries.Timeseries
	Low  *timeseries.Timeseries
	High *timeseries.Timeseries
}

// FittedEnvelope summarizes the fitted trajectories using the result percentiles.
func (r *Result) FittedEnvelope() (*Envelope, error) {
	if r.FittedStatistic == nil {
		return nil, apperrors.InvalidInput("result has no fitted statistic")
	}
	env := &Envelope{Mean: r.FittedStatistic.Mean(), Std: r.FittedStatistic.Std()}
	if r.FittedStatistic.RetainsSamples() && len(r.Percentiles) >= 2 {
		low, err := r.FittedStatistic.Percentile(r.Percentiles[0])
		if err != nil {
			return nil, err
		}
		high, err := r.FittedStatistic.Percentile(r.Percentiles[len(r.Percentiles)-1])
		if err != nil {
			return nil, err
		}
		env.Low, env.High = low, high
	}
	return env, nil
}

// String renders a plain-text report.
func (r *Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bootstrap report\n")
	if r.RunID != "" {
		fmt.Fprintf(&b, "  run: %s\n", r.RunID)
	}
	fmt.Fprintf(&b, "  iterations: %d\n", r.NumIteration)
	fmt.Fprintf(&b, "  refit failures: %d\n", r.BootstrapErrorCount)
	fmt.Fprintf(&b, "  rejected refits: %d\n", r.RejectedCount)
	if r.FailedWorkers > 0 {
		fmt.Fprintf(&b, "  failed workers: %d\n", r.FailedWorkers)
	}
	if r.Partial {
		b.WriteString("  partial: fewer iterations accepted than requested\n")
	}
	for _, name := range r.Parameters {
		fmt.Fprintf(&b, "  %s: mean=%.6g std=%.6g", name, r.MeanDct[name], r.StdDct[name])
		for i, p := range r.Percentiles {
			fmt.Fprintf(&b, " p%g=%.6g", p, r.PercentileDct[name][i])
		}
		b.WriteString("\n")
	}
	return b.String()
}
