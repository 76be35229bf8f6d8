// Package fitter fits a simulated model to observed timeseries data.
package fitter

import (
	"context"
	"fmt"
	"math"
	"sort"

	"bootfit/domain/model"
	"bootfit/domain/timeseries"
	apperrors "bootfit/internal/errors"
	"bootfit/ports"
)

// LargeResidual is the residual reported for every point when a simulation
// fails, so the optimizer moves away from that region.
const LargeResidual = 1e6

// Options describes the simulation grid and the optimizer methods.
type Options struct {
	// Columns selects the observed columns to fit. Empty means all.
	Columns []string
	// NumPoint is the number of simulation points. Zero uses the observed count.
	NumPoint int
	// EndTime is the simulation end. Zero uses the last observed time.
	EndTime float64
	// Methods are tried in order. Empty uses the optimizer default.
	Methods []string
}

// FitResult is the best fit found by Fit.
type FitResult struct {
	Parameters []model.Parameter
	RedChi     float64
	Method     string
	// Fitted is the simulation at the observed times; Residuals = observed - Fitted.
	Fitted    *timeseries.Timeseries
	Residuals *timeseries.Timeseries
}

// Fitter binds a simulator and an optimizer to one set of observations.
// Not safe for concurrent use.
type Fitter struct {
	sim      ports.Simulator
	opt      ports.Optimizer
	observed *timeseries.Timeseries
	columns  []string
	start    float64
	end      float64
	numPoint int
	indices  []int
	methods  []string
}

// New creates a fitter for observed.
func New(sim ports.Simulator, opt ports.Optimizer, observed *timeseries.Timeseries, opts Options) (*Fitter, error) {
	if sim == nil || opt == nil {
		return nil, apperrors.InvalidInput("fitter requires a simulator and an optimizer")
	}
	if observed == nil || observed.NumPoint() == 0 {
		return nil, apperrors.InvalidInput("fitter requires observed data")
	}
	columns := opts.Columns
	if len(columns) == 0 {
		columns = observed.Columns
	}
	selected, err := observed.SubsetColumns(columns)
	if err != nil {
		return nil, apperrors.WithCode(apperrors.CodeInvalidInput, err)
	}
	numPoint := opts.NumPoint
	if numPoint <= 0 {
		numPoint = observed.NumPoint()
	}
	end := opts.EndTime
	if end == 0 {
		end = observed.End()
	}
	start := observed.Start()
	if end < observed.End() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("end time %v precedes last observation %v", end, observed.End()))
	}
	methods := opts.Methods
	if len(methods) == 0 {
		methods = []string{""}
	}
	return &Fitter{
		sim:      sim,
		opt:      opt,
		observed: selected,
		columns:  append([]string(nil), columns...),
		start:    start,
		end:      end,
		numPoint: numPoint,
		indices:  NearestIndices(timeseries.Linspace(start, end, numPoint), selected.Times),
		methods:  append([]string(nil), methods...),
	}, nil
}

// FromSnapshot creates a fitter for the snapshot's observations using methods.
func FromSnapshot(snap *model.Snapshot, sim ports.Simulator, opt ports.Optimizer, methods []string) (*Fitter, error) {
	if snap == nil {
		return nil, apperrors.InvalidBaseFit("nil snapshot")
	}
	return New(sim, opt, snap.Observed, Options{
		Columns:  snap.Columns,
		NumPoint: snap.NumPoint,
		EndTime:  snap.EndTime,
		Methods:  methods,
	})
}

// WithObserved returns a fitter sharing the simulator, optimizer and grid but
// fitting other, which must have the same schema as the current observations.
func (f *Fitter) WithObserved(other *timeseries.Timeseries) (*Fitter, error) {
	if !f.observed.SameSchema(other) {
		return nil, apperrors.SchemaMismatch("observations do not match fitter schema")
	}
	out := *f
	out.observed = other
	return &out, nil
}

// Observed returns the fitted observations.
func (f *Fitter) Observed() *timeseries.Timeseries { return f.observed }

// Columns returns the fitted columns.
func (f *Fitter) Columns() []string { return append([]string(nil), f.columns...) }

// NearestIndices maps each target time to the index of the closest grid time.
// grid must be sorted ascending.
func NearestIndices(grid, targets []float64) []int {
	out := make([]int, len(targets))
	if len(grid) == 0 {
		return out
	}
	for i, t := range targets {
		j := sort.SearchFloat64s(grid, t)
		switch {
		case j == 0:
			out[i] = 0
		case j >= len(grid):
			out[i] = len(grid) - 1
		case t-grid[j-1] <= grid[j]-t:
			out[i] = j - 1
		default:
			out[i] = j
		}
	}
	return out
}

// Simulate returns the model trajectory at the observed times.
func (f *Fitter) Simulate(params []model.Parameter) (*timeseries.Timeseries, error) {
	full, err := f.sim.Simulate(model.Values(params), f.start, f.end, f.numPoint, f.columns)
	if err != nil {
		return nil, err
	}
	if full.NumPoint() != f.numPoint {
		return nil, apperrors.SimulationFailure(fmt.Sprintf("expected %d points, simulator returned %d", f.numPoint, full.NumPoint()))
	}
	out := full.SelectRows(f.indices)
	out.Times = append([]float64(nil), f.observed.Times...)
	return out, nil
}

// Residuals returns observed - simulated in time-major order. Missing
// observations contribute zero.
func (f *Fitter) Residuals(params []model.Parameter) []float64 {
	n := f.observed.NumPoint() * f.observed.NumColumn()
	sim, err := f.Simulate(params)
	if err != nil {
		out := make([]float64, n)
		for i := range out {
			out[i] = LargeResidual
		}
		return out
	}
	out := make([]float64, 0, n)
	for i := range f.observed.Times {
		for c := range f.columns {
			out = append(out, cleanResidual(f.observed.Values[c][i]-sim.Values[c][i]))
		}
	}
	return out
}

func cleanResidual(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return LargeResidual
	case math.IsInf(v, -1):
		return -LargeResidual
	default:
		return v
	}
}

// Fit runs each method in turn, starting each from the best parameters found
// so far, and returns the fit with the lowest reduced chi-square.
func (f *Fitter) Fit(ctx context.Context, initial []model.Parameter) (*FitResult, error) {
	if len(initial) == 0 {
		return nil, apperrors.InvalidInput("no parameters to fit")
	}
	var best *ports.OptimizeResult
	var lastErr error
	start := model.CopyParameters(initial)
	for _, method := range f.methods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := f.opt.Optimize(ctx, f.Residuals, start, method)
		if err != nil {
			lastErr = err
			continue
		}
		if res == nil || len(res.Parameters) == 0 || math.IsNaN(res.RedChi) {
			lastErr = fmt.Errorf("method %q produced no usable result", method)
			continue
		}
		if best == nil || res.RedChi < best.RedChi {
			best = res
			start = model.CopyParameters(res.Parameters)
		}
	}
	if best == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("no fit methods configured")
		}
		return nil, lastErr
	}

	fitted, err := f.Simulate(best.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate best fit: %w", err)
	}
	residuals, err := f.observed.Sub(fitted)
	if err != nil {
		return nil, err
	}
	for c := range residuals.Values {
		for i, v := range residuals.Values[c] {
			residuals.Values[c][i] = cleanResidual(v)
		}
	}
	return &FitResult{
		Parameters: model.CopyParameters(best.Parameters),
		RedChi:     best.RedChi,
		Method:     best.Method,
		Fitted:     fitted,
		Residuals:  residuals,
	}, nil
}

// BaseSnapshot fits def to observed and packages the result for bootstrapping.
func BaseSnapshot(ctx context.Context, engine ports.Engine, opt ports.Optimizer, def model.Definition,
	observed *timeseries.Timeseries, params []model.Parameter, opts Options, bootstrapMethods []string) (*model.Snapshot, error) {
	sim, err := engine.Compile(def)
	if err != nil {
		return nil, err
	}
	f, err := New(sim, opt, observed, opts)
	if err != nil {
		return nil, err
	}
	res, err := f.Fit(ctx, params)
	if err != nil {
		return nil, apperrors.InitialFitFailure(1, err)
	}
	if len(bootstrapMethods) == 0 {
		bootstrapMethods = f.methods
	}
	return &model.Snapshot{
		Definition:       def,
		Observed:         f.observed.Copy(),
		Columns:          f.Columns(),
		Parameters:       res.Parameters,
		BaseChisq:        res.RedChi,
		Fitted:           res.Fitted,
		Residuals:        res.Residuals,
		NumPoint:         f.numPoint,
		EndTime:          f.end,
		FitMethods:       append([]string(nil), f.methods...),
		BootstrapMethods: append([]string(nil), bootstrapMethods...),
	}, nil
}
