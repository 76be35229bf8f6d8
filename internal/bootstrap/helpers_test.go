package bootstrap

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"bootfit/domain/model"
	"bootfit/domain/timeseries"
	"bootfit/ports"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// constantSimulator returns params["k"] for every column and time.
type constantSimulator struct{}

func (constantSimulator) Simulate(params map[string]float64, start, end float64, numPoints int, columns []string) (*timeseries.Timeseries, error) {
	ts := timeseries.Zeros(columns, timeseries.Linspace(start, end, numPoints))
	for c := range ts.Values {
		for i := range ts.Values[c] {
			ts.Values[c][i] = params["k"]
		}
	}
	return ts, nil
}

// stubEngine compiles constantSimulators and fails the first failFirst compiles.
type stubEngine struct {
	failFirst int32
	compiles  atomic.Int32
}

func (e *stubEngine) Compile(def model.Definition) (ports.Simulator, error) {
	if e.compiles.Add(1) <= e.failFirst {
		return nil, errors.New("engine unavailable")
	}
	return constantSimulator{}, nil
}

// fixedOptimizer always returns its parameter value with a fixed redchi.
type fixedOptimizer struct {
	value  float64
	redchi float64
}

func (o fixedOptimizer) Optimize(ctx context.Context, residuals ports.ResidualFunc, initial []model.Parameter, method string) (*ports.OptimizeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := model.CopyParameters(initial)
	params[0] = params[0].WithValue(o.value)
	return &ports.OptimizeResult{Parameters: params, RedChi: o.redchi, Method: method}, nil
}

// scriptedOptimizer plays back testify expectations keyed by method.
type scriptedOptimizer struct {
	mock.Mock
}

func (m *scriptedOptimizer) Optimize(ctx context.Context, residuals ports.ResidualFunc, initial []model.Parameter, method string) (*ports.OptimizeResult, error) {
	args := m.Called(method)
	res, _ := args.Get(0).(*ports.OptimizeResult)
	return res, args.Error(1)
}

func kParams(value float64) []model.Parameter {
	return []model.Parameter{{Name: "k", Lower: 0, Upper: 10, Value: value}}
}

func fitOf(value, redchi float64) *ports.OptimizeResult {
	return &ports.OptimizeResult{Parameters: kParams(value), RedChi: redchi, Method: "m"}
}

// constantSnapshot is a one-parameter model whose trajectory is the constant k.
func constantSnapshot(t *testing.T) *model.Snapshot {
	t.Helper()
	times := []float64{0, 1, 2}
	observed, err := timeseries.New([]string{"A"}, times, [][]float64{{1.1, 0.9, 1.0}})
	require.NoError(t, err)
	fitted, err := timeseries.New([]string{"A"}, append([]float64(nil), times...), [][]float64{{1, 1, 1}})
	require.NoError(t, err)
	residuals, err := observed.Sub(fitted)
	require.NoError(t, err)
	return &model.Snapshot{
		Definition: model.Definition{
			Name:       "constant",
			Species:    []model.Species{{Name: "A", Initial: 1}},
			Parameters: []model.Constant{{Name: "k", Value: 1}},
			Reactions:  []model.Reaction{{Name: "J1", Reactant: "A", Rate: "k"}},
		},
		Observed:         observed,
		Columns:          []string{"A"},
		Parameters:       kParams(1),
		BaseChisq:        1,
		Fitted:           fitted,
		Residuals:        residuals,
		NumPoint:         3,
		EndTime:          2,
		FitMethods:       []string{"m"},
		BootstrapMethods: []string{"m"},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.IterationsPerWorker = 5
	cfg.MaxWorkers = 1
	cfg.IterationMultiplier = 3
	cfg.MaxTries = 3
	cfg.ReportInterval = 0
	return cfg
}
