package fitter_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"bootfit/domain/model"
	"bootfit/domain/timeseries"
	"bootfit/internal/fitter"
	"bootfit/internal/testkit"
	"bootfit/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSimulator struct {
	mock.Mock
}

func (m *mockSimulator) Simulate(params map[string]float64, start, end float64, numPoints int, columns []string) (*timeseries.Timeseries, error) {
	args := m.Called(params, start, end, numPoints, columns)
	ts, _ := args.Get(0).(*timeseries.Timeseries)
	return ts, args.Error(1)
}

type mockOptimizer struct {
	mock.Mock
}

func (m *mockOptimizer) Optimize(ctx context.Context, residuals ports.ResidualFunc, initial []model.Parameter, method string) (*ports.OptimizeResult, error) {
	args := m.Called(ctx, mock.Anything, initial, method)
	res, _ := args.Get(0).(*ports.OptimizeResult)
	return res, args.Error(1)
}

func TestNearestIndices(t *testing.T) {
	grid := []float64{0, 1, 2, 3, 4}
	tests := []struct {
		name    string
		targets []float64
		want    []int
	}{
		{name: "exact", targets: []float64{0, 2, 4}, want: []int{0, 2, 4}},
		{name: "between", targets: []float64{0.4, 0.6, 2.5}, want: []int{0, 1, 2}},
		{name: "outside", targets: []float64{-1, 9}, want: []int{0, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fitter.NearestIndices(grid, tt.targets))
		})
	}
}

func observedAB(t *testing.T) *timeseries.Timeseries {
	t.Helper()
	ts, err := timeseries.New([]string{"A", "B"}, []float64{0, 1, 2},
		[][]float64{{1, 2, math.NaN()}, {4, 5, 6}})
	require.NoError(t, err)
	return ts
}

func TestResiduals(t *testing.T) {
	obs := observedAB(t)
	sim := &mockSimulator{}
	params := []model.Parameter{{Name: "k", Lower: 0, Upper: 2, Value: 1}}
	sim.On("Simulate", map[string]float64{"k": 1.0}, 0.0, 2.0, 5, []string{"A", "B"}).
		Return(&timeseries.Timeseries{
			Columns: []string{"A", "B"},
			Times:   []float64{0, 0.5, 1, 1.5, 2},
			Values:  [][]float64{{1, 0, 1, 0, 1}, {3, 0, 3, 0, 3}},
		}, nil)
	sim.On("Simulate", map[string]float64{"k": 1.5}, 0.0, 2.0, 5, []string{"A", "B"}).
		Return(nil, errors.New("boom"))

	f, err := fitter.New(sim, &mockOptimizer{}, obs, fitter.Options{NumPoint: 5})
	require.NoError(t, err)

	// Observed times 0,1,2 map to grid rows 0,2,4; the NaN observation contributes zero.
	assert.Equal(t, []float64{0, 1, 1, 2, 0, 3}, f.Residuals(params))

	failed := f.Residuals([]model.Parameter{{Name: "k", Lower: 0, Upper: 2, Value: 1.5}})
	require.Len(t, failed, 6)
	for _, v := range failed {
		assert.Equal(t, fitter.LargeResidual, v)
	}
	sim.AssertExpectations(t)
}

func TestNewRejectsBadInput(t *testing.T) {
	obs := observedAB(t)
	_, err := fitter.New(nil, &mockOptimizer{}, obs, fitter.Options{})
	assert.Error(t, err)
	_, err = fitter.New(&mockSimulator{}, &mockOptimizer{}, obs, fitter.Options{Columns: []string{"Z"}})
	assert.Error(t, err)
	_, err = fitter.New(&mockSimulator{}, &mockOptimizer{}, obs, fitter.Options{EndTime: 1})
	assert.Error(t, err)

	f, err := fitter.New(&mockSimulator{}, &mockOptimizer{}, obs, fitter.Options{})
	require.NoError(t, err)
	other := timeseries.Zeros([]string{"A"}, []float64{0, 1, 2})
	_, err = f.WithObserved(other)
	assert.Error(t, err)
}

func TestFitKeepsBestMethod(t *testing.T) {
	obs := observedAB(t)
	sim := &mockSimulator{}
	sim.On("Simulate", mock.Anything, 0.0, 2.0, 3, []string{"A", "B"}).
		Return(&timeseries.Timeseries{
			Columns: []string{"A", "B"},
			Times:   []float64{0, 1, 2},
			Values:  [][]float64{{1, 2, 3}, {4, 5, 6}},
		}, nil)

	initial := []model.Parameter{{Name: "k", Lower: 0, Upper: 2, Value: 1}}
	better := []model.Parameter{{Name: "k", Lower: 0, Upper: 2, Value: 0.5}}
	worse := []model.Parameter{{Name: "k", Lower: 0, Upper: 2, Value: 1.9}}

	opt := &mockOptimizer{}
	opt.On("Optimize", mock.Anything, mock.Anything, initial, "broken").Return(nil, errors.New("diverged"))
	opt.On("Optimize", mock.Anything, mock.Anything, initial, "good").
		Return(&ports.OptimizeResult{Parameters: better, RedChi: 0.1, Method: "good"}, nil)
	opt.On("Optimize", mock.Anything, mock.Anything, better, "poor").
		Return(&ports.OptimizeResult{Parameters: worse, RedChi: 0.4, Method: "poor"}, nil)

	f, err := fitter.New(sim, opt, obs, fitter.Options{Methods: []string{"broken", "good", "poor"}})
	require.NoError(t, err)

	res, err := f.Fit(context.Background(), initial)
	require.NoError(t, err)
	assert.Equal(t, "good", res.Method)
	assert.Equal(t, 0.1, res.RedChi)
	assert.Equal(t, 0.5, res.Parameters[0].Value)
	assert.True(t, res.Fitted.SameSchema(obs))
	assert.Equal(t, 0.0, res.Residuals.Values[0][2], "NaN residual is zeroed")
	opt.AssertExpectations(t)

	allFail := &mockOptimizer{}
	allFail.On("Optimize", mock.Anything, mock.Anything, initial, "broken").Return(nil, errors.New("diverged"))
	f, err = fitter.New(sim, allFail, obs, fitter.Options{Methods: []string{"broken"}})
	require.NoError(t, err)
	_, err = f.Fit(context.Background(), initial)
	assert.EqualError(t, err, "diverged")
}

func TestBaseSnapshotRecoversChain(t *testing.T) {
	kit, err := testkit.NewTestKit()
	require.NoError(t, err)

	snap, err := kit.Snapshot(context.Background())
	require.NoError(t, err)
	require.NoError(t, snap.Validate())

	truth := testkit.GroundTruth()
	for _, p := range snap.Parameters {
		assert.InEpsilon(t, truth[p.Name], p.Value, 0.05, "parameter %s", p.Name)
	}
	assert.Greater(t, snap.BaseChisq, 0.0)
	assert.Less(t, snap.BaseChisq, 1e-3)
	assert.Equal(t, testkit.ChainSpecies, snap.Columns)
	assert.Equal(t, []string{"bfgs"}, snap.BootstrapMethods)
	assert.Equal(t, 30, snap.NumPoint)
}
