package bootstrap

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bootfit/domain/model"
	apperrors "bootfit/internal/errors"
	"bootfit/internal/testkit"
	"bootfit/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		total, workers int
		want           []int
	}{
		{10, 3, []int{4, 3, 3}},
		{9, 3, []int{3, 3, 3}},
		{2, 4, []int{1, 1, 0, 0}},
		{7, 1, []int{7}},
		{5, 0, nil},
	}
	for _, tt := range tests {
		got := Partition(tt.total, tt.workers)
		assert.Equal(t, tt.want, got, "Partition(%d, %d)", tt.total, tt.workers)
		sum := 0
		for _, n := range got {
			sum += n
		}
		if tt.workers > 0 {
			assert.Equal(t, tt.total, sum)
		}
	}
}

func TestWorkerCount(t *testing.T) {
	cfg := testConfig()
	cfg.IterationsPerWorker = 10
	cfg.MaxWorkers = 0
	o, err := NewOrchestrator(cfg, Dependencies{Engine: &stubEngine{}, NewOptimizer: fixedFactory(1, 1)})
	require.NoError(t, err)

	assert.Equal(t, 1, o.WorkerCount(1))
	assert.Equal(t, 1, o.WorkerCount(10))
	assert.LessOrEqual(t, o.WorkerCount(1000), runtime.GOMAXPROCS(0))

	cfg.MaxWorkers = 2
	o, err = NewOrchestrator(cfg, Dependencies{Engine: &stubEngine{}, NewOptimizer: fixedFactory(1, 1)})
	require.NoError(t, err)
	assert.LessOrEqual(t, o.WorkerCount(1000), 2)
	assert.GreaterOrEqual(t, o.WorkerCount(1000), 1)
}

func fixedFactory(value, redchi float64) ports.OptimizerFactory {
	return func() ports.Optimizer { return fixedOptimizer{value: value, redchi: redchi} }
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts map[OutcomeKind]int
	workers  []bool
	runs     int
}

func (o *recordingObserver) AttemptFinished(kind OutcomeKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempts == nil {
		o.attempts = map[OutcomeKind]int{}
	}
	o.attempts[kind]++
}

func (o *recordingObserver) WorkerFinished(failed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workers = append(o.workers, failed)
}

func (o *recordingObserver) RunFinished(*Result, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs++
}

func TestOrchestratorProgressAndObserver(t *testing.T) {
	cfg := testConfig()
	cfg.ReportInterval = 2
	cfg.IterationsPerWorker = 3

	var calls [][2]int
	obs := &recordingObserver{}
	o, err := NewOrchestrator(cfg, Dependencies{
		Engine:       &stubEngine{},
		NewOptimizer: fixedFactory(1, 1),
		Progress:     func(done, total int) { calls = append(calls, [2]int{done, total}) },
		Observer:     obs,
	})
	require.NoError(t, err)

	res, err := o.Run(context.Background(), constantSnapshot(t), 6, SynthesizerConfig{Kind: SynthResiduals, Seed: 1})
	require.NoError(t, err)

	assert.Equal(t, 6, res.NumIteration)
	assert.False(t, res.Partial)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, [][2]int{{2, 6}, {4, 6}, {6, 6}}, calls)
	assert.Equal(t, 6, obs.attempts[Accepted])
	assert.Equal(t, []bool{false}, obs.workers)
	assert.Equal(t, 1, obs.runs)
}

func TestOrchestratorAllWorkersFail(t *testing.T) {
	cfg := testConfig()
	o, err := NewOrchestrator(cfg, Dependencies{
		Engine:       &stubEngine{failFirst: 100},
		NewOptimizer: fixedFactory(1, 1),
	})
	require.NoError(t, err)

	res, err := o.Run(context.Background(), constantSnapshot(t), 4, SynthesizerConfig{Kind: SynthResiduals})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrBootstrapExhausted)
}

func TestOrchestratorExcludesFailedWorker(t *testing.T) {
	if runtime.GOMAXPROCS(0) < 2 {
		t.Skip("needs at least two CPUs for two workers")
	}
	cfg := testConfig()
	cfg.MaxWorkers = 2
	cfg.IterationsPerWorker = 4
	o, err := NewOrchestrator(cfg, Dependencies{
		Engine:       &stubEngine{failFirst: 1},
		NewOptimizer: fixedFactory(1, 1),
	})
	require.NoError(t, err)

	res, err := o.Run(context.Background(), constantSnapshot(t), 8, SynthesizerConfig{Kind: SynthResiduals})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedWorkers)
	assert.Equal(t, 4, res.NumIteration)
	assert.True(t, res.Partial)
}

func TestOrchestratorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.IterationsPerWorker = 100
	cfg.ReportInterval = 1
	var seen atomic.Int32
	o, err := NewOrchestrator(cfg, Dependencies{
		Engine:       &stubEngine{},
		NewOptimizer: fixedFactory(1, 1),
		Progress: func(done, total int) {
			if seen.Add(1) == 3 {
				cancel()
			}
		},
	})
	require.NoError(t, err)

	res, err := o.Run(ctx, constantSnapshot(t), 50, SynthesizerConfig{Kind: SynthResiduals})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, 3, res.NumIteration)
}

func TestOrchestratorRejectsBadInput(t *testing.T) {
	o, err := NewOrchestrator(testConfig(), Dependencies{Engine: &stubEngine{}, NewOptimizer: fixedFactory(1, 1)})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), nil, 5, SynthesizerConfig{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidBaseFit)

	_, err = o.Run(context.Background(), &model.Snapshot{}, 5, SynthesizerConfig{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidBaseFit)

	_, err = o.Run(context.Background(), constantSnapshot(t), 0, SynthesizerConfig{})
	assert.Error(t, err)

	_, err = NewOrchestrator(testConfig(), Dependencies{})
	assert.Error(t, err)
}

func chainOrchestrator(t *testing.T, kit *testkit.TestKit, cfg Config) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(cfg, Dependencies{
		Engine:       kit.Engine(),
		NewOptimizer: kit.OptimizerFactory(),
	})
	require.NoError(t, err)
	return o
}

func TestLinearChainZeroVariance(t *testing.T) {
	if testing.Short() {
		t.Skip("fits the linear chain")
	}
	kit, err := testkit.NewTestKit()
	require.NoError(t, err)
	snap, err := kit.Snapshot(context.Background())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.IterationsPerWorker = 5
	res, err := chainOrchestrator(t, kit, cfg).Run(context.Background(), snap, 5,
		SynthesizerConfig{Kind: SynthDistribution, Distribution: DistNormal, Std: 0})
	require.NoError(t, err)

	assert.Equal(t, 5, res.NumIteration)
	base := model.Values(snap.Parameters)
	for _, name := range testkit.ChainParameterNames {
		assert.InDelta(t, 0, res.StdDct[name], 1e-3*base[name], name)
		assert.InEpsilon(t, base[name], res.MeanDct[name], 1e-2, name)
	}
}

func TestLinearChainRecoversRateConstants(t *testing.T) {
	if testing.Short() {
		t.Skip("fits the linear chain")
	}
	kit, err := testkit.NewTestKit()
	require.NoError(t, err)
	snap, err := kit.Snapshot(context.Background())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.MaxWorkers = 1
	cfg.IterationsPerWorker = 10
	cfg.IterationMultiplier = 10
	res, err := chainOrchestrator(t, kit, cfg).Run(context.Background(), snap, 10,
		SynthesizerConfig{Kind: SynthResiduals, Seed: 42})
	require.NoError(t, err)

	assert.Equal(t, 10, res.NumIteration)
	assert.False(t, res.Partial)
	truth := testkit.GroundTruth()
	for _, name := range testkit.ChainParameterNames {
		assert.Len(t, res.ParameterDct[name], 10, name)
		assert.InEpsilon(t, truth[name], res.MeanDct[name], 0.05, name)
		assert.Len(t, res.PercentileDct[name], 2, name)
	}
	env, err := res.FittedEnvelope()
	require.NoError(t, err)
	assert.Equal(t, testkit.ChainSpecies, env.Mean.Columns)
}
