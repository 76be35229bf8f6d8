package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"bootfit/domain/core"
	"bootfit/domain/model"
	"bootfit/internal"
	apperrors "bootfit/internal/errors"
	"bootfit/ports"

	"golang.org/x/sync/errgroup"
)

// ProgressFunc receives (completed, total) accepted iterations.
type ProgressFunc func(completed, total int)

// Observer receives run events. Implementations must be safe for concurrent use.
type Observer interface {
	AttemptFinished(kind OutcomeKind)
	WorkerFinished(failed bool)
	RunFinished(result *Result, elapsed time.Duration)
}

// Dependencies are the collaborators shared by all workers of an orchestrator.
type Dependencies struct {
	Engine       ports.Engine
	NewOptimizer ports.OptimizerFactory
	Logger       *internal.Logger
	// Progress is called at most once per Config.ReportInterval accepted
	// iterations, never concurrently with itself.
	Progress ProgressFunc
	Observer Observer
}

// Orchestrator splits a bootstrap across parallel workers and merges their results.
type Orchestrator struct {
	cfg    Config
	deps   Dependencies
	logger *internal.Logger
}

// NewOrchestrator validates cfg and the dependencies.
func NewOrchestrator(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.WithCode(apperrors.CodeConfigInvalid, err)
	}
	if deps.Engine == nil || deps.NewOptimizer == nil {
		return nil, apperrors.InvalidInput("orchestrator requires an engine and an optimizer factory")
	}
	logger := deps.Logger
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger.With("Orchestrator")}, nil
}

// Config returns the orchestrator configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// WorkerCount is min(MaxWorkers, ceil(total/IterationsPerWorker), available CPUs),
// and at least one.
func (o *Orchestrator) WorkerCount(total int) int {
	n := (total + o.cfg.IterationsPerWorker - 1) / o.cfg.IterationsPerWorker
	if cpus := runtime.GOMAXPROCS(0); n > cpus {
		n = cpus
	}
	if o.cfg.MaxWorkers > 0 && n > o.cfg.MaxWorkers {
		n = o.cfg.MaxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Partition splits total as evenly as possible over workers, giving the
// remainder to the first workers.
func Partition(total, workers int) []int {
	if workers < 1 {
		return nil
	}
	out := make([]int, workers)
	base, extra := total/workers, total%workers
	for i := range out {
		out[i] = base
		if i < extra {
			out[i]++
		}
	}
	return out
}

// Run bootstraps snapshot with totalIterations accepted refits spread over
// the worker pool. Workers whose initial fit fails are excluded and counted
// in FailedWorkers; if every worker fails the error is BootstrapExhausted.
// Cancelling ctx stops the workers and merges what they accepted so far.
func (o *Orchestrator) Run(ctx context.Context, snapshot *model.Snapshot, totalIterations int, synth SynthesizerConfig) (*Result, error) {
	if snapshot == nil {
		return nil, apperrors.InvalidBaseFit("nil snapshot")
	}
	if err := snapshot.Validate(); err != nil {
		return nil, apperrors.WithCode(apperrors.CodeInvalidBaseFit, err)
	}
	if totalIterations <= 0 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("number of iterations must be positive, got %d", totalIterations))
	}
	start := time.Now()
	workers := o.WorkerCount(totalIterations)
	budgets := Partition(totalIterations, workers)

	units := make([]WorkUnit, workers)
	for i := range units {
		clone, err := snapshot.Clone()
		if err != nil {
			return nil, apperrors.WithCode(apperrors.CodeInternalError, err)
		}
		units[i] = WorkUnit{Snapshot: clone, Budget: budgets[i], Synthesizer: synth, WorkerIndex: i}
	}
	o.logger.Info("starting %d iterations on %d workers %v", totalIterations, workers, budgets)

	var mu sync.Mutex
	completed := 0
	onAccepted := func() {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if o.deps.Progress != nil && o.cfg.ReportInterval > 0 && completed%o.cfg.ReportInterval == 0 {
			o.deps.Progress(completed, totalIterations)
		}
	}

	results := make([]*Result, workers)
	workerErrs := make([]error, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range units {
		unit := units[i]
		g.Go(func() error {
			runner, err := NewRunner(unit, RunnerDeps{
				Engine:       o.deps.Engine,
				NewOptimizer: o.deps.NewOptimizer,
				Config:       o.cfg,
				Logger:       o.deps.Logger,
				OnAccepted:   onAccepted,
				Observer:     o.deps.Observer,
			})
			if err != nil {
				return err
			}
			res, err := runner.Run(gctx)
			if o.deps.Observer != nil {
				o.deps.Observer.WorkerFinished(res == nil)
			}
			if err != nil && !errors.Is(err, apperrors.ErrInitialFitFailure) {
				return err
			}
			results[unit.WorkerIndex] = res
			workerErrs[unit.WorkerIndex] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	var firstErr error
	for i, res := range results {
		if res != nil {
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = workerErrs[i]
		}
		o.logger.Warn("worker %d contributed nothing: %v", i, workerErrs[i])
	}
	if failed == workers {
		return nil, apperrors.BootstrapExhausted(workers, firstErr)
	}

	merged, err := Merge(results)
	if err != nil {
		return nil, err
	}
	merged.RunID = core.NewRunID().String()
	merged.FailedWorkers = failed
	merged.Partial = merged.Partial || merged.NumIteration < totalIterations
	elapsed := time.Since(start)
	if o.deps.Observer != nil {
		o.deps.Observer.RunFinished(merged, elapsed)
	}
	o.logger.Info("finished %d/%d iterations in %s (%d refit failures, %d rejected, %d failed workers)",
		merged.NumIteration, totalIterations, elapsed.Round(time.Millisecond),
		merged.BootstrapErrorCount, merged.RejectedCount, failed)
	return merged, nil
}
