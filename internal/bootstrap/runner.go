package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"bootfit/domain/model"
	"bootfit/domain/timeseries"
	"bootfit/internal"
	apperrors "bootfit/internal/errors"
	"bootfit/internal/fitter"
	"bootfit/ports"
)

// RunnerState is the position of a Runner in its lifecycle.
type RunnerState int

const (
	StateUninitialized RunnerState = iota
	StateInitialFitting
	StateReady
	StateSynthesizing
	StateRefitting
	StateGating
	StateAccepted
	StateRejected
	StateExhausted
)

var runnerStateNames = [...]string{
	"Uninitialized", "InitialFitting", "Ready", "Synthesizing", "Refitting",
	"Gating", "Accepted", "Rejected", "Exhausted",
}

func (s RunnerState) String() string {
	if s < 0 || int(s) >= len(runnerStateNames) {
		return fmt.Sprintf("RunnerState(%d)", int(s))
	}
	return runnerStateNames[s]
}

// WorkUnit is everything one worker needs. It is built once by the
// orchestrator and not modified afterwards.
type WorkUnit struct {
	Snapshot    *model.Snapshot
	Budget      int
	Synthesizer SynthesizerConfig
	WorkerIndex int
}

// RunnerDeps are the collaborators of a Runner. Engine must be safe to share;
// NewOptimizer is called once per runner.
type RunnerDeps struct {
	Engine       ports.Engine
	NewOptimizer ports.OptimizerFactory
	Config       Config
	Logger       *internal.Logger
	// OnAccepted, when set, is called after every accepted iteration.
	OnAccepted func()
	Observer   Observer
}

// Runner drives one worker's synthesize, refit, gate and accumulate loop.
// A Runner is single-use and owned by one goroutine.
type Runner struct {
	unit   WorkUnit
	deps   RunnerDeps
	logger *internal.Logger

	state      RunnerState
	attempts   int
	errorCount int
	rejected   int

	base   *fitter.FitResult
	names  []string
	values map[string][]float64
	stat   *timeseries.Statistic
}

// NewRunner validates the work unit and prepares a runner.
func NewRunner(unit WorkUnit, deps RunnerDeps) (*Runner, error) {
	if unit.Snapshot == nil || !unit.Snapshot.HasBaseFit() {
		return nil, apperrors.InvalidBaseFit("work unit has no fitted model snapshot")
	}
	if unit.Budget < 0 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("negative iteration budget %d", unit.Budget))
	}
	if deps.Engine == nil || deps.NewOptimizer == nil {
		return nil, apperrors.InvalidInput("runner requires an engine and an optimizer factory")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, apperrors.WithCode(apperrors.CodeConfigInvalid, err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Runner{
		unit:   unit,
		deps:   deps,
		logger: logger.With(fmt.Sprintf("Runner %d", unit.WorkerIndex)),
		state:  StateUninitialized,
	}, nil
}

// State returns the current lifecycle state.
func (r *Runner) State() RunnerState { return r.state }

// Attempts returns the number of refits attempted so far.
func (r *Runner) Attempts() int { return r.attempts }

// MaxAttempts is the refit attempt cap for this runner.
func (r *Runner) MaxAttempts() int { return r.deps.Config.IterationMultiplier * r.unit.Budget }

// Run executes the worker. It returns a nil result and an InitialFitFailure
// when the base model cannot be fit. A run stopped by the attempt cap or by
// ctx returns what was accepted so far with Partial set.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if r.state != StateUninitialized {
		return nil, fmt.Errorf("runner %d already ran", r.unit.WorkerIndex)
	}
	snap := r.unit.Snapshot
	cfg := r.deps.Config

	r.state = StateInitialFitting
	sim, err := r.deps.Engine.Compile(snap.Definition)
	if err != nil {
		r.state = StateExhausted
		return nil, apperrors.InitialFitFailure(0, err)
	}
	opt := r.deps.NewOptimizer()
	baseFitter, err := fitter.FromSnapshot(snap, sim, opt, snap.FitMethods)
	if err != nil {
		r.state = StateExhausted
		return nil, apperrors.InitialFitFailure(0, err)
	}
	if err := r.initialFit(ctx, baseFitter); err != nil {
		r.state = StateExhausted
		return nil, err
	}

	synth, err := NewSynthesizer(r.unit.Synthesizer, r.base.Fitted, r.base.Residuals, r.unit.WorkerIndex)
	if err != nil {
		r.state = StateExhausted
		return nil, err
	}
	methods := snap.BootstrapMethods
	if len(methods) == 0 {
		methods = snap.FitMethods
	}
	refitter, err := fitter.FromSnapshot(snap, sim, opt, methods)
	if err != nil {
		r.state = StateExhausted
		return nil, err
	}

	r.names = model.Names(r.base.Parameters)
	r.values = make(map[string][]float64, len(r.names))
	for _, name := range r.names {
		r.values[name] = make([]float64, 0, r.unit.Budget)
	}
	r.stat = timeseries.NewStatistic(r.base.Fitted, cfg.RetainSamples)
	r.state = StateReady

	accepted := 0
	canceled := false
	maxAttempts := r.MaxAttempts()
	for accepted < r.unit.Budget && r.attempts < maxAttempts {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		outcome := r.iterate(ctx, refitter, synth)
		if r.deps.Observer != nil {
			r.deps.Observer.AttemptFinished(outcome.Kind)
		}
		switch outcome.Kind {
		case Accepted:
			if err := r.accept(outcome); err != nil {
				r.state = StateExhausted
				return nil, err
			}
			accepted++
			if r.deps.OnAccepted != nil {
				r.deps.OnAccepted()
			}
		case Rejected:
			r.rejected++
			r.logger.Trace("attempt %d rejected: %s", r.attempts, outcome.Reason)
		case Failed:
			if errors.Is(outcome.Err, context.Canceled) || errors.Is(outcome.Err, context.DeadlineExceeded) {
				canceled = true
			} else {
				r.errorCount++
				r.logger.Debug("attempt %d failed: %v", r.attempts, outcome.Err)
			}
		}
		if canceled {
			break
		}
	}
	r.state = StateExhausted

	result, err := NewResult(r.names, r.values, r.stat, cfg.Percentiles())
	if err != nil {
		return nil, err
	}
	result.BootstrapErrorCount = r.errorCount
	result.RejectedCount = r.rejected
	result.Partial = accepted < r.unit.Budget
	if result.Partial {
		reason := "attempt cap"
		if canceled {
			reason = "cancellation"
		}
		r.logger.Warn("stopped by %s after %d attempts: %d/%d accepted, %d failed, %d rejected",
			reason, r.attempts, accepted, r.unit.Budget, r.errorCount, r.rejected)
	} else {
		r.logger.Debug("completed %d iterations in %d attempts", accepted, r.attempts)
	}
	return result, nil
}

// initialFit refits the base model, retrying up to MaxTries times.
func (r *Runner) initialFit(ctx context.Context, f *fitter.Fitter) error {
	var lastErr error
	tries := 0
	for tries < r.deps.Config.MaxTries {
		if err := ctx.Err(); err != nil {
			return apperrors.InitialFitFailure(tries, err)
		}
		tries++
		res, err := f.Fit(ctx, r.unit.Snapshot.Parameters)
		if err == nil {
			r.base = res
			return nil
		}
		lastErr = err
		r.logger.Debug("initial fit attempt %d failed: %v", tries, err)
	}
	r.logger.Warn("initial fit failed after %d attempts: %v", tries, lastErr)
	return apperrors.InitialFitFailure(tries, lastErr)
}

// iterate runs one pass: synthesize, refit from the base parameters, gate.
func (r *Runner) iterate(ctx context.Context, refitter *fitter.Fitter, synth Synthesizer) Outcome {
	r.state = StateSynthesizing
	observed := synth.Calculate()

	r.state = StateRefitting
	r.attempts++
	f, err := refitter.WithObserved(observed)
	if err != nil {
		return failedOutcome(apperrors.RefitFailure(err))
	}
	res, err := f.Fit(ctx, r.base.Parameters)
	if err != nil {
		if ctx.Err() != nil {
			return failedOutcome(ctx.Err())
		}
		return failedOutcome(apperrors.RefitFailure(err))
	}
	if res.Fitted.HasNaN() {
		return failedOutcome(apperrors.RefitFailure(fmt.Errorf("fitted trajectory is not finite")))
	}

	r.state = StateGating
	if ok, reason := Gate(res.Parameters, res.RedChi, r.base.RedChi, r.deps.Config.MaxChisqMult); !ok {
		r.state = StateRejected
		return rejectedOutcome(res.RedChi, reason)
	}
	r.state = StateAccepted
	return acceptedOutcome(res.Parameters, res.Fitted, res.RedChi)
}

func (r *Runner) accept(outcome Outcome) error {
	byName := model.Values(outcome.Parameters)
	for _, name := range r.names {
		if _, ok := byName[name]; !ok {
			return apperrors.SchemaMismatch("refit is missing parameter %q", name)
		}
	}
	if err := r.stat.Accumulate(outcome.Fitted); err != nil {
		return err
	}
	for _, name := range r.names {
		r.values[name] = append(r.values[name], byName[name])
	}
	return nil
}
