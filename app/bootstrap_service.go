package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"bootfit/domain/core"
	"bootfit/domain/model"
	"bootfit/domain/timeseries"
	"bootfit/internal"
	"bootfit/internal/bootstrap"
	"bootfit/internal/compress"
	"bootfit/internal/errors"
	"bootfit/internal/fitter"
	"bootfit/internal/metrics"
	"bootfit/ports"

	"golang.org/x/sync/semaphore"
)

// BootstrapService fits a model, bootstraps its parameters and persists the result
type BootstrapService struct {
	engine       ports.Engine
	newOptimizer ports.OptimizerFactory
	store        ports.ResultStore
	cfg          bootstrap.Config
	compression  compress.Type
	metrics      *metrics.BootstrapMetrics
	runs         *semaphore.Weighted
	logger       *internal.Logger
}

// ServiceDeps wires a BootstrapService
type ServiceDeps struct {
	Engine       ports.Engine
	NewOptimizer ports.OptimizerFactory
	Store        ports.ResultStore
	Config       bootstrap.Config
	Compression  compress.Type
	// MaxConcurrent bounds simultaneous runs.
	MaxConcurrent int
	Metrics       *metrics.BootstrapMetrics
	Logger        *internal.Logger
}

// BootstrapRequest defines the inputs of one fit-and-bootstrap run
type BootstrapRequest struct {
	Definition model.Definition
	Observed   *timeseries.Timeseries
	// Parameters are the fitted parameters with bounds and starting values.
	Parameters       []model.Parameter
	Fit              fitter.Options
	BootstrapMethods []string
	NumIteration     int
	Synthesizer      bootstrap.SynthesizerConfig
	Progress         bootstrap.ProgressFunc
}

// RunOutcome is a persisted bootstrap run
type RunOutcome struct {
	ID          string            `json:"id"`
	Fingerprint core.Hash         `json:"fingerprint"`
	BaseChisq   float64           `json:"base_chisq"`
	Result      *bootstrap.Result `json:"-"`
	RuntimeMs   int64             `json:"runtime_ms"`
}

// NewBootstrapService creates a bootstrap service
func NewBootstrapService(deps ServiceDeps) (*BootstrapService, error) {
	if deps.Engine == nil || deps.NewOptimizer == nil || deps.Store == nil {
		return nil, errors.InvalidInput("bootstrap service requires an engine, an optimizer factory and a store")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if _, err := compress.GetCodec(deps.Compression); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	maxConcurrent := deps.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &BootstrapService{
		engine:       deps.Engine,
		newOptimizer: deps.NewOptimizer,
		store:        deps.Store,
		cfg:          deps.Config,
		compression:  deps.Compression,
		metrics:      deps.Metrics,
		runs:         semaphore.NewWeighted(int64(maxConcurrent)),
		logger:       logger.With("BootstrapService"),
	}, nil
}

// Fit performs the base fit and returns the snapshot the bootstrap starts from
func (s *BootstrapService) Fit(ctx context.Context, req BootstrapRequest) (*model.Snapshot, error) {
	if req.Observed == nil {
		return nil, errors.InvalidInput("observations are required")
	}
	if err := req.Definition.Validate(); err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	return fitter.BaseSnapshot(ctx, s.engine, s.newOptimizer(), req.Definition, req.Observed,
		req.Parameters, req.Fit, req.BootstrapMethods)
}

// Run fits, bootstraps and stores. It blocks while MaxConcurrent runs are active.
func (s *BootstrapService) Run(ctx context.Context, req BootstrapRequest) (*RunOutcome, error) {
	if req.NumIteration <= 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("number of iterations must be positive, got %d", req.NumIteration))
	}
	if err := s.runs.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.runs.Release(1)
	if s.metrics != nil {
		s.metrics.RunStarted()
		defer s.metrics.RunStopped()
	}

	startTime := time.Now()
	snap, err := s.Fit(ctx, req)
	if err != nil {
		return nil, err
	}
	fingerprint, err := snapshotFingerprint(snap)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fingerprint model")
	}
	s.logger.Info("base fit of %s (%s): redchi %.4g", snap.Definition.Name, fingerprint.Short(), snap.BaseChisq)

	deps := bootstrap.Dependencies{
		Engine:       s.engine,
		NewOptimizer: s.newOptimizer,
		Logger:       s.logger,
		Progress:     req.Progress,
	}
	if s.metrics != nil {
		deps.Observer = s.metrics
	}
	orch, err := bootstrap.NewOrchestrator(s.cfg, deps)
	if err != nil {
		return nil, err
	}
	result, err := orch.Run(ctx, snap, req.NumIteration, req.Synthesizer)
	if err != nil {
		return nil, err
	}

	blob, err := bootstrap.Serialize(result, s.compression)
	if err != nil {
		return nil, err
	}
	stored := &ports.StoredResult{
		ID:           result.RunID,
		ModelName:    snap.Definition.Name,
		Fingerprint:  fingerprint.String(),
		NumIteration: result.NumIteration,
		ErrorCount:   result.BootstrapErrorCount,
		Rejected:     result.RejectedCount,
		Partial:      result.Partial,
		CreatedAt:    time.Now().UTC(),
		Blob:         blob,
	}
	// Persist even when ctx was cancelled: the partial result is still valid.
	if err := s.store.Save(context.WithoutCancel(ctx), stored); err != nil {
		return nil, err
	}

	return &RunOutcome{
		ID:          stored.ID,
		Fingerprint: fingerprint,
		BaseChisq:   snap.BaseChisq,
		Result:      result,
		RuntimeMs:   time.Since(startTime).Milliseconds(),
	}, nil
}

// Get loads and decodes a stored result
func (s *BootstrapService) Get(ctx context.Context, id string) (*bootstrap.Result, *ports.StoredResult, error) {
	if _, err := core.ParseRunID(id); err != nil {
		return nil, nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	stored, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	result, err := bootstrap.Deserialize(stored.Blob)
	if err != nil {
		return nil, nil, err
	}
	return result, stored, nil
}

// List returns stored run summaries, newest first
func (s *BootstrapService) List(ctx context.Context, limit int) ([]*ports.StoredResult, error) {
	return s.store.List(ctx, limit)
}

// Delete removes a stored run
func (s *BootstrapService) Delete(ctx context.Context, id string) error {
	if _, err := core.ParseRunID(id); err != nil {
		return errors.WithCode(errors.CodeInvalidInput, err)
	}
	return s.store.Delete(ctx, id)
}

// snapshotFingerprint hashes the definition and the raw observation bits.
// Observations may hold NaN, which JSON cannot encode.
func snapshotFingerprint(snap *model.Snapshot) (core.Hash, error) {
	def, err := core.Fingerprint(snap.Definition)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	buf.WriteString(def.String())
	for _, c := range snap.Observed.Columns {
		buf.WriteString("\x00" + c)
	}
	if err := binary.Write(&buf, binary.LittleEndian, snap.Observed.Times); err != nil {
		return "", err
	}
	for _, col := range snap.Observed.Values {
		if err := binary.Write(&buf, binary.LittleEndian, col); err != nil {
			return "", err
		}
	}
	return core.NewHash(buf.Bytes()), nil
}
