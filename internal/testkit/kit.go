package testkit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bootfit/adapters/optimizer"
	"bootfit/adapters/reaction"
	"bootfit/domain/model"
	"bootfit/domain/timeseries"
	apperrors "bootfit/internal/errors"
	"bootfit/internal/fitter"
	"bootfit/ports"
)

// TestKit provides the linear chain fixture and in-memory adapters
type TestKit struct {
	config   ChainGeneratorConfig
	observed *timeseries.Timeseries
	store    *InMemoryResultStore
}

// NewTestKit creates a test kit with the default chain configuration
func NewTestKit() (*TestKit, error) {
	return NewTestKitWithConfig(DefaultChainConfig())
}

// NewTestKitWithConfig creates a test kit generating observations from config
func NewTestKitWithConfig(config ChainGeneratorConfig) (*TestKit, error) {
	observed, err := NewChainDataGenerator(config).Observed()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chain observations: %w", err)
	}
	return &TestKit{
		config:   config,
		observed: observed,
		store:    NewInMemoryResultStore(),
	}, nil
}

// Config returns the generator configuration
func (t *TestKit) Config() ChainGeneratorConfig { return t.config }

// Definition returns the chain model definition
func (t *TestKit) Definition() model.Definition { return LinearChainDefinition() }

// Observed returns a copy of the noisy observations
func (t *TestKit) Observed() *timeseries.Timeseries { return t.observed.Copy() }

// Engine returns the reaction engine
func (t *TestKit) Engine() ports.Engine { return reaction.NewEngine() }

// OptimizerFactory returns the gonum optimizer factory
func (t *TestKit) OptimizerFactory() ports.OptimizerFactory {
	return optimizer.Factory(optimizer.DefaultSettings())
}

// ResultStore returns the shared in-memory store
func (t *TestKit) ResultStore() *InMemoryResultStore { return t.store }

// FitOptions returns fitter options covering every species on the observed grid
func (t *TestKit) FitOptions() fitter.Options {
	return fitter.Options{
		Columns:  ChainSpecies,
		NumPoint: t.config.NumPoint,
		EndTime:  t.config.EndTime,
		Methods:  []string{optimizer.MethodBFGS},
	}
}

// Snapshot fits the chain to the observations, starting 20% above the ground truth
func (t *TestKit) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	return fitter.BaseSnapshot(ctx, t.Engine(), t.OptimizerFactory()(), t.Definition(), t.Observed(),
		ChainParameters(1.2), t.FitOptions(), []string{optimizer.MethodBFGS})
}

// InMemoryResultStore implements ports.ResultStore with in-memory storage
type InMemoryResultStore struct {
	results map[string]ports.StoredResult
	mu      sync.RWMutex
}

var _ ports.ResultStore = (*InMemoryResultStore)(nil)

func NewInMemoryResultStore() *InMemoryResultStore {
	return &InMemoryResultStore{results: make(map[string]ports.StoredResult)}
}

func (s *InMemoryResultStore) Save(ctx context.Context, result *ports.StoredResult) error {
	if result == nil || result.ID == "" {
		return apperrors.InvalidInput("result id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *result
	stored.Blob = append([]byte(nil), result.Blob...)
	s.results[result.ID] = stored
	return nil
}

func (s *InMemoryResultStore) Load(ctx context.Context, id string) (*ports.StoredResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, exists := s.results[id]
	if !exists {
		return nil, apperrors.NotFound("result " + id)
	}
	stored.Blob = append([]byte(nil), stored.Blob...)
	return &stored, nil
}

func (s *InMemoryResultStore) List(ctx context.Context, limit int) ([]*ports.StoredResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ports.StoredResult, 0, len(s.results))
	for _, stored := range s.results {
		summary := stored
		summary.Blob = nil
		out = append(out, &summary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryResultStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.results[id]; !exists {
		return apperrors.NotFound("result " + id)
	}
	delete(s.results, id)
	return nil
}
