package ports

import (
	"context"

	"bootfit/domain/model"
)

// ResidualFunc evaluates residuals (observed - simulated) for a parameter vector.
type ResidualFunc func(params []model.Parameter) []float64

// OptimizeResult is the outcome of one optimization.
type OptimizeResult struct {
	Parameters []model.Parameter
	// RedChi is the reduced chi-square of the residuals at Parameters.
	RedChi float64
	// Evaluations counts residual function calls.
	Evaluations int
	Method      string
}

// Optimizer minimizes the sum of squared residuals within parameter bounds.
type Optimizer interface {
	Optimize(ctx context.Context, residuals ResidualFunc, initial []model.Parameter, method string) (*OptimizeResult, error)
}

// OptimizerFactory builds an optimizer owned by a single worker.
type OptimizerFactory func() Optimizer
