// Package optimizer adapts gonum/optimize to bounded least-squares fitting.
package optimizer

import (
	"context"
	"fmt"
	"math"

	"bootfit/domain/model"
	"bootfit/ports"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// Supported methods.
const (
	MethodBFGS       = "bfgs"
	MethodLBFGS      = "lbfgs"
	MethodCG         = "cg"
	MethodNelderMead = "neldermead"
)

// Methods lists the accepted method names.
var Methods = []string{MethodBFGS, MethodLBFGS, MethodCG, MethodNelderMead}

// Settings tunes the minimizer.
type Settings struct {
	MaxIterations     int
	FunctionTolerance float64
	// GradientStep is the finite-difference step in the transformed space.
	GradientStep float64
}

// DefaultSettings returns settings suited to small kinetic models.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:     1000,
		FunctionTolerance: 1e-12,
		GradientStep:      1e-6,
	}
}

// Optimizer minimizes the sum of squared residuals. Bounds are enforced by
// the sine transform p = lo + (sin(u)+1)(hi-lo)/2, so the search itself is
// unconstrained.
type Optimizer struct {
	settings Settings
}

var _ ports.Optimizer = (*Optimizer)(nil)

// New creates an optimizer.
func New(settings Settings) *Optimizer {
	return &Optimizer{settings: settings}
}

// Factory returns a ports.OptimizerFactory producing optimizers with settings.
func Factory(settings Settings) ports.OptimizerFactory {
	return func() ports.Optimizer { return New(settings) }
}

func newMethod(name string) (optimize.Method, error) {
	switch name {
	case "", MethodBFGS:
		return &optimize.BFGS{}, nil
	case MethodLBFGS:
		return &optimize.LBFGS{}, nil
	case MethodCG:
		return &optimize.CG{}, nil
	case MethodNelderMead:
		return &optimize.NelderMead{}, nil
	default:
		return nil, fmt.Errorf("optimizer: unknown method %q", name)
	}
}

func toInternal(p model.Parameter) float64 {
	scaled := 2*(p.Value-p.Lower)/(p.Upper-p.Lower) - 1
	return math.Asin(math.Max(-1, math.Min(1, scaled)))
}

func toExternal(p model.Parameter, u float64) float64 {
	return p.Lower + (math.Sin(u)+1)*(p.Upper-p.Lower)/2
}

func withInternal(initial []model.Parameter, u []float64) []model.Parameter {
	out := model.CopyParameters(initial)
	for i := range out {
		out[i].Value = toExternal(out[i], u[i])
	}
	return out
}

func sumSquares(r []float64) float64 {
	var s float64
	for _, v := range r {
		s += v * v
	}
	if math.IsNaN(s) {
		return math.Inf(1)
	}
	return s
}

// Optimize implements ports.Optimizer.
func (o *Optimizer) Optimize(ctx context.Context, residuals ports.ResidualFunc, initial []model.Parameter, method string) (*ports.OptimizeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(initial) == 0 {
		return nil, fmt.Errorf("optimizer: no parameters to fit")
	}
	m, err := newMethod(method)
	if err != nil {
		return nil, err
	}

	evaluations := 0
	objective := func(u []float64) float64 {
		evaluations++
		return sumSquares(residuals(withInternal(initial, u)))
	}
	fdSettings := &fd.Settings{Formula: fd.Central, Step: o.settings.GradientStep}
	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, u []float64) {
			fd.Gradient(grad, objective, u, fdSettings)
		},
	}

	x0 := make([]float64, len(initial))
	for i, p := range initial {
		x0[i] = toInternal(p)
	}
	settings := &optimize.Settings{
		MajorIterations: o.settings.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   o.settings.FunctionTolerance,
			Relative:   o.settings.FunctionTolerance,
			Iterations: 20,
		},
	}

	res, minErr := optimize.Minimize(problem, x0, settings, m)
	if res == nil || res.X == nil {
		return nil, fmt.Errorf("optimizer: %s produced no result: %w", method, minErr)
	}
	// A line search that stalls near the optimum still leaves a usable location.
	if minErr != nil && (math.IsNaN(res.F) || math.IsInf(res.F, 0)) {
		return nil, fmt.Errorf("optimizer: %s failed: %w", method, minErr)
	}

	fitted := withInternal(initial, res.X)
	for i := range fitted {
		fitted[i].Value = fitted[i].Adjust(fitted[i].Value)
	}
	final := residuals(fitted)
	if len(final) == 0 {
		return nil, fmt.Errorf("optimizer: residual function returned no values")
	}
	ssr := sumSquares(final)
	if math.IsInf(ssr, 0) {
		return nil, fmt.Errorf("optimizer: %s ended at non-finite objective", method)
	}
	dof := len(final) - len(fitted)
	if dof <= 0 {
		dof = len(final)
	}
	return &ports.OptimizeResult{
		Parameters:  fitted,
		RedChi:      ssr / float64(dof),
		Evaluations: evaluations + 1,
		Method:      method,
	}, nil
}
