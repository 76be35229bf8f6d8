package ports

import (
	"bootfit/domain/model"
	"bootfit/domain/timeseries"
)

// Simulator produces trajectories for one compiled model instance.
// Implementations are not required to be safe for concurrent use; each
// worker compiles its own.
type Simulator interface {
	// Simulate runs the model with the given parameter overrides over
	// numPoints evenly spaced times in [start, end] and returns the
	// requested columns (all species when columns is empty).
	Simulate(params map[string]float64, start, end float64, numPoints int, columns []string) (*timeseries.Timeseries, error)
}

// Engine compiles value-only model definitions into live simulators.
type Engine interface {
	Compile(def model.Definition) (Simulator, error)
}
