// Package reaction simulates first-order reaction networks.
//
// Every reaction in a first-order network consumes its reactant at a rate
// proportional to the reactant amount, so the whole network is the linear
// system dx/dt = A(k)x. On a uniform grid the exact solution advances by the
// matrix exponential exp(A·dt), which is computed once per simulation.
package reaction

import (
	"fmt"
	"math"
	"os"

	"bootfit/domain/model"
	"bootfit/domain/timeseries"
	apperrors "bootfit/internal/errors"
	"bootfit/ports"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Engine compiles reaction network definitions. It holds no state and is
// safe to share; the simulators it returns are not.
type Engine struct{}

var _ ports.Engine = (*Engine)(nil)

// NewEngine creates a reaction engine.
func NewEngine() *Engine {
	return &Engine{}
}

// ParseDefinition decodes a YAML model definition.
func ParseDefinition(data []byte) (model.Definition, error) {
	var def model.Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return model.Definition{}, fmt.Errorf("failed to parse model definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return model.Definition{}, err
	}
	return def, nil
}

// LoadDefinition reads a YAML model definition from path.
func LoadDefinition(path string) (model.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Definition{}, fmt.Errorf("failed to read model definition %s: %w", path, err)
	}
	return ParseDefinition(data)
}

// MarshalDefinition encodes a definition as YAML.
func MarshalDefinition(def model.Definition) ([]byte, error) {
	return yaml.Marshal(def)
}

type compiledReaction struct {
	from int
	to   int // -1 for degradation
	rate string
}

// Simulator is a compiled reaction network. Not safe for concurrent use.
type Simulator struct {
	name      string
	species   []string
	index     map[string]int
	initial   []float64
	defaults  map[string]float64
	reactions []compiledReaction

	a *mat.Dense
}

var _ ports.Simulator = (*Simulator)(nil)

// Compile validates def and builds a simulator for it.
func (e *Engine) Compile(def model.Definition) (ports.Simulator, error) {
	return Compile(def)
}

// Compile builds a simulator for def.
func Compile(def model.Definition) (*Simulator, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	n := len(def.Species)
	s := &Simulator{
		name:     def.Name,
		species:  def.SpeciesNames(),
		index:    make(map[string]int, n),
		initial:  make([]float64, n),
		defaults: def.ParameterValues(),
		a:        mat.NewDense(n, n, nil),
	}
	for i, sp := range def.Species {
		s.index[sp.Name] = i
		s.initial[i] = sp.Initial
	}
	for _, r := range def.Reactions {
		cr := compiledReaction{from: s.index[r.Reactant], to: -1, rate: r.Rate}
		if r.Product != "" {
			cr.to = s.index[r.Product]
		}
		s.reactions = append(s.reactions, cr)
	}
	return s, nil
}

// Species returns the species names in state order.
func (s *Simulator) Species() []string {
	return append([]string(nil), s.species...)
}

func (s *Simulator) rates(params map[string]float64) (map[string]float64, error) {
	rates := make(map[string]float64, len(s.defaults))
	for k, v := range s.defaults {
		rates[k] = v
	}
	for k, v := range params {
		if _, ok := s.defaults[k]; !ok {
			return nil, fmt.Errorf("model %q has no parameter %q", s.name, k)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, apperrors.SimulationFailure(fmt.Sprintf("invalid rate %s=%v", k, v))
		}
		rates[k] = v
	}
	return rates, nil
}

func (s *Simulator) buildMatrix(rates map[string]float64) {
	s.a.Zero()
	for _, r := range s.reactions {
		k := rates[r.rate]
		s.a.Set(r.from, r.from, s.a.At(r.from, r.from)-k)
		if r.to >= 0 {
			s.a.Set(r.to, r.from, s.a.At(r.to, r.from)+k)
		}
	}
}

func (s *Simulator) propagator(dt float64) *mat.Dense {
	var scaled, out mat.Dense
	scaled.Scale(dt, s.a)
	out.Exp(&scaled)
	return &out
}

// Simulate implements ports.Simulator.
func (s *Simulator) Simulate(params map[string]float64, start, end float64, numPoints int, columns []string) (*timeseries.Timeseries, error) {
	if numPoints < 1 {
		return nil, fmt.Errorf("simulate: need at least one point, got %d", numPoints)
	}
	if start < 0 || end < start || math.IsNaN(start) || math.IsNaN(end) {
		return nil, fmt.Errorf("simulate: invalid interval [%v, %v]", start, end)
	}
	if len(columns) == 0 {
		columns = s.species
	}
	colIdx := make([]int, len(columns))
	for i, c := range columns {
		idx, ok := s.index[c]
		if !ok {
			return nil, fmt.Errorf("simulate: unknown column %q", c)
		}
		colIdx[i] = idx
	}
	rates, err := s.rates(params)
	if err != nil {
		return nil, err
	}
	s.buildMatrix(rates)

	n := len(s.species)
	x := mat.NewVecDense(n, append([]float64(nil), s.initial...))
	next := mat.NewVecDense(n, nil)
	if start > 0 {
		next.MulVec(s.propagator(start), x)
		x, next = next, x
	}

	times := timeseries.Linspace(start, end, numPoints)
	out := timeseries.Zeros(columns, times)
	var step *mat.Dense
	if numPoints > 1 {
		step = s.propagator(times[1] - times[0])
	}
	for i := range times {
		for j, idx := range colIdx {
			v := x.AtVec(idx)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, apperrors.SimulationFailure(fmt.Sprintf("state diverged at t=%v", times[i]))
			}
			out.Values[j][i] = v
		}
		if step != nil && i < len(times)-1 {
			next.MulVec(step, x)
			x, next = next, x
		}
	}
	return out, nil
}
