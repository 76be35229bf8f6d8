package model

import (
	"fmt"
	"math"
)

// boundaryNudge is the fraction of the bound width used to move a value off a bound.
const boundaryNudge = 1e-3

// Parameter is a named model constant estimated by fitting, constrained to
// the open interval (Lower, Upper).
type Parameter struct {
	Name  string  `json:"name" yaml:"name"`
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
	Value float64 `json:"value" yaml:"value"`
}

// NewParameter validates the bounds and moves value strictly inside them.
// A NaN value starts at the midpoint.
func NewParameter(name string, lower, upper, value float64) (Parameter, error) {
	if name == "" {
		return Parameter{}, fmt.Errorf("parameter: empty name")
	}
	if math.IsNaN(lower) || math.IsNaN(upper) || !(lower < upper) {
		return Parameter{}, fmt.Errorf("parameter %s: invalid bounds [%v, %v]", name, lower, upper)
	}
	p := Parameter{Name: name, Lower: lower, Upper: upper, Value: value}
	p.Value = p.Adjust(value)
	return p, nil
}

// Adjust maps v into the open interval of the parameter bounds.
func (p Parameter) Adjust(v float64) float64 {
	width := p.Upper - p.Lower
	switch {
	case math.IsNaN(v):
		return p.Lower + width/2
	case v <= p.Lower:
		return p.Lower + boundaryNudge*width
	case v >= p.Upper:
		return p.Upper - boundaryNudge*width
	default:
		return v
	}
}

// WithValue returns a copy of p holding v (adjusted into bounds).
func (p Parameter) WithValue(v float64) Parameter {
	p.Value = p.Adjust(v)
	return p
}

// Validate checks the invariant Lower < Value < Upper.
func (p Parameter) Validate() error {
	if !(p.Lower < p.Value && p.Value < p.Upper) {
		return fmt.Errorf("parameter %s: value %v outside (%v, %v)", p.Name, p.Value, p.Lower, p.Upper)
	}
	return nil
}

// Names lists parameter names in order.
func Names(params []Parameter) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = p.Name
	}
	return out
}

// Values maps parameter names to their values.
func Values(params []Parameter) map[string]float64 {
	out := make(map[string]float64, len(params))
	for _, p := range params {
		out[p.Name] = p.Value
	}
	return out
}

// CopyParameters returns an independent slice.
func CopyParameters(params []Parameter) []Parameter {
	return append([]Parameter(nil), params...)
}
