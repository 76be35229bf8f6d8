package model

import (
	"fmt"
)

// Definition is a value-only description of a first-order reaction network.
// It carries no live simulation state and can be copied freely between workers.
type Definition struct {
	Name       string     `json:"name" yaml:"name"`
	Species    []Species  `json:"species" yaml:"species"`
	Parameters []Constant `json:"parameters" yaml:"parameters"`
	Reactions  []Reaction `json:"reactions" yaml:"reactions"`
}

// Species is a state variable with its initial amount.
type Species struct {
	Name    string  `json:"name" yaml:"name"`
	Initial float64 `json:"initial" yaml:"initial"`
}

// Constant is a named rate constant with its default value.
type Constant struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

// Reaction converts Reactant into Product at rate Rate*[Reactant].
// An empty Product is a degradation.
type Reaction struct {
	Name     string `json:"name" yaml:"name"`
	Reactant string `json:"reactant" yaml:"reactant"`
	Product  string `json:"product,omitempty" yaml:"product,omitempty"`
	Rate     string `json:"rate" yaml:"rate"`
}

// SpeciesNames lists species in declaration order.
func (d Definition) SpeciesNames() []string {
	out := make([]string, len(d.Species))
	for i, s := range d.Species {
		out[i] = s.Name
	}
	return out
}

// ParameterValues returns the default rate constants.
func (d Definition) ParameterValues() map[string]float64 {
	out := make(map[string]float64, len(d.Parameters))
	for _, c := range d.Parameters {
		out[c.Name] = c.Value
	}
	return out
}

// Validate checks that every reaction references declared species and constants.
func (d Definition) Validate() error {
	if len(d.Species) == 0 {
		return fmt.Errorf("model %q: no species", d.Name)
	}
	species := make(map[string]bool, len(d.Species))
	for _, s := range d.Species {
		if s.Name == "" {
			return fmt.Errorf("model %q: species with empty name", d.Name)
		}
		if species[s.Name] {
			return fmt.Errorf("model %q: duplicate species %q", d.Name, s.Name)
		}
		species[s.Name] = true
	}
	constants := make(map[string]bool, len(d.Parameters))
	for _, c := range d.Parameters {
		if constants[c.Name] {
			return fmt.Errorf("model %q: duplicate parameter %q", d.Name, c.Name)
		}
		constants[c.Name] = true
	}
	for _, r := range d.Reactions {
		if !species[r.Reactant] {
			return fmt.Errorf("model %q: reaction %s uses unknown reactant %q", d.Name, r.Name, r.Reactant)
		}
		if r.Product != "" && !species[r.Product] {
			return fmt.Errorf("model %q: reaction %s uses unknown product %q", d.Name, r.Name, r.Product)
		}
		if !constants[r.Rate] {
			return fmt.Errorf("model %q: reaction %s uses unknown rate %q", d.Name, r.Name, r.Rate)
		}
	}
	return nil
}
