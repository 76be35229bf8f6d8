package model

import (
	"testing"

	"bootfit/domain/timeseries"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParameter(t *testing.T) {
	tests := []struct {
		name    string
		lower   float64
		upper   float64
		value   float64
		wantErr bool
		check   func(t *testing.T, p Parameter)
	}{
		{name: "inside", lower: 0, upper: 10, value: 5, check: func(t *testing.T, p Parameter) {
			assert.Equal(t, 5.0, p.Value)
		}},
		{name: "on lower bound", lower: 0, upper: 10, value: 0, check: func(t *testing.T, p Parameter) {
			assert.Greater(t, p.Value, 0.0)
			assert.Less(t, p.Value, 10.0)
		}},
		{name: "above upper bound", lower: 1, upper: 2, value: 7, check: func(t *testing.T, p Parameter) {
			assert.Less(t, p.Value, 2.0)
		}},
		{name: "zero width", lower: 3, upper: 3, value: 3, wantErr: true},
		{name: "inverted", lower: 4, upper: 1, value: 2, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewParameter("k", tt.lower, tt.upper, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, p.Validate())
			tt.check(t, p)
		})
	}
}

func chainDefinition() Definition {
	return Definition{
		Name:       "chain",
		Species:    []Species{{Name: "A", Initial: 1}, {Name: "B"}},
		Parameters: []Constant{{Name: "k", Value: 0.5}},
		Reactions:  []Reaction{{Name: "J1", Reactant: "A", Product: "B", Rate: "k"}},
	}
}

func TestDefinitionValidate(t *testing.T) {
	def := chainDefinition()
	require.NoError(t, def.Validate())
	assert.Equal(t, []string{"A", "B"}, def.SpeciesNames())
	assert.Equal(t, map[string]float64{"k": 0.5}, def.ParameterValues())

	bad := chainDefinition()
	bad.Reactions[0].Rate = "missing"
	assert.Error(t, bad.Validate())

	bad = chainDefinition()
	bad.Reactions[0].Product = "C"
	assert.Error(t, bad.Validate())
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	obs := timeseries.Zeros([]string{"A"}, []float64{0, 1})
	p, err := NewParameter("k", 0, 1, 0.5)
	require.NoError(t, err)
	snap := &Snapshot{
		Definition: chainDefinition(),
		Observed:   obs,
		Columns:    []string{"A"},
		Parameters: []Parameter{p},
		BaseChisq:  0.1,
		Fitted:     obs.Copy(),
		Residuals:  obs.Copy(),
	}
	require.NoError(t, snap.Validate())

	clone, err := snap.Clone()
	require.NoError(t, err)
	clone.Parameters[0].Value = 0.9
	clone.Observed.Values[0][0] = 42
	clone.Definition.Species[0].Initial = 7

	assert.Equal(t, 0.5, snap.Parameters[0].Value)
	assert.Equal(t, 0.0, snap.Observed.Values[0][0])
	assert.Equal(t, 1.0, snap.Definition.Species[0].Initial)
	assert.Equal(t, snap.BaseChisq, clone.BaseChisq)
}
