package reaction

import (
	stderrors "errors"
	"math"
	"testing"

	apperrors "bootfit/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoStepYAML = `
name: two_step
species:
  - name: A
    initial: 10
  - name: B
  - name: C
parameters:
  - name: k1
    value: 1
  - name: k2
    value: 3
reactions:
  - name: J1
    reactant: A
    product: B
    rate: k1
  - name: J2
    reactant: B
    product: C
    rate: k2
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(twoStepYAML))
	require.NoError(t, err)
	assert.Equal(t, "two_step", def.Name)
	assert.Equal(t, []string{"A", "B", "C"}, def.SpeciesNames())
	assert.Len(t, def.Reactions, 2)

	data, err := MarshalDefinition(def)
	require.NoError(t, err)
	again, err := ParseDefinition(data)
	require.NoError(t, err)
	assert.Equal(t, def, again)

	_, err = ParseDefinition([]byte("name: broken\nspecies: []\n"))
	assert.Error(t, err)
}

func TestSimulateMatchesAnalyticSolution(t *testing.T) {
	def, err := ParseDefinition([]byte(twoStepYAML))
	require.NoError(t, err)
	sim, err := NewEngine().Compile(def)
	require.NoError(t, err)

	k1, k2 := 0.7, 2.0
	ts, err := sim.Simulate(map[string]float64{"k1": k1, "k2": k2}, 0, 5, 26, []string{"A", "B", "C"})
	require.NoError(t, err)
	require.Equal(t, 26, ts.NumPoint())

	for i, tm := range ts.Times {
		a := 10 * math.Exp(-k1*tm)
		b := 10 * k1 / (k2 - k1) * (math.Exp(-k1*tm) - math.Exp(-k2*tm))
		assert.InDelta(t, a, ts.Values[0][i], 1e-8, "A at t=%v", tm)
		assert.InDelta(t, b, ts.Values[1][i], 1e-8, "B at t=%v", tm)
		assert.InDelta(t, 10.0, ts.Values[0][i]+ts.Values[1][i]+ts.Values[2][i], 1e-8, "mass at t=%v", tm)
	}
}

func TestSimulateOffsetStartAndColumns(t *testing.T) {
	def, err := ParseDefinition([]byte(twoStepYAML))
	require.NoError(t, err)
	sim, err := Compile(def)
	require.NoError(t, err)

	ts, err := sim.Simulate(nil, 1, 2, 3, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ts.Columns)
	assert.Equal(t, []float64{1, 1.5, 2}, ts.Times)
	assert.InDelta(t, 10*math.Exp(-1), ts.Values[0][0], 1e-9)
	assert.InDelta(t, 10*math.Exp(-2), ts.Values[0][2], 1e-9)

	single, err := sim.Simulate(nil, 0, 0, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, single.Columns)
	assert.Equal(t, 10.0, single.Values[0][0])
}

func TestSimulateErrors(t *testing.T) {
	def, err := ParseDefinition([]byte(twoStepYAML))
	require.NoError(t, err)
	sim, err := Compile(def)
	require.NoError(t, err)

	_, err = sim.Simulate(map[string]float64{"k9": 1}, 0, 1, 5, nil)
	assert.Error(t, err)

	_, err = sim.Simulate(map[string]float64{"k1": -1}, 0, 1, 5, nil)
	assert.True(t, stderrors.Is(err, apperrors.ErrSimulationFailure))

	_, err = sim.Simulate(nil, 0, 1, 0, nil)
	assert.Error(t, err)

	_, err = sim.Simulate(nil, 2, 1, 5, nil)
	assert.Error(t, err)

	_, err = sim.Simulate(nil, 0, 1, 5, []string{"Z"})
	assert.Error(t, err)
}
