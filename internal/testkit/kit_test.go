package testkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainDataGenerator_Deterministic(t *testing.T) {
	a, err := NewChainDataGenerator(DefaultChainConfig()).Observed()
	require.NoError(t, err)
	b, err := NewChainDataGenerator(DefaultChainConfig()).Observed()
	require.NoError(t, err)
	assert.True(t, a.Equal(b, 0))

	clean, err := NewChainDataGenerator(DefaultChainConfig()).Noiseless()
	require.NoError(t, err)
	assert.False(t, a.Equal(clean, 0))
	assert.True(t, a.Equal(clean, 0.1))
	assert.Equal(t, ChainSpecies, a.Columns)
	assert.Equal(t, 30, a.NumPoint())
	assert.Equal(t, 10.0, clean.Values[0][0])
}

func TestLinearChainDefinition(t *testing.T) {
	def := LinearChainDefinition()
	require.NoError(t, def.Validate())
	assert.Len(t, def.Reactions, 5)
	assert.Equal(t, GroundTruth(), def.ParameterValues())

	params := ChainParameters(1.2)
	require.Len(t, params, 5)
	assert.InDelta(t, 6.0, params[4].Value, 1e-12)
}

func TestInMemoryResultStore(t *testing.T) {
	RunResultStoreContract(t, NewInMemoryResultStore())
}
