package profiling

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestDescribeSmallSample(t *testing.T) {
	shape, err := Describe([]float64{4, 1, math.NaN(), 3, 2})
	require.NoError(t, err)

	assert.Equal(t, 4, shape.N)
	assert.Equal(t, 1.0, shape.Min)
	assert.Equal(t, 4.0, shape.Max)
	assert.Equal(t, 2.5, shape.Median)
	assert.Equal(t, 1.5, shape.Q25)
	assert.Equal(t, 3.5, shape.Q75)
	assert.InDelta(t, 0, shape.Skewness, 1e-12)
	assert.Equal(t, 0, shape.Outliers)
	assert.False(t, math.IsNaN(shape.NormalityP))
}

func TestDescribeConstantPopulation(t *testing.T) {
	shape, err := Describe([]float64{2, 2, 2, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, 2.0, shape.Median)
	assert.True(t, math.IsNaN(shape.Skewness))
	assert.True(t, math.IsNaN(shape.NormalityP))
	assert.False(t, shape.IsNormal)
}

func TestDescribeSingleValue(t *testing.T) {
	shape, err := Describe([]float64{7})
	require.NoError(t, err)
	assert.Equal(t, 1, shape.N)
	assert.Equal(t, 7.0, shape.Q25)
	assert.Equal(t, 7.0, shape.Q75)
	assert.Equal(t, 0, shape.Outliers)

	shape, err = Describe([]float64{math.NaN(), 3, math.NaN()})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(shape.Q25))
	assert.False(t, math.IsNaN(shape.Q75))
	assert.Equal(t, 3.0, shape.Median)
}

func TestDescribeTwoValues(t *testing.T) {
	shape, err := Describe([]float64{1, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, shape.N)
	assert.False(t, math.IsNaN(shape.Q25))
	assert.False(t, math.IsNaN(shape.Q75))
	assert.LessOrEqual(t, shape.Q25, shape.Q75)
	assert.Equal(t, 0, shape.Outliers)
}

func TestDescribeEmpty(t *testing.T) {
	_, err := Describe(nil)
	assert.Error(t, err)
	_, err = Describe([]float64{math.NaN()})
	assert.Error(t, err)
}

func TestDescribeNormality(t *testing.T) {
	src := rand.NewPCG(1, 2)
	normal := distuv.Normal{Mu: 10, Sigma: 2, Src: src}
	exp := distuv.Exponential{Rate: 1, Src: src}

	gauss := make([]float64, 2000)
	skewed := make([]float64, 2000)
	for i := range gauss {
		gauss[i] = normal.Rand()
		skewed[i] = exp.Rand()
	}

	shape, err := Describe(gauss)
	require.NoError(t, err)
	assert.InDelta(t, 0, shape.Skewness, 0.2)
	assert.InDelta(t, 0, shape.ExcessKurtosis, 0.4)

	shape, err = Describe(skewed)
	require.NoError(t, err)
	assert.Greater(t, shape.Skewness, 1.0)
	assert.False(t, shape.IsNormal)
	assert.Greater(t, shape.Outliers, 0)
}

func TestDescribeCountsOutliers(t *testing.T) {
	shape, err := Describe([]float64{1, 2, 3, 4, 5, 6, 7, 8, 100})
	require.NoError(t, err)
	assert.Equal(t, 1, shape.Outliers)
}
