package bootstrap

import (
	"encoding/json"
	"math"
	"testing"

	"bootfit/domain/timeseries"
	apperrors "bootfit/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseFit(t *testing.T) (*timeseries.Timeseries, *timeseries.Timeseries) {
	t.Helper()
	times := timeseries.Linspace(0, 1, 50)
	fitted := timeseries.Zeros([]string{"A", "B"}, times)
	residuals := timeseries.Zeros([]string{"A", "B"}, times)
	for i := range times {
		fitted.Values[0][i] = float64(i)
		fitted.Values[1][i] = 100 + float64(i)
		residuals.Values[0][i] = float64(i%3) - 1 // {-1, 0, 1}
		residuals.Values[1][i] = 10 * float64(i%2)
	}
	return fitted, residuals
}

func TestResidualSynthesizerDrawsPerColumn(t *testing.T) {
	fitted, residuals := baseFit(t)
	synth, err := NewSynthesizer(SynthesizerConfig{Kind: SynthResiduals, Seed: 1}, fitted, residuals, 0)
	require.NoError(t, err)

	for n := 0; n < 5; n++ {
		out := synth.Calculate()
		require.True(t, out.SameSchema(fitted))
		for i := range out.Times {
			assert.Contains(t, []float64{-1, 0, 1}, out.Values[0][i]-fitted.Values[0][i])
			assert.Contains(t, []float64{0, 10}, out.Values[1][i]-fitted.Values[1][i])
		}
	}
	assert.Equal(t, 0.0, fitted.Values[0][0], "fitted trajectory must not be modified")
}

func TestSynthesizerSeeding(t *testing.T) {
	fitted, residuals := baseFit(t)
	cfg := SynthesizerConfig{Kind: SynthResiduals, Seed: 99}

	a, err := NewSynthesizer(cfg, fitted, residuals, 2)
	require.NoError(t, err)
	b, err := NewSynthesizer(cfg, fitted, residuals, 2)
	require.NoError(t, err)
	other, err := NewSynthesizer(cfg, fitted, residuals, 3)
	require.NoError(t, err)

	first := a.Calculate()
	assert.True(t, first.Equal(b.Calculate(), 0), "same seed and worker must reproduce")
	assert.False(t, first.Equal(other.Calculate(), 0), "workers draw independent streams")
}

func TestDistributionSynthesizer(t *testing.T) {
	fitted, residuals := baseFit(t)

	exact, err := NewSynthesizer(SynthesizerConfig{Kind: SynthDistribution, Std: 0}, fitted, residuals, 0)
	require.NoError(t, err)
	assert.True(t, exact.Calculate().Equal(fitted, 0))

	for _, dist := range []string{DistNormal, DistUniform, DistLaplace} {
		t.Run(dist, func(t *testing.T) {
			synth, err := NewSynthesizer(SynthesizerConfig{Kind: SynthDistribution, Distribution: dist, Std: 0.5, Seed: 3}, fitted, nil, 0)
			require.NoError(t, err)
			var noise []float64
			for n := 0; n < 40; n++ {
				out := synth.Calculate()
				for c := range out.Values {
					for i := range out.Values[c] {
						noise = append(noise, out.Values[c][i]-fitted.Values[c][i])
					}
				}
			}
			var sum, sq float64
			for _, v := range noise {
				sum += v
				sq += v * v
			}
			mean := sum / float64(len(noise))
			std := math.Sqrt(sq/float64(len(noise)) - mean*mean)
			assert.InDelta(t, 0, mean, 0.05)
			assert.InDelta(t, 0.5, std, 0.05)
		})
	}
}

func TestNewSynthesizerErrors(t *testing.T) {
	fitted, residuals := baseFit(t)

	_, err := NewSynthesizer(SynthesizerConfig{Kind: SynthResiduals}, nil, residuals, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidBaseFit)

	_, err = NewSynthesizer(SynthesizerConfig{Kind: SynthResiduals}, fitted, nil, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidBaseFit)

	_, err = NewSynthesizer(SynthesizerConfig{Kind: SynthDistribution, Distribution: "cauchy", Std: 1}, fitted, nil, 0)
	assert.Error(t, err)

	_, err = NewSynthesizer(SynthesizerConfig{Kind: SynthDistribution, Std: -1}, fitted, nil, 0)
	assert.Error(t, err)

	_, err = NewSynthesizer(SynthesizerConfig{Kind: SynthesizerKind(7)}, fitted, residuals, 0)
	assert.Error(t, err)
}

func TestSynthesizerConfigJSON(t *testing.T) {
	cfg := SynthesizerConfig{Kind: SynthDistribution, Distribution: DistLaplace, Std: 0.1, Seed: 5}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"distribution"`)

	var back SynthesizerConfig
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cfg, back)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"jackknife"}`), &back))
}
