package testkit

import (
	"fmt"
	"math/rand/v2"

	"bootfit/adapters/reaction"
	"bootfit/domain/model"
	"bootfit/domain/timeseries"

	"gonum.org/v1/gonum/stat/distuv"
)

// ChainGeneratorConfig configures the linear chain data generator
type ChainGeneratorConfig struct {
	NumPoint int     `json:"num_point"`
	EndTime  float64 `json:"end_time"`
	NoiseStd float64 `json:"noise_std"`
	Seed     uint64  `json:"seed"`
}

// DefaultChainConfig returns the fixture used across the bootstrap tests
func DefaultChainConfig() ChainGeneratorConfig {
	return ChainGeneratorConfig{
		NumPoint: 30,
		EndTime:  5,
		NoiseStd: 0.01,
		Seed:     42,
	}
}

// ChainSpecies are the species of the chain S1 -> S2 -> ... -> S6.
var ChainSpecies = []string{"S1", "S2", "S3", "S4", "S5", "S6"}

// GroundTruth returns the rate constants the observations are generated with.
func GroundTruth() map[string]float64 {
	return map[string]float64{"k1": 1, "k2": 2, "k3": 3, "k4": 4, "k5": 5}
}

// ChainParameterNames lists the chain rate constants in reaction order.
var ChainParameterNames = []string{"k1", "k2", "k3", "k4", "k5"}

// LinearChainDefinition is the five-reaction chain with S1 starting at 10.
func LinearChainDefinition() model.Definition {
	def := model.Definition{Name: "linear_chain"}
	for i, name := range ChainSpecies {
		sp := model.Species{Name: name}
		if i == 0 {
			sp.Initial = 10
		}
		def.Species = append(def.Species, sp)
	}
	truth := GroundTruth()
	for i, k := range ChainParameterNames {
		def.Parameters = append(def.Parameters, model.Constant{Name: k, Value: truth[k]})
		def.Reactions = append(def.Reactions, model.Reaction{
			Name:     fmt.Sprintf("J%d", i+1),
			Reactant: ChainSpecies[i],
			Product:  ChainSpecies[i+1],
			Rate:     k,
		})
	}
	return def
}

// ChainParameters returns bounded parameters starting at scale times the ground truth.
func ChainParameters(scale float64) []model.Parameter {
	truth := GroundTruth()
	out := make([]model.Parameter, 0, len(ChainParameterNames))
	for _, k := range ChainParameterNames {
		p, err := model.NewParameter(k, 0.01, 10, truth[k]*scale)
		if err != nil {
			panic(err)
		}
		out = append(out, p)
	}
	return out
}

// ChainDataGenerator produces noisy observations of the linear chain
type ChainDataGenerator struct {
	config ChainGeneratorConfig
	noise  distuv.Normal
}

// NewChainDataGenerator creates a new generator
func NewChainDataGenerator(config ChainGeneratorConfig) *ChainDataGenerator {
	return &ChainDataGenerator{
		config: config,
		noise: distuv.Normal{
			Mu:    0,
			Sigma: config.NoiseStd,
			Src:   rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15),
		},
	}
}

// Noiseless simulates the chain at the ground truth.
func (g *ChainDataGenerator) Noiseless() (*timeseries.Timeseries, error) {
	sim, err := reaction.Compile(LinearChainDefinition())
	if err != nil {
		return nil, err
	}
	return sim.Simulate(GroundTruth(), 0, g.config.EndTime, g.config.NumPoint, ChainSpecies)
}

// Observed returns the ground-truth trajectory plus Gaussian noise.
func (g *ChainDataGenerator) Observed() (*timeseries.Timeseries, error) {
	ts, err := g.Noiseless()
	if err != nil {
		return nil, err
	}
	if g.config.NoiseStd == 0 {
		return ts, nil
	}
	for c := range ts.Values {
		for i := range ts.Values[c] {
			ts.Values[c][i] += g.noise.Rand()
		}
	}
	return ts, nil
}
