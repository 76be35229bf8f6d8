package bootstrap

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"bootfit/domain/timeseries"
	apperrors "bootfit/internal/errors"

	"gonum.org/v1/gonum/stat/distuv"
)

// SynthesizerKind selects how synthetic observations are produced.
type SynthesizerKind int

const (
	// SynthResiduals adds residuals of the base fit, drawn with replacement
	// per column, to the fitted trajectory.
	SynthResiduals SynthesizerKind = iota
	// SynthDistribution adds i.i.d. noise from a named distribution.
	SynthDistribution
)

func (k SynthesizerKind) String() string {
	switch k {
	case SynthResiduals:
		return "residuals"
	case SynthDistribution:
		return "distribution"
	default:
		return fmt.Sprintf("SynthesizerKind(%d)", int(k))
	}
}

// ParseSynthesizerKind maps a name to a kind. Empty means residuals.
func ParseSynthesizerKind(name string) (SynthesizerKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "residuals":
		return SynthResiduals, nil
	case "distribution":
		return SynthDistribution, nil
	default:
		return 0, fmt.Errorf("unknown synthesizer %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k SynthesizerKind) MarshalText() ([]byte, error) {
	if k != SynthResiduals && k != SynthDistribution {
		return nil, fmt.Errorf("unknown synthesizer kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *SynthesizerKind) UnmarshalText(text []byte) error {
	parsed, err := ParseSynthesizerKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Noise distributions for SynthDistribution.
const (
	DistNormal  = "normal"
	DistUniform = "uniform"
	DistLaplace = "laplace"
)

// SynthesizerConfig configures one synthesizer. Std is the standard deviation
// of the noise for every distribution; Mean is its location.
type SynthesizerConfig struct {
	Kind         SynthesizerKind `json:"kind"`
	Distribution string          `json:"distribution,omitempty"`
	Mean         float64         `json:"mean,omitempty"`
	Std          float64         `json:"std,omitempty"`
	// Seed is offset by the worker index so workers draw independent streams.
	Seed uint64 `json:"seed"`
}

// Synthesizer produces one synthetic observation trajectory per call.
type Synthesizer interface {
	Calculate() *timeseries.Timeseries
}

// NewSynthesizer builds the synthesizer selected by cfg around a base fit.
func NewSynthesizer(cfg SynthesizerConfig, fitted, residuals *timeseries.Timeseries, workerIndex int) (Synthesizer, error) {
	if fitted == nil || fitted.NumPoint() == 0 {
		return nil, apperrors.InvalidBaseFit("synthesizer requires a fitted trajectory")
	}
	src := rand.NewPCG(cfg.Seed+uint64(workerIndex), uint64(workerIndex)+1)

	switch cfg.Kind {
	case SynthResiduals:
		if residuals == nil || !residuals.SameSchema(fitted) {
			return nil, apperrors.InvalidBaseFit("residual synthesizer requires residuals aligned with the fitted trajectory")
		}
		return &residualSynthesizer{fitted: fitted.Copy(), residuals: residuals.Copy(), rng: rand.New(src)}, nil
	case SynthDistribution:
		if cfg.Std < 0 || math.IsNaN(cfg.Std) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("noise std must be non-negative, got %v", cfg.Std))
		}
		s := &distributionSynthesizer{fitted: fitted.Copy(), offset: cfg.Mean}
		if cfg.Std == 0 {
			return s, nil
		}
		switch strings.ToLower(cfg.Distribution) {
		case "", DistNormal:
			s.noise = distuv.Normal{Mu: cfg.Mean, Sigma: cfg.Std, Src: src}
		case DistUniform:
			half := cfg.Std * math.Sqrt(3)
			s.noise = distuv.Uniform{Min: cfg.Mean - half, Max: cfg.Mean + half, Src: src}
		case DistLaplace:
			s.noise = distuv.Laplace{Mu: cfg.Mean, Scale: cfg.Std / math.Sqrt2, Src: src}
		default:
			return nil, apperrors.InvalidInput(fmt.Sprintf("unknown noise distribution %q", cfg.Distribution))
		}
		return s, nil
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown synthesizer kind %d", int(cfg.Kind)))
	}
}

type residualSynthesizer struct {
	fitted    *timeseries.Timeseries
	residuals *timeseries.Timeseries
	rng       *rand.Rand
}

func (s *residualSynthesizer) Calculate() *timeseries.Timeseries {
	out := s.fitted.Copy()
	for c := range out.Values {
		pool := s.residuals.Values[c]
		for i := range out.Values[c] {
			out.Values[c][i] += pool[s.rng.IntN(len(pool))]
		}
	}
	return out
}

type distributionSynthesizer struct {
	fitted *timeseries.Timeseries
	// noise is nil for a zero-width distribution.
	noise  distuv.Rander
	offset float64
}

func (s *distributionSynthesizer) Calculate() *timeseries.Timeseries {
	out := s.fitted.Copy()
	if s.noise == nil {
		if s.offset != 0 {
			for c := range out.Values {
				for i := range out.Values[c] {
					out.Values[c][i] += s.offset
				}
			}
		}
		return out
	}
	for c := range out.Values {
		for i := range out.Values[c] {
			out.Values[c][i] += s.noise.Rand()
		}
	}
	return out
}
