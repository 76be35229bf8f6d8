package timeseries

import (
	"fmt"
	"math"
	"sort"

	apperrors "bootfit/internal/errors"

	"gonum.org/v1/gonum/stat"
)

// Statistic accumulates trajectories that share one time grid and column set
// and reports their pointwise mean, standard deviation and percentiles.
//
// Mean and variance are tracked per cell with Welford's update and combined
// across accumulators with the Chan et al. pairwise formula, so merge order
// only affects rounding. Percentiles need the raw samples, which are kept
// only when retention is enabled.
//
// A Statistic is owned by one goroutine. Accumulate is not safe for
// concurrent use, and neither are Mean, Std and Percentile, which fill
// internal caches on first read.
type Statistic struct {
	columns []string
	times   []float64
	retain  bool

	count   int
	mean    [][]float64
	m2      [][]float64
	samples [][][]float64

	meanCache *Timeseries
	stdCache  *Timeseries
	pctCache  map[float64]*Timeseries
}

// NewStatistic creates an empty accumulator with the schema of template.
func NewStatistic(template *Timeseries, retainSamples bool) *Statistic {
	s := &Statistic{
		columns: append([]string(nil), template.Columns...),
		times:   append([]float64(nil), template.Times...),
		retain:  retainSamples,
	}
	s.mean = zeroGrid(len(s.columns), len(s.times))
	s.m2 = zeroGrid(len(s.columns), len(s.times))
	if retainSamples {
		s.samples = make([][][]float64, len(s.columns))
		for c := range s.samples {
			s.samples[c] = make([][]float64, len(s.times))
		}
	}
	return s
}

func zeroGrid(numCol, numPoint int) [][]float64 {
	g := make([][]float64, numCol)
	for c := range g {
		g[c] = make([]float64, numPoint)
	}
	return g
}

// Count is the number of accumulated trajectories.
func (s *Statistic) Count() int { return s.count }

// Columns returns the column schema.
func (s *Statistic) Columns() []string { return append([]string(nil), s.columns...) }

// Times returns the time grid.
func (s *Statistic) Times() []float64 { return append([]float64(nil), s.times...) }

// RetainsSamples reports whether raw samples are kept for percentiles.
func (s *Statistic) RetainsSamples() bool { return s.retain }

func (s *Statistic) template() *Timeseries {
	return &Timeseries{Columns: s.columns, Times: s.times}
}

// Accumulate adds one trajectory.
func (s *Statistic) Accumulate(ts *Timeseries) error {
	if !s.template().SameSchema(ts) {
		return apperrors.SchemaMismatch("statistic: trajectory columns %v over %d points do not match %v over %d points",
			ts.Columns, ts.NumPoint(), s.columns, len(s.times))
	}
	s.count++
	n := float64(s.count)
	for c := range s.columns {
		for i := range s.times {
			x := ts.Values[c][i]
			delta := x - s.mean[c][i]
			s.mean[c][i] += delta / n
			s.m2[c][i] += delta * (x - s.mean[c][i])
			if s.retain {
				s.samples[c][i] = append(s.samples[c][i], x)
			}
		}
	}
	s.invalidate()
	return nil
}

func (s *Statistic) invalidate() {
	s.meanCache = nil
	s.stdCache = nil
	s.pctCache = nil
}

// Mean returns the pointwise mean trajectory. Zero when nothing was accumulated.
func (s *Statistic) Mean() *Timeseries {
	if s.meanCache == nil {
		out := Zeros(s.columns, s.times)
		for c := range s.columns {
			copy(out.Values[c], s.mean[c])
		}
		s.meanCache = out
	}
	return s.meanCache.Copy()
}

// Std returns the pointwise population standard deviation trajectory.
func (s *Statistic) Std() *Timeseries {
	if s.stdCache == nil {
		out := Zeros(s.columns, s.times)
		if s.count > 0 {
			n := float64(s.count)
			for c := range s.columns {
				for i := range s.times {
					out.Values[c][i] = math.Sqrt(math.Max(s.m2[c][i], 0) / n)
				}
			}
		}
		s.stdCache = out
	}
	return s.stdCache.Copy()
}

// Percentile returns the pointwise p-th percentile (0 <= p <= 100) trajectory.
func (s *Statistic) Percentile(p float64) (*Timeseries, error) {
	if !s.retain {
		return nil, fmt.Errorf("statistic: percentiles require sample retention")
	}
	if p < 0 || p > 100 {
		return nil, fmt.Errorf("statistic: percentile %v outside [0, 100]", p)
	}
	if cached, ok := s.pctCache[p]; ok {
		return cached.Copy(), nil
	}
	out := Zeros(s.columns, s.times)
	for c := range s.columns {
		for i := range s.times {
			out.Values[c][i] = Quantile(s.samples[c][i], p)
		}
	}
	if s.pctCache == nil {
		s.pctCache = make(map[float64]*Timeseries)
	}
	s.pctCache[p] = out
	return out.Copy(), nil
}

// Percentiles returns one trajectory per requested percentile.
func (s *Statistic) Percentiles(ps []float64) (map[float64]*Timeseries, error) {
	out := make(map[float64]*Timeseries, len(ps))
	for _, p := range ps {
		ts, err := s.Percentile(p)
		if err != nil {
			return nil, err
		}
		out[p] = ts
	}
	return out, nil
}

// Quantile returns the p-th percentile of values using linear interpolation
// of the empirical distribution. NaN for an empty population.
func Quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(p/100, stat.LinInterp, sorted, nil)
}

// Copy returns an independent accumulator with the same state.
func (s *Statistic) Copy() *Statistic {
	restored, err := RestoreStatistic(s.State())
	if err != nil {
		// State() is always self-consistent.
		panic(err)
	}
	return restored
}

// Merge combines two accumulators over disjoint trajectory sets into a new
// one equivalent to having accumulated their union.
func (s *Statistic) Merge(other *Statistic) (*Statistic, error) {
	if !s.template().SameSchema(other.template()) {
		return nil, apperrors.SchemaMismatch("statistic: cannot merge %v over %d points with %v over %d points",
			s.columns, len(s.times), other.columns, len(other.times))
	}
	if s.retain != other.retain {
		return nil, apperrors.SchemaMismatch("statistic: cannot merge accumulators with different sample retention")
	}
	out := NewStatistic(s.template(), s.retain)
	out.count = s.count + other.count
	na, nb, n := float64(s.count), float64(other.count), float64(out.count)
	for c := range s.columns {
		for i := range s.times {
			if out.count == 0 {
				continue
			}
			delta := other.mean[c][i] - s.mean[c][i]
			out.mean[c][i] = (na*s.mean[c][i] + nb*other.mean[c][i]) / n
			out.m2[c][i] = s.m2[c][i] + other.m2[c][i] + delta*delta*na*nb/n
			if s.retain {
				merged := make([]float64, 0, len(s.samples[c][i])+len(other.samples[c][i]))
				merged = append(merged, s.samples[c][i]...)
				out.samples[c][i] = append(merged, other.samples[c][i]...)
			}
		}
	}
	return out, nil
}

// MergeAll folds Merge over stats in order. Nil entries are skipped.
func MergeAll(stats []*Statistic) (*Statistic, error) {
	var acc *Statistic
	for _, st := range stats {
		if st == nil {
			continue
		}
		if acc == nil {
			acc = st.Copy()
			continue
		}
		merged, err := acc.Merge(st)
		if err != nil {
			return nil, err
		}
		acc = merged
	}
	if acc == nil {
		return nil, fmt.Errorf("statistic: nothing to merge")
	}
	return acc, nil
}

// StatisticState is the value snapshot of a Statistic used for persistence.
type StatisticState struct {
	Columns       []string      `json:"columns"`
	Times         []float64     `json:"times"`
	RetainSamples bool          `json:"retain_samples"`
	Count         int           `json:"count"`
	Mean          [][]float64   `json:"mean"`
	M2            [][]float64   `json:"m2"`
	Samples       [][][]float64 `json:"samples,omitempty"`
}

// State returns a deep copy of the accumulator state.
func (s *Statistic) State() StatisticState {
	st := StatisticState{
		Columns:       append([]string(nil), s.columns...),
		Times:         append([]float64(nil), s.times...),
		RetainSamples: s.retain,
		Count:         s.count,
		Mean:          copyGrid(s.mean),
		M2:            copyGrid(s.m2),
	}
	if s.retain {
		st.Samples = make([][][]float64, len(s.samples))
		for c := range s.samples {
			st.Samples[c] = copyGrid(s.samples[c])
		}
	}
	return st
}

// RestoreStatistic rebuilds an accumulator from a snapshot, validating shape.
func RestoreStatistic(st StatisticState) (*Statistic, error) {
	s := NewStatistic(&Timeseries{Columns: st.Columns, Times: st.Times}, st.RetainSamples)
	if st.Count < 0 {
		return nil, fmt.Errorf("statistic: negative count %d", st.Count)
	}
	if err := checkGrid(st.Mean, len(st.Columns), len(st.Times)); err != nil {
		return nil, fmt.Errorf("statistic: mean: %w", err)
	}
	if err := checkGrid(st.M2, len(st.Columns), len(st.Times)); err != nil {
		return nil, fmt.Errorf("statistic: m2: %w", err)
	}
	s.count = st.Count
	s.mean = copyGrid(st.Mean)
	s.m2 = copyGrid(st.M2)
	if st.RetainSamples {
		if len(st.Samples) != len(st.Columns) {
			return nil, fmt.Errorf("statistic: samples for %d columns, want %d", len(st.Samples), len(st.Columns))
		}
		for c := range st.Samples {
			if len(st.Samples[c]) != len(st.Times) {
				return nil, fmt.Errorf("statistic: samples for %d points, want %d", len(st.Samples[c]), len(st.Times))
			}
			for i := range st.Samples[c] {
				if len(st.Samples[c][i]) != st.Count {
					return nil, fmt.Errorf("statistic: %d samples at (%d,%d), want %d",
						len(st.Samples[c][i]), c, i, st.Count)
				}
				s.samples[c][i] = append([]float64(nil), st.Samples[c][i]...)
			}
		}
	}
	return s, nil
}

func checkGrid(g [][]float64, numCol, numPoint int) error {
	if len(g) != numCol {
		return fmt.Errorf("%d columns, want %d", len(g), numCol)
	}
	for c := range g {
		if len(g[c]) != numPoint {
			return fmt.Errorf("%d points, want %d", len(g[c]), numPoint)
		}
	}
	return nil
}

func copyGrid(g [][]float64) [][]float64 {
	out := make([][]float64, len(g))
	for c := range g {
		out[c] = append([]float64(nil), g[c]...)
	}
	return out
}
