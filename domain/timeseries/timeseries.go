package timeseries

import (
	"fmt"
	"math"
)

// TimeColumn is the conventional name of the time axis in tabular data.
const TimeColumn = "time"

// Timeseries is a set of named columns sampled on a shared time grid.
// Values are stored per column: Values[c][i] is column c at Times[i].
type Timeseries struct {
	Columns []string    `json:"columns"`
	Times   []float64   `json:"times"`
	Values  [][]float64 `json:"values"`
}

// New builds a Timeseries and checks that every column has one value per time point.
func New(columns []string, times []float64, values [][]float64) (*Timeseries, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("timeseries: %d columns but %d value vectors", len(columns), len(values))
	}
	seen := make(map[string]struct{}, len(columns))
	for c, name := range columns {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("timeseries: duplicate column %q", name)
		}
		seen[name] = struct{}{}
		if len(values[c]) != len(times) {
			return nil, fmt.Errorf("timeseries: column %q has %d values for %d time points",
				name, len(values[c]), len(times))
		}
	}
	return &Timeseries{Columns: columns, Times: times, Values: values}, nil
}

// Zeros returns a Timeseries with the given schema and all values zero.
func Zeros(columns []string, times []float64) *Timeseries {
	values := make([][]float64, len(columns))
	for c := range values {
		values[c] = make([]float64, len(times))
	}
	return &Timeseries{
		Columns: append([]string(nil), columns...),
		Times:   append([]float64(nil), times...),
		Values:  values,
	}
}

// Linspace returns n evenly spaced points from start to end inclusive.
func Linspace(start, end float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}
	out := make([]float64, n)
	step := (end - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = end
	return out
}

// NumPoint is the number of time points.
func (ts *Timeseries) NumPoint() int { return len(ts.Times) }

// NumColumn is the number of value columns.
func (ts *Timeseries) NumColumn() int { return len(ts.Columns) }

// Start is the first time point, or 0 for an empty series.
func (ts *Timeseries) Start() float64 {
	if len(ts.Times) == 0 {
		return 0
	}
	return ts.Times[0]
}

// End is the last time point, or 0 for an empty series.
func (ts *Timeseries) End() float64 {
	if len(ts.Times) == 0 {
		return 0
	}
	return ts.Times[len(ts.Times)-1]
}

// ColumnIndex returns the position of name, or -1.
func (ts *Timeseries) ColumnIndex(name string) int {
	for i, c := range ts.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the values of the named column (not a copy).
func (ts *Timeseries) Column(name string) ([]float64, error) {
	idx := ts.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("timeseries: unknown column %q", name)
	}
	return ts.Values[idx], nil
}

// SubsetColumns returns a copy restricted to cols, in the order given.
func (ts *Timeseries) SubsetColumns(cols []string) (*Timeseries, error) {
	values := make([][]float64, len(cols))
	for i, name := range cols {
		col, err := ts.Column(name)
		if err != nil {
			return nil, err
		}
		values[i] = append([]float64(nil), col...)
	}
	return &Timeseries{
		Columns: append([]string(nil), cols...),
		Times:   append([]float64(nil), ts.Times...),
		Values:  values,
	}, nil
}

// SelectRows returns a copy holding only the given row indices.
func (ts *Timeseries) SelectRows(idxs []int) *Timeseries {
	times := make([]float64, len(idxs))
	for j, i := range idxs {
		times[j] = ts.Times[i]
	}
	values := make([][]float64, len(ts.Columns))
	for c := range ts.Columns {
		values[c] = make([]float64, len(idxs))
		for j, i := range idxs {
			values[c][j] = ts.Values[c][i]
		}
	}
	return &Timeseries{Columns: append([]string(nil), ts.Columns...), Times: times, Values: values}
}

// Copy returns a deep copy.
func (ts *Timeseries) Copy() *Timeseries {
	values := make([][]float64, len(ts.Values))
	for c := range ts.Values {
		values[c] = append([]float64(nil), ts.Values[c]...)
	}
	return &Timeseries{
		Columns: append([]string(nil), ts.Columns...),
		Times:   append([]float64(nil), ts.Times...),
		Values:  values,
	}
}

// SameSchema reports whether other has identical columns and time grid.
func (ts *Timeseries) SameSchema(other *Timeseries) bool {
	if other == nil || len(ts.Columns) != len(other.Columns) || len(ts.Times) != len(other.Times) {
		return false
	}
	for i := range ts.Columns {
		if ts.Columns[i] != other.Columns[i] {
			return false
		}
	}
	for i := range ts.Times {
		if ts.Times[i] != other.Times[i] {
			return false
		}
	}
	return true
}

// Flatten returns values ordered by time point, then column.
func (ts *Timeseries) Flatten() []float64 {
	out := make([]float64, 0, len(ts.Times)*len(ts.Columns))
	for i := range ts.Times {
		for c := range ts.Columns {
			out = append(out, ts.Values[c][i])
		}
	}
	return out
}

// Sub returns ts - other. Schemas must match.
func (ts *Timeseries) Sub(other *Timeseries) (*Timeseries, error) {
	if !ts.SameSchema(other) {
		return nil, fmt.Errorf("timeseries: cannot subtract series with different schema")
	}
	out := ts.Copy()
	for c := range out.Values {
		for i := range out.Values[c] {
			out.Values[c][i] -= other.Values[c][i]
		}
	}
	return out, nil
}

// HasNaN reports whether any value is NaN or infinite.
func (ts *Timeseries) HasNaN() bool {
	for c := range ts.Values {
		for _, v := range ts.Values[c] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

// Equal compares schema and values within tol.
func (ts *Timeseries) Equal(other *Timeseries, tol float64) bool {
	if !ts.SameSchema(other) {
		return false
	}
	for c := range ts.Values {
		for i := range ts.Values[c] {
			if math.Abs(ts.Values[c][i]-other.Values[c][i]) > tol {
				return false
			}
		}
	}
	return true
}
