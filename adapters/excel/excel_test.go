package excel

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"bootfit/domain/timeseries"
	"bootfit/internal/bootstrap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseRows(t *testing.T) {
	ts, err := ParseRows([][]string{
		{"S1", " time ", "S2"},
		{"10", "0", "0"},
		{"", "0.5", "1.5"},
		{"", "", ""},
		{"7.5", "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, ts.Columns)
	assert.Equal(t, []float64{0, 0.5, 1}, ts.Times)
	assert.Equal(t, 10.0, ts.Values[0][0])
	assert.True(t, math.IsNaN(ts.Values[0][1]))
	assert.Equal(t, 1.5, ts.Values[1][1])
	assert.True(t, math.IsNaN(ts.Values[1][2]), "short rows pad with NaN")
}

func TestParseRowsErrors(t *testing.T) {
	tests := map[string][][]string{
		"header only":        {{"time", "A"}},
		"no species":         {{"time"}, {"0"}},
		"bad time":           {{"time", "A"}, {"x", "1"}},
		"decreasing time":    {{"time", "A"}, {"1", "1"}, {"0.5", "1"}},
		"bad value":          {{"time", "A"}, {"0", "one"}},
		"missing header":     {{"time", ""}, {"0", "1"}},
		"no timed data rows": {{"time", "A"}, {"", "1"}},
	}
	for name, rows := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRows(rows)
			assert.Error(t, err)
		})
	}
}

func TestReadObservedCSVAndXLSX(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "obs.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("time,A,B\n0,1,2\n1,3,4\n"), 0o600))
	fromCSV, err := NewDataReader(csvPath).ReadObserved()
	require.NoError(t, err)

	xlsxPath := filepath.Join(dir, "obs.xlsx")
	f := excelize.NewFile()
	for i, row := range [][]interface{}{{"time", "A", "B"}, {0, 1, 2}, {1, 3, 4}} {
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell(1, i+1), &r))
	}
	require.NoError(t, f.SaveAs(xlsxPath))
	require.NoError(t, f.Close())
	fromXLSX, err := NewDataReader(xlsxPath).ReadObserved()
	require.NoError(t, err)

	assert.True(t, fromCSV.Equal(fromXLSX, 0))
	assert.Equal(t, []float64{3, 4}, []float64{fromCSV.Values[0][1], fromCSV.Values[1][1]})

	_, err = NewDataReader(filepath.Join(dir, "missing.csv")).ReadObserved()
	assert.Error(t, err)
}

func TestExportResult(t *testing.T) {
	template := timeseries.Zeros([]string{"A"}, []float64{0, 1})
	stat := timeseries.NewStatistic(template, true)
	for _, v := range []float64{1, 3} {
		ts := timeseries.Zeros([]string{"A"}, []float64{0, 1})
		ts.Values[0][0], ts.Values[0][1] = v, 2*v
		require.NoError(t, stat.Accumulate(ts))
	}
	r, err := bootstrap.NewResult([]string{"k1", "k2"},
		map[string][]float64{"k1": {1, 2}, "k2": {3, 5}}, stat, []float64{2.5, 97.5})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportResult(&buf, r))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetParameters, SheetSamples, SheetFittedMean, SheetFittedStd, SheetFittedLow, SheetFittedHigh}, f.GetSheetList())

	params, err := f.GetRows(SheetParameters)
	require.NoError(t, err)
	assert.Equal(t, []string{"parameter", "mean", "std", "p2.5", "p97.5"}, params[0])
	assert.Equal(t, "k2", params[2][0])
	assert.Equal(t, "4", params[2][1])

	samples, err := f.GetRows(SheetSamples)
	require.NoError(t, err)
	assert.Len(t, samples, 3)
	assert.Equal(t, []string{"2", "2", "5"}, samples[2])

	mean, err := f.GetRows(SheetFittedMean)
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "A"}, mean[0])
	assert.Equal(t, []string{"1", "4"}, mean[2])
}
