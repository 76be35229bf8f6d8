package excel

import (
	"fmt"
	"io"
	"math"

	"bootfit/domain/timeseries"
	"bootfit/internal/bootstrap"

	"github.com/xuri/excelize/v2"
)

// Sheet names used by ExportResult.
const (
	SheetParameters = "Parameters"
	SheetSamples    = "Samples"
	SheetFittedMean = "FittedMean"
	SheetFittedStd  = "FittedStd"
	SheetFittedLow  = "FittedLow"
	SheetFittedHigh = "FittedHigh"
)

// cellValue keeps NaN out of the workbook, which cannot store it.
func cellValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return v
}

// ExportResult writes the parameter summary, the accepted parameter samples
// and the fitted envelope (when present) as an xlsx workbook.
func ExportResult(w io.Writer, r *bootstrap.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetParameters); err != nil {
		return err
	}
	header := []interface{}{"parameter", "mean", "std"}
	for _, p := range r.Percentiles {
		header = append(header, fmt.Sprintf("p%g", p))
	}
	if err := f.SetSheetRow(SheetParameters, "A1", &header); err != nil {
		return err
	}
	for i, name := range r.Parameters {
		row := []interface{}{name, cellValue(r.MeanDct[name]), cellValue(r.StdDct[name])}
		for _, v := range r.PercentileDct[name] {
			row = append(row, cellValue(v))
		}
		if err := f.SetSheetRow(SheetParameters, cell(1, i+2), &row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetSamples); err != nil {
		return err
	}
	samplesHeader := []interface{}{"iteration"}
	for _, name := range r.Parameters {
		samplesHeader = append(samplesHeader, name)
	}
	if err := f.SetSheetRow(SheetSamples, "A1", &samplesHeader); err != nil {
		return err
	}
	for it := 0; it < r.NumIteration; it++ {
		row := []interface{}{it + 1}
		for _, name := range r.Parameters {
			row = append(row, r.ParameterDct[name][it])
		}
		if err := f.SetSheetRow(SheetSamples, cell(1, it+2), &row); err != nil {
			return err
		}
	}

	if r.FittedStatistic != nil && r.FittedStatistic.Count() > 0 {
		env, err := r.FittedEnvelope()
		if err != nil {
			return err
		}
		sheets := []struct {
			name string
			ts   *timeseries.Timeseries
		}{
			{SheetFittedMean, env.Mean}, {SheetFittedStd, env.Std}, {SheetFittedLow, env.Low}, {SheetFittedHigh, env.High},
		}
		for _, s := range sheets {
			if s.ts == nil {
				continue
			}
			if err := writeTimeseries(f, s.name, s.ts); err != nil {
				return err
			}
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func writeTimeseries(f *excelize.File, sheet string, ts *timeseries.Timeseries) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	header := []interface{}{timeseries.TimeColumn}
	for _, c := range ts.Columns {
		header = append(header, c)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, t := range ts.Times {
		row := []interface{}{t}
		for c := range ts.Columns {
			row = append(row, cellValue(ts.Values[c][i]))
		}
		if err := f.SetSheetRow(sheet, cell(1, i+2), &row); err != nil {
			return err
		}
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
