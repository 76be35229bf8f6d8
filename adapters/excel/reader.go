// Package excel reads observed time courses from spreadsheets and CSV files
// and exports bootstrap results to workbooks.
package excel

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bootfit/domain/timeseries"
	"bootfit/internal"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	logger   *internal.Logger
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType, logger: internal.DefaultLogger.With("DataReader")}
}

// WithSheet selects a worksheet by name. The first sheet is used otherwise.
func (r *DataReader) WithSheet(name string) *DataReader {
	r.sheet = name
	return r
}

// ReadObserved reads a time course. The column named "time" (or the first
// column when none is) is the time axis; every other column is a species.
// Blank cells become NaN.
func (r *DataReader) ReadObserved() (*timeseries.Timeseries, error) {
	r.logger.Debug("reading %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
	if err != nil {
		return nil, err
	}
	return ParseRows(rows)
}

func (r *DataReader) readExcelRows() ([][]string, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	r.logger.Debug("sheet %s read in %s (%d rows)", sheet, time.Since(startTime), len(rows))
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// ParseRows converts a header row plus data rows into a Timeseries. Rows with
// a blank time cell are skipped; times must increase strictly.
func ParseRows(rows [][]string) (*timeseries.Timeseries, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("data must have at least a header row and one data row")
	}
	header := make([]string, len(rows[0]))
	timeIdx := 0
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
		if strings.EqualFold(header[i], timeseries.TimeColumn) {
			timeIdx = i
		}
	}
	var columns []string
	var colIdx []int
	for i, h := range header {
		if i == timeIdx {
			continue
		}
		if h == "" {
			return nil, fmt.Errorf("column %d has no header", i+1)
		}
		columns = append(columns, h)
		colIdx = append(colIdx, i)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("no species columns besides %q", header[timeIdx])
	}

	var times []float64
	values := make([][]float64, len(columns))
	for n, row := range rows[1:] {
		cell := func(i int) string {
			if i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		if cell(timeIdx) == "" {
			continue
		}
		t, err := strconv.ParseFloat(cell(timeIdx), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid time %q", n+2, cell(timeIdx))
		}
		if len(times) > 0 && t <= times[len(times)-1] {
			return nil, fmt.Errorf("row %d: time %g does not increase", n+2, t)
		}
		times = append(times, t)
		for c, i := range colIdx {
			v := math.NaN()
			if s := cell(i); s != "" {
				if v, err = strconv.ParseFloat(s, 64); err != nil {
					return nil, fmt.Errorf("row %d, column %s: invalid number %q", n+2, columns[c], s)
				}
			}
			values[c] = append(values[c], v)
		}
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("no data rows with a time value")
	}
	return timeseries.New(columns, times, values)
}
