// Package table reads spreadsheet-like files into a small in-memory grid shared by
// document extraction and the business analyzer.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrUnsupported = errors.New("unsupported table format")

// Table is a header row plus data rows. Every row has len(Columns) cells.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Load reads every non-empty table in a .csv or .xlsx file.
func Load(path string) ([]*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		t, err := ReadCSV(path)
		if err != nil {
			return nil, err
		}
		return []*Table{t}, nil
	case ".xlsx", ".xlsm":
		return ReadExcel(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
}

func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCSV(f, filepath.Base(path))
}

func ParseCSV(r io.Reader, name string) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", name, err)
	}
	return fromRecords(name, records), nil
}

func ReadExcel(path string) ([]*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	var tables []*Table
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		t := fromRecords(sheet, rows)
		if t.Empty() {
			continue
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func fromRecords(name string, records [][]string) *Table {
	t := &Table{Name: name}

	var start int
	for start < len(records) && blankRow(records[start]) {
		start++
	}
	if start == len(records) {
		return t
	}

	header := records[start]
	t.Columns = make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		t.Columns[i] = h
	}

	for _, rec := range records[start+1:] {
		if blankRow(rec) {
			continue
		}
		for len(rec) > len(t.Columns) {
			t.Columns = append(t.Columns, fmt.Sprintf("Unnamed: %d", len(t.Columns)))
		}
		t.Rows = append(t.Rows, rec)
	}
	for i, rec := range t.Rows {
		if len(rec) < len(t.Columns) {
			padded := make([]string, len(t.Columns))
			copy(padded, rec)
			t.Rows[i] = padded
		}
	}
	return t
}

func blankRow(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (t *Table) Empty() bool {
	return len(t.Columns) == 0 || len(t.Rows) == 0
}

// Shape returns rows × columns, excluding the header.
func (t *Table) Shape() (int, int) {
	return len(t.Rows), len(t.Columns)
}

func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][col])
}

// ColumnIndex is case-insensitive and returns -1 when the column is missing.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// ParseNumber accepts plain numbers, thousands separators and a leading currency sign.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Floats returns the non-blank values of a column and whether every one of them is numeric.
func (t *Table) Floats(col int) ([]float64, bool) {
	var vals []float64
	for r := range t.Rows {
		cell := t.Cell(r, col)
		if cell == "" {
			continue
		}
		f, ok := ParseNumber(cell)
		if !ok {
			return nil, false
		}
		vals = append(vals, f)
	}
	return vals, len(vals) > 0
}

func (t *Table) NumericColumns() []int {
	var cols []int
	for i := range t.Columns {
		if _, ok := t.Floats(i); ok {
			cols = append(cols, i)
		}
	}
	return cols
}

// Summary mirrors the usual descriptive statistics of a numeric column.
type Summary struct {
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Q1     float64
	Median float64
	Q3     float64
	Max    float64
}

func Describe(vals []float64) Summary {
	s := Summary{Count: len(vals)}
	if len(vals) == 0 {
		return s
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	s.Mean = sum / float64(len(sorted))
	if len(sorted) > 1 {
		var sq float64
		for _, v := range sorted {
			sq += (v - s.Mean) * (v - s.Mean)
		}
		s.Std = math.Sqrt(sq / float64(len(sorted)-1))
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Q1 = quantile(sorted, 0.25)
	s.Median = quantile(sorted, 0.5)
	s.Q3 = quantile(sorted, 0.75)
	return s
}

// quantile uses linear interpolation between closest ranks.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
