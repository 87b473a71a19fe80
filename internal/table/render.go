package table

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
)

// WriteSample writes the header and the first n rows as aligned columns.
func (t *Table) WriteSample(w io.Writer, n int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Columns, "\t"))
	for i := range t.Rows {
		if i >= n {
			break
		}
		cells := make([]string, len(t.Columns))
		for c := range cells {
			cells[c] = t.Cell(i, c)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

// WriteSummary writes descriptive statistics for every numeric column.
func (t *Table) WriteSummary(w io.Writer, cols []int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := []string{""}
	stats := make([]Summary, len(cols))
	for i, c := range cols {
		header = append(header, t.Columns[c])
		vals, _ := t.Floats(c)
		stats[i] = Describe(vals)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	rows := []struct {
		label string
		value func(Summary) float64
	}{
		{"count", func(s Summary) float64 { return float64(s.Count) }},
		{"mean", func(s Summary) float64 { return s.Mean }},
		{"std", func(s Summary) float64 { return s.Std }},
		{"min", func(s Summary) float64 { return s.Min }},
		{"25%", func(s Summary) float64 { return s.Q1 }},
		{"50%", func(s Summary) float64 { return s.Median }},
		{"75%", func(s Summary) float64 { return s.Q3 }},
		{"max", func(s Summary) float64 { return s.Max }},
	}
	for _, r := range rows {
		line := []string{r.label}
		for _, s := range stats {
			line = append(line, strconv.FormatFloat(r.value(s), 'f', 6, 64))
		}
		fmt.Fprintln(tw, strings.Join(line, "\t")+"\t")
	}
	tw.Flush()
}
