package business

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xhad/pai/internal/table"
)

func TestDetectFinancialColumns(t *testing.T) {
	tbl := &table.Table{
		Columns: []string{"Transaction Date", "Item", "Total", "Unit Price", "Department"},
		Rows: [][]string{
			{"2024-01-01", "pens", "n/a", "$1,200.00", "ops"},
			{"2024-01-02", "paper", "12", "3.5", "ops"},
		},
	}
	cols := DetectFinancialColumns(tbl)
	assert.Equal(t, []string{"Unit Price"}, cols.Amount, "non-numeric Total must be skipped")
	assert.Equal(t, []string{"Transaction Date"}, cols.Date)
	assert.Equal(t, []string{"Item"}, cols.Description)
	assert.Equal(t, []string{"Department"}, cols.Category)
	assert.False(t, cols.Empty())

	none := DetectFinancialColumns(&table.Table{Columns: []string{"Name"}, Rows: [][]string{{"x"}}})
	assert.True(t, none.Empty())
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		description string
		expected    string
	}{
		{"Office chairs", "office"},
		{"Uber ride to airport", "travel"},
		{"Client dinner", "meals"},
		{"Facebook ads", "marketing"},
		{"Electricity bill", "utilities"},
		{"Legal fees", "professional"},
		{"Annual SaaS plan", "software"},
		{"Random thing", Miscellaneous},
		{"", Miscellaneous},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			assert.Equal(t, tt.expected, Categorize(tt.description))
		})
	}
	assert.Len(t, Categories(), 8)
	assert.Equal(t, Miscellaneous, Categories()[7])
}

func TestIsBusinessQuery(t *testing.T) {
	assert.True(t, IsBusinessQuery("What does my Cash Flow look like?"))
	assert.True(t, IsBusinessQuery("forecast next quarter"))
	assert.False(t, IsBusinessQuery("Tell me a joke"))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in       string
		expected time.Time
	}{
		{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"03/15/2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"Mar 15, 2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"45366", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseDate(tt.in)
			assert.True(t, ok)
			assert.True(t, tt.expected.Equal(got), "got %s", got)
		})
	}

	_, ok := parseDate("not a date")
	assert.False(t, ok)
	_, ok = parseDate("")
	assert.False(t, ok)
}

func TestLinearFit(t *testing.T) {
	slope, intercept := linearFit([]float64{0, 1, 2}, []float64{1, 3, 5})
	assert.InDelta(t, 2, slope, 1e-12)
	assert.InDelta(t, 1, intercept, 1e-12)

	assert.Equal(t, 0.0, correlation([]float64{0, 1, 2}, []float64{4, 4, 4}))
	assert.InDelta(t, 2.0/3.0, variance([]float64{1, 2, 3}), 1e-12)
}
