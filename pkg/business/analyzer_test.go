package business_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/pkg/business"
)

const expensesCSV = `Date,Description,Amount
2024-01-05,Office supplies,100
2024-01-20,Flight to NYC,400
2024-02-03,Team lunch,50
2024-02-15,Software subscription,1200.5
2024-03-01,Hotel stay,300
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// writeWorkbook builds a workbook whose first sheet has a single column and
// whose second sheet holds monthly revenue with real date cells.
func writeWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Notes"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "ignore me"))

	_, err := f.NewSheet("Sales")
	require.NoError(t, err)
	rows := [][]interface{}{
		{"Date", "Revenue"},
		{time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), 100},
		{time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), 200},
		{time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), 300},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sales", cell, &row))
	}

	path := filepath.Join(t.TempDir(), "sales.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestAnalyzerInsights(t *testing.T) {
	a := business.NewAnalyzer(zap.NewNop())

	empty := a.Insights("anything")
	assert.Contains(t, empty.Message, "No financial data available")
	assert.Empty(t, empty.Insights)
	assert.Empty(t, a.InsightsContext())

	require.NoError(t, a.AddDocument("expenses.csv", writeFile(t, "expenses.csv", expensesCSV), models.TypeCSV))
	assert.True(t, a.Has("expenses.csv"))

	got := a.Insights("how much did I spend?")
	assert.Equal(t, "Analysis complete for 1 financial documents", got.Message)
	assert.Equal(t, "how much did I spend?", got.Query)
	require.Len(t, got.Insights, 1)
	assert.Equal(t, "expenses.csv", got.Insights[0].Document)
	assert.Equal(t, []string{
		"Total Amount: $2,050.50",
		"Average Amount: $410.10",
		"Highest Amount: $1200.50",
		"Lowest Amount: $50.00",
		"Number of transactions: 5",
		"Monthly trend: decreasing",
		"Top expense categories:",
		"  • Software: $1,200.50",
		"  • Travel: $700.00",
		"  • Office: $100.00",
		"  • Meals: $50.00",
	}, got.Insights[0].Insights)

	assert.Equal(t,
		"Business Context: Financial data from expenses.csv: $2,050.50 total, 5 transactions, avg $410.10",
		a.InsightsContext())
}

func TestAnalyzerExcel(t *testing.T) {
	a := business.NewAnalyzer(zap.NewNop())
	require.NoError(t, a.AddDocument("sales.xlsx", writeWorkbook(t), models.TypeExcel))

	fc, err := a.Forecast("sales.xlsx", 2)
	require.NoError(t, err)
	assert.Equal(t, "increasing", fc.Trend)
	assert.Equal(t, 3, fc.DataPoints)
	assert.InDelta(t, 100, fc.Slope, 1e-9)
	require.Len(t, fc.Values, 2)
	assert.InDelta(t, 400, fc.Values[0], 1e-9)
	assert.InDelta(t, 500, fc.Values[1], 1e-9)
	assert.InDelta(t, 1, fc.RSquared, 1e-9)
	assert.InDelta(t, 160.03, fc.ConfidenceInterval, 0.01)

	insights := a.Insights("")
	require.Len(t, insights.Insights, 1)
	assert.Contains(t, insights.Insights[0].Insights, "Monthly trend: increasing")
}

func TestForecast(t *testing.T) {
	a := business.NewAnalyzer(zap.NewNop())
	require.NoError(t, a.AddDocument("expenses.csv", writeFile(t, "expenses.csv", expensesCSV), models.TypeCSV))

	fc, err := a.Forecast("expenses.csv", business.DefaultPeriods)
	require.NoError(t, err)
	assert.Len(t, fc.Values, 12)
	assert.Equal(t, 12, fc.Periods)
	assert.InDelta(t, 120.05, fc.Slope, 1e-9)
	assert.InDelta(t, 170, fc.Intercept, 1e-9)
	assert.InDelta(t, 770.25, fc.Values[0], 1e-9)
	assert.InDelta(t, 890.30, fc.Values[1], 1e-9)
	assert.Equal(t, "increasing", fc.Trend)
	assert.True(t, fc.RSquared > 0 && fc.RSquared < 1)
}

func TestForecastErrors(t *testing.T) {
	a := business.NewAnalyzer(zap.NewNop())
	require.NoError(t, a.AddDocument("expenses.csv", writeFile(t, "expenses.csv", expensesCSV), models.TypeCSV))
	require.NoError(t, a.AddDocument("totals.csv", writeFile(t, "totals.csv", "Item,Cost\npen,2\npaper,5\n"), models.TypeCSV))
	require.NoError(t, a.AddDocument("short.csv", writeFile(t, "short.csv", "Date,Sales\n2024-01-01,5\n2024-02-01,6\n"), models.TypeCSV))

	tests := []struct {
		name     string
		id       string
		periods  int
		expected error
	}{
		{"zero periods", "expenses.csv", 0, business.ErrInvalidPeriods},
		{"too many periods", "expenses.csv", 61, business.ErrInvalidPeriods},
		{"unknown document", "nope.csv", 3, business.ErrDocumentNotFound},
		{"no date column", "totals.csv", 3, business.ErrMissingColumns},
		{"too few rows", "short.csv", 3, business.ErrInsufficientData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Forecast(tt.id, tt.periods)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestAddDocumentRejects(t *testing.T) {
	a := business.NewAnalyzer(zap.NewNop())

	err := a.AddDocument("notes.txt", writeFile(t, "notes.txt", "hello"), models.TypeText)
	assert.ErrorIs(t, err, business.ErrUnsupportedDocType)

	err = a.AddDocument("people.csv", writeFile(t, "people.csv", "Name,Age\nAnn,31\n"), models.TypeCSV)
	assert.ErrorIs(t, err, business.ErrNoFinancialData)

	assert.False(t, a.Has("people.csv"))
	assert.Equal(t, 0, a.Stats().DocumentsLoaded)
}

func TestStatsRemoveReset(t *testing.T) {
	a := business.NewAnalyzer(zap.NewNop())
	require.NoError(t, a.AddDocument("expenses.csv", writeFile(t, "expenses.csv", expensesCSV), models.TypeCSV))
	require.NoError(t, a.AddDocument("sales.xlsx", writeWorkbook(t), models.TypeExcel))

	stats := a.Stats()
	assert.Equal(t, 2, stats.DocumentsLoaded)
	assert.Equal(t, []string{"csv", "excel"}, stats.DocumentTypes)
	assert.Equal(t, 8, stats.TotalRecords)
	assert.Equal(t, business.Categories(), stats.CategoriesAvailable)
	assert.Contains(t, a.InsightsContext(), "; Financial data from sales.xlsx: $600.00 total, 3 transactions, avg $200.00")

	assert.True(t, a.Remove("expenses.csv"))
	assert.False(t, a.Remove("expenses.csv"))
	assert.Equal(t, 1, a.Stats().DocumentsLoaded)

	a.Reset()
	assert.Equal(t, 0, a.Stats().DocumentsLoaded)
}

func TestExport(t *testing.T) {
	a := business.NewAnalyzer(zap.NewNop())
	require.NoError(t, a.AddDocument("expenses.csv", writeFile(t, "expenses.csv", expensesCSV), models.TypeCSV))

	js, err := a.Export("json")
	require.NoError(t, err)
	assert.Contains(t, js, `"document": "expenses.csv"`)
	assert.Contains(t, js, `"message": "Analysis complete for 1 financial documents"`)

	text, err := a.Export("text")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "\nexpenses.csv:\n  Total Amount: $2,050.50"))

	_, err = a.Export("xml")
	assert.ErrorIs(t, err, business.ErrUnsupportedFormat)
}
