package business

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/xhad/pai/internal/models"
	"github.com/xhad/pai/internal/table"
)

var (
	ErrNoFinancialData    = errors.New("no financial data found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrMissingColumns     = errors.New("date and amount columns required for forecasting")
	ErrInsufficientData   = errors.New("insufficient data for forecasting (need at least 3 data points)")
	ErrInvalidPeriods     = errors.New("periods must be between 1 and 60")
	ErrUnsupportedFormat  = errors.New("unsupported format, use 'json' or 'text'")
	ErrUnsupportedDocType = errors.New("only excel and csv documents hold business data")
)

const noDataMessage = "No financial data available. Please upload Excel or CSV files with financial information."

type dataset struct {
	table      *table.Table
	columns    Columns
	docType    models.DocumentType
	uploadDate time.Time
}

// Analyzer keeps the financial tables of ingested documents, keyed by document id.
type Analyzer struct {
	mu    sync.RWMutex
	data  map[string]*dataset
	order []string

	printer *message.Printer
	title   cases.Caser
	logger  *zap.Logger
	now     func() time.Time
}

func NewAnalyzer(logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		data:    make(map[string]*dataset),
		printer: message.NewPrinter(language.English),
		title:   cases.Title(language.English),
		logger:  logger,
		now:     time.Now,
	}
}

// AddDocument loads the first usable table of a csv or xlsx file. It returns
// ErrNoFinancialData when no financial column is found.
func (a *Analyzer) AddDocument(documentID, path string, docType models.DocumentType) error {
	if !docType.Tabular() {
		return fmt.Errorf("%w: %s", ErrUnsupportedDocType, docType)
	}
	tables, err := table.Load(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", documentID, err)
	}

	var t *table.Table
	for _, candidate := range tables {
		if candidate.Empty() {
			continue
		}
		if docType == models.TypeExcel && len(candidate.Columns) < 2 {
			continue
		}
		t = candidate
		break
	}
	if t == nil {
		return fmt.Errorf("%w in %s", ErrNoFinancialData, documentID)
	}

	columns := DetectFinancialColumns(t)
	if columns.Empty() {
		return fmt.Errorf("%w in %s", ErrNoFinancialData, documentID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.data[documentID]; !ok {
		a.order = append(a.order, documentID)
	}
	a.data[documentID] = &dataset{
		table:      t,
		columns:    columns,
		docType:    docType,
		uploadDate: a.now(),
	}
	a.logger.Info("added financial data",
		zap.String("document_id", documentID),
		zap.Int("rows", len(t.Rows)),
		zap.Strings("amount_columns", columns.Amount))
	return nil
}

// Has reports whether financial data is loaded for documentID.
func (a *Analyzer) Has(documentID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.data[documentID]
	return ok
}

func (a *Analyzer) Remove(documentID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.data[documentID]; !ok {
		return false
	}
	delete(a.data, documentID)
	for i, id := range a.order {
		if id == documentID {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return true
}

func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data = make(map[string]*dataset)
	a.order = nil
}

type DocumentInsights struct {
	Document string   `json:"document"`
	Insights []string `json:"insights"`
}

type Insights struct {
	Message  string             `json:"message"`
	Insights []DocumentInsights `json:"insights"`
	Query    string             `json:"query,omitempty"`
}

// money formats with thousands separators, e.g. $1,234.50.
func (a *Analyzer) money(v float64) string {
	return a.printer.Sprintf("$%.2f", v)
}

// Insights summarises every loaded document: amount statistics, the monthly
// trend and the top expense categories.
func (a *Analyzer) Insights(query string) Insights {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.data) == 0 {
		return Insights{Message: noDataMessage, Insights: []DocumentInsights{}, Query: query}
	}

	out := Insights{
		Message: fmt.Sprintf("Analysis complete for %d financial documents", len(a.data)),
		Query:   query,
	}
	for _, id := range a.order {
		out.Insights = append(out.Insights, a.documentInsights(id, a.data[id]))
	}
	return out
}

func (a *Analyzer) documentInsights(id string, ds *dataset) DocumentInsights {
	di := DocumentInsights{Document: id, Insights: []string{}}
	t := ds.table

	for _, col := range ds.columns.Amount {
		vals, _ := t.Floats(t.ColumnIndex(col))
		if len(vals) == 0 {
			continue
		}
		s := table.Describe(vals)
		di.Insights = append(di.Insights,
			fmt.Sprintf("Total %s: %s", col, a.money(sum(vals))),
			fmt.Sprintf("Average %s: $%.2f", col, s.Mean),
			fmt.Sprintf("Highest %s: $%.2f", col, s.Max),
			fmt.Sprintf("Lowest %s: $%.2f", col, s.Min),
			fmt.Sprintf("Number of transactions: %d", s.Count),
		)
	}

	if len(ds.columns.Amount) == 0 {
		return di
	}
	amountCol := t.ColumnIndex(ds.columns.Amount[0])

	if len(ds.columns.Date) > 0 {
		if trend, ok := monthlyTrend(t, t.ColumnIndex(ds.columns.Date[0]), amountCol); ok {
			di.Insights = append(di.Insights, "Monthly trend: "+trend)
		}
	}

	if len(ds.columns.Description) > 0 {
		totals := categoryTotals(t, t.ColumnIndex(ds.columns.Description[0]), amountCol)
		di.Insights = append(di.Insights, "Top expense categories:")
		for i, ct := range totals {
			if i == 5 {
				break
			}
			di.Insights = append(di.Insights, fmt.Sprintf("  • %s: %s", a.title.String(ct.name), a.money(ct.total)))
		}
	}
	return di
}

func sum(vals []float64) float64 {
	var total float64
	for _, v := range vals {
		total += v
	}
	return total
}

type point struct {
	date   time.Time
	amount float64
}

// datedAmounts pairs the rows where both the date and the amount parse, sorted by date.
func datedAmounts(t *table.Table, dateCol, amountCol int) []point {
	var points []point
	for r := range t.Rows {
		d, ok := parseDate(t.Cell(r, dateCol))
		if !ok {
			continue
		}
		v, ok := table.ParseNumber(t.Cell(r, amountCol))
		if !ok {
			continue
		}
		points = append(points, point{date: d, amount: v})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].date.Before(points[j].date)
	})
	return points
}

// monthlyTrend compares the first and last calendar month totals.
func monthlyTrend(t *table.Table, dateCol, amountCol int) (string, bool) {
	points := datedAmounts(t, dateCol, amountCol)
	if len(points) < 2 {
		return "", false
	}
	var (
		months []string
		totals = map[string]float64{}
	)
	for _, p := range points {
		key := p.date.Format("2006-01")
		if _, ok := totals[key]; !ok {
			months = append(months, key)
		}
		totals[key] += p.amount
	}
	if len(months) < 2 {
		return "", false
	}
	if totals[months[len(months)-1]] > totals[months[0]] {
		return "increasing", true
	}
	return "decreasing", true
}

type categoryTotal struct {
	name  string
	total float64
}

// categoryTotals sums amounts per categorised description, largest first.
func categoryTotals(t *table.Table, descCol, amountCol int) []categoryTotal {
	sums := map[string]float64{}
	for r := range t.Rows {
		v, ok := table.ParseNumber(t.Cell(r, amountCol))
		if !ok {
			continue
		}
		sums[Categorize(t.Cell(r, descCol))] += v
	}
	totals := make([]categoryTotal, 0, len(sums))
	for name, total := range sums {
		totals = append(totals, categoryTotal{name: name, total: total})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].total != totals[j].total {
			return totals[i].total > totals[j].total
		}
		return totals[i].name < totals[j].name
	})
	return totals
}

// InsightsContext is a one-line summary of loaded financial data for chat
// prompts. It is empty when nothing is loaded.
func (a *Analyzer) InsightsContext() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var parts []string
	for _, id := range a.order {
		ds := a.data[id]
		if len(ds.columns.Amount) == 0 {
			continue
		}
		vals, _ := ds.table.Floats(ds.table.ColumnIndex(ds.columns.Amount[0]))
		if len(vals) == 0 {
			continue
		}
		s := table.Describe(vals)
		parts = append(parts, fmt.Sprintf("Financial data from %s: %s total, %d transactions, avg $%.2f",
			id, a.money(sum(vals)), s.Count, s.Mean))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Business Context: " + strings.Join(parts, "; ")
}

type Stats struct {
	DocumentsLoaded     int      `json:"documents_loaded"`
	DocumentTypes       []string `json:"document_types"`
	TotalRecords        int      `json:"total_records"`
	CategoriesAvailable []string `json:"categories_available"`
}

func (a *Analyzer) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{
		DocumentsLoaded:     len(a.data),
		DocumentTypes:       []string{},
		CategoriesAvailable: Categories(),
	}
	for _, id := range a.order {
		ds := a.data[id]
		stats.DocumentTypes = append(stats.DocumentTypes, string(ds.docType))
		stats.TotalRecords += len(ds.table.Rows)
	}
	return stats
}

// Export renders the current insights as indented JSON or plain text.
func (a *Analyzer) Export(format string) (string, error) {
	insights := a.Insights("")
	switch format {
	case "json", "":
		data, err := json.MarshalIndent(insights, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case "text":
		var lines []string
		for _, di := range insights.Insights {
			lines = append(lines, "\n"+di.Document+":")
			for _, line := range di.Insights {
				lines = append(lines, "  "+line)
			}
		}
		return strings.Join(lines, "\n"), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
