// Package business reads tabular uploads for financial columns and derives
// totals, category breakdowns and simple linear forecasts from them.
package business

import (
	"strings"

	"github.com/xhad/pai/internal/table"
)

// Columns lists the detected financial columns by role, in table order.
type Columns struct {
	Amount      []string `json:"amount,omitempty"`
	Date        []string `json:"date,omitempty"`
	Description []string `json:"description,omitempty"`
	Category    []string `json:"category,omitempty"`
}

func (c Columns) Empty() bool {
	return len(c.Amount) == 0 && len(c.Date) == 0 && len(c.Description) == 0 && len(c.Category) == 0
}

var (
	amountKeywords      = []string{"amount", "cost", "price", "total", "value", "expense", "revenue", "sales"}
	dateKeywords        = []string{"date", "time", "created", "transaction", "when"}
	descriptionKeywords = []string{"description", "desc", "item", "product", "service", "note", "memo"}
	categoryKeywords    = []string{"category", "type", "class", "group", "department"}
)

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// DetectFinancialColumns matches header names against keyword lists. Amount
// columns must also hold only numeric values.
func DetectFinancialColumns(t *table.Table) Columns {
	var c Columns
	for i, name := range t.Columns {
		lower := strings.ToLower(name)
		if containsAny(lower, amountKeywords) {
			if _, numeric := t.Floats(i); numeric {
				c.Amount = append(c.Amount, name)
			}
		}
		if containsAny(lower, dateKeywords) {
			c.Date = append(c.Date, name)
		}
		if containsAny(lower, descriptionKeywords) {
			c.Description = append(c.Description, name)
		}
		if containsAny(lower, categoryKeywords) {
			c.Category = append(c.Category, name)
		}
	}
	return c
}

const Miscellaneous = "miscellaneous"

type category struct {
	name     string
	keywords []string
}

// categories are checked in order; the first keyword hit wins.
var categories = []category{
	{"office", []string{"office", "supplies", "equipment", "furniture"}},
	{"travel", []string{"travel", "hotel", "flight", "transportation", "uber", "taxi"}},
	{"meals", []string{"restaurant", "food", "lunch", "dinner", "meal", "catering"}},
	{"marketing", []string{"marketing", "advertising", "promotion", "social media", "ads"}},
	{"utilities", []string{"electricity", "water", "gas", "internet", "phone", "utilities"}},
	{"professional", []string{"legal", "accounting", "consulting", "professional"}},
	{"software", []string{"software", "subscription", "saas", "license", "app"}},
	{Miscellaneous, nil},
}

// Categories returns the expense category names in match order.
func Categories() []string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.name
	}
	return names
}

// Categorize assigns an expense description to a category by keyword.
func Categorize(description string) string {
	lower := strings.ToLower(description)
	for _, c := range categories {
		if containsAny(lower, c.keywords) {
			return c.name
		}
	}
	return Miscellaneous
}

var businessKeywords = []string{
	"expense", "cost", "budget", "revenue", "profit", "loss",
	"forecast", "trend", "financial", "business", "sales",
	"marketing", "roi", "investment", "pricing", "bill",
	"receipt", "invoice", "tax", "accounting", "cash flow",
}

// IsBusinessQuery reports whether a chat message asks about money matters.
func IsBusinessQuery(message string) bool {
	return containsAny(strings.ToLower(message), businessKeywords)
}
