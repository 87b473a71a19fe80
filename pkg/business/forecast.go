package business

import (
	"fmt"
	"math"
)

const (
	DefaultPeriods = 12
	MaxPeriods     = 60
)

type Forecast struct {
	DocumentID         string    `json:"document_id"`
	Values             []float64 `json:"forecast_values"`
	Periods            int       `json:"periods"`
	Trend              string    `json:"trend"`
	Slope              float64   `json:"slope"`
	Intercept          float64   `json:"intercept"`
	ConfidenceInterval float64   `json:"confidence_interval"`
	RSquared           float64   `json:"r_squared"`
	DataPoints         int       `json:"data_points"`
}

// Forecast fits a straight line through the dated amounts of a document, using
// the row position as x, and extends it periods steps ahead. The confidence
// interval is 1.96 population standard deviations of the history.
func (a *Analyzer) Forecast(documentID string, periods int) (*Forecast, error) {
	if periods < 1 || periods > MaxPeriods {
		return nil, ErrInvalidPeriods
	}

	a.mu.RLock()
	ds, ok := a.data[documentID]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	if len(ds.columns.Date) == 0 || len(ds.columns.Amount) == 0 {
		return nil, ErrMissingColumns
	}

	t := ds.table
	points := datedAmounts(t, t.ColumnIndex(ds.columns.Date[0]), t.ColumnIndex(ds.columns.Amount[0]))
	if len(points) < 3 {
		return nil, ErrInsufficientData
	}

	x := make([]float64, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = float64(i)
		y[i] = p.amount
	}

	slope, intercept := linearFit(x, y)
	values := make([]float64, periods)
	for i := range values {
		values[i] = slope*float64(len(points)+i) + intercept
	}

	trend := "decreasing"
	if slope > 0 {
		trend = "increasing"
	}
	r := correlation(x, y)

	return &Forecast{
		DocumentID:         documentID,
		Values:             values,
		Periods:            periods,
		Trend:              trend,
		Slope:              slope,
		Intercept:          intercept,
		ConfidenceInterval: 1.96 * math.Sqrt(variance(y)),
		RSquared:           r * r,
		DataPoints:         len(points),
	}, nil
}

func mean(v []float64) float64 {
	return sum(v) / float64(len(v))
}

// variance is the population variance.
func variance(v []float64) float64 {
	m := mean(v)
	var s float64
	for _, x := range v {
		s += (x - m) * (x - m)
	}
	return s / float64(len(v))
}

// linearFit returns the least squares slope and intercept of y over x.
func linearFit(x, y []float64) (float64, float64) {
	mx, my := mean(x), mean(y)
	var num, den float64
	for i := range x {
		num += (x[i] - mx) * (y[i] - my)
		den += (x[i] - mx) * (x[i] - mx)
	}
	if den == 0 {
		return 0, my
	}
	slope := num / den
	return slope, my - slope*mx
}

// correlation is Pearson's r; 0 when either series is constant.
func correlation(x, y []float64) float64 {
	mx, my := mean(x), mean(y)
	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}
