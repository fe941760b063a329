// Package store persists forecast results in SQLite or Postgres.
package store

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/forecast-cli/internal/aggregate"
	"github.com/sells-group/forecast-cli/internal/forecast"
)

// ErrNotFound is returned when a forecast id does not exist.
var ErrNotFound = eris.New("store: forecast not found")

// defaultListLimit caps ListForecasts when the filter sets no limit.
const defaultListLimit = 100

// ForecastFilter specifies criteria for listing forecasts.
type ForecastFilter struct {
	Industry        string `json:"industry,omitempty"`
	Size            string `json:"size,omitempty"`
	MarketCondition string `json:"market_condition,omitempty"`
	Scenario        string `json:"scenario,omitempty"`
	Limit           int    `json:"limit,omitempty"`
	Offset          int    `json:"offset,omitempty"`
}

func (f ForecastFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Summary is the listing view of a stored forecast.
type Summary struct {
	ID              string    `json:"id"`
	Industry        string    `json:"industry"`
	Size            string    `json:"size"`
	MarketCondition string    `json:"market_condition"`
	Scenario        string    `json:"scenario"`
	Iterations      int       `json:"iterations"`
	Periods         int       `json:"periods"`
	Seed            uint64    `json:"seed"`
	Bankruptcy      float64   `json:"bankruptcy_probability"`
	HighGrowth      float64   `json:"high_growth_probability"`
	Profitability   float64   `json:"profitability_probability"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store defines the persistence interface for forecasts.
type Store interface {
	// SaveForecast stores a completed forecast. Saving an id that already
	// exists replaces it.
	SaveForecast(ctx context.Context, res *forecast.Result) error
	GetForecast(ctx context.Context, id string) (*forecast.Result, error)
	ListForecasts(ctx context.Context, filter ForecastFilter) ([]Summary, error)
	DeleteForecast(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func checkResult(res *forecast.Result) error {
	if res == nil || res.Profile == nil || res.Aggregate == nil {
		return eris.New("store: forecast result is incomplete")
	}
	if res.ID == "" {
		return eris.New("store: forecast result has no id")
	}
	return nil
}

// bandRows flattens every band of every metric into
// (forecast_id, metric, period, percentile, value) rows.
func bandRows(res *forecast.Result) [][]any {
	var rows [][]any
	for _, m := range aggregate.Metrics {
		s, ok := res.Aggregate.Series[m]
		if !ok {
			continue
		}
		for _, b := range s.Bands {
			for t, v := range b.Values {
				rows = append(rows, []any{res.ID, string(m), t, b.Percentile, v})
			}
		}
	}
	return rows
}

func formatSeed(res *forecast.Result) string {
	return strconv.FormatUint(res.Seed(), 10)
}

func parseSeed(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "store: parse seed %q", s)
	}
	return v, nil
}
