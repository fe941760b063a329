package report

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/forecast-cli/internal/aggregate"
	"github.com/sells-group/forecast-cli/internal/forecast"
	"github.com/sells-group/forecast-cli/internal/model"
)

func runForecast(t *testing.T) *forecast.Result {
	t.Helper()
	seed := uint64(77)
	svc := forecast.NewService(forecast.Settings{Iterations: 100, Periods: 8, Workers: 2})
	res, err := svc.Run(context.Background(), forecast.Request{
		Industry:        "SaaS",
		Size:            "growth",
		MarketCondition: "normal",
		Seed:            &seed,
	})
	require.NoError(t, err)
	return res
}

// syntheticResult builds a minimal result with the given probabilities.
func syntheticResult(profitability, bankruptcy float64, buckets aggregate.ROIBuckets, finalMeanRevenue float64) *forecast.Result {
	return &forecast.Result{
		Profile: &model.CompanyProfile{InitialRevenue: 100},
		Aggregate: &aggregate.Result{
			Periods: 1,
			Series: map[aggregate.Metric]*aggregate.Series{
				aggregate.MetricRevenue: {Mean: []float64{finalMeanRevenue}},
			},
			Probabilities: aggregate.Probabilities{Profitability: profitability, Bankruptcy: bankruptcy},
			ROIBuckets:    buckets,
		},
	}
}

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{950, "$950.00"},
		{12_345, "$12.3K"},
		{3_450_000, "$3.45M"},
		{1_200_000_000, "$1.20B"},
		{-2_500_000, "-$2.50M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCurrency(tt.in), "in=%g", tt.in)
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "12.5%", FormatPercent(0.125))
	assert.Equal(t, "0.0%", FormatPercent(0))
}

func TestInsights(t *testing.T) {
	strong := Insights(syntheticResult(0.8, 0.02, aggregate.ROIBuckets{TwentyPlus: 0.5}, 250))
	assert.Equal(t, []string{
		"The business shows strong probability of profitability across most scenarios.",
		"The risk of bankruptcy is relatively low across most simulated scenarios.",
		"The potential for high ROI (20%+) is strong, indicating good investment potential.",
		"The business is projected to more than double in size over the analysis period.",
	}, strong)

	weak := Insights(syntheticResult(0.3, 0.4, aggregate.ROIBuckets{Negative: 0.6}, 90))
	assert.Equal(t, []string{
		"The business shows limited probability of profitability in its current configuration.",
		"There is a significant risk of bankruptcy. Risk mitigation strategies are recommended.",
		"The risk of negative ROI is high, suggesting reconsideration of the business model.",
	}, weak)

	moderate := Insights(syntheticResult(0.6, 0.15, aggregate.ROIBuckets{ZeroToTen: 1}, 100))
	assert.Len(t, moderate, 2)
	assert.Contains(t, moderate[0], "moderate probability of profitability")
	assert.Contains(t, moderate[1], "moderate risk of bankruptcy")
}

func TestInsights_CostRatioFlag(t *testing.T) {
	res := syntheticResult(0.1, 0.9, aggregate.ROIBuckets{}, 50)
	res.CostRatioExceedsRevenue = true
	got := Insights(res)
	assert.Contains(t, got[len(got)-1], "exceed revenue")
}

func TestWriteMarkdown(t *testing.T) {
	res := runForecast(t)

	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, res))
	out := buf.String()

	for _, want := range []string{
		"# Business Performance Simulation Report",
		"**Scenario:** Neutral",
		"**Projection Period:** 8 quarters (2.0 years)",
		"**Iterations:** 100 (seed 77)",
		"## Company Initial Parameters",
		"### Revenue Projections (End of Period)",
		"### Profit Projections (End of Period)",
		"- ROI Distribution:",
		"## Key Performance Indicators",
		"## Risk Assessment",
		"## Key Insights",
	} {
		assert.Contains(t, out, want)
	}
}

func TestWriteMarkdown_Incomplete(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteMarkdown(&buf, nil))
	assert.Error(t, WriteMarkdown(&buf, &forecast.Result{}))
}

func TestSaveXLSX(t *testing.T) {
	res := runForecast(t)
	path := filepath.Join(t.TempDir(), "forecast.xlsx")
	require.NoError(t, SaveXLSX(path, res))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	require.Len(t, f.Sheets, 1+len(aggregate.Metrics))
	assert.Equal(t, SummarySheet, f.Sheets[0].Name)
	for i, m := range aggregate.Metrics {
		assert.Equal(t, string(m), f.Sheets[i+1].Name)
	}

	rev := f.Sheet[string(aggregate.MetricRevenue)]
	require.NotNil(t, rev)
	require.Len(t, rev.Rows, 1+8)
	header := rev.Rows[0]
	var names []string
	for _, c := range header.Cells {
		names = append(names, c.String())
	}
	assert.Equal(t, []string{"period", "mean", "std", "p10", "p50", "p90"}, names)

	summary := f.Sheet[SummarySheet]
	assert.Equal(t, "ID", summary.Rows[1].Cells[0].String())
	assert.Equal(t, res.ID, summary.Rows[1].Cells[1].String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, runForecast(t)))
	assert.NotZero(t, buf.Len())

	assert.Error(t, WriteXLSX(&buf, nil))
}
