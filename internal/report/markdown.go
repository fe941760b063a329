// Package report renders forecast results for people: a markdown summary
// and a spreadsheet export.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/forecast-cli/internal/aggregate"
	"github.com/sells-group/forecast-cli/internal/forecast"
)

// Insight thresholds, as fractions of runs.
const (
	strongProfitability   = 0.75
	moderateProfitability = 0.50
	highBankruptcyRisk    = 0.25
	moderateBankruptcy    = 0.10
	strongROIShare        = 0.40
	doublingMultiple      = 2.0
)

// reportLang drives number grouping and title casing.
var reportLang = language.English

// FormatCurrency renders an amount compactly: $1.2B, $3.45M, $12.3K, $950.00.
func FormatCurrency(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	switch {
	case v >= 1_000_000_000:
		return fmt.Sprintf("%s$%.2fB", sign, v/1_000_000_000)
	case v >= 1_000_000:
		return fmt.Sprintf("%s$%.2fM", sign, v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("%s$%.1fK", sign, v/1_000)
	default:
		return fmt.Sprintf("%s$%.2f", sign, v)
	}
}

// FormatPercent renders a fraction as a percentage with one decimal.
func FormatPercent(fraction float64) string {
	return message.NewPrinter(reportLang).Sprintf("%.1f%%", fraction*100)
}

func formatOptional(v *float64, format func(float64) string) string {
	if v == nil {
		return "n/a"
	}
	return format(*v)
}

// Insights returns the plain-language observations for a forecast, most
// important first.
func Insights(res *forecast.Result) []string {
	agg := res.Aggregate
	prob := agg.Probabilities
	var out []string

	switch {
	case prob.Profitability >= strongProfitability:
		out = append(out, "The business shows strong probability of profitability across most scenarios.")
	case prob.Profitability >= moderateProfitability:
		out = append(out, "The business shows moderate probability of profitability, but has significant risk.")
	default:
		out = append(out, "The business shows limited probability of profitability in its current configuration.")
	}

	switch {
	case prob.Bankruptcy >= highBankruptcyRisk:
		out = append(out, "There is a significant risk of bankruptcy. Risk mitigation strategies are recommended.")
	case prob.Bankruptcy >= moderateBankruptcy:
		out = append(out, "There is a moderate risk of bankruptcy. Conservative financial management is advised.")
	default:
		out = append(out, "The risk of bankruptcy is relatively low across most simulated scenarios.")
	}

	switch {
	case agg.ROIBuckets.TwentyPlus >= strongROIShare:
		out = append(out, "The potential for high ROI (20%+) is strong, indicating good investment potential.")
	case agg.ROIBuckets.Negative >= strongROIShare:
		out = append(out, "The risk of negative ROI is high, suggesting reconsideration of the business model.")
	}

	if m := growthMultiple(res); m >= doublingMultiple {
		out = append(out, "The business is projected to more than double in size over the analysis period.")
	}

	if res.CostRatioExceedsRevenue {
		out = append(out, "Variable, R&D and marketing costs alone exceed revenue; every quarter loses money before fixed costs.")
	}
	return out
}

// growthMultiple is mean final revenue over initial revenue, or 0 when the
// company starts without revenue.
func growthMultiple(res *forecast.Result) float64 {
	if res.Profile == nil || res.Profile.InitialRevenue <= 0 {
		return 0
	}
	mean := res.Aggregate.Series[aggregate.MetricRevenue].Mean
	return mean[len(mean)-1] / res.Profile.InitialRevenue
}

// WriteMarkdown writes the forecast summary report to w.
func WriteMarkdown(w io.Writer, res *forecast.Result) error {
	if res == nil || res.Aggregate == nil || res.Profile == nil {
		return eris.New("report: result is incomplete")
	}

	var b strings.Builder
	printer := message.NewPrinter(reportLang)
	agg := res.Aggregate
	p := res.Profile
	req := res.Request
	line := func(format string, args ...any) {
		b.WriteString(printer.Sprintf(format, args...))
		b.WriteByte('\n')
	}

	line("# Business Performance Simulation Report")
	line("")
	line("**Company:** %s %s, %s market", p.Industry, p.Size, p.MarketCondition)
	line("**Scenario:** %s", cases.Title(reportLang).String(req.Scenario))
	line("**Simulation Date:** %s", res.CreatedAt.Format(time.DateOnly))
	line("**Projection Period:** %d quarters (%.1f years)", agg.Periods, float64(agg.Periods)/4)
	line("**Iterations:** %d (seed %s)", agg.Runs, fmt.Sprint(res.Seed()))
	line("")

	line("## Company Initial Parameters")
	line("- Initial Investment: %s", FormatCurrency(p.InitialInvestment))
	line("- Initial Revenue: %s per quarter", FormatCurrency(p.InitialRevenue))
	line("- Cash Reserves: %s", FormatCurrency(p.InitialCash))
	line("- Debt Level: %s", FormatCurrency(p.InitialDebt))
	line("- Revenue Growth Rate (Expected): %s per quarter", FormatPercent(p.RevenueGrowthMean))
	line("- Market Growth Rate (Expected): %s per quarter", FormatPercent(p.MarketGrowthRate))
	line("- Fixed Costs: %s per quarter", FormatCurrency(p.FixedCostBase))
	line("- Variable Costs: %s of revenue", FormatPercent(p.VariableCostRatio))
	line("- Credit Score: %.0f", p.CreditScore)
	line("")

	line("## Performance Projections")
	line("### Revenue Projections (End of Period)")
	thresholds(line, agg.RevenueThresholds)
	line("- Growth multiple from initial: %.2fx", growthMultiple(res))
	line("")
	line("### Profit Projections (End of Period)")
	thresholds(line, agg.ProfitThresholds)
	line("- Probability of being profitable: %s", FormatPercent(agg.Probabilities.Profitability))
	line("")

	line("### ROI Projections")
	line("- Average ROI (End of Period): %.2f%%", agg.KPIs.MeanFinalROI)
	line("- Risk-adjusted ROI: %.2f%%", agg.KPIs.RiskAdjustedROI)
	line("- ROI Distribution:")
	line("  - Negative ROI: %s", FormatPercent(agg.ROIBuckets.Negative))
	line("  - 0-10%% ROI: %s", FormatPercent(agg.ROIBuckets.ZeroToTen))
	line("  - 10-20%% ROI: %s", FormatPercent(agg.ROIBuckets.TenToTwenty))
	line("  - 20%%+ ROI: %s", FormatPercent(agg.ROIBuckets.TwentyPlus))
	line("")

	line("## Key Performance Indicators")
	line("- Revenue CAGR: %s", formatOptional(agg.KPIs.RevenueCAGR, FormatPercent))
	line("- Profit Margin: %s", formatOptional(agg.KPIs.ProfitMargin, FormatPercent))
	line("- Cash Runway: %s (%s of runs never loss-making)",
		formatOptional(agg.KPIs.CashRunway, func(v float64) string { return printer.Sprintf("%.1f quarters", v) }),
		FormatPercent(agg.KPIs.NoRunwayRiskFraction))
	line("- Funding Events per Run: %.2f", agg.KPIs.MeanFundingEvents)
	line("- Debt Draws per Run: %.2f", agg.KPIs.MeanDebtDraws)
	line("")

	line("## Risk Assessment")
	line("- Bankruptcy Probability: %s", FormatPercent(agg.Probabilities.Bankruptcy))
	line("- High Growth Probability: %s", FormatPercent(agg.Probabilities.HighGrowth))
	line("")

	line("## Key Insights")
	for _, s := range Insights(res) {
		line("- %s", s)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "report: write markdown")
	}
	return nil
}

func thresholds(line func(string, ...any), t aggregate.Thresholds) {
	line("- Low estimate (10th percentile): %s", FormatCurrency(t.Low))
	line("- Median estimate (50th percentile): %s", FormatCurrency(t.Median))
	line("- High estimate (90th percentile): %s", FormatCurrency(t.High))
}
