package report

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/forecast-cli/internal/aggregate"
	"github.com/sells-group/forecast-cli/internal/forecast"
)

// SummarySheet is the name of the KPI sheet; every metric gets its own
// sheet named after the metric.
const SummarySheet = "Summary"

// Workbook builds the spreadsheet for a forecast: a summary sheet followed
// by one sheet per metric with period, mean, std and one column per
// percentile.
func Workbook(res *forecast.Result) (*xlsx.File, error) {
	if res == nil || res.Aggregate == nil {
		return nil, eris.New("report: result is incomplete")
	}
	agg := res.Aggregate

	f := xlsx.NewFile()
	summary, err := f.AddSheet(SummarySheet)
	if err != nil {
		return nil, eris.Wrap(err, "report: add summary sheet")
	}

	addStringRow(summary, "Field", "Value")
	addStringRow(summary, "ID", res.ID)
	addStringRow(summary, "Industry", res.Request.Industry)
	addStringRow(summary, "Size", res.Request.Size)
	addStringRow(summary, "Market Condition", res.Request.MarketCondition)
	addStringRow(summary, "Scenario", res.Request.Scenario)
	addIntRow(summary, "Iterations", agg.Runs)
	addIntRow(summary, "Periods", agg.Periods)
	addFloatRow(summary, "Bankruptcy Probability", agg.Probabilities.Bankruptcy)
	addFloatRow(summary, "High Growth Probability", agg.Probabilities.HighGrowth)
	addFloatRow(summary, "Profitability Probability", agg.Probabilities.Profitability)
	addOptionalRow(summary, "Revenue CAGR", agg.KPIs.RevenueCAGR)
	addOptionalRow(summary, "Profit Margin", agg.KPIs.ProfitMargin)
	addOptionalRow(summary, "Cash Runway (quarters)", agg.KPIs.CashRunway)
	addFloatRow(summary, "No Runway Risk Fraction", agg.KPIs.NoRunwayRiskFraction)
	addFloatRow(summary, "Mean Final ROI (%)", agg.KPIs.MeanFinalROI)
	addFloatRow(summary, "Risk-adjusted ROI (%)", agg.KPIs.RiskAdjustedROI)
	addFloatRow(summary, "Mean Funding Events", agg.KPIs.MeanFundingEvents)
	addFloatRow(summary, "Final Revenue P10", agg.RevenueThresholds.Low)
	addFloatRow(summary, "Final Revenue P50", agg.RevenueThresholds.Median)
	addFloatRow(summary, "Final Revenue P90", agg.RevenueThresholds.High)
	addFloatRow(summary, "Final Profit P10", agg.ProfitThresholds.Low)
	addFloatRow(summary, "Final Profit P50", agg.ProfitThresholds.Median)
	addFloatRow(summary, "Final Profit P90", agg.ProfitThresholds.High)

	for _, m := range aggregate.Metrics {
		s, ok := agg.Series[m]
		if !ok {
			continue
		}
		sheet, err := f.AddSheet(string(m))
		if err != nil {
			return nil, eris.Wrapf(err, "report: add sheet %s", m)
		}

		header := sheet.AddRow()
		header.AddCell().SetString("period")
		header.AddCell().SetString("mean")
		header.AddCell().SetString("std")
		for _, b := range s.Bands {
			header.AddCell().SetString(b.Label())
		}

		for t := 0; t < agg.Periods; t++ {
			row := sheet.AddRow()
			row.AddCell().SetInt(t)
			row.AddCell().SetFloat(s.Mean[t])
			row.AddCell().SetFloat(s.Std[t])
			for _, b := range s.Bands {
				row.AddCell().SetFloat(b.Values[t])
			}
		}
	}

	return f, nil
}

// WriteXLSX writes the forecast workbook to w.
func WriteXLSX(w io.Writer, res *forecast.Result) error {
	f, err := Workbook(res)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write xlsx")
	}
	return nil
}

// SaveXLSX writes the forecast workbook to path.
func SaveXLSX(path string, res *forecast.Result) error {
	f, err := Workbook(res)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save xlsx %s", path)
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, label, value string) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetString(value)
}

func addIntRow(sheet *xlsx.Sheet, label string, value int) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetInt(value)
}

func addFloatRow(sheet *xlsx.Sheet, label string, value float64) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetFloat(value)
}

func addOptionalRow(sheet *xlsx.Sheet, label string, value *float64) {
	if value == nil {
		addStringRow(sheet, label, "n/a")
		return
	}
	addFloatRow(sheet, label, *value)
}
