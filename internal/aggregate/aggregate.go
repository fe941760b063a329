// Package aggregate reduces a collection of scenario runs into percentile
// bands, per-period moments and forecast-level KPIs.
package aggregate

import (
	"math"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/sim"
)

// ErrNoRuns is returned when there is nothing to aggregate.
var ErrNoRuns = eris.New("no runs to aggregate")

// DefaultPercentiles are used when Options.Percentiles is empty.
var DefaultPercentiles = []float64{10, 50, 90}

// Metric names a per-period series of PeriodMetrics.
type Metric string

const (
	MetricRevenue     Metric = "revenue"
	MetricProfit      Metric = "profit"
	MetricCash        Metric = "cash"
	MetricDebt        Metric = "debt"
	MetricROI         Metric = "roi"
	MetricMarketShare Metric = "market_share"
	MetricCashFlow    Metric = "cash_flow"
)

// Metrics lists every aggregated metric in report order.
var Metrics = []Metric{
	MetricRevenue, MetricProfit, MetricCash, MetricDebt,
	MetricROI, MetricMarketShare, MetricCashFlow,
}

func (m Metric) value(pm *model.PeriodMetrics) float64 {
	switch m {
	case MetricRevenue:
		return pm.Revenue
	case MetricProfit:
		return pm.Profit
	case MetricCash:
		return pm.Cash
	case MetricDebt:
		return pm.Debt
	case MetricROI:
		return pm.ROI
	case MetricMarketShare:
		return pm.MarketShare
	case MetricCashFlow:
		return pm.CashFlow
	}
	return math.NaN()
}

// Options configure Aggregate.
type Options struct {
	Percentiles []float64 // in [0,100]; DefaultPercentiles when empty
}

// Band is one percentile of a metric across runs, for every period.
type Band struct {
	Percentile float64   `json:"percentile"`
	Values     []float64 `json:"values"`
}

// Label renders the percentile as "p10", "p2.5" and so on.
func (b Band) Label() string {
	return Label(b.Percentile)
}

// Label renders a percentile as a short column name.
func Label(p float64) string {
	return "p" + strconv.FormatFloat(p, 'f', -1, 64)
}

// Series holds the cross-run distribution of one metric.
type Series struct {
	Bands []Band    `json:"bands"`
	Mean  []float64 `json:"mean"`
	Std   []float64 `json:"std"`
}

// Band returns the values for percentile p, or nil when p was not computed.
func (s *Series) Band(p float64) []float64 {
	for _, b := range s.Bands {
		if b.Percentile == p {
			return b.Values
		}
	}
	return nil
}

// Thresholds are the final-period 10th, 50th and 90th percentiles.
type Thresholds struct {
	Low    float64 `json:"low_10th"`
	Median float64 `json:"median"`
	High   float64 `json:"high_90th"`
}

// ROIBuckets are the fractions of runs whose final ROI falls in each range.
type ROIBuckets struct {
	Negative    float64 `json:"negative"`
	ZeroToTen   float64 `json:"0_to_10"`
	TenToTwenty float64 `json:"10_to_20"`
	TwentyPlus  float64 `json:"20_plus"`
}

// KPIs are the scalar forecast summaries. Pointer fields are nil when the
// value is undefined for every run.
type KPIs struct {
	RevenueCAGR          *float64 `json:"revenue_cagr"`
	ProfitMargin         *float64 `json:"profit_margin"`
	CashRunway           *float64 `json:"cash_runway"`
	NoRunwayRiskFraction float64  `json:"no_runway_risk_fraction"`
	MeanFinalROI         float64  `json:"mean_final_roi"`
	RiskAdjustedROI      float64  `json:"risk_adjusted_roi"`
	MeanFundingEvents    float64  `json:"mean_funding_events"`
	MeanDebtDraws        float64  `json:"mean_debt_draws"`
}

// Probabilities are fractions of runs in [0,1].
type Probabilities struct {
	Bankruptcy    float64 `json:"bankruptcy"`
	HighGrowth    float64 `json:"high_growth"`
	Profitability float64 `json:"profitability"`
}

// Result is the aggregate of a complete batch.
type Result struct {
	Runs        int                `json:"runs"`
	Periods     int                `json:"periods"`
	Percentiles []float64          `json:"percentiles"`
	Series      map[Metric]*Series `json:"series"`

	RevenueThresholds Thresholds    `json:"revenue_thresholds"`
	ProfitThresholds  Thresholds    `json:"profit_thresholds"`
	ROIBuckets        ROIBuckets    `json:"roi_buckets"`
	Probabilities     Probabilities `json:"probabilities"`
	KPIs              KPIs          `json:"kpis"`
}

// Aggregate reduces runs into a Result. All runs must cover the same number
// of periods.
func Aggregate(runs []model.RunResult, opts Options) (*Result, error) {
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}

	pcts := opts.Percentiles
	if len(pcts) == 0 {
		pcts = DefaultPercentiles
	}
	for _, p := range pcts {
		if math.IsNaN(p) || p < 0 || p > 100 {
			return nil, eris.Wrapf(sim.ErrInvalidParameter, "aggregate: percentile %g out of range", p)
		}
	}
	pcts = slices.Clone(pcts)
	slices.Sort(pcts)
	pcts = slices.Compact(pcts)

	periods := len(runs[0].Periods)
	for i := range runs {
		if len(runs[i].Periods) != periods || periods == 0 {
			return nil, eris.Wrapf(sim.ErrInvalidParameter, "aggregate: run %d has %d periods, want %d", i, len(runs[i].Periods), periods)
		}
	}

	res := &Result{
		Runs:        len(runs),
		Periods:     periods,
		Percentiles: pcts,
		Series:      make(map[Metric]*Series, len(Metrics)),
	}

	column := make([]float64, len(runs))
	for _, m := range Metrics {
		s := &Series{
			Bands: make([]Band, len(pcts)),
			Mean:  make([]float64, periods),
			Std:   make([]float64, periods),
		}
		for k, p := range pcts {
			s.Bands[k] = Band{Percentile: p, Values: make([]float64, periods)}
		}

		for t := 0; t < periods; t++ {
			for i := range runs {
				column[i] = m.value(&runs[i].Periods[t])
			}
			s.Mean[t], s.Std[t] = moments(column)
			slices.Sort(column)
			for k, p := range pcts {
				s.Bands[k].Values[t] = Percentile(column, p)
			}
		}
		res.Series[m] = s
	}

	res.RevenueThresholds = finalThresholds(runs, MetricRevenue)
	res.ProfitThresholds = finalThresholds(runs, MetricProfit)
	summarize(res, runs)
	return res, nil
}

func summarize(res *Result, runs []model.RunResult) {
	n := float64(len(runs))

	var (
		bankrupt, highGrowth, profitable int
		cagrSum                          float64
		cagrCount                        int
		runwaySum                        float64
		runwayCount                      int
		roiSum                           float64
		fundingSum, debtSum              float64
		revenueSum, profitSum            float64
		cells                            float64
	)

	for i := range runs {
		r := &runs[i]
		final := r.Final()

		if r.Bankrupt {
			bankrupt++
		}
		if r.HighGrowth {
			highGrowth++
		}
		if final.Profit > 0 {
			profitable++
		}

		switch {
		case final.ROI < 0:
			res.ROIBuckets.Negative++
		case final.ROI < 10:
			res.ROIBuckets.ZeroToTen++
		case final.ROI < 20:
			res.ROIBuckets.TenToTwenty++
		default:
			res.ROIBuckets.TwentyPlus++
		}

		if r.CAGR != nil && finite(*r.CAGR) {
			cagrSum += *r.CAGR
			cagrCount++
		}

		if minProfit := r.MinProfit(); minProfit < 0 {
			runwaySum += sim.Runway(final.Cash, minProfit)
			runwayCount++
		}

		roiSum += r.FinalROI
		fundingSum += float64(r.FundingEvents)
		debtSum += float64(r.DebtDraws)

		for t := range r.Periods {
			revenueSum += r.Periods[t].Revenue
			profitSum += r.Periods[t].Profit
			cells++
		}
	}

	res.ROIBuckets.Negative /= n
	res.ROIBuckets.ZeroToTen /= n
	res.ROIBuckets.TenToTwenty /= n
	res.ROIBuckets.TwentyPlus /= n

	res.Probabilities = Probabilities{
		Bankruptcy:    float64(bankrupt) / n,
		HighGrowth:    float64(highGrowth) / n,
		Profitability: float64(profitable) / n,
	}

	k := &res.KPIs
	if cagrCount > 0 {
		k.RevenueCAGR = ptr(cagrSum / float64(cagrCount))
	}
	if meanRevenue := revenueSum / cells; meanRevenue > 0 {
		k.ProfitMargin = ptr((profitSum / cells) / meanRevenue)
	}
	if runwayCount > 0 {
		k.CashRunway = ptr(runwaySum / float64(runwayCount))
	}
	k.NoRunwayRiskFraction = float64(len(runs)-runwayCount) / n
	k.MeanFinalROI = roiSum / n
	k.RiskAdjustedROI = k.MeanFinalROI * (1 - res.Probabilities.Bankruptcy)
	k.MeanFundingEvents = fundingSum / n
	k.MeanDebtDraws = debtSum / n
}

func finalThresholds(runs []model.RunResult, m Metric) Thresholds {
	col := make([]float64, len(runs))
	for i := range runs {
		final := runs[i].Final()
		col[i] = m.value(&final)
	}
	slices.Sort(col)
	return Thresholds{
		Low:    Percentile(col, 10),
		Median: Percentile(col, 50),
		High:   Percentile(col, 90),
	}
}

// Percentile returns the p-th percentile (0..100) of sorted using linear
// interpolation between closest ranks. sorted must be ascending and non-empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// moments returns the mean and population standard deviation of xs.
func moments(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func ptr(v float64) *float64 {
	return &v
}
