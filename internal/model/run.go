package model

// RiskEvent identifies a risk category. The declaration order is the order
// events are evaluated and applied within a period.
type RiskEvent string

const (
	RiskCompetitorEntry  RiskEvent = "competitor_entry"
	RiskRegulatoryChange RiskEvent = "regulatory_change"
	RiskSupplyChain      RiskEvent = "supply_chain"
)

// PeriodMetrics is the snapshot appended at the end of every simulated quarter.
type PeriodMetrics struct {
	Period      int     `json:"period"`
	Revenue     float64 `json:"revenue"`
	Profit      float64 `json:"profit"`
	Cash        float64 `json:"cash"`
	Debt        float64 `json:"debt"`
	ROI         float64 `json:"roi"`          // profit / initial investment * 100
	MarketShare float64 `json:"market_share"` // revenue / market size * 100
	CashFlow    float64 `json:"cash_flow"`
	GrowthRate  float64 `json:"growth_rate"`

	Events        []RiskEvent `json:"events,omitempty"`
	EquityRaised  float64     `json:"equity_raised,omitempty"`
	DebtDrawn     float64     `json:"debt_drawn,omitempty"`
	CostCutActive bool        `json:"cost_cut_active,omitempty"`
	Bankrupt      bool        `json:"bankrupt,omitempty"`
}

// RunResult is the immutable outcome of one scenario run.
type RunResult struct {
	Periods []PeriodMetrics `json:"periods"`

	Bankrupt       bool     `json:"bankrupt"`
	BankruptPeriod int      `json:"bankrupt_period"` // -1 when solvent
	HighGrowth     bool     `json:"high_growth"`
	FinalROI       float64  `json:"final_roi"`
	CAGR           *float64 `json:"cagr"` // nil when initial revenue is not positive
	FundingEvents  int      `json:"funding_events"`
	DebtDraws      int      `json:"debt_draws"`
	InitialRevenue float64  `json:"initial_revenue"`
}

// Final returns the last period snapshot. Runs always hold at least one period.
func (r *RunResult) Final() PeriodMetrics {
	return r.Periods[len(r.Periods)-1]
}

// MinProfit returns the lowest profit observed across the run.
func (r *RunResult) MinProfit() float64 {
	lowest := r.Periods[0].Profit
	for _, pm := range r.Periods[1:] {
		if pm.Profit < lowest {
			lowest = pm.Profit
		}
	}
	return lowest
}
