// Package sim runs a single quarterly scenario for a company profile.
//
// Every period executes the same fixed stage pipeline:
//
//	cycle -> market size -> risk events -> growth -> costs -> profit -> financing -> cash
//
// Later stages read what earlier stages wrote in the same period, so the
// order is part of the model and must not change.
package sim

import (
	"math"
	"math/rand/v2"

	"github.com/rotisserie/eris"

	"github.com/sells-group/forecast-cli/internal/model"
)

// ErrInvalidParameter is returned for non-positive period or iteration counts
// and other malformed run parameters.
var ErrInvalidParameter = eris.New("invalid parameter")

const (
	cycleAmplitude      = 0.20
	quartersPerYear     = 4
	shareCeiling        = 0.80
	shareCeilingFactor  = 5.0
	sCurveSteepness     = 0.5
	sCurveMidpoint      = 10.0
	acquisitionBaseRate = 0.10
	shockClamp          = 2.0
	minMarketFactor     = 0.01
	highGrowthMultiple  = 3.0
)

// Options are test and tooling switches. The zero value is the normal model.
type Options struct {
	// DisableRisk forces every risk probability to zero.
	DisableRisk bool
}

// state is owned by exactly one run.
type state struct {
	t int

	baseRevenue float64 // revenue before temporary effects and seasonality
	revenue     float64
	cash        float64
	debt        float64
	marketSize  float64
	marketShare float64 // fraction

	fixedCostBase float64
	retention     float64
	disruption    disruption

	costCut       bool
	fundingEvents int
	debtDraws     int
	lastEquity    int
	belowFloor    int
	bankrupt      bool
}

// period holds the values flowing between stages of one quarter.
type period struct {
	cycleFactor  float64
	marketGrowth float64
	season       float64
	effects      []effect
	tempMult     float64
	surcharge    float64
	growthRate   float64
	costs        costs
	profit       float64
	funding      funding
}

// Simulate runs one scenario of the given number of quarters.
func Simulate(p *model.CompanyProfile, periods int, rng *rand.Rand) (model.RunResult, error) {
	return SimulateWithOptions(p, periods, rng, Options{})
}

// SimulateWithOptions is Simulate with explicit model switches.
func SimulateWithOptions(p *model.CompanyProfile, periods int, rng *rand.Rand, opts Options) (model.RunResult, error) {
	if p == nil {
		return model.RunResult{}, eris.Wrap(ErrInvalidParameter, "sim: profile is required")
	}
	if periods <= 0 {
		return model.RunResult{}, eris.Wrapf(ErrInvalidParameter, "sim: periods must be positive, got %d", periods)
	}
	if rng == nil {
		return model.RunResult{}, eris.Wrap(ErrInvalidParameter, "sim: random source is required")
	}

	s := newState(p)
	res := model.RunResult{
		Periods:        make([]model.PeriodMetrics, 0, periods),
		BankruptPeriod: -1,
		InitialRevenue: p.InitialRevenue,
	}

	for t := 0; t < periods; t++ {
		if s.bankrupt {
			held := res.Periods[len(res.Periods)-1]
			held.Period = t
			held.Events = nil
			held.EquityRaised = 0
			held.DebtDrawn = 0
			res.Periods = append(res.Periods, held)
			continue
		}

		s.t = t
		m := s.step(p, rng, opts)
		if s.bankrupt {
			res.Bankrupt = true
			res.BankruptPeriod = t
		}
		res.Periods = append(res.Periods, m)
	}

	final := res.Final()
	res.FinalROI = final.ROI
	res.FundingEvents = s.fundingEvents
	res.DebtDraws = s.debtDraws
	res.CAGR = CAGR(p.InitialRevenue, final.Revenue, periods)
	res.HighGrowth = p.InitialRevenue > 0 && final.Revenue > highGrowthMultiple*p.InitialRevenue
	return res, nil
}

func newState(p *model.CompanyProfile) *state {
	share := p.InitialMarketShare
	revenue := p.InitialRevenue
	marketSize := 0.0
	if share > 0 {
		marketSize = math.Max(revenue, 1) / share
	}
	return &state{
		baseRevenue:   revenue,
		revenue:       revenue,
		cash:          p.InitialCash,
		debt:          p.InitialDebt,
		marketSize:    marketSize,
		marketShare:   share,
		fixedCostBase: p.FixedCostBase,
		retention:     p.CustomerRetentionRate,
		lastEquity:    -equityCooldownQuarters,
	}
}

// step advances the state by one quarter and returns its snapshot.
func (s *state) step(p *model.CompanyProfile, rng *rand.Rand, opts Options) model.PeriodMetrics {
	var q period

	s.economicCycle(p, rng, &q)
	s.updateMarket(p, &q)
	s.applyRisks(p, rng, opts, &q)
	s.grow(p, rng, &q)
	s.computeCosts(p, &q)
	q.profit = s.revenue - q.costs.total()
	s.finance(p, &q)
	cashFlow := s.settleCash(&q)

	roi := 0.0
	if p.InitialInvestment > 0 {
		roi = q.profit / p.InitialInvestment * 100
	}

	m := model.PeriodMetrics{
		Period:        s.t,
		Revenue:       s.revenue,
		Profit:        q.profit,
		Cash:          s.cash,
		Debt:          s.debt,
		ROI:           roi,
		MarketShare:   s.marketShare * 100,
		CashFlow:      cashFlow,
		GrowthRate:    q.growthRate,
		EquityRaised:  q.funding.equity,
		DebtDrawn:     q.funding.debtDrawn,
		CostCutActive: s.costCut,
		Bankrupt:      s.bankrupt,
	}
	for _, e := range q.effects {
		m.Events = append(m.Events, e.event)
	}
	return m
}

// Stage 1: economic cycle.
func (s *state) economicCycle(p *model.CompanyProfile, rng *rand.Rand, q *period) {
	length := CycleLength(p.MarketCyclicality)
	q.cycleFactor = 1 + cycleAmplitude*math.Sin(2*math.Pi*float64(s.t)/length)
	q.marketGrowth = p.MarketGrowthRate*q.cycleFactor + p.MarketVolatility*rng.NormFloat64()
}

// Stage 2: market size.
func (s *state) updateMarket(p *model.CompanyProfile, q *period) {
	q.season = Seasonality(p.SeasonalityAmplitude, s.t)
	s.marketSize *= math.Max(1+q.marketGrowth+q.season, minMarketFactor)
}

// Stage 3: risk events, then the active disruption's temporary effects.
func (s *state) applyRisks(p *model.CompanyProfile, rng *rand.Rand, opts Options, q *period) {
	q.effects = rollRisks(p, rng, opts.DisableRisk)
	q.tempMult = 1

	for _, e := range q.effects {
		switch e.event {
		case model.RiskCompetitorEntry:
			s.baseRevenue *= 1 - e.magnitude
			q.surcharge += competitorMarketingSurcharge
		case model.RiskRegulatoryChange:
			q.tempMult *= 1 - e.magnitude
			s.fixedCostBase *= 1 + regulatoryFixedCostUplift
		case model.RiskSupplyChain:
			s.disruption.start(e.magnitude, e.duration)
		}
	}

	if s.disruption.active() {
		q.tempMult *= 1 - s.disruption.hit
		s.retention = math.Max(p.CustomerRetentionRate-supplyRetentionDrop, 0)
		s.disruption.tick()
	} else {
		s.retention = p.CustomerRetentionRate
	}
}

// Stage 4: growth under the S-curve and the market-share ceiling.
func (s *state) grow(p *model.CompanyProfile, rng *rand.Rand, q *period) {
	prevRevenue := s.revenue
	prevShare := s.marketShare
	maxShare := MaxShare(prevShare)

	z := math.Min(math.Max(rng.NormFloat64(), -shockClamp), shockClamp)
	organic := p.RevenueGrowthMean + p.RevenueGrowthVolatility*z

	newCustomers := 0.0
	if maxShare > 0 {
		newCustomers = acquisitionBaseRate * (1 - prevShare/maxShare) * math.Max(organic, 0) * SCurve(s.t)
	}
	drag := p.CustomerRetentionRate - s.retention

	s.baseRevenue *= math.Max(1+organic+newCustomers-drag, 0)
	seasonMult := math.Max(1+q.season, 0)
	revenue := s.baseRevenue * q.tempMult * seasonMult

	if s.marketSize > 0 && revenue/s.marketSize > maxShare {
		revenue = maxShare * s.marketSize
		if denom := q.tempMult * seasonMult; denom > 0 {
			s.baseRevenue = revenue / denom
		}
	}

	s.revenue = revenue
	if s.marketSize > 0 {
		s.marketShare = revenue / s.marketSize
	}
	if prevRevenue > 0 {
		q.growthRate = revenue/prevRevenue - 1
	}
}

// SCurve is the logistic adoption factor for quarter t.
func SCurve(t int) float64 {
	return 1 / (1 + math.Exp(-sCurveSteepness*(float64(t)-sCurveMidpoint)))
}

// MaxShare is the market-share ceiling reachable from the previous share.
func MaxShare(prevShare float64) float64 {
	return math.Min(shareCeiling, shareCeilingFactor*prevShare)
}

// CycleLength maps market cyclicality (1..5) to an economic cycle length in
// quarters. More cyclical industries swing faster.
func CycleLength(cyclicality int) float64 {
	c := min(max(cyclicality, 1), 5)
	return float64(8 + 4*(6-c))
}

// Seasonality is the quarterly seasonal adjustment for quarter t.
func Seasonality(amplitude float64, t int) float64 {
	return amplitude * math.Sin(2*math.Pi*float64(t)/quartersPerYear)
}

// CAGR returns the compound annual revenue growth over the given number of
// quarters, or nil when the start value is not positive.
func CAGR(initial, final float64, periods int) *float64 {
	if initial <= 0 || periods <= 0 || final < 0 {
		return nil
	}
	years := float64(periods) / quartersPerYear
	v := math.Pow(final/initial, 1/years) - 1
	return &v
}
