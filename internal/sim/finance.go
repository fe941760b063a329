package sim

import (
	"math"

	"github.com/sells-group/forecast-cli/internal/model"
)

// Cost cutting, once entered, lasts for the rest of the run.
const (
	rdCutFactor        = 0.70
	marketingCutFactor = 0.80
)

// Funding triggers.
const (
	runwayThresholdQuarters = 3.0
	equityGrowthThreshold   = 0.10
	equityValuationMultiple = 4.0
	equityCooldownQuarters  = 4
)

// Debt terms. The annual rate rises linearly as the credit score falls from
// the top of the scale; applicants below creditDenialFloor are refused.
const (
	debtBaseAnnualRate      = 0.06
	debtCreditSpread        = 0.08
	creditDenialFloor       = 660.0
	maxLeverage             = 2.0 // times annualized revenue
	originationFee          = 0.02
	operatingBufferQuarters = 0.5 // of fixed costs
	amortizeDebtShare       = 0.05
	amortizeProfitShare     = 0.20
	minimumDebtPayment      = 0.02
)

// Bankruptcy is declared after this many consecutive quarters below cashFloor.
const (
	cashFloor         = 0.0
	bankruptcyQuarter = 2
)

type costs struct {
	variable  float64
	fixed     float64
	rd        float64
	marketing float64
}

func (c costs) total() float64 {
	return c.variable + c.fixed + c.rd + c.marketing
}

type funding struct {
	runway      float64 // +Inf when the quarter is profitable
	interest    float64
	amortized   float64
	equity      float64
	debtDrawn   float64
	debtCharged float64 // principal plus origination fee
}

func (f funding) debtService() float64 {
	return f.interest + f.amortized
}

// Stage 5: cost structure.
func (s *state) computeCosts(p *model.CompanyProfile, q *period) {
	rd := p.RDAllocation
	marketing := p.MarketingAllocation
	if s.costCut {
		rd *= rdCutFactor
		marketing *= marketingCutFactor
	}
	marketing *= 1 + q.surcharge

	q.costs = costs{
		variable:  s.revenue * p.VariableCostRatio,
		fixed:     s.fixedCostBase,
		rd:        s.revenue * rd,
		marketing: s.revenue * marketing,
	}
}

// Stage 7: runway, equity, cost cutting and debt.
func (s *state) finance(p *model.CompanyProfile, q *period) {
	f := &q.funding
	f.runway = Runway(s.cash, q.profit)

	f.interest = s.debt * QuarterlyRate(p.CreditScore)
	if q.profit > 0 {
		f.amortized = math.Min(s.debt, math.Max(s.debt*amortizeDebtShare, q.profit*amortizeProfitShare))
	} else {
		f.amortized = s.debt * minimumDebtPayment
	}

	// Strong growth waits out the equity cooldown instead of cutting costs.
	if f.runway < runwayThresholdQuarters {
		switch {
		case q.growthRate <= equityGrowthThreshold:
			s.costCut = true
		case s.t-s.lastEquity >= equityCooldownQuarters:
			f.equity = s.revenue * equityValuationMultiple * q.growthRate
			s.lastEquity = s.t
			s.fundingEvents++
		}
	}

	projected := s.cash + q.profit + f.equity - f.debtService()
	if projected >= cashFloor {
		return
	}
	if p.CreditScore < creditDenialFloor {
		return
	}
	if s.debt >= maxLeverage*quartersPerYear*s.revenue {
		return
	}

	principal := operatingBufferQuarters*q.costs.fixed - projected
	f.debtDrawn = principal
	f.debtCharged = principal * (1 + originationFee)
	s.debtDraws++
}

// Stage 8: cash position and the bankruptcy check. Returns the period's net
// cash flow.
func (s *state) settleCash(q *period) float64 {
	f := q.funding
	flow := q.profit + f.equity + f.debtDrawn - f.debtService()

	s.cash += flow
	s.debt = math.Max(s.debt-f.amortized+f.debtCharged, 0)

	if s.cash < cashFloor {
		s.belowFloor++
	} else {
		s.belowFloor = 0
	}
	if s.belowFloor >= bankruptcyQuarter {
		s.bankrupt = true
	}
	return flow
}

// Runway is the number of quarters cash covers the current loss. It is
// +Inf when the quarter is not loss-making.
func Runway(cash, profit float64) float64 {
	if profit >= 0 {
		return math.Inf(1)
	}
	return cash / -profit
}

// QuarterlyRate maps a credit score to a quarterly interest rate.
func QuarterlyRate(score float64) float64 {
	score = math.Min(math.Max(score, model.MinCreditScore), model.MaxCreditScore)
	annual := debtBaseAnnualRate + debtCreditSpread*(model.MaxCreditScore-score)/(model.MaxCreditScore-model.MinCreditScore)
	return annual / quartersPerYear
}
