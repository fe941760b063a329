package sim

import (
	"math"
	"math/rand/v2"

	"github.com/sells-group/forecast-cli/internal/model"
)

// Profile probabilities describe the chance of an event over this many
// quarters; each period draws against the per-quarter share.
const riskHorizonQuarters = 20.0

const (
	competitorLossMin            = 0.05
	competitorLossMax            = 0.20
	competitorMarketingSurcharge = 0.20 // fraction of the marketing allocation, this period only

	regulatoryHitMin          = 0.05
	regulatoryHitMax          = 0.30
	regulatoryHitCap          = 0.95
	regulatoryFixedCostUplift = 0.10

	supplyHitMin        = 0.10
	supplyHitMax        = 0.25
	supplyMinDuration   = 1
	supplyMaxDuration   = 3
	supplyRetentionDrop = 0.05
)

// effect is one triggered risk event. A period's effects are applied in
// slice order, which is always competitor, regulatory, supply chain.
type effect struct {
	event     model.RiskEvent
	magnitude float64
	duration  int
}

// riskSpec pairs a category with its per-period probability.
type riskSpec struct {
	event model.RiskEvent
	prob  float64
}

// rollRisks draws every category in fixed order. The same number of draws
// is consumed whether or not an event triggers, so one category firing
// never shifts the random stream of another.
func rollRisks(p *model.CompanyProfile, rng *rand.Rand, disabled bool) []effect {
	specs := [...]riskSpec{
		{model.RiskCompetitorEntry, p.CompetitorEntryProbability},
		{model.RiskRegulatoryChange, p.RegulatoryChangeProbability},
		{model.RiskSupplyChain, p.SupplyChainRiskProbability},
	}

	var out []effect
	for _, spec := range specs {
		trigger := rng.Float64()
		magnitude := rng.Float64()
		span := rng.IntN(supplyMaxDuration-supplyMinDuration+1) + supplyMinDuration

		prob := PeriodProbability(spec.prob)
		if disabled || trigger >= prob {
			continue
		}

		e := effect{event: spec.event}
		switch spec.event {
		case model.RiskCompetitorEntry:
			e.magnitude = lerp(competitorLossMin, competitorLossMax, magnitude)
		case model.RiskRegulatoryChange:
			e.magnitude = math.Min(lerp(regulatoryHitMin, regulatoryHitMax, magnitude)*p.RegulatoryImpactScale, regulatoryHitCap)
		case model.RiskSupplyChain:
			e.magnitude = lerp(supplyHitMin, supplyHitMax, magnitude)
			e.duration = max(int(math.Round(float64(span)*p.SupplyChainDurationScale)), 1)
		}
		out = append(out, e)
	}
	return out
}

// PeriodProbability converts a horizon probability into a per-quarter one.
func PeriodProbability(horizonProb float64) float64 {
	return math.Min(math.Max(horizonProb/riskHorizonQuarters, 0), 1)
}

// disruption tracks an active supply-chain penalty.
type disruption struct {
	remaining int
	hit       float64
}

// start begins a disruption or, if one is running, keeps the harsher hit and
// the longer remaining duration.
func (d *disruption) start(hit float64, duration int) {
	d.hit = math.Max(d.hit, hit)
	d.remaining = max(d.remaining, duration)
}

func (d *disruption) active() bool {
	return d.remaining > 0
}

// tick consumes one period of the disruption.
func (d *disruption) tick() {
	d.remaining--
	if d.remaining <= 0 {
		d.remaining = 0
		d.hit = 0
	}
}

func lerp(lo, hi, u float64) float64 {
	return lo + (hi-lo)*u
}
