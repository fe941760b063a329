// Package profile turns categorical company descriptions into the numeric
// parameter sets the simulator runs on.
package profile

import (
	"math"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/forecast-cli/internal/model"
)

// ErrInvalidCategory is returned when an industry, size, market condition or
// scenario value is not recognized.
var ErrInvalidCategory = eris.New("invalid category")

// Generate draws a CompanyProfile for the given categories from rng. The
// number of draws is the same for every category combination, so the same
// seed always reproduces the same profile.
func Generate(industry model.Industry, size model.Size, condition model.MarketCondition, rng *rand.Rand) (*model.CompanyProfile, error) {
	ind, ok := industryTable[industry]
	if !ok {
		return nil, eris.Wrapf(ErrInvalidCategory, "profile: industry %q", industry)
	}
	sz, ok := sizeTable[size]
	if !ok {
		return nil, eris.Wrapf(ErrInvalidCategory, "profile: size %q", size)
	}
	cond, ok := conditionTable[condition]
	if !ok {
		return nil, eris.Wrapf(ErrInvalidCategory, "profile: market condition %q", condition)
	}
	if rng == nil {
		return nil, eris.New("profile: random source is required")
	}

	d := drawer{rng: rng}

	p := &model.CompanyProfile{
		Industry:        industry,
		Size:            size,
		MarketCondition: condition,
		Scenario:        model.ScenarioNeutral,
	}

	p.RevenueGrowthMean = d.uniform(ind.growthMean[size].scale(cond.growthScale))
	p.RevenueGrowthVolatility = d.logNormal(ind.growthVol[size])
	p.VariableCostRatio = clamp01(d.uniform(ind.variableCost))
	fixedCostRatio := d.uniform(ind.fixedCost)
	p.RDAllocation = clamp01(d.uniform(ind.rd))
	p.MarketingAllocation = clamp01(d.uniform(ind.marketing))

	p.InitialMarketShare = clamp01(d.uniform(sz.marketShare))
	p.MarketGrowthRate = d.uniform(ind.marketGrowth.scale(cond.marketGrowthScale))
	p.MarketVolatility = d.logNormal(ind.marketVol)
	p.MarketCyclicality = ind.cyclicality
	p.SeasonalityAmplitude = clamp01(d.uniform(ind.seasonality))
	p.CustomerRetentionRate = clamp01(d.uniform(ind.retention))

	p.CompetitorEntryProbability = clamp01(d.uniform(ind.competitor)*sz.competitorMul + cond.competitorOffset)
	p.RegulatoryChangeProbability = clamp01(d.uniform(ind.regulatory) + cond.regulatoryOffset)
	p.SupplyChainRiskProbability = clamp01(d.uniform(ind.supplyChain)*sz.supplyMul + cond.supplyChainOffset)
	p.RegulatoryImpactScale = cond.regulatoryImpact
	p.SupplyChainDurationScale = cond.supplyChainDuration
	p.CreditScore = clampScore(d.uniform(sz.creditScore))

	p.InitialRevenue = d.uniform(sz.revenue)
	p.InitialCash = d.uniform(sz.cash)
	p.InitialDebt = d.uniform(sz.debt)
	p.InitialInvestment = d.uniform(sz.investment)
	p.FixedCostBase = p.InitialRevenue * fixedCostRatio * sz.fixedCostMul

	zap.L().Debug("profile: generated",
		zap.String("industry", string(industry)),
		zap.String("size", string(size)),
		zap.String("market_condition", string(condition)),
		zap.Float64("revenue_growth_mean", p.RevenueGrowthMean),
		zap.Float64("initial_revenue", p.InitialRevenue),
		zap.Float64("cost_ratio", p.CostRatio()),
	)

	return p, nil
}

// GenerateFromStrings parses the categories and calls Generate.
func GenerateFromStrings(industry, size, condition string, rng *rand.Rand) (*model.CompanyProfile, error) {
	ind, err := ParseIndustry(industry)
	if err != nil {
		return nil, err
	}
	sz, err := ParseSize(size)
	if err != nil {
		return nil, err
	}
	cond, err := ParseMarketCondition(condition)
	if err != nil {
		return nil, err
	}
	return Generate(ind, sz, cond, rng)
}

// ApplyScenario returns a copy of p adjusted toward the given outlook.
// Probabilities and retention are re-clamped to [0,1].
func ApplyScenario(p *model.CompanyProfile, scenario model.Scenario) (*model.CompanyProfile, error) {
	adj, ok := scenarioTable[scenario]
	if !ok {
		return nil, eris.Wrapf(ErrInvalidCategory, "profile: scenario %q", scenario)
	}

	out := *p
	out.Scenario = scenario
	out.RevenueGrowthMean *= adj.growth
	out.MarketGrowthRate *= adj.marketGrowth
	out.CompetitorEntryProbability = clamp01(out.CompetitorEntryProbability * adj.risk)
	out.RegulatoryChangeProbability = clamp01(out.RegulatoryChangeProbability * adj.risk)
	out.SupplyChainRiskProbability = clamp01(out.SupplyChainRiskProbability * adj.risk)
	out.CustomerRetentionRate = clamp01(out.CustomerRetentionRate * adj.retention)
	return &out, nil
}

// LoadFile reads an explicit profile from a YAML file.
func LoadFile(path string) (*model.CompanyProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: read %s", path)
	}

	// Accept either a bare profile or one nested under "profile".
	var wrapper struct {
		Profile *model.CompanyProfile `yaml:"profile"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "profile: parse yaml")
	}
	p := wrapper.Profile
	if p == nil {
		p = &model.CompanyProfile{}
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, eris.Wrap(err, "profile: parse yaml")
		}
	}

	if p.Scenario == "" {
		p.Scenario = model.ScenarioNeutral
	}
	if p.RegulatoryImpactScale == 0 {
		p.RegulatoryImpactScale = 1
	}
	if p.SupplyChainDurationScale == 0 {
		p.SupplyChainDurationScale = 1
	}
	if err := p.Validate(); err != nil {
		return nil, eris.Wrapf(err, "profile: validate %s", path)
	}
	return p, nil
}

// ParseIndustry matches s case-insensitively against the known industries.
func ParseIndustry(s string) (model.Industry, error) {
	for _, v := range model.Industries {
		if strings.EqualFold(string(v), strings.TrimSpace(s)) {
			return v, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidCategory, "profile: industry %q", s)
}

// ParseSize matches s case-insensitively against the known sizes.
func ParseSize(s string) (model.Size, error) {
	for _, v := range model.Sizes {
		if strings.EqualFold(string(v), strings.TrimSpace(s)) {
			return v, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidCategory, "profile: size %q", s)
}

// ParseMarketCondition matches s case-insensitively against the known conditions.
func ParseMarketCondition(s string) (model.MarketCondition, error) {
	for _, v := range model.MarketConditions {
		if strings.EqualFold(string(v), strings.TrimSpace(s)) {
			return v, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidCategory, "profile: market condition %q", s)
}

// ParseScenario matches s case-insensitively. An empty string means neutral.
func ParseScenario(s string) (model.Scenario, error) {
	if strings.TrimSpace(s) == "" {
		return model.ScenarioNeutral, nil
	}
	for _, v := range model.Scenarios {
		if strings.EqualFold(string(v), strings.TrimSpace(s)) {
			return v, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidCategory, "profile: scenario %q", s)
}

// drawer wraps the random source with the two draw shapes the tables use.
type drawer struct {
	rng *rand.Rand
}

func (d drawer) uniform(s span) float64 {
	return s.Lo + d.rng.Float64()*(s.Hi-s.Lo)
}

// logNormal draws around the geometric centre of s with ±2σ spanning the
// range, then clamps into it.
func (d drawer) logNormal(s span) float64 {
	if s.Lo <= 0 || s.Hi <= s.Lo {
		return d.uniform(s)
	}
	center := math.Sqrt(s.Lo * s.Hi)
	sigma := math.Log(s.Hi/s.Lo) / 4
	v := center * math.Exp(sigma*d.rng.NormFloat64())
	return math.Min(math.Max(v, s.Lo), s.Hi)
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

func clampScore(v float64) float64 {
	return math.Min(math.Max(v, model.MinCreditScore), model.MaxCreditScore)
}
