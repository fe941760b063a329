package model

import (
	"math"

	"github.com/rotisserie/eris"
)

// Industry is the company's vertical.
type Industry string

const (
	IndustrySaaS          Industry = "SaaS"
	IndustryManufacturing Industry = "Manufacturing"
	IndustryRetail        Industry = "Retail"
	IndustryBiotech       Industry = "Biotech"
)

// Industries lists every supported industry in table order.
var Industries = []Industry{IndustrySaaS, IndustryManufacturing, IndustryRetail, IndustryBiotech}

// Valid reports whether i is a known industry.
func (i Industry) Valid() bool {
	switch i {
	case IndustrySaaS, IndustryManufacturing, IndustryRetail, IndustryBiotech:
		return true
	}
	return false
}

// Size is the company's maturity stage.
type Size string

const (
	SizeStartup     Size = "startup"
	SizeGrowth      Size = "growth"
	SizeEstablished Size = "established"
)

// Sizes lists every supported company size.
var Sizes = []Size{SizeStartup, SizeGrowth, SizeEstablished}

// Valid reports whether s is a known size.
func (s Size) Valid() bool {
	switch s {
	case SizeStartup, SizeGrowth, SizeEstablished:
		return true
	}
	return false
}

// MarketCondition is the macro environment the company operates in.
type MarketCondition string

const (
	MarketBoom      MarketCondition = "boom"
	MarketNormal    MarketCondition = "normal"
	MarketRecession MarketCondition = "recession"
)

// MarketConditions lists every supported market condition.
var MarketConditions = []MarketCondition{MarketBoom, MarketNormal, MarketRecession}

// Valid reports whether m is a known market condition.
func (m MarketCondition) Valid() bool {
	switch m {
	case MarketBoom, MarketNormal, MarketRecession:
		return true
	}
	return false
}

// Scenario biases a generated profile toward a better or worse outlook.
type Scenario string

const (
	ScenarioOptimistic  Scenario = "optimistic"
	ScenarioNeutral     Scenario = "neutral"
	ScenarioPessimistic Scenario = "pessimistic"
)

// Scenarios lists every supported scenario.
var Scenarios = []Scenario{ScenarioOptimistic, ScenarioNeutral, ScenarioPessimistic}

// Valid reports whether s is a known scenario.
func (s Scenario) Valid() bool {
	switch s {
	case ScenarioOptimistic, ScenarioNeutral, ScenarioPessimistic:
		return true
	}
	return false
}

// CompanyProfile is the numeric parameter set every scenario run of a
// forecast reads from. Rates are quarterly fractions; currency amounts are
// per quarter unless noted.
type CompanyProfile struct {
	Industry        Industry        `json:"industry" yaml:"industry"`
	Size            Size            `json:"size" yaml:"size"`
	MarketCondition MarketCondition `json:"market_condition" yaml:"market_condition"`
	Scenario        Scenario        `json:"scenario,omitempty" yaml:"scenario,omitempty"`

	// Financial structure.
	RevenueGrowthMean       float64 `json:"revenue_growth_mean" yaml:"revenue_growth_mean"`
	RevenueGrowthVolatility float64 `json:"revenue_growth_volatility" yaml:"revenue_growth_volatility"`
	VariableCostRatio       float64 `json:"variable_cost_ratio" yaml:"variable_cost_ratio"`
	FixedCostBase           float64 `json:"fixed_cost_base" yaml:"fixed_cost_base"`
	RDAllocation            float64 `json:"rd_allocation" yaml:"rd_allocation"`
	MarketingAllocation     float64 `json:"marketing_allocation" yaml:"marketing_allocation"`

	// Market dynamics.
	InitialMarketShare   float64 `json:"initial_market_share" yaml:"initial_market_share"`
	MarketGrowthRate     float64 `json:"market_growth_rate" yaml:"market_growth_rate"`
	MarketVolatility     float64 `json:"market_volatility" yaml:"market_volatility"`
	MarketCyclicality    int     `json:"market_cyclicality" yaml:"market_cyclicality"` // 1 (flat) .. 5 (highly cyclical)
	SeasonalityAmplitude float64 `json:"seasonality_amplitude" yaml:"seasonality_amplitude"`

	CustomerRetentionRate float64 `json:"customer_retention_rate" yaml:"customer_retention_rate"`

	// Risk profile. Probabilities are over a 20-quarter horizon.
	CompetitorEntryProbability  float64 `json:"competitor_entry_probability" yaml:"competitor_entry_probability"`
	RegulatoryChangeProbability float64 `json:"regulatory_change_probability" yaml:"regulatory_change_probability"`
	SupplyChainRiskProbability  float64 `json:"supply_chain_risk_probability" yaml:"supply_chain_risk_probability"`
	RegulatoryImpactScale       float64 `json:"regulatory_impact_scale" yaml:"regulatory_impact_scale"`
	SupplyChainDurationScale    float64 `json:"supply_chain_duration_scale" yaml:"supply_chain_duration_scale"`
	CreditScore                 float64 `json:"credit_score" yaml:"credit_score"`

	// Initial financial position.
	InitialRevenue    float64 `json:"initial_revenue" yaml:"initial_revenue"`
	InitialCash       float64 `json:"initial_cash" yaml:"initial_cash"`
	InitialDebt       float64 `json:"initial_debt" yaml:"initial_debt"`
	InitialInvestment float64 `json:"initial_investment" yaml:"initial_investment"`
}

// Credit score bounds.
const (
	MinCreditScore = 650.0
	MaxCreditScore = 820.0
)

// CostRatio returns the share of revenue consumed by the revenue-proportional
// cost lines. Values above 1 mean every quarter loses money before fixed costs.
func (p *CompanyProfile) CostRatio() float64 {
	return p.VariableCostRatio + p.RDAllocation + p.MarketingAllocation
}

// Validate checks the range invariants of a profile. Generated profiles
// always pass; it exists for profiles loaded from files or API payloads.
func (p *CompanyProfile) Validate() error {
	if !p.Industry.Valid() {
		return eris.Errorf("profile: unknown industry %q", p.Industry)
	}
	if !p.Size.Valid() {
		return eris.Errorf("profile: unknown size %q", p.Size)
	}
	if !p.MarketCondition.Valid() {
		return eris.Errorf("profile: unknown market condition %q", p.MarketCondition)
	}
	if p.Scenario != "" && !p.Scenario.Valid() {
		return eris.Errorf("profile: unknown scenario %q", p.Scenario)
	}

	finite := map[string]float64{
		"revenue_growth_mean":           p.RevenueGrowthMean,
		"revenue_growth_volatility":     p.RevenueGrowthVolatility,
		"variable_cost_ratio":           p.VariableCostRatio,
		"fixed_cost_base":               p.FixedCostBase,
		"rd_allocation":                 p.RDAllocation,
		"marketing_allocation":          p.MarketingAllocation,
		"initial_market_share":          p.InitialMarketShare,
		"market_growth_rate":            p.MarketGrowthRate,
		"market_volatility":             p.MarketVolatility,
		"seasonality_amplitude":         p.SeasonalityAmplitude,
		"customer_retention_rate":       p.CustomerRetentionRate,
		"competitor_entry_probability":  p.CompetitorEntryProbability,
		"regulatory_change_probability": p.RegulatoryChangeProbability,
		"supply_chain_risk_probability": p.SupplyChainRiskProbability,
		"regulatory_impact_scale":       p.RegulatoryImpactScale,
		"supply_chain_duration_scale":   p.SupplyChainDurationScale,
		"credit_score":                  p.CreditScore,
		"initial_revenue":               p.InitialRevenue,
		"initial_cash":                  p.InitialCash,
		"initial_debt":                  p.InitialDebt,
		"initial_investment":            p.InitialInvestment,
	}
	for name, v := range finite {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return eris.Errorf("profile: %s must be a finite number, got %g", name, v)
		}
	}

	unit := map[string]float64{
		"variable_cost_ratio":           p.VariableCostRatio,
		"rd_allocation":                 p.RDAllocation,
		"marketing_allocation":          p.MarketingAllocation,
		"initial_market_share":          p.InitialMarketShare,
		"customer_retention_rate":       p.CustomerRetentionRate,
		"competitor_entry_probability":  p.CompetitorEntryProbability,
		"regulatory_change_probability": p.RegulatoryChangeProbability,
		"supply_chain_risk_probability": p.SupplyChainRiskProbability,
		"seasonality_amplitude":         p.SeasonalityAmplitude,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return eris.Errorf("profile: %s must be in [0,1], got %g", name, v)
		}
	}

	if p.InitialMarketShare == 0 {
		return eris.New("profile: initial_market_share must be positive")
	}
	if p.MarketCyclicality < 1 || p.MarketCyclicality > 5 {
		return eris.Errorf("profile: market_cyclicality must be in [1,5], got %d", p.MarketCyclicality)
	}
	if p.CreditScore < MinCreditScore || p.CreditScore > MaxCreditScore {
		return eris.Errorf("profile: credit_score must be in [%g,%g], got %g", MinCreditScore, MaxCreditScore, p.CreditScore)
	}
	if p.RevenueGrowthVolatility < 0 || p.MarketVolatility < 0 {
		return eris.New("profile: volatilities must be non-negative")
	}
	if p.FixedCostBase < 0 || p.InitialDebt < 0 || p.InitialInvestment < 0 {
		return eris.New("profile: fixed_cost_base, initial_debt and initial_investment must be non-negative")
	}
	if p.RegulatoryImpactScale <= 0 || p.SupplyChainDurationScale <= 0 {
		return eris.New("profile: impact and duration scales must be positive")
	}
	return nil
}
