package profile

import "github.com/sells-group/forecast-cli/internal/model"

// span is a closed draw range.
type span struct {
	Lo, Hi float64
}

func (s span) scale(f float64) span {
	return span{Lo: s.Lo * f, Hi: s.Hi * f}
}

// industryParams are the per-vertical draw ranges. Growth ranges depend on
// size as well; everything else is scaled by the size and condition tables.
type industryParams struct {
	growthMean   map[model.Size]span
	growthVol    map[model.Size]span
	variableCost span
	fixedCost    span // fraction of initial quarterly revenue
	rd           span
	marketing    span
	marketGrowth span
	marketVol    span
	cyclicality  int
	seasonality  span
	retention    span
	competitor   span
	regulatory   span
	supplyChain  span
}

var industryTable = map[model.Industry]industryParams{
	model.IndustrySaaS: {
		growthMean: map[model.Size]span{
			model.SizeStartup:     {0.06, 0.25},
			model.SizeGrowth:      {0.04, 0.15},
			model.SizeEstablished: {0.02, 0.08},
		},
		growthVol: map[model.Size]span{
			model.SizeStartup:     {0.01, 0.02},
			model.SizeGrowth:      {0.01, 0.025},
			model.SizeEstablished: {0.005, 0.015},
		},
		variableCost: span{0.25, 0.35},
		fixedCost:    span{0.20, 0.35},
		rd:           span{0.12, 0.18},
		marketing:    span{0.12, 0.18},
		marketGrowth: span{0.03, 0.06},
		marketVol:    span{0.01, 0.03},
		cyclicality:  2,
		seasonality:  span{0.005, 0.015},
		retention:    span{0.80, 0.90},
		competitor:   span{0.10, 0.20},
		regulatory:   span{0.05, 0.15},
		supplyChain:  span{0.05, 0.15},
	},
	model.IndustryManufacturing: {
		growthMean: map[model.Size]span{
			model.SizeStartup:     {0.02, 0.06},
			model.SizeGrowth:      {0.015, 0.04},
			model.SizeEstablished: {0.005, 0.025},
		},
		growthVol: map[model.Size]span{
			model.SizeStartup:     {0.015, 0.03},
			model.SizeGrowth:      {0.01, 0.025},
			model.SizeEstablished: {0.008, 0.02},
		},
		variableCost: span{0.55, 0.65},
		fixedCost:    span{0.15, 0.25},
		rd:           span{0.03, 0.07},
		marketing:    span{0.06, 0.10},
		marketGrowth: span{0.01, 0.02},
		marketVol:    span{0.01, 0.02},
		cyclicality:  4,
		seasonality:  span{0.05, 0.10},
		retention:    span{0.85, 0.95},
		competitor:   span{0.05, 0.15},
		regulatory:   span{0.05, 0.15},
		supplyChain:  span{0.15, 0.25},
	},
	model.IndustryRetail: {
		growthMean: map[model.Size]span{
			model.SizeStartup:     {0.03, 0.08},
			model.SizeGrowth:      {0.02, 0.05},
			model.SizeEstablished: {0.005, 0.03},
		},
		growthVol: map[model.Size]span{
			model.SizeStartup:     {0.02, 0.04},
			model.SizeGrowth:      {0.015, 0.03},
			model.SizeEstablished: {0.01, 0.025},
		},
		variableCost: span{0.65, 0.75},
		fixedCost:    span{0.12, 0.20},
		rd:           span{0.01, 0.03},
		marketing:    span{0.10, 0.14},
		marketGrowth: span{0.008, 0.016},
		marketVol:    span{0.015, 0.03},
		cyclicality:  5,
		seasonality:  span{0.15, 0.25},
		retention:    span{0.65, 0.75},
		competitor:   span{0.10, 0.20},
		regulatory:   span{0.05, 0.15},
		supplyChain:  span{0.15, 0.25},
	},
	model.IndustryBiotech: {
		growthMean: map[model.Size]span{
			model.SizeStartup:     {0.04, 0.15},
			model.SizeGrowth:      {0.03, 0.10},
			model.SizeEstablished: {0.01, 0.05},
		},
		growthVol: map[model.Size]span{
			model.SizeStartup:     {0.03, 0.08},
			model.SizeGrowth:      {0.02, 0.06},
			model.SizeEstablished: {0.01, 0.04},
		},
		variableCost: span{0.35, 0.45},
		fixedCost:    span{0.40, 0.70},
		rd:           span{0.20, 0.30},
		marketing:    span{0.08, 0.12},
		marketGrowth: span{0.02, 0.04},
		marketVol:    span{0.02, 0.05},
		cyclicality:  1,
		seasonality:  span{0.02, 0.05},
		retention:    span{0.92, 0.98},
		competitor:   span{0.05, 0.15},
		regulatory:   span{0.20, 0.30},
		supplyChain:  span{0.05, 0.15},
	},
}

// sizeParams hold the initial financial position ranges and the risk
// multipliers for a maturity stage. Revenue is per quarter.
type sizeParams struct {
	revenue       span
	cash          span
	debt          span
	investment    span
	marketShare   span
	creditScore   span
	fixedCostMul  float64
	competitorMul float64
	supplyMul     float64
}

var sizeTable = map[model.Size]sizeParams{
	model.SizeStartup: {
		revenue:       span{25_000, 500_000},
		cash:          span{200_000, 1_000_000},
		debt:          span{0, 500_000},
		investment:    span{500_000, 3_000_000},
		marketShare:   span{0.001, 0.02},
		creditScore:   span{650, 750},
		fixedCostMul:  1.3,
		competitorMul: 1.3,
		supplyMul:     1.2,
	},
	model.SizeGrowth: {
		revenue:       span{250_000, 2_500_000},
		cash:          span{500_000, 3_000_000},
		debt:          span{500_000, 3_000_000},
		investment:    span{2_000_000, 10_000_000},
		marketShare:   span{0.02, 0.08},
		creditScore:   span{680, 780},
		fixedCostMul:  1.0,
		competitorMul: 1.0,
		supplyMul:     1.0,
	},
	model.SizeEstablished: {
		revenue:       span{2_500_000, 25_000_000},
		cash:          span{2_000_000, 20_000_000},
		debt:          span{2_000_000, 20_000_000},
		investment:    span{5_000_000, 50_000_000},
		marketShare:   span{0.05, 0.25},
		creditScore:   span{700, 820},
		fixedCostMul:  0.8,
		competitorMul: 0.8,
		supplyMul:     0.9,
	},
}

// conditionShift moves the draw ranges for a market condition. Offsets are
// added to probabilities; scales multiply.
type conditionShift struct {
	growthScale         float64
	marketGrowthScale   float64
	competitorOffset    float64
	regulatoryOffset    float64
	supplyChainOffset   float64
	regulatoryImpact    float64
	supplyChainDuration float64
}

var conditionTable = map[model.MarketCondition]conditionShift{
	model.MarketBoom: {
		growthScale:         1.3,
		marketGrowthScale:   1.4,
		competitorOffset:    0.10,
		regulatoryImpact:    1.0,
		supplyChainDuration: 1.0,
	},
	model.MarketNormal: {
		growthScale:         1.0,
		marketGrowthScale:   1.0,
		regulatoryImpact:    1.0,
		supplyChainDuration: 1.0,
	},
	model.MarketRecession: {
		growthScale:         0.6,
		marketGrowthScale:   0.4,
		competitorOffset:    0.30,
		regulatoryOffset:    0.05,
		supplyChainOffset:   0.10,
		regulatoryImpact:    1.25,
		supplyChainDuration: 1.40,
	},
}

// scenarioAdjustment multiplies profile fields for an outlook.
type scenarioAdjustment struct {
	growth       float64
	marketGrowth float64
	risk         float64
	retention    float64
}

var scenarioTable = map[model.Scenario]scenarioAdjustment{
	model.ScenarioOptimistic:  {growth: 1.3, marketGrowth: 1.2, risk: 0.7, retention: 1.1},
	model.ScenarioNeutral:     {growth: 1.0, marketGrowth: 1.0, risk: 1.0, retention: 1.0},
	model.ScenarioPessimistic: {growth: 0.7, marketGrowth: 0.7, risk: 1.3, retention: 0.9},
}
