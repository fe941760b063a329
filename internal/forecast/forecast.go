// Package forecast is the entry point collaborators call: it applies request
// defaults, builds the company profile, runs the Monte Carlo batch and
// aggregates it into a single Result.
package forecast

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/aggregate"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/montecarlo"
	"github.com/sells-group/forecast-cli/internal/profile"
)

var (
	// ErrInvalidParameter is returned for bad iteration, period or percentile values.
	ErrInvalidParameter = montecarlo.ErrInvalidParameter
	// ErrInvalidCategory is returned for an unknown industry, size, condition or scenario.
	ErrInvalidCategory = profile.ErrInvalidCategory
)

// profileStream separates the profile draw from the per-run streams that
// share the same seed.
const profileStream = 0x5851f42d4c957f2d

// Request is a forecast request. Unset fields take the service defaults;
// an explicit iteration or period count must be positive.
type Request struct {
	Industry        string    `json:"industry"`
	Size            string    `json:"size"`
	MarketCondition string    `json:"market_condition"`
	Scenario        string    `json:"scenario,omitempty"`
	Iterations      *int      `json:"iterations,omitempty"`
	Periods         *int      `json:"periods,omitempty"`
	Seed            *uint64   `json:"seed,omitempty"`
	Percentiles     []float64 `json:"percentiles,omitempty"`
}

// Settings are the service-wide defaults and limits.
type Settings struct {
	Iterations    int
	Periods       int
	MaxIterations int // 0 means unlimited
	Workers       int
	Percentiles   []float64
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		Iterations:  10000,
		Periods:     20,
		Percentiles: aggregate.DefaultPercentiles,
	}
}

// Result is everything a forecast produces.
type Result struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Request is the effective request with every default filled in,
	// including the seed, so the forecast can be reproduced from it.
	Request Request               `json:"request"`
	Profile *model.CompanyProfile `json:"profile"`

	// CostRatioExceedsRevenue flags profiles whose revenue-proportional costs
	// alone exceed revenue.
	CostRatioExceedsRevenue bool `json:"cost_ratio_exceeds_revenue"`

	Aggregate *aggregate.Result `json:"aggregate"`
	Elapsed   time.Duration     `json:"elapsed_ns"`

	// Partial is set when the batch was cancelled; Aggregate then covers
	// only the runs that completed.
	Partial bool `json:"partial,omitempty"`
}

// Seed returns the seed the forecast ran with.
func (r *Result) Seed() uint64 {
	if r.Request.Seed == nil {
		return 0
	}
	return *r.Request.Seed
}

// Service runs forecasts.
type Service struct {
	settings Settings
	now      func() time.Time
	progress func(completed int) // passed to montecarlo.Options.Progress
}

// NewService creates a Service. Zero fields in s fall back to DefaultSettings.
func NewService(s Settings) *Service {
	def := DefaultSettings()
	if s.Iterations <= 0 {
		s.Iterations = def.Iterations
	}
	if s.Periods <= 0 {
		s.Periods = def.Periods
	}
	if len(s.Percentiles) == 0 {
		s.Percentiles = def.Percentiles
	}
	return &Service{settings: s, now: time.Now}
}

// Settings returns the effective service settings.
func (s *Service) Settings() Settings {
	return s.settings
}

// Normalize fills request defaults and validates numeric fields. It does not
// validate categories; profile generation does that.
func (s *Service) Normalize(req Request) (Request, error) {
	if req.Iterations == nil {
		n := s.settings.Iterations
		req.Iterations = &n
	} else if *req.Iterations <= 0 {
		return req, eris.Wrapf(ErrInvalidParameter, "forecast: iterations must be positive, got %d", *req.Iterations)
	}
	if req.Periods == nil {
		n := s.settings.Periods
		req.Periods = &n
	} else if *req.Periods <= 0 {
		return req, eris.Wrapf(ErrInvalidParameter, "forecast: periods must be positive, got %d", *req.Periods)
	}
	if s.settings.MaxIterations > 0 && *req.Iterations > s.settings.MaxIterations {
		return req, eris.Wrapf(ErrInvalidParameter, "forecast: iterations %d exceeds limit %d", *req.Iterations, s.settings.MaxIterations)
	}
	if len(req.Percentiles) == 0 {
		req.Percentiles = s.settings.Percentiles
	}
	for _, p := range req.Percentiles {
		if math.IsNaN(p) || p < 0 || p > 100 {
			return req, eris.Wrapf(ErrInvalidParameter, "forecast: percentile %g out of range", p)
		}
	}
	if req.Scenario == "" {
		req.Scenario = string(model.ScenarioNeutral)
	}
	if req.Seed == nil {
		seed := uint64(s.now().UnixNano())
		req.Seed = &seed
	}
	return req, nil
}

// Profile normalizes req and generates its company profile, scenario
// adjustments included.
func (s *Service) Profile(req Request) (*model.CompanyProfile, Request, error) {
	req, err := s.Normalize(req)
	if err != nil {
		return nil, req, err
	}

	scenario, err := profile.ParseScenario(req.Scenario)
	if err != nil {
		return nil, req, err
	}

	rng := rand.New(rand.NewPCG(*req.Seed, profileStream))
	p, err := profile.GenerateFromStrings(req.Industry, req.Size, req.MarketCondition, rng)
	if err != nil {
		return nil, req, err
	}
	p, err = profile.ApplyScenario(p, scenario)
	if err != nil {
		return nil, req, err
	}

	// Echo canonical category spellings.
	req.Industry = string(p.Industry)
	req.Size = string(p.Size)
	req.MarketCondition = string(p.MarketCondition)
	req.Scenario = string(p.Scenario)
	return p, req, nil
}

// Run generates a profile from the request categories and forecasts it.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	p, req, err := s.Profile(req)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, p, req)
}

// RunProfile forecasts an explicit profile. The request's categories are
// ignored; its numeric fields and seed apply as in Run.
func (s *Service) RunProfile(ctx context.Context, p *model.CompanyProfile, req Request) (*Result, error) {
	if p == nil {
		return nil, eris.Wrap(ErrInvalidParameter, "forecast: profile is required")
	}
	if err := p.Validate(); err != nil {
		return nil, eris.Wrapf(ErrInvalidParameter, "forecast: validate profile: %v", err)
	}

	req, err := s.Normalize(req)
	if err != nil {
		return nil, err
	}
	req.Industry = string(p.Industry)
	req.Size = string(p.Size)
	req.MarketCondition = string(p.MarketCondition)
	if p.Scenario != "" {
		req.Scenario = string(p.Scenario)
	}
	return s.run(ctx, p, req)
}

func (s *Service) run(ctx context.Context, p *model.CompanyProfile, req Request) (*Result, error) {
	log := zap.L().With(
		zap.String("industry", req.Industry),
		zap.String("size", req.Size),
		zap.String("market_condition", req.MarketCondition),
		zap.String("scenario", req.Scenario),
		zap.Uint64("seed", *req.Seed),
	)
	start := s.now()

	batch, err := montecarlo.Run(ctx, p, montecarlo.Options{
		Iterations: *req.Iterations,
		Periods:    *req.Periods,
		Seed:       *req.Seed,
		Workers:    s.settings.Workers,
		Progress:   s.progress,
	})
	// A cancelled batch still aggregates the runs that finished.
	var runErr error
	if err != nil {
		runErr = eris.Wrap(err, "forecast: simulate")
		if batch == nil || len(batch.Runs) == 0 {
			return nil, runErr
		}
	}

	agg, err := aggregate.Aggregate(batch.Runs, aggregate.Options{Percentiles: req.Percentiles})
	if err != nil {
		return nil, eris.Wrap(err, "forecast: aggregate")
	}

	res := &Result{
		ID:                      uuid.New().String(),
		CreatedAt:               start.UTC(),
		Request:                 req,
		Profile:                 p,
		CostRatioExceedsRevenue: p.CostRatio() > 1,
		Aggregate:               agg,
		Elapsed:                 s.now().Sub(start),
		Partial:                 !batch.Complete(),
	}

	if res.Partial {
		log.Warn("forecast incomplete",
			zap.String("id", res.ID),
			zap.Int("completed", len(batch.Runs)),
			zap.Int("requested", batch.Requested),
			zap.Error(runErr),
		)
		return res, runErr
	}

	log.Info("forecast complete",
		zap.String("id", res.ID),
		zap.Int("iterations", *req.Iterations),
		zap.Int("periods", *req.Periods),
		zap.Float64("bankruptcy_probability", agg.Probabilities.Bankruptcy),
		zap.Float64("high_growth_probability", agg.Probabilities.HighGrowth),
		zap.Duration("elapsed", res.Elapsed),
	)
	if res.CostRatioExceedsRevenue {
		log.Warn("forecast: variable, R&D and marketing costs exceed revenue", zap.Float64("cost_ratio", p.CostRatio()))
	}
	return res, nil
}
