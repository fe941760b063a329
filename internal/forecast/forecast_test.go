package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/forecast-cli/internal/model"
)

func seed(v uint64) *uint64 { return &v }

func count(v int) *int { return &v }

func newTestService() *Service {
	s := NewService(Settings{Iterations: 200, Periods: 12, MaxIterations: 5000, Workers: 4})
	s.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return s
}

func TestNewService_Defaults(t *testing.T) {
	s := NewService(Settings{})
	got := s.Settings()
	assert.Equal(t, 10000, got.Iterations)
	assert.Equal(t, 20, got.Periods)
	assert.Equal(t, []float64{10, 50, 90}, got.Percentiles)
}

func TestNormalize(t *testing.T) {
	s := newTestService()

	req, err := s.Normalize(Request{Industry: "SaaS"})
	require.NoError(t, err)
	assert.Equal(t, 200, *req.Iterations)
	assert.Equal(t, 12, *req.Periods)
	assert.Equal(t, "neutral", req.Scenario)
	assert.Equal(t, []float64{10, 50, 90}, req.Percentiles)
	require.NotNil(t, req.Seed)
	assert.Equal(t, uint64(time.Unix(1_700_000_000, 0).UnixNano()), *req.Seed)

	req, err = s.Normalize(Request{Seed: seed(7), Iterations: count(10), Periods: count(3)})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), *req.Seed)
	assert.Equal(t, 10, *req.Iterations)
	assert.Equal(t, 3, *req.Periods)
}

func TestNormalize_Invalid(t *testing.T) {
	s := newTestService()
	tests := []struct {
		name string
		req  Request
	}{
		{"negative iterations", Request{Iterations: count(-1)}},
		{"zero iterations", Request{Iterations: count(0)}},
		{"negative periods", Request{Periods: count(-4)}},
		{"zero periods", Request{Periods: count(0)}},
		{"above limit", Request{Iterations: count(5001)}},
		{"bad percentile", Request{Percentiles: []float64{50, 150}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Normalize(tt.req)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestProfile_Reproducible(t *testing.T) {
	s := newTestService()
	req := Request{Industry: "biotech", Size: "Growth", MarketCondition: "boom", Seed: seed(99)}

	a, effective, err := s.Profile(req)
	require.NoError(t, err)
	b, _, err := s.Profile(req)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Equal(t, "Biotech", effective.Industry)
	assert.Equal(t, "growth", effective.Size)
	assert.Equal(t, "boom", effective.MarketCondition)
	assert.Equal(t, "neutral", effective.Scenario)
}

func TestProfile_InvalidCategory(t *testing.T) {
	s := newTestService()
	_, _, err := s.Profile(Request{Industry: "Mining", Size: "startup", MarketCondition: "normal"})
	assert.ErrorIs(t, err, ErrInvalidCategory)

	_, _, err = s.Profile(Request{Industry: "SaaS", Size: "startup", MarketCondition: "normal", Scenario: "wild"})
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestRun(t *testing.T) {
	s := newTestService()
	res, err := s.Run(context.Background(), Request{
		Industry:        "SaaS",
		Size:            "startup",
		MarketCondition: "normal",
		Scenario:        "optimistic",
		Iterations:      count(300),
		Seed:            seed(2024),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, uint64(2024), res.Seed())
	assert.Equal(t, model.ScenarioOptimistic, res.Profile.Scenario)
	assert.Equal(t, 300, res.Aggregate.Runs)
	assert.Equal(t, 12, res.Aggregate.Periods)
	assert.Equal(t, res.Profile.CostRatio() > 1, res.CostRatioExceedsRevenue)

	pr := res.Aggregate.Probabilities
	for _, v := range []float64{pr.Bankruptcy, pr.HighGrowth, pr.Profitability} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestRun_ReproducibleAcrossWorkerCounts(t *testing.T) {
	req := Request{Industry: "Retail", Size: "growth", MarketCondition: "recession", Iterations: count(250), Seed: seed(5)}

	a := NewService(Settings{Periods: 16, Workers: 1})
	b := NewService(Settings{Periods: 16, Workers: 8})

	ra, err := a.Run(context.Background(), req)
	require.NoError(t, err)
	rb, err := b.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ra.Profile, rb.Profile)
	assert.Equal(t, ra.Aggregate, rb.Aggregate)
	assert.NotEqual(t, ra.ID, rb.ID)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestService().Run(ctx, Request{Industry: "SaaS", Size: "startup", MarketCondition: "normal", Seed: seed(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_CancelledKeepsCompletedRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newTestService()
	s.progress = func(completed int) {
		if completed >= 20 {
			cancel()
		}
	}

	res, err := s.Run(ctx, Request{
		Industry:        "SaaS",
		Size:            "growth",
		MarketCondition: "normal",
		Iterations:      count(5000),
		Periods:         count(8),
		Seed:            seed(11),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)

	assert.True(t, res.Partial)
	assert.GreaterOrEqual(t, res.Aggregate.Runs, 20)
	assert.Less(t, res.Aggregate.Runs, 5000)
	assert.Equal(t, 5000, *res.Request.Iterations)
	assert.Equal(t, 8, res.Aggregate.Periods)
	assert.NotEmpty(t, res.ID)
}

func TestRun_CompleteIsNotPartial(t *testing.T) {
	res, err := newTestService().Run(context.Background(), Request{
		Industry: "SaaS", Size: "growth", MarketCondition: "normal", Iterations: count(30), Seed: seed(11),
	})
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.Equal(t, 30, res.Aggregate.Runs)
}

func TestRunProfile(t *testing.T) {
	s := newTestService()
	p, _, err := s.Profile(Request{Industry: "Manufacturing", Size: "established", MarketCondition: "normal", Seed: seed(3)})
	require.NoError(t, err)

	res, err := s.RunProfile(context.Background(), p, Request{Iterations: count(50), Periods: count(8), Seed: seed(3)})
	require.NoError(t, err)
	assert.Equal(t, "Manufacturing", res.Request.Industry)
	assert.Equal(t, "established", res.Request.Size)
	assert.Equal(t, 8, res.Aggregate.Periods)
	assert.Same(t, p, res.Profile)
}

func TestRunProfile_Invalid(t *testing.T) {
	s := newTestService()

	_, err := s.RunProfile(context.Background(), nil, Request{})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	bad := &model.CompanyProfile{Industry: "SaaS", Size: "startup", MarketCondition: "normal"}
	_, err = s.RunProfile(context.Background(), bad, Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Contains(t, err.Error(), "validate profile")
}
