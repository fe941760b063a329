package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/forecast-cli/internal/forecast"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// testForecast runs a small forecast for the given categories.
func testForecast(t *testing.T, industry, size, condition string, seed uint64) *forecast.Result {
	t.Helper()
	svc := forecast.NewService(forecast.Settings{Iterations: 40, Periods: 4, Workers: 2})
	res, err := svc.Run(context.Background(), forecast.Request{
		Industry:        industry,
		Size:            size,
		MarketCondition: condition,
		Seed:            &seed,
	})
	require.NoError(t, err)
	return res
}

func TestSQLite_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	res := testForecast(t, "SaaS", "startup", "normal", 11)
	require.NoError(t, st.SaveForecast(ctx, res))

	got, err := st.GetForecast(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, got.ID)
	assert.Equal(t, res.Request, got.Request)
	assert.Equal(t, res.Profile, got.Profile)
	assert.Equal(t, res.Aggregate, got.Aggregate)
	assert.Equal(t, res.CostRatioExceedsRevenue, got.CostRatioExceedsRevenue)
	assert.Equal(t, res.Elapsed, got.Elapsed)
	assert.True(t, res.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", res.CreatedAt, got.CreatedAt)
}

func TestSQLite_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetForecast(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_SaveReplaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	res := testForecast(t, "Retail", "growth", "boom", 3)
	require.NoError(t, st.SaveForecast(ctx, res))

	res.Request.Scenario = "pessimistic"
	require.NoError(t, st.SaveForecast(ctx, res))

	list, err := st.ListForecasts(ctx, ForecastFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "pessimistic", list[0].Scenario)
}

func TestSQLite_SaveIncomplete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	assert.Error(t, st.SaveForecast(ctx, nil))
	assert.Error(t, st.SaveForecast(ctx, &forecast.Result{ID: "x"}))

	res := testForecast(t, "SaaS", "startup", "normal", 1)
	res.ID = ""
	assert.Error(t, st.SaveForecast(ctx, res))
}

func TestSQLite_ListForecasts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	saas := testForecast(t, "SaaS", "startup", "normal", 1)
	saas.CreatedAt = base
	retail := testForecast(t, "Retail", "established", "recession", 2)
	retail.CreatedAt = base.Add(time.Hour)
	saas2 := testForecast(t, "SaaS", "growth", "boom", 3)
	saas2.CreatedAt = base.Add(2 * time.Hour)
	for _, r := range []*forecast.Result{saas, retail, saas2} {
		require.NoError(t, st.SaveForecast(ctx, r))
	}

	all, err := st.ListForecasts(ctx, ForecastFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{saas2.ID, retail.ID, saas.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	first := all[2]
	assert.Equal(t, "SaaS", first.Industry)
	assert.Equal(t, "startup", first.Size)
	assert.Equal(t, "normal", first.MarketCondition)
	assert.Equal(t, "neutral", first.Scenario)
	assert.Equal(t, 40, first.Iterations)
	assert.Equal(t, 4, first.Periods)
	assert.Equal(t, uint64(1), first.Seed)
	assert.Equal(t, saas.Aggregate.Probabilities.Bankruptcy, first.Bankruptcy)
	assert.Equal(t, saas.Aggregate.Probabilities.Profitability, first.Profitability)

	onlySaaS, err := st.ListForecasts(ctx, ForecastFilter{Industry: "SaaS"})
	require.NoError(t, err)
	assert.Len(t, onlySaaS, 2)

	recession, err := st.ListForecasts(ctx, ForecastFilter{MarketCondition: "recession", Size: "established"})
	require.NoError(t, err)
	require.Len(t, recession, 1)
	assert.Equal(t, retail.ID, recession[0].ID)

	page, err := st.ListForecasts(ctx, ForecastFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, retail.ID, page[0].ID)

	none, err := st.ListForecasts(ctx, ForecastFilter{Scenario: "optimistic"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_SeedAboveInt64(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	res := testForecast(t, "Biotech", "startup", "normal", math.MaxUint64)
	require.NoError(t, st.SaveForecast(ctx, res))

	list, err := st.ListForecasts(ctx, ForecastFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(math.MaxUint64), list[0].Seed)

	got, err := st.GetForecast(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got.Seed())
}

func TestSQLite_DeleteForecast(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	res := testForecast(t, "Manufacturing", "established", "normal", 9)
	require.NoError(t, st.SaveForecast(ctx, res))
	require.NoError(t, st.DeleteForecast(ctx, res.ID))

	_, err := st.GetForecast(ctx, res.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.DeleteForecast(ctx, res.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}
