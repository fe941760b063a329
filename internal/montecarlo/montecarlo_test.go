package montecarlo

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/profile"
)

func testProfile(t *testing.T) *model.CompanyProfile {
	t.Helper()
	p, err := profile.Generate(model.IndustryRetail, model.SizeStartup, model.MarketRecession, rand.New(rand.NewPCG(17, 0)))
	require.NoError(t, err)
	return p
}

func TestRun_InvalidParameters(t *testing.T) {
	p := testProfile(t)
	ctx := context.Background()

	tests := []struct {
		name string
		opts Options
	}{
		{"zero iterations", Options{Iterations: 0, Periods: 20}},
		{"negative iterations", Options{Iterations: -3, Periods: 20}},
		{"zero periods", Options{Iterations: 10, Periods: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Run(ctx, p, tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidParameter)
			assert.Nil(t, b)
		})
	}

	_, err := Run(ctx, nil, Options{Iterations: 1, Periods: 1})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRun_CompleteBatch(t *testing.T) {
	b, err := Run(context.Background(), testProfile(t), Options{Iterations: 50, Periods: 12, Seed: 3, Workers: 4})
	require.NoError(t, err)
	require.True(t, b.Complete())
	require.Len(t, b.Runs, 50)
	for k, idx := range b.Indices {
		assert.Equal(t, k, idx)
		assert.Len(t, b.Runs[k].Periods, 12)
	}
	assert.Equal(t, uint64(3), b.Seed)
}

func TestRun_IdenticalAcrossWorkerCounts(t *testing.T) {
	p := testProfile(t)
	ctx := context.Background()

	base, err := Run(ctx, p, Options{Iterations: 200, Periods: 20, Seed: 42, Workers: 1})
	require.NoError(t, err)

	for _, workers := range []int{2, 7, 32, 0} {
		got, err := Run(ctx, p, Options{Iterations: 200, Periods: 20, Seed: 42, Workers: workers})
		require.NoError(t, err)
		assert.Equal(t, base.Runs, got.Runs, "workers=%d", workers)
	}
}

func TestRun_RunIndependentOfBatchSize(t *testing.T) {
	p := testProfile(t)
	ctx := context.Background()

	small, err := Run(ctx, p, Options{Iterations: 10, Periods: 16, Seed: 9, Workers: 3})
	require.NoError(t, err)
	large, err := Run(ctx, p, Options{Iterations: 100, Periods: 16, Seed: 9, Workers: 5})
	require.NoError(t, err)

	assert.Equal(t, small.Runs, large.Runs[:10])
}

func TestRun_MatchesDirectSimulation(t *testing.T) {
	p := testProfile(t)
	b, err := Run(context.Background(), p, Options{Iterations: 5, Periods: 8, Seed: 100})
	require.NoError(t, err)

	for i := range 5 {
		want, err := Run(context.Background(), p, Options{Iterations: 1, Periods: 8, Seed: 100 ^ uint64(i)})
		require.NoError(t, err)
		assert.Equal(t, want.Runs[0], b.Runs[i])
	}
}

func TestRun_DifferentSeedsDiffer(t *testing.T) {
	p := testProfile(t)
	a, err := Run(context.Background(), p, Options{Iterations: 20, Periods: 20, Seed: 1})
	require.NoError(t, err)
	b, err := Run(context.Background(), p, Options{Iterations: 20, Periods: 20, Seed: 2})
	require.NoError(t, err)
	assert.NotEqual(t, a.Runs, b.Runs)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, err := Run(ctx, testProfile(t), Options{Iterations: 100, Periods: 20, Seed: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, b)
	assert.Empty(t, b.Runs)
	assert.False(t, b.Complete())
}

func TestRun_CancelledMidBatchKeepsCompletedRuns(t *testing.T) {
	p := testProfile(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := Run(ctx, p, Options{
		Iterations: 1000,
		Periods:    20,
		Seed:       5,
		Workers:    1,
		Progress: func(completed int) {
			if completed == 5 {
				cancel()
			}
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, b)
	require.Len(t, b.Runs, 5)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, b.Indices)

	full, err := Run(context.Background(), p, Options{Iterations: 5, Periods: 20, Seed: 5})
	require.NoError(t, err)
	assert.Equal(t, full.Runs, b.Runs)
}

func TestRunSource_Deterministic(t *testing.T) {
	a := RunSource(11, 4)
	b := RunSource(11, 4)
	c := RunSource(11, 5)
	va, vb, vc := a.Uint64(), b.Uint64(), c.Uint64()
	assert.Equal(t, va, vb)
	assert.NotEqual(t, va, vc)
}
