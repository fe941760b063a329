package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(attempts int) Backoff {
	return Backoff{Attempts: attempts, Initial: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastBackoff(3), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	var retried []int
	b := fastBackoff(4)
	b.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	v, err := Do(context.Background(), b, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, eris.Wrap(syscall.ECONNREFUSED, "postgres: ping")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	perm := errors.New("password authentication failed")
	_, err := Do(context.Background(), fastBackoff(5), func(context.Context) (int, error) {
		calls++
		return 0, perm
	})
	assert.ErrorIs(t, err, perm)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastBackoff(3), func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("dial: %w", syscall.ECONNRESET)
	})
	assert.ErrorIs(t, err, syscall.ECONNRESET)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	b := Backoff{Attempts: 10, Initial: time.Hour, Max: time.Hour}
	b.OnRetry = func(int, error) { cancel() }

	_, err := Do(ctx, b, func(context.Context) (int, error) {
		calls++
		return 0, syscall.ECONNREFUSED
	})
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomRetryable(t *testing.T) {
	calls := 0
	b := fastBackoff(3)
	b.Retryable = func(error) bool { return true }
	_, err := Do(context.Background(), b, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("anything")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Attempts: 5, Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond}.withDefaults()
	assert.Equal(t, 100*time.Millisecond, b.delay(0))
	assert.Equal(t, 200*time.Millisecond, b.delay(1))
	assert.Equal(t, 300*time.Millisecond, b.delay(2), "capped at Max")

	b.Jitter = 0.5
	for range 20 {
		d := b.delay(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", syscall.ECONNREFUSED, true},
		{"wrapped reset", eris.Wrap(syscall.ECONNRESET, "postgres: ping"), true},
		{"starting up", errors.New("FATAL: the database system is starting up (SQLSTATE 57P03)"), true},
		{"timeout text", errors.New("dial tcp 10.0.0.1:5432: i/o timeout"), true},
		{"auth", errors.New("password authentication failed for user forecast"), false},
		{"syntax", errors.New("syntax error at or near \"SELEC\""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
