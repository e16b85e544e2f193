package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyDelay(t *testing.T) {
	p := Policy{
		MaxAttempts:   12,
		InitialDelay:  150 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
	}

	assert.Equal(t, 150*time.Millisecond, p.Delay(1))
	assert.Equal(t, 300*time.Millisecond, p.Delay(2))
	assert.Equal(t, 600*time.Millisecond, p.Delay(3))
	assert.Equal(t, 2400*time.Millisecond, p.Delay(5))
	assert.Equal(t, 4800*time.Millisecond, p.Delay(6))
	assert.Equal(t, 5*time.Second, p.Delay(7), "delay is capped")
	assert.Equal(t, 5*time.Second, p.Delay(11))
}

func TestPolicyDelay_ZeroInitial(t *testing.T) {
	p := Policy{MaxAttempts: 50, InitialDelay: 0, MaxDelay: 5 * time.Second, BackoffFactor: 2}
	for attempt := 1; attempt <= 10; attempt++ {
		assert.Equal(t, time.Duration(0), p.Delay(attempt))
	}
}

func TestDo_SucceedsWithinAttempts(t *testing.T) {
	failures := 3
	calls := 0
	var observed []int

	err := Do(context.Background(), Policy{MaxAttempts: 5}, func(attempt int, _ time.Duration, _ error) {
		observed = append(observed, attempt)
	}, func(context.Context) error {
		calls++
		if calls <= failures {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, observed)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("still down")

	err := Do(context.Background(), Policy{MaxAttempts: 12}, nil, func(context.Context) error {
		calls++
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 12, calls)
}

func TestDo_SingleAttemptByDefault(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, nil, func(context.Context) error {
		calls++
		return errors.New("nope")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 5}, nil, func(context.Context) error {
		calls++
		return errors.New("transient")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	err := Do(ctx, Policy{MaxAttempts: 3, InitialDelay: time.Hour}, func(int, time.Duration, error) {
		cancel()
	}, func(context.Context) error {
		return errors.New("transient")
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestDoValue(t *testing.T) {
	calls := 0
	got, err := DoValue(context.Background(), Policy{MaxAttempts: 3}, nil, func(context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}
