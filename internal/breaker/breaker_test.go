package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestBreaker(now *time.Time) *CircuitBreaker {
	b := &CircuitBreaker{
		FailureThreshold:  3,
		RecoveryThreshold: 2,
		BaseBackoff:       1 * time.Second,
		MaxBackoff:        8 * time.Second,
		Multiplier:        2.0,
		JitterLow:         1.0,
		JitterHigh:        1.0,
		TimeNow:           func() time.Time { return *now },
		RandFloat:         func() float64 { return 0 },
	}
	b.Initialize()
	return b
}

func TestBreakerOpensOnThreshold(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(&now)

	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, StateClosed, b.Snapshot().State)

	b.RecordFailure()
	require.Equal(t, StateOpen, b.Snapshot().State)
	require.False(t, b.ShouldAttempt())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(&now)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, StateClosed, b.Snapshot().State)

	b.RecordFailure()
	require.Equal(t, StateOpen, b.Snapshot().State)
}

func TestBreakerHalfOpenTrial(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(&now)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.Snapshot().State)
	require.Equal(t, 1*time.Second, b.Snapshot().CurrentBackoff)

	// before the backoff has elapsed, no attempt is permitted.
	require.False(t, b.ShouldAttempt())

	now = now.Add(1 * time.Second)
	require.True(t, b.ShouldAttempt())
	require.Equal(t, StateHalfOpen, b.Snapshot().State)

	// recovery is confirmed after RecoveryThreshold successes.
	b.RecordSuccess()
	require.Equal(t, StateHalfOpen, b.Snapshot().State)
	b.RecordSuccess()
	require.Equal(t, StateClosed, b.Snapshot().State)
	require.Equal(t, 1*time.Second, b.Snapshot().CurrentBackoff)
}

func TestBreakerBackoffGrowsAndCaps(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(&now)

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second, // capped
	}

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	prev := time.Duration(0)
	for _, exp := range expected {
		snap := b.Snapshot()
		require.Equal(t, StateOpen, snap.State)
		require.Equal(t, exp, snap.CurrentBackoff)
		require.GreaterOrEqual(t, snap.CurrentBackoff, prev)
		prev = snap.CurrentBackoff

		// let the backoff elapse, fail the trial.
		now = now.Add(snap.CurrentBackoff)
		require.True(t, b.ShouldAttempt())
		b.RecordFailure()
	}
}

func TestBreakerBackoffResetsAfterRecovery(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(&now)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	now = now.Add(1 * time.Second)
	require.True(t, b.ShouldAttempt())
	b.RecordFailure()
	require.Equal(t, 2*time.Second, b.Snapshot().CurrentBackoff)

	now = now.Add(2 * time.Second)
	require.True(t, b.ShouldAttempt())
	b.RecordSuccess()
	b.RecordSuccess()
	require.Equal(t, StateClosed, b.Snapshot().State)

	// a later failure streak starts again from the base interval.
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, 1*time.Second, b.Snapshot().CurrentBackoff)
}

func TestBreakerJitterScalesWait(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(&now)
	b.JitterLow = 0.5
	b.JitterHigh = 1.5
	b.RandFloat = func() float64 { return 1 } // jitter factor = 1.5

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	// wait is the backoff scaled by the jitter factor.
	now = now.Add(1400 * time.Millisecond)
	require.False(t, b.ShouldAttempt())
	now = now.Add(100 * time.Millisecond)
	require.True(t, b.ShouldAttempt())
}
