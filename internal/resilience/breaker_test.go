package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerInitialStateAllowsOperations(t *testing.T) {
	b := NewBreaker("test", DefaultConfig())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerTripsAfterThresholdFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	b := NewBreaker("test", cfg)

	for i := 0; i < 3; i++ {
		require.True(t, b.Allow())
		b.RecordFailure()
	}

	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	b := NewBreaker("test", cfg)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenRecoversToClosedAfterSuccessThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.SuccessThreshold = 2
	cfg.InitialBackoff = time.Millisecond
	b := NewBreaker("test", cfg)

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	time.Sleep(2 * time.Millisecond)
	require.True(t, b.Allow()) // transitions to half-open, allows one probe
	assert.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State(), "one success short of threshold stays half-open")

	require.True(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopensWithLongerBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.InitialBackoff = time.Millisecond
	cfg.BackoffMultiplier = 2.0
	b := NewBreaker("test", cfg)

	b.RecordFailure()
	time.Sleep(2 * time.Millisecond)
	require.True(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow(), "immediately after re-tripping the backoff has not elapsed")
}

func TestBreakerGetStatusReportsTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	b := NewBreaker("detection_sink", cfg)

	b.RecordFailure()

	status := b.GetStatus()
	assert.Equal(t, "detection_sink", status.Name)
	assert.Equal(t, "open", status.State)
	assert.EqualValues(t, 1, status.TotalTrips)
	assert.EqualValues(t, 1, status.TotalFailures)
}
