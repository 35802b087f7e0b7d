// Package resilience provides a circuit breaker for the persistence
// writes the Detection Logger depends on, adapted from
// internal/ai/circuit/breaker.go's state machine — the LLM-specific
// error categorization (rate limit, API key, payment) that package
// carried has no analog for a SQLite sink, so this version trips on any
// failure and drops the category parameter entirely.
package resilience

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config controls the trip threshold and backoff schedule.
type Config struct {
	FailureThreshold  int
	SuccessThreshold  int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultConfig matches the detection sink's flush cadence: three
// consecutive failed flushes (roughly 15s at the default 5s interval)
// trips the breaker before backing off.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  3,
		SuccessThreshold:  2,
		InitialBackoff:    5 * time.Second,
		MaxBackoff:        2 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// Breaker guards a flaky operation (persistence writes) from being
// retried every tick once it starts failing consistently.
type Breaker struct {
	mu sync.Mutex

	cfg  Config
	name string

	state                State
	consecutiveFailures   int
	consecutiveSuccesses  int
	currentBackoff        time.Duration
	openedAt              time.Time
	halfOpenProbeInFlight bool

	totalFailures  int64
	totalSuccesses int64
	totalTrips     int64
}

// NewBreaker constructs a Breaker in the closed state.
func NewBreaker(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Minute
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2.0
	}
	return &Breaker{cfg: cfg, name: name, state: StateClosed, currentBackoff: cfg.InitialBackoff}
}

// Allow reports whether the next operation should be attempted,
// transitioning open->half-open once the backoff window has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) >= b.currentBackoff {
			b.transitionTo(StateHalfOpen)
			b.halfOpenProbeInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenProbeInFlight {
			return false
		}
		b.halfOpenProbeInFlight = true
		return true
	default:
		return true
	}
}

// RecordSuccess clears the failure streak and, from half-open, closes
// the breaker once SuccessThreshold probes have passed.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.consecutiveSuccesses++
	b.totalSuccesses++

	if b.state == StateHalfOpen {
		b.halfOpenProbeInFlight = false
		if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.transitionTo(StateClosed)
			b.currentBackoff = b.cfg.InitialBackoff
		}
	}
}

// RecordFailure trips the breaker once FailureThreshold consecutive
// failures accumulate, doubling the backoff on a half-open probe
// failure.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveSuccesses = 0
	b.consecutiveFailures++
	b.totalFailures++

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		b.halfOpenProbeInFlight = false
		b.currentBackoff = time.Duration(float64(b.currentBackoff) * b.cfg.BackoffMultiplier)
		if b.currentBackoff > b.cfg.MaxBackoff {
			b.currentBackoff = b.cfg.MaxBackoff
		}
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.transitionTo(StateOpen)
	b.openedAt = time.Now()
	b.halfOpenProbeInFlight = false
	b.totalTrips++
	log.Warn().Str("breaker", b.name).Dur("backoff", b.currentBackoff).Int("failures", b.consecutiveFailures).Msg("circuit breaker tripped")
}

func (b *Breaker) transitionTo(s State) {
	if b.state == s {
		return
	}
	b.state = s
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status summarizes the breaker for metrics/health surfaces.
type Status struct {
	Name           string
	State          string
	TotalFailures  int64
	TotalSuccesses int64
	TotalTrips     int64
}

// GetStatus returns a point-in-time snapshot.
func (b *Breaker) GetStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Name:           b.name,
		State:          b.state.String(),
		TotalFailures:  b.totalFailures,
		TotalSuccesses: b.totalSuccesses,
		TotalTrips:     b.totalTrips,
	}
}
