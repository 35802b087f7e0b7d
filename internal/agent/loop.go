package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/trafficctl/control-plane/internal/capability"
	"github.com/trafficctl/control-plane/internal/models"
)

// Status is the agent loop's run state.
type Status string

const (
	StatusStopped  Status = "STOPPED"
	StatusStarting Status = "STARTING"
	StatusRunning  Status = "RUNNING"
	StatusPaused   Status = "PAUSED"
	StatusStopping Status = "STOPPING"
)

// Sink persists one condensed per-tick agent log entry (spec §6
// agent_logs table).
type Sink interface {
	PersistAgentLog(ctx context.Context, row models.AgentLogRow) error
}

// PerceiveFunc gathers the current junction density and signal state.
type PerceiveFunc func(now time.Time) PerceivedState

// Loop drives the continuous perceive-predict-decide-act-monitor cycle
// (spec §9, grounded on original_source's app/agent/__init__.py stage
// ordering doc comment; agent_loop.py itself was not carried into
// original_source, so the STARTING/RUNNING/PAUSED/STOPPING state shape
// below is reconstructed from spec.md directly).
type Loop struct {
	interval time.Duration
	strategy Strategy
	perceive PerceiveFunc
	actor    *Actor
	sink     Sink
	emit     capability.EventEmitter
	log      zerolog.Logger

	maxDryTicks int

	mu       sync.RWMutex
	status   Status
	lastTick time.Time
	dryTicks int
	ticks    int64

	cancel context.CancelFunc
	done   chan struct{}
}

func NewLoop(interval time.Duration, strategy Strategy, perceive PerceiveFunc, actor *Actor, sink Sink, emit capability.EventEmitter, maxDryTicks int, log zerolog.Logger) *Loop {
	if interval <= 0 {
		interval = time.Second
	}
	if maxDryTicks <= 0 {
		maxDryTicks = 10
	}
	return &Loop{
		interval:    interval,
		strategy:    strategy,
		perceive:    perceive,
		actor:       actor,
		sink:        sink,
		emit:        emit,
		maxDryTicks: maxDryTicks,
		log:         log,
		status:      StatusStopped,
	}
}

// Status returns the current run state.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// LastTickTime implements capability.AgentHealth.
func (l *Loop) LastTickTime() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastTick
}

// Start transitions STOPPED -> STARTING -> RUNNING and begins the
// background loop. A no-op if already running.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.status == StatusRunning || l.status == StatusStarting {
		l.mu.Unlock()
		return
	}
	l.status = StatusStarting
	l.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	l.mu.Lock()
	l.status = StatusRunning
	l.mu.Unlock()

	go l.run(runCtx)
}

// Stop transitions to STOPPING, cancels the loop, and blocks until it
// exits (STOPPED).
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.status == StatusStopped || l.status == StatusStopping {
		l.mu.Unlock()
		return
	}
	l.status = StatusStopping
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	l.mu.Lock()
	l.status = StatusStopped
	l.mu.Unlock()
}

// Pause suspends ticking without tearing down the loop goroutine.
func (l *Loop) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == StatusRunning {
		l.status = StatusPaused
	}
}

// Resume reverses Pause.
func (l *Loop) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == StatusPaused {
		l.status = StatusRunning
	}
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// catch-up-not-accumulate: a slow tick does not queue further
			// ticks — the next ticker fire simply uses the latest wall
			// clock time rather than replaying missed intervals.
			if l.Status() != StatusRunning {
				continue
			}
			l.tick(ctx, now)
		}
	}
}

func (l *Loop) tick(ctx context.Context, now time.Time) {
	start := time.Now()

	state := l.perceive(now)
	decisions := l.strategy.Decide(state)

	if len(decisions.Decisions) == 0 {
		l.mu.Lock()
		l.dryTicks++
		dry := l.dryTicks
		l.mu.Unlock()
		if dry >= l.maxDryTicks && l.emit != nil {
			l.emit.Emit("system:event", map[string]any{
				"event_type": "agent_dry_streak",
				"severity":   models.EventWarning,
				"message":    "agent produced no decisions for consecutive ticks",
			})
		}
	} else {
		l.mu.Lock()
		l.dryTicks = 0
		l.mu.Unlock()
	}

	l.actor.Execute(decisions, now)

	l.mu.Lock()
	l.lastTick = now
	l.ticks++
	l.mu.Unlock()

	if l.sink != nil {
		l.persistLog(ctx, decisions, start, now)
	}
}

func (l *Loop) persistLog(ctx context.Context, decisions models.AgentDecisions, start, now time.Time) {
	decisionsJSON, _ := json.Marshal(decisions.Decisions)
	row := models.AgentLogRow{
		ID:                "LOG-" + now.Format("20060102T150405.000000000"),
		Timestamp:         now,
		Strategy:          l.strategy.Name(),
		DecisionLatencyMS: float64(time.Since(start).Microseconds()) / 1000.0,
		DecisionsJSON:     string(decisionsJSON),
	}
	if err := l.sink.PersistAgentLog(ctx, row); err != nil {
		l.log.Warn().Err(err).Msg("failed to persist agent log row")
	}
}
