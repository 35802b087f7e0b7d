package safety

import (
	"context"
	"sync"
	"time"

	"github.com/trafficctl/control-plane/internal/capability"
	"github.com/trafficctl/control-plane/internal/models"
)

// WatchdogConfig bundles the watchdog's tunable timeouts (spec §6).
type WatchdogConfig struct {
	Interval        time.Duration
	MaxAgentLag     time.Duration
	MaxActuatorLag  time.Duration
	CheckBudget     time.Duration
	EmergencyGrace  time.Duration // spec §4.3 item 4 default: 60s
	FullJunctionGrace time.Duration
}

// DefaultWatchdogConfig matches the spec §6 defaults.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		Interval:          2 * time.Second,
		MaxAgentLag:       5 * time.Second,
		MaxActuatorLag:    3 * time.Second,
		CheckBudget:       500 * time.Millisecond,
		EmergencyGrace:    60 * time.Second,
		FullJunctionGrace: 30 * time.Second,
	}
}

// HealthStatus is the watchdog's last-run health snapshot, grounded on
// original_source/backend/tests/test_safety.py's
// Watchdog.get_health_status() -> {running, healthy, checks}.
type HealthStatus struct {
	Running bool
	Healthy bool
	Checks  map[string]bool
}

// Watchdog runs the independent health-check schedule described in spec
// §4.3: agent heartbeat, actuator responsiveness, conflict sweep, and
// mode coherence.
type Watchdog struct {
	cfg       WatchdogConfig
	modes     *ModeManager
	validator *ConflictValidator
	actuator  capability.SignalActuator
	agent     capability.AgentHealth
	emergency capability.EmergencySource

	junctionFn func() []string
	signalsFn  func(junctionID string) (models.JunctionSignals, bool)

	mu      sync.RWMutex
	status  HealthStatus
	running bool

	emergencyInactiveSince time.Time
}

// NewWatchdog constructs a Watchdog observing the given collaborators
// through their capability interfaces only (spec §9: "others hold
// handles to it, it holds handles only to capability interfaces").
func NewWatchdog(cfg WatchdogConfig, modes *ModeManager, validator *ConflictValidator, actuator capability.SignalActuator, agent capability.AgentHealth, emergency capability.EmergencySource, junctions func() []string, signals func(string) (models.JunctionSignals, bool)) *Watchdog {
	return &Watchdog{
		cfg: cfg, modes: modes, validator: validator, actuator: actuator,
		agent: agent, emergency: emergency, junctionFn: junctions, signalsFn: signals,
		status: HealthStatus{Checks: map[string]bool{}},
	}
}

// Run blocks, performing health checks every cfg.Interval until ctx is
// cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, w.cfg.CheckBudget)
			w.runChecks(checkCtx, time.Now())
			cancel()
		}
	}
}

func (w *Watchdog) runChecks(ctx context.Context, now time.Time) {
	checks := map[string]bool{}

	checks["agent_heartbeat"] = w.checkAgentHeartbeat(now)
	checks["actuator_responsive"] = w.checkActuatorResponsive(now)
	checks["conflict_sweep"] = w.checkConflictSweep(now)
	checks["mode_coherence"] = w.checkModeCoherence(now)

	healthy := true
	for _, ok := range checks {
		if !ok {
			healthy = false
		}
	}

	w.mu.Lock()
	w.status = HealthStatus{Running: true, Healthy: healthy, Checks: checks}
	w.mu.Unlock()
}

func (w *Watchdog) checkAgentHeartbeat(now time.Time) bool {
	if w.agent == nil {
		return true
	}
	last := w.agent.LastTickTime()
	if last.IsZero() {
		return true
	}
	if now.Sub(last) > w.cfg.MaxAgentLag {
		w.modes.EnterFailSafe("agent unresponsive", now)
		return false
	}
	return true
}

func (w *Watchdog) checkActuatorResponsive(now time.Time) bool {
	if w.actuator == nil {
		return true
	}
	last := w.actuator.LastAckTime()
	if last.IsZero() {
		return true
	}
	if now.Sub(last) > w.cfg.MaxActuatorLag {
		w.modes.EnterFailSafe("actuator unresponsive", now)
		return false
	}
	return true
}

func (w *Watchdog) checkConflictSweep(now time.Time) bool {
	if w.junctionFn == nil || w.signalsFn == nil {
		return true
	}
	ok := true
	for _, jid := range w.junctionFn() {
		signals, found := w.signalsFn(jid)
		if !found {
			continue
		}
		valid, _ := w.validator.ValidateFullJunction(signals, now, w.cfg.FullJunctionGrace)
		if !valid {
			w.modes.EnterFailSafe("conflict sweep violation at "+jid, now)
			ok = false
		}
	}
	return ok
}

func (w *Watchdog) checkModeCoherence(now time.Time) bool {
	if w.modes.GetCurrentMode() != models.ModeEmergency || w.emergency == nil {
		w.emergencyInactiveSince = time.Time{}
		return true
	}
	if w.emergency.HasActiveCorridor() {
		w.emergencyInactiveSince = time.Time{}
		return true
	}
	if w.emergencyInactiveSince.IsZero() {
		w.emergencyInactiveSince = now
		return true
	}
	if now.Sub(w.emergencyInactiveSince) > w.cfg.EmergencyGrace {
		w.modes.TransitionTo(models.ModeNormal, "emergency corridor inactive beyond grace", now)
	}
	return true
}

// GetHealthStatus returns the most recent health snapshot.
func (w *Watchdog) GetHealthStatus() HealthStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	checks := make(map[string]bool, len(w.status.Checks))
	for k, v := range w.status.Checks {
		checks[k] = v
	}
	return HealthStatus{Running: w.running, Healthy: w.status.Healthy, Checks: checks}
}
