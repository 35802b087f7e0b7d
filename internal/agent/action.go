package agent

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/trafficctl/control-plane/internal/capability"
	"github.com/trafficctl/control-plane/internal/models"
	"github.com/trafficctl/control-plane/internal/safety"
)

// Actor executes signal decisions with safety validation, grounded on
// original_source/backend/app/agent/action.py's ActionModule — the
// hasattr-based simulation_manager dispatch there collapses into the
// explicit capability.SignalActuator interface here.
type Actor struct {
	actuator  capability.SignalActuator
	validator *safety.ConflictValidator
	overrides *safety.OverrideManager
	emit      capability.EventEmitter
	log       zerolog.Logger

	executed int64
	rejected int64
}

func NewActor(actuator capability.SignalActuator, validator *safety.ConflictValidator, overrides *safety.OverrideManager, emit capability.EventEmitter, log zerolog.Logger) *Actor {
	return &Actor{actuator: actuator, validator: validator, overrides: overrides, emit: emit, log: log}
}

// Execute applies every decision, skipping the whole batch when an
// emergency override is in effect (decisions.EmergencyOverride mirrors
// the original's early-return on emergency_override) or while an operator
// has disabled the autonomous agent.
func (a *Actor) Execute(decisions models.AgentDecisions, now time.Time) {
	if decisions.EmergencyOverride || len(decisions.Decisions) == 0 {
		return
	}
	if a.overrides != nil && a.overrides.IsAgentDisabled() {
		return
	}

	start := time.Now()
	for _, d := range decisions.Decisions {
		a.executeOne(d, now)
	}
	elapsed := time.Since(start)
	if elapsed > 100*time.Millisecond {
		a.log.Warn().Dur("elapsed", elapsed).Msg("slow agent action execution")
	}
}

func (a *Actor) executeOne(d models.SignalDecision, now time.Time) {
	if d.JunctionID == "" || d.Direction == "" {
		a.log.Warn().Msg("invalid decision: missing junction or direction")
		return
	}

	if _, overridden := a.overrides.ActiveForceSignal(d.JunctionID, d.Direction, now); overridden {
		// a manual force-signal override outranks the agent's own decision
		// (spec §9 precedence: emergency_override > manual_force_signal > agent_decision)
		return
	}

	if d.Action == models.ActionHold {
		return
	}

	signals, ok := a.actuator.CurrentSignals(d.JunctionID)
	if ok {
		targetColor := models.ColorRed
		if d.Action == models.ActionGreen {
			targetColor = models.ColorGreen
		}
		if safe, reason := a.validator.ValidateSignalChange(signals, d.Direction, targetColor, now); !safe {
			a.log.Info().Str("junction", d.JunctionID).Str("direction", string(d.Direction)).Str("reason", reason).Msg("action blocked by safety validator")
			a.rejected++
			return
		}
	}

	var err error
	switch d.Action {
	case models.ActionGreen:
		err = a.actuator.SetGreen(d.JunctionID, d.Direction, d.DurationSec)
	case models.ActionRed:
		err = a.actuator.SetRed(d.JunctionID, d.Direction)
	}

	if err != nil {
		a.log.Warn().Err(err).Str("junction", d.JunctionID).Msg("action execution error")
		a.rejected++
		return
	}

	a.executed++
	if a.emit != nil {
		a.emit.Emit("signal:change", map[string]any{
			"junctionId": d.JunctionID,
			"direction":  d.Direction,
			"newState":   d.Action,
			"duration":   d.DurationSec,
		})
	}
}

// ActionStatistics mirrors the original's get_statistics() surface.
type ActionStatistics struct {
	Executed    int64
	Rejected    int64
	SuccessRate float64
}

func (a *Actor) Statistics() ActionStatistics {
	total := a.executed + a.rejected
	rate := 1.0
	if total > 0 {
		rate = float64(a.executed) / float64(total)
	}
	return ActionStatistics{Executed: a.executed, Rejected: a.rejected, SuccessRate: rate}
}
