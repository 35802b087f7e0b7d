package safety

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trafficctl/control-plane/internal/capability"
	"github.com/trafficctl/control-plane/internal/models"
)

// OverrideManager is the append-only registry of manual overrides.
// Grounded on original_source/backend/tests/test_safety.py's
// ManualOverrideManager contract ("OVR-" id prefix,
// force_signal_state/get_active_overrides/disable_autonomous_agent/
// enable_autonomous_agent/emergency_stop).
type OverrideManager struct {
	mu        sync.Mutex
	overrides []models.Override
	actuator  capability.SignalActuator
	agentDisabled bool
}

// NewOverrideManager constructs an OverrideManager bound to the signal
// actuator it forces state through.
func NewOverrideManager(actuator capability.SignalActuator) *OverrideManager {
	return &OverrideManager{actuator: actuator}
}

func newOverrideID() string {
	return "OVR-" + uuid.NewString()
}

// ForceSignalState issues a FORCE_SIGNAL override and immediately applies
// it through the actuator, returning the override id.
func (om *OverrideManager) ForceSignalState(junctionID string, direction models.Direction, color models.SignalColor, duration time.Duration, operatorID, reason string, now time.Time) (string, error) {
	id := newOverrideID()
	om.mu.Lock()
	om.overrides = append(om.overrides, models.Override{
		ID:         id,
		Kind:       models.OverrideForceSignal,
		Target:     junctionID,
		Direction:  direction,
		Duration:   duration,
		OperatorID: operatorID,
		Reason:     reason,
		CreatedAt:  now,
	})
	om.mu.Unlock()

	var err error
	switch color {
	case models.ColorGreen:
		err = om.actuator.SetGreen(junctionID, direction, int(duration.Seconds()))
	default:
		err = om.actuator.SetRed(junctionID, direction)
	}
	if err != nil {
		return id, fmt.Errorf("override: actuator rejected forced signal: %w", err)
	}
	return id, nil
}

// GetActiveOverrides returns every override currently in effect.
func (om *OverrideManager) GetActiveOverrides(now time.Time) []models.Override {
	om.mu.Lock()
	defer om.mu.Unlock()
	var active []models.Override
	for _, o := range om.overrides {
		if o.Active(now) {
			active = append(active, o)
		}
	}
	return active
}

// Cancel marks an override cancelled, if it exists and is active.
func (om *OverrideManager) Cancel(id string, now time.Time) bool {
	om.mu.Lock()
	defer om.mu.Unlock()
	for i, o := range om.overrides {
		if o.ID == id && o.Active(now) {
			om.overrides[i].CancelledAt = now
			return true
		}
	}
	return false
}

// DisableAutonomousAgent records a DISABLE_AGENT override and sets the
// agent-disabled flag; the agent's Actor checks IsAgentDisabled on each
// batch and executes none of its decisions while the flag is set, and the
// loop keeps ticking (spec §4.3).
func (om *OverrideManager) DisableAutonomousAgent(operatorID, reason string, now time.Time) string {
	id := newOverrideID()
	om.mu.Lock()
	om.agentDisabled = true
	om.overrides = append(om.overrides, models.Override{
		ID: id, Kind: models.OverrideDisableAgent, OperatorID: operatorID, Reason: reason, CreatedAt: now,
	})
	om.mu.Unlock()
	return id
}

// EnableAutonomousAgent clears the disabled flag, requiring a non-empty
// operator id.
func (om *OverrideManager) EnableAutonomousAgent(operatorID string, now time.Time) bool {
	if operatorID == "" {
		return false
	}
	om.mu.Lock()
	defer om.mu.Unlock()
	om.agentDisabled = false
	om.overrides = append(om.overrides, models.Override{
		ID: newOverrideID(), Kind: models.OverrideEnableAgent, OperatorID: operatorID, CreatedAt: now,
	})
	return true
}

// IsAgentDisabled reports whether DisableAutonomousAgent has been called
// without a later EnableAutonomousAgent; cancelling the DISABLE_AGENT
// record through Cancel does not clear the flag.
func (om *OverrideManager) IsAgentDisabled() bool {
	om.mu.Lock()
	defer om.mu.Unlock()
	return om.agentDisabled
}

// EmergencyStop records an EMERGENCY_STOP override; callers are expected
// to also transition the mode manager to EMERGENCY.
func (om *OverrideManager) EmergencyStop(operatorID, reason string, now time.Time) string {
	id := newOverrideID()
	om.mu.Lock()
	om.overrides = append(om.overrides, models.Override{
		ID: id, Kind: models.OverrideEmergencyStop, OperatorID: operatorID, Reason: reason, CreatedAt: now,
	})
	om.mu.Unlock()
	return id
}

// HasActiveCorridor implements capability.EmergencySource: the watchdog's
// mode-coherence check treats an active EMERGENCY_STOP override as the
// signal that an emergency corridor is still in effect, reusing the
// override registry rather than standing up a separate external-system
// stub for a subsystem spec §1 places outside this repo's boundary.
func (om *OverrideManager) HasActiveCorridor() bool {
	om.mu.Lock()
	defer om.mu.Unlock()
	for _, o := range om.overrides {
		if o.Kind == models.OverrideEmergencyStop && o.Active(time.Now()) {
			return true
		}
	}
	return false
}

// ActiveForceSignal returns the most recent active FORCE_SIGNAL override
// targeting (junctionID, direction), if any — used by the agent to
// implement admission-order precedence (spec §4.3: emergency_override >
// manual_force_signal > agent_decision).
func (om *OverrideManager) ActiveForceSignal(junctionID string, direction models.Direction, now time.Time) (models.Override, bool) {
	om.mu.Lock()
	defer om.mu.Unlock()
	var found models.Override
	var ok bool
	for _, o := range om.overrides {
		if o.Kind != models.OverrideForceSignal || o.Target != junctionID || o.Direction != direction {
			continue
		}
		if !o.Active(now) {
			continue
		}
		if !ok || o.CreatedAt.After(found.CreatedAt) {
			found = o
			ok = true
		}
	}
	return found, ok
}
