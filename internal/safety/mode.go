package safety

import (
	"sync"
	"time"

	"github.com/trafficctl/control-plane/internal/models"
)

// transitionTable encodes the allowed (from, to) pairs in spec §4.3's
// mode transition table. FAIL_SAFE is reachable automatically from any
// mode; leaving it requires an operator id, enforced separately in
// ExitFailSafe.
var transitionTable = map[models.Mode]map[models.Mode]bool{
	models.ModeNormal: {
		models.ModeEmergency: true,
		models.ModeIncident:  true,
		models.ModeFailSafe:  true,
	},
	models.ModeEmergency: {
		models.ModeNormal:   true,
		models.ModeFailSafe: true,
	},
	models.ModeIncident: {
		models.ModeNormal:   true,
		models.ModeFailSafe: true,
	},
	models.ModeFailSafe: {
		models.ModeNormal: true, // operator-only, checked by caller
	},
}

// ModeManager owns the system-wide Mode and its append-only transition
// log. Grounded on original_source/backend/tests/test_safety.py's
// SystemModeManager contract.
type ModeManager struct {
	mu              sync.RWMutex
	mode            models.Mode
	transitions     []models.ModeTransition
	maxTransitions  int
}

// NewModeManager constructs a ModeManager starting in NORMAL.
func NewModeManager(maxTransitionLog int) *ModeManager {
	if maxTransitionLog < 1 {
		maxTransitionLog = 1024
	}
	return &ModeManager{mode: models.ModeNormal, maxTransitions: maxTransitionLog}
}

// GetCurrentMode returns the current mode.
func (m *ModeManager) GetCurrentMode() models.Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// TransitionTo attempts a mode transition. Operator-gated transitions
// (exiting FAIL_SAFE) must go through ExitFailSafe instead; TransitionTo
// rejects FAIL_SAFE->NORMAL without an operator id.
func (m *ModeManager) TransitionTo(to models.Mode, reason string, now time.Time) bool {
	return m.transition(to, reason, "", now)
}

func (m *ModeManager) transition(to models.Mode, reason, operator string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.mode
	if from == to {
		return false
	}
	if from == models.ModeFailSafe && to == models.ModeNormal && operator == "" {
		return false
	}
	allowed, ok := transitionTable[from]
	if !ok || !allowed[to] {
		return false
	}

	m.mode = to
	m.record(from, to, reason, operator, now)
	return true
}

func (m *ModeManager) record(from, to models.Mode, reason, operator string, now time.Time) {
	m.transitions = append(m.transitions, models.ModeTransition{
		From: from, To: to, Reason: reason, Operator: operator, Timestamp: now,
	})
	if excess := len(m.transitions) - m.maxTransitions; excess > 0 {
		m.transitions = m.transitions[excess:]
	}
}

// EnterFailSafe transitions to FAIL_SAFE from any mode, auto-triggered
// (no operator id required), recording reason.
func (m *ModeManager) EnterFailSafe(reason string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.mode
	if from == models.ModeFailSafe {
		return false
	}
	m.mode = models.ModeFailSafe
	m.record(from, models.ModeFailSafe, reason, "", now)
	return true
}

// ExitFailSafe leaves FAIL_SAFE for NORMAL; requires a non-empty
// operator id and records it in the transition log (spec §4.3).
func (m *ModeManager) ExitFailSafe(operatorID, reason string, now time.Time) bool {
	if operatorID == "" {
		return false
	}
	return m.transition(models.ModeNormal, reason, operatorID, now)
}

// TransitionLog returns a copy of the recorded transitions, oldest
// first.
func (m *ModeManager) TransitionLog() []models.ModeTransition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ModeTransition, len(m.transitions))
	copy(out, m.transitions)
	return out
}
