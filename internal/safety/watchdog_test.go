package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/trafficctl/control-plane/internal/models"
)

type fakeAgentHealth struct{ last time.Time }

func (f *fakeAgentHealth) LastTickTime() time.Time { return f.last }

type fakeEmergencySource struct{ active bool }

func (f *fakeEmergencySource) HasActiveCorridor() bool { return f.active }

// TestS4FailSafeOnHeartbeatLoss mirrors spec.md scenario S4: no agent
// heartbeat for more than max_agent_lag triggers FAIL_SAFE.
func TestS4FailSafeOnHeartbeatLoss(t *testing.T) {
	modes := NewModeManager(1024)
	validator := NewConflictValidator(2, 10, 120)
	agent := &fakeAgentHealth{last: time.Now().Add(-10 * time.Second)}

	cfg := DefaultWatchdogConfig()
	cfg.MaxAgentLag = 5 * time.Second
	wd := NewWatchdog(cfg, modes, validator, &fakeActuator{}, agent, &fakeEmergencySource{}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CheckBudget)
	defer cancel()
	wd.runChecks(ctx, time.Now())

	assert.Equal(t, models.ModeFailSafe, modes.GetCurrentMode())

	status := wd.GetHealthStatus()
	assert.False(t, status.Checks["agent_heartbeat"])

	// exit requires an operator id
	assert.False(t, modes.ExitFailSafe("", "no op", time.Now()))
	assert.True(t, modes.ExitFailSafe("op-1", "resolved", time.Now()))
}

func TestHealthyWhenAllChecksPass(t *testing.T) {
	modes := NewModeManager(1024)
	validator := NewConflictValidator(2, 10, 120)
	agent := &fakeAgentHealth{last: time.Now()}
	act := &fakeActuator{lastAck: time.Now()}

	wd := NewWatchdog(DefaultWatchdogConfig(), modes, validator, act, agent, &fakeEmergencySource{}, nil, nil)
	wd.runChecks(context.Background(), time.Now())

	assert.True(t, wd.GetHealthStatus().Healthy)
	assert.Equal(t, models.ModeNormal, modes.GetCurrentMode())
}

func TestModeCoherenceRevertsFromStaleEmergency(t *testing.T) {
	now := time.Now()
	modes := NewModeManager(1024)
	modes.TransitionTo(models.ModeEmergency, "corridor active", now)

	validator := NewConflictValidator(2, 10, 120)
	agent := &fakeAgentHealth{last: now}
	emergency := &fakeEmergencySource{active: false}
	cfg := DefaultWatchdogConfig()
	cfg.EmergencyGrace = 0 // force immediate revert for the test

	wd := NewWatchdog(cfg, modes, validator, &fakeActuator{lastAck: now}, agent, emergency, nil, nil)
	wd.runChecks(context.Background(), now)
	wd.runChecks(context.Background(), now.Add(time.Millisecond))

	assert.Equal(t, models.ModeNormal, modes.GetCurrentMode())
}
