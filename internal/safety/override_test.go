package safety

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trafficctl/control-plane/internal/models"
)

type fakeActuator struct {
	lastAck time.Time
	signals map[string]models.JunctionSignals
	failSet bool
}

func (f *fakeActuator) SetGreen(junctionID string, direction models.Direction, durationSec int) error {
	if f.failSet {
		return assertErr
	}
	f.lastAck = time.Now()
	return nil
}

func (f *fakeActuator) SetRed(junctionID string, direction models.Direction) error {
	if f.failSet {
		return assertErr
	}
	f.lastAck = time.Now()
	return nil
}

func (f *fakeActuator) CurrentSignals(junctionID string) (models.JunctionSignals, bool) {
	s, ok := f.signals[junctionID]
	return s, ok
}

func (f *fakeActuator) LastAckTime() time.Time { return f.lastAck }

var assertErr = assertError("actuator failure")

type assertError string

func (e assertError) Error() string { return string(e) }

func TestForceSignalStateUsesOVRPrefix(t *testing.T) {
	now := time.Now()
	act := &fakeActuator{}
	om := NewOverrideManager(act)

	id, err := om.ForceSignalState("J1", models.DirectionNorth, models.ColorGreen, 30*time.Second, "op-1", "manual", now)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "OVR-"), "id was %q", id)

	active := om.GetActiveOverrides(now)
	require.Len(t, active, 1)
	assert.Equal(t, models.OverrideForceSignal, active[0].Kind)
}

func TestOverridePrecedenceOverAgentDecision(t *testing.T) {
	now := time.Now()
	act := &fakeActuator{}
	om := NewOverrideManager(act)

	_, err := om.ForceSignalState("J1", models.DirectionNorth, models.ColorGreen, time.Minute, "op-1", "manual", now)
	require.NoError(t, err)

	ov, ok := om.ActiveForceSignal("J1", models.DirectionNorth, now)
	require.True(t, ok)
	assert.Equal(t, "op-1", ov.OperatorID)

	// no override active for a different direction
	_, ok = om.ActiveForceSignal("J1", models.DirectionEast, now)
	assert.False(t, ok)
}

func TestDisableEnableAutonomousAgent(t *testing.T) {
	now := time.Now()
	om := NewOverrideManager(&fakeActuator{})

	om.DisableAutonomousAgent("op-1", "maintenance", now)
	assert.True(t, om.IsAgentDisabled())

	assert.False(t, om.EnableAutonomousAgent("", now), "empty operator must be rejected")
	assert.True(t, om.IsAgentDisabled())

	assert.True(t, om.EnableAutonomousAgent("op-1", now))
	assert.False(t, om.IsAgentDisabled())
}

func TestEmergencyStopRecordsOverride(t *testing.T) {
	now := time.Now()
	om := NewOverrideManager(&fakeActuator{})
	id := om.EmergencyStop("op-1", "pedestrian incident", now)
	assert.True(t, strings.HasPrefix(id, "OVR-"))
}

func TestOverrideExpiresAfterDuration(t *testing.T) {
	now := time.Now()
	om := NewOverrideManager(&fakeActuator{})
	_, err := om.ForceSignalState("J1", models.DirectionNorth, models.ColorGreen, time.Second, "op-1", "manual", now)
	require.NoError(t, err)

	later := now.Add(2 * time.Second)
	active := om.GetActiveOverrides(later)
	assert.Empty(t, active)
}
