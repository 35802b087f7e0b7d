package detection

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trafficctl/control-plane/internal/models"
)

type fakeEmitter struct {
	events []struct {
		Type    string
		Payload any
	}
}

func (f *fakeEmitter) Emit(eventType string, payload any) {
	f.events = append(f.events, struct {
		Type    string
		Payload any
	}{eventType, payload})
}

func junctionAllRed(now time.Time) models.JunctionSignals {
	s := models.NewDefaultSignals("J1", now)
	return s
}

func TestViolationDetectedOnRedCrossing(t *testing.T) {
	now := time.Now()
	emitter := &fakeEmitter{}
	vd := NewViolationDetector(emitter)

	signals := junctionAllRed(now)
	evt := models.VehicleDetectionEvent{
		EventID:    "e1",
		Plate:      "KA-01-HH-1234",
		JunctionID: "J1",
		Direction:  models.DirectionNorth,
		Timestamp:  now,
	}

	violation, ok := vd.Check(evt, signals)
	require.True(t, ok)
	assert.Equal(t, models.ViolationRedLight, violation.Type)
	assert.Equal(t, "e1", violation.DetectionID)
	require.Len(t, emitter.events, 1)
	assert.Equal(t, "violation:detected", emitter.events[0].Type)
}

func TestNoViolationWhenSignalGreen(t *testing.T) {
	now := time.Now()
	signals := junctionAllRed(now)
	state := signals.Signals[models.DirectionNorth]
	state.Color = models.ColorGreen
	signals.Signals[models.DirectionNorth] = state

	vd := NewViolationDetector(nil)
	evt := models.VehicleDetectionEvent{JunctionID: "J1", Direction: models.DirectionNorth, Timestamp: now}

	_, ok := vd.Check(evt, signals)
	assert.False(t, ok)
}

func TestIssueChallanEmitsAndUsesCHLPrefix(t *testing.T) {
	emitter := &fakeEmitter{}
	vd := NewViolationDetector(emitter)
	violation := models.Violation{ID: "VIO-1", Plate: "KA-01-HH-1234"}

	challan := vd.IssueChallan(violation, time.Now())
	assert.True(t, strings.HasPrefix(challan.ID, "CHL-"))
	assert.Equal(t, ChallanAmountCents, int(challan.AmountCents))
	require.Len(t, emitter.events, 1)
	assert.Equal(t, "challan:issued", emitter.events[0].Type)
}
