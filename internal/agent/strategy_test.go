package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/trafficctl/control-plane/internal/models"
)

func stateWithJunction(junctionID string, directional map[models.Direction]float64) PerceivedState {
	return PerceivedState{
		Now:       time.Now(),
		Junctions: map[string]models.JunctionDensity{junctionID: {JunctionID: junctionID, Directional: directional}},
		Signals:   map[string]models.JunctionSignals{},
	}
}

func TestRuleBasedStrategyPicksMostCongestedDirection(t *testing.T) {
	s := NewRuleBasedStrategy(20)
	state := stateWithJunction("J1", map[models.Direction]float64{
		models.DirectionNorth: 20,
		models.DirectionEast:  80,
		models.DirectionSouth: 10,
		models.DirectionWest:  5,
	})

	decisions := s.Decide(state)
	assert.Len(t, decisions.Decisions, 1)
	assert.Equal(t, models.DirectionEast, decisions.Decisions[0].Direction)
	assert.Equal(t, models.ActionGreen, decisions.Decisions[0].Action)
}

func TestRuleBasedStrategySkipsAlreadyGreenDirection(t *testing.T) {
	s := NewRuleBasedStrategy(20)
	state := stateWithJunction("J1", map[models.Direction]float64{models.DirectionNorth: 90})
	signals := models.NewDefaultSignals("J1", time.Now())
	st := signals.Signals[models.DirectionNorth]
	st.Color = models.ColorGreen
	signals.Signals[models.DirectionNorth] = st
	state.Signals["J1"] = signals

	decisions := s.Decide(state)
	assert.Empty(t, decisions.Decisions)
}

func TestRuleBasedStrategyEmitsPairedRedForCurrentGreenDirection(t *testing.T) {
	s := NewRuleBasedStrategy(20)
	state := stateWithJunction("J1", map[models.Direction]float64{
		models.DirectionNorth: 10,
		models.DirectionEast:  95,
	})
	signals := models.NewDefaultSignals("J1", time.Now())
	st := signals.Signals[models.DirectionNorth]
	st.Color = models.ColorGreen
	signals.Signals[models.DirectionNorth] = st
	state.Signals["J1"] = signals

	decisions := s.Decide(state)
	assert.Len(t, decisions.Decisions, 2)
	assert.Equal(t, models.DirectionNorth, decisions.Decisions[0].Direction)
	assert.Equal(t, models.ActionRed, decisions.Decisions[0].Action)
	assert.Equal(t, models.DirectionEast, decisions.Decisions[1].Direction)
	assert.Equal(t, models.ActionGreen, decisions.Decisions[1].Action)
}

func TestRuleBasedStrategyDurationClampsToSpecBounds(t *testing.T) {
	s := NewRuleBasedStrategy(20)

	low := stateWithJunction("J1", map[models.Direction]float64{models.DirectionNorth: 0})
	d := s.Decide(low).Decisions
	assert.Equal(t, 15, d[0].DurationSec)

	high := stateWithJunction("J1", map[models.Direction]float64{models.DirectionNorth: 90})
	d = s.Decide(high).Decisions
	assert.Equal(t, 60, d[0].DurationSec)

	mid := stateWithJunction("J1", map[models.Direction]float64{models.DirectionNorth: 20})
	d = s.Decide(mid).Decisions
	assert.Equal(t, 55, d[0].DurationSec)
}

func TestRLStrategyEmitsPairedRedForCurrentGreenDirection(t *testing.T) {
	s := NewRLStrategy(20, &fakeEstimator{values: map[string]float64{"J1": -500}})
	state := stateWithJunction("J1", map[models.Direction]float64{
		models.DirectionNorth: 10,
		models.DirectionEast:  90,
	})
	signals := models.NewDefaultSignals("J1", time.Now())
	st := signals.Signals[models.DirectionNorth]
	st.Color = models.ColorGreen
	signals.Signals[models.DirectionNorth] = st
	state.Signals["J1"] = signals

	decisions := s.Decide(state)
	assert.Len(t, decisions.Decisions, 2)
	assert.Equal(t, models.DirectionNorth, decisions.Decisions[0].Direction)
	assert.Equal(t, models.ActionRed, decisions.Decisions[0].Action)
	assert.Equal(t, models.DirectionEast, decisions.Decisions[1].Direction)
	assert.Equal(t, models.ActionGreen, decisions.Decisions[1].Action)
}

type fakeEstimator struct {
	values map[string]float64
}

func (f *fakeEstimator) ValueEstimate(junctionID string) (float64, bool) {
	v, ok := f.values[junctionID]
	return v, ok
}

func TestRLStrategyHoldsOnLowBlendedRisk(t *testing.T) {
	s := NewRLStrategy(20, &fakeEstimator{values: map[string]float64{"J1": 400}}) // very positive value -> low risk
	state := stateWithJunction("J1", map[models.Direction]float64{models.DirectionNorth: 10})

	decisions := s.Decide(state)
	assert.Empty(t, decisions.Decisions)
}

func TestRLStrategyActsOnHighBlendedRisk(t *testing.T) {
	s := NewRLStrategy(20, &fakeEstimator{values: map[string]float64{"J1": -500}})
	state := stateWithJunction("J1", map[models.Direction]float64{models.DirectionNorth: 90})

	decisions := s.Decide(state)
	assert.Len(t, decisions.Decisions, 1)
}

func TestManualStrategyNeverDecides(t *testing.T) {
	s := ManualStrategy{}
	state := stateWithJunction("J1", map[models.Direction]float64{models.DirectionNorth: 99})
	assert.Empty(t, s.Decide(state).Decisions)
}
