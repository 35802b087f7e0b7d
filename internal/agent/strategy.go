// Package agent implements the Autonomous Agent Loop (spec component
// E): a continuous perceive-predict-decide-act-monitor cycle driving
// signal decisions through a pluggable strategy.
package agent

import (
	"time"

	"github.com/trafficctl/control-plane/internal/density"
	"github.com/trafficctl/control-plane/internal/models"
	"github.com/trafficctl/control-plane/internal/prediction"
)

// Strategy names mirror the original AgentStrategy enum.
const (
	StrategyRL         = "RL"
	StrategyRuleBased  = "RULE_BASED"
	StrategyManual     = "MANUAL"
)

// PerceivedState is the snapshot the loop gathers at the start of every
// tick (spec "PERCEIVE - Read current state from density tracker,
// simulation").
type PerceivedState struct {
	Now       time.Time
	Junctions map[string]models.JunctionDensity
	Signals   map[string]models.JunctionSignals
}

// Strategy produces signal decisions from perceived state. Implementing
// this as an explicit interface (rather than the original's hasattr
// dispatch across RL/rules/manual code paths) is the generalization the
// spec's design notes call for.
type Strategy interface {
	Name() string
	Decide(state PerceivedState) models.AgentDecisions
}

// RuleBasedStrategy grants GREEN to the most congested direction at
// each junction (spec §9 open question: tie-break by congestion score,
// not waiting time — "waiting time" is not a tracked quantity).
type RuleBasedStrategy struct {
	GreenDurationSec int
}

func NewRuleBasedStrategy(greenDurationSec int) *RuleBasedStrategy {
	if greenDurationSec <= 0 {
		greenDurationSec = 20
	}
	return &RuleBasedStrategy{GreenDurationSec: greenDurationSec}
}

func (s *RuleBasedStrategy) Name() string { return StrategyRuleBased }

func (s *RuleBasedStrategy) Decide(state PerceivedState) models.AgentDecisions {
	var decisions []models.SignalDecision

	for junctionID, jd := range state.Junctions {
		direction, score := density.MostCongestedDirection(jd.Directional)
		if direction == "" {
			continue
		}

		signals, ok := state.Signals[junctionID]
		var currentGreen models.Direction
		var hasGreen bool
		if ok {
			currentGreen, hasGreen = currentGreenDirection(signals)
		}
		if hasGreen && currentGreen == direction {
			continue
		}

		if hasGreen {
			decisions = append(decisions, models.SignalDecision{
				JunctionID: junctionID,
				Direction:  currentGreen,
				Action:     models.ActionRed,
				Reason:     "yielding to more congested direction",
				Strategy:   StrategyRuleBased,
			})
		}

		decisions = append(decisions, models.SignalDecision{
			JunctionID:  junctionID,
			Direction:   direction,
			Action:      models.ActionGreen,
			DurationSec: greenDurationForScore(score),
			Reason:      "most congested direction",
			Strategy:    StrategyRuleBased,
		})
	}

	return models.AgentDecisions{Decisions: decisions}
}

// greenDurationForScore implements spec's RULE_BASED duration formula:
// clamp(15 + 2*density_score, 15, 60).
func greenDurationForScore(score float64) int {
	d := 15 + 2*score
	if d < 15 {
		d = 15
	}
	if d > 60 {
		d = 60
	}
	return int(d)
}

// currentGreenDirection returns the one direction currently GREEN at a
// junction, if any.
func currentGreenDirection(signals models.JunctionSignals) (models.Direction, bool) {
	for d, s := range signals.Signals {
		if s.Color == models.ColorGreen {
			return d, true
		}
	}
	return "", false
}

// RLStrategy blends the decomposed RL value-function risk with live
// density to rank directions, falling back to pure density ranking when
// no value estimate is available (grounded on
// rl_value_predictor.py's is_ready()/fallback pattern, replacing its
// hasattr checks with an explicit ValueEstimator interface).
type RLStrategy struct {
	GreenDurationSec int
	Estimator        ValueEstimator
}

// ValueEstimator supplies the RL critic's value estimate for a
// junction, if one is available.
type ValueEstimator interface {
	ValueEstimate(junctionID string) (float64, bool)
}

func NewRLStrategy(greenDurationSec int, estimator ValueEstimator) *RLStrategy {
	if greenDurationSec <= 0 {
		greenDurationSec = 20
	}
	return &RLStrategy{GreenDurationSec: greenDurationSec, Estimator: estimator}
}

func (s *RLStrategy) Name() string { return StrategyRL }

func (s *RLStrategy) Decide(state PerceivedState) models.AgentDecisions {
	var decisions []models.SignalDecision

	for junctionID, jd := range state.Junctions {
		direction, densityScore := density.MostCongestedDirection(jd.Directional)
		if direction == "" {
			continue
		}

		reason := "most congested direction"
		if s.Estimator != nil {
			if value, ok := s.Estimator.ValueEstimate(junctionID); ok {
				risk := prediction.ValueToRisk(value)
				blended := 0.5*risk + 0.5*densityScore
				if blended < 30 {
					// low blended risk: hold current state rather than churn
					continue
				}
				reason = "rl value-function risk"
			}
		}

		signals, ok := state.Signals[junctionID]
		var currentGreen models.Direction
		var hasGreen bool
		if ok {
			currentGreen, hasGreen = currentGreenDirection(signals)
		}
		if hasGreen && currentGreen == direction {
			continue
		}

		if hasGreen {
			decisions = append(decisions, models.SignalDecision{
				JunctionID: junctionID,
				Direction:  currentGreen,
				Action:     models.ActionRed,
				Reason:     "yielding to " + reason,
				Strategy:   StrategyRL,
			})
		}

		decisions = append(decisions, models.SignalDecision{
			JunctionID:  junctionID,
			Direction:   direction,
			Action:      models.ActionGreen,
			DurationSec: s.GreenDurationSec,
			Reason:      reason,
			Strategy:    StrategyRL,
		})
	}

	return models.AgentDecisions{Decisions: decisions}
}

// ManualStrategy never proposes a decision — all signal control flows
// through operator overrides (spec §4.4's manual override registry).
type ManualStrategy struct{}

func (ManualStrategy) Name() string { return StrategyManual }

func (ManualStrategy) Decide(PerceivedState) models.AgentDecisions {
	return models.AgentDecisions{}
}
