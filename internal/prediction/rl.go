package prediction

import (
	"fmt"
	"math"

	"github.com/trafficctl/control-plane/internal/models"
)

// ValueToRisk maps an RL critic's value-function estimate to a 0-100
// congestion risk score. Grounded on
// original_source/backend/app/prediction/rl_value_predictor.py's
// _value_to_congestion_risk: positive values (good states) decay risk
// from 50, negative values (bad states) grow it from 50.
func ValueToRisk(value float64) float64 {
	var risk float64
	if value > 0 {
		risk = math.Max(0, 50-value/10)
	} else {
		risk = math.Min(100, 50+math.Abs(value)/20)
	}
	return clamp(risk, 0, 100)
}

// DecomposeRL splits an overall RL risk/value into per-junction
// predictions, weighting each junction's local density score equally
// against the overall risk (50/50, per the original's
// "local_risk = overall*0.5 + avg_density*0.5").
func DecomposeRL(overallValue float64, junctionScores map[string]float64) models.RLValuePrediction {
	overallRisk := ValueToRisk(overallValue)
	confidence := 0.5
	if math.Abs(overallValue) > 10 {
		confidence = 0.7
	}

	perJunction := make(map[string]models.JunctionRisk, len(junctionScores))
	for id, score := range junctionScores {
		localRisk := clamp(overallRisk*0.5+score*0.5, 0, 100)
		perJunction[id] = models.JunctionRisk{Risk: localRisk, Confidence: confidence}
	}

	return models.RLValuePrediction{
		OverallValue: overallValue,
		OverallRisk:  overallRisk,
		PerJunction:  perJunction,
	}
}

// junctionIDLabel mirrors the original's "J-{i+1}" fallback labelling
// when no junction graph is available; kept for parity with the
// original's synthetic-grid test fixtures.
func junctionIDLabel(i int) string {
	return fmt.Sprintf("J-%d", i+1)
}
