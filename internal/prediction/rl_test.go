package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueToRiskPositiveValueLowersRisk(t *testing.T) {
	assert.InDelta(t, 40.0, ValueToRisk(100), 0.001)
}

func TestValueToRiskNegativeValueRaisesRisk(t *testing.T) {
	assert.InDelta(t, 75.0, ValueToRisk(-500), 0.001)
}

func TestValueToRiskClampsToHundred(t *testing.T) {
	assert.Equal(t, 100.0, ValueToRisk(-10000))
}

func TestDecomposeRLConfidenceThreshold(t *testing.T) {
	low := DecomposeRL(5, map[string]float64{"J-1": 50})
	assert.Equal(t, 0.5, low.PerJunction["J-1"].Confidence)

	high := DecomposeRL(50, map[string]float64{"J-1": 50})
	assert.Equal(t, 0.7, high.PerJunction["J-1"].Confidence)
}

func TestDecomposeRLBlendsOverallAndLocal(t *testing.T) {
	result := DecomposeRL(0, map[string]float64{"J-1": 100})
	// overall risk at value=0 is 50 (falls into the value<=0 branch: 50+0/20=50)
	assert.InDelta(t, 75.0, result.PerJunction["J-1"].Risk, 0.001)
}
