package density

import "github.com/trafficctl/control-plane/internal/models"

// JunctionThresholds are the max-density boundaries for junction-level
// congestion classification (spec §4.1: "level from max with thresholds
// 40/70").
const (
	JunctionHighThreshold   = 70.0
	JunctionMediumThreshold = 40.0
)

// Aggregate computes a junction's aggregate density record from its
// directional road scores. Grounded on
// original_source/backend/app/density/junction_aggregator.py's
// calculate_junction_density and calculate_imbalance_score, replacing its
// duck-typed attribute lookups with the caller passing plain data.
func Aggregate(junctionID string, directional map[models.Direction]float64, totalVehicles int, scores []float64) models.JunctionDensity {
	var maxScore, sumScore float64
	for _, s := range scores {
		sumScore += s
		if s > maxScore {
			maxScore = s
		}
	}
	avg := 0.0
	if len(scores) > 0 {
		avg = sumScore / float64(len(scores))
	}

	level := models.ClassificationLow
	switch {
	case maxScore >= JunctionHighThreshold:
		level = models.ClassificationHigh
	case maxScore >= JunctionMediumThreshold:
		level = models.ClassificationMedium
	}

	imbalance := stddev(scores) * 2
	if imbalance > 100 {
		imbalance = 100
	}

	return models.JunctionDensity{
		JunctionID:      junctionID,
		Directional:     directional,
		TotalVehicles:   totalVehicles,
		MaxDensity:      maxScore,
		AvgDensity:      avg,
		CongestionLevel: level,
		ImbalanceScore:  imbalance,
	}
}

// MostCongestedDirection returns the direction with the highest density
// score, used both for diagnostics and as the Agent Loop's rule-based
// direction tie-break (SPEC_FULL.md §3, open question 1).
func MostCongestedDirection(directional map[models.Direction]float64) (models.Direction, float64) {
	var best models.Direction
	var bestScore float64 = -1
	for _, d := range models.Directions {
		if s, ok := directional[d]; ok && s > bestScore {
			best = d
			bestScore = s
		}
	}
	return best, bestScore
}
