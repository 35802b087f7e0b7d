package density

import (
	"time"

	"github.com/trafficctl/control-plane/internal/models"
)

// CityMetrics computes the city-wide aggregate from the current set of
// road and junction densities. Grounded on
// original_source/backend/app/density/city_metrics.py's
// calculate_city_metrics.
func CityMetrics(roads []models.RoadDensity, junctions []models.JunctionDensity, now time.Time) models.CityMetrics {
	m := models.CityMetrics{
		CountByLevel: map[models.Classification]int{
			models.ClassificationLow:    0,
			models.ClassificationMedium: 0,
			models.ClassificationHigh:   0,
		},
		ComputedAt: now,
	}

	var sumScore float64
	for _, r := range roads {
		m.TotalVehicles += r.VehicleCount
		m.TotalCapacity += r.Capacity
		sumScore += r.Score
		m.CountByLevel[r.Classification]++

		if r.Score > m.PeakScore {
			m.PeakScore = r.Score
			m.PeakRoadID = r.RoadID
		}
	}
	if len(roads) > 0 {
		m.AverageScore = sumScore / float64(len(roads))
	}

	for _, j := range junctions {
		if j.CongestionLevel == models.ClassificationHigh {
			m.CongestionPoints++
		}
	}

	return m
}

// CongestionHotspots returns the roads whose score is at or above
// threshold, matching get_congestion_hotspots in city_metrics.py.
func CongestionHotspots(roads []models.RoadDensity, threshold float64) []models.RoadDensity {
	var out []models.RoadDensity
	for _, r := range roads {
		if r.Score >= threshold {
			out = append(out, r)
		}
	}
	return out
}
