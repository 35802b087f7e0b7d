package density

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trafficctl/control-plane/internal/models"
)

// TestS1Classification mirrors spec.md scenario S1: a road with capacity
// 20 and 6 vehicles scores 30.0, LOW by score, MEDIUM by count.
func TestS1Classification(t *testing.T) {
	th := DefaultThresholds()

	score := Score(6, 20)
	assert.Equal(t, 30.0, score)
	assert.Equal(t, models.ClassificationLow, ClassifyByScore(th, score))
	assert.Equal(t, models.ClassificationMedium, ClassifyByCount(th, 6))
}

func TestScoreBoundsAlwaysZeroToHundred(t *testing.T) {
	assert.Equal(t, 0.0, Score(0, 0))
	assert.Equal(t, 100.0, Score(999, 10))
	assert.Equal(t, 50.0, Score(5, 10))
}

func TestRoadCapacityFormula(t *testing.T) {
	th := DefaultThresholds()
	// length 300m, 2 lanes, vehicle_space=30 -> floor(300/30)*2 = 20
	assert.Equal(t, 20, RoadCapacity(th, 300, 2))
	// degenerate length still yields capacity >= 1
	assert.Equal(t, 1, RoadCapacity(th, 1, 1))
}

func TestTrackerUpdateAndHistoryRetention(t *testing.T) {
	tracker := New(DefaultThresholds(), 5) // 5 second retention for the test
	tracker.InitializeRoads(
		[]models.Road{{ID: "R1", Length: 300, Lanes: 2}},
		nil,
	)

	base := time.Unix(1000, 0)
	for i := 0; i < 10; i++ {
		now := base.Add(time.Duration(i) * time.Second)
		tracker.Update([]VehicleObservation{{RoadID: "R1"}, {RoadID: "R1"}}, now)
	}

	rd, ok := tracker.GetRoadDensity("R1")
	require.True(t, ok)
	assert.Equal(t, 2, rd.VehicleCount)

	hist := tracker.GetHistory("R1", 0, base.Add(9*time.Second))
	assert.LessOrEqual(t, len(hist), 5, "ring must bound history to retention_seconds")
}

func TestJunctionAggregateLevelThresholds(t *testing.T) {
	directional := map[models.Direction]float64{
		models.DirectionNorth: 80,
		models.DirectionEast:  20,
		models.DirectionSouth: 10,
		models.DirectionWest:  10,
	}
	agg := Aggregate("J1", directional, 40, []float64{80, 20, 10, 10})
	assert.Equal(t, models.ClassificationHigh, agg.CongestionLevel)
	assert.GreaterOrEqual(t, agg.MaxDensity, agg.AvgDensity)
}

func TestMostCongestedDirectionPicksHighestScore(t *testing.T) {
	directional := map[models.Direction]float64{
		models.DirectionNorth: 30,
		models.DirectionEast:  90,
		models.DirectionSouth: 10,
		models.DirectionWest:  40,
	}
	dir, score := MostCongestedDirection(directional)
	assert.Equal(t, models.DirectionEast, dir)
	assert.Equal(t, 90.0, score)
}

func TestTrendClassification(t *testing.T) {
	base := time.Unix(2000, 0)
	increasing := make([]models.DensitySnapshot, 0, 20)
	for i := 0; i < 20; i++ {
		increasing = append(increasing, models.DensitySnapshot{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Score:     float64(30 + 2*i),
		})
	}
	res := AnalyzeTrend(increasing, 0)
	assert.Equal(t, models.TrendIncreasing, res.Trend)

	decreasing := make([]models.DensitySnapshot, 0, 20)
	for i := 0; i < 20; i++ {
		decreasing = append(decreasing, models.DensitySnapshot{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Score:     float64(80 - 2*i),
		})
	}
	res = AnalyzeTrend(decreasing, 0)
	assert.Equal(t, models.TrendDecreasing, res.Trend)

	stable := make([]models.DensitySnapshot, 0, 20)
	for i := 0; i < 20; i++ {
		stable = append(stable, models.DensitySnapshot{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Score:     50,
		})
	}
	res = AnalyzeTrend(stable, 0)
	assert.Equal(t, models.TrendStable, res.Trend)
}

func TestCityMetricsAggregatesAcrossRoads(t *testing.T) {
	roads := []models.RoadDensity{
		{RoadID: "R1", VehicleCount: 5, Capacity: 10, Score: 50, Classification: models.ClassificationMedium},
		{RoadID: "R2", VehicleCount: 9, Capacity: 10, Score: 90, Classification: models.ClassificationHigh},
	}
	junctions := []models.JunctionDensity{
		{JunctionID: "J1", CongestionLevel: models.ClassificationHigh},
	}
	m := CityMetrics(roads, junctions, time.Now())
	assert.Equal(t, 14, m.TotalVehicles)
	assert.Equal(t, "R2", m.PeakRoadID)
	assert.Equal(t, 1, m.CongestionPoints)
}
