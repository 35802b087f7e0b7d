package density

import (
	"math"

	"github.com/trafficctl/control-plane/internal/models"
)

// SlopeThreshold is the default boundary (density-score units per
// normalized time unit) above/below which a trend is INCREASING or
// DECREASING rather than STABLE (spec §4.1).
const SlopeThreshold = 5.0

// AnalyzeTrend performs a least-squares fit of score against normalized
// time over the given snapshots (oldest first) and classifies the slope.
// Mirrors original_source/backend/app/density/density_history.py's
// TrendAnalyzer.calculate_trend.
func AnalyzeTrend(snapshots []models.DensitySnapshot, slopeThreshold float64) models.TrendAnalysis {
	if slopeThreshold == 0 {
		slopeThreshold = SlopeThreshold
	}

	n := len(snapshots)
	if n == 0 {
		return models.TrendAnalysis{Trend: models.TrendStable}
	}
	if n == 1 {
		return models.TrendAnalysis{Trend: models.TrendStable, SampleCount: 1}
	}

	t0 := snapshots[0].Timestamp
	tLast := snapshots[n-1].Timestamp
	span := tLast.Sub(t0).Seconds()
	if span <= 0 {
		span = float64(n - 1)
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, s := range snapshots {
		if span > 0 {
			xs[i] = s.Timestamp.Sub(t0).Seconds() / span
		} else {
			xs[i] = float64(i) / float64(n-1)
		}
		ys[i] = s.Score
	}

	slope, _ := linearRegression(xs, ys)

	trend := models.TrendStable
	switch {
	case slope > slopeThreshold:
		trend = models.TrendIncreasing
	case slope < -slopeThreshold:
		trend = models.TrendDecreasing
	}

	rateOfChange := 0.0
	if dt := snapshots[n-1].Timestamp.Sub(snapshots[0].Timestamp).Seconds(); dt > 0 {
		rateOfChange = float64(snapshots[n-1].VehicleCount-snapshots[0].VehicleCount) / dt
	}

	return models.TrendAnalysis{
		Trend:        trend,
		Slope:        slope,
		Volatility:   stddev(ys),
		RateOfChange: rateOfChange,
		SampleCount:  n,
	}
}

// linearRegression returns (slope, intercept) for y = a*x + b fit by
// ordinary least squares.
func linearRegression(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}
