// Package prediction implements the Congestion Prediction Engine (spec
// component D): multiple forecasting algorithms over density history,
// classification, RL value-function decomposition, alerting with
// cooldown dedup, and periodic broadcast.
package prediction

import (
	"math"
	"time"

	"github.com/trafficctl/control-plane/internal/models"
)

// Algorithm names mirror the original's algorithm identifiers.
const (
	AlgorithmMovingAverage = "MA"
	AlgorithmLinearTrend   = "LINEAR"
	AlgorithmExponential   = "EXP"
)

// Horizons are the forecast offsets produced by every algorithm, in
// minutes ahead (spec: "forecasting density 3-10 minutes ahead").
var Horizons = []time.Duration{3 * time.Minute, 5 * time.Minute, 7 * time.Minute, 10 * time.Minute}

// MovingAverage predicts a flat continuation of the windowed mean.
func MovingAverage(history []models.DensitySnapshot, window int) float64 {
	n := len(history)
	if n == 0 {
		return 0
	}
	if window <= 0 || window > n {
		window = n
	}
	sum := 0.0
	for _, s := range history[n-window:] {
		sum += s.Score
	}
	return sum / float64(window)
}

// LinearTrend fits a least-squares line over the history and
// extrapolates it to t.
func LinearTrend(history []models.DensitySnapshot, t time.Time) float64 {
	n := len(history)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return history[0].Score
	}

	base := history[0].Timestamp
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, s := range history {
		xs[i] = s.Timestamp.Sub(base).Seconds()
		ys[i] = s.Score
	}

	slope, intercept := linearRegression(xs, ys)
	x := t.Sub(base).Seconds()
	return clamp(slope*x+intercept, 0, 100)
}

// ExponentialSmoothing applies double exponential smoothing (Holt's
// method: level + trend) with the configured alpha/beta, extrapolating
// horizonSeconds ahead. This is the default algorithm, matching the
// original's "Exponential Smoothing (default)".
func ExponentialSmoothing(history []models.DensitySnapshot, alpha, beta float64, horizonSeconds float64) float64 {
	n := len(history)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return history[0].Score
	}

	level := history[0].Score
	trend := history[1].Score - history[0].Score

	for i := 1; i < n; i++ {
		value := history[i].Score
		prevLevel := level
		level = alpha*value + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
	}

	avgStep := averageStepSeconds(history)
	if avgStep <= 0 {
		avgStep = 1
	}
	steps := horizonSeconds / avgStep
	return clamp(level+trend*steps, 0, 100)
}

func averageStepSeconds(history []models.DensitySnapshot) float64 {
	if len(history) < 2 {
		return 0
	}
	total := history[len(history)-1].Timestamp.Sub(history[0].Timestamp).Seconds()
	return total / float64(len(history)-1)
}

func linearRegression(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
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

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
