package prediction

import (
	"time"

	"github.com/trafficctl/control-plane/internal/capability"
	"github.com/trafficctl/control-plane/internal/models"
)

// Config controls the prediction engine's algorithm choice and tuning.
type Config struct {
	Algorithm          string // AlgorithmMovingAverage|AlgorithmLinearTrend|AlgorithmExponential
	Alpha              float64
	Beta               float64
	MovingAverageWindow int
}

// DefaultConfig matches the original's documented defaults (algorithm
// EXP, alpha=0.3, beta=0.1, ma_window=30).
func DefaultConfig() Config {
	return Config{Algorithm: AlgorithmExponential, Alpha: 0.3, Beta: 0.1, MovingAverageWindow: 30}
}

// Engine produces CongestionPredictions from a DensitySource's history.
type Engine struct {
	cfg     Config
	density capability.DensitySource
}

func NewEngine(cfg Config, density capability.DensitySource) *Engine {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmExponential
	}
	return &Engine{cfg: cfg, density: density}
}

// Predict forecasts density for one road at each configured horizon.
func (e *Engine) Predict(roadID string, now time.Time) models.CongestionPrediction {
	history := e.density.GetHistory(roadID, 30*60, now)

	current := 0.0
	if n := len(history); n > 0 {
		current = history[n-1].Score
	}

	points := make([]models.PredictedPoint, 0, len(Horizons))
	for _, h := range Horizons {
		at := now.Add(h)
		var value float64
		switch e.cfg.Algorithm {
		case AlgorithmMovingAverage:
			value = MovingAverage(history, e.cfg.MovingAverageWindow)
		case AlgorithmLinearTrend:
			value = LinearTrend(history, at)
		default:
			value = ExponentialSmoothing(history, e.cfg.Alpha, e.cfg.Beta, h.Seconds())
		}
		points = append(points, models.PredictedPoint{At: at, Density: value})
	}

	return models.CongestionPrediction{
		RoadID:         roadID,
		PredictedAt:    now,
		CurrentDensity: current,
		Points:         points,
		Confidence:     confidenceFor(len(history)),
		Algorithm:      e.cfg.Algorithm,
	}
}

// PredictAll forecasts every given road.
func (e *Engine) PredictAll(roadIDs []string, now time.Time) map[string]models.CongestionPrediction {
	out := make(map[string]models.CongestionPrediction, len(roadIDs))
	for _, id := range roadIDs {
		out[id] = e.Predict(id, now)
	}
	return out
}

// confidenceFor scales with the amount of history available: a
// prediction from 2 samples is far less trustworthy than one from 30.
func confidenceFor(historyLen int) float64 {
	switch {
	case historyLen >= 20:
		return 0.9
	case historyLen >= 10:
		return 0.7
	case historyLen >= 3:
		return 0.5
	default:
		return 0.3
	}
}

// MaxPredictedLevel returns the worst classification among a
// prediction's forecast points.
func MaxPredictedLevel(p models.CongestionPrediction) models.CongestionLevel {
	worst := ClassifyDensity(p.CurrentDensity)
	for _, pt := range p.Points {
		lvl := ClassifyDensity(pt.Density)
		if rank(lvl) > rank(worst) {
			worst = lvl
		}
	}
	return worst
}

// ClassifyDensity maps a predicted score to a congestion level using
// the classifier thresholds {<40: LOW, <70: MEDIUM, <90: HIGH, >=90: JAM}.
func ClassifyDensity(score float64) models.CongestionLevel {
	switch {
	case score < 40:
		return models.ClassificationLow
	case score < 70:
		return models.ClassificationMedium
	case score < 90:
		return models.ClassificationHigh
	default:
		return models.ClassificationJam
	}
}

func rank(level models.CongestionLevel) int {
	switch level {
	case models.ClassificationLow:
		return 0
	case models.ClassificationMedium:
		return 1
	case models.ClassificationHigh:
		return 2
	default:
		return 3
	}
}
