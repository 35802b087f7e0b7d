package prediction

import (
	"context"
	"time"

	"github.com/trafficctl/control-plane/internal/capability"
	"github.com/trafficctl/control-plane/internal/models"
)

// maxBroadcastRoads caps the number of roads included in one
// prediction:updated payload (the original's "limit to 20 roads").
const maxBroadcastRoads = 20

// maxBroadcastPoints caps the forecast points per road in a broadcast
// (the original's "first 5 predictions").
const maxBroadcastPoints = 5

// Broadcaster periodically predicts every tracked road and emits
// prediction:updated, checking each prediction for alerts and emitting
// prediction:alert immediately when one fires.
type Broadcaster struct {
	engine   *Engine
	alerts   *AlertGenerator
	emit     capability.EventEmitter
	interval time.Duration
	roadIDs  func() []string

	totalBroadcasts  int64
	totalAlertsSent  int64
	lastBroadcastAt  time.Time
}

func NewBroadcaster(engine *Engine, alerts *AlertGenerator, emit capability.EventEmitter, interval time.Duration, roadIDs func() []string) *Broadcaster {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Broadcaster{engine: engine, alerts: alerts, emit: emit, interval: interval, roadIDs: roadIDs}
}

// Run blocks, broadcasting on a fixed interval until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick(time.Now())
		}
	}
}

func (b *Broadcaster) tick(now time.Time) {
	roadIDs := b.roadIDs()
	if len(roadIDs) == 0 {
		return
	}

	predictions := b.engine.PredictAll(roadIDs, now)

	var allAlerts []models.CongestionAlert
	for _, p := range predictions {
		allAlerts = append(allAlerts, b.alerts.Check(p, now)...)
	}

	b.broadcastPredictions(predictions, now)
	if len(allAlerts) > 0 {
		b.broadcastAlerts(allAlerts, now)
	}
}

type broadcastPrediction struct {
	RoadID            string                   `json:"roadId"`
	CurrentDensity    float64                  `json:"currentDensity"`
	MaxCongestionLevel models.CongestionLevel  `json:"maxCongestionLevel"`
	Confidence        float64                  `json:"confidence"`
	Predictions       []broadcastPoint         `json:"predictions"`
}

type broadcastPoint struct {
	MinutesAhead    int                    `json:"minutesAhead"`
	PredictedDensity float64               `json:"predictedDensity"`
	CongestionLevel models.CongestionLevel `json:"congestionLevel"`
}

func (b *Broadcaster) broadcastPredictions(predictions map[string]models.CongestionPrediction, now time.Time) {
	if b.emit == nil {
		return
	}

	formatted := make([]broadcastPrediction, 0, maxBroadcastRoads)
	count := 0
	for roadID, p := range predictions {
		if count >= maxBroadcastRoads {
			break
		}
		count++

		points := p.Points
		if len(points) > maxBroadcastPoints {
			points = points[:maxBroadcastPoints]
		}
		bp := make([]broadcastPoint, len(points))
		for i, pt := range points {
			bp[i] = broadcastPoint{
				MinutesAhead:     int(pt.At.Sub(p.PredictedAt).Minutes()),
				PredictedDensity: pt.Density,
				CongestionLevel:  ClassifyDensity(pt.Density),
			}
		}

		formatted = append(formatted, broadcastPrediction{
			RoadID:             roadID,
			CurrentDensity:     p.CurrentDensity,
			MaxCongestionLevel: MaxPredictedLevel(p),
			Confidence:         p.Confidence,
			Predictions:        bp,
		})
	}

	b.emit.Emit("prediction:updated", map[string]any{
		"timestamp":  now,
		"totalRoads": len(formatted),
		"predictions": formatted,
	})

	b.totalBroadcasts++
	b.lastBroadcastAt = now
}

func (b *Broadcaster) broadcastAlerts(alerts []models.CongestionAlert, now time.Time) {
	if b.emit == nil {
		return
	}
	b.emit.Emit("prediction:alert", map[string]any{
		"timestamp": now,
		"alerts":    alerts,
	})
	b.totalAlertsSent += int64(len(alerts))
}

// Statistics mirrors the original's get_statistics() surface.
type Statistics struct {
	TotalBroadcasts int64
	TotalAlertsSent int64
	LastBroadcastAt time.Time
}

func (b *Broadcaster) Statistics() Statistics {
	return Statistics{TotalBroadcasts: b.totalBroadcasts, TotalAlertsSent: b.totalAlertsSent, LastBroadcastAt: b.lastBroadcastAt}
}
