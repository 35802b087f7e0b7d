package prediction

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trafficctl/control-plane/internal/models"
)

// AlertCooldown is the default per-(road,level) dedup window (spec
// default alert_cooldown=120s).
const AlertCooldown = 120 * time.Second

// AlertGenerator checks predictions against severity thresholds and
// deduplicates repeated alerts for the same road+level within the
// cooldown window.
type AlertGenerator struct {
	cooldown time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time // key: roadID|level
}

func NewAlertGenerator(cooldown time.Duration) *AlertGenerator {
	if cooldown <= 0 {
		cooldown = AlertCooldown
	}
	return &AlertGenerator{cooldown: cooldown, lastSent: make(map[string]time.Time)}
}

// Check inspects one prediction and returns the alerts it warrants,
// skipping any (road, level) pair still within its cooldown.
func (g *AlertGenerator) Check(p models.CongestionPrediction, now time.Time) []models.CongestionAlert {
	var alerts []models.CongestionAlert

	for _, pt := range p.Points {
		level := ClassifyDensity(pt.Density)
		if level != models.ClassificationHigh && level != models.ClassificationJam {
			continue
		}

		key := p.RoadID + "|" + string(level)
		g.mu.Lock()
		last, seen := g.lastSent[key]
		if seen && now.Sub(last) < g.cooldown {
			g.mu.Unlock()
			continue
		}
		g.lastSent[key] = now
		g.mu.Unlock()

		severity := models.SeverityWarning
		if level == models.ClassificationJam {
			severity = models.SeverityCritical
		}

		alerts = append(alerts, models.CongestionAlert{
			AlertID:        "ALT-" + uuid.NewString(),
			RoadID:         p.RoadID,
			PredictedLevel: level,
			Severity:       severity,
			PredictedAt:    pt.At,
			CreatedAt:      now,
			Message:        fmt.Sprintf("road %s predicted %s congestion at %s", p.RoadID, level, pt.At.Format(time.RFC3339)),
		})
	}

	return alerts
}
