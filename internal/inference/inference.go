// Package inference implements Incident Inference (spec component F):
// backward reconstruction of a reported vehicle's probable location from
// its detection trail and the junction graph.
package inference

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/trafficctl/control-plane/internal/capability"
	"github.com/trafficctl/control-plane/internal/models"
)

const (
	// DefaultLookback is the detection-history window searched (spec
	// default H=30min).
	DefaultLookback = 30 * time.Minute
	// DefaultMaxSpeedKMH is v_max for reachability (spec default ~60km/h).
	DefaultMaxSpeedKMH = 60.0
	// DefaultTopK bounds the ranked candidate set returned.
	DefaultTopK = 5
	// lastKnownDecayTau is the exponential decay constant (seconds) for
	// the degraded last-known-location confidence.
	lastKnownDecayTau = 600.0
	// maxConcurrentWalks bounds concurrent graph BFS walks (domain stack:
	// golang.org/x/sync/semaphore).
	maxConcurrentWalks = 8
)

// Config tunes the inference engine.
type Config struct {
	Lookback    time.Duration
	MaxSpeedKMH float64
	TopK        int
}

func DefaultConfig() Config {
	return Config{Lookback: DefaultLookback, MaxSpeedKMH: DefaultMaxSpeedKMH, TopK: DefaultTopK}
}

// Engine reconstructs probable vehicle locations.
type Engine struct {
	cfg        Config
	detections capability.DetectionSource
	graph      capability.JunctionGraph
	sem        *semaphore.Weighted
}

func NewEngine(cfg Config, detections capability.DetectionSource, graph capability.JunctionGraph) *Engine {
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if cfg.MaxSpeedKMH <= 0 {
		cfg.MaxSpeedKMH = DefaultMaxSpeedKMH
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Engine{cfg: cfg, detections: detections, graph: graph, sem: semaphore.NewWeighted(maxConcurrentWalks)}
}

// Infer reconstructs the probable location of plate at incident time T.
func (e *Engine) Infer(ctx context.Context, plate string, incidentTime time.Time) (models.InferenceResult, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return models.InferenceResult{}, err
	}
	defer e.sem.Release(1)

	from := incidentTime.Add(-e.cfg.Lookback)
	trail := e.detections.DetectionsForPlate(plate, from, incidentTime)
	if len(trail) == 0 {
		return models.InferenceResult{Status: "NO_DATA"}, nil
	}

	sort.Slice(trail, func(i, j int) bool { return trail[i].Timestamp.Before(trail[j].Timestamp) })
	last := trail[len(trail)-1]
	delta := incidentTime.Sub(last.Timestamp)

	if e.graph == nil {
		return models.InferenceResult{
			Status:     "LAST_KNOWN_ONLY",
			LastSeen:   &last,
			Confidence: math.Exp(-delta.Seconds() / lastKnownDecayTau),
		}, nil
	}

	candidates := e.reachable(last.JunctionID, last.Direction, delta)
	if len(candidates) == 0 {
		return models.InferenceResult{
			Status:     "LAST_KNOWN_ONLY",
			LastSeen:   &last,
			Confidence: math.Exp(-delta.Seconds() / lastKnownDecayTau),
		}, nil
	}

	normalize(candidates)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Probability > candidates[j].Probability })
	if len(candidates) > e.cfg.TopK {
		candidates = candidates[:e.cfg.TopK]
	}

	return models.InferenceResult{
		Status:     "OK",
		Locations:  candidates,
		LastSeen:   &last,
		Confidence: candidates[0].Probability,
	}, nil
}

// reachable performs a breadth-first walk outward from origin, bounded
// by delta*v_max, and scores each reached junction inversely to its
// graph distance, to the plausibility gap between delta and the edge's
// cumulative travel time, and to whether the edge continues the
// vehicle's last recorded direction of travel (spec §4.6 steps 3-4: a
// neighbor reached by continuing in lastDirection outranks a
// same-distance neighbor reached by turning or reversing).
func (e *Engine) reachable(origin string, lastDirection models.Direction, delta time.Duration) []models.ProbableLocation {
	type frontierNode struct {
		junctionID string
		direction  models.Direction
		hops       int
		travelTime time.Duration
	}

	maxReach := kmToMeters(e.cfg.MaxSpeedKMH) * delta.Hours()

	visited := map[string]bool{origin: true}
	queue := []frontierNode{{junctionID: origin, direction: lastDirection, hops: 0}}
	var candidates []models.ProbableLocation

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for _, edge := range e.graph.Neighbors(node.junctionID) {
			if visited[edge.ToJunctionID] {
				continue
			}
			cumulative := node.travelTime + edge.TravelTime
			if cumulative.Hours()*kmToMeters(e.cfg.MaxSpeedKMH) > maxReach && node.hops > 0 {
				continue
			}
			visited[edge.ToJunctionID] = true

			distanceScore := 1.0 / float64(node.hops+1)
			plausibilityGap := math.Abs(delta.Seconds() - cumulative.Seconds())
			plausibilityScore := 1.0 / (1.0 + plausibilityGap/60.0)
			directionScore := directionAlignment(node.direction, edge.Direction)

			candidates = append(candidates, models.ProbableLocation{
				JunctionID:  edge.ToJunctionID,
				Direction:   edge.Direction,
				Probability: distanceScore * plausibilityScore * directionScore,
			})

			queue = append(queue, frontierNode{
				junctionID: edge.ToJunctionID,
				direction:  edge.Direction,
				hops:       node.hops + 1,
				travelTime: cumulative,
			})
		}
	}

	return candidates
}

// directionAlignment scores an edge by how well it continues travel,
// relative to the direction the vehicle was last (or most recently,
// for deeper BFS hops) observed heading. An unknown prior direction is
// neutral; continuing straight outranks turning, which outranks
// reversing.
func directionAlignment(prior, edge models.Direction) float64 {
	if prior == "" {
		return 1.0
	}
	if edge == prior {
		return 1.0
	}
	if isOppositeDirection(prior, edge) {
		return 0.4
	}
	return 0.7
}

func isOppositeDirection(a, b models.Direction) bool {
	switch a {
	case models.DirectionNorth:
		return b == models.DirectionSouth
	case models.DirectionSouth:
		return b == models.DirectionNorth
	case models.DirectionEast:
		return b == models.DirectionWest
	case models.DirectionWest:
		return b == models.DirectionEast
	default:
		return false
	}
}

func normalize(candidates []models.ProbableLocation) {
	var total float64
	for _, c := range candidates {
		total += c.Probability
	}
	if total <= 0 {
		return
	}
	for i := range candidates {
		candidates[i].Probability /= total
	}
}

func kmToMeters(kmh float64) float64 {
	return kmh * 1000
}
