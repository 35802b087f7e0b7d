// Package density implements the Density Tracker (spec component A): the
// authoritative traffic-state model with bounded-memory history and
// trend analysis.
package density

import (
	"sort"
	"sync"
	"time"

	"github.com/trafficctl/control-plane/internal/models"
	"github.com/trafficctl/control-plane/internal/ring"
)

// VehicleObservation is one vehicle position sample fed into Update.
type VehicleObservation struct {
	RoadID string
	Source models.Source
}

// roadState is the tracker's per-road mutable state.
type roadState struct {
	road    models.Road
	density models.RoadDensity
	history *ring.Buffer[models.DensitySnapshot]
}

// Tracker is the Density Tracker. Zero value is not usable; construct
// with New.
type Tracker struct {
	mu         sync.RWMutex
	thresholds Thresholds
	retention  time.Duration

	roads     map[string]*roadState
	junctions map[string]models.Junction
}

// New constructs a Tracker with the given classification thresholds and
// per-road history retention window.
func New(thresholds Thresholds, retentionSeconds int) *Tracker {
	if retentionSeconds < 1 {
		retentionSeconds = 600
	}
	return &Tracker{
		thresholds: thresholds,
		retention:  time.Duration(retentionSeconds) * time.Second,
		roads:      make(map[string]*roadState),
		junctions:  make(map[string]models.Junction),
	}
}

// InitializeRoads registers the network topology and precomputes each
// road's capacity. Replaces any previously registered roads and
// junctions (spec: "destroyed when network reloaded").
func (t *Tracker) InitializeRoads(roads []models.Road, junctions []models.Junction) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.roads = make(map[string]*roadState, len(roads))
	for _, r := range roads {
		capacity := RoadCapacity(t.thresholds, r.Length, r.Lanes)
		// retention is seconds of wall-clock history; one slot per
		// second of retention is an adequate upper bound for a tick
		// cadence of >= 1 Hz (see spec §4.1 ring sizing).
		slots := int(t.retention.Seconds())
		if slots < 1 {
			slots = 600
		}
		t.roads[r.ID] = &roadState{
			road: r,
			density: models.RoadDensity{
				RoadID:         r.ID,
				Capacity:       capacity,
				Classification: models.ClassificationLow,
			},
			history: ring.New[models.DensitySnapshot](slots),
		}
	}

	t.junctions = make(map[string]models.Junction, len(junctions))
	for _, j := range junctions {
		t.junctions[j.ID] = j
	}
}

// Update performs one atomic tick: bucket observations by road, recompute
// density for every road and junction, append a snapshot, and purge stale
// history.
func (t *Tracker) Update(observations []VehicleObservation, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[string]int, len(t.roads))
	sources := make(map[string]models.Source, len(t.roads))
	for _, obs := range observations {
		counts[obs.RoadID]++
		sources[obs.RoadID] = obs.Source
	}

	for id, rs := range t.roads {
		count := counts[id]
		score := Score(count, rs.density.Capacity)
		class := ClassifyByScore(t.thresholds, score)
		src := sources[id]
		if src == "" {
			src = models.SourceSimulation
		}

		rs.density.VehicleCount = count
		rs.density.Score = score
		rs.density.Classification = class
		rs.density.LastUpdate = now
		rs.density.Source = src

		rs.history.Push(models.DensitySnapshot{
			Timestamp:      now,
			RoadID:         id,
			VehicleCount:   count,
			Score:          score,
			Classification: class,
		})

		cutoff := now.Add(-t.retention)
		rs.history.DrainWhere(func(s models.DensitySnapshot) bool {
			return s.Timestamp.Before(cutoff)
		})
	}
}

// GetRoadDensity returns the current density record for a road. O(1).
func (t *Tracker) GetRoadDensity(roadID string) (models.RoadDensity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rs, ok := t.roads[roadID]
	if !ok {
		return models.RoadDensity{}, false
	}
	return rs.density, true
}

// GetJunctionDensity returns the current aggregate for a junction. O(1)
// in the number of directions (always 4).
func (t *Tracker) GetJunctionDensity(junctionID string) (models.JunctionDensity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	j, ok := t.junctions[junctionID]
	if !ok {
		return models.JunctionDensity{}, false
	}

	directional := make(map[models.Direction]float64, len(j.Roads))
	var total int
	var scores []float64
	for dir, roadID := range j.Roads {
		rs, ok := t.roads[roadID]
		if !ok {
			continue
		}
		directional[dir] = rs.density.Score
		total += rs.density.VehicleCount
		scores = append(scores, rs.density.Score)
	}

	return Aggregate(junctionID, directional, total, scores), true
}

// GetCityMetrics computes the city-wide aggregate on demand. O(R+J).
func (t *Tracker) GetCityMetrics(now time.Time) models.CityMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	roadDensities := make([]models.RoadDensity, 0, len(t.roads))
	for _, rs := range t.roads {
		roadDensities = append(roadDensities, rs.density)
	}

	junctionDensities := make([]models.JunctionDensity, 0, len(t.junctions))
	for id := range t.junctions {
		if jd, ok := t.getJunctionDensityLocked(id); ok {
			junctionDensities = append(junctionDensities, jd)
		}
	}

	return CityMetrics(roadDensities, junctionDensities, now)
}

func (t *Tracker) getJunctionDensityLocked(junctionID string) (models.JunctionDensity, bool) {
	j, ok := t.junctions[junctionID]
	if !ok {
		return models.JunctionDensity{}, false
	}
	directional := make(map[models.Direction]float64, len(j.Roads))
	var total int
	var scores []float64
	for dir, roadID := range j.Roads {
		rs, ok := t.roads[roadID]
		if !ok {
			continue
		}
		directional[dir] = rs.density.Score
		total += rs.density.VehicleCount
		scores = append(scores, rs.density.Score)
	}
	return Aggregate(junctionID, directional, total, scores), true
}

// GetHistory returns the suffix of a road's history ring with
// ts >= now-seconds, in chronological order.
func (t *Tracker) GetHistory(roadID string, seconds int, now time.Time) []models.DensitySnapshot {
	t.mu.RLock()
	rs, ok := t.roads[roadID]
	t.mu.RUnlock()
	if !ok {
		return nil
	}

	all := rs.history.Snapshot()
	if seconds <= 0 {
		return all
	}
	cutoff := now.Add(-time.Duration(seconds) * time.Second)

	idx := sort.Search(len(all), func(i int) bool {
		return !all[i].Timestamp.Before(cutoff)
	})
	return all[idx:]
}
