// Package capability defines the small explicit interfaces that replace
// the dynamic duck-typed dependencies of the original implementation
// (spec §9 design notes: "if the manager has method X call X else call
// Y" collapses into explicit interfaces). The agent and safety kernel
// depend only on these, never on concrete types from other packages.
package capability

import (
	"time"

	"github.com/trafficctl/control-plane/internal/models"
)

// SignalActuator is the sole mutator of physical signal state. It must
// linearize concurrent commands per junction (spec §5).
type SignalActuator interface {
	SetGreen(junctionID string, direction models.Direction, durationSec int) error
	SetRed(junctionID string, direction models.Direction) error
	CurrentSignals(junctionID string) (models.JunctionSignals, bool)
	LastAckTime() time.Time
}

// DensitySource exposes the read surface of the Density Tracker that the
// Agent Loop and Prediction Engine need.
type DensitySource interface {
	GetRoadDensity(roadID string) (models.RoadDensity, bool)
	GetJunctionDensity(junctionID string) (models.JunctionDensity, bool)
	GetHistory(roadID string, seconds int, now time.Time) []models.DensitySnapshot
}

// JunctionGraph is the small capability interface replacing
// "maybe-has-attribute" access to the simulation manager's topology
// (spec §9): enumerate junctions and look up neighbors for incident
// inference's breadth-first search.
type JunctionGraph interface {
	Junctions() []string
	Neighbors(junctionID string) []Edge
}

// Edge is one junction-graph edge with its travel time at the
// configured max speed.
type Edge struct {
	ToJunctionID string
	Direction    models.Direction
	TravelTime   time.Duration
}

// EventEmitter is the transport-agnostic typed fan-out every subsystem
// publishes state changes through (spec §6, §9).
type EventEmitter interface {
	Emit(eventType string, payload any)
}

// AgentHealth is the read-only interface the Watchdog observes the Agent
// Loop through (spec §9: "Watchdog observes via a read-only health
// interface the agent implements", breaking the cyclic reference between
// safety kernel, watchdog, and agent).
type AgentHealth interface {
	LastTickTime() time.Time
}

// EmergencySource reports whether an external emergency subsystem has an
// active corridor, used by the Watchdog's mode-coherence check (spec
// §4.3 item 4).
type EmergencySource interface {
	HasActiveCorridor() bool
}

// DetectionSource exposes the read surface of the Detection History
// Logger that Incident Inference (F) needs: the ordered detection trail
// for one plate within a time window.
type DetectionSource interface {
	DetectionsForPlate(plate string, from, to time.Time) []models.VehicleDetectionEvent
}
