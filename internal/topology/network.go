// Package topology builds the static road/junction network from
// configuration and provides the concrete adapters that translate it
// into the small capability interfaces the agent and safety kernel
// depend on (spec §9 design notes: "a small capability interface
// {get_junctions(), set_signal(junction, direction, color, duration)};
// adapters translate"). original_source/backend/app/main.py never
// constructs this piece either — every safety/agent component there is
// wired with `simulation_manager=None, # Will be set when simulation
// starts` — so this package is the adapter that main.py's comment
// defers, built directly from the capability contracts rather than
// copied from any concrete upstream implementation.
package topology

import (
	"fmt"
	"sync"
	"time"

	"github.com/trafficctl/control-plane/internal/capability"
	"github.com/trafficctl/control-plane/internal/config"
	"github.com/trafficctl/control-plane/internal/models"
)

// RoadSpec is one static road definition.
type RoadSpec struct {
	ID     string
	Length float64
	Lanes  int
}

// JunctionSpec is one static junction definition: which road feeds each
// direction.
type JunctionSpec struct {
	ID    string
	Roads map[models.Direction]string
}

// EdgeSpec is one directed junction-to-junction edge used by incident
// inference's reachability search.
type EdgeSpec struct {
	From       string
	To         string
	Direction  models.Direction
	TravelTime time.Duration
}

// Network holds the static topology plus the live signal state, and
// implements both capability.SignalActuator and capability.JunctionGraph
// over it.
type Network struct {
	roads     []RoadSpec
	junctions []JunctionSpec

	mu      sync.Mutex
	signals map[string]models.JunctionSignals
	lastAck time.Time

	edges map[string][]capability.Edge
}

// Build constructs a Network from static specs, seeding every junction's
// signals all-RED (models.NewDefaultSignals).
func Build(roads []RoadSpec, junctions []JunctionSpec, edges []EdgeSpec, now time.Time) *Network {
	n := &Network{
		roads:     roads,
		junctions: junctions,
		signals:   make(map[string]models.JunctionSignals, len(junctions)),
		edges:     make(map[string][]capability.Edge),
		lastAck:   now,
	}
	for _, j := range junctions {
		n.signals[j.ID] = models.NewDefaultSignals(j.ID, now)
	}
	for _, e := range edges {
		n.edges[e.From] = append(n.edges[e.From], capability.Edge{
			ToJunctionID: e.To, Direction: e.Direction, TravelTime: e.TravelTime,
		})
	}
	return n
}

// Roads returns the static road specs, for seeding density.Tracker.
func (n *Network) Roads() []models.Road {
	out := make([]models.Road, len(n.roads))
	for i, r := range n.roads {
		out[i] = models.Road{ID: r.ID, Length: r.Length, Lanes: r.Lanes}
	}
	return out
}

// JunctionModels returns the static junction specs, for seeding
// density.Tracker.
func (n *Network) JunctionModels() []models.Junction {
	out := make([]models.Junction, len(n.junctions))
	for i, j := range n.junctions {
		out[i] = models.Junction{ID: j.ID, Roads: j.Roads}
	}
	return out
}

// SetGreen implements capability.SignalActuator. It linearizes
// concurrent commands per junction via the Network-wide mutex (spec
// §4.2: "the signal actuator is the sole mutator of physical signal
// state; it must linearize concurrent commands per junction").
func (n *Network) SetGreen(junctionID string, direction models.Direction, durationSec int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	signals, ok := n.signals[junctionID]
	if !ok {
		return fmt.Errorf("topology: unknown junction %q", junctionID)
	}
	state := signals.Signals[direction]
	state.Color = models.ColorGreen
	state.DurationSec = durationSec
	state.LastChangeTS = time.Now()
	signals.Signals[direction] = state
	n.signals[junctionID] = signals
	n.lastAck = time.Now()
	return nil
}

// SetRed implements capability.SignalActuator.
func (n *Network) SetRed(junctionID string, direction models.Direction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	signals, ok := n.signals[junctionID]
	if !ok {
		return fmt.Errorf("topology: unknown junction %q", junctionID)
	}
	state := signals.Signals[direction]
	state.Color = models.ColorRed
	state.DurationSec = 0
	state.LastChangeTS = time.Now()
	signals.Signals[direction] = state
	n.signals[junctionID] = signals
	n.lastAck = time.Now()
	return nil
}

// CurrentSignals implements capability.SignalActuator.
func (n *Network) CurrentSignals(junctionID string) (models.JunctionSignals, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	signals, ok := n.signals[junctionID]
	if !ok {
		return models.JunctionSignals{}, false
	}
	return signals.Clone(), true
}

// LastAckTime implements capability.SignalActuator.
func (n *Network) LastAckTime() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastAck
}

// Junctions implements capability.JunctionGraph.
func (n *Network) Junctions() []string {
	ids := make([]string, len(n.junctions))
	for i, j := range n.junctions {
		ids[i] = j.ID
	}
	return ids
}

// Neighbors implements capability.JunctionGraph.
func (n *Network) Neighbors(junctionID string) []capability.Edge {
	return n.edges[junctionID]
}

// BuildFromConfig converts a config.NetworkConfig (as loaded from YAML)
// into a Network.
func BuildFromConfig(nc config.NetworkConfig, now time.Time) *Network {
	roads := make([]RoadSpec, len(nc.Roads))
	for i, r := range nc.Roads {
		roads[i] = RoadSpec{ID: r.ID, Length: r.Length, Lanes: r.Lanes}
	}

	junctions := make([]JunctionSpec, len(nc.Junctions))
	for i, j := range nc.Junctions {
		roadsByDir := make(map[models.Direction]string, len(j.Roads))
		for dir, roadID := range j.Roads {
			roadsByDir[models.Direction(dir)] = roadID
		}
		junctions[i] = JunctionSpec{ID: j.ID, Roads: roadsByDir}
	}

	edges := make([]EdgeSpec, len(nc.Edges))
	for i, e := range nc.Edges {
		edges[i] = EdgeSpec{
			From:       e.From,
			To:         e.To,
			Direction:  models.Direction(e.Direction),
			TravelTime: time.Duration(e.TravelTimeSec) * time.Second,
		}
	}

	return Build(roads, junctions, edges, now)
}

// ForceSignalsAllRed applies the FAIL_SAFE ALL_RED pattern to every
// junction directly, bypassing the per-direction admission path used by
// the agent (spec §4.3: FAIL_SAFE entry forces every direction RED).
func (n *Network) ForceSignalsAllRed(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id := range n.signals {
		n.signals[id] = models.NewDefaultSignals(id, now)
	}
	n.lastAck = now
}
