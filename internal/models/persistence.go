package models

import "time"

// EventSeverity is the severity tag on a persisted system_events row.
type EventSeverity string

const (
	EventInfo     EventSeverity = "INFO"
	EventWarning  EventSeverity = "WARNING"
	EventError    EventSeverity = "ERROR"
	EventCritical EventSeverity = "CRITICAL"
)

// AgentLogRow is one condensed per-tick agent log entry (spec §6).
type AgentLogRow struct {
	ID                string
	Timestamp         time.Time
	Mode              Mode
	Strategy          string
	DecisionLatencyMS float64
	DecisionsJSON     string
	StateSummaryJSON  string
}

// SystemEventRow is one entry in the system_events table (spec §6).
type SystemEventRow struct {
	ID           string
	Timestamp    time.Time
	EventType    string
	Severity     EventSeverity
	Message      string
	MetadataJSON string
}

// TrafficHistoryRow is one entry in the traffic_history table (spec §6).
type TrafficHistoryRow struct {
	ID              string
	RoadID          string
	CongestionLevel Classification
	CurrentSpeed    *float64
	VehicleCount    *int
	DensityScore    *float64
	Timestamp       time.Time
	Source          Source
}

// DetectionRecordRow mirrors VehicleDetectionEvent as a persisted row,
// adding the violation flag (spec §6).
type DetectionRecordRow struct {
	ID               string
	VehicleID        string
	NumberPlate      string
	JunctionID       string
	Timestamp        time.Time
	Direction        Direction
	IncomingRoad     string
	OutgoingRoad     string
	Speed            float64
	X, Y             float64
	VehicleType      VehicleType
	ViolationDetected bool
}
