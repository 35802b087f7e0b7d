package models

import "time"

// VehicleType classifies the detected vehicle.
type VehicleType string

const (
	VehicleCar        VehicleType = "CAR"
	VehicleTruck      VehicleType = "TRUCK"
	VehicleMotorcycle VehicleType = "MOTORCYCLE"
	VehicleBus        VehicleType = "BUS"
)

// VehicleDetectionEvent is one junction-level vehicle passage observation
// (spec §3, component B). Immutable after creation.
type VehicleDetectionEvent struct {
	EventID      string
	VehicleID    string
	Plate        string
	JunctionID   string
	Direction    Direction
	Timestamp    time.Time
	X, Y         float64
	Speed        float64
	Type         VehicleType
	IncomingRoad string
	OutgoingRoad string
}

// IncidentType enumerates the kinds of incident that can be reported
// against a plate.
type IncidentType string

const (
	IncidentHitAndRun IncidentType = "HIT_AND_RUN"
	IncidentAccident  IncidentType = "ACCIDENT"
	IncidentStolen    IncidentType = "STOLEN"
)

// IncidentStatus is the lifecycle state of an incident record.
type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "OPEN"
	IncidentInferred IncidentStatus = "INFERRED"
	IncidentClosed   IncidentStatus = "CLOSED"
)

// ProbableLocation is one ranked candidate produced by incident
// inference.
type ProbableLocation struct {
	JunctionID  string
	Direction   Direction
	Probability float64
}

// InferenceResult bundles the ranked candidates with the status and the
// detection trail used to produce them.
type InferenceResult struct {
	Status      string // "OK", "NO_DATA", "LAST_KNOWN_ONLY"
	Locations   []ProbableLocation
	LastSeen    *VehicleDetectionEvent
	Confidence  float64
}

// IncidentRecord is the persisted/working record for a reported
// incident.
type IncidentRecord struct {
	IncidentID   string
	Plate        string
	ReportedAt   time.Time
	Type         IncidentType
	Status       IncidentStatus
	Inference    *InferenceResult
}

// ViolationType enumerates the kinds of traffic violation the detection
// pipeline can flag (supplement, SPEC_FULL.md §4).
type ViolationType string

const (
	ViolationRedLight ViolationType = "RED_LIGHT"
)

// Violation is a supplemental record emitted when a detected vehicle
// crosses a junction against its active signal direction.
type Violation struct {
	ID           string
	DetectionID  string
	JunctionID   string
	Plate        string
	Type         ViolationType
	Timestamp    time.Time
	SignalState  string // JSON-encoded JunctionSignals snapshot
}

// ChallanStatus is the lifecycle state of an issued challan.
type ChallanStatus string

const (
	ChallanIssued   ChallanStatus = "ISSUED"
	ChallanPaid     ChallanStatus = "PAID"
	ChallanDisputed ChallanStatus = "DISPUTED"
)

// Challan is a supplemental minimal traffic-ticket record (SPEC_FULL.md
// §4) — no payment ledger, no owner PII store.
type Challan struct {
	ID          string
	ViolationID string
	Plate       string
	AmountCents int64
	Status      ChallanStatus
	IssuedAt    time.Time
}
