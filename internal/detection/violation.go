package detection

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/trafficctl/control-plane/internal/capability"
	"github.com/trafficctl/control-plane/internal/models"
)

// ViolationDetector flags a detection as a red-light violation when the
// vehicle's direction was RED at the junction at the moment of
// detection. The original implementation only defined Violation/Challan
// tables; this detector is a supplemental capability (SPEC_FULL.md §4)
// built in the teacher's idiom: small, explicit-interface,
// event-emitting.
type ViolationDetector struct {
	emit capability.EventEmitter
}

func NewViolationDetector(emit capability.EventEmitter) *ViolationDetector {
	return &ViolationDetector{emit: emit}
}

// Check inspects one detection event against the junction's signal
// state at the time of detection and returns the violation recorded, if
// any.
func (v *ViolationDetector) Check(evt models.VehicleDetectionEvent, signals models.JunctionSignals) (models.Violation, bool) {
	state, ok := signals.Signals[evt.Direction]
	if !ok || state.Color != models.ColorRed {
		return models.Violation{}, false
	}

	snapshot, _ := json.Marshal(signals)
	violation := models.Violation{
		ID:          "VIO-" + uuid.NewString(),
		DetectionID: evt.EventID,
		JunctionID:  evt.JunctionID,
		Plate:       evt.Plate,
		Type:        models.ViolationRedLight,
		Timestamp:   evt.Timestamp,
		SignalState: string(snapshot),
	}

	if v.emit != nil {
		v.emit.Emit("violation:detected", violation)
	}
	return violation, true
}

// ChallanAmountCents is the flat fine amount for a red-light violation.
// The original tracked owner billing and payment ledgers in full; this
// supplement deliberately omits that (no owner PII store, no payment
// processor) per SPEC_FULL.md §4's reduced scope.
const ChallanAmountCents = 150000

// IssueChallan creates a minimal challan record for a confirmed
// violation and emits challan:issued.
func (v *ViolationDetector) IssueChallan(violation models.Violation, now time.Time) models.Challan {
	challan := models.Challan{
		ID:          "CHL-" + uuid.NewString(),
		ViolationID: violation.ID,
		Plate:       violation.Plate,
		AmountCents: ChallanAmountCents,
		Status:      models.ChallanIssued,
		IssuedAt:    now,
	}
	if v.emit != nil {
		v.emit.Emit("challan:issued", challan)
	}
	return challan
}
