// Package safety implements the Safety Kernel (spec component C): the
// conflict validator, system-mode state machine, watchdog, and manual
// override registry. This is the only subsystem whose contracts are
// hard-real-time safety invariants — every signal change in the system
// must pass ValidateSignalChange before being emitted.
package safety

import (
	"fmt"
	"time"

	"github.com/trafficctl/control-plane/internal/models"
)

// ConflictValidator is a pure function validator over JunctionSignals.
// Grounded on original_source/backend/tests/test_safety.py's
// ConflictValidator contract (min_red_time=2, min_green_time=10).
type ConflictValidator struct {
	MinRedTime   time.Duration
	MinGreenTime time.Duration
	MaxRedTime   time.Duration
	// AllowOpposingGreen permits N/S or E/W to share GREEN. Default false
	// (spec §4.3 invariant 4, implementers MAY relax).
	AllowOpposingGreen bool
}

// NewConflictValidator builds a validator with the spec defaults.
func NewConflictValidator(minRedSec, minGreenSec, maxRedSec int) *ConflictValidator {
	return &ConflictValidator{
		MinRedTime:   time.Duration(minRedSec) * time.Second,
		MinGreenTime: time.Duration(minGreenSec) * time.Second,
		MaxRedTime:   time.Duration(maxRedSec) * time.Second,
	}
}

var opposingPairs = map[models.Direction]models.Direction{
	models.DirectionNorth: models.DirectionSouth,
	models.DirectionSouth: models.DirectionNorth,
	models.DirectionEast:  models.DirectionWest,
	models.DirectionWest:  models.DirectionEast,
}

// ValidateSignalChange admits or rejects one proposed (direction, color)
// change against the junction's current state.
func (v *ConflictValidator) ValidateSignalChange(signals models.JunctionSignals, direction models.Direction, targetColor models.SignalColor, now time.Time) (bool, string) {
	current, ok := signals.Signals[direction]
	if !ok {
		return false, fmt.Sprintf("unknown direction %q", direction)
	}

	if targetColor == models.ColorGreen {
		for d, s := range signals.Signals {
			if d == direction {
				continue
			}
			if s.Color == models.ColorGreen && !v.allowsSharedGreen(direction, d) {
				return false, fmt.Sprintf("Conflict: direction %s already GREEN", d)
			}
		}

		if current.Color == models.ColorRed && now.Sub(current.LastChangeTS) < v.MinRedTime {
			return false, fmt.Sprintf("min_red_time not satisfied: %s held RED for %s, need %s",
				direction, now.Sub(current.LastChangeTS).Round(time.Millisecond), v.MinRedTime)
		}
	}

	if targetColor == models.ColorRed && current.Color == models.ColorGreen {
		if now.Sub(current.LastChangeTS) < v.MinGreenTime {
			return false, fmt.Sprintf("min_green_time not satisfied: %s held GREEN for %s, need %s",
				direction, now.Sub(current.LastChangeTS).Round(time.Millisecond), v.MinGreenTime)
		}
	}

	return true, ""
}

// ValidateSignalChangeForFailSafeEntry is used by the Safety Kernel
// itself to force every direction RED on FAIL_SAFE entry, bypassing the
// min-green-dwell rule per spec §4.3 invariant 3's exception clause.
func (v *ConflictValidator) ValidateSignalChangeForFailSafeEntry(signals models.JunctionSignals, direction models.Direction, targetColor models.SignalColor) (bool, string) {
	if targetColor != models.ColorRed {
		return false, "fail-safe entry only forces RED"
	}
	return true, ""
}

func (v *ConflictValidator) allowsSharedGreen(a, b models.Direction) bool {
	if !v.AllowOpposingGreen {
		return false
	}
	return opposingPairs[a] == b
}

// Issue is one problem found during a full-junction audit.
type Issue struct {
	Severity string // "ERROR" or "WARNING"
	Message  string
}

// ValidateFullJunction audits every direction at once and returns every
// issue found: multiple GREEN (error), no GREEN for longer than grace
// (warning), directions stuck beyond MaxRedTime (warning).
func (v *ConflictValidator) ValidateFullJunction(signals models.JunctionSignals, now time.Time, grace time.Duration) (bool, []Issue) {
	var issues []Issue

	var greenDirs []models.Direction
	for d, s := range signals.Signals {
		if s.Color == models.ColorGreen {
			greenDirs = append(greenDirs, d)
		}
	}

	if len(greenDirs) > 1 {
		allowed := len(greenDirs) == 2 && v.AllowOpposingGreen && opposingPairs[greenDirs[0]] == greenDirs[1]
		if !allowed {
			issues = append(issues, Issue{Severity: "ERROR", Message: fmt.Sprintf("multiple GREEN directions: %v", greenDirs)})
		}
	}

	if len(greenDirs) == 0 {
		var oldest time.Time
		for _, s := range signals.Signals {
			if oldest.IsZero() || s.LastChangeTS.Before(oldest) {
				oldest = s.LastChangeTS
			}
		}
		if !oldest.IsZero() && now.Sub(oldest) > grace {
			issues = append(issues, Issue{Severity: "WARNING", Message: "no direction has held GREEN within grace period"})
		}
	}

	for d, s := range signals.Signals {
		if s.Color == models.ColorRed && v.MaxRedTime > 0 && now.Sub(s.LastChangeTS) > v.MaxRedTime {
			issues = append(issues, Issue{Severity: "WARNING", Message: fmt.Sprintf("direction %s stuck RED beyond max_red_time", d)})
		}
	}

	for _, iss := range issues {
		if iss.Severity == "ERROR" {
			return false, issues
		}
	}
	return true, issues
}
