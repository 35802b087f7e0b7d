package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trafficctl/control-plane/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPersistAndQueryDetections(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	row := models.DetectionRecordRow{
		ID: "DET-1", VehicleID: "V1", NumberPlate: "KA-01-HH-1234",
		JunctionID: "J1", Direction: models.DirectionNorth, Timestamp: now,
		Speed: 40, VehicleType: models.VehicleCar,
	}
	require.NoError(t, store.PersistDetections(context.Background(), []models.DetectionRecordRow{row}))

	found := store.DetectionsForPlate("KA-01-HH-1234", now.Add(-time.Minute), now.Add(time.Minute))
	require.Len(t, found, 1)
	assert.Equal(t, "J1", found[0].JunctionID)
	assert.Equal(t, models.DirectionNorth, found[0].Direction)
}

func TestPurgeDetectionsBeforeCutoff(t *testing.T) {
	store := newTestStore(t)
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	rows := []models.DetectionRecordRow{
		{ID: "DET-OLD", NumberPlate: "P1", JunctionID: "J1", Timestamp: old},
		{ID: "DET-NEW", NumberPlate: "P1", JunctionID: "J1", Timestamp: recent},
	}
	require.NoError(t, store.PersistDetections(context.Background(), rows))

	deleted, err := store.PurgeDetectionsBefore(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	remaining := store.DetectionsForPlate("P1", recent.Add(-time.Minute), recent.Add(time.Minute))
	assert.Len(t, remaining, 1)
}

func TestPersistAgentLogRoundTrips(t *testing.T) {
	store := newTestStore(t)
	row := models.AgentLogRow{ID: "LOG-1", Timestamp: time.Now(), Mode: models.ModeNormal, Strategy: "RULE_BASED", DecisionLatencyMS: 12.5}
	assert.NoError(t, store.PersistAgentLog(context.Background(), row))
}

func TestPersistSystemEventAndTrafficHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.NoError(t, store.PersistSystemEvent(ctx, models.SystemEventRow{
		ID: "EVT-1", Timestamp: time.Now(), EventType: "mode_change", Severity: models.EventWarning, Message: "test",
	}))

	assert.NoError(t, store.PersistTrafficHistory(ctx, models.TrafficHistoryRow{
		RoadID: "R1", CongestionLevel: models.ClassificationLow, Timestamp: time.Now(), Source: models.SourceSimulation,
	}))
}

func TestPersistViolationAndChallan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	violation := models.Violation{ID: "VIO-1", DetectionID: "DET-1", JunctionID: "J1", Plate: "P1", Type: models.ViolationRedLight, Timestamp: time.Now()}
	require.NoError(t, store.PersistViolation(ctx, violation))

	challan := models.Challan{ID: "CHL-1", ViolationID: "VIO-1", Plate: "P1", AmountCents: 150000, Status: models.ChallanIssued, IssuedAt: time.Now()}
	assert.NoError(t, store.PersistChallan(ctx, challan))
}
