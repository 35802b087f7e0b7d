package detection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trafficctl/control-plane/internal/models"
)

type fakeSink struct {
	mu        sync.Mutex
	failNext  bool
	persisted []models.DetectionRecordRow
	purged    []time.Time
}

func (f *fakeSink) PersistDetections(ctx context.Context, rows []models.DetectionRecordRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return assertErr
	}
	f.persisted = append(f.persisted, rows...)
	return nil
}

func (f *fakeSink) PurgeDetectionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, cutoff)
	return 0, nil
}

type testErr string

func (e testErr) Error() string { return string(e) }

var assertErr = testErr("sink failure")

func newTestLogger(sink Sink) *Logger {
	return New(Config{BufferSize: 3, FlushInterval: time.Hour, RetentionHours: 24}, sink, nil, zerolog.Nop())
}

func TestLogDetectionFlushesAtBufferSize(t *testing.T) {
	sink := &fakeSink{}
	l := newTestLogger(sink)

	for i := 0; i < 3; i++ {
		l.LogDetection(context.Background(), models.VehicleDetectionEvent{EventID: "e1", Timestamp: time.Now()})
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.persisted, 3)
}

func TestFailedFlushRequeuesEvents(t *testing.T) {
	sink := &fakeSink{failNext: true}
	l := newTestLogger(sink)

	for i := 0; i < 3; i++ {
		l.LogDetection(context.Background(), models.VehicleDetectionEvent{EventID: "e1", Timestamp: time.Now()})
	}

	sink.mu.Lock()
	assert.Empty(t, sink.persisted, "failed flush must not persist partial data")
	sink.mu.Unlock()

	stats := l.Statistics()
	assert.Equal(t, 3, stats.BufferSize, "failed batch must be requeued, not dropped")

	// next flush (buffer already at threshold) succeeds
	l.flush(context.Background())
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.persisted, 3)
}

func TestStatisticsTracksTotals(t *testing.T) {
	sink := &fakeSink{}
	l := newTestLogger(sink)
	l.LogDetection(context.Background(), models.VehicleDetectionEvent{EventID: "e1"})

	stats := l.Statistics()
	assert.EqualValues(t, 1, stats.TotalDetections)
	assert.Equal(t, 24, stats.RetentionHours)
}

type fakeViolationSink struct {
	mu         sync.Mutex
	violations []models.Violation
	challans   []models.Challan
}

func (f *fakeViolationSink) PersistViolation(ctx context.Context, v models.Violation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, v)
	return nil
}

func (f *fakeViolationSink) PersistChallan(ctx context.Context, c models.Challan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.challans = append(f.challans, c)
	return nil
}

func TestLogDetectionChecksAndPersistsViolation(t *testing.T) {
	sink := &fakeSink{}
	l := newTestLogger(sink)

	now := time.Now()
	violationSink := &fakeViolationSink{}
	l.EnableViolationDetection(NewViolationDetector(nil), violationSink, func(junctionID string) (models.JunctionSignals, bool) {
		return models.NewDefaultSignals(junctionID, now), true
	})

	l.LogDetection(context.Background(), models.VehicleDetectionEvent{
		EventID:    "e1",
		JunctionID: "J1",
		Direction:  models.DirectionNorth,
		Timestamp:  now,
	})

	violationSink.mu.Lock()
	defer violationSink.mu.Unlock()
	require.Len(t, violationSink.violations, 1, "a detection crossing a RED signal must be persisted as a violation")
	require.Len(t, violationSink.challans, 1, "a confirmed violation must result in an issued challan")
}

func TestLogDetectionSkipsViolationCheckWhenNotEnabled(t *testing.T) {
	sink := &fakeSink{}
	l := newTestLogger(sink)

	assert.NotPanics(t, func() {
		l.LogDetection(context.Background(), models.VehicleDetectionEvent{
			EventID:    "e1",
			JunctionID: "J1",
			Direction:  models.DirectionNorth,
			Timestamp:  time.Now(),
		})
	})
}

func TestRunPeriodicFlushAndFinalFlushOnStop(t *testing.T) {
	sink := &fakeSink{}
	l := New(Config{BufferSize: 100, FlushInterval: 20 * time.Millisecond, RetentionHours: 24}, sink, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	l.LogDetection(ctx, models.VehicleDetectionEvent{EventID: "e1"})

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.persisted) == 1
	}, time.Second, 5*time.Millisecond)

	l.LogDetection(ctx, models.VehicleDetectionEvent{EventID: "e2"})
	cancel()
	l.Stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.persisted, 2, "events still buffered at shutdown must be flushed")
}
