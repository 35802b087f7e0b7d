// Package detection implements the Detection History Logger (spec
// component B): buffered, batch-persisted vehicle detection records for
// post-incident reconstruction, plus a supplemental red-light violation
// detector.
package detection

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/trafficctl/control-plane/internal/capability"
	"github.com/trafficctl/control-plane/internal/models"
	"github.com/trafficctl/control-plane/internal/resilience"
	"github.com/trafficctl/control-plane/internal/ring"
)

// ViolationSink persists detected violations and issued challans,
// satisfied by persistence.Store.
type ViolationSink interface {
	PersistViolation(ctx context.Context, v models.Violation) error
	PersistChallan(ctx context.Context, c models.Challan) error
}

// SignalLookup resolves a junction's current signal state so a logged
// detection can be checked against what was active at that moment.
type SignalLookup func(junctionID string) (models.JunctionSignals, bool)

// Sink persists a batch of detection rows. A failed Flush must be
// retried in full by the caller — the logger re-prepends the batch to
// the head of its buffer rather than dropping it (grounded on
// detection_logger.py's "re-add failed records to buffer" behavior,
// resolving spec.md's poison-row open question as retry-indefinitely).
type Sink interface {
	PersistDetections(ctx context.Context, rows []models.DetectionRecordRow) error
	PurgeDetectionsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Config controls buffering, flush cadence, and retention.
type Config struct {
	BufferSize     int
	FlushInterval  time.Duration
	RetentionHours int
}

// Logger buffers VehicleDetectionEvents in memory and flushes them in
// batches to a Sink, purging rows past the retention window.
type Logger struct {
	cfg   Config
	sink  Sink
	emit  capability.EventEmitter
	log   zerolog.Logger

	mu      sync.Mutex
	buffer  *ring.Buffer[models.VehicleDetectionEvent]
	breaker *resilience.Breaker

	violations    *ViolationDetector
	violationSink ViolationSink
	signals       SignalLookup

	statsMu        sync.Mutex
	totalDetected  int64
	totalFlushes   int64
	lastFlushTime  time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Logger. sink and emit may be nil in tests that only
// exercise in-memory buffering.
func New(cfg Config, sink Sink, emit capability.EventEmitter, log zerolog.Logger) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.RetentionHours <= 0 {
		cfg.RetentionHours = 24
	}
	return &Logger{
		cfg:    cfg,
		sink:   sink,
		emit:   emit,
		log:    log,
		buffer:  ring.New[models.VehicleDetectionEvent](cfg.BufferSize * 4),
		breaker: resilience.NewBreaker("detection_sink", resilience.DefaultConfig()),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// LogDetection records one detection event. If the buffer reaches
// BufferSize it is flushed immediately (size-triggered flush, mirroring
// the original's "check if buffer needs flush" path); the background
// loop additionally flushes on a fixed interval regardless of size.
func (l *Logger) LogDetection(ctx context.Context, evt models.VehicleDetectionEvent) {
	l.mu.Lock()
	l.buffer.Push(evt)
	size := l.buffer.Len()
	l.mu.Unlock()

	l.statsMu.Lock()
	l.totalDetected++
	l.statsMu.Unlock()

	if l.emit != nil {
		l.emit.Emit("vehicle:update", evt)
	}

	if l.violations != nil && l.signals != nil {
		l.checkViolation(ctx, evt)
	}

	if size >= l.cfg.BufferSize {
		l.flush(ctx)
	}
}

// EnableViolationDetection wires the red-light violation detector into
// the live detection path (SPEC_FULL.md §4): every subsequent
// LogDetection call is checked against the junction's signal state at
// that moment, and confirmed violations are persisted and challaned
// through sink. Left unset, LogDetection skips violation checking
// entirely.
func (l *Logger) EnableViolationDetection(detector *ViolationDetector, sink ViolationSink, signals SignalLookup) {
	l.violations = detector
	l.violationSink = sink
	l.signals = signals
}

// checkViolation runs the red-light check for one detection and
// persists the violation and its challan, if any. Persistence failures
// are logged, not retried — a missed violation row does not threaten
// the detection pipeline's own retry guarantees.
func (l *Logger) checkViolation(ctx context.Context, evt models.VehicleDetectionEvent) {
	signals, ok := l.signals(evt.JunctionID)
	if !ok {
		return
	}
	violation, hit := l.violations.Check(evt, signals)
	if !hit {
		return
	}
	if l.violationSink != nil {
		if err := l.violationSink.PersistViolation(ctx, violation); err != nil {
			l.log.Warn().Err(err).Str("violation_id", violation.ID).Msg("failed to persist violation")
		}
	}

	challan := l.violations.IssueChallan(violation, time.Now())
	if l.violationSink != nil {
		if err := l.violationSink.PersistChallan(ctx, challan); err != nil {
			l.log.Warn().Err(err).Str("challan_id", challan.ID).Msg("failed to persist challan")
		}
	}
}

// Run starts the periodic flush/cleanup loop. It blocks until ctx is
// cancelled, performing a final flush on exit.
func (l *Logger) Run(ctx context.Context) {
	defer close(l.doneCh)
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.flush(context.Background())
			return
		case <-l.stopCh:
			l.flush(context.Background())
			return
		case <-ticker.C:
			l.flush(ctx)
			l.cleanup(ctx)
		}
	}
}

// Stop signals Run to perform a final flush and exit.
func (l *Logger) Stop() {
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
	<-l.doneCh
}

func (l *Logger) flush(ctx context.Context) {
	l.mu.Lock()
	events := l.buffer.Snapshot()
	if len(events) == 0 {
		l.mu.Unlock()
		return
	}
	// Drain the buffer now; failed rows are re-prepended below.
	for {
		if _, ok := l.buffer.Pop(); !ok {
			break
		}
	}
	l.mu.Unlock()

	if l.sink == nil {
		return
	}

	if !l.breaker.Allow() {
		l.log.Warn().Str("breaker_state", l.breaker.State().String()).Msg("detection sink circuit open, skipping flush attempt")
		l.requeue(events)
		return
	}

	rows := make([]models.DetectionRecordRow, len(events))
	for i, e := range events {
		rows[i] = toRow(e)
	}

	if err := l.sink.PersistDetections(ctx, rows); err != nil {
		l.breaker.RecordFailure()
		l.log.Warn().Err(err).Int("count", len(rows)).Str("breaker_state", l.breaker.State().String()).Msg("detection flush failed, re-queuing")
		l.requeue(events)
		if l.emit != nil {
			l.emit.Emit("system:event", map[string]any{
				"event_type": "detection_flush_failed",
				"severity":   models.EventWarning,
				"message":    err.Error(),
			})
		}
		return
	}
	l.breaker.RecordSuccess()

	l.statsMu.Lock()
	l.totalFlushes++
	l.lastFlushTime = time.Now()
	l.statsMu.Unlock()
}

// requeue re-prepends events that failed to persist to the head of the
// buffer, ahead of anything logged since the flush began.
func (l *Logger) requeue(events []models.VehicleDetectionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rest := l.buffer.Snapshot()
	combined := append(append([]models.VehicleDetectionEvent{}, events...), rest...)
	l.buffer = ring.New[models.VehicleDetectionEvent](l.cfg.BufferSize * 4)
	for _, e := range combined {
		l.buffer.Push(e)
	}
}

func (l *Logger) cleanup(ctx context.Context) {
	if l.sink == nil {
		return
	}
	cutoff := time.Now().Add(-time.Duration(l.cfg.RetentionHours) * time.Hour)
	deleted, err := l.sink.PurgeDetectionsBefore(ctx, cutoff)
	if err != nil {
		l.log.Warn().Err(err).Msg("detection retention cleanup failed")
		return
	}
	if deleted > 0 {
		l.log.Info().Int("deleted", deleted).Msg("purged expired detection records")
	}
}

// Statistics mirrors the original's get_statistics() surface.
type Statistics struct {
	TotalDetections int64
	TotalFlushes    int64
	BufferSize      int
	LastFlushTime   time.Time
	RetentionHours  int
	SinkBreakerOpen bool
	SinkTotalTrips  int64
}

func (l *Logger) Statistics() Statistics {
	l.mu.Lock()
	bufSize := l.buffer.Len()
	l.mu.Unlock()

	breakerStatus := l.breaker.GetStatus()

	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return Statistics{
		TotalDetections: l.totalDetected,
		TotalFlushes:    l.totalFlushes,
		BufferSize:      bufSize,
		LastFlushTime:   l.lastFlushTime,
		RetentionHours:  l.cfg.RetentionHours,
		SinkBreakerOpen: breakerStatus.State == resilience.StateOpen.String(),
		SinkTotalTrips:  breakerStatus.TotalTrips,
	}
}

func toRow(e models.VehicleDetectionEvent) models.DetectionRecordRow {
	return models.DetectionRecordRow{
		ID:           e.EventID,
		VehicleID:    e.VehicleID,
		NumberPlate:  e.Plate,
		JunctionID:   e.JunctionID,
		Timestamp:    e.Timestamp,
		Direction:    e.Direction,
		IncomingRoad: e.IncomingRoad,
		OutgoingRoad: e.OutgoingRoad,
		Speed:        e.Speed,
		X:            e.X,
		Y:            e.Y,
		VehicleType:  e.Type,
	}
}
