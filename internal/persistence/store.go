// Package persistence implements the Persistence Gateway (spec
// component H): SQLite-backed batch writers for detection records,
// agent logs, system events, traffic history, and the supplemental
// violations/challans tables.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trafficctl/control-plane/internal/models"
)

// Store is a single SQLite-backed persistence gateway, grounded on the
// teacher's `internal/unifiedresources` SQLite store contract
// (sql.Open("sqlite", path), CREATE TABLE IF NOT EXISTS migrations,
// dataDir-scoped file layout — test-only in the pack, no implementation
// to adapt, so the schema below follows
// original_source/backend/app/database/models.py directly).
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the SQLite database at <dataDir>/trafficctl.db
// and runs migrations.
func Open(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "trafficctl.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS detection_records (
			id TEXT PRIMARY KEY,
			vehicle_id TEXT NOT NULL,
			number_plate TEXT NOT NULL,
			junction_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			timestamp REAL NOT NULL,
			incoming_road TEXT,
			outgoing_road TEXT,
			speed REAL,
			position_x REAL,
			position_y REAL,
			vehicle_type TEXT,
			violation_detected INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_detection_plate ON detection_records(number_plate, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_detection_junction ON detection_records(junction_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_detection_timestamp ON detection_records(timestamp)`,

		`CREATE TABLE IF NOT EXISTS agent_logs (
			id TEXT PRIMARY KEY,
			timestamp REAL NOT NULL,
			mode TEXT NOT NULL,
			strategy TEXT NOT NULL,
			decision_latency REAL,
			decisions_json TEXT,
			state_summary_json TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_logs_timestamp ON agent_logs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS system_events (
			id TEXT PRIMARY KEY,
			timestamp REAL NOT NULL,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT,
			metadata_json TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_system_events_timestamp ON system_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_system_events_type ON system_events(event_type)`,

		`CREATE TABLE IF NOT EXISTS traffic_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			road_id TEXT NOT NULL,
			congestion_level TEXT NOT NULL,
			current_speed REAL,
			vehicle_count INTEGER,
			density_score REAL,
			timestamp REAL NOT NULL,
			source TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traffic_road_time ON traffic_history(road_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS violations (
			id TEXT PRIMARY KEY,
			detection_id TEXT NOT NULL,
			junction_id TEXT NOT NULL,
			number_plate TEXT NOT NULL,
			violation_type TEXT NOT NULL,
			timestamp REAL NOT NULL,
			signal_state TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_plate ON violations(number_plate)`,

		`CREATE TABLE IF NOT EXISTS challans (
			id TEXT PRIMARY KEY,
			violation_id TEXT NOT NULL,
			number_plate TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'ISSUED',
			issued_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_challans_plate ON challans(number_plate)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration %q: %w", stmt, err)
		}
	}
	return nil
}

// PersistDetections implements detection.Sink.
func (s *Store) PersistDetections(ctx context.Context, rows []models.DetectionRecordRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO detection_records
		(id, vehicle_id, number_plate, junction_id, direction, timestamp, incoming_road, outgoing_road, speed, position_x, position_y, vehicle_type, violation_detected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ID, r.VehicleID, r.NumberPlate, r.JunctionID, string(r.Direction),
			float64(r.Timestamp.UnixNano())/1e9, r.IncomingRoad, r.OutgoingRoad, r.Speed, r.X, r.Y, string(r.VehicleType), boolToInt(r.ViolationDetected)); err != nil {
			return fmt.Errorf("insert detection row %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// PurgeDetectionsBefore implements detection.Sink.
func (s *Store) PurgeDetectionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM detection_records WHERE timestamp < ?`, float64(cutoff.UnixNano())/1e9)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PersistAgentLog implements agent.Sink.
func (s *Store) PersistAgentLog(ctx context.Context, row models.AgentLogRow) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO agent_logs
		(id, timestamp, mode, strategy, decision_latency, decisions_json, state_summary_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID, float64(row.Timestamp.UnixNano())/1e9, string(row.Mode), row.Strategy, row.DecisionLatencyMS, row.DecisionsJSON, row.StateSummaryJSON)
	return err
}

// PersistSystemEvent records one system_events row.
func (s *Store) PersistSystemEvent(ctx context.Context, row models.SystemEventRow) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO system_events
		(id, timestamp, event_type, severity, message, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		row.ID, float64(row.Timestamp.UnixNano())/1e9, row.EventType, string(row.Severity), row.Message, row.MetadataJSON)
	return err
}

// PersistTrafficHistory records one traffic_history row.
func (s *Store) PersistTrafficHistory(ctx context.Context, row models.TrafficHistoryRow) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO traffic_history
		(road_id, congestion_level, current_speed, vehicle_count, density_score, timestamp, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.RoadID, string(row.CongestionLevel), row.CurrentSpeed, row.VehicleCount, row.DensityScore,
		float64(row.Timestamp.UnixNano())/1e9, string(row.Source))
	return err
}

// PersistViolation records one supplemental violations row.
func (s *Store) PersistViolation(ctx context.Context, v models.Violation) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO violations
		(id, detection_id, junction_id, number_plate, violation_type, timestamp, signal_state)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.DetectionID, v.JunctionID, v.Plate, string(v.Type), float64(v.Timestamp.UnixNano())/1e9, v.SignalState)
	return err
}

// PersistChallan records one supplemental challans row.
func (s *Store) PersistChallan(ctx context.Context, c models.Challan) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO challans
		(id, violation_id, number_plate, amount_cents, status, issued_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.ViolationID, c.Plate, c.AmountCents, string(c.Status), c.IssuedAt)
	return err
}

// DetectionsForPlate implements capability.DetectionSource for incident
// inference.
func (s *Store) DetectionsForPlate(plate string, from, to time.Time) []models.VehicleDetectionEvent {
	rows, err := s.db.Query(`SELECT id, vehicle_id, number_plate, junction_id, direction, timestamp, incoming_road, outgoing_road, speed, position_x, position_y, vehicle_type
		FROM detection_records WHERE number_plate = ? AND timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC`,
		plate, float64(from.UnixNano())/1e9, float64(to.UnixNano())/1e9)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []models.VehicleDetectionEvent
	for rows.Next() {
		var e models.VehicleDetectionEvent
		var ts float64
		var direction, vehicleType string
		if err := rows.Scan(&e.EventID, &e.VehicleID, &e.Plate, &e.JunctionID, &direction, &ts,
			&e.IncomingRoad, &e.OutgoingRoad, &e.Speed, &e.X, &e.Y, &vehicleType); err != nil {
			continue
		}
		e.Direction = models.Direction(direction)
		e.Type = models.VehicleType(vehicleType)
		e.Timestamp = time.Unix(0, int64(ts*1e9))
		out = append(out, e)
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
