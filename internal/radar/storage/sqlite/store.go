// Package sqlite persists the tracker's detection log. One session row per
// process run, one detection row per reported object, written in batches off
// the processing loop.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/proximity.report/internal/radar/detect"
)

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id        TEXT PRIMARY KEY,
		started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS detections (
		session_id        TEXT,
		frame_seq         BIGINT,
		range_m           DOUBLE,
		angle_deg         DOUBLE,
		energy            DOUBLE,
		sensitivity       DOUBLE,
		motion_state      TEXT,
		timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(session_id) REFERENCES sessions(session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_detections_session
		ON detections(session_id, frame_seq);
`

// DetectionStore is a sqlite-backed detection log scoped to one session.
type DetectionStore struct {
	db        *sql.DB
	SessionID string
}

// NewDetectionStore opens (creating if needed) the database at path and
// registers a new session.
func NewDetectionStore(path string) (*DetectionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create detection schema: %w", err)
	}

	sessionID := uuid.New().String()
	if _, err := db.Exec(`INSERT INTO sessions (session_id) VALUES (?)`, sessionID); err != nil {
		db.Close()
		return nil, fmt.Errorf("register session: %w", err)
	}
	return &DetectionStore{db: db, SessionID: sessionID}, nil
}

// Close closes the underlying database.
func (s *DetectionStore) Close() error { return s.db.Close() }

// InsertBatch records one frame's detections in a single transaction.
func (s *DetectionStore) InsertBatch(frameSeq uint64, sensitivity float64, motionState string, ds []detect.Detection) error {
	if len(ds) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO detections (session_id, frame_seq, range_m, angle_deg, energy, sensitivity, motion_state)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, d := range ds {
		if _, err := stmt.Exec(s.SessionID, int64(frameSeq), d.RangeMeters, d.AngleDegrees, d.Energy, sensitivity, motionState); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert detection: %w", err)
		}
	}
	return tx.Commit()
}

// LoggedDetection is one detection row as read back from the log.
type LoggedDetection struct {
	FrameSeq    uint64           `json:"frame_seq"`
	Detection   detect.Detection `json:"detection"`
	Sensitivity float64          `json:"sensitivity"`
	MotionState string           `json:"motion_state"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Recent returns the latest rows of the current session, newest first.
func (s *DetectionStore) Recent(limit int) ([]LoggedDetection, error) {
	rows, err := s.db.Query(`
		SELECT frame_seq, range_m, angle_deg, energy, sensitivity, motion_state, timestamp
		FROM detections
		WHERE session_id = ?
		ORDER BY frame_seq DESC, range_m ASC
		LIMIT ?`, s.SessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LoggedDetection
	for rows.Next() {
		var d LoggedDetection
		var seq int64
		if err := rows.Scan(&seq, &d.Detection.RangeMeters, &d.Detection.AngleDegrees, &d.Detection.Energy,
			&d.Sensitivity, &d.MotionState, &d.Timestamp); err != nil {
			return nil, err
		}
		d.FrameSeq = uint64(seq)
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountBySession returns the number of logged detections per session.
func (s *DetectionStore) CountBySession() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT session_id, COUNT(*) FROM detections GROUP BY session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}
