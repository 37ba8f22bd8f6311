package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DetectionEvent is one persisted detection record: a single frame of one
// stream that produced at least one algorithm result.
type DetectionEvent struct {
	ID         string          `json:"id"`
	StreamID   string          `json:"stream_id"`
	Sequence   uint64          `json:"sequence"`
	Timestamp  float64         `json:"timestamp"`
	Labels     string          `json:"labels"`
	Results    json.RawMessage `json:"results"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// DetectionHistory defines the persistence contract for detection events.
type DetectionHistory interface {
	// Store persists one detection event
	Store(ctx context.Context, event *DetectionEvent) error

	// Get retrieves an event by id, nil if absent
	Get(ctx context.Context, id string) (*DetectionEvent, error)

	// ListByStream retrieves events for one stream, newest first
	ListByStream(ctx context.Context, streamID string, offset, limit int) ([]*DetectionEvent, error)

	// Count returns the number of events for a stream ("" for all)
	Count(ctx context.Context, streamID string) (int, error)

	// DeleteBefore deletes events recorded before the given time
	DeleteBefore(ctx context.Context, before time.Time) error

	// Close releases the underlying store
	Close() error
}

// SQLiteDetectionHistory implements DetectionHistory on SQLite.
type SQLiteDetectionHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteDetectionHistory opens (or creates) the history database.
func NewSQLiteDetectionHistory(logger *zap.Logger, dbPath string) (*SQLiteDetectionHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteDetectionHistory{
		logger: logger.Named("detection-history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteDetectionHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS detection_events (
			id TEXT PRIMARY KEY,
			stream_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			timestamp REAL NOT NULL,
			labels TEXT NOT NULL,
			results TEXT,
			recorded_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_detection_events_stream_id ON detection_events(stream_id);
		CREATE INDEX IF NOT EXISTS idx_detection_events_recorded_at ON detection_events(recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements DetectionHistory.Store
func (s *SQLiteDetectionHistory) Store(ctx context.Context, event *DetectionEvent) error {
	var resultsStr string
	if len(event.Results) > 0 {
		resultsStr = string(event.Results)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO detection_events (
			id, stream_id, sequence, timestamp, labels, results, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.StreamID,
		event.Sequence,
		event.Timestamp,
		event.Labels,
		sql.NullString{String: resultsStr, Valid: resultsStr != ""},
		event.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store detection event: %w", err)
	}
	return nil
}

// Get implements DetectionHistory.Get
func (s *SQLiteDetectionHistory) Get(ctx context.Context, id string) (*DetectionEvent, error) {
	var event DetectionEvent
	var results sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, stream_id, sequence, timestamp, labels, results, recorded_at
		FROM detection_events
		WHERE id = ?`, id).Scan(
		&event.ID,
		&event.StreamID,
		&event.Sequence,
		&event.Timestamp,
		&event.Labels,
		&results,
		&event.RecordedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan detection event: %w", err)
	}

	if results.Valid && results.String != "" {
		event.Results = json.RawMessage(results.String)
	}

	return &event, nil
}

// ListByStream implements DetectionHistory.ListByStream
func (s *SQLiteDetectionHistory) ListByStream(ctx context.Context, streamID string, offset, limit int) ([]*DetectionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stream_id, sequence, timestamp, labels, results, recorded_at
		FROM detection_events
		WHERE stream_id = ?
		ORDER BY recorded_at DESC LIMIT ? OFFSET ?`,
		streamID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list detection events: %w", err)
	}
	defer rows.Close()

	var events []*DetectionEvent
	for rows.Next() {
		event := &DetectionEvent{}
		var results sql.NullString

		err := rows.Scan(
			&event.ID,
			&event.StreamID,
			&event.Sequence,
			&event.Timestamp,
			&event.Labels,
			&results,
			&event.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection event: %w", err)
		}

		if results.Valid && results.String != "" {
			event.Results = json.RawMessage(results.String)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return events, nil
}

// Count implements DetectionHistory.Count
func (s *SQLiteDetectionHistory) Count(ctx context.Context, streamID string) (int, error) {
	query := "SELECT COUNT(*) FROM detection_events"
	args := make([]interface{}, 0)

	if streamID != "" {
		query += " WHERE stream_id = ?"
		args = append(args, streamID)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count detection events: %w", err)
	}
	return count, nil
}

// DeleteBefore implements DetectionHistory.DeleteBefore
func (s *SQLiteDetectionHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM detection_events WHERE recorded_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete detection events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old detection events",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (s *SQLiteDetectionHistory) Close() error {
	return s.db.Close()
}
