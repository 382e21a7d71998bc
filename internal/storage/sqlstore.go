package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dohr-michael/loom/internal/events"
	"github.com/dohr-michael/loom/internal/flows"
)

// SQLStore persists thread histories in a single SQLite database.
type SQLStore struct {
	db *sql.DB
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS thread_events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id  TEXT NOT NULL,
	event_id   TEXT NOT NULL,
	type       TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	source     TEXT NOT NULL,
	payload    TEXT
);
CREATE INDEX IF NOT EXISTS idx_thread_events_thread ON thread_events(thread_id, seq);
`

// NewSQLStore opens or creates the database at path.
func NewSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Append inserts events in order within one transaction.
func (s *SQLStore) Append(ctx context.Context, threadID string, evts ...events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO thread_events (thread_id, event_id, type, timestamp, source, payload) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range evts {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			threadID, e.ID, string(e.Type), e.Timestamp.Format(time.RFC3339Nano), string(e.Source), string(payload)); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	return tx.Commit()
}

// Load returns the thread's events in insertion order.
func (s *SQLStore) Load(ctx context.Context, threadID string) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, type, timestamp, source, payload FROM thread_events WHERE thread_id = ? ORDER BY seq`, threadID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var result []events.Event
	for rows.Next() {
		var (
			e       events.Event
			typ     string
			ts      string
			source  string
			payload string
		)
		if err := rows.Scan(&e.ID, &typ, &ts, &source, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.ThreadID = threadID
		e.Type = events.EventType(typ)
		e.Source = events.EventSource(source)
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
				continue // skip corrupted payloads
			}
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Threads returns metadata for all stored threads, most recent first.
func (s *SQLStore) Threads(ctx context.Context) ([]flows.ThreadMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, COUNT(*), MIN(timestamp), MAX(timestamp)
		 FROM thread_events GROUP BY thread_id ORDER BY MAX(timestamp) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var metas []flows.ThreadMeta
	for rows.Next() {
		var (
			meta     flows.ThreadMeta
			min, max string
		)
		if err := rows.Scan(&meta.ThreadID, &meta.Events, &min, &max); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		meta.CreatedAt, _ = time.Parse(time.RFC3339Nano, min)
		meta.UpdatedAt, _ = time.Parse(time.RFC3339Nano, max)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

var _ flows.HistoryStore = (*SQLStore)(nil)
