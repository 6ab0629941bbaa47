package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists flattened metrics and events in sqlite. It carries its
// own locking through the database handle and never shares state with the
// file-based cache.
type Store struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		timestamp_ns INTEGER NOT NULL,
		value REAL NOT NULL,
		attributes TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_metrics_name_ts ON metrics(name, timestamp_ns)`,
	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		timestamp_ns INTEGER NOT NULL,
		attributes TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_name_ts ON events(name, timestamp_ns)`,
}

// OpenStore opens (or creates) the sqlite database at path and applies the
// schema.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("telemetry: create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("telemetry: open store: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("telemetry: init schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertMetrics stores a batch of metric rows in one transaction.
func (s *Store) InsertMetrics(ctx context.Context, metrics []Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("telemetry: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics (name, timestamp_ns, value, attributes) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("telemetry: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range metrics {
		attrs, err := json.Marshal(m.Attributes)
		if err != nil {
			return fmt.Errorf("telemetry: encode attributes: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, m.Name, m.TimestampNS, m.Value, string(attrs)); err != nil {
			return fmt.Errorf("telemetry: insert metric: %w", err)
		}
	}
	return tx.Commit()
}

// InsertEvents stores a batch of event rows in one transaction.
func (s *Store) InsertEvents(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("telemetry: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (name, timestamp_ns, attributes) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("telemetry: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		attrs, err := json.Marshal(e.Attributes)
		if err != nil {
			return fmt.Errorf("telemetry: encode attributes: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, e.Name, e.TimestampNS, string(attrs)); err != nil {
			return fmt.Errorf("telemetry: insert event: %w", err)
		}
	}
	return tx.Commit()
}

// MetricsByPrefix returns metric rows in a time range, ordered by
// timestamp. Zero bounds are open.
func (s *Store) MetricsByPrefix(ctx context.Context, prefix string, start, end time.Time) ([]Metric, error) {
	query := `SELECT name, timestamp_ns, value, attributes FROM metrics WHERE name LIKE ?`
	args := []any{prefix + "%"}
	query, args = appendTimeRange(query, args, start, end)
	query += ` ORDER BY timestamp_ns`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: query metrics: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var m Metric
		var attrs string
		if err := rows.Scan(&m.Name, &m.TimestampNS, &m.Value, &attrs); err != nil {
			return nil, fmt.Errorf("telemetry: scan metric: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &m.Attributes); err != nil {
			m.Attributes = map[string]string{}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// EventsByPrefix returns event rows in a time range, ordered by timestamp.
func (s *Store) EventsByPrefix(ctx context.Context, prefix string, start, end time.Time) ([]Event, error) {
	query := `SELECT name, timestamp_ns, attributes FROM events WHERE name LIKE ?`
	args := []any{prefix + "%"}
	query, args = appendTimeRange(query, args, start, end)
	query += ` ORDER BY timestamp_ns`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var attrs string
		if err := rows.Scan(&e.Name, &e.TimestampNS, &attrs); err != nil {
			return nil, fmt.Errorf("telemetry: scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
			e.Attributes = map[string]string{}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CleanupBefore drops rows older than the cutoff and reports how many went
// away.
func (s *Store) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ns := cutoff.UnixNano()

	var total int64
	for _, table := range []string{"metrics", "events"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE timestamp_ns < ?`, table), ns)
		if err != nil {
			return total, fmt.Errorf("telemetry: cleanup %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func appendTimeRange(query string, args []any, start, end time.Time) (string, []any) {
	if !start.IsZero() {
		query += ` AND timestamp_ns >= ?`
		args = append(args, start.UnixNano())
	}
	if !end.IsZero() {
		query += ` AND timestamp_ns <= ?`
		args = append(args, end.UnixNano())
	}
	return query, args
}
