package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/ioguard/pkg/event"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Store persists verdicts to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a store at the default location, ~/.ioguard/ioguard.db.
func NewStore() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	return NewStoreWithPath(filepath.Join(homeDir, ".ioguard", "ioguard.db"))
}

// NewStoreWithPath creates a store with a custom database path.
// Useful for testing.
func NewStoreWithPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Store{db: db}, nil
}

func initializeSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS verdicts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			outcome TEXT NOT NULL,
			validator TEXT NOT NULL,
			reason TEXT,
			size INTEGER NOT NULL DEFAULT 0,
			timestamp DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_verdicts_event_id ON verdicts(event_id);
		CREATE INDEX IF NOT EXISTS idx_verdicts_outcome ON verdicts(outcome);
		CREATE INDEX IF NOT EXISTS idx_verdicts_timestamp ON verdicts(timestamp);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists a verdict.
func (s *Store) Save(v Verdict) error {
	if v.EventID == "" {
		return fmt.Errorf("cannot save verdict without an event ID")
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now().UTC()
	}

	var reason sql.NullString
	if v.Reason != "" {
		reason.Valid = true
		reason.String = v.Reason
	}

	query := `
		INSERT INTO verdicts (event_id, event_type, outcome, validator, reason, size, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		v.EventID,
		string(v.EventType),
		string(v.Outcome),
		v.Validator,
		reason,
		v.Size,
		v.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save verdict: %w", err)
	}
	return nil
}

// ListOptions filters verdict listings. Zero values mean no filter.
type ListOptions struct {
	EventID   string
	EventType event.Type
	Outcome   Outcome
	Limit     int
	Offset    int
}

// List returns verdicts matching the options, newest first.
func (s *Store) List(options ListOptions) ([]Verdict, error) {
	if options.Limit < 0 {
		return nil, fmt.Errorf("limit cannot be negative: %d", options.Limit)
	}
	if options.Offset < 0 {
		return nil, fmt.Errorf("offset cannot be negative: %d", options.Offset)
	}

	query := `
		SELECT event_id, event_type, outcome, validator, reason, size, timestamp
		FROM verdicts
	`
	var conditions []string
	var args []interface{}
	if options.EventID != "" {
		conditions = append(conditions, "event_id = ?")
		args = append(args, options.EventID)
	}
	if options.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, string(options.EventType))
	}
	if options.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, string(options.Outcome))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if options.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", options.Limit, options.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	verdicts := make([]Verdict, 0)
	for rows.Next() {
		var v Verdict
		var eventType, outcome string
		var reason sql.NullString
		if err := rows.Scan(&v.EventID, &eventType, &outcome, &v.Validator, &reason, &v.Size, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		v.EventType = event.Type(eventType)
		v.Outcome = Outcome(outcome)
		if reason.Valid {
			v.Reason = reason.String
		}
		verdicts = append(verdicts, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verdicts: %w", err)
	}
	return verdicts, nil
}

// CountByOutcome returns verdict counts grouped by outcome.
func (s *Store) CountByOutcome() (map[Outcome]int, error) {
	rows, err := s.db.Query("SELECT outcome, COUNT(*) FROM verdicts GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("failed to count verdicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[Outcome]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[Outcome(outcome)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}
	return counts, nil
}

// Prune removes verdicts older than the cutoff. Returns the number removed.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM verdicts WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune verdicts: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check prune result: %w", err)
	}
	return removed, nil
}
