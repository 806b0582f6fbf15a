package repository

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

var _ Store = (*SQLiteDB)(nil)
var _ CacheRepository = (*SQLiteDB)(nil)

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// One connection: keeps ":memory:" databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		PRAGMA foreign_keys = ON;

		CREATE TABLE IF NOT EXISTS regions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			area TEXT,
			lat REAL NOT NULL,
			lng REAL NOT NULL,
			risk_score INTEGER NOT NULL DEFAULT 0,
			last_updated TEXT
		);

		CREATE TABLE IF NOT EXISTS incidents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			severity TEXT NOT NULL DEFAULT 'Medium',
			region_id INTEGER REFERENCES regions(id),
			location TEXT,
			lat REAL,
			lng REAL,
			affected_people INTEGER NOT NULL DEFAULT 0,
			description TEXT,
			source TEXT NOT NULL DEFAULT 'manual',
			status TEXT NOT NULL DEFAULT 'active',
			reported_at TEXT NOT NULL,
			resolved_at TEXT
		);

		CREATE TABLE IF NOT EXISTS refuges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			region_id INTEGER NOT NULL REFERENCES regions(id),
			lat REAL,
			lng REAL,
			capacity INTEGER NOT NULL DEFAULT 500,
			type TEXT NOT NULL DEFAULT 'Camp'
		);

		CREATE TABLE IF NOT EXISTS workers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			role TEXT,
			phone TEXT,
			region_id INTEGER REFERENCES regions(id),
			status TEXT NOT NULL DEFAULT 'available',
			current_incident_id INTEGER REFERENCES incidents(id)
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			incident_id INTEGER NOT NULL REFERENCES incidents(id),
			message_en TEXT NOT NULL,
			message_sw TEXT NOT NULL,
			recipients_count INTEGER NOT NULL DEFAULT 0,
			delivered_count INTEGER NOT NULL DEFAULT 0,
			sent_at TEXT NOT NULL,
			status TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS ai_cache (
			cache_key TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			expires_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_incidents_type_status ON incidents(type, status);
		CREATE INDEX IF NOT EXISTS idx_incidents_reported_at ON incidents(reported_at);
		CREATE INDEX IF NOT EXISTS idx_refuges_region_id ON refuges(region_id);
		CREATE INDEX IF NOT EXISTS idx_workers_region_id ON workers(region_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_incident_id ON alerts(incident_id);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
