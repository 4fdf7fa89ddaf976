package storage

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Ping reports whether the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS venues (
  id            INTEGER PRIMARY KEY,
  name          TEXT NOT NULL UNIQUE,
  full_address  TEXT,
  image_ref     TEXT
);
CREATE TABLE IF NOT EXISTS organizers (
  id         INTEGER PRIMARY KEY,
  name       TEXT NOT NULL UNIQUE,
  image_ref  TEXT
);
CREATE TABLE IF NOT EXISTS tags (
  id    INTEGER PRIMARY KEY,
  name  TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS events (
  id                  INTEGER PRIMARY KEY,
  external_id         TEXT UNIQUE,
  title               TEXT NOT NULL,
  start_date_time     TEXT NOT NULL,
  end_date_time       TEXT NOT NULL,
  is_full_day         INTEGER NOT NULL DEFAULT 0 CHECK (is_full_day IN (0,1)),
  time_zone           TEXT NOT NULL DEFAULT 'Europe/Amsterdam',
  status              TEXT NOT NULL DEFAULT 'DRAFT' CHECK (status IN ('DRAFT','PUBLISHED','ARCHIVED')),
  link                TEXT,
  featured            INTEGER NOT NULL DEFAULT 0 CHECK (featured IN (0,1)),
  featured_text       TEXT,
  featured_image_ref  TEXT,
  description         TEXT,
  remarks             TEXT,
  venue_id            INTEGER REFERENCES venues(id),
  organizer_id        INTEGER REFERENCES organizers(id),
  created_at          TEXT NOT NULL,
  updated_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_date_time);
CREATE TABLE IF NOT EXISTS event_tags (
  event_id  INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
  tag_id    INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
  PRIMARY KEY (event_id, tag_id)
);
CREATE TABLE IF NOT EXISTS wasm_events (
  id                              INTEGER PRIMARY KEY,
  external_id                     TEXT NOT NULL UNIQUE,
  name                            TEXT NOT NULL,
  classification                  TEXT NOT NULL DEFAULT 'UNKNOWN',
  date                            TEXT NOT NULL,
  hall_name                       TEXT,
  short_description               TEXT,
  full_description_html           TEXT,
  event_url                       TEXT,
  image_url                       TEXT,
  event_category                  TEXT NOT NULL DEFAULT 'BOULDER',
  accepted_name                   TEXT,
  accepted_classification         TEXT,
  accepted_date                   TEXT,
  accepted_hall_name              TEXT,
  accepted_short_description      TEXT,
  accepted_full_description_html  TEXT,
  accepted_event_url              TEXT,
  accepted_image_url              TEXT,
  accepted_event_category         TEXT,
  status                          TEXT NOT NULL DEFAULT 'NEW',
  action                          TEXT NOT NULL DEFAULT 'MANUAL_IMPORT',
  event_id                        INTEGER REFERENCES events(id) ON DELETE SET NULL,
  ignored                         INTEGER NOT NULL DEFAULT 0 CHECK (ignored IN (0,1)),
  processed_at                    TEXT,
  created_at                      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_wasm_status ON wasm_events(status);
CREATE TABLE IF NOT EXISTS actions (
  id          INTEGER PRIMARY KEY,
  type        TEXT NOT NULL,
  start       TEXT NOT NULL,
  "end"       TEXT,
  result_ok   INTEGER CHECK (result_ok IN (0,1)),
  details     TEXT,
  user_email  TEXT
);
CREATE INDEX IF NOT EXISTS idx_actions_type_start ON actions(type, start);
CREATE TABLE IF NOT EXISTS action_logs (
  id         INTEGER PRIMARY KEY,
  action_id  INTEGER NOT NULL REFERENCES actions(id) ON DELETE CASCADE,
  level      TEXT NOT NULL,
  message    TEXT NOT NULL,
  datetime   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_action_logs_time ON action_logs(datetime);
CREATE INDEX IF NOT EXISTS idx_action_logs_action ON action_logs(action_id, datetime);
`
