// Package pgstore implements the canonical and audit stores on PostgreSQL,
// for deployments that run against the hosted database instead of a local
// SQLite file.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/klimkalender/klimkalender-cms/pkg/storage"
)

type DB struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and creates missing tables. Behind a transaction-mode
// pooler set viaBouncer so no prepared statements are cached.
func Open(ctx context.Context, dsn string, maxConns int32, viaBouncer bool) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if viaBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{pool: pool}, nil
}

func (d *DB) Close() error {
	if d != nil && d.pool != nil {
		d.pool.Close()
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS venues (
  id            BIGSERIAL PRIMARY KEY,
  name          TEXT NOT NULL UNIQUE,
  full_address  TEXT,
  image_ref     TEXT
);
CREATE TABLE IF NOT EXISTS organizers (
  id         BIGSERIAL PRIMARY KEY,
  name       TEXT NOT NULL UNIQUE,
  image_ref  TEXT
);
CREATE TABLE IF NOT EXISTS tags (
  id    BIGSERIAL PRIMARY KEY,
  name  TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS events (
  id                  BIGSERIAL PRIMARY KEY,
  external_id         TEXT UNIQUE,
  title               TEXT NOT NULL,
  start_date_time     TIMESTAMPTZ NOT NULL,
  end_date_time       TIMESTAMPTZ NOT NULL,
  is_full_day         BOOLEAN NOT NULL DEFAULT FALSE,
  time_zone           TEXT NOT NULL DEFAULT 'Europe/Amsterdam',
  status              TEXT NOT NULL DEFAULT 'DRAFT',
  link                TEXT,
  featured            BOOLEAN NOT NULL DEFAULT FALSE,
  featured_text       TEXT,
  featured_image_ref  TEXT,
  description         TEXT,
  remarks             TEXT,
  venue_id            BIGINT REFERENCES venues(id),
  organizer_id        BIGINT REFERENCES organizers(id),
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS event_tags (
  event_id  BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
  tag_id    BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
  PRIMARY KEY (event_id, tag_id)
);
CREATE TABLE IF NOT EXISTS wasm_events (
  id                              BIGSERIAL PRIMARY KEY,
  external_id                     TEXT NOT NULL UNIQUE,
  name                            TEXT NOT NULL,
  classification                  TEXT NOT NULL DEFAULT 'UNKNOWN',
  date                            TIMESTAMPTZ NOT NULL,
  hall_name                       TEXT,
  short_description               TEXT,
  full_description_html           TEXT,
  event_url                       TEXT,
  image_url                       TEXT,
  event_category                  TEXT NOT NULL DEFAULT 'BOULDER',
  accepted_name                   TEXT,
  accepted_classification         TEXT,
  accepted_date                   TIMESTAMPTZ,
  accepted_hall_name              TEXT,
  accepted_short_description      TEXT,
  accepted_full_description_html  TEXT,
  accepted_event_url              TEXT,
  accepted_image_url              TEXT,
  accepted_event_category         TEXT,
  status                          TEXT NOT NULL DEFAULT 'NEW',
  action                          TEXT NOT NULL DEFAULT 'MANUAL_IMPORT',
  event_id                        BIGINT REFERENCES events(id) ON DELETE SET NULL,
  ignored                         BOOLEAN NOT NULL DEFAULT false,
  processed_at                    TIMESTAMPTZ,
  created_at                      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS actions (
  id          BIGSERIAL PRIMARY KEY,
  type        TEXT NOT NULL,
  start       TIMESTAMPTZ NOT NULL,
  "end"       TIMESTAMPTZ,
  result_ok   BOOLEAN,
  details     TEXT,
  user_email  TEXT
);
CREATE TABLE IF NOT EXISTS action_logs (
  id         BIGSERIAL PRIMARY KEY,
  action_id  BIGINT NOT NULL REFERENCES actions(id) ON DELETE CASCADE,
  level      TEXT NOT NULL,
  message    TEXT NOT NULL,
  datetime   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_action_logs_time ON action_logs(datetime);
`

func textOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func trimmed(name, what string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%s name is empty", what)
	}
	return name, nil
}
