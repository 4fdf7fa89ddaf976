package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const runColumns = `id, type, start, "end", result_ok, details, user_email`

// LastOpenRun returns the most recent unfinished run of the given type, or
// nil when every run has been closed.
func (d *DB) LastOpenRun(ctx context.Context, runType string) (*Run, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT `+runColumns+` FROM actions WHERE type = ? AND "end" IS NULL ORDER BY start DESC LIMIT 1`, runType)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// LastRun returns the most recent run of a type, open or not.
func (d *DB) LastRun(ctx context.Context, runType string) (*Run, error) {
	r, err := scanRun(d.sql.QueryRowContext(ctx, `SELECT `+runColumns+` FROM actions WHERE type = ? ORDER BY start DESC, id DESC LIMIT 1`, runType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (d *DB) StartRun(ctx context.Context, runType string, start time.Time, userEmail string) (int64, error) {
	res, err := d.sql.ExecContext(ctx, `INSERT INTO actions(type, start, user_email) VALUES(?,?,?)`, runType, formatTime(start), nullIfEmpty(userEmail))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d *DB) FinishRun(ctx context.Context, id int64, end time.Time, ok bool, details string) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE actions SET "end" = ?, result_ok = ?, details = ? WHERE id = ?`, formatTime(end), boolToInt(ok), nullIfEmpty(details), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) AppendLog(ctx context.Context, actionID int64, level, message string, at time.Time) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO action_logs(action_id, level, message, datetime) VALUES(?,?,?,?)`, actionID, level, message, formatTime(at))
	return err
}

// PurgeLogs deletes audit lines written before the cutoff.
func (d *DB) PurgeLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM action_logs WHERE datetime < ?`, formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListRuns returns the most recent runs of a type, newest first.
func (d *DB) ListRuns(ctx context.Context, runType string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.sql.QueryContext(ctx, `SELECT `+runColumns+` FROM actions WHERE type = ? ORDER BY start DESC LIMIT ?`, runType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (d *DB) ListLogs(ctx context.Context, actionID int64) ([]LogLine, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id, action_id, level, message, datetime FROM action_logs WHERE action_id = ? ORDER BY datetime, id`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LogLine
	for rows.Next() {
		var (
			l  LogLine
			at sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.ActionID, &l.Level, &l.Message, &at); err != nil {
			return nil, err
		}
		if l.Time, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanRun(s rowScanner) (*Run, error) {
	var (
		r                   Run
		start, end, details sql.NullString
		email               sql.NullString
		ok                  sql.NullInt64
	)
	if err := s.Scan(&r.ID, &r.Type, &start, &end, &ok, &details, &email); err != nil {
		return nil, err
	}
	var err error
	if r.Start, err = parseTime(start); err != nil {
		return nil, err
	}
	if end.Valid {
		t, err := parseTime(end)
		if err != nil {
			return nil, err
		}
		r.End = &t
	}
	if ok.Valid {
		b := ok.Int64 == 1
		r.ResultOK = &b
	}
	r.Details, r.UserEmail = details.String, email.String
	return &r, nil
}
