package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/klimkalender/klimkalender-cms/pkg/storage"
)

const runColumns = `id, type, start, "end", result_ok, COALESCE(details, ''), COALESCE(user_email, '')`

func (d *DB) LastOpenRun(ctx context.Context, runType string) (*storage.Run, error) {
	r, err := scanRun(d.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM actions WHERE type = $1 AND "end" IS NULL ORDER BY start DESC LIMIT 1`, runType))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (d *DB) LastRun(ctx context.Context, runType string) (*storage.Run, error) {
	r, err := scanRun(d.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM actions WHERE type = $1 ORDER BY start DESC, id DESC LIMIT 1`, runType))
	if err == pgx.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return r, err
}

func (d *DB) StartRun(ctx context.Context, runType string, start time.Time, userEmail string) (int64, error) {
	var id int64
	err := d.pool.QueryRow(ctx, `INSERT INTO actions(type, start, user_email) VALUES($1,$2,$3) RETURNING id`, runType, start, textOrNil(userEmail)).Scan(&id)
	return id, err
}

func (d *DB) FinishRun(ctx context.Context, id int64, end time.Time, ok bool, details string) error {
	tag, err := d.pool.Exec(ctx, `UPDATE actions SET "end" = $1, result_ok = $2, details = $3 WHERE id = $4`, end, ok, textOrNil(details), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (d *DB) AppendLog(ctx context.Context, actionID int64, level, message string, at time.Time) error {
	_, err := d.pool.Exec(ctx, `INSERT INTO action_logs(action_id, level, message, datetime) VALUES($1,$2,$3,$4)`, actionID, level, message, at)
	return err
}

func (d *DB) PurgeLogs(ctx context.Context, before time.Time) (int64, error) {
	tag, err := d.pool.Exec(ctx, `DELETE FROM action_logs WHERE datetime < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (d *DB) ListRuns(ctx context.Context, runType string, limit int) ([]storage.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.pool.Query(ctx, `SELECT `+runColumns+` FROM actions WHERE type = $1 ORDER BY start DESC LIMIT $2`, runType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (d *DB) ListLogs(ctx context.Context, actionID int64) ([]storage.LogLine, error) {
	rows, err := d.pool.Query(ctx, `SELECT id, action_id, level, message, datetime FROM action_logs WHERE action_id = $1 ORDER BY datetime, id`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storage.LogLine
	for rows.Next() {
		var l storage.LogLine
		if err := rows.Scan(&l.ID, &l.ActionID, &l.Level, &l.Message, &l.Time); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (*storage.Run, error) {
	var r storage.Run
	if err := row.Scan(&r.ID, &r.Type, &r.Start, &r.End, &r.ResultOK, &r.Details, &r.UserEmail); err != nil {
		return nil, err
	}
	return &r, nil
}
