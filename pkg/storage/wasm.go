package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

const wasmColumns = `id, external_id, name, classification, date, hall_name, short_description, full_description_html, event_url, image_url, event_category,
  accepted_name, accepted_classification, accepted_date, accepted_hall_name, accepted_short_description, accepted_full_description_html, accepted_event_url, accepted_image_url, accepted_event_category,
  status, action, event_id, ignored, processed_at, created_at`

// ListWasmEvents returns every reconciliation record, REMOVED ones included.
func (d *DB) ListWasmEvents(ctx context.Context) ([]event.WasmEvent, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT "+wasmColumns+" FROM wasm_events ORDER BY date, external_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []event.WasmEvent
	for rows.Next() {
		w, err := scanWasmEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (d *DB) GetWasmEvent(ctx context.Context, id int64) (*event.WasmEvent, error) {
	row := d.sql.QueryRowContext(ctx, "SELECT "+wasmColumns+" FROM wasm_events WHERE id = ?", id)
	w, err := scanWasmEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

func (d *DB) GetWasmEventByExternalID(ctx context.Context, externalID string) (*event.WasmEvent, error) {
	row := d.sql.QueryRowContext(ctx, "SELECT "+wasmColumns+" FROM wasm_events WHERE external_id = ?", externalID)
	w, err := scanWasmEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

// UpsertWasmEvent writes the full record keyed on external_id and sets w.ID.
func (d *DB) UpsertWasmEvent(ctx context.Context, w *event.WasmEvent) error {
	if w.ExternalID == "" {
		return event.ErrMissingExternalID
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	args := []interface{}{w.ExternalID}
	args = append(args, fieldArgs(w.Raw, false)...)
	args = append(args, fieldArgs(w.Accepted, true)...)
	args = append(args, string(w.Status), string(w.Action), nullInt64(w.EventID), boolToInt(w.Ignored), nullTime(w.ProcessedAt), formatTime(w.CreatedAt))

	row := d.sql.QueryRowContext(ctx, `
INSERT INTO wasm_events(external_id, name, classification, date, hall_name, short_description, full_description_html, event_url, image_url, event_category,
  accepted_name, accepted_classification, accepted_date, accepted_hall_name, accepted_short_description, accepted_full_description_html, accepted_event_url, accepted_image_url, accepted_event_category,
  status, action, event_id, ignored, processed_at, created_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(external_id) DO UPDATE SET
  name = excluded.name,
  classification = excluded.classification,
  date = excluded.date,
  hall_name = excluded.hall_name,
  short_description = excluded.short_description,
  full_description_html = excluded.full_description_html,
  event_url = excluded.event_url,
  image_url = excluded.image_url,
  event_category = excluded.event_category,
  accepted_name = excluded.accepted_name,
  accepted_classification = excluded.accepted_classification,
  accepted_date = excluded.accepted_date,
  accepted_hall_name = excluded.accepted_hall_name,
  accepted_short_description = excluded.accepted_short_description,
  accepted_full_description_html = excluded.accepted_full_description_html,
  accepted_event_url = excluded.accepted_event_url,
  accepted_image_url = excluded.accepted_image_url,
  accepted_event_category = excluded.accepted_event_category,
  status = excluded.status,
  action = excluded.action,
  event_id = excluded.event_id,
  ignored = excluded.ignored,
  processed_at = excluded.processed_at
RETURNING id`, args...)
	if err := row.Scan(&w.ID); err != nil {
		return fmt.Errorf("upsert wasm event %s: %w", w.ExternalID, err)
	}
	return nil
}

// MarkRemoved sets status REMOVED on the given external ids in one transaction.
func (d *DB) MarkRemoved(ctx context.Context, externalIDs []string) (int64, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "UPDATE wasm_events SET status = ? WHERE external_id = ? AND status != ?")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var total int64
	for _, id := range externalIDs {
		res, err := stmt.ExecContext(ctx, string(event.StatusRemoved), id, string(event.StatusRemoved))
		if err != nil {
			return 0, fmt.Errorf("mark %s removed: %w", id, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

// CountWasmEvents returns the number of records per status.
func (d *DB) CountWasmEvents(ctx context.Context) (map[event.Status]int, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT status, COUNT(*) FROM wasm_events GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[event.Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[event.Status(s)] = n
	}
	return out, rows.Err()
}

func fieldArgs(f event.Fields, nullable bool) []interface{} {
	str := func(s string) interface{} {
		if nullable {
			return nullIfEmpty(s)
		}
		return s
	}
	var date interface{} = formatTime(f.Date)
	if nullable {
		date = nullTime(f.Date)
	}
	return []interface{}{
		str(f.Name),
		str(string(f.Classification)),
		date,
		nullIfEmpty(f.HallName),
		nullIfEmpty(f.ShortDescription),
		nullIfEmpty(f.FullDescriptionHTML),
		nullIfEmpty(f.EventURL),
		nullIfEmpty(f.ImageURL),
		str(string(f.Category)),
	}
}

type nullFields struct {
	name, classification, date, hall, short, full, url, image, category sql.NullString
}

func (n *nullFields) dest() []interface{} {
	return []interface{}{&n.name, &n.classification, &n.date, &n.hall, &n.short, &n.full, &n.url, &n.image, &n.category}
}

func (n *nullFields) fields() (event.Fields, error) {
	date, err := parseTime(n.date)
	if err != nil {
		return event.Fields{}, err
	}
	if !date.IsZero() {
		date = date.In(event.Amsterdam)
	}
	f := event.Fields{
		Name:                n.name.String,
		Date:                date,
		HallName:            n.hall.String,
		ShortDescription:    n.short.String,
		FullDescriptionHTML: n.full.String,
		EventURL:            n.url.String,
		ImageURL:            n.image.String,
	}
	if n.classification.Valid {
		f.Classification = event.ParseClassification(n.classification.String)
	}
	if n.category.Valid {
		f.Category = event.ParseCategory(n.category.String)
	}
	return f, nil
}

func scanWasmEvent(s rowScanner) (*event.WasmEvent, error) {
	var (
		w                  event.WasmEvent
		raw, accepted      nullFields
		status, action     string
		eventID            sql.NullInt64
		ignored            int
		processed, created sql.NullString
	)
	dest := []interface{}{&w.ID, &w.ExternalID}
	dest = append(dest, raw.dest()...)
	dest = append(dest, accepted.dest()...)
	dest = append(dest, &status, &action, &eventID, &ignored, &processed, &created)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	if w.Raw, err = raw.fields(); err != nil {
		return nil, fmt.Errorf("wasm event %s: %w", w.ExternalID, err)
	}
	if w.Accepted, err = accepted.fields(); err != nil {
		return nil, fmt.Errorf("wasm event %s: %w", w.ExternalID, err)
	}
	if w.Status, err = event.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("wasm event %s: %w", w.ExternalID, err)
	}
	w.Action = event.ParseImportAction(action)
	w.EventID = int64Ptr(eventID)
	w.Ignored = ignored != 0
	if w.ProcessedAt, err = parseTime(processed); err != nil {
		return nil, err
	}
	if w.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &w, nil
}
