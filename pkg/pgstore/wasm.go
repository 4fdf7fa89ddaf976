package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

const wasmColumns = `id, external_id, name, classification, date, hall_name, short_description, full_description_html, event_url, image_url, event_category,
  accepted_name, accepted_classification, accepted_date, accepted_hall_name, accepted_short_description, accepted_full_description_html, accepted_event_url, accepted_image_url, accepted_event_category,
  status, action, event_id, ignored, processed_at, created_at`

func (d *DB) ListWasmEvents(ctx context.Context) ([]event.WasmEvent, error) {
	rows, err := d.pool.Query(ctx, "SELECT "+wasmColumns+" FROM wasm_events ORDER BY date, external_id")
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
	w, err := scanWasmEvent(d.pool.QueryRow(ctx, "SELECT "+wasmColumns+" FROM wasm_events WHERE id = $1", id))
	return w, notFound(err)
}

func (d *DB) GetWasmEventByExternalID(ctx context.Context, externalID string) (*event.WasmEvent, error) {
	w, err := scanWasmEvent(d.pool.QueryRow(ctx, "SELECT "+wasmColumns+" FROM wasm_events WHERE external_id = $1", externalID))
	return w, notFound(err)
}

func (d *DB) UpsertWasmEvent(ctx context.Context, w *event.WasmEvent) error {
	if w.ExternalID == "" {
		return event.ErrMissingExternalID
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	r, a := w.Raw, w.Accepted
	err := d.pool.QueryRow(ctx, `
INSERT INTO wasm_events(external_id, name, classification, date, hall_name, short_description, full_description_html, event_url, image_url, event_category,
  accepted_name, accepted_classification, accepted_date, accepted_hall_name, accepted_short_description, accepted_full_description_html, accepted_event_url, accepted_image_url, accepted_event_category,
  status, action, event_id, ignored, processed_at, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
ON CONFLICT(external_id) DO UPDATE SET
  name = EXCLUDED.name,
  classification = EXCLUDED.classification,
  date = EXCLUDED.date,
  hall_name = EXCLUDED.hall_name,
  short_description = EXCLUDED.short_description,
  full_description_html = EXCLUDED.full_description_html,
  event_url = EXCLUDED.event_url,
  image_url = EXCLUDED.image_url,
  event_category = EXCLUDED.event_category,
  accepted_name = EXCLUDED.accepted_name,
  accepted_classification = EXCLUDED.accepted_classification,
  accepted_date = EXCLUDED.accepted_date,
  accepted_hall_name = EXCLUDED.accepted_hall_name,
  accepted_short_description = EXCLUDED.accepted_short_description,
  accepted_full_description_html = EXCLUDED.accepted_full_description_html,
  accepted_event_url = EXCLUDED.accepted_event_url,
  accepted_image_url = EXCLUDED.accepted_image_url,
  accepted_event_category = EXCLUDED.accepted_event_category,
  status = EXCLUDED.status,
  action = EXCLUDED.action,
  event_id = EXCLUDED.event_id,
  ignored = EXCLUDED.ignored,
  processed_at = EXCLUDED.processed_at
RETURNING id`,
		w.ExternalID, r.Name, string(r.Classification), r.Date, textOrNil(r.HallName), textOrNil(r.ShortDescription), textOrNil(r.FullDescriptionHTML), textOrNil(r.EventURL), textOrNil(r.ImageURL), string(r.Category),
		textOrNil(a.Name), textOrNil(string(a.Classification)), timeOrNil(a.Date), textOrNil(a.HallName), textOrNil(a.ShortDescription), textOrNil(a.FullDescriptionHTML), textOrNil(a.EventURL), textOrNil(a.ImageURL), textOrNil(string(a.Category)),
		string(w.Status), string(w.Action), w.EventID, w.Ignored, timeOrNil(w.ProcessedAt), w.CreatedAt,
	).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("upsert wasm event %s: %w", w.ExternalID, err)
	}
	return nil
}

// MarkRemoved flags the given external ids in a single batch round trip.
func (d *DB) MarkRemoved(ctx context.Context, externalIDs []string) (int64, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}
	b := &pgx.Batch{}
	for _, id := range externalIDs {
		b.Queue("UPDATE wasm_events SET status = $1 WHERE external_id = $2 AND status <> $1", string(event.StatusRemoved), id)
	}
	br := d.pool.SendBatch(ctx, b)
	defer br.Close()

	var total int64
	for _, id := range externalIDs {
		tag, err := br.Exec()
		if err != nil {
			return total, fmt.Errorf("mark %s removed: %w", id, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (d *DB) CountWasmEvents(ctx context.Context) (map[event.Status]int, error) {
	rows, err := d.pool.Query(ctx, "SELECT status, COUNT(*) FROM wasm_events GROUP BY status")
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

type nullFields struct {
	name, classification, hall, short, full, url, image, category *string
	date                                                          *time.Time
}

func (n *nullFields) dest() []any {
	return []any{&n.name, &n.classification, &n.date, &n.hall, &n.short, &n.full, &n.url, &n.image, &n.category}
}

func (n *nullFields) fields() event.Fields {
	f := event.Fields{
		Name:                deref(n.name),
		HallName:            deref(n.hall),
		ShortDescription:    deref(n.short),
		FullDescriptionHTML: deref(n.full),
		EventURL:            deref(n.url),
		ImageURL:            deref(n.image),
	}
	if n.date != nil {
		f.Date = n.date.In(event.Amsterdam)
	}
	if n.classification != nil {
		f.Classification = event.ParseClassification(*n.classification)
	}
	if n.category != nil {
		f.Category = event.ParseCategory(*n.category)
	}
	return f
}

func scanWasmEvent(row pgx.Row) (*event.WasmEvent, error) {
	var (
		w              event.WasmEvent
		raw, accepted  nullFields
		status, action string
		processed      *time.Time
	)
	dest := []any{&w.ID, &w.ExternalID}
	dest = append(dest, raw.dest()...)
	dest = append(dest, accepted.dest()...)
	dest = append(dest, &status, &action, &w.EventID, &w.Ignored, &processed, &w.CreatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	w.Raw, w.Accepted = raw.fields(), accepted.fields()
	st, err := event.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("wasm event %s: %w", w.ExternalID, err)
	}
	w.Status = st
	w.Action = event.ParseImportAction(action)
	if processed != nil {
		w.ProcessedAt = *processed
	}
	return &w, nil
}
