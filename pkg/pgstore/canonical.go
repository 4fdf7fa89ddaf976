package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/storage"
)

const eventColumns = `id, external_id, title, start_date_time, end_date_time, is_full_day, time_zone, status, link, featured, featured_text, featured_image_ref, description, remarks, venue_id, organizer_id, created_at, updated_at`

func (d *DB) GetEvent(ctx context.Context, id int64) (*event.CanonicalEvent, error) {
	ev, err := scanEvent(d.pool.QueryRow(ctx, "SELECT "+eventColumns+" FROM events WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err)
	}
	rows, err := d.pool.Query(ctx, "SELECT t.name FROM tags t JOIN event_tags et ON et.tag_id = t.id WHERE et.event_id = $1 ORDER BY t.name", id)
	if err != nil {
		return nil, err
	}
	ev.Tags, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (d *DB) ListEvents(ctx context.Context, since time.Time) ([]event.CanonicalEvent, error) {
	rows, err := d.pool.Query(ctx, "SELECT "+eventColumns+" FROM events WHERE start_date_time >= $1 ORDER BY start_date_time", since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []event.CanonicalEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (d *DB) InsertEvent(ctx context.Context, ev *event.CanonicalEvent) (int64, error) {
	tz, status := defaults(ev)
	err := d.pool.QueryRow(ctx, `INSERT INTO events(external_id, title, start_date_time, end_date_time, is_full_day, time_zone, status, link, featured, featured_text, featured_image_ref, description, remarks, venue_id, organizer_id)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
RETURNING id, created_at, updated_at`,
		textOrNil(ev.ExternalID), ev.Title, ev.Start, ev.End, ev.IsFullDay, tz, status, textOrNil(ev.Link), ev.Featured,
		textOrNil(ev.FeaturedText), textOrNil(ev.FeaturedImageRef), textOrNil(ev.Description), textOrNil(ev.Remarks), ev.VenueID, ev.OrganizerID,
	).Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert event %q: %w", ev.Title, err)
	}
	return ev.ID, nil
}

func (d *DB) UpdateEvent(ctx context.Context, ev *event.CanonicalEvent) error {
	tz, status := defaults(ev)
	tag, err := d.pool.Exec(ctx, `UPDATE events SET external_id = $1, title = $2, start_date_time = $3, end_date_time = $4, is_full_day = $5, time_zone = $6, status = $7, link = $8, featured = $9,
  featured_text = $10, featured_image_ref = $11, description = $12, remarks = $13, venue_id = $14, organizer_id = $15, updated_at = now()
WHERE id = $16`,
		textOrNil(ev.ExternalID), ev.Title, ev.Start, ev.End, ev.IsFullDay, tz, status, textOrNil(ev.Link), ev.Featured,
		textOrNil(ev.FeaturedText), textOrNil(ev.FeaturedImageRef), textOrNil(ev.Description), textOrNil(ev.Remarks), ev.VenueID, ev.OrganizerID, ev.ID)
	if err != nil {
		return fmt.Errorf("update event %d: %w", ev.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (d *DB) UpsertEventByExternalID(ctx context.Context, ev *event.CanonicalEvent) (int64, error) {
	if ev.ExternalID == "" {
		return d.InsertEvent(ctx, ev)
	}
	var id int64
	err := d.pool.QueryRow(ctx, "SELECT id FROM events WHERE external_id = $1", ev.ExternalID).Scan(&id)
	if err == pgx.ErrNoRows {
		return d.InsertEvent(ctx, ev)
	}
	if err != nil {
		return 0, err
	}
	ev.ID = id
	return id, d.UpdateEvent(ctx, ev)
}

func (d *DB) UpsertVenue(ctx context.Context, v event.Venue) (int64, error) {
	name, err := trimmed(v.Name, "venue")
	if err != nil {
		return 0, err
	}
	var id int64
	err = d.pool.QueryRow(ctx, `INSERT INTO venues(name, full_address, image_ref) VALUES($1,$2,$3)
ON CONFLICT(name) DO UPDATE SET
  full_address = COALESCE(EXCLUDED.full_address, venues.full_address),
  image_ref = COALESCE(EXCLUDED.image_ref, venues.image_ref)
RETURNING id`, name, textOrNil(v.FullAddress), textOrNil(v.ImageRef)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert venue %q: %w", name, err)
	}
	return id, nil
}

func (d *DB) UpsertOrganizer(ctx context.Context, o event.Organizer) (int64, error) {
	name, err := trimmed(o.Name, "organizer")
	if err != nil {
		return 0, err
	}
	var id int64
	err = d.pool.QueryRow(ctx, `INSERT INTO organizers(name, image_ref) VALUES($1,$2)
ON CONFLICT(name) DO UPDATE SET image_ref = COALESCE(EXCLUDED.image_ref, organizers.image_ref)
RETURNING id`, name, textOrNil(o.ImageRef)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert organizer %q: %w", name, err)
	}
	return id, nil
}

func (d *DB) ListVenues(ctx context.Context) ([]event.Venue, error) {
	rows, err := d.pool.Query(ctx, "SELECT id, name, COALESCE(full_address, ''), COALESCE(image_ref, '') FROM venues ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []event.Venue
	for rows.Next() {
		var v event.Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.FullAddress, &v.ImageRef); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (d *DB) SetEventTags(ctx context.Context, eventID int64, tags []string) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM event_tags WHERE event_id = $1", eventID); err != nil {
		return err
	}
	for _, name := range tags {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var tagID int64
		if err := tx.QueryRow(ctx, `INSERT INTO tags(name) VALUES($1) ON CONFLICT(name) DO UPDATE SET name = EXCLUDED.name RETURNING id`, name).Scan(&tagID); err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO event_tags(event_id, tag_id) VALUES($1,$2) ON CONFLICT DO NOTHING", eventID, tagID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func defaults(ev *event.CanonicalEvent) (string, string) {
	tz := ev.TimeZone
	if tz == "" {
		tz = event.TimeZone
	}
	status := ev.Status
	if status == "" {
		status = event.Draft
	}
	return tz, string(status)
}

func scanEvent(row pgx.Row) (*event.CanonicalEvent, error) {
	var (
		ev                                       event.CanonicalEvent
		externalID, link, text, image, desc, rem *string
		status                                   string
	)
	if err := row.Scan(&ev.ID, &externalID, &ev.Title, &ev.Start, &ev.End, &ev.IsFullDay, &ev.TimeZone, &status, &link, &ev.Featured, &text, &image, &desc, &rem, &ev.VenueID, &ev.OrganizerID, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return nil, err
	}
	ev.ExternalID = deref(externalID)
	ev.Link, ev.FeaturedText, ev.FeaturedImageRef = deref(link), deref(text), deref(image)
	ev.Description, ev.Remarks = deref(desc), deref(rem)
	ev.Status = event.CanonicalStatus(status)
	if loc, err := time.LoadLocation(ev.TimeZone); err == nil {
		ev.Start, ev.End = ev.Start.In(loc), ev.End.In(loc)
	}
	return &ev, nil
}
