package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

const eventColumns = `id, external_id, title, start_date_time, end_date_time, is_full_day, time_zone, status, link, featured, featured_text, featured_image_ref, description, remarks, venue_id, organizer_id, created_at, updated_at`

func (d *DB) GetEvent(ctx context.Context, id int64) (*event.CanonicalEvent, error) {
	row := d.sql.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ev.Tags, err = d.eventTags(ctx, id); err != nil {
		return nil, err
	}
	return ev, nil
}

// ListEvents returns canonical events starting at or after since, oldest first.
func (d *DB) ListEvents(ctx context.Context, since time.Time) ([]event.CanonicalEvent, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT "+eventColumns+" FROM events WHERE start_date_time >= ? ORDER BY start_date_time", formatTime(since))
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
	now := time.Now().UTC()
	ev.CreatedAt, ev.UpdatedAt = now, now
	res, err := d.sql.ExecContext(ctx, `INSERT INTO events(external_id, title, start_date_time, end_date_time, is_full_day, time_zone, status, link, featured, featured_text, featured_image_ref, description, remarks, venue_id, organizer_id, created_at, updated_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, eventArgs(ev, now)...)
	if err != nil {
		return 0, fmt.Errorf("insert event %q: %w", ev.Title, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	ev.ID = id
	return id, nil
}

func (d *DB) UpdateEvent(ctx context.Context, ev *event.CanonicalEvent) error {
	now := time.Now().UTC()
	ev.UpdatedAt = now
	args := eventArgs(ev, now)
	// created_at is never rewritten
	args = append(args[:15], formatTime(now), ev.ID)
	res, err := d.sql.ExecContext(ctx, `UPDATE events SET external_id = ?, title = ?, start_date_time = ?, end_date_time = ?, is_full_day = ?, time_zone = ?, status = ?, link = ?, featured = ?, featured_text = ?, featured_image_ref = ?, description = ?, remarks = ?, venue_id = ?, organizer_id = ?, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update event %d: %w", ev.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertEventByExternalID inserts or replaces the event with the same external id.
func (d *DB) UpsertEventByExternalID(ctx context.Context, ev *event.CanonicalEvent) (int64, error) {
	if ev.ExternalID == "" {
		return d.InsertEvent(ctx, ev)
	}
	var id int64
	err := d.sql.QueryRowContext(ctx, "SELECT id FROM events WHERE external_id = ?", ev.ExternalID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return d.InsertEvent(ctx, ev)
	case err != nil:
		return 0, err
	}
	ev.ID = id
	return id, d.UpdateEvent(ctx, ev)
}

// UpsertVenue returns the id of the venue with this name, creating it when
// missing. Empty address or image values never overwrite stored ones.
func (d *DB) UpsertVenue(ctx context.Context, v event.Venue) (int64, error) {
	name := strings.TrimSpace(v.Name)
	if name == "" {
		return 0, errors.New("venue name is empty")
	}
	var id int64
	err := d.sql.QueryRowContext(ctx, `INSERT INTO venues(name, full_address, image_ref) VALUES(?,?,?)
ON CONFLICT(name) DO UPDATE SET
  full_address = COALESCE(excluded.full_address, venues.full_address),
  image_ref = COALESCE(excluded.image_ref, venues.image_ref)
RETURNING id`, name, nullIfEmpty(v.FullAddress), nullIfEmpty(v.ImageRef)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert venue %q: %w", name, err)
	}
	return id, nil
}

func (d *DB) UpsertOrganizer(ctx context.Context, o event.Organizer) (int64, error) {
	name := strings.TrimSpace(o.Name)
	if name == "" {
		return 0, errors.New("organizer name is empty")
	}
	var id int64
	err := d.sql.QueryRowContext(ctx, `INSERT INTO organizers(name, image_ref) VALUES(?,?)
ON CONFLICT(name) DO UPDATE SET image_ref = COALESCE(excluded.image_ref, organizers.image_ref)
RETURNING id`, name, nullIfEmpty(o.ImageRef)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert organizer %q: %w", name, err)
	}
	return id, nil
}

func (d *DB) ListVenues(ctx context.Context) ([]event.Venue, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT id, name, full_address, image_ref FROM venues ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []event.Venue
	for rows.Next() {
		var v event.Venue
		var addr, img sql.NullString
		if err := rows.Scan(&v.ID, &v.Name, &addr, &img); err != nil {
			return nil, err
		}
		v.FullAddress, v.ImageRef = addr.String, img.String
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetEventTags replaces the tags of an event, creating unknown tags.
func (d *DB) SetEventTags(ctx context.Context, eventID int64, tags []string) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM event_tags WHERE event_id = ?", eventID); err != nil {
		return err
	}
	for _, name := range tags {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var tagID int64
		if err := tx.QueryRowContext(ctx, `INSERT INTO tags(name) VALUES(?) ON CONFLICT(name) DO UPDATE SET name = excluded.name RETURNING id`, name).Scan(&tagID); err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO event_tags(event_id, tag_id) VALUES(?,?)", eventID, tagID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) eventTags(ctx context.Context, eventID int64) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT t.name FROM tags t JOIN event_tags et ON et.tag_id = t.id WHERE et.event_id = ? ORDER BY t.name", eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func eventArgs(ev *event.CanonicalEvent, now time.Time) []interface{} {
	tz := ev.TimeZone
	if tz == "" {
		tz = event.TimeZone
	}
	status := ev.Status
	if status == "" {
		status = event.Draft
	}
	return []interface{}{
		nullIfEmpty(ev.ExternalID),
		ev.Title,
		formatTime(ev.Start),
		formatTime(ev.End),
		boolToInt(ev.IsFullDay),
		tz,
		string(status),
		nullIfEmpty(ev.Link),
		boolToInt(ev.Featured),
		nullIfEmpty(ev.FeaturedText),
		nullIfEmpty(ev.FeaturedImageRef),
		nullIfEmpty(ev.Description),
		nullIfEmpty(ev.Remarks),
		nullInt64(ev.VenueID),
		nullInt64(ev.OrganizerID),
		formatTime(now),
		formatTime(now),
	}
}

func scanEvent(s rowScanner) (*event.CanonicalEvent, error) {
	var (
		ev                                       event.CanonicalEvent
		externalID, link, text, image, desc, rem sql.NullString
		start, end, created, updated             sql.NullString
		fullDay, featured                        int
		status                                   string
		venueID, organizerID                     sql.NullInt64
	)
	if err := s.Scan(&ev.ID, &externalID, &ev.Title, &start, &end, &fullDay, &ev.TimeZone, &status, &link, &featured, &text, &image, &desc, &rem, &venueID, &organizerID, &created, &updated); err != nil {
		return nil, err
	}
	ev.ExternalID = externalID.String
	ev.Link, ev.FeaturedText, ev.FeaturedImageRef = link.String, text.String, image.String
	ev.Description, ev.Remarks = desc.String, rem.String
	ev.IsFullDay, ev.Featured = fullDay == 1, featured == 1
	ev.Status = event.CanonicalStatus(status)
	ev.VenueID, ev.OrganizerID = int64Ptr(venueID), int64Ptr(organizerID)

	loc, err := time.LoadLocation(ev.TimeZone)
	if err != nil {
		loc = event.Amsterdam
	}
	for _, p := range []struct {
		src *sql.NullString
		dst *time.Time
	}{{&start, &ev.Start}, {&end, &ev.End}, {&created, &ev.CreatedAt}, {&updated, &ev.UpdatedAt}} {
		t, err := parseTime(*p.src)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.ID, err)
		}
		*p.dst = t
	}
	ev.Start, ev.End = ev.Start.In(loc), ev.End.In(loc)
	return &ev, nil
}
