// Package importer loads a calendar export into the canonical tables.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

// NKBVImage is the venue image the export uses for NKBV-organised events.
// Those events get the NKBV organizer instead of a venue image.
const NKBVImage = "https://www.klimkalender.nl/wp-content/uploads/2024/07/variant.jpg"

const nkbv = "NKBV"

// CalendarEvent is one record of the calendar export.
type CalendarEvent struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Date          time.Time `json:"date"`
	StartTimeUTC  time.Time `json:"startTimeUtc"`
	EndTimeUTC    time.Time `json:"endTimeUtc"`
	Timezone      string    `json:"timezone"`
	VenueName     string    `json:"venueName"`
	VenueAddress  string    `json:"venueAddress"`
	VenueImage    string    `json:"venueImage"`
	Link          string    `json:"link"`
	Tags          []string  `json:"tags"`
	Featured      bool      `json:"featured"`
	FeaturedImage string    `json:"featuredImage"`
	FeaturedText  string    `json:"featuredText"`
}

func Decode(r io.Reader) ([]CalendarEvent, error) {
	var events []CalendarEvent
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode calendar export: %w", err)
	}
	return events, nil
}

type Store interface {
	ListEvents(ctx context.Context, since time.Time) ([]event.CanonicalEvent, error)
	UpsertEventByExternalID(ctx context.Context, ev *event.CanonicalEvent) (int64, error)
	ListVenues(ctx context.Context) ([]event.Venue, error)
	UpsertVenue(ctx context.Context, v event.Venue) (int64, error)
	UpsertOrganizer(ctx context.Context, o event.Organizer) (int64, error)
	SetEventTags(ctx context.Context, eventID int64, tags []string) error
}

type Images interface {
	Upload(ctx context.Context, imageURL string) (string, error)
}

type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{}) {}

// Importer upserts exported events by external id. Images are optional;
// a nil uploader leaves the matching refs empty.
type Importer struct {
	Store           Store
	EventImages     Images
	VenueImages     Images
	OrganizerImages Images
	Log             Logger
}

type Summary struct {
	Events int
	Failed int
}

// Import writes every event. A failing record is logged and skipped.
func (im *Importer) Import(ctx context.Context, events []CalendarEvent) (Summary, error) {
	log := im.Log
	if log == nil {
		log = nopLogger{}
	}

	existing, err := im.Store.ListEvents(ctx, time.Time{})
	if err != nil {
		return Summary{}, err
	}
	byExternalID := make(map[string]event.CanonicalEvent, len(existing))
	for _, ev := range existing {
		if ev.ExternalID != "" {
			byExternalID[ev.ExternalID] = ev
		}
	}
	venues, err := im.Store.ListVenues(ctx)
	if err != nil {
		return Summary{}, err
	}
	venueImages := make(map[string]string, len(venues))
	for _, v := range venues {
		venueImages[v.Name] = v.ImageRef
	}

	st := &importState{Importer: im, log: log, existing: byExternalID, venueImages: venueImages}
	var sum Summary
	for _, ce := range events {
		if err := st.importOne(ctx, ce); err != nil {
			log.Warnf("Skipping %s: %v", ce.ID, err)
			sum.Failed++
			continue
		}
		sum.Events++
	}
	return sum, nil
}

type importState struct {
	*Importer
	log         Logger
	existing    map[string]event.CanonicalEvent
	venueImages map[string]string
	nkbvID      int64
}

func (st *importState) importOne(ctx context.Context, ce CalendarEvent) error {
	if strings.TrimSpace(ce.ID) == "" {
		return event.ErrMissingExternalID
	}
	if ce.StartTimeUTC.IsZero() {
		return event.ErrMissingDate
	}
	ev := MapEvent(ce)
	prev, seen := st.existing[ce.ID]
	if seen {
		ev.FeaturedImageRef = prev.FeaturedImageRef
		ev.Description = prev.Description
		ev.Remarks = prev.Remarks
	}

	if ce.VenueName != "" {
		venueID, err := st.venue(ctx, ce)
		if err != nil {
			return err
		}
		ev.VenueID = &venueID
	}
	if ce.VenueImage == NKBVImage {
		orgID, err := st.nkbvOrganizer(ctx)
		if err != nil {
			return err
		}
		ev.OrganizerID = &orgID
	} else if seen {
		ev.OrganizerID = prev.OrganizerID
	}

	if ce.Featured && ev.FeaturedImageRef == "" && ce.FeaturedImage != "" && st.EventImages != nil {
		ref, err := st.EventImages.Upload(ctx, ce.FeaturedImage)
		if err != nil {
			st.log.Warnf("Featured image of %s not uploaded: %v", ce.ID, err)
		} else {
			ev.FeaturedImageRef = ref
		}
	}

	id, err := st.Store.UpsertEventByExternalID(ctx, &ev)
	if err != nil {
		return err
	}
	ev.ID = id
	st.existing[ce.ID] = ev

	var tags []string
	for _, t := range ce.Tags {
		if t != nkbv {
			tags = append(tags, t)
		}
	}
	return st.Store.SetEventTags(ctx, id, tags)
}

// venue upserts the venue named by ce, without the city after the first
// comma, and uploads its image once.
func (st *importState) venue(ctx context.Context, ce CalendarEvent) (int64, error) {
	name := strings.TrimSpace(strings.SplitN(ce.VenueName, ",", 2)[0])
	v := event.Venue{Name: name, FullAddress: ce.VenueAddress}
	if st.venueImages[name] == "" && ce.VenueImage != "" && ce.VenueImage != NKBVImage && st.VenueImages != nil {
		ref, err := st.VenueImages.Upload(ctx, ce.VenueImage)
		if err != nil {
			st.log.Warnf("Image of venue %s not uploaded: %v", name, err)
		} else {
			v.ImageRef = ref
			st.venueImages[name] = ref
		}
	}
	return st.Store.UpsertVenue(ctx, v)
}

func (st *importState) nkbvOrganizer(ctx context.Context) (int64, error) {
	if st.nkbvID != 0 {
		return st.nkbvID, nil
	}
	org := event.Organizer{Name: nkbv}
	if st.OrganizerImages != nil {
		ref, err := st.OrganizerImages.Upload(ctx, NKBVImage)
		if err != nil {
			st.log.Warnf("NKBV organizer image not uploaded: %v", err)
		} else {
			org.ImageRef = ref
		}
	}
	id, err := st.Store.UpsertOrganizer(ctx, org)
	if err != nil {
		return 0, err
	}
	st.nkbvID = id
	return id, nil
}

// MapEvent converts an export record into a published calendar event.
func MapEvent(ce CalendarEvent) event.CanonicalEvent {
	tz := ce.Timezone
	if tz == "" {
		tz = event.TimeZone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc, tz = event.Amsterdam, event.TimeZone
	}
	return event.CanonicalEvent{
		ExternalID:   ce.ID,
		Title:        html.UnescapeString(ce.Title),
		Start:        ce.StartTimeUTC,
		End:          ce.EndTimeUTC,
		IsFullDay:    event.IsFullDay(ce.StartTimeUTC, ce.EndTimeUTC, loc),
		TimeZone:     tz,
		Status:       event.Published,
		Link:         ce.Link,
		Featured:     ce.Featured,
		FeaturedText: ce.FeaturedText,
	}
}
