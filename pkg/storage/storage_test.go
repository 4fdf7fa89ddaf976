package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWasmEventRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	date := time.Date(2030, 4, 12, 0, 0, 0, 0, event.Amsterdam)
	w := &event.WasmEvent{
		ExternalID: "werckstof:kunststof:42",
		Raw: event.Fields{
			Name:           "Kunststof Cup",
			Classification: event.Competition,
			Date:           date,
			HallName:       "Kunststof",
			EventURL:       "https://www.boulderhalkunststof.nl/events",
			Category:       event.Boulder,
		},
		Status:      event.StatusNew,
		Action:      event.ManualImport,
		ProcessedAt: time.Now(),
	}
	if err := db.UpsertWasmEvent(ctx, w); err != nil {
		t.Fatalf("UpsertWasmEvent: %v", err)
	}
	if w.ID == 0 {
		t.Fatalf("expected id to be set")
	}

	got, err := db.GetWasmEventByExternalID(ctx, w.ExternalID)
	if err != nil {
		t.Fatalf("GetWasmEventByExternalID: %v", err)
	}
	if diff := got.Raw.Diff(w.Raw); len(diff) != 0 {
		t.Fatalf("raw fields differ after round trip: %v", diff)
	}
	if got.Accepted.Name != "" || !got.Accepted.Date.IsZero() {
		t.Fatalf("accepted fields should be empty, got %+v", got.Accepted)
	}
	if got.EventID != nil {
		t.Fatalf("expected no event link")
	}

	// Second upsert on the same external id updates in place.
	eventID, err := db.InsertEvent(ctx, &event.CanonicalEvent{Title: "Kunststof Cup", Start: date, End: event.EndOfDay(date)})
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	got.Accept()
	got.EventID = &eventID
	got.Status = event.StatusUpToDate
	got.Ignored = true
	if err := db.UpsertWasmEvent(ctx, got); err != nil {
		t.Fatalf("UpsertWasmEvent (update): %v", err)
	}
	if got.ID != w.ID {
		t.Fatalf("upsert changed id: %d != %d", got.ID, w.ID)
	}

	again, err := db.GetWasmEvent(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWasmEvent: %v", err)
	}
	if again.Status != event.StatusUpToDate || again.EventID == nil || *again.EventID != eventID || !again.Ignored {
		t.Fatalf("unexpected record after update: %+v", again)
	}
	if diff := again.Accepted.Diff(again.Raw); len(diff) != 0 {
		t.Fatalf("accepted should equal raw, diff %v", diff)
	}
}

func TestMarkRemoved(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, id := range []string{"a:1", "a:2", "a:3"} {
		w := &event.WasmEvent{ExternalID: id, Raw: event.Fields{Name: id, Date: time.Now()}, Status: event.StatusNew, Action: event.ManualImport}
		if err := db.UpsertWasmEvent(ctx, w); err != nil {
			t.Fatal(err)
		}
	}
	n, err := db.MarkRemoved(ctx, []string{"a:1", "a:3", "missing"})
	if err != nil {
		t.Fatalf("MarkRemoved: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows updated, got %d", n)
	}
	counts, err := db.CountWasmEvents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[event.Status]int{event.StatusRemoved: 2, event.StatusNew: 1}
	if !reflect.DeepEqual(counts, want) {
		t.Fatalf("counts = %v, want %v", counts, want)
	}
}

func TestCanonicalEventsAndTags(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	venueID, err := db.UpsertVenue(ctx, event.Venue{Name: "Grip"})
	if err != nil {
		t.Fatal(err)
	}
	again, err := db.UpsertVenue(ctx, event.Venue{Name: "Grip", FullAddress: "Nijmegen"})
	if err != nil {
		t.Fatal(err)
	}
	if again != venueID {
		t.Fatalf("venue upsert created a duplicate: %d vs %d", again, venueID)
	}

	start := time.Date(2030, 9, 1, 0, 0, 0, 0, event.Amsterdam)
	ev := &event.CanonicalEvent{
		ExternalID: "grip:nk",
		Title:      "NK",
		Start:      start,
		End:        event.EndOfDay(start),
		IsFullDay:  true,
		Status:     event.Published,
		VenueID:    &venueID,
	}
	id, err := db.UpsertEventByExternalID(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SetEventTags(ctx, id, []string{"BOULDER", "Jeugd", "BOULDER"}); err != nil {
		t.Fatal(err)
	}

	ev.Title = "NK Boulderen"
	id2, err := db.UpsertEventByExternalID(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}
	if id2 != id {
		t.Fatalf("upsert by external id inserted a new row")
	}

	got, err := db.GetEvent(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "NK Boulderen" || !got.Start.Equal(start) || !got.IsFullDay || got.Status != event.Published {
		t.Fatalf("unexpected event: %+v", got)
	}
	if !reflect.DeepEqual(got.Tags, []string{"BOULDER", "Jeugd"}) {
		t.Fatalf("tags = %v", got.Tags)
	}

	if _, err := db.GetEvent(ctx, 9999); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunsAndLogs(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	open, err := db.LastOpenRun(ctx, "BOULDERBOT")
	if err != nil || open != nil {
		t.Fatalf("expected no open run, got %v %v", open, err)
	}

	start := time.Now().Add(-time.Minute)
	id, err := db.StartRun(ctx, "BOULDERBOT", start, "bot@example.com")
	if err != nil {
		t.Fatal(err)
	}
	open, err = db.LastOpenRun(ctx, "BOULDERBOT")
	if err != nil || open == nil || open.ID != id {
		t.Fatalf("expected open run %d, got %+v %v", id, open, err)
	}

	old := time.Now().AddDate(0, 0, -10)
	if err := db.AppendLog(ctx, id, "info", "old line", old); err != nil {
		t.Fatal(err)
	}
	if err := db.AppendLog(ctx, id, "warn", "fresh line", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := db.FinishRun(ctx, id, time.Now(), true, "ok"); err != nil {
		t.Fatal(err)
	}
	purged, err := db.PurgeLogs(ctx, time.Now().AddDate(0, 0, -7))
	if err != nil || purged != 1 {
		t.Fatalf("PurgeLogs = %d, %v", purged, err)
	}

	logs, err := db.ListLogs(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Message != "fresh line" || logs[0].Level != "warn" {
		t.Fatalf("unexpected logs: %+v", logs)
	}

	runs, err := db.ListRuns(ctx, "BOULDERBOT", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Open() || runs[0].ResultOK == nil || !*runs[0].ResultOK || runs[0].UserEmail != "bot@example.com" {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	last, err := db.LastRun(ctx, "BOULDERBOT")
	if err != nil || last.ID != id {
		t.Fatalf("LastRun = %+v, %v", last, err)
	}
	if _, err := db.LastRun(ctx, "OTHER"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
