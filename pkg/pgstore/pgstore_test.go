package pgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/storage"
)

// Set BOULDERBOT_TEST_PG_DSN to a scratch database to run these tests.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("BOULDERBOT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("BOULDERBOT_TEST_PG_DSN not set")
	}
	db, err := Open(context.Background(), dsn, 2, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWasmEventUpsertAndRemove(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id := fmt.Sprintf("pgtest:%d", time.Now().UnixNano())
	date := time.Date(2031, 5, 2, 0, 0, 0, 0, event.Amsterdam)
	w := &event.WasmEvent{
		ExternalID: id,
		Raw:        event.Fields{Name: "Roest Cup", Classification: event.Competition, Date: date, Category: event.Boulder},
		Status:     event.StatusNew,
		Action:     event.ManualImport,
	}
	if err := db.UpsertWasmEvent(ctx, w); err != nil {
		t.Fatalf("UpsertWasmEvent: %v", err)
	}
	got, err := db.GetWasmEventByExternalID(ctx, id)
	if err != nil {
		t.Fatalf("GetWasmEventByExternalID: %v", err)
	}
	if diff := got.Raw.Diff(w.Raw); len(diff) != 0 {
		t.Fatalf("raw fields differ: %v", diff)
	}

	n, err := db.MarkRemoved(ctx, []string{id})
	if err != nil || n != 1 {
		t.Fatalf("MarkRemoved = %d, %v", n, err)
	}
	got, err = db.GetWasmEvent(ctx, got.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != event.StatusRemoved {
		t.Fatalf("status = %s", got.Status)
	}

	if _, err := db.GetWasmEvent(ctx, -1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	runType := fmt.Sprintf("PGTEST_%d", time.Now().UnixNano())
	if _, err := db.LastRun(ctx, runType); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	start := time.Now().Truncate(time.Millisecond)
	runID, err := db.StartRun(ctx, runType, start, "")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	open, err := db.LastOpenRun(ctx, runType)
	if err != nil || open == nil || open.ID != runID {
		t.Fatalf("LastOpenRun = %+v, %v", open, err)
	}
	if err := db.AppendLog(ctx, runID, "info", "hello", start); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if err := db.FinishRun(ctx, runID, start.Add(time.Second), true, "done"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	last, err := db.LastRun(ctx, runType)
	if err != nil || last.Details != "done" || last.Open() {
		t.Fatalf("LastRun = %+v, %v", last, err)
	}
	logs, err := db.ListLogs(ctx, runID)
	if err != nil || len(logs) != 1 || logs[0].Message != "hello" {
		t.Fatalf("ListLogs = %+v, %v", logs, err)
	}
}
