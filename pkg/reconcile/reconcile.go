// Package reconcile merges each scraped batch into the persisted wasm
// events and keeps their status in sync with the published calendar.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klimkalender/klimkalender-cms/pkg/blob"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/metrics"
)

// Store is the part of the database the processor reads and writes.
type Store interface {
	ListWasmEvents(ctx context.Context) ([]event.WasmEvent, error)
	GetWasmEvent(ctx context.Context, id int64) (*event.WasmEvent, error)
	UpsertWasmEvent(ctx context.Context, w *event.WasmEvent) error
	MarkRemoved(ctx context.Context, externalIDs []string) (int64, error)

	GetEvent(ctx context.Context, id int64) (*event.CanonicalEvent, error)
	InsertEvent(ctx context.Context, ev *event.CanonicalEvent) (int64, error)
	UpdateEvent(ctx context.Context, ev *event.CanonicalEvent) error
	UpsertVenue(ctx context.Context, v event.Venue) (int64, error)
	SetEventTags(ctx context.Context, eventID int64, tags []string) error
}

// Images copies remote images into the content bucket.
type Images interface {
	Upload(ctx context.Context, imageURL string) (string, error)
	Delete(ctx context.Context, ref string) error
}

type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

type Processor struct {
	Store  Store
	Images Images      // optional; without it images are never copied
	Bucket blob.Bucket // source of ProcessStored
	Log    Logger
	Now    func() time.Time
}

func (p *Processor) log() Logger {
	if p.Log == nil {
		return nopLogger{}
	}
	return p.Log
}

func (p *Processor) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Report counts what one Process call did.
type Report struct {
	Candidates   int
	New          int
	Updated      int
	Revived      int
	Changed      int
	AutoImported int
	Passed       int
	Removed      int
	Failed       int
}

func (r *Report) add(o Report) {
	r.New += o.New
	r.Updated += o.Updated
	r.Revived += o.Revived
	r.Changed += o.Changed
	r.AutoImported += o.AutoImported
	r.Passed += o.Passed
}

func (r Report) String() string {
	return fmt.Sprintf("%d candidates: %d new, %d updated, %d revived, %d changed, %d auto-imported, %d passed, %d removed, %d failed",
		r.Candidates, r.New, r.Updated, r.Revived, r.Changed, r.AutoImported, r.Passed, r.Removed, r.Failed)
}

// ProcessStored reconciles the batch saved by the last scrape.
func (p *Processor) ProcessStored(ctx context.Context) (*Report, error) {
	if p.Bucket == nil {
		return nil, errors.New("no result bucket configured")
	}
	batch, err := blob.LoadResult(ctx, p.Bucket)
	if err != nil {
		return nil, fmt.Errorf("load bot result: %w", err)
	}
	return p.Process(ctx, batch)
}

// Process reconciles batch against every stored wasm event. Failing records
// are logged and skipped; only failing to load the stored records aborts.
// Records missing from the batch end up REMOVED.
func (p *Processor) Process(ctx context.Context, batch []event.CandidateEvent) (*Report, error) {
	log := p.log()
	now := p.now()

	stored, err := p.Store.ListWasmEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load wasm events: %w", err)
	}
	byExternalID := make(map[string]event.WasmEvent, len(stored))
	for _, w := range stored {
		byExternalID[w.ExternalID] = w
	}

	report := &Report{Candidates: len(batch)}
	seen := make(map[string]bool, len(batch))
	for _, cand := range batch {
		if err := cand.Validate(""); err != nil {
			log.Warnf("Skipping candidate %q: %v", cand.Name, err)
			report.Failed++
			continue
		}
		if seen[cand.ExternalID] {
			log.Warnf("Duplicate candidate %s in batch, keeping the first", cand.ExternalID)
			continue
		}
		seen[cand.ExternalID] = true

		prev, exists := byExternalID[cand.ExternalID]
		if err := p.reconcileOne(ctx, cand, prev, exists, now, report); err != nil {
			log.Errorf("Could not reconcile %s: %v", cand.ExternalID, err)
			report.Failed++
		}
	}

	var missing []string
	for _, w := range stored {
		if w.Status != event.StatusRemoved && !seen[w.ExternalID] {
			missing = append(missing, w.ExternalID)
		}
	}
	if len(missing) > 0 {
		n, err := p.Store.MarkRemoved(ctx, missing)
		if err != nil {
			log.Errorf("Could not mark %d missing events removed: %v", len(missing), err)
		}
		report.Removed = int(n)
		metrics.Transitions.WithLabelValues(string(event.StatusRemoved)).Add(float64(n))
	}

	log.Infof("Reconciled %s", report)
	return report, nil
}

func (p *Processor) reconcileOne(ctx context.Context, cand event.CandidateEvent, prev event.WasmEvent, exists bool, now time.Time, report *Report) error {
	log := p.log()
	fresh := cand.Fields()
	// counted only once the record is stored
	var delta Report

	var w event.WasmEvent
	dirty := false
	if !exists {
		w = event.WasmEvent{
			ExternalID:  cand.ExternalID,
			Raw:         fresh,
			Status:      event.StatusNew,
			Action:      event.ManualImport,
			ProcessedAt: now,
		}
		dirty = true
		delta.New++
		log.Infof("New event %s: %s", w.ExternalID, w.Raw.Name)
	} else {
		w = prev
		// a failed classification keeps the last known label
		if fresh.Classification == event.Unknown && w.Raw.Classification != event.Unknown && w.Raw.Classification != "" {
			fresh.Classification = w.Raw.Classification
		}
		if diff := w.Raw.Diff(fresh); len(diff) > 0 {
			log.Infof("Event %s changed: %v", w.ExternalID, diff)
			w.Raw = fresh
			w.ProcessedAt = now
			dirty = true
			delta.Updated++
		}
		if w.Status == event.StatusRemoved {
			switch {
			case w.Ignored:
				w.Status = event.StatusIgnored
			case w.Linked():
				w.Status = event.StatusUpToDate
			default:
				w.Status = event.StatusNew
			}
			dirty = true
			delta.Revived++
		}
	}

	switch w.Status {
	case event.StatusUpToDate, event.StatusChanged:
		w.Status = reviewStatus(w)
	case event.StatusEventPassed:
		// the event moved back into the future
		if !w.Raw.Date.Before(now) {
			switch {
			case w.Ignored:
				w.Status = event.StatusIgnored
			case w.Linked():
				w.Status = reviewStatus(w)
			default:
				w.Status = event.StatusNew
			}
		}
	}

	if w.Status == event.StatusChanged && w.Action == event.AutoImport && w.Linked() {
		if err := p.pushToEvent(ctx, &w); err != nil {
			log.Errorf("Auto-import of %s into event %d failed: %v", w.ExternalID, *w.EventID, err)
		} else {
			w.Accept()
			w.Status = event.StatusUpToDate
			delta.AutoImported++
			log.Infof("Auto-imported %s into event %d", w.ExternalID, *w.EventID)
		}
	}

	if w.Raw.Date.Before(now) {
		w.Status = event.StatusEventPassed
	}

	if w.Status != prev.Status || !w.Accepted.Equal(prev.Accepted) {
		dirty = true
	}
	if !dirty {
		return nil
	}
	if exists && w.Status != prev.Status {
		switch w.Status {
		case event.StatusChanged:
			delta.Changed++
		case event.StatusEventPassed:
			delta.Passed++
		}
	}
	if err := p.Store.UpsertWasmEvent(ctx, &w); err != nil {
		return err
	}
	report.add(delta)
	if !exists || w.Status != prev.Status {
		metrics.Transitions.WithLabelValues(string(w.Status)).Inc()
	}
	return nil
}

// reviewStatus compares the latest scrape with the accepted state.
func reviewStatus(w event.WasmEvent) event.Status {
	if w.Raw.Equal(w.Accepted) {
		return event.StatusUpToDate
	}
	return event.StatusChanged
}
