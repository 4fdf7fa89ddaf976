package runhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/klimkalender/klimkalender-cms/internal/utils"
	"github.com/klimkalender/klimkalender-cms/pkg/blob"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/storage"
)

const (
	RunType            = "BOULDERBOT"
	DefaultMaxDuration = 5 * time.Minute
	DefaultRetention   = 7 * 24 * time.Hour
)

// Store is the run tracking and audit log part of the database.
type Store interface {
	LastOpenRun(ctx context.Context, runType string) (*storage.Run, error)
	StartRun(ctx context.Context, runType string, start time.Time, userEmail string) (int64, error)
	FinishRun(ctx context.Context, id int64, end time.Time, ok bool, details string) error
	AppendLog(ctx context.Context, actionID int64, level, message string, at time.Time) error
	PurgeLogs(ctx context.Context, before time.Time) (int64, error)
}

// AuditHook records runs in the actions table, their log lines in
// action_logs and the batch in a bucket. The open run record is an advisory
// lock: a run younger than MaxDuration blocks new runs, an older one is
// closed as failed.
type AuditHook struct {
	Store       Store
	Bucket      blob.Bucket
	UserEmail   string
	MaxDuration time.Duration
	Retention   time.Duration
	Now         func() time.Time

	mu    sync.Mutex
	runID int64
	corr  string
}

func NewAuditHook(store Store, bucket blob.Bucket, userEmail string) *AuditHook {
	return &AuditHook{
		Store:       store,
		Bucket:      bucket,
		UserEmail:   userEmail,
		MaxDuration: DefaultMaxDuration,
		Retention:   DefaultRetention,
		Now:         time.Now,
	}
}

// RunID is the id of the current run record, 0 outside a run.
func (h *AuditHook) RunID() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runID
}

func (h *AuditHook) OnBeforeRun(ctx context.Context) error {
	now := h.Now()
	open, err := h.Store.LastOpenRun(ctx, RunType)
	if err != nil {
		return fmt.Errorf("check open runs: %w", err)
	}
	if open != nil {
		age := now.Sub(open.Start)
		if age < h.MaxDuration {
			return fmt.Errorf("%w (started %s ago)", ErrRunInProgress, age.Round(time.Second))
		}
		note := fmt.Sprintf("closed by a new run: still open after %s, max is %s", age.Round(time.Second), h.MaxDuration)
		if err := h.Store.FinishRun(ctx, open.ID, now, false, note); err != nil {
			return fmt.Errorf("close stale run %d: %w", open.ID, err)
		}
		utils.Log.Warnf("Closed stale run %d: %s", open.ID, note)
	}

	id, err := h.Store.StartRun(ctx, RunType, now, h.UserEmail)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	h.mu.Lock()
	h.runID = id
	h.corr = uuid.NewString()
	h.mu.Unlock()
	return nil
}

func (h *AuditHook) OnLog(ctx context.Context, message, level string) {
	if level == LevelDebug {
		return
	}
	id := h.RunID()
	if id == 0 {
		return
	}
	if err := h.Store.AppendLog(ctx, id, level, message, h.Now()); err != nil {
		utils.Log.Debugf("Could not store log line for run %d: %v", id, err)
	}
}

func (h *AuditHook) OnAfterRun(ctx context.Context, success bool, details string) error {
	h.mu.Lock()
	id, corr := h.runID, h.corr
	h.runID, h.corr = 0, ""
	h.mu.Unlock()
	if id == 0 {
		return nil
	}

	now := h.Now()
	if corr != "" {
		details = fmt.Sprintf("%s [run %s]", details, corr)
	}
	if err := h.Store.FinishRun(ctx, id, now, success, details); err != nil {
		return fmt.Errorf("finish run %d: %w", id, err)
	}
	purged, err := h.Store.PurgeLogs(ctx, now.Add(-h.Retention))
	if err != nil {
		return fmt.Errorf("purge logs: %w", err)
	}
	if purged > 0 {
		utils.Log.Debugf("Purged %d log lines older than %s", purged, h.Retention)
	}
	return nil
}

func (h *AuditHook) StoreResult(ctx context.Context, events []event.CandidateEvent) error {
	if h.Bucket == nil {
		return nil
	}
	return blob.SaveResult(ctx, h.Bucket, events)
}
