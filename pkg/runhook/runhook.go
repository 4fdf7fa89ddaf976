// Package runhook observes pipeline runs: it guards against concurrent runs,
// receives every log line of a run and keeps the scraped batch.
package runhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// RunHook is notified around one pipeline run.
type RunHook interface {
	// OnBeforeRun refuses to start when another run is in progress.
	OnBeforeRun(ctx context.Context) error
	OnLog(ctx context.Context, message, level string)
	OnAfterRun(ctx context.Context, success bool, details string) error
	StoreResult(ctx context.Context, events []event.CandidateEvent) error
}

var ErrRunInProgress = errors.New("another run is still in progress")

// Logger turns formatted log calls into OnLog events of a hook.
type Logger struct {
	ctx  context.Context
	hook RunHook
}

func NewLogger(ctx context.Context, hook RunHook) *Logger {
	return &Logger{ctx: ctx, hook: hook}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.hook.OnLog(l.ctx, fmt.Sprintf(format, args...), LevelInfo)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.hook.OnLog(l.ctx, fmt.Sprintf(format, args...), LevelWarn)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.hook.OnLog(l.ctx, fmt.Sprintf(format, args...), LevelError)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.hook.OnLog(l.ctx, fmt.Sprintf(format, args...), LevelDebug)
}

type multi []RunHook

// Multi fans out to every hook in order. OnBeforeRun stops at the first
// refusal; the other calls reach every hook.
func Multi(hooks ...RunHook) RunHook {
	return multi(hooks)
}

func (m multi) OnBeforeRun(ctx context.Context) error {
	for _, h := range m {
		if err := h.OnBeforeRun(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m multi) OnLog(ctx context.Context, message, level string) {
	for _, h := range m {
		h.OnLog(ctx, message, level)
	}
}

func (m multi) OnAfterRun(ctx context.Context, success bool, details string) error {
	var errs []error
	for _, h := range m {
		errs = append(errs, h.OnAfterRun(ctx, success, details))
	}
	return errors.Join(errs...)
}

func (m multi) StoreResult(ctx context.Context, events []event.CandidateEvent) error {
	var errs []error
	for _, h := range m {
		errs = append(errs, h.StoreResult(ctx, events))
	}
	return errors.Join(errs...)
}

// Printer is the console side of a run.
type Printer interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// ConsoleHook prints log lines and lifecycle events. It never refuses a run
// and does not keep results.
type ConsoleHook struct {
	Log Printer
}

func (c ConsoleHook) OnBeforeRun(context.Context) error {
	c.Log.Infof("Starting run")
	return nil
}

func (c ConsoleHook) OnLog(_ context.Context, message, level string) {
	switch level {
	case LevelDebug:
		c.Log.Debugf("%s", message)
	case LevelWarn:
		c.Log.Warnf("%s", message)
	case LevelError:
		c.Log.Errorf("%s", message)
	default:
		c.Log.Infof("%s", message)
	}
}

func (c ConsoleHook) OnAfterRun(_ context.Context, success bool, details string) error {
	if success {
		c.Log.Infof("Run finished: %s", details)
	} else {
		c.Log.Errorf("Run failed: %s", details)
	}
	return nil
}

func (c ConsoleHook) StoreResult(_ context.Context, events []event.CandidateEvent) error {
	c.Log.Debugf("Run produced %d candidate events", len(events))
	return nil
}
