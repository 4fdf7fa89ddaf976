package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// Run is one row of the actions table: a tracked pipeline invocation.
type Run struct {
	ID        int64      `json:"id"`
	Type      string     `json:"type"`
	Start     time.Time  `json:"start"`
	End       *time.Time `json:"end,omitempty"`
	ResultOK  *bool      `json:"result_ok,omitempty"`
	Details   string     `json:"details,omitempty"`
	UserEmail string     `json:"user_email,omitempty"`
}

// Open reports whether the run has not been closed yet.
func (r Run) Open() bool {
	return r.End == nil
}

// LogLine is one audit line attached to a run.
type LogLine struct {
	ID       int64     `json:"id"`
	ActionID int64     `json:"action_id"`
	Level    string    `json:"level"`
	Message  string    `json:"message"`
	Time     time.Time `json:"datetime"`
}
