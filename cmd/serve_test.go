package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/klimkalender/klimkalender-cms/pkg/runhook"
)

func TestExclusiveRefusesOverlappingRuns(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	calls := 0
	trigger := exclusive(func(context.Context) error {
		calls++
		if calls == 1 {
			close(started)
			<-release
		}
		return nil
	})

	done := make(chan error)
	go func() { done <- trigger(context.Background()) }()
	<-started

	if err := trigger(context.Background()); !errors.Is(err, runhook.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}

	if err := trigger(context.Background()); err != nil || calls != 2 {
		t.Fatalf("run after release: %v (calls %d)", err, calls)
	}
}
