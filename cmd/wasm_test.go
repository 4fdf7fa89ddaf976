package cmd

import (
	"testing"
	"time"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

func TestFieldRowsCoverDiffedFields(t *testing.T) {
	raw := event.Fields{Name: "Roest Cup", Date: time.Date(2030, 5, 2, 0, 0, 0, 0, event.Amsterdam), Category: event.Boulder}
	rows := fieldRows(raw, event.Fields{})

	names := map[string]bool{}
	for _, r := range rows {
		names[r[0]] = true
	}
	// every field Diff can report must have a row
	for _, f := range raw.Diff(event.Fields{Classification: "x", HallName: "x", ShortDescription: "x", FullDescriptionHTML: "x", EventURL: "x", ImageURL: "x"}) {
		if !names[f] {
			t.Errorf("no row for field %q", f)
		}
	}
	if rows[2][1] != "2030-05-02 00:00" || rows[2][2] != "" {
		t.Fatalf("date row = %v", rows[2])
	}
}
