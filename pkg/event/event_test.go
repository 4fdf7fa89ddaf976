package event

import (
	"reflect"
	"testing"
	"time"
)

func TestFieldsDiff(t *testing.T) {
	base := Fields{
		Name:           "Boulder Cup",
		Classification: Competition,
		Date:           time.Date(2025, 3, 1, 0, 0, 0, 0, Amsterdam),
		HallName:       "Kunststof",
		Category:       Boulder,
	}

	tests := []struct {
		name   string
		mutate func(f *Fields)
		want   []string
	}{
		{"identical", func(f *Fields) {}, nil},
		{"same instant other zone", func(f *Fields) { f.Date = f.Date.UTC() }, nil},
		{"name", func(f *Fields) { f.Name = "Boulder Cup 2" }, []string{"name"}},
		{"date and image", func(f *Fields) {
			f.Date = f.Date.Add(time.Hour)
			f.ImageURL = "https://example.com/a.png"
		}, []string{"date", "image_url"}},
		{"classification and category", func(f *Fields) {
			f.Classification = Unknown
			f.Category = Lead
		}, []string{"classification", "event_category"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			other := base
			tc.mutate(&other)
			got := base.Diff(other)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Diff() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	date := time.Date(2030, 1, 1, 0, 0, 0, 0, Amsterdam)
	tests := []struct {
		name    string
		ev      CandidateEvent
		prefix  string
		wantErr bool
	}{
		{"ok", CandidateEvent{ExternalID: "grip:event-1", Date: date}, "grip", false},
		{"empty id", CandidateEvent{Date: date}, "grip", true},
		{"foreign prefix", CandidateEvent{ExternalID: "werckstof:a:1", Date: date}, "grip", true},
		{"prefix without separator", CandidateEvent{ExternalID: "gripper:1", Date: date}, "grip", true},
		{"no date", CandidateEvent{ExternalID: "grip:1"}, "grip", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ev.Validate(tc.prefix)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNextOccurrence(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 0, 0, 0, Amsterdam)
	tests := []struct {
		day   int
		month time.Month
		want  time.Time
	}{
		{20, time.June, time.Date(2025, 6, 20, 0, 0, 0, 0, Amsterdam)},
		{15, time.June, time.Date(2025, 6, 15, 0, 0, 0, 0, Amsterdam)},
		{14, time.June, time.Date(2026, 6, 14, 0, 0, 0, 0, Amsterdam)},
		{3, time.January, time.Date(2026, 1, 3, 0, 0, 0, 0, Amsterdam)},
	}
	for _, tc := range tests {
		got, err := NextOccurrence(tc.day, tc.month, now)
		if err != nil {
			t.Fatalf("NextOccurrence(%d, %s): %v", tc.day, tc.month, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("NextOccurrence(%d, %s) = %s, want %s", tc.day, tc.month, got, tc.want)
		}
	}

	if _, err := NextOccurrence(31, time.February, now); err == nil {
		t.Fatalf("expected error for 31 February")
	}
}

func TestParseDayMonthYear(t *testing.T) {
	got, err := ParseDayMonthYear("07-09-2025")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 9, 7, 0, 0, 0, 0, Amsterdam)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
	for _, bad := range []string{"", "2025-09-07x", "32-01-2025", "aa-bb-cccc"} {
		if _, err := ParseDayMonthYear(bad); err == nil {
			t.Errorf("ParseDayMonthYear(%q) expected error", bad)
		}
	}
}

func TestDutchMonth(t *testing.T) {
	for in, want := range map[string]time.Month{"mrt": time.March, "Okt.": time.October, "mei": time.May, "december": time.December} {
		got, ok := DutchMonth(in)
		if !ok || got != want {
			t.Errorf("DutchMonth(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := DutchMonth("xx"); ok {
		t.Errorf("expected unknown month")
	}
}

func TestIsFullDay(t *testing.T) {
	day := time.Date(2025, 5, 10, 0, 0, 0, 0, Amsterdam)
	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"midnight to midnight", day, day.AddDate(0, 0, 1), true},
		{"midnight to 23:59", day, EndOfDay(day), true},
		{"afternoon to 23:59", day.Add(14 * time.Hour), EndOfDay(day), true},
		{"evening session", day.Add(19 * time.Hour), day.Add(22 * time.Hour), false},
		{"midnight to noon", day, day.Add(12 * time.Hour), false},
	}
	for _, tc := range tests {
		if got := IsFullDay(tc.start, tc.end, Amsterdam); got != tc.want {
			t.Errorf("%s: IsFullDay() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCategoryFromText(t *testing.T) {
	tests := map[string]Category{
		"NK Boulderen Jeugd":    Boulder,
		"Lead series volwassen": Lead,
		"Voorklimmen regionaal": Lead,
		"Speed":                 Other,
	}
	for in, want := range tests {
		if got := CategoryFromText(in); got != want {
			t.Errorf("CategoryFromText(%q) = %s, want %s", in, got, want)
		}
	}
}
