package adapters

import (
	"testing"
	"time"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"https://was.nkbv.nl/inschrijven/series", "/wedstrijd/123", "https://was.nkbv.nl/wedstrijd/123"},
		{"https://www.boulderhalroest.nl/", "img/a.jpg", "https://www.boulderhalroest.nl/img/a.jpg"},
		{"https://a.nl/x", "https://b.nl/y", "https://b.nl/y"},
		{"https://a.nl/x", "  ", ""},
	}
	for _, tc := range tests {
		if got := ResolveURL(tc.base, tc.href); got != tc.want {
			t.Errorf("ResolveURL(%q, %q) = %q, want %q", tc.base, tc.href, got, tc.want)
		}
	}
}

func TestLastPathSegment(t *testing.T) {
	tests := map[string]string{
		"https://gripnijmegen.nl/boulderhal/actueel/events/grip-games/": "grip-games",
		"https://cmbel.shiftf5.be/competition/4711":                     "4711",
		"https://was.nkbv.nl/wedstrijd/abc?x=1":                         "abc",
	}
	for in, want := range tests {
		if got := LastPathSegment(in); got != want {
			t.Errorf("LastPathSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStyleURL(t *testing.T) {
	tests := map[string]string{
		"background-image: url('/uploads/a.jpg');":      "/uploads/a.jpg",
		`background: url("https://x.nl/b.png") center;`: "https://x.nl/b.png",
		"background-image:url(c.webp)":                  "c.webp",
		"color: red":                                    "",
	}
	for in, want := range tests {
		if got := StyleURL(in); got != want {
			t.Errorf("StyleURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKeep(t *testing.T) {
	ok := event.CandidateEvent{ExternalID: "grip:a", Date: time.Now()}
	if !Keep(nopLogger{}, "grip", ok) {
		t.Fatalf("valid record dropped")
	}
	if Keep(nopLogger{}, "grip", event.CandidateEvent{ExternalID: "grip:a"}) {
		t.Fatalf("record without date kept")
	}
	if Keep(nopLogger{}, "werckstof", ok) {
		t.Fatalf("record with foreign prefix kept")
	}
}
