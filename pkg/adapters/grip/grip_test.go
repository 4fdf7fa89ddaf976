package grip

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klimkalender/klimkalender-cms/pkg/adapters"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/whttp"
)

type fakeDates struct {
	texts []string
}

func (f *fakeDates) FindDate(_ context.Context, text string, _ time.Time) (time.Time, bool, error) {
	f.texts = append(f.texts, text)
	switch {
	case strings.Contains(text, "14 maart"):
		return time.Date(2025, 3, 14, 0, 0, 0, 0, event.Amsterdam), true, nil
	case strings.Contains(text, "fout"):
		return time.Time{}, false, errors.New("api down")
	}
	return time.Time{}, false, nil
}

func TestRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/events/":
			w.Write([]byte(`<div class="news"><a href="/events/grip-games/">Grip Games</a></div>
<div class="news"><a href="/events/zonder-datum/">?</a></div>
<div class="news"><a href="/events/fout/">!</a></div>
<div class="news"><a href="/events/weg/">gone</a></div>`))
		case "/events/grip-games/":
			w.Write([]byte(`<div class="page-header" style="background-image: url('https://cdn.grip.nl/games.jpg')"></div>
<h1>Grip Games</h1><div class="content"><p>Op 14 maart</p></div>`))
		case "/events/zonder-datum/":
			w.Write([]byte(`<h1>Binnenkort</h1><div class="entry-content"><p>Later meer</p></div>`))
		case "/events/fout/":
			w.Write([]byte(`<h1>Fout</h1><div class="content"><p>fout</p></div>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dates := &fakeDates{}
	a := New(adapters.Options{Client: whttp.NewClient(whttp.Options{Retries: -1}), IntroHTML: "<b>intro</b>"}, dates)
	a.EventsURL = srv.URL + "/events/"

	events, err := a.Run(context.Background())
	if err == nil {
		t.Fatalf("expected the 404 detail page to be reported")
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	ev := events[0]
	if ev.ExternalID != "grip:grip-games" || ev.Name != "Grip Games" || ev.HallName != HallName {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.ImageURL != "https://cdn.grip.nl/games.jpg" {
		t.Fatalf("image = %q", ev.ImageURL)
	}
	if ev.FullDescriptionHTML != "<b>intro</b><p>Op 14 maart</p>" {
		t.Fatalf("description = %q", ev.FullDescriptionHTML)
	}
	if len(dates.texts) != 3 || strings.Contains(dates.texts[0], "intro") {
		t.Fatalf("date finder got %q", dates.texts)
	}
}
