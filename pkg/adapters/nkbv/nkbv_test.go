package nkbv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klimkalender/klimkalender-cms/pkg/adapters"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/whttp"
)

const listHTML = `<html><body><div class="uitslagen-wrapper">
<div class="c_1">
  <a href="/wedstrijd/boulder-serie-1"><span class="naam">NKBV Boulder Serie Jeugd #1</span></a>
  <span class="datum">15-03-2025</span>
  <span class="plaats">Monk Eindhoven, Eindhoven</span>
</div>
<div class="c_1">
  <a href="/wedstrijd/lead-2"><span class="naam">Voorklim wedstrijd</span></a>
  <span class="datum">01-04-2025</span>
  <span class="plaats">Klimcentrum Neoliet</span>
</div>
<div class="c_1">
  <a href="/wedstrijd/kapot"><span class="naam">Kapotte datum</span></a>
  <span class="datum">32-13-2025</span>
</div>
<div class="c_0">
  <a href="/wedstrijd/nk"><span class="naam">Other page row</span></a>
  <span class="datum">01-05-2025</span>
</div>
</div></body></html>`

func TestRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/inschrijven/series":
			w.Write([]byte(listHTML))
		case "/wedstrijd/boulder-serie-1":
			w.Write([]byte(`<div class="w-layout-blockcontainer"><p>Inschrijven via WAS</p></div>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := New(adapters.Options{Client: whttp.NewClient(whttp.Options{Retries: -1})})
	a.Pages = []Page{{Type: "Series", URL: srv.URL + "/inschrijven/series", Category: "c_1"}}

	events, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}

	series := events[0]
	if series.ExternalID != "nkbv-was:series:boulder-serie-1" || series.HallName != "Monk Eindhoven" {
		t.Fatalf("unexpected event %+v", series)
	}
	if want := time.Date(2025, 3, 15, 0, 0, 0, 0, event.Amsterdam); !series.Date.Equal(want) {
		t.Fatalf("date = %s", series.Date)
	}
	if series.Category != event.Boulder || series.ImageURL != imageBase+"WASBOT-NKBV-Boulder-series-jeugd.png" {
		t.Fatalf("category/image = %s / %s", series.Category, series.ImageURL)
	}
	if series.FullDescriptionHTML != "<p>Inschrijven via WAS</p>" {
		t.Fatalf("description = %q", series.FullDescriptionHTML)
	}
	if series.EventURL != srv.URL+"/wedstrijd/boulder-serie-1" {
		t.Fatalf("url = %q", series.EventURL)
	}

	// detail page 404 keeps the list data
	lead := events[1]
	if lead.Category != event.Lead || lead.FullDescriptionHTML != "" || lead.ImageURL != "" {
		t.Fatalf("unexpected lead event %+v", lead)
	}
}
