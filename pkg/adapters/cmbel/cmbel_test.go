package cmbel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klimkalender/klimkalender-cms/pkg/adapters"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/whttp"
)

func TestParseTitle(t *testing.T) {
	tests := []struct {
		in    string
		title string
		date  time.Time
		venue string
	}{
		{
			"Balance New Year's Challenge 2024, 19/01 & 20/01 , 19-01-2024 00:00, Klimzaal Balance, Gent",
			"Balance New Year's Challenge 2024", time.Date(2024, 1, 19, 0, 0, 0, 0, event.Amsterdam), "Klimzaal Balance",
		},
		{
			"Regional Boulder #2, 08-03-2025 10:00, Blocs, Brussel",
			"Regional Boulder #2", time.Date(2025, 3, 8, 10, 0, 0, 0, event.Amsterdam), "Blocs",
		},
		{
			"Belgian Lead Youth Cup 1 + OVJK , Sat, 20 Jan 2024 10:00:00 +0100, Klimax, Puurs",
			"Belgian Lead Youth Cup 1 + OVJK", time.Time{}, "",
		},
	}
	for _, tc := range tests {
		title, date, venue := ParseTitle(tc.in)
		if title != tc.title || !date.Equal(tc.date) || venue != tc.venue {
			t.Errorf("ParseTitle(%q) = %q, %s, %q", tc.in, title, date, venue)
		}
	}
}

const calendar2025 = `<div id="main"><table><tbody>
<tr><td><a href="/competition/501">Regional Boulder #2</a></td><td>08-03-2025 10:00</td><td>Blocs, Brussel</td><td>Other</td></tr>
<tr><td><a href="/competition/502">Lead Cup</a></td><td>12-04-2025</td><td>Klimax, Puurs</td><td>Lead</td></tr>
<tr><td>No link</td><td>12-04-2025</td><td>Klimax</td><td>Lead</td></tr>
<tr><td><a href="/competition/503">Bad</a></td><td>soon</td><td>Klimax</td><td>Lead</td></tr>
<tr><td>short row</td></tr>
</tbody></table></div>`

const detail501 = `<div class="content"><div><div class="text">
<h3>Regional Boulder #2, 08-03-2025 10:00, Blocs Brussel, Brussel</h3>
<p>Discipline: Boulder</p>
<hr/><p>Results</p><table><tr><td>1</td></tr></table>
</div></div></div>`

func TestRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/competitions/cmbelregional/year/2025":
			w.Write([]byte(calendar2025))
		case "/competitions/cmbelregional/year/2026":
			w.Write([]byte(`<div id="main"><table><tbody></tbody></table></div>`))
		case "/competition/501":
			w.Write([]byte(detail501))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	now := time.Date(2025, 2, 1, 0, 0, 0, 0, event.Amsterdam)
	a := New(adapters.Options{
		Client: whttp.NewClient(whttp.Options{Retries: -1}),
		Now:    func() time.Time { return now },
	})
	a.Pages = []Page{{Type: "Regionaal", URL: srv.URL + "/competitions/cmbelregional"}}

	events, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}

	reg := events[0]
	if reg.ExternalID != "cmbel-was:regionaal:501" || reg.HallName != "Blocs Brussel" || reg.Category != event.Boulder {
		t.Fatalf("unexpected event %+v", reg)
	}
	if want := time.Date(2025, 3, 8, 10, 0, 0, 0, event.Amsterdam); !reg.Date.Equal(want) {
		t.Fatalf("date = %s", reg.Date)
	}
	if strings.Contains(reg.FullDescriptionHTML, "Results") || strings.Contains(reg.FullDescriptionHTML, "<h3>") {
		t.Fatalf("description not cleaned: %q", reg.FullDescriptionHTML)
	}
	if !strings.Contains(reg.FullDescriptionHTML, "Discipline: Boulder") {
		t.Fatalf("description = %q", reg.FullDescriptionHTML)
	}

	cup := events[1]
	if cup.ExternalID != "cmbel-was:regionaal:502" || cup.HallName != "Klimax" || cup.Category != event.Lead {
		t.Fatalf("unexpected event %+v", cup)
	}
	if want := time.Date(2025, 4, 12, 0, 0, 0, 0, event.Amsterdam); !cup.Date.Equal(want) {
		t.Fatalf("date = %s", cup.Date)
	}
}
