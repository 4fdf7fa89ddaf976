// Package cmbel scrapes the competition calendars of the Belgian climbing
// federation (CMBEL).
package cmbel

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/klimkalender/klimkalender-cms/pkg/adapters"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

const Identifier = "cmbel-was"

type Page struct {
	Type string
	URL  string
}

var DefaultPages = []Page{
	{"Regionaal", "https://cmbel.shiftf5.be/competitions/cmbelregional"},
	{"Nationaal", "https://cmbel.shiftf5.be/competitions/cmbel"},
}

var (
	dateRe       = regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}`)
	boulderDisRe = regexp.MustCompile(`(?i)Discipline:\s*Boulder`)
	leadDisRe    = regexp.MustCompile(`(?i)Discipline:\s*Lead`)
)

type Adapter struct {
	Pages []Page
	opts  adapters.Options
}

func New(opts adapters.Options) *Adapter {
	return &Adapter{Pages: DefaultPages, opts: opts.WithDefaults()}
}

func (a *Adapter) Identifier() string { return Identifier }

// Run reads the calendars of the current and the next year.
func (a *Adapter) Run(ctx context.Context) ([]event.CandidateEvent, error) {
	year := a.opts.Now().In(event.Amsterdam).Year()
	var (
		out  []event.CandidateEvent
		errs []error
	)
	for _, page := range a.Pages {
		for _, y := range []int{year, year + 1} {
			u := fmt.Sprintf("%s/year/%d", strings.TrimRight(page.URL, "/"), y)
			events, err := a.scrapeYear(ctx, page, u)
			if err != nil {
				a.opts.Log.Errorf("[%s] failed to fetch events from %s: %v", Identifier, u, err)
				errs = append(errs, err)
				continue
			}
			out = append(out, events...)
		}
	}
	return out, errors.Join(errs...)
}

func (a *Adapter) scrapeYear(ctx context.Context, page Page, pageURL string) ([]event.CandidateEvent, error) {
	a.opts.Log.Infof("[%s] scraping %s|%s", Identifier, page.Type, pageURL)
	doc, err := a.opts.Client.Document(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	var rows []*goquery.Selection
	doc.Find("#main table tbody tr").Each(func(_ int, s *goquery.Selection) {
		rows = append(rows, s)
	})

	var out []event.CandidateEvent
	for _, row := range rows {
		cells := row.Find("td")
		if cells.Length() < 4 {
			continue
		}
		ev, err := a.parseRow(cells, page, pageURL)
		if err != nil {
			a.opts.Log.Errorf("[%s] skipping row %q: %v", Identifier, adapters.Text(row.Text()), err)
			continue
		}
		a.enrich(ctx, &ev)
		if !adapters.Keep(a.opts.Log, Identifier, ev) {
			continue
		}
		a.opts.Log.Infof("[%s] found event %s %s %s", Identifier, ev.Name, ev.Date.Format("2006-01-02"), ev.HallName)
		out = append(out, ev)
	}
	return out, nil
}

func (a *Adapter) parseRow(cells *goquery.Selection, page Page, pageURL string) (event.CandidateEvent, error) {
	ev := event.CandidateEvent{
		Name:           adapters.Text(cells.Eq(0).Text()),
		Classification: event.Unknown,
	}

	dateText := strings.TrimSpace(cells.Eq(1).Text())
	d, err := event.ParseDayMonthYear(strings.SplitN(dateText, " ", 2)[0])
	if err != nil {
		return ev, fmt.Errorf("invalid date: %w", err)
	}
	ev.Date = d

	venue := adapters.Text(cells.Eq(2).Text())
	if i := strings.Index(venue, ","); i >= 0 {
		venue = strings.TrimSpace(venue[:i])
	}
	ev.HallName = venue

	switch strings.ToLower(strings.TrimSpace(cells.Eq(3).Text())) {
	case "boulder":
		ev.Category = event.Boulder
	case "lead":
		ev.Category = event.Lead
	default:
		ev.Category = event.Other
	}

	href, ok := cells.Eq(0).Find("a").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ev, errors.New("no link to the competition page")
	}
	ev.EventURL = adapters.ResolveURL(pageURL, href)
	ev.ExternalID = fmt.Sprintf("%s:%s:%s", Identifier, strings.ToLower(page.Type), adapters.LastPathSegment(ev.EventURL))
	return ev, nil
}

// enrich reads title, date, venue and description from the competition
// page. Failures leave the values from the calendar row.
func (a *Adapter) enrich(ctx context.Context, ev *event.CandidateEvent) {
	doc, err := a.opts.Client.Document(ctx, ev.EventURL)
	if err != nil {
		a.opts.Log.Errorf("[%s] error processing event page %s: %v", Identifier, ev.EventURL, err)
		return
	}

	if h := doc.Find("h3").First(); h.Length() > 0 {
		title, date, venue := ParseTitle(h.Text())
		if title != "" {
			ev.Name = title
		}
		if !date.IsZero() {
			ev.Date = date
		}
		if venue != "" {
			ev.HallName = venue
		}
	}

	if d := doc.Find(".content div div").First(); d.Length() > 0 {
		d.Find("h3").Remove()
		d.RemoveAttr("class")
		// results follow the first rule
		d.Find("hr").Each(func(_ int, hr *goquery.Selection) {
			hr.NextAll().Remove()
			hr.Remove()
		})
		if html, err := d.Html(); err == nil {
			ev.FullDescriptionHTML = strings.TrimSpace(html)
		}
	}

	if ev.Category == event.Other {
		switch {
		case boulderDisRe.MatchString(ev.FullDescriptionHTML):
			ev.Category = event.Boulder
		case leadDisRe.MatchString(ev.FullDescriptionHTML):
			ev.Category = event.Lead
		}
	}
}

// ParseTitle splits a competition heading such as
// "Balance New Year's Challenge 2024, 19/01 & 20/01 , 19-01-2024 00:00, Klimzaal Balance, Gent"
// into title, start and venue. Parts that cannot be found are zero.
func ParseTitle(heading string) (string, time.Time, string) {
	parts := strings.Split(heading, ",")
	for i := range parts {
		parts[i] = adapters.Text(parts[i])
	}
	title := parts[0]
	for i := 1; i < len(parts); i++ {
		m := dateRe.FindString(parts[i])
		if m == "" {
			continue
		}
		d, err := event.ParseDayMonthYear(m)
		if err != nil {
			continue
		}
		if clock := strings.TrimSpace(strings.TrimPrefix(parts[i], m)); clock != "" {
			if hm, err := time.Parse("15:04", clock); err == nil {
				d = time.Date(d.Year(), d.Month(), d.Day(), hm.Hour(), hm.Minute(), 0, 0, event.Amsterdam)
			}
		}
		venue := ""
		if i+1 < len(parts) {
			venue = parts[i+1]
		}
		return title, d, venue
	}
	return title, time.Time{}, ""
}
