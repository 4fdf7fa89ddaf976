// Package nkbv scrapes the competition registration pages of the NKBV
// wedstrijd administratie systeem (WAS).
package nkbv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/klimkalender/klimkalender-cms/pkg/adapters"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

const Identifier = "nkbv-was"

type Page struct {
	Type     string
	URL      string
	Category string // css class of the rows on this page
}

var DefaultPages = []Page{
	{"Series", "https://was.nkbv.nl/inschrijven/series", "c_1"},
	{"Nationaal", "https://was.nkbv.nl/inschrijven/nationaal", "c_0"},
	{"Other", "https://was.nkbv.nl/inschrijven/overige", "c_4"},
}

const imageBase = "https://www.klimkalender.nl/wp-content/uploads/2024/10/"

// Fixed artwork for the national series.
var seriesImages = map[event.Category][2]string{
	event.Boulder: {imageBase + "WASBOT-NKBV-Boulder-series-volwassenen.png", imageBase + "WASBOT-NKBV-Boulder-series-jeugd.png"},
	event.Lead:    {imageBase + "WASBOT-NKBV-Lead-series-volwassenen.jpg", imageBase + "WASBOT-NKBV-Lead-series-jeugd.jpg"},
}

type Adapter struct {
	Pages []Page
	opts  adapters.Options
}

func New(opts adapters.Options) *Adapter {
	return &Adapter{Pages: DefaultPages, opts: opts.WithDefaults()}
}

func (a *Adapter) Identifier() string { return Identifier }

func (a *Adapter) Run(ctx context.Context) ([]event.CandidateEvent, error) {
	var (
		out  []event.CandidateEvent
		errs []error
	)
	for _, page := range a.Pages {
		events, err := a.scrapePage(ctx, page)
		if err != nil {
			a.opts.Log.Errorf("[%s] failed to fetch events from %s: %v", Identifier, page.URL, err)
			errs = append(errs, fmt.Errorf("%s: %w", page.Type, err))
			continue
		}
		out = append(out, events...)
	}
	return out, errors.Join(errs...)
}

func (a *Adapter) scrapePage(ctx context.Context, page Page) ([]event.CandidateEvent, error) {
	a.opts.Log.Infof("[%s] scraping WAS %s", Identifier, page.Type)
	doc, err := a.opts.Client.Document(ctx, page.URL)
	if err != nil {
		return nil, err
	}

	var rows []*goquery.Selection
	doc.Find(".uitslagen-wrapper ." + page.Category).Each(func(_ int, s *goquery.Selection) {
		rows = append(rows, s)
	})

	var out []event.CandidateEvent
	for _, s := range rows {
		ev, err := a.parseRow(s, page)
		if err != nil {
			a.opts.Log.Errorf("[%s] error processing WAS event: %v", Identifier, err)
			continue
		}
		a.enrich(ctx, &ev)
		if !adapters.Keep(a.opts.Log, Identifier, ev) {
			continue
		}
		a.opts.Log.Infof("[%s] found WAS event: %s", Identifier, ev.Name)
		out = append(out, ev)
	}
	return out, nil
}

func (a *Adapter) parseRow(s *goquery.Selection, page Page) (event.CandidateEvent, error) {
	ev := event.CandidateEvent{Classification: event.Unknown}
	ev.Name = adapters.Text(s.Find(".naam").First().Text())

	if dateText := strings.TrimSpace(s.Find(".date, .event-date, .datum").First().Text()); dateText != "" {
		d, err := event.ParseDayMonthYear(strings.Fields(dateText)[0])
		if err != nil {
			return ev, fmt.Errorf("could not parse date of %q: %w", ev.Name, err)
		}
		ev.Date = d
	}

	hall := adapters.Text(s.Find(".plaats").First().Text())
	if i := strings.Index(hall, ","); i >= 0 {
		hall = strings.TrimSpace(hall[:i])
	}
	ev.HallName = hall

	if href, ok := s.Find("a").First().Attr("href"); ok {
		ev.EventURL = adapters.ResolveURL(page.URL, href)
	}
	if id := adapters.LastPathSegment(ev.EventURL); ev.EventURL != "" && id != "" {
		ev.ExternalID = fmt.Sprintf("%s:%s:%s", Identifier, strings.ToLower(page.Type), id)
	}

	ev.Category = event.CategoryFromText(ev.Name + " " + s.Text())
	title := strings.ToLower(ev.Name)
	if strings.Contains(title, "serie") {
		youth := 0
		if strings.Contains(title, "jeugd") {
			youth = 1
		}
		for _, c := range []event.Category{event.Boulder, event.Lead} {
			if strings.Contains(title, strings.ToLower(string(c))) {
				ev.Category = c
				ev.ImageURL = seriesImages[c][youth]
			}
		}
	}
	return ev, nil
}

// enrich reads the description from the detail page. Failures leave the
// record as parsed from the list.
func (a *Adapter) enrich(ctx context.Context, ev *event.CandidateEvent) {
	if ev.EventURL == "" {
		a.opts.Log.Warnf("[%s] no event url for event: %s", Identifier, ev.Name)
		return
	}
	doc, err := a.opts.Client.Document(ctx, ev.EventURL)
	if err != nil {
		a.opts.Log.Errorf("[%s] failed to process event page %s: %v", Identifier, ev.EventURL, err)
		return
	}
	if d := doc.Find(".w-layout-blockcontainer").First(); d.Length() > 0 {
		if html, err := d.Html(); err == nil {
			ev.FullDescriptionHTML = strings.TrimSpace(html)
		}
	}
}
