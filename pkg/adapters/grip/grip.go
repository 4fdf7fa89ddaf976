// Package grip scrapes the events section of Grip Nijmegen. The site has no
// structured dates, so the date is read from the description text by a
// DateFinder.
package grip

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/klimkalender/klimkalender-cms/pkg/adapters"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

const (
	Identifier = "grip"
	HallName   = "Grip"
	EventsURL  = "https://gripnijmegen.nl/boulderhal/actueel/events/"
)

// DateFinder guesses the date of an event from free text.
type DateFinder interface {
	FindDate(ctx context.Context, text string, now time.Time) (time.Time, bool, error)
}

type Adapter struct {
	EventsURL string
	dates     DateFinder
	opts      adapters.Options
}

// New returns the adapter. Without a DateFinder no record can get a date and
// every event is skipped.
func New(opts adapters.Options, dates DateFinder) *Adapter {
	return &Adapter{EventsURL: EventsURL, dates: dates, opts: opts.WithDefaults()}
}

func (a *Adapter) Identifier() string { return Identifier }

func (a *Adapter) Run(ctx context.Context) ([]event.CandidateEvent, error) {
	doc, err := a.opts.Client.Document(ctx, a.EventsURL)
	if err != nil {
		a.opts.Log.Errorf("[%s] failed to fetch events from %s: %v", Identifier, a.EventsURL, err)
		return nil, err
	}

	var links []string
	doc.Find(".news").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Find("a").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			links = append(links, adapters.ResolveURL(a.EventsURL, href))
		}
	})

	var (
		out  []event.CandidateEvent
		errs []error
	)
	for _, link := range links {
		ev, err := a.scrapeEvent(ctx, link)
		if err != nil {
			a.opts.Log.Errorf("[%s] error fetching event page %s: %v", Identifier, link, err)
			errs = append(errs, err)
			continue
		}
		if !adapters.Keep(a.opts.Log, Identifier, ev) {
			continue
		}
		a.opts.Log.Infof("[%s] processed event: %s", Identifier, ev.Name)
		out = append(out, ev)
	}
	return out, errors.Join(errs...)
}

func (a *Adapter) scrapeEvent(ctx context.Context, link string) (event.CandidateEvent, error) {
	ev := event.CandidateEvent{
		ExternalID:     Identifier + ":" + adapters.LastPathSegment(link),
		EventURL:       link,
		HallName:       HallName,
		Category:       event.Boulder,
		Classification: event.Unknown,
	}

	doc, err := a.opts.Client.Document(ctx, link)
	if err != nil {
		return ev, err
	}

	ev.Name = adapters.Text(doc.Find("h1").First().Text())
	if c := doc.Find(".content, .description, .entry-content").First(); c.Length() > 0 {
		html, err := c.Html()
		if err != nil {
			return ev, fmt.Errorf("description: %w", err)
		}
		ev.FullDescriptionHTML = strings.TrimSpace(html)
	}
	if style, ok := doc.Find(".page-header").First().Attr("style"); ok {
		if u := adapters.StyleURL(style); u != "" {
			ev.ImageURL = adapters.ResolveURL(link, u)
		}
	}

	if a.dates != nil && ev.FullDescriptionHTML != "" {
		d, ok, err := a.dates.FindDate(ctx, ev.FullDescriptionHTML, a.opts.Now())
		switch {
		case err != nil:
			a.opts.Log.Errorf("[%s] date extraction failed for %s: %v", Identifier, link, err)
		case ok:
			ev.Date = d
		}
	}

	ev.FullDescriptionHTML = a.opts.IntroHTML + ev.FullDescriptionHTML
	return ev, nil
}
