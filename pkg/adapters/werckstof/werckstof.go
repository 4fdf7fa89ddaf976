// Package werckstof scrapes the event pages of the WerckStof boulder halls.
package werckstof

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/klimkalender/klimkalender-cms/pkg/adapters"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

const Identifier = "werckstof"

type Hall struct {
	Name string
	URL  string // site root, with trailing slash
}

var DefaultHalls = []Hall{
	{"Kunststof", "https://www.boulderhalkunststof.nl/"},
	{"Krachtstof", "https://www.boulderhalkrachtstof.nl/"},
	{"Energiehaven", "https://www.boulderhalenergiehaven.nl/"},
	{"Zuidhaven", "https://www.boulderhalzuidhaven.nl/"},
	{"Radium", "https://www.radiumboulders.nl/"},
	{"Roest", "https://www.boulderhalroest.nl/"},
	{"Apex", "https://www.apexboulders.nl/"},
}

type Adapter struct {
	Halls []Hall
	opts  adapters.Options
}

func New(opts adapters.Options) *Adapter {
	return &Adapter{Halls: DefaultHalls, opts: opts.WithDefaults()}
}

func (a *Adapter) Identifier() string { return Identifier }

func (a *Adapter) Run(ctx context.Context) ([]event.CandidateEvent, error) {
	var (
		out  []event.CandidateEvent
		errs []error
	)
	for _, hall := range a.Halls {
		events, err := a.scrapeHall(ctx, hall)
		if err != nil {
			a.opts.Log.Errorf("[%s] failed to fetch events from %s: %v", Identifier, hall.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", hall.Name, err))
			continue
		}
		out = append(out, events...)
	}
	return out, errors.Join(errs...)
}

func (a *Adapter) scrapeHall(ctx context.Context, hall Hall) ([]event.CandidateEvent, error) {
	a.opts.Log.Infof("[%s] scraping %s", Identifier, hall.Name)
	eventsPage := hall.URL + "events"
	doc, err := a.opts.Client.Document(ctx, eventsPage)
	if err != nil {
		return nil, err
	}

	var out []event.CandidateEvent
	doc.Find(".eventItemBox.future").Each(func(_ int, s *goquery.Selection) {
		ev, err := a.parseEvent(s, hall, eventsPage)
		if err != nil {
			a.opts.Log.Errorf("[%s] error processing event in %s: %v", Identifier, hall.Name, err)
			return
		}
		if !adapters.Keep(a.opts.Log, Identifier, ev) {
			return
		}
		a.opts.Log.Infof("[%s] found event: %s on %s", Identifier, ev.Name, ev.Date.Format("2006-01-02"))
		out = append(out, ev)
	})
	return out, nil
}

func (a *Adapter) parseEvent(s *goquery.Selection, hall Hall, eventsPage string) (event.CandidateEvent, error) {
	ev := event.CandidateEvent{
		HallName:       hall.Name,
		EventURL:       eventsPage,
		Category:       event.Boulder,
		Classification: event.Unknown,
	}

	divID, _ := s.Attr("id")
	if parts := strings.SplitN(divID, "_", 2); len(parts) == 2 && parts[1] != "" {
		ev.ExternalID = fmt.Sprintf("%s:%s:%s", Identifier, strings.ToLower(hall.Name), parts[1])
	}

	if img := s.Find(".eventLeftBox").First(); img.Length() > 0 {
		style, _ := img.Attr("style")
		if u := adapters.StyleURL(style); u != "" {
			ev.ImageURL = adapters.ResolveURL(hall.URL, u)
		} else {
			a.opts.Log.Warnf("[%s] no url in style attribute for hall %s: %s", Identifier, hall.Name, style)
		}
	} else {
		a.opts.Log.Warnf("[%s] no image div found for event in hall %s", Identifier, hall.Name)
	}

	ev.Name = adapters.Text(s.Find("h2").First().Text())
	ev.ShortDescription = adapters.Text(s.Find(".cSubTitle").First().Text())
	if d := s.Find(".detailEventDescription").First(); d.Length() > 0 {
		html, err := d.Html()
		if err != nil {
			return ev, err
		}
		ev.FullDescriptionHTML = strings.TrimSpace(html)
	}
	ev.FullDescriptionHTML = a.opts.IntroHTML + ev.FullDescriptionHTML

	dayText := strings.TrimSpace(s.Find(".eventdaynr").First().Text())
	monthText := s.Find(".eventdateMonth").First().Text()
	day, err := strconv.Atoi(dayText)
	if err != nil {
		return ev, fmt.Errorf("bad day %q", dayText)
	}
	month, ok := event.DutchMonth(monthText)
	if !ok {
		return ev, fmt.Errorf("bad month %q", monthText)
	}
	if ev.Date, err = event.NextOccurrence(day, month, a.opts.Now()); err != nil {
		return ev, err
	}
	return ev, nil
}
