package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/metrics"
)

// Action is a decision of a human reviewer on one wasm event.
type Action string

const (
	PublishAsDraft     Action = "PUBLISH_AS_DRAFT"
	PublishAsPublished Action = "PUBLISH_AS_PUBLISHED"
	UpdateEvent        Action = "UPDATE_EVENT"
	IgnoreOnce         Action = "IGNORE_ONCE"
	IgnoreForever      Action = "IGNORE_FOREVER"
	ChangeImportType   Action = "CHANGE_IMPORT_TYPE"
)

var Actions = []Action{PublishAsDraft, PublishAsPublished, UpdateEvent, IgnoreOnce, IgnoreForever, ChangeImportType}

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrNotLinked     = errors.New("wasm event is not linked to an event")
	ErrAlreadyLinked = errors.New("wasm event is already linked to an event")
)

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Actions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// DefaultAction is the action suggested to a reviewer for w.
func DefaultAction(w event.WasmEvent) Action {
	switch w.Status {
	case event.StatusNew:
		if w.Raw.Classification == event.Competition {
			return PublishAsPublished
		}
	case event.StatusChanged:
		return UpdateEvent
	case event.StatusUpToDate:
		return ChangeImportType
	}
	return IgnoreForever
}

// Apply performs a reviewer action on the wasm event with the given id and
// returns the updated record.
func (p *Processor) Apply(ctx context.Context, wasmID int64, action Action) (*event.WasmEvent, error) {
	w, err := p.Store.GetWasmEvent(ctx, wasmID)
	if err != nil {
		return nil, err
	}
	prevStatus := w.Status

	switch action {
	case PublishAsDraft, PublishAsPublished:
		if w.Linked() {
			return nil, fmt.Errorf("%w: %d", ErrAlreadyLinked, *w.EventID)
		}
		status := event.Draft
		if action == PublishAsPublished {
			status = event.Published
		}
		id, err := p.publish(ctx, w, status)
		if err != nil {
			return nil, err
		}
		w.EventID = &id
		w.Accept()
		w.Status = event.StatusUpToDate
		w.Ignored = false
	case UpdateEvent:
		if !w.Linked() {
			return nil, ErrNotLinked
		}
		if err := p.pushToEvent(ctx, w); err != nil {
			return nil, err
		}
		w.Accept()
		w.Status = event.StatusUpToDate
		w.Ignored = false
	case IgnoreOnce:
		w.Accept()
		w.Status = event.StatusUpToDate
		w.Ignored = false
	case IgnoreForever:
		w.Status = event.StatusIgnored
		w.Ignored = true
	case ChangeImportType:
		w.Action = w.Action.Toggle()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	if err := p.Store.UpsertWasmEvent(ctx, w); err != nil {
		return nil, err
	}
	if w.Status != prevStatus {
		metrics.Transitions.WithLabelValues(string(w.Status)).Inc()
	}
	p.log().Infof("Applied %s to %s", action, w.ExternalID)
	return w, nil
}

// publish creates a calendar event from the raw fields of w.
func (p *Processor) publish(ctx context.Context, w *event.WasmEvent, status event.CanonicalStatus) (int64, error) {
	ev := &event.CanonicalEvent{
		ExternalID: w.ExternalID,
		TimeZone:   event.TimeZone,
		Status:     status,
		Tags:       []string{string(w.Raw.Category)},
	}
	fill(ev, w.Raw)

	if w.Raw.HallName != "" {
		venueID, err := p.Store.UpsertVenue(ctx, event.Venue{Name: w.Raw.HallName})
		if err != nil {
			return 0, fmt.Errorf("venue %q: %w", w.Raw.HallName, err)
		}
		ev.VenueID = &venueID
	}
	if w.Raw.ImageURL != "" && p.Images != nil {
		ref, err := p.Images.Upload(ctx, w.Raw.ImageURL)
		if err != nil {
			p.log().Warnf("Publishing %s without image: %v", w.ExternalID, err)
		} else {
			ev.FeaturedImageRef = ref
		}
	}

	id, err := p.Store.InsertEvent(ctx, ev)
	if err != nil {
		return 0, err
	}
	if err := p.Store.SetEventTags(ctx, id, ev.Tags); err != nil {
		p.log().Warnf("Could not tag event %d: %v", id, err)
	}
	return id, nil
}

// pushToEvent writes the raw fields of w into its linked event. The image
// is copied again only when its url differs from the accepted one.
func (p *Processor) pushToEvent(ctx context.Context, w *event.WasmEvent) error {
	ev, err := p.Store.GetEvent(ctx, *w.EventID)
	if err != nil {
		return fmt.Errorf("load event %d: %w", *w.EventID, err)
	}
	fill(ev, w.Raw)

	oldRef := ""
	if w.Raw.ImageURL != w.Accepted.ImageURL && p.Images != nil {
		if w.Raw.ImageURL == "" {
			oldRef, ev.FeaturedImageRef = ev.FeaturedImageRef, ""
		} else {
			ref, err := p.Images.Upload(ctx, w.Raw.ImageURL)
			if err != nil {
				return fmt.Errorf("image: %w", err)
			}
			oldRef, ev.FeaturedImageRef = ev.FeaturedImageRef, ref
		}
	}

	if err := p.Store.UpdateEvent(ctx, ev); err != nil {
		return err
	}
	if oldRef != "" {
		if err := p.Images.Delete(ctx, oldRef); err != nil {
			p.log().Warnf("Could not delete replaced image %s: %v", oldRef, err)
		}
	}
	return nil
}

func fill(ev *event.CanonicalEvent, f event.Fields) {
	ev.Title = f.Name
	ev.Start = f.Date
	ev.End = event.EndOfDay(f.Date)
	ev.IsFullDay = event.IsFullDay(ev.Start, ev.End, event.Amsterdam)
	ev.Description = f.FullDescriptionHTML
	ev.Link = f.EventURL
}
