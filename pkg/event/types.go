package event

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Classification is the competition label assigned by the classifier.
type Classification string

const (
	Unknown       Classification = "UNKNOWN"
	Competition   Classification = "COMPETITION"
	NoCompetition Classification = "NOCOMPETITION"
)

// ParseClassification maps stored values back to a Classification.
// Anything unrecognised is UNKNOWN.
func ParseClassification(s string) Classification {
	switch Classification(strings.ToUpper(strings.TrimSpace(s))) {
	case Competition:
		return Competition
	case NoCompetition:
		return NoCompetition
	default:
		return Unknown
	}
}

type Category string

const (
	Boulder Category = "BOULDER"
	Lead    Category = "LEAD"
	Other   Category = "OTHER"
)

// CategoryFromText guesses the discipline from free text as the event sites
// describe it (Dutch "voorklimmen" is lead climbing).
func CategoryFromText(text string) Category {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "boulder"):
		return Boulder
	case strings.Contains(t, "lead"), strings.Contains(t, "voorklim"):
		return Lead
	default:
		return Other
	}
}

func ParseCategory(s string) Category {
	switch Category(strings.ToUpper(strings.TrimSpace(s))) {
	case Boulder:
		return Boulder
	case Lead:
		return Lead
	case Other:
		return Other
	default:
		return Boulder
	}
}

// Status is the reconciliation state of a WasmEvent.
type Status string

const (
	StatusNew         Status = "NEW"
	StatusChanged     Status = "CHANGED"
	StatusUpToDate    Status = "UP_TO_DATE"
	StatusIgnored     Status = "IGNORED"
	StatusRemoved     Status = "REMOVED"
	StatusEventPassed Status = "EVENT_PASSED"
)

var AllStatuses = []Status{StatusNew, StatusChanged, StatusUpToDate, StatusIgnored, StatusRemoved, StatusEventPassed}

func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == strings.ToUpper(strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// ImportAction controls whether CHANGED records are applied without review.
type ImportAction string

const (
	ManualImport ImportAction = "MANUAL_IMPORT"
	AutoImport   ImportAction = "AUTO_IMPORT"
)

func ParseImportAction(s string) ImportAction {
	if ImportAction(strings.ToUpper(strings.TrimSpace(s))) == AutoImport {
		return AutoImport
	}
	return ManualImport
}

// Toggle returns the other import action.
func (a ImportAction) Toggle() ImportAction {
	if a == AutoImport {
		return ManualImport
	}
	return AutoImport
}

// CandidateEvent is one sighting of an event on a remote site. The JSON form
// is what gets stored as the run result blob.
type CandidateEvent struct {
	ExternalID          string         `json:"externalId"`
	Name                string         `json:"name"`
	Date                time.Time      `json:"eventDate"`
	HallName            string         `json:"hallName"`
	ShortDescription    string         `json:"shortDescription"`
	FullDescriptionHTML string         `json:"fullDescriptionHtml"`
	EventURL            string         `json:"eventUrl"`
	ImageURL            string         `json:"imageUrl"`
	Category            Category       `json:"eventCategory"`
	Classification      Classification `json:"classification"`
}

var (
	ErrMissingExternalID = errors.New("external id is empty")
	ErrMissingDate       = errors.New("event date is not set")
)

// Validate checks the record against the adapter that produced it.
func (c CandidateEvent) Validate(prefix string) error {
	if strings.TrimSpace(c.ExternalID) == "" {
		return ErrMissingExternalID
	}
	if prefix != "" && !strings.HasPrefix(c.ExternalID, prefix+":") {
		return fmt.Errorf("external id %q does not start with %q", c.ExternalID, prefix+":")
	}
	if c.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// Fields returns the diffable content of the candidate.
func (c CandidateEvent) Fields() Fields {
	classification := c.Classification
	if classification == "" {
		classification = Unknown
	}
	category := c.Category
	if category == "" {
		category = Boulder
	}
	return Fields{
		Name:                c.Name,
		Classification:      classification,
		Date:                c.Date,
		HallName:            c.HallName,
		ShortDescription:    c.ShortDescription,
		FullDescriptionHTML: c.FullDescriptionHTML,
		EventURL:            c.EventURL,
		ImageURL:            c.ImageURL,
		Category:            category,
	}
}

// Fields is the set of values compared between scrapes, and between the
// latest scrape and the last accepted state.
type Fields struct {
	Name                string         `json:"name"`
	Classification      Classification `json:"classification"`
	Date                time.Time      `json:"date"`
	HallName            string         `json:"hall_name"`
	ShortDescription    string         `json:"short_description"`
	FullDescriptionHTML string         `json:"full_description_html"`
	EventURL            string         `json:"event_url"`
	ImageURL            string         `json:"image_url"`
	Category            Category       `json:"event_category"`
}

// Diff lists the names of the fields that differ. Dates are compared as
// instants, so the same moment in another zone is not a change.
func (f Fields) Diff(o Fields) []string {
	var out []string
	if f.Name != o.Name {
		out = append(out, "name")
	}
	if f.Classification != o.Classification {
		out = append(out, "classification")
	}
	if !f.Date.Equal(o.Date) {
		out = append(out, "date")
	}
	if f.HallName != o.HallName {
		out = append(out, "hall_name")
	}
	if f.ShortDescription != o.ShortDescription {
		out = append(out, "short_description")
	}
	if f.FullDescriptionHTML != o.FullDescriptionHTML {
		out = append(out, "full_description_html")
	}
	if f.EventURL != o.EventURL {
		out = append(out, "event_url")
	}
	if f.ImageURL != o.ImageURL {
		out = append(out, "image_url")
	}
	if f.Category != o.Category {
		out = append(out, "event_category")
	}
	return out
}

func (f Fields) Equal(o Fields) bool {
	return len(f.Diff(o)) == 0
}

// WasmEvent is the persisted reconciliation record for one external id.
type WasmEvent struct {
	ID          int64        `json:"id"`
	ExternalID  string       `json:"external_id"`
	Raw         Fields       `json:"raw"`
	Accepted    Fields       `json:"accepted"`
	Status      Status       `json:"status"`
	Action      ImportAction `json:"action"`
	EventID     *int64       `json:"event_id,omitempty"`
	// Ignored is set by IGNORE_FOREVER and outlives EVENT_PASSED and REMOVED.
	Ignored     bool         `json:"ignored"`
	ProcessedAt time.Time    `json:"processed_at"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Linked reports whether the record has been imported into the calendar.
func (w WasmEvent) Linked() bool {
	return w.EventID != nil
}

// Accept copies every raw field into its accepted counterpart.
func (w *WasmEvent) Accept() {
	w.Accepted = w.Raw
}

type CanonicalStatus string

const (
	Draft     CanonicalStatus = "DRAFT"
	Published CanonicalStatus = "PUBLISHED"
	Archived  CanonicalStatus = "ARCHIVED"
)

// CanonicalEvent is the published calendar entry.
type CanonicalEvent struct {
	ID               int64
	ExternalID       string
	Title            string
	Start            time.Time
	End              time.Time
	IsFullDay        bool
	TimeZone         string
	Status           CanonicalStatus
	Link             string
	Featured         bool
	FeaturedText     string
	FeaturedImageRef string
	Description      string
	Remarks          string
	VenueID          *int64
	OrganizerID      *int64
	Tags             []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Venue struct {
	ID          int64
	Name        string
	FullAddress string
	ImageRef    string
}

type Organizer struct {
	ID       int64
	Name     string
	ImageRef string
}
