package adapters

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/whttp"
)

// Adapter scrapes one remote site. Every returned record carries an
// external id prefixed with Identifier() and a valid date. A failure of one
// record never aborts the others; the returned error describes pages that
// could not be fetched at all and may come with a partial result.
type Adapter interface {
	Identifier() string
	Run(ctx context.Context) ([]event.CandidateEvent, error)
}

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Options are shared by all adapters.
type Options struct {
	Client *whttp.Client
	Log    Logger
	// Now is the reference time for resolving dates without a year.
	Now func() time.Time
	// IntroHTML is prepended to full descriptions by adapters that use it.
	IntroHTML string
}

// WithDefaults fills in a client, a silent logger and the wall clock.
func (o Options) WithDefaults() Options {
	if o.Client == nil {
		o.Client = whttp.NewClient(whttp.Options{})
	}
	if o.Log == nil {
		o.Log = nopLogger{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Keep validates ev for the adapter and logs why it is dropped.
func Keep(log Logger, identifier string, ev event.CandidateEvent) bool {
	if err := ev.Validate(identifier); err != nil {
		log.Warnf("[%s] skipping %q (%s): %v", identifier, ev.Name, ev.EventURL, err)
		return false
	}
	return true
}

// ResolveURL resolves href against base. Absolute hrefs are returned as is.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// LastPathSegment returns the final non-empty path element of u.
func LastPathSegment(u string) string {
	if parsed, err := url.Parse(u); err == nil {
		u = parsed.Path
	}
	parts := strings.Split(strings.TrimRight(u, "/"), "/")
	return parts[len(parts)-1]
}

var styleURLRe = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// StyleURL extracts the first url(...) of an inline style attribute.
func StyleURL(style string) string {
	m := styleURLRe.FindStringSubmatch(style)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Text returns whitespace-normalised text.
func Text(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
