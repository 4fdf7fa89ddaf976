package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

type fakeChecker struct {
	answer bool
	err    error
	calls  int
}

func (f *fakeChecker) IsCompetition(context.Context, event.CandidateEvent) (bool, error) {
	f.calls++
	return f.answer, f.err
}

func TestNonCompetitionKeywordsSkipRemote(t *testing.T) {
	names := []string{
		"Yoga voor klimmers",
		"Workshop valtraining",
		"Spelletjesavond",
		"Open Stage night",
		"open-stage",
		"Gratis proefles",
		"Techniektraining dinsdag",
		"Cursus boulderen",
		// the non-competition rule wins over competition words
		"Workshop voor de Cup",
	}
	checker := &fakeChecker{answer: true}
	c := Default(DefaultRules(), checker)
	for _, name := range names {
		got, err := c.Classify(context.Background(), event.CandidateEvent{ExternalID: "werckstof:roest:1", Name: name})
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		if got != event.NoCompetition {
			t.Errorf("%q classified as %s", name, got)
		}
	}
	if checker.calls != 0 {
		t.Fatalf("remote classifier was called %d times", checker.calls)
	}
}

func TestCompetitionRules(t *testing.T) {
	checker := &fakeChecker{answer: false}
	c := Default(DefaultRules(), checker)
	tests := []struct {
		ev   event.CandidateEvent
		want event.Classification
	}{
		{event.CandidateEvent{ExternalID: "x:1", Name: "Boulder Cup 2025"}, event.Competition},
		{event.CandidateEvent{ExternalID: "grip:a", Name: "Clubcompetitie ronde 3"}, event.Competition},
		{event.CandidateEvent{ExternalID: "nkbv-was:series:abc", Name: "NK Lead"}, event.Competition},
		{event.CandidateEvent{ExternalID: "cmbel-was:regionaal:9", Name: "Regional #2"}, event.Competition},
	}
	for _, tc := range tests {
		got, err := c.Classify(context.Background(), tc.ev)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("%s %q = %s, want %s", tc.ev.ExternalID, tc.ev.Name, got, tc.want)
		}
	}
	if checker.calls != 0 {
		t.Fatalf("remote classifier was called %d times", checker.calls)
	}
}

func TestDescriptionRules(t *testing.T) {
	checker := &fakeChecker{answer: true}
	c := Default(DefaultRules(), checker)
	tests := []struct {
		ev   event.CandidateEvent
		want event.Classification
	}{
		{event.CandidateEvent{ExternalID: "werckstof:kunststof:4", Name: "Kunststof Kampioen", ShortDescription: "De jaarlijkse wedstrijd"}, event.Competition},
		{event.CandidateEvent{ExternalID: "werckstof:roest:5", Name: "Dinsdagavond", FullDescriptionHTML: "<p>Een avond TRAINING met onze trainers</p>"}, event.NoCompetition},
		{event.CandidateEvent{ExternalID: "werckstof:roest:6", Name: "Zomeravond", ShortDescription: "Competitie en workshop"}, event.Competition},
	}
	for _, tc := range tests {
		got, err := c.Classify(context.Background(), tc.ev)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("%s %q = %s, want %s", tc.ev.ExternalID, tc.ev.Name, got, tc.want)
		}
	}
	if checker.calls != 0 {
		t.Fatalf("remote classifier was called %d times", checker.calls)
	}

	// description rules are scoped to one source
	other := event.CandidateEvent{ExternalID: "grip:x", Name: "Zaterdag", ShortDescription: "training"}
	if got, _ := c.Classify(context.Background(), other); got != event.Competition || checker.calls != 1 {
		t.Fatalf("grip event = %s after %d remote calls", got, checker.calls)
	}
}

func TestRemoteFallback(t *testing.T) {
	ev := event.CandidateEvent{ExternalID: "grip:night", Name: "Halloween Boulder Night"}

	yes := &fakeChecker{answer: true}
	if got, err := Default(DefaultRules(), yes).Classify(context.Background(), ev); err != nil || got != event.Competition {
		t.Fatalf("got %s, %v", got, err)
	}

	no := &fakeChecker{answer: false}
	if got, err := Default(DefaultRules(), no).Classify(context.Background(), ev); err != nil || got != event.NoCompetition {
		t.Fatalf("got %s, %v", got, err)
	}

	failing := &fakeChecker{err: errors.New("timeout")}
	got, err := Default(DefaultRules(), failing).Classify(context.Background(), ev)
	if err == nil || got != event.Unknown {
		t.Fatalf("failure should leave UNKNOWN with an error, got %s, %v", got, err)
	}

	if got, err := Default(DefaultRules(), nil).Classify(context.Background(), ev); err != nil || got != event.Unknown {
		t.Fatalf("without remote stage expected UNKNOWN, got %s, %v", got, err)
	}
}

func TestParseRulesValidation(t *testing.T) {
	bad := []string{
		"rules:\n  - when: [x]\n    label: MAYBE\n",
		"rules:\n  - label: COMPETITION\n",
		"rules: [",
	}
	for _, in := range bad {
		if _, err := ParseRules([]byte(in)); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
	r, err := ParseRules([]byte("rules:\n  - when: [Bouldermarathon]\n    label: COMPETITION\n"))
	if err != nil {
		t.Fatal(err)
	}
	got, _ := NewRuleClassifier(r).Classify(context.Background(), event.CandidateEvent{Name: "De grote BOULDERMARATHON"})
	if got != event.Competition {
		t.Fatalf("custom rule did not match case-insensitively")
	}
}

func TestClassifyAllOnlyTouchesUnknown(t *testing.T) {
	events := []event.CandidateEvent{
		{ExternalID: "grip:a", Name: "Yoga", Classification: event.Competition},
		{ExternalID: "grip:b", Name: "Yoga"},
		{ExternalID: "grip:c", Name: "Night session", Classification: event.Unknown},
		{ExternalID: "grip:d", Name: "Boulder Cup"},
	}
	checker := &fakeChecker{err: errors.New("down")}
	errs := ClassifyAll(context.Background(), Default(DefaultRules(), checker), events, 1)

	want := []event.Classification{event.Competition, event.NoCompetition, event.Unknown, event.Competition}
	for i, w := range want {
		if events[i].Classification != w {
			t.Errorf("%s = %s, want %s", events[i].ExternalID, events[i].Classification, w)
		}
	}
	if len(errs) != 1 || checker.calls != 1 {
		t.Fatalf("expected one failed remote call, got %d errors and %d calls", len(errs), checker.calls)
	}
}
