package classify

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
)

//go:embed rules.yaml
var defaultRules []byte

type Rule struct {
	When        []string             `yaml:"when"`        // substrings of the event name
	Description []string             `yaml:"description"` // substrings of the descriptions
	Sources     []string             `yaml:"sources"`     // adapter identifiers
	Label       event.Classification `yaml:"label"`
}

type Rules struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules returns the built-in keyword rules.
func DefaultRules() Rules {
	r, err := ParseRules(defaultRules)
	if err != nil {
		panic(err)
	}
	return r
}

// LoadRules reads a rule file; an empty path yields the defaults.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, err
	}
	return ParseRules(b)
}

func ParseRules(b []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(b, &r); err != nil {
		return Rules{}, err
	}
	for i, rule := range r.Rules {
		switch rule.Label {
		case event.Competition, event.NoCompetition:
		default:
			return Rules{}, fmt.Errorf("rule %d: label must be COMPETITION or NOCOMPETITION, got %q", i, rule.Label)
		}
		if len(rule.When) == 0 && len(rule.Description) == 0 && len(rule.Sources) == 0 {
			return Rules{}, fmt.Errorf("rule %d: needs when, description or sources", i)
		}
	}
	return r, nil
}

// RuleClassifier decides from the event text and source alone, without any
// remote call. It returns UNKNOWN when no rule matches.
type RuleClassifier struct {
	rules []Rule
}

func NewRuleClassifier(r Rules) *RuleClassifier {
	rules := make([]Rule, len(r.Rules))
	for i, rule := range r.Rules {
		rules[i] = Rule{Label: rule.Label, When: lowerWords(rule.When), Description: lowerWords(rule.Description)}
		for _, s := range rule.Sources {
			if s = strings.TrimSpace(s); s != "" {
				rules[i].Sources = append(rules[i].Sources, s)
			}
		}
	}
	return &RuleClassifier{rules: rules}
}

func lowerWords(words []string) []string {
	var out []string
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func (c *RuleClassifier) Name() string { return "rules" }

func (c *RuleClassifier) Classify(_ context.Context, ev event.CandidateEvent) (event.Classification, error) {
	name := strings.ToLower(ev.Name)
	description := strings.ToLower(ev.ShortDescription + " " + ev.FullDescriptionHTML)
	for _, rule := range c.rules {
		if len(rule.Sources) > 0 && !fromSource(ev.ExternalID, rule.Sources) {
			continue
		}
		if len(rule.When) == 0 && len(rule.Description) == 0 {
			if len(rule.Sources) == 0 {
				continue
			}
			return rule.Label, nil
		}
		if containsAny(name, rule.When) || containsAny(description, rule.Description) {
			return rule.Label, nil
		}
	}
	return event.Unknown, nil
}

func fromSource(externalID string, sources []string) bool {
	for _, src := range sources {
		if strings.HasPrefix(externalID, src+":") {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
