package classify

import (
	"context"
	"fmt"
	"sync"

	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/metrics"
)

// Classifier labels a candidate event. UNKNOWN means the classifier could
// not decide.
type Classifier interface {
	Classify(ctx context.Context, ev event.CandidateEvent) (event.Classification, error)
}

// Stage is a Classifier with a name for diagnostics.
type Stage interface {
	Classifier
	Name() string
}

// CompetitionChecker answers the yes/no competition question remotely.
type CompetitionChecker interface {
	IsCompetition(ctx context.Context, ev event.CandidateEvent) (bool, error)
}

// RemoteClassifier always decides, using a text-classification service.
type RemoteClassifier struct {
	Checker CompetitionChecker
}

func (c *RemoteClassifier) Name() string { return "remote" }

func (c *RemoteClassifier) Classify(ctx context.Context, ev event.CandidateEvent) (event.Classification, error) {
	ok, err := c.Checker.IsCompetition(ctx, ev)
	if err != nil {
		return event.Unknown, err
	}
	if ok {
		return event.Competition, nil
	}
	return event.NoCompetition, nil
}

type chain []Stage

// Chain runs the stages in order and returns the first decision. A failing
// stage stops the chain and leaves the event UNKNOWN.
func Chain(stages ...Stage) Classifier {
	return chain(stages)
}

func (c chain) Classify(ctx context.Context, ev event.CandidateEvent) (event.Classification, error) {
	for _, s := range c {
		label, err := s.Classify(ctx, ev)
		if err != nil {
			metrics.Classifications.WithLabelValues(s.Name(), "error").Inc()
			return event.Unknown, fmt.Errorf("%s classifier: %w", s.Name(), err)
		}
		if label != event.Unknown {
			metrics.Classifications.WithLabelValues(s.Name(), string(label)).Inc()
			return label, nil
		}
	}
	return event.Unknown, nil
}

// Default is the rule pass followed by the remote fallback.
func Default(rules Rules, checker CompetitionChecker) Classifier {
	stages := []Stage{NewRuleClassifier(rules)}
	if checker != nil {
		stages = append(stages, &RemoteClassifier{Checker: checker})
	}
	return Chain(stages...)
}

// ClassifyAll labels every UNKNOWN event in place using up to concurrency
// workers. Events that could not be classified stay UNKNOWN and their
// errors are returned.
func ClassifyAll(ctx context.Context, c Classifier, events []event.CandidateEvent, concurrency int) []error {
	if concurrency <= 0 {
		concurrency = 1
	}
	jobs := make(chan int)
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				label, err := c.Classify(ctx, events[idx])
				if err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", events[idx].ExternalID, err))
					mu.Unlock()
					continue
				}
				events[idx].Classification = label
			}
		}()
	}
	for i := range events {
		if events[i].Classification != "" && events[i].Classification != event.Unknown {
			continue
		}
		events[i].Classification = event.Unknown
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return errs
}
