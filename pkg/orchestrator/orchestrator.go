// Package orchestrator runs one discovery pass: every source adapter, the
// classifier, result storage and optionally reconciliation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klimkalender/klimkalender-cms/pkg/adapters"
	"github.com/klimkalender/klimkalender-cms/pkg/classify"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/metrics"
	"github.com/klimkalender/klimkalender-cms/pkg/reconcile"
	"github.com/klimkalender/klimkalender-cms/pkg/runhook"
)

type Logger = adapters.Logger

// Processor reconciles a finished batch.
type Processor interface {
	Process(ctx context.Context, batch []event.CandidateEvent) (*reconcile.Report, error)
}

// Config holds everything Run needs.
type Config struct {
	Adapters    []adapters.Adapter
	Classifier  classify.Classifier // optional; nil leaves every event UNKNOWN
	Hook        runhook.RunHook     // required
	Processor   Processor           // optional; nil only stores the batch
	Concurrency int                 // adapters and classifications in flight, defaults to 4
}

// Result holds the outcome of one run.
type Result struct {
	Events       []event.CandidateEvent
	PerAdapter   map[string]int
	Errors       []error // non-fatal adapter and classifier errors
	Unclassified int
	Report       *reconcile.Report
	Duration     time.Duration
}

func (r *Result) Details() string {
	s := fmt.Sprintf("%d events from %d adapters, %d errors, %d unclassified", len(r.Events), len(r.PerAdapter), len(r.Errors), r.Unclassified)
	if r.Report != nil {
		s += "; " + r.Report.String()
	}
	return s
}

// Run performs one pipeline run. Adapter and classification failures only
// shrink the result; a refused lock, a failing result store or a failing
// reconciliation fail the run.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Hook == nil {
		return nil, errors.New("orchestrator: no run hook")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	hook := cfg.Hook
	if err := hook.OnBeforeRun(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	log := runhook.NewLogger(ctx, hook)
	res := &Result{}

	finish := func(err error) (*Result, error) {
		res.Duration = time.Since(start)
		metrics.RunDuration.Observe(res.Duration.Seconds())
		ok, details := err == nil, res.Details()
		if err != nil {
			details = err.Error() + "; " + details
			metrics.LastRunSuccess.WithLabelValues("failure").SetToCurrentTime()
		} else {
			metrics.LastRunSuccess.WithLabelValues("success").SetToCurrentTime()
		}
		if hookErr := hook.OnAfterRun(ctx, ok, details); hookErr != nil {
			log.Errorf("Could not close run: %v", hookErr)
			if err == nil {
				err = hookErr
			}
		}
		return res, err
	}

	log.Infof("Running %d adapters", len(cfg.Adapters))
	res.Events, res.PerAdapter, res.Errors = Collect(ctx, cfg.Adapters, concurrency, log)

	if cfg.Classifier != nil {
		for _, err := range classify.ClassifyAll(ctx, cfg.Classifier, res.Events, concurrency) {
			log.Warnf("Left unclassified: %v", err)
			res.Errors = append(res.Errors, err)
		}
	}
	for _, ev := range res.Events {
		if ev.Classification == event.Unknown || ev.Classification == "" {
			res.Unclassified++
		}
	}

	if err := hook.StoreResult(ctx, res.Events); err != nil {
		return finish(fmt.Errorf("store result: %w", err))
	}

	if cfg.Processor != nil {
		report, err := cfg.Processor.Process(ctx, res.Events)
		if err != nil {
			return finish(fmt.Errorf("process result: %w", err))
		}
		res.Report = report
	}

	log.Infof("Run done: %s", res.Details())
	return finish(nil)
}

// Collect runs the adapters with a bounded worker pool and concatenates
// their records in adapter order. Failing adapters contribute whatever they
// returned; records that break the adapter contract are dropped.
func Collect(ctx context.Context, list []adapters.Adapter, concurrency int, log Logger) ([]event.CandidateEvent, map[string]int, []error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	perAdapter := make(map[string]int, len(list))
	if len(list) == 0 {
		return nil, perAdapter, nil
	}

	results := make([][]event.CandidateEvent, len(list))
	jobs := make(chan int, len(list))

	var mu sync.Mutex
	var allErrors []error

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				a := list[idx]
				events, err := a.Run(ctx)
				if err != nil {
					log.Errorf("Adapter %s failed: %v", a.Identifier(), err)
					metrics.AdapterErrors.WithLabelValues(a.Identifier()).Inc()
					mu.Lock()
					allErrors = append(allErrors, fmt.Errorf("%s: %w", a.Identifier(), err))
					mu.Unlock()
				}
				kept := events[:0:0]
				for _, ev := range events {
					if err := ev.Validate(a.Identifier()); err != nil {
						log.Warnf("Dropping record %q of %s: %v", ev.ExternalID, a.Identifier(), err)
						continue
					}
					if ev.Classification == "" {
						ev.Classification = event.Unknown
					}
					kept = append(kept, ev)
				}
				results[idx] = kept
				metrics.AdapterEvents.WithLabelValues(a.Identifier()).Add(float64(len(kept)))
				log.Infof("Adapter %s returned %d events", a.Identifier(), len(kept))
			}
		}()
	}

	for i := range list {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var out []event.CandidateEvent
	for i, a := range list {
		perAdapter[a.Identifier()] += len(results[i])
		out = append(out, results[i]...)
	}
	return out, perAdapter, allErrors
}
