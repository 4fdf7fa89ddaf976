// Package metrics holds the Prometheus collectors of the discovery pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AdapterEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boulderbot",
		Name:      "adapter_events_total",
		Help:      "Candidate events returned per source adapter.",
	}, []string{"adapter"})

	AdapterErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boulderbot",
		Name:      "adapter_errors_total",
		Help:      "Fetch or parse failures per source adapter.",
	}, []string{"adapter"})

	Classifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boulderbot",
		Name:      "classifications_total",
		Help:      "Classification decisions by deciding stage and result.",
	}, []string{"stage", "result"})

	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boulderbot",
		Name:      "wasm_transitions_total",
		Help:      "Reconciliation status changes by resulting status.",
	}, []string{"status"})

	RunDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "boulderbot",
		Name:      "run_duration_seconds",
		Help:      "Duration of pipeline runs.",
	})

	LastRunSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "boulderbot",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the last finished run by outcome.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(AdapterEvents, AdapterErrors, Classifications, Transitions, RunDuration, LastRunSuccess)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
