// Package metrics exposes Prometheus collectors for backend submissions.
//
// Usage:
//
//	m := metrics.New(prometheus.NewRegistry())
//	m.Started(metrics.OpIngest)
//	defer m.Finished(metrics.OpIngest, metrics.OutcomeSucceeded, time.Since(start))
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OpIngest = "ingest"
	OpQuery  = "query"

	OutcomeSucceeded      = "succeeded"
	OutcomeBackendError   = "backend_error"
	OutcomeTransportError = "transport_error"
)

type Collector struct {
	// Submissions counts finished submissions.
	// Labels: operation (ingest|query), outcome (succeeded|backend_error|transport_error)
	Submissions *prometheus.CounterVec

	// Duration measures the backend exchange in seconds.
	// Labels: operation
	Duration *prometheus.HistogramVec

	// Stale counts completions discarded because a newer submission of the
	// same kind had started.
	// Labels: operation
	Stale *prometheus.CounterVec

	// InFlight tracks submissions awaiting a response.
	// Labels: operation
	InFlight *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragconsole_submissions_total",
				Help: "Total number of backend submissions by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragconsole_submission_duration_seconds",
				Help:    "Duration of backend submissions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		Stale: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragconsole_stale_responses_total",
				Help: "Total number of responses discarded because a newer submission superseded them",
			},
			[]string{"operation"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ragconsole_in_flight",
				Help: "Number of submissions awaiting a backend response",
			},
			[]string{"operation"},
		),
	}

	if reg != nil {
		reg.MustRegister(c.Submissions, c.Duration, c.Stale, c.InFlight)
	}
	return c
}

func (c *Collector) Started(op string) {
	if c == nil {
		return
	}
	c.InFlight.WithLabelValues(op).Inc()
}

func (c *Collector) Finished(op, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.InFlight.WithLabelValues(op).Dec()
	c.Submissions.WithLabelValues(op, outcome).Inc()
	c.Duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (c *Collector) Discarded(op string) {
	if c == nil {
		return
	}
	c.Stale.WithLabelValues(op).Inc()
}
