package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

/*
Metrics Types:

- CounterVec: a counter with labels. Operations are counted per operation
  and result ("ok" or the error kind), so rejected votes show up next to
  accepted ones. Poll IDs come from request paths, so only counters that
  require a committed vote carry them.

- Histogram: operation latency, including the store transaction and the
  event sink.

Registration:
Metrics are registered on the Registerer passed to the constructor, so tests
can use a fresh prometheus.NewRegistry() per case instead of the global one.
*/

type PollMetrics struct {
	Operations    *prometheus.CounterVec
	VotesAccepted *prometheus.CounterVec
	OperationTime *prometheus.HistogramVec
}

func NewPollMetrics(reg prometheus.Registerer, namespace, subsystem string) *PollMetrics {
	f := promauto.With(reg)
	return &PollMetrics{
		Operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operations_total",
				Help:      "Poll operations by operation and result",
			},
			[]string{"op", "result"},
		),
		VotesAccepted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "votes_accepted_total",
				Help:      "Votes committed to the tally",
			},
			[]string{"poll_id", "option"},
		),
		OperationTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operation_duration_seconds",
				Help:      "Histogram of poll operation latency",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
			[]string{"op"},
		),
	}
}

type AuditMetrics struct {
	EventsAudited *prometheus.CounterVec
	Violations    *prometheus.CounterVec
}

func NewAuditMetrics(reg prometheus.Registerer, namespace, subsystem string) *AuditMetrics {
	f := promauto.With(reg)
	return &AuditMetrics{
		EventsAudited: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_audited_total",
				Help:      "Vote events read from the stream",
			},
			[]string{"poll_id"},
		),
		Violations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "violations_total",
				Help:      "Vote events that break exactly-once or tally ordering",
			},
			[]string{"poll_id", "kind"},
		),
	}
}
