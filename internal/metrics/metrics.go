package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "adaptive_learning"

// Metrics holds the Prometheus collectors of the quiz flow and the stub API.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Submissions      *prometheus.CounterVec
	FeedbackPolls    *prometheus.CounterVec
	FeedbackOutcomes *prometheus.CounterVec
	FeedbackWait     prometheus.Histogram
	ResultsRefreshes *prometheus.CounterVec

	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := NewClientMetrics(reg)
	s := NewServerMetrics(reg)
	m.RequestCounter = s.RequestCounter
	m.RequestDuration = s.RequestDuration
	m.RequestsInFlight = s.RequestsInFlight
	return m
}

// NewClientMetrics registers only the quiz flow collectors recorded by the client.
func NewClientMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quiz",
				Name:      "submissions_total",
				Help:      "Quiz submissions by outcome",
			},
			[]string{"outcome"},
		),
		FeedbackPolls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feedback",
				Name:      "polls_total",
				Help:      "Feedback status polls by reported status",
			},
			[]string{"status"},
		),
		FeedbackOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feedback",
				Name:      "outcomes_total",
				Help:      "Terminal feedback polling outcomes",
			},
			[]string{"state"},
		),
		FeedbackWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "feedback",
				Name:      "wait_seconds",
				Help:      "Time from first poll to a terminal feedback outcome",
				Buckets:   []float64{1, 3, 5, 10, 20, 30, 60, 120, 300},
			},
		),
		ResultsRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "results",
				Name:      "refreshes_total",
				Help:      "Results list refreshes by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// NewServerMetrics registers only the HTTP collectors of the stub API.
func NewServerMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stubapi",
				Name:      "requests_total",
				Help:      "Total number of requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "stubapi",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "stubapi",
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
	}
}

func (m *Metrics) RecordSubmission(outcome string) {
	if m == nil || m.Submissions == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordPoll(status string) {
	if m == nil || m.FeedbackPolls == nil {
		return
	}
	m.FeedbackPolls.WithLabelValues(status).Inc()
}

// RecordFeedbackOutcome counts a terminal polling state and how long it took to reach it.
func (m *Metrics) RecordFeedbackOutcome(state string, waited time.Duration) {
	if m == nil || m.FeedbackOutcomes == nil {
		return
	}
	m.FeedbackOutcomes.WithLabelValues(state).Inc()
	m.FeedbackWait.Observe(waited.Seconds())
}

func (m *Metrics) RecordRefresh(outcome string) {
	if m == nil || m.ResultsRefreshes == nil {
		return
	}
	m.ResultsRefreshes.WithLabelValues(outcome).Inc()
}
