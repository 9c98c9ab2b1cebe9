package telemetry

import (
	"net/http"
	"strconv"
	"time"

	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "itdd"

// ResolutionMetrics exports resolution counters on a private Prometheus registry.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type ResolutionMetrics struct {
	registry *prometheus.Registry

	ingestedItems       *prometheus.CounterVec
	retries             *prometheus.CounterVec
	reconciliations     prometheus.Counter
	merges              prometheus.Counter
	conflicts           *prometheus.CounterVec
	staleWrites         prometheus.Counter
	reconcileDuration   prometheus.Histogram
	reviewDecisions     *prometheus.CounterVec
	domainEvents        *prometheus.CounterVec
	reconcileQueueDepth prometheus.Gauge
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// NewResolutionMetrics creates and registers every collector. Go runtime and
// process collectors are included.
func NewResolutionMetrics() *ResolutionMetrics {
	m := &ResolutionMetrics{registry: prometheus.NewRegistry()}

	m.ingestedItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingested_items_total",
		Help:      "Inbound extraction events by pipeline and outcome.",
	}, []string{"kind", "outcome"})
	m.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_retries_total",
		Help:      "Retried storage operations by operation name.",
	}, []string{"operation"})
	m.reconciliations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "passes_total",
		Help:      "Completed reconciliation passes.",
	})
	m.merges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "merges_total",
		Help:      "Records folded into a survivor by reconciliation.",
	})
	m.conflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "conflicts_total",
		Help:      "Candidate pairs sent to manual review, by reason.",
	}, []string{"reason"})
	m.staleWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "stale_writes_total",
		Help:      "Merges skipped because a record changed concurrently.",
	})
	m.reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "duration_seconds",
		Help:      "Wall time of one reconciliation pass.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})
	m.reviewDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "review",
		Name:      "decisions_total",
		Help:      "Manual review decisions by decision.",
	}, []string{"decision"})
	m.domainEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "domain_events_total",
		Help:      "Domain events delivered on the event bus, by type.",
	}, []string{"type"})
	m.reconcileQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "queue_depth",
		Help:      "Scopes waiting for a background reconciliation worker.",
	})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.registry.MustRegister(
		m.ingestedItems,
		m.retries,
		m.reconciliations,
		m.merges,
		m.conflicts,
		m.staleWrites,
		m.reconcileDuration,
		m.reviewDecisions,
		m.domainEvents,
		m.reconcileQueueDepth,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// IngestedItem implements resolution.Metrics
func (m *ResolutionMetrics) IngestedItem(kind resolution.ExtractionKind, outcome appresolution.ItemOutcome) {
	m.ingestedItems.WithLabelValues(string(kind), string(outcome)).Inc()
}

// RetriedOperation implements resolution.Metrics
func (m *ResolutionMetrics) RetriedOperation(op string) {
	m.retries.WithLabelValues(op).Inc()
}

// ReconciliationFinished implements resolution.Metrics
func (m *ResolutionMetrics) ReconciliationFinished(report *appresolution.ReconciliationReport) {
	m.reconciliations.Inc()
	m.merges.Add(float64(len(report.Merges)))
	m.staleWrites.Add(float64(report.StaleWrites))
	for _, c := range report.Conflicts {
		m.conflicts.WithLabelValues(string(c.Reason)).Inc()
	}
	m.reconcileDuration.Observe(report.Duration.Seconds())
}

// ReviewResolved implements resolution.Metrics
func (m *ResolutionMetrics) ReviewResolved(decision resolution.ReviewDecision) {
	m.reviewDecisions.WithLabelValues(string(decision)).Inc()
}

// EventPublished counts one delivered domain event
func (m *ResolutionMetrics) EventPublished(eventType string) {
	m.domainEvents.WithLabelValues(eventType).Inc()
}

// SetQueueDepth reports the background reconciliation backlog
func (m *ResolutionMetrics) SetQueueDepth(depth int) {
	m.reconcileQueueDepth.Set(float64(depth))
}

// ObserveHTTP records one served request. route is the matched pattern, not the raw path.
func (m *ResolutionMetrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry
func (m *ResolutionMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *ResolutionMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

var _ appresolution.Metrics = (*ResolutionMetrics)(nil)
