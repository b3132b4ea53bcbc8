package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	decoded        *prometheus.CounterVec
	decodeFailures *prometheus.CounterVec
	published      *prometheus.CounterVec
	publishErrors  *prometheus.CounterVec
	outboxed       prometheus.Counter
	replayed       prometheus.Counter
	processed      *prometheus.CounterVec
	duplicates     prometheus.Counter
	staleEvents    *prometheus.CounterVec
	handlerErrors  *prometheus.CounterVec
	deadLettered   prometheus.Counter
	unknownEvents  prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			decoded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "wagersync_events_decoded_total",
				Help: "Events decoded by source chain",
			}, []string{"source"}),
			decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "wagersync_decode_failures_total",
				Help: "Log entries dropped because they could not be decoded",
			}, []string{"source"}),
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "wagersync_messages_published_total",
				Help: "Messages published to the dispatch queue",
			}, []string{"group"}),
			publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "wagersync_publish_errors_total",
				Help: "Failed publishes to the dispatch queue",
			}, []string{"group"}),
			outboxed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "wagersync_outbox_saved_total",
				Help: "Messages stored in the local outbox after a failed publish",
			}),
			replayed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "wagersync_outbox_replayed_total",
				Help: "Outbox messages republished",
			}),
			processed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "wagersync_events_processed_total",
				Help: "Events applied to the store",
			}, []string{"event"}),
			duplicates: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "wagersync_duplicate_messages_total",
				Help: "Messages skipped because their dedup key was already processed",
			}),
			staleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "wagersync_stale_events_total",
				Help: "Events ignored because the entity had already moved past them",
			}, []string{"event"}),
			handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "wagersync_handler_errors_total",
				Help: "Handler failures returned to the queue for redelivery",
			}, []string{"event"}),
			deadLettered: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "wagersync_dead_lettered_total",
				Help: "Messages moved to the dead-letter path",
			}),
			unknownEvents: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "wagersync_unknown_events_total",
				Help: "Messages ignored because of an unknown event name",
			}),
		}
		prometheus.MustRegister(
			metrics.decoded,
			metrics.decodeFailures,
			metrics.published,
			metrics.publishErrors,
			metrics.outboxed,
			metrics.replayed,
			metrics.processed,
			metrics.duplicates,
			metrics.staleEvents,
			metrics.handlerErrors,
			metrics.deadLettered,
			metrics.unknownEvents,
		)
	})
	return metrics
}

func (m *Metrics) Decoded(source string) {
	if m != nil {
		m.decoded.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) DecodeFailed(source string) {
	if m != nil {
		m.decodeFailures.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) Published(group string) {
	if m != nil {
		m.published.WithLabelValues(group).Inc()
	}
}

func (m *Metrics) PublishFailed(group string) {
	if m != nil {
		m.publishErrors.WithLabelValues(group).Inc()
	}
}

func (m *Metrics) Outboxed() {
	if m != nil {
		m.outboxed.Inc()
	}
}

func (m *Metrics) Replayed() {
	if m != nil {
		m.replayed.Inc()
	}
}

func (m *Metrics) Processed(event string) {
	if m != nil {
		m.processed.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Duplicate() {
	if m != nil {
		m.duplicates.Inc()
	}
}

func (m *Metrics) Stale(event string) {
	if m != nil {
		m.staleEvents.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) HandlerFailed(event string) {
	if m != nil {
		m.handlerErrors.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) DeadLettered() {
	if m != nil {
		m.deadLettered.Inc()
	}
}

func (m *Metrics) UnknownEvent() {
	if m != nil {
		m.unknownEvents.Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
