package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records gateway charge outcomes per settlement run.
type SettlementMetrics struct {
	attempts *prometheus.CounterVec
	outcomes *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_gateway_attempts_total",
		Help: "Charge attempts issued per gateway.",
	}, []string{"gateway"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_runs_total",
		Help: "Settlement runs per gateway and result.",
	}, []string{"gateway", "result"})
	reg.MustRegister(attempts, outcomes)
	return &SettlementMetrics{
		attempts: attempts,
		outcomes: outcomes,
	}
}

// RecordSettlement counts the attempts and outcome of one orchestration run.
// The gateway label is the winning gateway on success and the last gateway
// tried on failure.
func (s *SettlementMetrics) RecordSettlement(gateway string, attempts int, success bool) {
	if s == nil || s.attempts == nil {
		return
	}
	label := normalizeLabel(gateway)
	s.attempts.WithLabelValues(label).Add(float64(attempts))
	result := "failure"
	if success {
		result = "success"
	}
	s.outcomes.WithLabelValues(label, result).Inc()
}

// OutboxMetrics records dispatcher progress for the notify publisher.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failures  *prometheus.CounterVec
	terminal  *prometheus.CounterVec
	batch     *prometheus.HistogramVec
}

// NewOutboxMetrics registers the outbox dispatcher metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox rows published to the events channel.",
	}, []string{"event_type"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Publish attempts that will be retried.",
	}, []string{"event_type"})
	terminal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_terminal_total",
		Help: "Outbox rows moved to the dead letter table.",
	}, []string{"reason"})
	batch := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Duration of one outbox poll batch in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker"})
	reg.MustRegister(published, failures, terminal, batch)
	return &OutboxMetrics{
		published: published,
		failures:  failures,
		terminal:  terminal,
		batch:     batch,
	}
}

// IncPublished counts one successfully published outbox row.
func (o *OutboxMetrics) IncPublished(eventType string) {
	if o == nil || o.published == nil {
		return
	}
	o.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailure counts one retryable publish failure.
func (o *OutboxMetrics) IncFailure(eventType string) {
	if o == nil || o.failures == nil {
		return
	}
	o.failures.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncTerminal counts one row parked in the dead letter table.
func (o *OutboxMetrics) IncTerminal(reason string) {
	if o == nil || o.terminal == nil {
		return
	}
	o.terminal.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveBatch records the duration of one poll batch.
func (o *OutboxMetrics) ObserveBatch(worker string, duration time.Duration) {
	if o == nil || o.batch == nil {
		return
	}
	o.batch.WithLabelValues(normalizeLabel(worker)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
