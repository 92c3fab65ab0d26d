// Package metrics exposes Prometheus metrics for the daemon. Event-derived
// metrics are collected by wrapping the event emitter, so neither the
// orchestrator nor the hub knows metrics exist.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/billowhq/billow/pkg/events"
	"github.com/billowhq/billow/pkg/store"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsStartedTotal  prometheus.Counter
	MessagesTotal      *prometheus.CounterVec
	StreamChunksTotal  prometheus.Counter

	// Tool metrics
	ToolExecutionsTotal *prometheus.CounterVec

	// Approval metrics
	ApprovalsPendingTotal prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		TurnsStartedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billow_turns_started_total",
				Help: "Total number of agent turns started",
			},
		),
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billow_messages_total",
				Help: "Total number of transcript messages persisted",
			},
			[]string{"content_type"},
		),
		StreamChunksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billow_stream_chunks_total",
				Help: "Total number of streamed text chunks delivered",
			},
		),

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billow_tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name"},
		),

		ApprovalsPendingTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billow_approvals_pending_total",
				Help: "Total number of approval requests announced",
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billow_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
	}

	m.registerMetrics()
	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.TurnsStartedTotal)
	m.registry.MustRegister(m.MessagesTotal)
	m.registry.MustRegister(m.StreamChunksTotal)
	m.registry.MustRegister(m.ToolExecutionsTotal)
	m.registry.MustRegister(m.ApprovalsPendingTotal)
	m.registry.MustRegister(m.HTTPRequestsTotal)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe wraps an emitter so event traffic updates the metrics before being
// forwarded unchanged
func (m *Metrics) Observe(next events.Emitter) events.Emitter {
	return &observer{metrics: m, next: next}
}

type observer struct {
	metrics *Metrics
	next    events.Emitter
}

func (o *observer) Emit(room, event string, payload any) {
	switch event {
	case events.AgentTyping:
		o.metrics.TurnsStartedTotal.Inc()
	case events.MessageStream:
		if p, ok := payload.(events.StreamPayload); ok && !p.IsComplete {
			o.metrics.StreamChunksTotal.Inc()
		}
	case events.ToolExecution:
		if p, ok := payload.(events.ToolExecutionPayload); ok && p.Status == "completed" {
			o.metrics.ToolExecutionsTotal.WithLabelValues(p.ToolName).Inc()
		}
	case events.ApprovalPending:
		o.metrics.ApprovalsPendingTotal.Inc()
	case events.NewMessage:
		contentType := "unknown"
		if msg, ok := payload.(*store.Message); ok {
			contentType = string(msg.ContentType)
		}
		o.metrics.MessagesTotal.WithLabelValues(contentType).Inc()
	}

	o.next.Emit(room, event, payload)
}
