// Package metrics exposes Prometheus collectors fed by lifecycle hooks and the queue consumer.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/aretw0/triage/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "triage"

// Metrics owns a private registry so several instances (and tests) do not collide.
type Metrics struct {
	registry *prometheus.Registry

	nodeVisits    *prometheus.CounterVec
	nodeDuration  *prometheus.HistogramVec
	nodeErrors    *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	routes        *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	deliveryTimes *prometheus.HistogramVec
}

// New creates and registers the collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Total number of node invocations",
		}, []string{"node"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Duration of node invocations in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"node"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_errors_total",
			Help:      "Total number of failed node invocations",
		}, []string{"node"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		}, []string{"tool", "status"}), // status: success, error
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Router decisions by source node and kind",
		}, []string{"from", "decision"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Queue deliveries by result",
		}, []string{"queue", "result"}),
		deliveryTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent handling one queue delivery",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"queue"}),
	}

	m.registry.MustRegister(
		m.nodeVisits, m.nodeDuration, m.nodeErrors,
		m.toolCalls, m.routes,
		m.deliveries, m.deliveryTimes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Hooks returns lifecycle hooks recording node, tool and route metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(e.Node).Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeDuration.WithLabelValues(e.Node).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.nodeErrors.WithLabelValues(e.Node).Inc()
			}
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			status := "success"
			if e.IsError {
				status = "error"
			}
			m.toolCalls.WithLabelValues(e.Tool, status).Inc()
		},
		OnRoute: func(_ context.Context, e *domain.RouteEvent) {
			m.routes.WithLabelValues(e.From, string(e.Decision.Kind)).Inc()
		},
	}
}

// ObserveDelivery records one processed queue delivery.
func (m *Metrics) ObserveDelivery(queue, result string, elapsed time.Duration) {
	m.deliveries.WithLabelValues(queue, result).Inc()
	m.deliveryTimes.WithLabelValues(queue).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
