package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "askroom"

// Vote outcomes recorded by RecordVote.
const (
	VoteOutcomeCast      = "cast"
	VoteOutcomeDuplicate = "duplicate"
	VoteOutcomeRetracted = "retracted"
	VoteOutcomeNoop      = "noop"
)

// Registry owns the collectors exported on /metrics.
type Registry struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	votes           *prometheus.CounterVec
	streams         prometheus.Gauge
}

// NewRegistry registers the HTTP, vote ledger and realtime collectors plus the Go runtime collectors.
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()
	metrics := &Registry{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "vote_operations_total",
			Help:      "Vote ledger operations by outcome.",
		}, []string{"outcome"}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "open_streams",
			Help:      "Currently open realtime event streams.",
		}),
	}
	registry.MustRegister(
		metrics.requests,
		metrics.requestDuration,
		metrics.votes,
		metrics.streams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics
}

// ObserveRequest records one served HTTP request.
func (r *Registry) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordVote counts a vote ledger outcome.
func (r *Registry) RecordVote(outcome string) {
	if r == nil {
		return
	}
	r.votes.WithLabelValues(outcome).Inc()
}

// StreamOpened tracks a realtime subscriber; the returned func marks it closed.
func (r *Registry) StreamOpened() func() {
	if r == nil {
		return func() {}
	}
	r.streams.Inc()
	return r.streams.Dec
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
