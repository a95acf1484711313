// Package metrics exposes game counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spotbot"

// Label values shared by callers.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultConflict = "conflict"
	ResultError    = "error"
)

// Recorder owns every collector. A nil *Recorder is a valid no-op so
// services can run without metrics.
type Recorder struct {
	registry *prometheus.Registry

	spots         *prometheus.CounterVec
	eliminations  *prometheus.CounterVec
	announcements *prometheus.CounterVec
	inbound       *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	rollovers     prometheus.Counter
	bonusPairs    prometheus.Counter
	wsClients     prometheus.Gauge
}

// NewRecorder registers collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		spots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spot_targets_total",
			Help:      "Spot targets processed, by result.",
		}, []string{"result"}),
		eliminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elimination_claims_total",
			Help:      "Elimination claims processed, by result.",
		}, []string{"result"}),
		announcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announcements_total",
			Help:      "Announcements attempted, by result.",
		}, []string{"result"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Inbound bus events handled, by type and result.",
		}, []string{"type", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "season_rollovers_total",
			Help:      "Season rollovers executed.",
		}),
		bonusPairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bonus_pairs_generated_total",
			Help:      "Bonus pairs drawn across all scopes.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected announcement subscribers.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.spots,
		r.eliminations,
		r.announcements,
		r.inbound,
		r.httpRequests,
		r.httpLatency,
		r.rollovers,
		r.bonusPairs,
		r.wsClients,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) RecordSpot(result string) {
	if r == nil {
		return
	}
	r.spots.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordElimination(result string) {
	if r == nil {
		return
	}
	r.eliminations.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordAnnouncement(err error) {
	if r == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	r.announcements.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordInbound(eventType, result string) {
	if r == nil {
		return
	}
	r.inbound.WithLabelValues(eventType, result).Inc()
}

// RecordHTTPRequest tracks one served request. route should be the
// pattern, not the raw path.
func (r *Recorder) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, http.StatusText(status)).Inc()
	r.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (r *Recorder) RecordRollover() {
	if r == nil {
		return
	}
	r.rollovers.Inc()
}

func (r *Recorder) RecordBonusPair() {
	if r == nil {
		return
	}
	r.bonusPairs.Inc()
}

func (r *Recorder) SetWebsocketClients(n int) {
	if r == nil {
		return
	}
	r.wsClients.Set(float64(n))
}
