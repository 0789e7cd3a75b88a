// Package telemetry wires request outcomes, cache performance, and
// WebSocket health into Prometheus metrics. It is the sole consumer of
// outcome.Tag: every resolved request emits exactly one outcome tag.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"

	"xchclient/internal/net/outcome"
)

// Registry holds every Prometheus metric this client exposes.
type Registry struct {
	RequestDuration *prometheus.HistogramVec
	RequestOutcomes *prometheus.CounterVec

	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	WSLatency      *prometheus.HistogramVec
	WSReconnects   *prometheus.CounterVec
	WSDroppedEvents *prometheus.CounterVec

	RateLimitHits *prometheus.CounterVec
	CircuitState  *prometheus.GaugeVec
}

// NewRegistry constructs and registers the full metric set against reg.
// Pass prometheus.NewRegistry() in tests to avoid colliding with the
// global DefaultRegisterer across repeated test runs.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xchclient_request_duration_seconds",
				Help:    "Duration of each REST request, labeled by endpoint and outcome.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "outcome"},
		),
		RequestOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xchclient_request_outcomes_total",
				Help: "Total requests by endpoint and outcome tag.",
			},
			[]string{"endpoint", "outcome"},
		),
		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "xchclient_cache_hit_ratio",
				Help: "Current cache hit ratio (0.0 to 1.0).",
			},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xchclient_cache_hits_total",
				Help: "Total cache hits by cache key prefix (e.g. ticker, book).",
			},
			[]string{"cache"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xchclient_cache_misses_total",
				Help: "Total cache misses by cache key prefix.",
			},
			[]string{"cache"},
		),
		WSLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xchclient_ws_latency_ms",
				Help:    "WebSocket round-trip ping latency in milliseconds.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
			},
			[]string{"channel"},
		),
		WSReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xchclient_ws_reconnects_total",
				Help: "Total WebSocket reconnect attempts.",
			},
			[]string{"reason"},
		),
		WSDroppedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xchclient_ws_dropped_events_total",
				Help: "Total WebSocket events dropped under backpressure (DropOldest).",
			},
			[]string{"channel"},
		),
		RateLimitHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xchclient_rate_limit_rejections_total",
				Help: "Total requests rejected by the local rate limiter, by scope.",
			},
			[]string{"scope"},
		),
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "xchclient_circuit_state",
				Help: "Circuit breaker state by scope (0=closed, 1=half-open, 2=open).",
			},
			[]string{"scope"},
		),
	}

	reg.MustRegister(
		r.RequestDuration,
		r.RequestOutcomes,
		r.CacheHitRatio,
		r.CacheHits,
		r.CacheMisses,
		r.WSLatency,
		r.WSReconnects,
		r.WSDroppedEvents,
		r.RateLimitHits,
		r.CircuitState,
	)
	return r
}

// ObserveRequest records the terminal outcome of one REST request. It
// satisfies client.ObserveFunc's (tag, elapsed) shape once bound to an
// endpoint label by the caller.
func (r *Registry) ObserveRequest(endpoint string, tag outcome.Tag, elapsed time.Duration) {
	r.RequestDuration.WithLabelValues(endpoint, string(tag)).Observe(elapsed.Seconds())
	r.RequestOutcomes.WithLabelValues(endpoint, string(tag)).Inc()

	if tag != outcome.Success {
		log.Warn().Str("endpoint", endpoint).Str("outcome", string(tag)).Dur("elapsed", elapsed).Msg("request did not succeed")
	}
}

// RecordCacheHit records a hit and recomputes the rolling hit ratio.
func (r *Registry) RecordCacheHit(cache string) {
	r.CacheHits.WithLabelValues(cache).Inc()
	r.refreshHitRatio(cache)
}

// RecordCacheMiss records a miss and recomputes the rolling hit ratio.
func (r *Registry) RecordCacheMiss(cache string) {
	r.CacheMisses.WithLabelValues(cache).Inc()
	r.refreshHitRatio(cache)
}

func (r *Registry) refreshHitRatio(cache string) {
	hits := counterValue(r.CacheHits.WithLabelValues(cache))
	misses := counterValue(r.CacheMisses.WithLabelValues(cache))
	total := hits + misses
	if total > 0 {
		r.CacheHitRatio.Set(hits / total)
	}
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// RecordWSLatency records one WebSocket ping round-trip.
func (r *Registry) RecordWSLatency(channel string, latencyMs float64) {
	r.WSLatency.WithLabelValues(channel).Observe(latencyMs)
}

// RecordWSReconnect records one reconnect attempt, labeled by the reason
// the prior connection dropped (e.g. "read_error", "ping_failed").
func (r *Registry) RecordWSReconnect(reason string) {
	r.WSReconnects.WithLabelValues(reason).Inc()
}

// RecordWSDrop records one event dropped under backpressure.
func (r *Registry) RecordWSDrop(channel string) {
	r.WSDroppedEvents.WithLabelValues(channel).Inc()
}

// RecordRateLimitHit records a request rejected by the rate limiter.
func (r *Registry) RecordRateLimitHit(scope string) {
	r.RateLimitHits.WithLabelValues(scope).Inc()
}

// CircuitGaugeValue maps a circuit breaker's textual state to the gauge
// encoding documented on CircuitState.
func CircuitGaugeValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}

// SetCircuitState records the current state of a scope's circuit breaker.
func (r *Registry) SetCircuitState(scope, state string) {
	r.CircuitState.WithLabelValues(scope).Set(CircuitGaugeValue(state))
}

// Handler returns the HTTP handler serving the process-wide default
// Prometheus registry in exposition format; metrics registered against a
// custom registry are not served by it.
func Handler() http.Handler {
	return promhttp.Handler()
}
