package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for the cache request counter
const (
	ResultHit  = "hit"
	ResultMiss = "miss"
)

// Metrics holds the Prometheus instruments for the client core.
type Metrics struct {
	apiCalls     prometheus.Counter
	apiErrors    *prometheus.CounterVec
	apiLatency   prometheus.Histogram
	cacheOps     *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

var (
	global *Metrics
	once   sync.Once
)

// Default returns the process-wide metrics instance, registering the
// collectors exactly once.
func Default() *Metrics {
	once.Do(func() {
		global = &Metrics{
			apiCalls: promauto.NewCounter(prometheus.CounterOpts{
				Name: "llm_api_calls_total",
				Help: "Total number of upstream API calls attempted",
			}),
			apiErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_api_errors_total",
					Help: "Total number of failed API calls by error kind",
				},
				[]string{"kind"},
			),
			apiLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "llm_api_latency_seconds",
				Help:    "Latency of upstream API calls",
				Buckets: prometheus.DefBuckets,
			}),
			cacheOps: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_cache_requests_total",
					Help: "Cache lookups by tier and result",
				},
				[]string{"tier", "result"},
			),
			breakerState: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "circuit_breaker_state",
					Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"name"},
			),
		}
	})
	return global
}

// RecordCall counts one transport attempt and observes its latency.
func (m *Metrics) RecordCall(d time.Duration) {
	m.apiCalls.Inc()
	m.apiLatency.Observe(d.Seconds())
}

// RecordError counts one failed call under its error kind.
func (m *Metrics) RecordError(kind string) {
	m.apiErrors.WithLabelValues(kind).Inc()
}

// RecordCacheLookup counts a cache lookup result for a tier.
func (m *Metrics) RecordCacheLookup(tier string, hit bool) {
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	m.cacheOps.WithLabelValues(tier, result).Inc()
}

// SetBreakerState publishes a breaker state transition.
func (m *Metrics) SetBreakerState(name string, state float64) {
	m.breakerState.WithLabelValues(name).Set(state)
}
