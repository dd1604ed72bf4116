package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	queriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ragroute_queries_total",
		Help: "Routed queries by agent decision",
	}, []string{"decision"})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ragroute_cache_lookups_total",
		Help: "Cache lookups by outcome (hit_exact/hit_semantic/miss/error)",
	}, []string{"outcome"})

	queryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ragroute_query_latency_ms",
		Help:    "End-to-end query latency in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1500, 3000, 6000, 12000},
	}, []string{"mode"})

	stageLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ragroute_stage_latency_ms",
		Help:    "Latency of one pipeline stage in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1500, 3000},
	}, []string{"stage"})

	contextQuality = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ragroute_context_quality_score",
		Help:    "Overall context quality score distribution",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(queriesTotal, cacheLookups, queryLatency, stageLatency, contextQuality)
	})
}

// IncDecision counts one routed query by its final decision tag.
func IncDecision(decision string) {
	ensureRegistered()
	queriesTotal.WithLabelValues(decision).Inc()
}

// IncCacheLookup counts one cache lookup outcome.
func IncCacheLookup(outcome string) {
	ensureRegistered()
	cacheLookups.WithLabelValues(outcome).Inc()
}

// ObserveQuery records end-to-end latency for the answered mode.
func ObserveQuery(mode string, start time.Time) {
	ensureRegistered()
	queryLatency.WithLabelValues(mode).Observe(float64(time.Since(start).Milliseconds()))
}

// ObserveStage records the latency of one pipeline stage.
func ObserveStage(stage string, ms int64) {
	ensureRegistered()
	stageLatency.WithLabelValues(stage).Observe(float64(ms))
}

// ObserveQuality records the overall context quality score.
func ObserveQuality(score float64) {
	ensureRegistered()
	if score >= 0 {
		contextQuality.Observe(score)
	}
}

// Handler serves the default registry over HTTP.
func Handler() http.Handler {
	ensureRegistered()
	return promhttp.Handler()
}
