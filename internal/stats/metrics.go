package stats

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	aggregations    *prometheus.CounterVec
	duration        prometheus.Histogram
	upstreamCalls   *prometheus.CounterVec
	pendingRepos    prometheus.Counter
	cacheOperations *prometheus.CounterVec
}

// NewMetrics creates and registers pipeline metrics.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "github_stats_aggregations_total",
			Help: "Single-user aggregations by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "github_stats_aggregation_duration_seconds",
			Help:    "Wall time of single-user aggregations.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "github_stats_upstream_calls_total",
			Help: "Upstream GitHub calls issued by the aggregator, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		pendingRepos: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "github_stats_contributor_stats_pending_total",
			Help: "Repositories whose contributor statistics were still being computed upstream.",
		}),
		cacheOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "github_stats_cache_operations_total",
			Help: "Stats cache lookups and stores by result.",
		}, []string{"result"}),
	}

	if registerer == nil {
		return metrics, nil
	}
	collectors := []prometheus.Collector{
		metrics.aggregations,
		metrics.duration,
		metrics.upstreamCalls,
		metrics.pendingRepos,
		metrics.cacheOperations,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, fmt.Errorf("register stats metrics: %w", err)
		}
	}
	return metrics, nil
}

func (m *Metrics) observeAggregation(started time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.Observe(time.Since(started).Seconds())
	m.aggregations.WithLabelValues(outcomeLabel(err)).Inc()
}

func (m *Metrics) observeCall(operation string, err error) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(operation, outcomeLabel(err)).Inc()
}

func (m *Metrics) observePending() {
	if m == nil {
		return
	}
	m.pendingRepos.Inc()
}

func (m *Metrics) observeCache(result string) {
	if m == nil {
		return
	}
	m.cacheOperations.WithLabelValues(result).Inc()
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
