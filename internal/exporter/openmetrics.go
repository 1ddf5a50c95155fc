package exporter

import (
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricPoint is one gauge sample.
type MetricPoint struct {
	Name   string
	Help   string
	Labels map[string]string
	Value  float64
}

// SnapshotReader reads gauge samples.
type SnapshotReader interface {
	Snapshot() []MetricPoint
}

// NewOpenMetricsHandler returns a handler that renders reader snapshots
// together with every collector registered on registry. A nil registry gets
// a fresh one.
func NewOpenMetricsHandler(reader SnapshotReader, registry *prometheus.Registry) http.Handler {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	registry.MustRegister(&snapshotCollector{reader: reader})

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          registry,
	})
}

type snapshotCollector struct {
	reader SnapshotReader
}

// Describe sends nothing, which marks the collector unchecked so that series
// may appear and disappear between scrapes.
func (c *snapshotCollector) Describe(_ chan<- *prometheus.Desc) {}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.reader == nil {
		return
	}

	for _, point := range c.reader.Snapshot() {
		if point.Name == "" {
			continue
		}

		labelKeys := make([]string, 0, len(point.Labels))
		for key := range point.Labels {
			labelKeys = append(labelKeys, key)
		}
		sort.Strings(labelKeys)

		labelValues := make([]string, 0, len(labelKeys))
		for _, key := range labelKeys {
			labelValues = append(labelValues, point.Labels[key])
		}

		help := point.Help
		if help == "" {
			help = point.Name
		}
		desc := prometheus.NewDesc(point.Name, help, labelKeys, nil)
		metric, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, point.Value, labelValues...)
		if err != nil {
			continue
		}
		ch <- metric
	}
}
