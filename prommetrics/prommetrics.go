// Package prommetrics exports forest metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	c := prommetrics.New(reg, "hamtree")
//	f, _ := hamtree.Open[uint32](dir, hamtree.WithMetricsCollector(c))
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/hamtree"
)

// Collector implements hamtree.MetricsCollector on Prometheus vectors.
type Collector struct {
	opLatency    *prometheus.HistogramVec
	finds        *prometheus.CounterVec
	saves        prometheus.Counter
	records      prometheus.Counter
	nodes        prometheus.Counter
	deduplicated prometheus.Counter
}

var _ hamtree.MetricsCollector = (*Collector)(nil)

// New creates a collector and registers it with reg. A nil reg registers
// with prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of forest operations",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"op", "status"}),
		finds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finds_total",
			Help:      "Lookups by result",
		}, []string{"result"}),
		saves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Tries saved to the element stash",
		}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_appended_total",
			Help:      "Records appended to the element stash",
		}),
		nodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_saved_total",
			Help:      "Trie nodes written by saves",
		}),
		deduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_deduplicated_total",
			Help:      "Trie nodes that reused an identical run from the same save",
		}),
	}
	reg.MustRegister(c.opLatency, c.finds, c.saves, c.records, c.nodes, c.deduplicated)
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordPush implements hamtree.MetricsCollector.
func (c *Collector) RecordPush(d time.Duration, err error) {
	c.opLatency.WithLabelValues("push", status(err)).Observe(d.Seconds())
}

// RecordFind implements hamtree.MetricsCollector.
func (c *Collector) RecordFind(d time.Duration, found bool, err error) {
	c.opLatency.WithLabelValues("find", status(err)).Observe(d.Seconds())
	switch {
	case err != nil:
		c.finds.WithLabelValues("error").Inc()
	case found:
		c.finds.WithLabelValues("hit").Inc()
	default:
		c.finds.WithLabelValues("miss").Inc()
	}
}

// RecordSave implements hamtree.MetricsCollector.
func (c *Collector) RecordSave(stats hamtree.SaveStats, d time.Duration) {
	c.opLatency.WithLabelValues("save", "success").Observe(d.Seconds())
	c.saves.Inc()
	c.records.Add(float64(stats.Records))
	c.nodes.Add(float64(stats.Nodes))
	c.deduplicated.Add(float64(stats.Deduplicated))
}
