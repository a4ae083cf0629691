package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "harvester"

// Collector exposes a ProcessingMetrics as Prometheus counters. Values are
// read at scrape time, so the pipeline never touches the Prometheus registry.
type Collector struct {
	source   *ProcessingMetrics
	counters [numCounters]*prometheus.Desc
	rejects  *prometheus.Desc
	latency  *prometheus.Desc
	calls    *prometheus.Desc
}

// NewCollector wraps m for registration with a prometheus.Registerer.
func NewCollector(m *ProcessingMetrics) *Collector {
	c := &Collector{source: m}
	for i := Counter(0); i < numCounters; i++ {
		c.counters[i] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pipeline", i.String()+"_total"),
			"Pipeline counter "+i.String()+" for the current batch.",
			nil, nil)
	}
	c.rejects = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pipeline", "rejections_total"),
		"Rejected emails by reason.",
		[]string{"reason"}, nil)
	c.latency = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "llm", "latency_seconds_total"),
		"Cumulative time spent waiting on model providers.",
		nil, nil)
	c.calls = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "llm", "calls_total"),
		"Completed model round trips.",
		nil, nil)
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	ch <- c.rejects
	ch <- c.latency
	ch <- c.calls
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()
	for i := Counter(0); i < numCounters; i++ {
		ch <- prometheus.MustNewConstMetric(c.counters[i], prometheus.CounterValue, float64(c.source.Get(i)))
	}
	for _, reason := range snap.SortedReasons() {
		ch <- prometheus.MustNewConstMetric(c.rejects, prometheus.CounterValue,
			float64(snap.RejectReasons[reason]), reason)
	}
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.CounterValue, snap.LLMLatency.Seconds())
	ch <- prometheus.MustNewConstMetric(c.calls, prometheus.CounterValue, float64(snap.LLMCalls))
}
