// Package export renders the global metrics view for consumers: a
// Prometheus pull endpoint, a structured JSON export document and a console
// summary. Exporters read the current summary and never mutate aggregator
// state.
package export

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

// SummarySource provides the current global view on demand.
type SummarySource interface {
	Summary(now time.Time) metrics.Summary
}

// PromCollector exposes the global summary as Prometheus metrics. All values
// are emitted as const metrics computed from the summary at scrape time, so
// the collector itself carries no state that could drift from the
// aggregator.
type PromCollector struct {
	src SummarySource

	opsDesc        *prometheus.Desc
	bytesDesc      *prometheus.Desc
	latencyDesc    *prometheus.Desc
	errorsDesc     *prometheus.Desc
	droppedDesc    *prometheus.Desc
	invalidDesc    *prometheus.Desc
	workersDesc    *prometheus.Desc
	partialDesc    *prometheus.Desc
	throughputDesc *prometheus.Desc
}

// NewPromCollector creates a collector reading from src.
func NewPromCollector(src SummarySource) *PromCollector {
	return &PromCollector{
		src: src,
		opsDesc: prometheus.NewDesc(
			"chopsticks_operations_total",
			"Cumulative completed storage operations.",
			[]string{"op", "outcome"}, nil,
		),
		bytesDesc: prometheus.NewDesc(
			"chopsticks_bytes_total",
			"Cumulative bytes transferred by successful operations.",
			[]string{"op"}, nil,
		),
		latencyDesc: prometheus.NewDesc(
			"chopsticks_operation_duration_seconds",
			"Latency distribution per operation type.",
			[]string{"op"}, nil,
		),
		errorsDesc: prometheus.NewDesc(
			"chopsticks_operation_errors_total",
			"Cumulative failures by operation type and failure kind.",
			[]string{"op", "kind"}, nil,
		),
		droppedDesc: prometheus.NewDesc(
			"chopsticks_dropped_snapshots_total",
			"Snapshots dropped in transit, summed across workers.",
			nil, nil,
		),
		invalidDesc: prometheus.NewDesc(
			"chopsticks_invalid_records_total",
			"Malformed operation records discarded, summed across workers.",
			nil, nil,
		),
		workersDesc: prometheus.NewDesc(
			"chopsticks_workers",
			"Known workers by liveness status.",
			[]string{"status"}, nil,
		),
		partialDesc: prometheus.NewDesc(
			"chopsticks_summary_partial",
			"1 when the summary contains stale worker contributions.",
			nil, nil,
		),
		throughputDesc: prometheus.NewDesc(
			"chopsticks_throughput_bytes_per_second",
			"Total bytes over the elapsed run duration.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *PromCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.opsDesc
	ch <- c.bytesDesc
	ch <- c.latencyDesc
	ch <- c.errorsDesc
	ch <- c.droppedDesc
	ch <- c.invalidDesc
	ch <- c.workersDesc
	ch <- c.partialDesc
	ch <- c.throughputDesc
}

// Collect implements prometheus.Collector.
func (c *PromCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Summary(time.Now())

	for _, op := range s.Ops {
		if op.Count == 0 {
			continue
		}
		label := string(op.Op)
		ch <- prometheus.MustNewConstMetric(c.opsDesc, prometheus.CounterValue,
			float64(op.Successes), label, "success")
		ch <- prometheus.MustNewConstMetric(c.opsDesc, prometheus.CounterValue,
			float64(op.Failures), label, "failure")
		ch <- prometheus.MustNewConstMetric(c.bytesDesc, prometheus.CounterValue,
			float64(op.Bytes), label)

		if op.Hist != nil {
			ch <- prometheus.MustNewConstHistogram(c.latencyDesc,
				op.Hist.Count(), op.Hist.Sum.Seconds(), cumulativeBuckets(op.Hist), label)
		}
		for kind, n := range op.Errors {
			ch <- prometheus.MustNewConstMetric(c.errorsDesc, prometheus.CounterValue,
				float64(n), label, kind)
		}
	}

	ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue,
		float64(s.DroppedSnapshots))
	ch <- prometheus.MustNewConstMetric(c.invalidDesc, prometheus.CounterValue,
		float64(s.InvalidRecords))
	ch <- prometheus.MustNewConstMetric(c.throughputDesc, prometheus.GaugeValue, s.Throughput)

	partial := 0.0
	if s.Partial {
		partial = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.partialDesc, prometheus.GaugeValue, partial)

	byStatus := map[metrics.WorkerStatus]int{}
	for _, w := range s.Workers {
		byStatus[w.Status]++
	}
	for _, status := range []metrics.WorkerStatus{metrics.WorkerActive, metrics.WorkerStale, metrics.WorkerFinished} {
		ch <- prometheus.MustNewConstMetric(c.workersDesc, prometheus.GaugeValue,
			float64(byStatus[status]), string(status))
	}
}

// cumulativeBuckets converts the histogram's per-bucket counts into the
// cumulative upper-bound form Prometheus expects. The overflow bucket is
// implied by the total count.
func cumulativeBuckets(h *metrics.Histogram) map[float64]uint64 {
	buckets := make(map[float64]uint64, len(h.Bounds))
	var cum uint64
	for i, bound := range h.Bounds {
		cum += h.Counts[i]
		buckets[bound.Seconds()] = cum
	}
	return buckets
}
