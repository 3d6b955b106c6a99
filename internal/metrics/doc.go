// Package metrics implements the measurement core of chopsticks: low
// overhead per-operation recording inside each worker and convergent
// aggregation of worker snapshots into one global view.
//
// # Recording
//
// The [Collector] is the hot-path entry point, called once per completed
// storage operation:
//
//	collector := metrics.NewCollector(workerID, nil)
//	collector.Record(metrics.OpUpload, size, elapsed, err)
//
// State is sharded by operation type and recording never performs I/O, so
// measurement does not perturb the workload being measured.
//
// # Snapshots
//
// A [LocalAggregator] periodically condenses the collector into a
// [WorkerSnapshot]: cumulative totals since the worker started, stamped with
// a strictly increasing sequence number. Because snapshots are cumulative,
// losing any number of them in transit loses freshness but never data.
//
// # Aggregation
//
// The [GlobalAggregator] keeps the latest accepted snapshot per worker and
// merges them on demand into a [Summary]. Apply discards anything whose
// sequence number does not advance, making the reduction idempotent,
// commutative and tolerant of duplicate or out-of-order delivery. Histograms
// merge exactly because every worker shares the same bucket boundaries.
//
// # Liveness
//
// [Liveness] watches snapshot arrival times and marks silent workers stale.
// Stale workers keep contributing their last known totals; the summary is
// flagged partial so consumers can judge completeness.
package metrics
