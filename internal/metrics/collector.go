package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Recorder is the hot-path entry point called once per completed storage
// operation. Implementations must be safe for concurrent use and must return
// without performing I/O or blocking on snapshot delivery.
type Recorder interface {
	Record(op Op, size int64, elapsed time.Duration, err error)
}

// Collector records per-operation metrics in a thread-safe manner.
//
// State is sharded by operation type: each shard carries its own mutex,
// counters and histogram, so concurrent clients issuing different operation
// types never contend with each other. Totals are cumulative since start and
// are never reset; snapshots are point-in-time copies.
type Collector struct {
	workerID string
	start    time.Time
	bounds   []time.Duration
	shards   [numOps]opShard

	invalid atomic.Int64
}

type opShard struct {
	mu        sync.Mutex
	count     int64
	successes int64
	failures  int64
	bytes     int64
	errors    map[string]int64
	hist      *Histogram
}

// NewCollector creates a collector for one worker process. A nil bounds
// slice selects DefaultBounds; every worker in a run must use the same
// bounds or cross-worker merging will be refused.
func NewCollector(workerID string, bounds []time.Duration) *Collector {
	if len(bounds) == 0 {
		bounds = DefaultBounds()
	}
	c := &Collector{
		workerID: workerID,
		start:    time.Now(),
		bounds:   bounds,
	}
	for i := range c.shards {
		c.shards[i].errors = make(map[string]int64)
		c.shards[i].hist = NewHistogram(bounds)
	}
	return c
}

// WorkerID returns the id stamped on every snapshot this collector produces.
func (c *Collector) WorkerID() string { return c.workerID }

// Start returns the collector's creation time.
func (c *Collector) Start() time.Time { return c.start }

// Record appends one completed operation. Malformed records (unknown op,
// negative size or duration) are dropped and counted rather than recorded,
// so bad inputs can never corrupt aggregate statistics.
func (c *Collector) Record(op Op, size int64, elapsed time.Duration, err error) {
	idx, ok := opIndex[op]
	if !ok || size < 0 || elapsed < 0 {
		c.invalid.Add(1)
		return
	}

	s := &c.shards[idx]
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.hist.Observe(elapsed)
	if err == nil {
		s.successes++
		s.bytes += size
	} else {
		s.failures++
		s.errors[FailureKind(err)]++
	}
}

// InvalidRecords returns the number of malformed records dropped so far.
func (c *Collector) InvalidRecords() int64 {
	return c.invalid.Load()
}

// totals copies every shard into cumulative per-op totals. Shards are locked
// one at a time; each op's numbers are internally consistent.
func (c *Collector) totals() map[Op]OpTotals {
	out := make(map[Op]OpTotals, len(Ops))
	for _, op := range Ops {
		s := &c.shards[opIndex[op]]
		s.mu.Lock()
		if s.count == 0 {
			s.mu.Unlock()
			continue
		}
		t := OpTotals{
			Count:     s.count,
			Successes: s.successes,
			Failures:  s.failures,
			Bytes:     s.bytes,
			Hist:      s.hist.Clone(),
		}
		if len(s.errors) > 0 {
			t.Errors = make(map[string]int64, len(s.errors))
			for k, v := range s.errors {
				t.Errors[k] = v
			}
		}
		s.mu.Unlock()
		out[op] = t
	}
	return out
}
