package metrics

import (
	"fmt"
	"time"
)

// OpTotals holds cumulative counters for one operation type.
type OpTotals struct {
	Count     int64            `json:"count"`
	Successes int64            `json:"successes"`
	Failures  int64            `json:"failures"`
	Bytes     int64            `json:"bytes"`
	Errors    map[string]int64 `json:"errors,omitempty"`
	Hist      *Histogram       `json:"histogram"`
}

// WorkerSnapshot is one worker's cumulative view of itself at a point in
// time: totals since the worker started, never deltas. Losing any number of
// consecutive snapshots therefore loses freshness only; the next snapshot
// still carries the full cumulative truth.
type WorkerSnapshot struct {
	WorkerID string          `json:"worker_id"`
	Seq      uint64          `json:"seq"`
	TakenAt  time.Time       `json:"taken_at"`
	Started  time.Time       `json:"started"`
	Ops      map[Op]OpTotals `json:"ops"`

	// Observability of the pipeline itself, reported by the worker.
	DroppedSnapshots int64 `json:"dropped_snapshots"`
	InvalidRecords   int64 `json:"invalid_records"`

	// Final marks the last snapshot a worker emits before exiting.
	Final bool `json:"final,omitempty"`
}

// Validate checks the structural integrity of a snapshot that crossed an
// untrusted boundary. Locally built snapshots are well-formed by
// construction; decoded ones can carry anything.
func (s WorkerSnapshot) Validate() error {
	if s.WorkerID == "" || s.Seq == 0 {
		return fmt.Errorf("missing worker id or sequence")
	}
	if s.DroppedSnapshots < 0 || s.InvalidRecords < 0 {
		return fmt.Errorf("negative pipeline counters")
	}
	for op, t := range s.Ops {
		if !op.Valid() {
			return fmt.Errorf("unknown operation %q", op)
		}
		if t.Count < 0 || t.Successes < 0 || t.Failures < 0 || t.Bytes < 0 {
			return fmt.Errorf("%s: negative counters", op)
		}
		for kind, n := range t.Errors {
			if n < 0 {
				return fmt.Errorf("%s: negative count for failure kind %q", op, kind)
			}
		}
		if t.Hist != nil && len(t.Hist.Counts) != len(t.Hist.Bounds)+1 {
			return fmt.Errorf("%s: histogram has %d counts for %d bounds",
				op, len(t.Hist.Counts), len(t.Hist.Bounds))
		}
	}
	return nil
}
