package export_test

import (
	"time"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

// staticSource serves a pre-built summary built the same way the coordinator
// would build one, so exporter tests don't depend on timing.
type staticSource struct {
	agg *metrics.GlobalAggregator
}

func newStaticSource(snaps ...metrics.WorkerSnapshot) *staticSource {
	agg := metrics.NewGlobalAggregator(time.Minute)
	for _, snap := range snaps {
		agg.Apply(snap)
	}
	return &staticSource{agg: agg}
}

func (s *staticSource) Summary(now time.Time) metrics.Summary {
	return s.agg.Summary(now)
}

func sampleSnapshot(worker string, seq uint64) metrics.WorkerSnapshot {
	h := metrics.NewHistogram(nil)
	for i := 0; i < 100; i++ {
		h.Observe(time.Duration(1+i) * time.Millisecond)
	}
	hd := metrics.NewHistogram(nil)
	hd.Observe(3 * time.Millisecond)
	hd.Observe(7 * time.Millisecond)

	return metrics.WorkerSnapshot{
		WorkerID: worker,
		Seq:      seq,
		TakenAt:  time.Now(),
		Ops: map[metrics.Op]metrics.OpTotals{
			metrics.OpUpload: {
				Count:     100,
				Successes: 98,
				Failures:  2,
				Bytes:     1 << 20,
				Errors:    map[string]int64{"SlowDown": 2},
				Hist:      h,
			},
			metrics.OpDownload: {
				Count:     2,
				Successes: 2,
				Bytes:     2048,
				Hist:      hd,
			},
		},
		DroppedSnapshots: 3,
		InvalidRecords:   1,
	}
}
