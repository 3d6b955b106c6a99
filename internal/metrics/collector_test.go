package metrics_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

type flakyError struct{ kind string }

func (e flakyError) Error() string       { return e.kind }
func (e flakyError) FailureKind() string { return e.kind }

func snapshotFor(t *testing.T, c *metrics.Collector) metrics.WorkerSnapshot {
	t.Helper()
	sink := &captureSink{}
	agg := metrics.NewLocalAggregator(c, sink, time.Hour, testLogger())
	agg.Flush()
	snaps := sink.snaps()
	if len(snaps) != 1 {
		t.Fatalf("expected one snapshot, got %d", len(snaps))
	}
	return snaps[0]
}

func TestCollectorRecordsTotals(t *testing.T) {
	c := metrics.NewCollector("w1", nil)

	c.Record(metrics.OpUpload, 1024, 10*time.Millisecond, nil)
	c.Record(metrics.OpUpload, 2048, 20*time.Millisecond, nil)
	c.Record(metrics.OpUpload, 4096, 30*time.Millisecond, errors.New("boom"))
	c.Record(metrics.OpDownload, 512, 5*time.Millisecond, nil)

	snap := snapshotFor(t, c)

	up := snap.Ops[metrics.OpUpload]
	if up.Count != 3 || up.Successes != 2 || up.Failures != 1 {
		t.Errorf("upload totals wrong: %+v", up)
	}
	if up.Bytes != 3072 {
		t.Errorf("expected upload bytes 3072 (failures excluded), got %d", up.Bytes)
	}
	if got := up.Hist.Count(); got != 3 {
		t.Errorf("expected 3 upload latency samples, got %d", got)
	}

	down := snap.Ops[metrics.OpDownload]
	if down.Count != 1 || down.Successes != 1 {
		t.Errorf("download totals wrong: %+v", down)
	}
	if _, ok := snap.Ops[metrics.OpDelete]; ok {
		t.Error("expected no delete entry for unused op")
	}
}

func TestCollectorInvalidRecords(t *testing.T) {
	c := metrics.NewCollector("w1", nil)

	c.Record(metrics.Op("rename"), 10, time.Millisecond, nil)
	c.Record(metrics.OpUpload, -1, time.Millisecond, nil)
	c.Record(metrics.OpUpload, 10, -time.Millisecond, nil)
	c.Record(metrics.OpUpload, 10, time.Millisecond, nil)

	if got := c.InvalidRecords(); got != 3 {
		t.Errorf("expected 3 invalid records, got %d", got)
	}
	snap := snapshotFor(t, c)
	if snap.Ops[metrics.OpUpload].Count != 1 {
		t.Errorf("invalid records must not be counted: %+v", snap.Ops[metrics.OpUpload])
	}
	if snap.InvalidRecords != 3 {
		t.Errorf("expected snapshot to carry invalid count, got %d", snap.InvalidRecords)
	}
}

func TestCollectorFailureKinds(t *testing.T) {
	c := metrics.NewCollector("w1", nil)

	c.Record(metrics.OpHead, 0, time.Millisecond, flakyError{kind: "NoSuchKey"})
	c.Record(metrics.OpHead, 0, time.Millisecond, flakyError{kind: "NoSuchKey"})
	c.Record(metrics.OpHead, 0, time.Millisecond, flakyError{kind: "SlowDown"})

	snap := snapshotFor(t, c)
	head := snap.Ops[metrics.OpHead]
	if head.Errors["NoSuchKey"] != 2 || head.Errors["SlowDown"] != 1 {
		t.Errorf("unexpected error breakdown: %v", head.Errors)
	}
}

func TestCollectorConcurrentRecording(t *testing.T) {
	c := metrics.NewCollector("w1", nil)

	const goroutines = 16
	const perGoroutine = 500

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			op := metrics.Ops[g%len(metrics.Ops)]
			for i := 0; i < perGoroutine; i++ {
				c.Record(op, 100, time.Millisecond, nil)
			}
		}(g)
	}
	wg.Wait()

	snap := snapshotFor(t, c)
	var total int64
	for _, totals := range snap.Ops {
		total += totals.Count
	}
	if total != goroutines*perGoroutine {
		t.Errorf("expected %d recorded ops, got %d", goroutines*perGoroutine, total)
	}
}
