package metrics

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Sink accepts snapshots for delivery to the coordinator. Offer must never
// block: a full or unreachable sink drops the snapshot and accounts for it
// via Dropped.
type Sink interface {
	Offer(snap WorkerSnapshot)
	Dropped() int64
}

// LocalAggregator periodically condenses a Collector's live counters into a
// cumulative WorkerSnapshot and hands it to the transport sink. It runs on
// its own timer, fully decoupled from the operation tasks feeding the
// collector.
type LocalAggregator struct {
	collector *Collector
	sink      Sink
	interval  time.Duration
	log       zerolog.Logger

	seq      uint64
	active   int32
	done     chan struct{}
	finished chan struct{}
}

// NewLocalAggregator creates a flush loop over collector delivering to sink
// every interval.
func NewLocalAggregator(collector *Collector, sink Sink, interval time.Duration, log zerolog.Logger) *LocalAggregator {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &LocalAggregator{
		collector: collector,
		sink:      sink,
		interval:  interval,
		log:       log,
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

// Start begins the flush loop in a background goroutine.
func (a *LocalAggregator) Start() {
	if !atomic.CompareAndSwapInt32(&a.active, 0, 1) {
		return // already running
	}
	go a.run()
}

// Stop halts the flush loop and performs one final flush so the coordinator
// sees the worker's closing totals.
func (a *LocalAggregator) Stop() {
	if atomic.CompareAndSwapInt32(&a.active, 1, 0) {
		close(a.done)
		<-a.finished
		a.flush(true)
	}
}

// Flush captures and offers a snapshot immediately, outside the timer.
func (a *LocalAggregator) Flush() {
	a.flush(false)
}

func (a *LocalAggregator) run() {
	defer close(a.finished)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.flush(false)
		case <-a.done:
			return
		}
	}
}

func (a *LocalAggregator) flush(final bool) {
	snap := WorkerSnapshot{
		WorkerID:         a.collector.WorkerID(),
		Seq:              atomic.AddUint64(&a.seq, 1),
		TakenAt:          time.Now(),
		Started:          a.collector.Start(),
		Ops:              a.collector.totals(),
		DroppedSnapshots: a.sink.Dropped(),
		InvalidRecords:   a.collector.InvalidRecords(),
		Final:            final,
	}
	a.sink.Offer(snap)
	a.log.Debug().
		Str("worker", snap.WorkerID).
		Uint64("seq", snap.Seq).
		Bool("final", final).
		Msg("snapshot flushed")
}
