package metrics

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Liveness periodically sweeps the global aggregator so workers crossing the
// silence window are marked stale (and logged) as it happens, not only when
// a summary is read.
type Liveness struct {
	agg      *GlobalAggregator
	interval time.Duration
	log      zerolog.Logger

	active   int32
	done     chan struct{}
	finished chan struct{}
}

// NewLiveness creates a monitor sweeping agg every interval.
func NewLiveness(agg *GlobalAggregator, interval time.Duration, log zerolog.Logger) *Liveness {
	if interval <= 0 {
		interval = time.Second
	}
	return &Liveness{
		agg:      agg,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Start begins sweeping in a background goroutine.
func (l *Liveness) Start() {
	if !atomic.CompareAndSwapInt32(&l.active, 0, 1) {
		return
	}
	go l.run()
}

// Stop halts the sweep loop.
func (l *Liveness) Stop() {
	if atomic.CompareAndSwapInt32(&l.active, 1, 0) {
		close(l.done)
		<-l.finished
	}
}

func (l *Liveness) run() {
	defer close(l.finished)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, id := range l.agg.Sweep(time.Now()) {
				l.log.Warn().Str("worker", id).Msg("worker went silent, marking stale")
			}
		case <-l.done:
			return
		}
	}
}
