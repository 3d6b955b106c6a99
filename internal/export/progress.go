package export

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// ProgressReporter displays a single-line live view of the run.
type ProgressReporter struct {
	src      SummarySource
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval.
func NewProgressReporter(src SummarySource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		src:      src,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			s := p.src.Summary(time.Now())
			line := fmt.Sprintf("\rOps: %d | OK: %d | Failed: %d | Ops/s: %.1f | %s/s",
				s.TotalOps, s.TotalSuccesses, s.TotalFailures, s.OpsPerSec, formatBytes(s.Throughput))
			if s.Partial {
				line += " | PARTIAL"
			}
			fmt.Fprint(p.writer, line)
		case <-p.done:
			return
		}
	}
}
