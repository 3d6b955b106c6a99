package transport

import (
	"context"
	"sync"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

// Applier consumes snapshots on the coordinator side.
type Applier interface {
	Apply(snap metrics.WorkerSnapshot) bool
}

// Inproc hands snapshots to a coordinator living in the same process. It
// still routes through the bounded queue so single-process runs exercise the
// exact drop-oldest semantics of a distributed run.
type Inproc struct {
	q       *Queue
	applier Applier

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	finished  chan struct{}
}

// NewInproc creates an in-process transport delivering into applier.
func NewInproc(applier Applier, queueSize int) *Inproc {
	return &Inproc{
		q:        NewQueue(queueSize),
		applier:  applier,
		finished: make(chan struct{}),
	}
}

// Offer implements metrics.Sink.
func (t *Inproc) Offer(snap metrics.WorkerSnapshot) { t.q.Offer(snap) }

// Dropped implements metrics.Sink.
func (t *Inproc) Dropped() int64 { return t.q.Dropped() }

// Start begins draining the queue into the applier.
func (t *Inproc) Start() {
	t.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		go func() {
			defer close(t.finished)
			for {
				snap, err := t.q.Pop(ctx)
				if err != nil {
					return
				}
				t.applier.Apply(snap)
			}
		}()
	})
}

// Stop drains any pending snapshots synchronously and halts the loop, so a
// final flush offered just before shutdown still reaches the aggregator.
func (t *Inproc) Stop() {
	t.stopOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
			<-t.finished
		}
		for {
			snap, ok := t.q.TryPop()
			if !ok {
				return
			}
			t.applier.Apply(snap)
		}
	})
}
