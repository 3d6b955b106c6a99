// Package transport carries worker snapshots to the coordinator without ever
// applying backpressure onto the recording hot path. Delivery is
// at-least-once; duplicates and reordering are resolved downstream by the
// global aggregator's sequence check, not here.
package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

// DefaultQueueSize bounds the per-worker outbound snapshot queue.
const DefaultQueueSize = 16

// Queue is a bounded drop-oldest buffer of snapshots. Offer never blocks:
// when the queue is full the oldest pending snapshot is discarded and the
// drop counter advances, so a slow or unreachable coordinator degrades
// observability, never load generation. The drop counter itself rides along
// inside later snapshots, making transport degradation visible downstream.
type Queue struct {
	mu      sync.Mutex
	buf     []metrics.WorkerSnapshot
	size    int
	dropped atomic.Int64
	ready   chan struct{}
}

// NewQueue creates a queue holding at most size pending snapshots.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		size:  size,
		ready: make(chan struct{}, 1),
	}
}

// Offer enqueues snap, evicting the oldest pending snapshot when full.
func (q *Queue) Offer(snap metrics.WorkerSnapshot) {
	q.mu.Lock()
	if len(q.buf) >= q.size {
		q.buf = q.buf[1:]
		q.dropped.Add(1)
	}
	q.buf = append(q.buf, snap)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest pending snapshot, blocking until one is
// available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (metrics.WorkerSnapshot, error) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			snap := q.buf[0]
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return snap, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return metrics.WorkerSnapshot{}, ctx.Err()
		}
	}
}

// TryPop removes the oldest pending snapshot without blocking.
func (q *Queue) TryPop() (metrics.WorkerSnapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return metrics.WorkerSnapshot{}, false
	}
	snap := q.buf[0]
	q.buf = q.buf[1:]
	return snap, true
}

// Len returns the number of pending snapshots.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Dropped returns the number of snapshots discarded because the queue was
// full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
