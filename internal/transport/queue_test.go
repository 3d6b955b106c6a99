package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
	"github.com/chopsticks-dev/chopsticks/internal/transport"
)

func snapWithSeq(seq uint64) metrics.WorkerSnapshot {
	return metrics.WorkerSnapshot{WorkerID: "w", Seq: seq, TakenAt: time.Now()}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := transport.NewQueue(3)

	for seq := uint64(1); seq <= 5; seq++ {
		q.Offer(snapWithSeq(seq))
	}

	if got := q.Dropped(); got != 2 {
		t.Errorf("expected 2 drops, got %d", got)
	}
	if got := q.Len(); got != 3 {
		t.Errorf("expected 3 pending, got %d", got)
	}

	// Oldest survivors are 3, 4, 5.
	for want := uint64(3); want <= 5; want++ {
		snap, ok := q.TryPop()
		if !ok {
			t.Fatalf("expected pending snapshot %d", want)
		}
		if snap.Seq != want {
			t.Errorf("expected seq %d, got %d", want, snap.Seq)
		}
	}
}

func TestQueuePopBlocksUntilOffer(t *testing.T) {
	q := transport.NewQueue(4)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Offer(snapWithSeq(1))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	snap, err := q.Pop(ctx)
	if err != nil {
		t.Fatalf("pop failed: %v", err)
	}
	if snap.Seq != 1 {
		t.Errorf("expected seq 1, got %d", snap.Seq)
	}
}

func TestQueuePopHonorsContext(t *testing.T) {
	q := transport.NewQueue(4)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Pop(ctx); err == nil {
		t.Error("expected context error from Pop on empty queue")
	}
}
