package transport_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
	"github.com/chopsticks-dev/chopsticks/internal/transport"
)

type recordingApplier struct {
	mu    sync.Mutex
	snaps []metrics.WorkerSnapshot
}

func (a *recordingApplier) Apply(snap metrics.WorkerSnapshot) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snaps = append(a.snaps, snap)
	return true
}

func (a *recordingApplier) applied() []metrics.WorkerSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]metrics.WorkerSnapshot, len(a.snaps))
	copy(out, a.snaps)
	return out
}

func TestInprocDeliversInOrder(t *testing.T) {
	applier := &recordingApplier{}
	tr := transport.NewInproc(applier, 8)
	tr.Start()

	for seq := uint64(1); seq <= 3; seq++ {
		tr.Offer(snapWithSeq(seq))
	}
	tr.Stop()

	snaps := applier.applied()
	if len(snaps) != 3 {
		t.Fatalf("expected 3 applied snapshots, got %d", len(snaps))
	}
	for i, snap := range snaps {
		if snap.Seq != uint64(i+1) {
			t.Errorf("expected seq %d at position %d, got %d", i+1, i, snap.Seq)
		}
	}
}

func TestInprocStopDrainsPending(t *testing.T) {
	applier := &recordingApplier{}
	tr := transport.NewInproc(applier, 8)
	tr.Start()

	// Offer after a tiny settle, then stop immediately: Stop must drain.
	tr.Offer(snapWithSeq(1))
	tr.Offer(snapWithSeq(2))
	tr.Stop()

	if got := len(applier.applied()); got != 2 {
		t.Errorf("expected Stop to drain 2 snapshots, got %d", got)
	}
}

func TestPusherDeliversSnapshot(t *testing.T) {
	received := make(chan metrics.WorkerSnapshot, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != transport.SnapshotsPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		snap, err := transport.DecodeSnapshot(r.Body)
		if err != nil {
			t.Errorf("decode failed: %v", err)
		}
		received <- snap
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := transport.NewPusher(srv.URL, 8, zerolog.Nop())
	p.Start()
	defer p.Stop(time.Second)

	p.Offer(snapWithSeq(42))

	select {
	case snap := <-received:
		if snap.Seq != 42 || snap.WorkerID != "w" {
			t.Errorf("unexpected snapshot %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot never arrived")
	}
	if got := p.Dropped(); got != 0 {
		t.Errorf("expected no drops, got %d", got)
	}
}

func TestPusherCountsSendFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := transport.NewPusher(srv.URL, 8, zerolog.Nop())
	p.Start()
	p.Offer(snapWithSeq(1))
	p.Stop(time.Second)

	if got := p.Dropped(); got != 1 {
		t.Errorf("expected 1 dropped snapshot after rejected send, got %d", got)
	}
}

func TestDecodeSnapshotRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "hello"},
		{"missing worker", `{"seq": 3}`},
		{"missing seq", `{"worker_id": "w"}`},
		{"unknown op", `{"worker_id": "w", "seq": 1, "ops": {"rename": {"count": 1}}}`},
		{"negative count", `{"worker_id": "w", "seq": 1, "ops": {"upload": {"count": -1}}}`},
		{"negative dropped", `{"worker_id": "w", "seq": 1, "dropped_snapshots": -4}`},
		{
			"truncated histogram counts",
			`{"worker_id": "w", "seq": 1, "ops": {"upload": {"count": 1,
				"histogram": {"bounds": [1000000, 2000000], "counts": [1]}}}}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := transport.DecodeSnapshot(strings.NewReader(tc.body)); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}
