package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

// SnapshotsPath is the coordinator endpoint snapshots are POSTed to.
const SnapshotsPath = "/v1/snapshots"

const pushTimeout = 5 * time.Second

// Pusher ships snapshots to a remote coordinator over HTTP. Each snapshot is
// sent at most once: a failed POST drops the snapshot and advances the drop
// counter instead of retrying, because the next cumulative snapshot
// supersedes it anyway.
type Pusher struct {
	q      *Queue
	url    string
	client *http.Client
	log    zerolog.Logger

	sendFailures atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	finished  chan struct{}
}

// NewPusher creates an HTTP push transport targeting the coordinator at
// baseURL.
func NewPusher(baseURL string, queueSize int, log zerolog.Logger) *Pusher {
	return &Pusher{
		q:        NewQueue(queueSize),
		url:      baseURL + SnapshotsPath,
		client:   &http.Client{Timeout: pushTimeout},
		log:      log,
		finished: make(chan struct{}),
	}
}

// Offer implements metrics.Sink.
func (p *Pusher) Offer(snap metrics.WorkerSnapshot) { p.q.Offer(snap) }

// Dropped implements metrics.Sink. It counts queue evictions and failed
// sends together: either way a snapshot did not reach the coordinator.
func (p *Pusher) Dropped() int64 {
	return p.q.Dropped() + p.sendFailures.Load()
}

// Start begins the sender loop.
func (p *Pusher) Start() {
	p.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		go func() {
			defer close(p.finished)
			for {
				snap, err := p.q.Pop(ctx)
				if err != nil {
					return
				}
				p.send(ctx, snap)
			}
		}()
	})
}

// Stop halts the sender loop, then attempts one last synchronous delivery of
// anything still queued (the final flush lands here during shutdown).
func (p *Pusher) Stop(grace time.Duration) {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
			<-p.finished
		}
		ctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		for {
			snap, ok := p.q.TryPop()
			if !ok {
				return
			}
			p.send(ctx, snap)
		}
	})
}

func (p *Pusher) send(ctx context.Context, snap metrics.WorkerSnapshot) {
	body, err := json.Marshal(snap)
	if err != nil {
		p.sendFailures.Add(1)
		p.log.Error().Err(err).Msg("snapshot encode failed")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		p.sendFailures.Add(1)
		p.log.Error().Err(err).Msg("snapshot request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.sendFailures.Add(1)
		p.log.Warn().Err(err).Uint64("seq", snap.Seq).Msg("snapshot send failed, dropping")
		return
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		p.sendFailures.Add(1)
		p.log.Warn().
			Int("status", resp.StatusCode).
			Uint64("seq", snap.Seq).
			Msg("coordinator rejected snapshot, dropping")
	}
}

// DecodeSnapshot reads one snapshot from an HTTP request body on the
// coordinator side.
func DecodeSnapshot(r io.Reader) (metrics.WorkerSnapshot, error) {
	var snap metrics.WorkerSnapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return metrics.WorkerSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return metrics.WorkerSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
