package metrics

import (
	"sort"
	"sync"
	"time"
)

// WorkerStatus describes a worker's liveness as seen by the coordinator.
type WorkerStatus string

const (
	WorkerActive   WorkerStatus = "active"
	WorkerStale    WorkerStatus = "stale"
	WorkerFinished WorkerStatus = "finished"
)

// WorkerState is the liveness record kept per known worker.
type WorkerState struct {
	ID       string       `json:"id"`
	LastSeq  uint64       `json:"last_seq"`
	LastSeen time.Time    `json:"last_seen"`
	Status   WorkerStatus `json:"status"`
}

// OpSummary holds the merged, per-operation-type view across all workers.
type OpSummary struct {
	Op          Op               `json:"op"`
	Count       int64            `json:"count"`
	Successes   int64            `json:"successes"`
	Failures    int64            `json:"failures"`
	Bytes       int64            `json:"bytes"`
	SuccessRate float64          `json:"success_rate"`
	Min         time.Duration    `json:"min"`
	Max         time.Duration    `json:"max"`
	Mean        time.Duration    `json:"mean"`
	P50         time.Duration    `json:"p50"`
	P95         time.Duration    `json:"p95"`
	P99         time.Duration    `json:"p99"`
	Throughput  float64          `json:"throughput_bps"`
	Errors      map[string]int64 `json:"errors,omitempty"`
	Hist        *Histogram       `json:"-"`
}

// Summary is the global view: the merge of every known worker's latest
// cumulative snapshot. It is recomputed on demand and never persisted as
// history.
type Summary struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Start       time.Time     `json:"start"`
	Elapsed     time.Duration `json:"elapsed"`

	Ops []OpSummary `json:"ops"`

	TotalOps       int64   `json:"total_ops"`
	TotalSuccesses int64   `json:"total_successes"`
	TotalFailures  int64   `json:"total_failures"`
	TotalBytes     int64   `json:"total_bytes"`
	SuccessRate    float64 `json:"success_rate"`
	Throughput     float64 `json:"throughput_bps"`
	OpsPerSec      float64 `json:"ops_per_sec"`

	Workers []WorkerState `json:"workers"`

	// Partial flags that at least one worker's contribution is stale, so
	// consumers can judge completeness.
	Partial bool `json:"partial"`

	DroppedSnapshots int64 `json:"dropped_snapshots"`
	InvalidRecords   int64 `json:"invalid_records"`
}

type workerMeta struct {
	lastSeen time.Time
	finished bool
	stale    bool
}

// GlobalAggregator maintains the latest accepted snapshot per worker and
// merges them into one Summary on demand. A snapshot replaces the stored one
// only when its sequence number is strictly greater, which makes Apply
// idempotent and tolerant of duplicated, reordered or re-delivered
// snapshots. The merge itself is a pure element-wise reduction, so arrival
// order across workers never changes the result.
type GlobalAggregator struct {
	mu      sync.Mutex
	start   time.Time
	silence time.Duration
	latest  map[string]WorkerSnapshot
	meta    map[string]*workerMeta
}

// NewGlobalAggregator creates an aggregator that marks a worker stale after
// silence with no new snapshots.
func NewGlobalAggregator(silence time.Duration) *GlobalAggregator {
	if silence <= 0 {
		silence = 15 * time.Second
	}
	return &GlobalAggregator{
		start:   time.Now(),
		silence: silence,
		latest:  make(map[string]WorkerSnapshot),
		meta:    make(map[string]*workerMeta),
	}
}

// Apply installs snap as the worker's latest view if its sequence number
// advances past the stored one. It reports whether the snapshot was
// accepted; rejected snapshots are expected steady-state duplicates, not
// errors.
func (g *GlobalAggregator) Apply(snap WorkerSnapshot) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.latest[snap.WorkerID]; ok && snap.Seq <= prev.Seq {
		return false
	}
	g.latest[snap.WorkerID] = snap

	m := g.meta[snap.WorkerID]
	if m == nil {
		m = &workerMeta{}
		g.meta[snap.WorkerID] = m
	}
	m.lastSeen = time.Now()
	m.stale = false
	if snap.Final {
		m.finished = true
	}
	return true
}

// Sweep recomputes liveness as of now and returns the ids of workers that
// newly crossed the silence window. The Liveness monitor calls this
// periodically so stale transitions are logged once rather than on every
// summary read.
func (g *GlobalAggregator) Sweep(now time.Time) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var newlyStale []string
	for id, m := range g.meta {
		if m.finished || m.stale {
			continue
		}
		if now.Sub(m.lastSeen) > g.silence {
			m.stale = true
			newlyStale = append(newlyStale, id)
		}
	}
	sort.Strings(newlyStale)
	return newlyStale
}

// Workers returns the current liveness record for every known worker,
// sorted by id.
func (g *GlobalAggregator) Workers(now time.Time) []WorkerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.workersLocked(now)
}

func (g *GlobalAggregator) workersLocked(now time.Time) []WorkerState {
	out := make([]WorkerState, 0, len(g.meta))
	for id, m := range g.meta {
		state := WorkerState{
			ID:       id,
			LastSeq:  g.latest[id].Seq,
			LastSeen: m.lastSeen,
			Status:   WorkerActive,
		}
		switch {
		case m.finished:
			state.Status = WorkerFinished
		case m.stale || now.Sub(m.lastSeen) > g.silence:
			state.Status = WorkerStale
		}
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Summary merges the latest snapshot of every known worker into one global
// view as of now. Stale workers still contribute their last known totals;
// the summary is flagged Partial so exports can say so.
func (g *GlobalAggregator) Summary(now time.Time) Summary {
	g.mu.Lock()
	defer g.mu.Unlock()

	elapsed := now.Sub(g.start)
	if elapsed < 0 {
		elapsed = 0
	}

	s := Summary{
		GeneratedAt: now,
		Start:       g.start,
		Elapsed:     elapsed,
		Workers:     g.workersLocked(now),
	}
	for _, w := range s.Workers {
		if w.Status == WorkerStale {
			s.Partial = true
		}
	}

	merged := make(map[Op]*OpSummary, numOps)
	for _, op := range Ops {
		merged[op] = &OpSummary{Op: op}
	}

	for _, snap := range g.latest {
		s.DroppedSnapshots += snap.DroppedSnapshots
		s.InvalidRecords += snap.InvalidRecords
		for op, t := range snap.Ops {
			m, ok := merged[op]
			if !ok {
				continue
			}
			m.Count += t.Count
			m.Successes += t.Successes
			m.Failures += t.Failures
			m.Bytes += t.Bytes
			if t.Hist != nil {
				if m.Hist == nil {
					m.Hist = NewHistogram(t.Hist.Bounds)
				}
				if err := m.Hist.Merge(t.Hist); err != nil {
					// Mismatched bounds cannot be merged exactly; the
					// counters above still count, the histogram does not.
					continue
				}
			}
			for kind, n := range t.Errors {
				if m.Errors == nil {
					m.Errors = make(map[string]int64)
				}
				m.Errors[kind] += n
			}
		}
	}

	s.Ops = make([]OpSummary, 0, len(Ops))
	for _, op := range Ops {
		m := merged[op]
		if m.Count > 0 {
			m.SuccessRate = float64(m.Successes) / float64(m.Count)
		}
		if m.Hist != nil {
			m.Min = m.Hist.Min
			m.Max = m.Hist.Max
			m.Mean = m.Hist.Mean()
			m.P50 = m.Hist.Quantile(0.50)
			m.P95 = m.Hist.Quantile(0.95)
			m.P99 = m.Hist.Quantile(0.99)
		}
		if elapsed > 0 {
			m.Throughput = float64(m.Bytes) / elapsed.Seconds()
		}
		s.TotalOps += m.Count
		s.TotalSuccesses += m.Successes
		s.TotalFailures += m.Failures
		s.TotalBytes += m.Bytes
		s.Ops = append(s.Ops, *m)
	}

	if s.TotalOps > 0 {
		s.SuccessRate = float64(s.TotalSuccesses) / float64(s.TotalOps)
	}
	if elapsed > 0 {
		s.Throughput = float64(s.TotalBytes) / elapsed.Seconds()
		s.OpsPerSec = float64(s.TotalOps) / elapsed.Seconds()
	}
	return s
}
