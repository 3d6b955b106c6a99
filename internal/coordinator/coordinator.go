// Package coordinator runs the aggregation side of a distributed run: it
// ingests worker snapshots over HTTP, maintains the global view, watches
// worker liveness and serves the exporters.
package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chopsticks-dev/chopsticks/internal/export"
	"github.com/chopsticks-dev/chopsticks/internal/metrics"
	"github.com/chopsticks-dev/chopsticks/internal/transport"
)

// Options configures a coordinator.
type Options struct {
	ListenAddr     string
	Silence        time.Duration
	ExportPath     string
	ExportInterval time.Duration
	StatePath      string
	Run            export.RunInfo
	Logger         zerolog.Logger
}

// Coordinator owns the global aggregator and everything that reads from it.
type Coordinator struct {
	opt      Options
	agg      *metrics.GlobalAggregator
	server   *export.Server
	liveness *metrics.Liveness
	docs     *export.DocumentWriter
	state    *StateFile
	log      zerolog.Logger
}

// New wires a coordinator. Start must be called before it serves anything.
func New(opt Options) *Coordinator {
	agg := metrics.NewGlobalAggregator(opt.Silence)

	c := &Coordinator{
		opt:      opt,
		agg:      agg,
		liveness: metrics.NewLiveness(agg, time.Second, opt.Logger),
		log:      opt.Logger,
	}

	c.server = export.NewServer(opt.ListenAddr, agg, opt.Logger)
	c.server.Handle(transport.SnapshotsPath, http.HandlerFunc(c.handleSnapshot))

	if opt.ExportPath != "" {
		c.docs = export.NewDocumentWriter(opt.ExportPath, opt.Run, agg, opt.ExportInterval, opt.Logger)
	}
	if opt.StatePath != "" {
		c.state = NewStateFile(opt.StatePath)
	}
	return c
}

// Aggregator exposes the global aggregator for in-process workers.
func (c *Coordinator) Aggregator() *metrics.GlobalAggregator { return c.agg }

// Addr returns the bound exposition address, valid after Start.
func (c *Coordinator) Addr() string { return c.server.Addr() }

// Start acquires the state file, binds the exposition endpoint and begins
// liveness sweeps and periodic export. A bind failure is fatal: without the
// endpoint the run cannot deliver its results.
func (c *Coordinator) Start() error {
	if c.state != nil {
		if err := c.state.Acquire(); err != nil {
			return err
		}
	}
	if err := c.server.Start(); err != nil {
		if c.state != nil {
			c.state.Release()
		}
		return err
	}
	if c.state != nil {
		if err := c.state.Write(c.server.Addr()); err != nil {
			c.log.Warn().Err(err).Msg("state file write failed")
		}
	}
	c.liveness.Start()
	if c.docs != nil {
		c.docs.Start()
	}
	return nil
}

// Stop waits up to grace for late final snapshots, writes the final export
// document, and shuts everything down. Workers still missing after the
// grace period stay stale in the final export instead of hanging the run.
func (c *Coordinator) Stop(ctx context.Context, grace time.Duration) (metrics.Summary, error) {
	if grace > 0 {
		deadline := time.Now().Add(grace)
		for time.Now().Before(deadline) {
			if c.allWorkersSettled() {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
	}

	c.liveness.Stop()
	summary := c.agg.Summary(time.Now())

	var exportErr error
	if c.docs != nil {
		c.docs.Stop()
		if err := c.docs.Final(); err != nil {
			exportErr = fmt.Errorf("final export: %w", err)
			c.log.Error().Err(err).Msg("final export failed")
		}
	}

	if err := c.server.Stop(ctx); err != nil {
		c.log.Warn().Err(err).Msg("metrics server shutdown failed")
	}
	if c.state != nil {
		c.state.Release()
	}
	return summary, exportErr
}

func (c *Coordinator) allWorkersSettled() bool {
	for _, w := range c.agg.Workers(time.Now()) {
		if w.Status == metrics.WorkerActive {
			return false
		}
	}
	return true
}

func (c *Coordinator) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := transport.DecodeSnapshot(r.Body)
	if err != nil {
		c.log.Warn().Err(err).Msg("rejected malformed snapshot")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	accepted := c.agg.Apply(snap)
	if !accepted {
		// Duplicate or out-of-order delivery: expected steady state.
		c.log.Debug().
			Str("worker", snap.WorkerID).
			Uint64("seq", snap.Seq).
			Msg("discarded stale snapshot")
	}
	w.WriteHeader(http.StatusNoContent)
}
