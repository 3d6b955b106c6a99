package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

// RunInfo is the run metadata embedded in every export document so results
// stay interpretable (and comparable) after the run is gone.
type RunInfo struct {
	RunID          string          `json:"run_id"`
	Scenario       string          `json:"scenario"`
	Driver         string          `json:"driver"`
	Users          int             `json:"users"`
	Started        time.Time       `json:"started"`
	FlushInterval  time.Duration   `json:"flush_interval"`
	SilenceTimeout time.Duration   `json:"silence_timeout"`
	BucketBounds   []time.Duration `json:"bucket_bounds"`
}

// Document is the structured export: run metadata plus the full merged
// summary, including per-worker liveness and transport drop counts.
type Document struct {
	Run     RunInfo         `json:"run"`
	Summary metrics.Summary `json:"summary"`
}

// WriteDocument renders doc as JSON at path, writing through a temp file and
// rename so a crash mid-write never leaves a truncated document.
func WriteDocument(path string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export document: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".chopsticks-export-*")
	if err != nil {
		return fmt.Errorf("write export document: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write export document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write export document: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write export document: %w", err)
	}
	return nil
}

// DocumentWriter periodically renders the current summary to disk. Write
// failures are logged and retried on the next interval; only the final write
// at run end reports its error to the caller.
type DocumentWriter struct {
	path     string
	run      RunInfo
	src      SummarySource
	interval time.Duration
	log      zerolog.Logger

	active   int32
	done     chan struct{}
	finished chan struct{}
}

// NewDocumentWriter creates a periodic writer; interval <= 0 disables the
// periodic loop, leaving only the final write.
func NewDocumentWriter(path string, run RunInfo, src SummarySource, interval time.Duration, log zerolog.Logger) *DocumentWriter {
	return &DocumentWriter{
		path:     path,
		run:      run,
		src:      src,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Start begins periodic export if an interval was configured.
func (w *DocumentWriter) Start() {
	if w.interval <= 0 {
		return
	}
	if !atomic.CompareAndSwapInt32(&w.active, 0, 1) {
		return
	}
	go w.runLoop()
}

// Stop halts the periodic loop.
func (w *DocumentWriter) Stop() {
	if atomic.CompareAndSwapInt32(&w.active, 1, 0) {
		close(w.done)
		<-w.finished
	}
}

// Final writes the end-of-run document and returns any write error.
func (w *DocumentWriter) Final() error {
	return WriteDocument(w.path, Document{Run: w.run, Summary: w.src.Summary(time.Now())})
}

func (w *DocumentWriter) runLoop() {
	defer close(w.finished)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			doc := Document{Run: w.run, Summary: w.src.Summary(time.Now())}
			if err := WriteDocument(w.path, doc); err != nil {
				w.log.Warn().Err(err).Str("path", w.path).Msg("periodic export failed, will retry")
			}
		case <-w.done:
			return
		}
	}
}
