package export_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chopsticks-dev/chopsticks/internal/export"
	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

func sampleRunInfo() export.RunInfo {
	return export.RunInfo{
		RunID:          "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Scenario:       "small_objects",
		Driver:         "dummy",
		Users:          8,
		Started:        time.Now(),
		FlushInterval:  5 * time.Second,
		SilenceTimeout: 15 * time.Second,
		BucketBounds:   metrics.DefaultBounds(),
	}
}

func TestWriteDocument(t *testing.T) {
	src := newStaticSource(sampleSnapshot("w1", 4))
	path := filepath.Join(t.TempDir(), "results.json")

	doc := export.Document{Run: sampleRunInfo(), Summary: src.Summary(time.Now())}
	if err := export.WriteDocument(path, doc); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	var decoded export.Document
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("document is not valid JSON: %v", err)
	}
	if decoded.Run.Scenario != "small_objects" {
		t.Errorf("run metadata lost: %+v", decoded.Run)
	}
	if decoded.Summary.TotalOps != 102 {
		t.Errorf("expected total 102, got %d", decoded.Summary.TotalOps)
	}
	if len(decoded.Summary.Workers) != 1 || decoded.Summary.Workers[0].LastSeq != 4 {
		t.Errorf("per-worker liveness missing: %+v", decoded.Summary.Workers)
	}
	if len(decoded.Run.BucketBounds) == 0 {
		t.Error("bucket bounds must be part of run metadata")
	}
}

func TestWriteDocumentBadPath(t *testing.T) {
	src := newStaticSource()
	doc := export.Document{Run: sampleRunInfo(), Summary: src.Summary(time.Now())}

	err := export.WriteDocument(filepath.Join(t.TempDir(), "missing", "results.json"), doc)
	if err == nil {
		t.Error("expected error writing into missing directory")
	}
}

func TestDocumentWriterFinal(t *testing.T) {
	src := newStaticSource(sampleSnapshot("w1", 1))
	path := filepath.Join(t.TempDir(), "results.json")

	w := export.NewDocumentWriter(path, sampleRunInfo(), src, 0, zerolog.Nop())
	w.Start() // disabled interval: no loop, Final still works
	w.Stop()
	if err := w.Final(); err != nil {
		t.Fatalf("final write failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("final document missing: %v", err)
	}
}

func TestDocumentWriterPeriodic(t *testing.T) {
	src := newStaticSource(sampleSnapshot("w1", 1))
	path := filepath.Join(t.TempDir(), "results.json")

	w := export.NewDocumentWriter(path, sampleRunInfo(), src, 10*time.Millisecond, zerolog.Nop())
	w.Start()
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("periodic document missing: %v", err)
	}
}
