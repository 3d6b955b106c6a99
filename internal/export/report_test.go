package export_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/chopsticks-dev/chopsticks/internal/export"
	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

func TestPrintReportTable(t *testing.T) {
	src := newStaticSource(sampleSnapshot("w1", 1))
	var buf bytes.Buffer

	export.PrintReport(&buf, src.Summary(time.Now()))
	out := buf.String()

	for _, want := range []string{
		"Total Operations:  102",
		"upload",
		"download",
		"98.0%",
		"SlowDown",
		"Dropped Snapshots: 3",
		"Invalid Records:   1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReportSkipsUnusedOps(t *testing.T) {
	src := newStaticSource(sampleSnapshot("w1", 1))
	var buf bytes.Buffer

	export.PrintReport(&buf, src.Summary(time.Now()))
	if strings.Contains(buf.String(), "delete") {
		t.Error("report should not list operations with zero counts")
	}
}

func TestPrintReportZeroRun(t *testing.T) {
	src := newStaticSource()
	var buf bytes.Buffer

	export.PrintReport(&buf, src.Summary(time.Now()))
	if !strings.Contains(buf.String(), "Total Operations:  0") {
		t.Errorf("zero run should report zero totals:\n%s", buf.String())
	}
}

func TestPrintJSONReportRoundTrips(t *testing.T) {
	src := newStaticSource(sampleSnapshot("w1", 1))
	var buf bytes.Buffer

	if err := export.PrintJSONReport(&buf, src.Summary(time.Now())); err != nil {
		t.Fatalf("json report failed: %v", err)
	}

	var decoded metrics.Summary
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.TotalOps != 102 {
		t.Errorf("expected total 102 in JSON report, got %d", decoded.TotalOps)
	}
}
