package export_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/chopsticks-dev/chopsticks/internal/export"
)

func TestPromCollectorOutput(t *testing.T) {
	src := newStaticSource(sampleSnapshot("w1", 1))

	registry := prometheus.NewRegistry()
	registry.MustRegister(export.NewPromCollector(src))

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	byName := map[string]bool{}
	for _, mf := range families {
		byName[mf.GetName()] = true
	}
	for _, want := range []string{
		"chopsticks_operations_total",
		"chopsticks_bytes_total",
		"chopsticks_operation_duration_seconds",
		"chopsticks_operation_errors_total",
		"chopsticks_dropped_snapshots_total",
		"chopsticks_invalid_records_total",
		"chopsticks_workers",
		"chopsticks_summary_partial",
	} {
		if !byName[want] {
			t.Errorf("missing metric family %s", want)
		}
	}

	for _, mf := range families {
		if mf.GetName() != "chopsticks_operations_total" {
			continue
		}
		var success float64
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["op"] == "upload" && labels["outcome"] == "success" {
				success = m.GetCounter().GetValue()
			}
		}
		if success != 98 {
			t.Errorf("expected upload success counter 98, got %f", success)
		}
	}
}

func TestPromCollectorHistogramBuckets(t *testing.T) {
	src := newStaticSource(sampleSnapshot("w1", 1))

	registry := prometheus.NewRegistry()
	registry.MustRegister(export.NewPromCollector(src))

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != "chopsticks_operation_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			h := m.GetHistogram()
			if h.GetSampleCount() == 0 {
				t.Error("histogram sample count is zero")
			}
			var prev uint64
			for _, b := range h.GetBucket() {
				if b.GetCumulativeCount() < prev {
					t.Error("bucket counts are not cumulative")
				}
				prev = b.GetCumulativeCount()
			}
		}
		return
	}
	t.Error("latency histogram family missing")
}

func TestServerServesMetricsAndSummary(t *testing.T) {
	src := newStaticSource(sampleSnapshot("w1", 1))
	srv := export.NewServer("127.0.0.1:0", src, zerolog.Nop())

	if err := srv.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer srv.Stop(context.Background())

	base := "http://" + srv.Addr()

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "chopsticks_operations_total") {
		t.Error("scrape output missing operation counters")
	}

	resp, err = http.Get(base + "/v1/summary")
	if err != nil {
		t.Fatalf("summary fetch failed: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "\"total_ops\": 102") {
		t.Errorf("summary endpoint wrong:\n%s", string(body))
	}
}

func TestServerBindFailureIsFatal(t *testing.T) {
	src := newStaticSource()
	first := export.NewServer("127.0.0.1:0", src, zerolog.Nop())
	if err := first.Start(); err != nil {
		t.Fatalf("first bind failed: %v", err)
	}
	defer first.Stop(context.Background())

	second := export.NewServer(first.Addr(), src, zerolog.Nop())
	if err := second.Start(); err == nil {
		second.Stop(context.Background())
		t.Error("expected bind error on occupied address")
	}
}
