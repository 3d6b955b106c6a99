package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

func TestHistogramBasicStats(t *testing.T) {
	h := metrics.NewHistogram(nil)

	h.Observe(10 * time.Millisecond)
	h.Observe(20 * time.Millisecond)
	h.Observe(30 * time.Millisecond)

	if got := h.Count(); got != 3 {
		t.Errorf("expected count 3, got %d", got)
	}
	if h.Min != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", h.Min)
	}
	if h.Max != 30*time.Millisecond {
		t.Errorf("expected max 30ms, got %s", h.Max)
	}
	if got := h.Mean(); got != 20*time.Millisecond {
		t.Errorf("expected mean 20ms, got %s", got)
	}
}

func TestQuantilesAreOrdered(t *testing.T) {
	h := metrics.NewHistogram(nil)

	// 1000 samples spread from 1ms to 1s.
	for i := 1; i <= 1000; i++ {
		h.Observe(time.Duration(i) * time.Millisecond)
	}

	p50 := h.Quantile(0.50)
	p95 := h.Quantile(0.95)
	p99 := h.Quantile(0.99)

	if p50 > p95 || p95 > p99 {
		t.Errorf("quantiles out of order: p50=%s p95=%s p99=%s", p50, p95, p99)
	}
	if p50 < 300*time.Millisecond || p50 > 700*time.Millisecond {
		t.Errorf("p50 implausible for uniform 1ms..1s samples: %s", p50)
	}
	if p99 < 800*time.Millisecond || p99 > time.Second {
		t.Errorf("p99 implausible for uniform 1ms..1s samples: %s", p99)
	}
}

func TestQuantilesSingleBucket(t *testing.T) {
	h := metrics.NewHistogram(nil)

	// All samples land in one bucket.
	for i := 0; i < 100; i++ {
		h.Observe(5 * time.Millisecond)
	}

	p50 := h.Quantile(0.50)
	p95 := h.Quantile(0.95)
	p99 := h.Quantile(0.99)

	if p50 > p95 || p95 > p99 {
		t.Errorf("quantiles out of order on single bucket: p50=%s p95=%s p99=%s", p50, p95, p99)
	}
	if p99 != 5*time.Millisecond {
		t.Errorf("expected p99 clamped to observed max 5ms, got %s", p99)
	}
}

func TestEmptyHistogram(t *testing.T) {
	h := metrics.NewHistogram(nil)

	if got := h.Quantile(0.99); got != 0 {
		t.Errorf("expected zero quantile on empty histogram, got %s", got)
	}
	if got := h.Mean(); got != 0 {
		t.Errorf("expected zero mean on empty histogram, got %s", got)
	}
	if got := h.StdDev(); got != 0 {
		t.Errorf("expected zero stddev on empty histogram, got %s", got)
	}
}

func TestHistogramMerge(t *testing.T) {
	a := metrics.NewHistogram(nil)
	b := metrics.NewHistogram(nil)

	a.Observe(10 * time.Millisecond)
	a.Observe(20 * time.Millisecond)
	b.Observe(5 * time.Millisecond)
	b.Observe(40 * time.Millisecond)

	if err := a.Merge(b); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if got := a.Count(); got != 4 {
		t.Errorf("expected merged count 4, got %d", got)
	}
	if a.Min != 5*time.Millisecond {
		t.Errorf("expected merged min 5ms, got %s", a.Min)
	}
	if a.Max != 40*time.Millisecond {
		t.Errorf("expected merged max 40ms, got %s", a.Max)
	}
	if a.Sum != 75*time.Millisecond {
		t.Errorf("expected merged sum 75ms, got %s", a.Sum)
	}
}

func TestHistogramMergeBoundsMismatch(t *testing.T) {
	a := metrics.NewHistogram(nil)
	b := metrics.NewHistogram([]time.Duration{time.Millisecond, time.Second})

	if err := a.Merge(b); !errors.Is(err, metrics.ErrBoundsMismatch) {
		t.Errorf("expected ErrBoundsMismatch, got %v", err)
	}
}

func TestHistogramMergeTruncatedCounts(t *testing.T) {
	a := metrics.NewHistogram(nil)
	// Same bounds, but a counts slice that no longer lines up with them,
	// as a hostile or corrupted wire snapshot could carry.
	bad := &metrics.Histogram{Bounds: metrics.DefaultBounds(), Counts: []uint64{1}}

	if err := a.Merge(bad); !errors.Is(err, metrics.ErrBoundsMismatch) {
		t.Errorf("expected ErrBoundsMismatch for truncated counts, got %v", err)
	}
}

func TestValidBounds(t *testing.T) {
	cases := []struct {
		name   string
		bounds []time.Duration
		want   bool
	}{
		{"default", metrics.DefaultBounds(), true},
		{"empty", nil, false},
		{"unordered", []time.Duration{time.Second, time.Millisecond}, false},
		{"duplicate", []time.Duration{time.Second, time.Second}, false},
		{"zero edge", []time.Duration{0, time.Second}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := metrics.ValidBounds(tc.bounds); got != tc.want {
				t.Errorf("ValidBounds(%v) = %v, want %v", tc.bounds, got, tc.want)
			}
		})
	}
}
