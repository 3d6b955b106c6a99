package metrics

import (
	"errors"
	"math"
	"time"
)

// ErrBoundsMismatch is returned when merging histograms whose bucket
// boundaries differ. Merging is only exact when every worker shares the
// same boundaries, so mismatches are refused outright.
var ErrBoundsMismatch = errors.New("histogram bucket boundaries do not match")

// Histogram accumulates latency observations into fixed log-scale buckets.
//
// Bounds holds the inclusive upper edge of each bucket in increasing order;
// one implicit overflow bucket catches everything above the last edge, so
// len(Counts) == len(Bounds)+1. Because every worker in a run is constructed
// with identical bounds, histograms merge bucket-by-bucket without loss.
type Histogram struct {
	Bounds []time.Duration `json:"bounds"`
	Counts []uint64        `json:"counts"`

	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Sum   time.Duration `json:"sum"`
	SumSq float64       `json:"sum_sq"`
}

// DefaultBounds returns the default bucket edges: 20 doubling buckets from
// 100µs up to ~52s. The run's effective bounds are recorded in the export
// document so results stay comparable across runs.
func DefaultBounds() []time.Duration {
	bounds := make([]time.Duration, 20)
	edge := 100 * time.Microsecond
	for i := range bounds {
		bounds[i] = edge
		edge *= 2
	}
	return bounds
}

// NewHistogram creates an empty histogram with the given bucket edges.
// Edges must be strictly increasing; a nil slice selects DefaultBounds.
func NewHistogram(bounds []time.Duration) *Histogram {
	if len(bounds) == 0 {
		bounds = DefaultBounds()
	}
	owned := make([]time.Duration, len(bounds))
	copy(owned, bounds)
	return &Histogram{
		Bounds: owned,
		Counts: make([]uint64, len(owned)+1),
	}
}

// ValidBounds reports whether bounds form a usable bucket layout.
func ValidBounds(bounds []time.Duration) bool {
	if len(bounds) == 0 {
		return false
	}
	prev := time.Duration(0)
	for _, b := range bounds {
		if b <= prev {
			return false
		}
		prev = b
	}
	return true
}

// Observe records one latency sample.
func (h *Histogram) Observe(d time.Duration) {
	if d < 0 {
		d = 0
	}
	i := h.bucketFor(d)
	h.Counts[i]++
	if h.Min == 0 || d < h.Min {
		h.Min = d
	}
	if d > h.Max {
		h.Max = d
	}
	h.Sum += d
	ns := float64(d)
	h.SumSq += ns * ns
}

func (h *Histogram) bucketFor(d time.Duration) int {
	// Binary search for the first edge >= d.
	lo, hi := 0, len(h.Bounds)
	for lo < hi {
		mid := (lo + hi) / 2
		if h.Bounds[mid] < d {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Count returns the total number of observations.
func (h *Histogram) Count() uint64 {
	var total uint64
	for _, c := range h.Counts {
		total += c
	}
	return total
}

// Mean returns the average observed latency, zero if empty.
func (h *Histogram) Mean() time.Duration {
	n := h.Count()
	if n == 0 {
		return 0
	}
	return h.Sum / time.Duration(n)
}

// StdDev returns the standard deviation of observed latencies.
func (h *Histogram) StdDev() time.Duration {
	n := float64(h.Count())
	if n == 0 {
		return 0
	}
	mean := float64(h.Sum) / n
	variance := h.SumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return time.Duration(math.Sqrt(variance))
}

// Quantile estimates the latency at quantile q in [0, 1] by locating the
// bucket holding the target rank and interpolating linearly within it.
// Results are clamped to the observed [Min, Max] range so single-bucket
// histograms still produce sensible, ordered percentiles.
func (h *Histogram) Quantile(q float64) time.Duration {
	total := h.Count()
	if total == 0 {
		return 0
	}
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}

	rank := q * float64(total)
	var cum float64
	for i, c := range h.Counts {
		if c == 0 {
			continue
		}
		next := cum + float64(c)
		if next >= rank {
			lower := time.Duration(0)
			if i > 0 {
				lower = h.Bounds[i-1]
			}
			upper := h.Max
			if i < len(h.Bounds) && h.Bounds[i] < upper {
				upper = h.Bounds[i]
			}
			if upper < lower {
				upper = lower
			}
			frac := (rank - cum) / float64(c)
			if frac < 0 {
				frac = 0
			}
			est := lower + time.Duration(frac*float64(upper-lower))
			return h.clamp(est)
		}
		cum = next
	}
	return h.clamp(h.Max)
}

func (h *Histogram) clamp(d time.Duration) time.Duration {
	if h.Min != 0 && d < h.Min {
		return h.Min
	}
	if d > h.Max {
		return h.Max
	}
	return d
}

// Merge folds other into h bucket-by-bucket. Both histograms must have been
// built from identical bounds.
func (h *Histogram) Merge(other *Histogram) error {
	if other == nil {
		return nil
	}
	if len(h.Bounds) != len(other.Bounds) {
		return ErrBoundsMismatch
	}
	// A histogram that crossed the wire may carry a counts slice that no
	// longer lines up with its bounds; merging it would index out of range.
	if len(other.Counts) != len(other.Bounds)+1 {
		return ErrBoundsMismatch
	}
	for i := range h.Bounds {
		if h.Bounds[i] != other.Bounds[i] {
			return ErrBoundsMismatch
		}
	}
	for i := range h.Counts {
		h.Counts[i] += other.Counts[i]
	}
	if other.Min != 0 && (h.Min == 0 || other.Min < h.Min) {
		h.Min = other.Min
	}
	if other.Max > h.Max {
		h.Max = other.Max
	}
	h.Sum += other.Sum
	h.SumSq += other.SumSq
	return nil
}

// Clone returns an independent copy of h.
func (h *Histogram) Clone() *Histogram {
	c := &Histogram{
		Bounds: make([]time.Duration, len(h.Bounds)),
		Counts: make([]uint64, len(h.Counts)),
		Min:    h.Min,
		Max:    h.Max,
		Sum:    h.Sum,
		SumSq:  h.SumSq,
	}
	copy(c.Bounds, h.Bounds)
	copy(c.Counts, h.Counts)
	return c
}
