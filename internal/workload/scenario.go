// Package workload drives simulated clients against a storage driver and
// feeds every completed operation into the metrics recorder.
package workload

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

// SizeClass is one weighted object-size band within a scenario.
type SizeClass struct {
	Weight   int
	MinBytes int64
	MaxBytes int64
}

// Scenario describes a workload shape: which operations to issue, with what
// relative weights, over what object sizes.
type Scenario struct {
	Name      string
	OpWeights map[metrics.Op]int
	Sizes     []SizeClass
	ListMax   int32

	// RewriteFraction is the probability that an upload overwrites an
	// existing key instead of creating a fresh one. On a versioned bucket
	// each overwrite stacks a new version onto the object.
	RewriteFraction float64
}

const (
	kib = int64(1) << 10
	mib = int64(1) << 20
)

var builtins = map[string]Scenario{
	// High-frequency small objects: metadata-heavy, IOPS-bound.
	"small_objects": {
		Name: "small_objects",
		OpWeights: map[metrics.Op]int{
			metrics.OpUpload:   70,
			metrics.OpDownload: 20,
			metrics.OpDelete:   10,
		},
		Sizes:   []SizeClass{{Weight: 1, MinBytes: 1 * kib, MaxBytes: 100 * kib}},
		ListMax: 1000,
	},
	// Sustained large transfers: bandwidth-bound.
	"large_objects": {
		Name: "large_objects",
		OpWeights: map[metrics.Op]int{
			metrics.OpUpload:   60,
			metrics.OpDownload: 40,
		},
		Sizes:   []SizeClass{{Weight: 1, MinBytes: 10 * mib, MaxBytes: 100 * mib}},
		ListMax: 1000,
	},
	// Production-like mix of sizes and operations.
	"mixed_workload": {
		Name: "mixed_workload",
		OpWeights: map[metrics.Op]int{
			metrics.OpUpload:   50,
			metrics.OpDownload: 35,
			metrics.OpList:     10,
			metrics.OpDelete:   5,
		},
		Sizes: []SizeClass{
			{Weight: 60, MinBytes: 1 * kib, MaxBytes: 100 * kib},
			{Weight: 30, MinBytes: 100 * kib, MaxBytes: 10 * mib},
			{Weight: 10, MinBytes: 10 * mib, MaxBytes: 100 * mib},
		},
		ListMax: 1000,
	},
	// Hammers the metadata path rather than data transfer.
	"metadata_intensive": {
		Name: "metadata_intensive",
		OpWeights: map[metrics.Op]int{
			metrics.OpHead:   40,
			metrics.OpList:   40,
			metrics.OpUpload: 10,
			metrics.OpDelete: 10,
		},
		Sizes:   []SizeClass{{Weight: 1, MinBytes: 1 * kib, MaxBytes: 16 * kib}},
		ListMax: 1000,
	},
	// Stacks versions onto a small set of objects: most uploads rewrite
	// an existing key, exercising version accumulation on the bucket.
	"versioning_workload": {
		Name: "versioning_workload",
		OpWeights: map[metrics.Op]int{
			metrics.OpUpload:   5,
			metrics.OpDownload: 3,
			metrics.OpDelete:   1,
		},
		Sizes:           []SizeClass{{Weight: 1, MinBytes: 10 * kib, MaxBytes: 10 * kib}},
		ListMax:         1000,
		RewriteFraction: 0.7,
	},
	// Many clients contending on a shared set of objects.
	"concurrent_access": {
		Name: "concurrent_access",
		OpWeights: map[metrics.Op]int{
			metrics.OpDownload: 80,
			metrics.OpList:     10,
			metrics.OpUpload:   10,
		},
		Sizes:   []SizeClass{{Weight: 1, MinBytes: 1 * mib, MaxBytes: 1 * mib}},
		ListMax: 100,
	},
}

// Builtin returns the named builtin scenario.
func Builtin(name string) (Scenario, error) {
	sc, ok := builtins[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q (available: %v)", name, Names())
	}
	return sc, nil
}

// Names lists the builtin scenarios in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaxObjectSize returns the largest object the scenario can generate.
func (s Scenario) MaxObjectSize() int64 {
	var max int64
	for _, sc := range s.Sizes {
		if sc.MaxBytes > max {
			max = sc.MaxBytes
		}
	}
	return max
}

// PickOp selects an operation according to the scenario weights.
func (s Scenario) PickOp(rnd *rand.Rand) metrics.Op {
	total := 0
	for _, w := range s.OpWeights {
		total += w
	}
	if total <= 0 {
		return metrics.OpUpload
	}
	n := rnd.Intn(total)
	for _, op := range metrics.Ops {
		w := s.OpWeights[op]
		if w <= 0 {
			continue
		}
		if n < w {
			return op
		}
		n -= w
	}
	return metrics.OpUpload
}

// PickSize selects an object size according to the weighted size classes.
func (s Scenario) PickSize(rnd *rand.Rand) int64 {
	if len(s.Sizes) == 0 {
		return 4 * kib
	}
	total := 0
	for _, sc := range s.Sizes {
		total += sc.Weight
	}
	n := rnd.Intn(total)
	var chosen SizeClass
	for _, sc := range s.Sizes {
		if n < sc.Weight {
			chosen = sc
			break
		}
		n -= sc.Weight
	}
	if chosen.MaxBytes <= chosen.MinBytes {
		return chosen.MinBytes
	}
	return chosen.MinBytes + rnd.Int63n(chosen.MaxBytes-chosen.MinBytes+1)
}
