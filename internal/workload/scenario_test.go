package workload_test

import (
	"math/rand"
	"testing"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
	"github.com/chopsticks-dev/chopsticks/internal/workload"
)

func TestBuiltinScenarios(t *testing.T) {
	for _, name := range workload.Names() {
		sc, err := workload.Builtin(name)
		if err != nil {
			t.Fatalf("builtin %s missing: %v", name, err)
		}
		if sc.Name != name {
			t.Errorf("scenario %s has mismatched name %s", name, sc.Name)
		}
		if len(sc.OpWeights) == 0 || len(sc.Sizes) == 0 {
			t.Errorf("scenario %s is incomplete: %+v", name, sc)
		}
	}
}

func TestBuiltinUnknown(t *testing.T) {
	if _, err := workload.Builtin("no_such_scenario"); err == nil {
		t.Error("expected error for unknown scenario")
	}
}

func TestVersioningScenarioRewrites(t *testing.T) {
	sc, err := workload.Builtin("versioning_workload")
	if err != nil {
		t.Fatal(err)
	}
	if sc.RewriteFraction <= 0 || sc.RewriteFraction >= 1 {
		t.Errorf("versioning scenario needs a rewrite bias in (0,1), got %f", sc.RewriteFraction)
	}
	if sc.OpWeights[metrics.OpUpload] <= sc.OpWeights[metrics.OpDownload] {
		t.Errorf("versioning scenario should be upload-heavy: %+v", sc.OpWeights)
	}
}

func TestPickOpRespectsWeights(t *testing.T) {
	sc, err := workload.Builtin("small_objects")
	if err != nil {
		t.Fatal(err)
	}

	rnd := rand.New(rand.NewSource(1))
	counts := map[metrics.Op]int{}
	const samples = 10000
	for i := 0; i < samples; i++ {
		counts[sc.PickOp(rnd)]++
	}

	if counts[metrics.OpList] != 0 {
		t.Errorf("scenario without list weight produced %d list ops", counts[metrics.OpList])
	}
	// Upload carries 70% weight; allow generous slack for randomness.
	uploadShare := float64(counts[metrics.OpUpload]) / samples
	if uploadShare < 0.6 || uploadShare > 0.8 {
		t.Errorf("upload share %f implausible for weight 70", uploadShare)
	}
}

func TestPickSizeStaysInRange(t *testing.T) {
	sc, err := workload.Builtin("mixed_workload")
	if err != nil {
		t.Fatal(err)
	}

	rnd := rand.New(rand.NewSource(2))
	min := sc.Sizes[0].MinBytes
	max := sc.MaxObjectSize()
	for i := 0; i < 10000; i++ {
		size := sc.PickSize(rnd)
		if size < min || size > max {
			t.Fatalf("size %d outside [%d, %d]", size, min, max)
		}
	}
}
