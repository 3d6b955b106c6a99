package driver

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// Dummy is an in-memory driver for tests and smoke runs. It can simulate a
// fixed per-operation latency and a failure rate so the metrics pipeline can
// be exercised without a cluster.
type Dummy struct {
	mu      sync.Mutex
	objects map[string][]byte
	rnd     *rand.Rand

	// Latency is added to every operation when positive.
	Latency time.Duration
	// FailureRate in [0,1] makes that fraction of operations fail with a
	// "SimulatedFailure" kind.
	FailureRate float64
}

// NewDummy creates an empty in-memory driver.
func NewDummy() *Dummy {
	return &Dummy{
		objects: make(map[string][]byte),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (d *Dummy) simulate(ctx context.Context) error {
	if d.Latency > 0 {
		select {
		case <-time.After(d.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if d.FailureRate > 0 {
		d.mu.Lock()
		fail := d.rnd.Float64() < d.FailureRate
		d.mu.Unlock()
		if fail {
			return &OpError{Kind: "SimulatedFailure"}
		}
	}
	return ctx.Err()
}

// Upload stores data under key.
func (d *Dummy) Upload(ctx context.Context, key string, data []byte) error {
	if err := d.simulate(ctx); err != nil {
		return err
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	d.mu.Lock()
	d.objects[key] = owned
	d.mu.Unlock()
	return nil
}

// Download returns the stored object's size.
func (d *Dummy) Download(ctx context.Context, key string) (int64, error) {
	if err := d.simulate(ctx); err != nil {
		return 0, err
	}
	d.mu.Lock()
	data, ok := d.objects[key]
	d.mu.Unlock()
	if !ok {
		return 0, &OpError{Kind: "NoSuchKey"}
	}
	return int64(len(data)), nil
}

// Delete removes the object at key.
func (d *Dummy) Delete(ctx context.Context, key string) error {
	if err := d.simulate(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.objects[key]; !ok {
		return &OpError{Kind: "NoSuchKey"}
	}
	delete(d.objects, key)
	return nil
}

// List counts stored keys under prefix, up to max.
func (d *Dummy) List(ctx context.Context, prefix string, max int32) (int, error) {
	if err := d.simulate(ctx); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.objects))
	for k := range d.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if max > 0 && len(keys) > int(max) {
		keys = keys[:max]
	}
	return len(keys), nil
}

// Head checks the object exists.
func (d *Dummy) Head(ctx context.Context, key string) error {
	if err := d.simulate(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.objects[key]; !ok {
		return &OpError{Kind: "NoSuchKey"}
	}
	return nil
}

// Len reports how many objects are stored.
func (d *Dummy) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.objects)
}
