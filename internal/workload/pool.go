package workload

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/chopsticks-dev/chopsticks/internal/driver"
	"github.com/chopsticks-dev/chopsticks/internal/metrics"
)

// Options configures a workload pool.
type Options struct {
	Users     int
	Rate      int // operations per second across all users, 0 = unlimited
	Duration  time.Duration
	Total     int // total operations, 0 = unlimited
	Scenario  Scenario
	Driver    driver.Driver
	Recorder  metrics.Recorder
	KeyPrefix string
	Logger    zerolog.Logger
	Seed      int64
}

// Result captures execution totals as counted by the pool itself; the
// authoritative statistics come from the metrics pipeline.
type Result struct {
	Total    int64
	Errors   int64
	Duration time.Duration
}

// Pool runs concurrent simulated clients against the driver. Scheduling
// follows a permit model: a single scheduler paces operation starts so rate
// limiting stays accurate across users, and each user goroutine executes one
// operation per permit.
type Pool struct {
	opt     Options
	limiter *rate.Limiter
	keys    *keyring
	payload []byte
}

// New creates a pool. Options are normalized: at least one user, a default
// key prefix.
func New(opt Options) *Pool {
	if opt.Users <= 0 {
		opt.Users = 1
	}
	if opt.KeyPrefix == "" {
		opt.KeyPrefix = "chopsticks"
	}
	if opt.Seed == 0 {
		opt.Seed = time.Now().UnixNano()
	}

	var limiter *rate.Limiter
	if opt.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opt.Rate), 1)
	}

	// One shared read-only payload buffer sized for the largest object the
	// scenario can produce, so upload bodies are slices, not allocations.
	size := opt.Scenario.MaxObjectSize()
	if size < 1 {
		size = 1
	}
	payload := make([]byte, size)
	rnd := rand.New(rand.NewSource(opt.Seed))
	rnd.Read(payload)

	return &Pool{
		opt:     opt,
		limiter: limiter,
		keys:    newKeyring(),
		payload: payload,
	}
}

// Run executes the workload until the duration elapses, the total operation
// budget is spent, or ctx is canceled.
func (p *Pool) Run(ctx context.Context) Result {
	start := time.Now()
	var total, errs int64

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if p.opt.Duration > 0 {
		deadlineCtx, deadlineCancel := context.WithTimeout(ctx, p.opt.Duration)
		ctx = deadlineCtx
		defer deadlineCancel()
	}

	permits := make(chan struct{}, p.opt.Users)

	// Scheduler: serializes pacing so the pool rate is exact regardless of
	// user count.
	go func() {
		defer close(permits)
		for {
			if ctx.Err() != nil {
				return
			}
			current := atomic.LoadInt64(&total)
			if p.opt.Total > 0 && current >= int64(p.opt.Total) {
				return
			}
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return
				}
			}
			select {
			case permits <- struct{}{}:
				atomic.AddInt64(&total, 1)
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(p.opt.Users)
	for i := 0; i < p.opt.Users; i++ {
		seed := p.opt.Seed + int64(i) + 1
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for range permits {
				if err := p.step(ctx, rnd); err != nil {
					atomic.AddInt64(&errs, 1)
				}
				if ctx.Err() != nil {
					return
				}
			}
		}(seed)
	}
	wg.Wait()

	return Result{
		Total:    atomic.LoadInt64(&total),
		Errors:   atomic.LoadInt64(&errs),
		Duration: time.Since(start),
	}
}

// step executes one operation, times it, and records the outcome.
func (p *Pool) step(ctx context.Context, rnd *rand.Rand) error {
	op := p.opt.Scenario.PickOp(rnd)

	// Read-side operations need an existing object; fall back to upload
	// until the keyspace is primed.
	key, haveKey := p.keys.random(rnd)
	if !haveKey && (op == metrics.OpDownload || op == metrics.OpDelete || op == metrics.OpHead) {
		op = metrics.OpUpload
	}

	var (
		size    int64
		started = time.Now()
		err     error
	)
	switch op {
	case metrics.OpUpload:
		size = p.opt.Scenario.PickSize(rnd)
		// Rewriting an existing key stacks a new version onto the object
		// when the bucket is versioned; otherwise mint a fresh key.
		if !haveKey || rnd.Float64() >= p.opt.Scenario.RewriteFraction {
			key = fmt.Sprintf("%s/obj-%d", p.opt.KeyPrefix, p.keys.nextID())
		}
		err = p.opt.Driver.Upload(ctx, key, p.payload[:size])
		if err == nil {
			p.keys.add(key)
		}
	case metrics.OpDownload:
		size, err = p.opt.Driver.Download(ctx, key)
	case metrics.OpDelete:
		err = p.opt.Driver.Delete(ctx, key)
		if err == nil {
			p.keys.remove(key)
		}
	case metrics.OpList:
		// A listing moves key metadata, not object data; recording the key
		// count as bytes would inflate throughput.
		_, err = p.opt.Driver.List(ctx, p.opt.KeyPrefix+"/", p.opt.Scenario.ListMax)
	case metrics.OpHead:
		err = p.opt.Driver.Head(ctx, key)
	default:
		err = fmt.Errorf("unsupported operation %s", op)
	}
	elapsed := time.Since(started)

	// A canceled context at shutdown is not a storage failure; do not let
	// teardown noise contaminate the run's error statistics.
	if ctx.Err() != nil && err != nil {
		return err
	}

	p.opt.Recorder.Record(op, size, elapsed, err)
	if err != nil {
		p.opt.Logger.Debug().Err(err).Str("op", string(op)).Str("key", key).Msg("operation failed")
	}
	return err
}

// keyring tracks successfully uploaded keys so read-side operations target
// objects that exist.
type keyring struct {
	mu   sync.Mutex
	keys []string
	pos  map[string]int
	id   atomic.Int64
}

func newKeyring() *keyring {
	return &keyring{pos: make(map[string]int)}
}

func (k *keyring) nextID() int64 { return k.id.Add(1) }

func (k *keyring) add(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.pos[key]; ok {
		return
	}
	k.pos[key] = len(k.keys)
	k.keys = append(k.keys, key)
}

func (k *keyring) remove(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	i, ok := k.pos[key]
	if !ok {
		return
	}
	last := len(k.keys) - 1
	k.keys[i] = k.keys[last]
	k.pos[k.keys[i]] = i
	k.keys = k.keys[:last]
	delete(k.pos, key)
}

func (k *keyring) random(rnd *rand.Rand) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return "", false
	}
	return k.keys[rnd.Intn(len(k.keys))], true
}
