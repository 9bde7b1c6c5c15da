package runtime

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarmac-project/kvbridge/logging"
	"github.com/tarmac-project/kvbridge/metrics"
	"golang.org/x/sync/semaphore"
)

const (
	metricSpawned  = "kvbridge_tasks_spawned"
	metricInflight = "kvbridge_tasks_inflight"
	metricDuration = "kvbridge_task_seconds"
)

var (
	// ErrShutdown is returned by Spawn once the runtime has been shut down.
	ErrShutdown = errors.New("runtime is shut down")

	// ErrInvalidJob is returned by Spawn when the job has no Run function.
	ErrInvalidJob = errors.New("job is invalid")

	// ErrInvalidWorkers is returned by New when Workers is negative.
	ErrInvalidWorkers = errors.New("worker count is invalid")
)

// Job is a unit of background work.
type Job struct {
	// Name labels the job in log entries.
	Name string

	// Run performs the work. The context is cancelled when the runtime shuts down.
	Run func(ctx context.Context)

	// Discard is called instead of, or after a panic in, Run when the job
	// cannot complete. It may be nil.
	Discard func()
}

// Config controls the behaviour of a Runtime.
type Config struct {
	// Workers bounds the number of jobs running at once. Zero uses GOMAXPROCS.
	Workers int

	// Logger receives job lifecycle entries. Nil discards them.
	Logger logging.Client

	// Metrics creates the runtime's counters. Nil uses metrics.Discard.
	Metrics metrics.Client
}

// Runtime is a bounded background executor.
type Runtime struct {
	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	log    logging.Client

	mu     sync.RWMutex
	closed bool

	spawned  *metrics.Counter
	inflight *metrics.Gauge
	duration *metrics.Histogram
}

// New creates a Runtime ready to accept jobs.
func New(cfg Config) (*Runtime, error) {
	if cfg.Workers < 0 {
		return nil, ErrInvalidWorkers
	}
	if cfg.Workers == 0 {
		cfg.Workers = goruntime.GOMAXPROCS(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Discard()
	}

	spawned, err := cfg.Metrics.NewCounter(metricSpawned)
	if err != nil {
		return nil, fmt.Errorf("could not create metric %s: %w", metricSpawned, err)
	}
	inflight, err := cfg.Metrics.NewGauge(metricInflight)
	if err != nil {
		return nil, fmt.Errorf("could not create metric %s: %w", metricInflight, err)
	}
	duration, err := cfg.Metrics.NewHistogram(metricDuration)
	if err != nil {
		return nil, fmt.Errorf("could not create metric %s: %w", metricDuration, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		ctx:      ctx,
		cancel:   cancel,
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		log:      cfg.Logger,
		spawned:  spawned,
		inflight: inflight,
		duration: duration,
	}, nil
}

// Spawn submits a job. It never blocks; the job waits for a free worker on
// its own goroutine. A job refused with ErrShutdown is discarded first.
func (r *Runtime) Spawn(job Job) error {
	if job.Run == nil {
		return ErrInvalidJob
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		r.discard(job, "runtime shut down")
		return ErrShutdown
	}
	r.wg.Add(1)
	r.mu.RUnlock()

	r.spawned.Inc()
	r.log.Trace("job spawned", "job", job.Name)

	go r.run(job)
	return nil
}

func (r *Runtime) run(job Job) {
	defer r.wg.Done()

	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		r.discard(job, "runtime shut down before job started")
		return
	}
	defer r.sem.Release(1)

	r.inflight.Inc()
	start := time.Now()
	defer func() {
		r.inflight.Dec()
		r.duration.Observe(time.Since(start).Seconds())

		if rec := recover(); rec != nil {
			r.log.Error("job panicked", "job", job.Name, "panic", rec)
			r.discard(job, "job panicked")
			return
		}
		r.log.Trace("job finished", "job", job.Name)
	}()

	job.Run(r.ctx)
}

func (r *Runtime) discard(job Job, reason string) {
	r.log.Debug("job discarded", "job", job.Name, "reason", reason)
	if job.Discard != nil {
		job.Discard()
	}
}

// Shutdown stops accepting jobs, cancels the context handed to running jobs
// and waits for them to return or for ctx to end.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("runtime shutdown: %w", ctx.Err())
	}
}

var (
	defaultOnce    sync.Once
	defaultRuntime atomic.Pointer[Runtime]
)

// Default returns the process-wide Runtime, creating it on first use.
func Default() *Runtime {
	defaultOnce.Do(func() {
		rt, err := New(Config{Logger: logging.NewSlog(nil)})
		if err != nil {
			panic(fmt.Sprintf("runtime: default runtime: %v", err))
		}
		defaultRuntime.Store(rt)
	})
	return defaultRuntime.Load()
}

// ShutdownDefault shuts down the process-wide Runtime if it was ever created.
func ShutdownDefault(ctx context.Context) error {
	rt := defaultRuntime.Load()
	if rt == nil {
		return nil
	}
	return rt.Shutdown(ctx)
}
