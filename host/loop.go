package host

import (
	"context"
	"time"
)

const (
	defaultIdleInterval    = 50 * time.Microsecond
	defaultMaxIdleInterval = 5 * time.Millisecond
)

// LoopConfig controls how long a Loop idles after a pass in which nothing
// finished.
type LoopConfig struct {
	// IdleInterval is the first pause after an idle pass.
	IdleInterval time.Duration

	// MaxIdleInterval caps the doubling pause.
	MaxIdleInterval time.Duration
}

// Loop is the host's single-threaded cooperative scheduler.
type Loop struct {
	gil *GIL
	cfg LoopConfig
}

// NewLoop creates a Loop that steps iterators under gil.
func NewLoop(gil *GIL, cfg LoopConfig) *Loop {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = defaultIdleInterval
	}
	if cfg.MaxIdleInterval < cfg.IdleInterval {
		cfg.MaxIdleInterval = defaultMaxIdleInterval
		if cfg.MaxIdleInterval < cfg.IdleInterval {
			cfg.MaxIdleInterval = cfg.IdleInterval
		}
	}
	return &Loop{gil: gil, cfg: cfg}
}

// RunUntilComplete drives a until it returns or raises.
func (l *Loop) RunUntilComplete(ctx context.Context, a Awaitable) (Object, error) {
	results, err := l.Gather(ctx, a)
	if len(results) == 0 {
		return nil, err
	}
	return results[0], err
}

// Gather drives every awaitable to completion, interleaving their polls. It
// returns the results in argument order and the first exception raised. When
// ctx ends first, Gather stops polling and returns ctx.Err(); the background
// work is not cancelled.
func (l *Loop) Gather(ctx context.Context, aws ...Awaitable) ([]Object, error) {
	iters := make([]Iterator, len(aws))
	_ = l.gil.With(ctx, func(context.Context) error {
		for i, a := range aws {
			iters[i] = a.Await()
		}
		return nil
	})

	results := make([]Object, len(aws))
	done := make([]bool, len(aws))
	remaining := len(aws)
	var first error

	idle := l.cfg.IdleInterval
	for remaining > 0 {
		progressed := false
		_ = l.gil.With(ctx, func(context.Context) error {
			for i, it := range iters {
				if done[i] {
					continue
				}
				step := it.Next()
				switch step.Kind {
				case Pending:
					continue
				case Return:
					results[i] = step.Value
				case Raise:
					if first == nil && step.Err != nil {
						first = step.Err
					}
				}
				done[i] = true
				remaining--
				progressed = true
			}
			return nil
		})

		if remaining == 0 {
			break
		}
		if progressed {
			idle = l.cfg.IdleInterval
			continue
		}

		if err := l.wait(ctx, iters, done, idle); err != nil {
			return results, err
		}
		idle *= 2
		if idle > l.cfg.MaxIdleInterval {
			idle = l.cfg.MaxIdleInterval
		}
	}

	return results, first
}

// wait pauses for at most d, returning early when the first pending iterator
// that can signal readiness does so.
func (l *Loop) wait(ctx context.Context, iters []Iterator, done []bool, d time.Duration) error {
	var ready <-chan struct{}
	for i, it := range iters {
		if done[i] {
			continue
		}
		if w, ok := it.(Waker); ok {
			ready = w.Ready()
			break
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ready:
	case <-timer.C:
	}
	return nil
}
