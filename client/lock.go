package client

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// maxReaders bounds how many shared holders a rwLock admits at once.
const maxReaders = 1 << 16

// rwLock is a reader/writer lock whose acquisition honours a context. A
// waiting writer blocks readers that arrive after it.
type rwLock struct {
	sem *semaphore.Weighted
}

func newRWLock() *rwLock {
	return &rwLock{sem: semaphore.NewWeighted(maxReaders)}
}

func (l *rwLock) lock(ctx context.Context) error  { return l.sem.Acquire(ctx, maxReaders) }
func (l *rwLock) unlock()                         { l.sem.Release(maxReaders) }
func (l *rwLock) rlock(ctx context.Context) error { return l.sem.Acquire(ctx, 1) }
func (l *rwLock) runlock()                        { l.sem.Release(1) }

// exclusive runs fn holding l exclusively.
func exclusive[T any](l *rwLock, fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		if err := l.lock(ctx); err != nil {
			var zero T
			return zero, err
		}
		defer l.unlock()
		return fn(ctx)
	}
}

// shared runs fn holding l shared.
func shared[T any](l *rwLock, fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		if err := l.rlock(ctx); err != nil {
			var zero T
			return zero, err
		}
		defer l.runlock()
		return fn(ctx)
	}
}
