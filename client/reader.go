package client

import (
	"context"

	"github.com/tarmac-project/kvbridge/coroutine"
	"github.com/tarmac-project/kvbridge/host"
	"github.com/tarmac-project/kvbridge/kv"
	"github.com/tarmac-project/kvbridge/marshal"
)

// guard wraps a task with a lock; shared and exclusive both fit.
type guard[T any] func(*rwLock, func(context.Context) (T, error)) func(context.Context) (T, error)

// The read operations are the same for snapshots and transactions; only the
// locking differs.

func get(cfg Config, name string, l *rwLock, g guard[optional[kv.Value]], r kv.Reader, key host.Object) *coroutine.Coroutine {
	k, err := marshal.ToKey(key)
	if err != nil {
		return failed(cfg, name, err)
	}

	return launch(cfg, name, g(l, func(ctx context.Context) (optional[kv.Value], error) {
		v, ok, err := r.Get(ctx, k)
		return optional[kv.Value]{v: v, ok: ok}, err
	}), optionalValue)
}

func keyExists(cfg Config, name string, l *rwLock, g guard[bool], r kv.Reader, key host.Object) *coroutine.Coroutine {
	k, err := marshal.ToKey(key)
	if err != nil {
		return failed(cfg, name, err)
	}

	return launch(cfg, name, g(l, func(ctx context.Context) (bool, error) {
		return r.KeyExists(ctx, k)
	}), boolean)
}

func batchGet(cfg Config, name string, l *rwLock, g guard[[]kv.KvPair], r kv.Reader, keys host.Object, opts []Option) *coroutine.Coroutine {
	o, err := resolve(opts)
	if err != nil {
		return failed(cfg, name, err)
	}
	ks, err := marshal.ToKeys(keys)
	if err != nil {
		return failed(cfg, name, err)
	}

	return launch(cfg, name, g(l, func(ctx context.Context) ([]kv.KvPair, error) {
		return r.BatchGet(ctx, ks)
	}), pairs(o.asDict))
}

func scan(cfg Config, name string, l *rwLock, g guard[[]kv.KvPair], r kv.Reader, start, end, limit host.Object, opts []Option) *coroutine.Coroutine {
	br, o, err := rangeArgs(start, end, opts)
	if err != nil {
		return failed(cfg, name, err)
	}
	n, err := marshal.ToUint32(limit)
	if err != nil {
		return failed(cfg, name, err)
	}

	return launch(cfg, name, g(l, func(ctx context.Context) ([]kv.KvPair, error) {
		return r.Scan(ctx, br, n)
	}), pairs(o.asDict))
}

func scanKeys(cfg Config, name string, l *rwLock, g guard[[]kv.Key], r kv.Reader, start, end, limit host.Object, opts []Option) *coroutine.Coroutine {
	br, _, err := rangeArgs(start, end, opts)
	if err != nil {
		return failed(cfg, name, err)
	}
	n, err := marshal.ToUint32(limit)
	if err != nil {
		return failed(cfg, name, err)
	}

	return launch(cfg, name, g(l, func(ctx context.Context) ([]kv.Key, error) {
		return r.ScanKeys(ctx, br, n)
	}), keyList)
}
