package client

import (
	"context"

	"github.com/tarmac-project/kvbridge/coroutine"
	"github.com/tarmac-project/kvbridge/host"
	"github.com/tarmac-project/kvbridge/kv"
	"github.com/tarmac-project/kvbridge/marshal"
)

// RawClient runs non-transactional operations against a kv.RawStore.
type RawClient struct {
	cfg   Config
	store kv.RawStore
}

// NewRawClient creates a RawClient over store.
func NewRawClient(cfg Config, store kv.RawStore) *RawClient {
	return &RawClient{cfg: cfg.withDefaults(), store: store}
}

// Get resolves to the value of key, or None when it is missing.
func (c *RawClient) Get(key host.Object, opts ...Option) *coroutine.Coroutine {
	const name = "raw.get"
	o, err := resolve(opts)
	if err != nil {
		return failed(c.cfg, name, err)
	}
	k, err := marshal.ToKey(key)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) (optional[kv.Value], error) {
		v, ok, err := c.store.Get(ctx, o.cf, k)
		return optional[kv.Value]{v: v, ok: ok}, err
	}, optionalValue)
}

// BatchGet resolves to the (key, value) pairs of the keys that exist.
func (c *RawClient) BatchGet(keys host.Object, opts ...Option) *coroutine.Coroutine {
	const name = "raw.batch_get"
	o, err := resolve(opts)
	if err != nil {
		return failed(c.cfg, name, err)
	}
	ks, err := marshal.ToKeys(keys)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) ([]kv.KvPair, error) {
		return c.store.BatchGet(ctx, o.cf, ks)
	}, pairs(o.asDict))
}

// GetKeyTTL resolves to the seconds left before key expires, 0 when it never
// expires, or None when it is missing.
func (c *RawClient) GetKeyTTL(key host.Object, opts ...Option) *coroutine.Coroutine {
	const name = "raw.get_key_ttl"
	o, err := resolve(opts)
	if err != nil {
		return failed(c.cfg, name, err)
	}
	k, err := marshal.ToKey(key)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) (optional[uint64], error) {
		ttl, ok, err := c.store.GetKeyTTL(ctx, o.cf, k)
		return optional[uint64]{v: ttl, ok: ok}, err
	}, optionalUint)
}

// Scan resolves to up to limit (key, value) pairs within the range, in key order.
func (c *RawClient) Scan(start, end, limit host.Object, opts ...Option) *coroutine.Coroutine {
	const name = "raw.scan"
	r, o, err := rangeArgs(start, end, opts)
	if err != nil {
		return failed(c.cfg, name, err)
	}
	n, err := marshal.ToUint32(limit)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) ([]kv.KvPair, error) {
		return c.store.Scan(ctx, o.cf, r, n)
	}, pairs(o.asDict))
}

// ScanKeys resolves to up to limit keys within the range, in key order.
func (c *RawClient) ScanKeys(start, end, limit host.Object, opts ...Option) *coroutine.Coroutine {
	const name = "raw.scan_keys"
	r, o, err := rangeArgs(start, end, opts)
	if err != nil {
		return failed(c.cfg, name, err)
	}
	n, err := marshal.ToUint32(limit)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) ([]kv.Key, error) {
		return c.store.ScanKeys(ctx, o.cf, r, n)
	}, keyList)
}

// Put stores value under key. Use TTL to make it expire.
func (c *RawClient) Put(key, value host.Object, opts ...Option) *coroutine.Coroutine {
	const name = "raw.put"
	o, err := resolve(opts)
	if err != nil {
		return failed(c.cfg, name, err)
	}
	k, err := marshal.ToKey(key)
	if err != nil {
		return failed(c.cfg, name, err)
	}
	v, err := marshal.ToValue(value)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.Put(ctx, o.cf, k, v, o.ttl)
	}, none)
}

// BatchPut stores every entry of a {key: value} mapping.
func (c *RawClient) BatchPut(mapping host.Object, opts ...Option) *coroutine.Coroutine {
	const name = "raw.batch_put"
	o, err := resolve(opts)
	if err != nil {
		return failed(c.cfg, name, err)
	}
	ps, err := marshal.ToKvPairs(mapping)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.BatchPut(ctx, o.cf, ps)
	}, none)
}

// BatchPutWithTTL stores every entry of a {key: (value, ttl_seconds)} mapping.
func (c *RawClient) BatchPutWithTTL(mapping host.Object, opts ...Option) *coroutine.Coroutine {
	const name = "raw.batch_put_with_ttl"
	o, err := resolve(opts)
	if err != nil {
		return failed(c.cfg, name, err)
	}
	ps, err := marshal.ToTTLPairs(mapping)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.BatchPutWithTTL(ctx, o.cf, ps)
	}, none)
}

// Delete removes key. Deleting a missing key succeeds.
func (c *RawClient) Delete(key host.Object, opts ...Option) *coroutine.Coroutine {
	const name = "raw.delete"
	o, err := resolve(opts)
	if err != nil {
		return failed(c.cfg, name, err)
	}
	k, err := marshal.ToKey(key)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.Delete(ctx, o.cf, k)
	}, none)
}

// BatchDelete removes every key in a list.
func (c *RawClient) BatchDelete(keys host.Object, opts ...Option) *coroutine.Coroutine {
	const name = "raw.batch_delete"
	o, err := resolve(opts)
	if err != nil {
		return failed(c.cfg, name, err)
	}
	ks, err := marshal.ToKeys(keys)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.BatchDelete(ctx, o.cf, ks)
	}, none)
}

// DeleteRange removes every key within the range. A None end deletes
// everything from start onwards.
func (c *RawClient) DeleteRange(start, end host.Object, opts ...Option) *coroutine.Coroutine {
	const name = "raw.delete_range"
	r, o, err := rangeArgs(start, end, opts)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.DeleteRange(ctx, o.cf, r)
	}, none)
}
