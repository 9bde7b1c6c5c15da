package client

import (
	"context"

	"github.com/tarmac-project/kvbridge/coroutine"
	"github.com/tarmac-project/kvbridge/host"
	"github.com/tarmac-project/kvbridge/kv"
	"github.com/tarmac-project/kvbridge/marshal"
)

// TransactionClient starts transactions and snapshots on a kv.TxnStore.
type TransactionClient struct {
	cfg   Config
	store kv.TxnStore
}

// NewTransactionClient creates a TransactionClient over store.
func NewTransactionClient(cfg Config, store kv.TxnStore) *TransactionClient {
	return &TransactionClient{cfg: cfg.withDefaults(), store: store}
}

func txnOptions(pessimistic host.Object) (kv.TxnOptions, error) {
	if pessimistic == nil {
		return kv.TxnOptions{}, nil
	}
	p, err := marshal.ToBool(pessimistic)
	if err != nil {
		return kv.TxnOptions{}, err
	}
	return kv.TxnOptions{Pessimistic: p}, nil
}

// Begin resolves to a new Transaction. A nil pessimistic argument means false.
func (c *TransactionClient) Begin(pessimistic host.Object) *coroutine.Coroutine {
	const name = "txn.begin"
	opts, err := txnOptions(pessimistic)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) (kv.Txn, error) {
		return c.store.Begin(ctx, opts)
	}, func(t kv.Txn) (host.Object, error) {
		return &Transaction{cfg: c.cfg, txn: t, lock: newRWLock()}, nil
	})
}

// CurrentTimestamp resolves to a fresh timestamp from the store's oracle.
func (c *TransactionClient) CurrentTimestamp() *coroutine.Coroutine {
	return launch(c.cfg, "txn.current_timestamp", c.store.CurrentTimestamp, integer)
}

// Snapshot resolves to a read-only view at timestamp ts.
func (c *TransactionClient) Snapshot(ts, pessimistic host.Object) *coroutine.Coroutine {
	const name = "txn.snapshot"
	at, err := marshal.ToUint64(ts)
	if err != nil {
		return failed(c.cfg, name, err)
	}
	opts, err := txnOptions(pessimistic)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) (kv.Snapshot, error) {
		return c.store.Snapshot(ctx, at, opts)
	}, func(s kv.Snapshot) (host.Object, error) {
		return &Snapshot{cfg: c.cfg, snap: s, lock: newRWLock()}, nil
	})
}

// GC resolves to whether the store advanced its safepoint.
func (c *TransactionClient) GC(safepoint host.Object) *coroutine.Coroutine {
	const name = "txn.gc"
	sp, err := marshal.ToUint64(safepoint)
	if err != nil {
		return failed(c.cfg, name, err)
	}

	return launch(c.cfg, name, func(ctx context.Context) (bool, error) {
		return c.store.GC(ctx, sp)
	}, boolean)
}

// Snapshot is a host object for a read-only view of the store. Its reads
// hold a shared lock, so several may run at once.
type Snapshot struct {
	cfg  Config
	snap kv.Snapshot
	lock *rwLock
}

func (*Snapshot) Type() string { return "Snapshot" }

// Timestamp returns the timestamp the snapshot reads at.
func (s *Snapshot) Timestamp() uint64 { return s.snap.Timestamp() }

func (s *Snapshot) Get(key host.Object) *coroutine.Coroutine {
	return get(s.cfg, "snapshot.get", s.lock, shared[optional[kv.Value]], s.snap, key)
}

func (s *Snapshot) KeyExists(key host.Object) *coroutine.Coroutine {
	return keyExists(s.cfg, "snapshot.key_exists", s.lock, shared[bool], s.snap, key)
}

func (s *Snapshot) BatchGet(keys host.Object, opts ...Option) *coroutine.Coroutine {
	return batchGet(s.cfg, "snapshot.batch_get", s.lock, shared[[]kv.KvPair], s.snap, keys, opts)
}

func (s *Snapshot) Scan(start, end, limit host.Object, opts ...Option) *coroutine.Coroutine {
	return scan(s.cfg, "snapshot.scan", s.lock, shared[[]kv.KvPair], s.snap, start, end, limit, opts)
}

func (s *Snapshot) ScanKeys(start, end, limit host.Object, opts ...Option) *coroutine.Coroutine {
	return scanKeys(s.cfg, "snapshot.scan_keys", s.lock, shared[[]kv.Key], s.snap, start, end, limit, opts)
}

// Transaction is a host object for a read-write transaction. Every call,
// reads included, holds the transaction's lock exclusively.
type Transaction struct {
	cfg  Config
	txn  kv.Txn
	lock *rwLock
}

func (*Transaction) Type() string { return "Transaction" }

// StartTimestamp returns the timestamp the transaction reads at.
func (t *Transaction) StartTimestamp() uint64 { return t.txn.StartTimestamp() }

func (t *Transaction) Get(key host.Object) *coroutine.Coroutine {
	return get(t.cfg, "txn.get", t.lock, exclusive[optional[kv.Value]], t.txn, key)
}

func (t *Transaction) KeyExists(key host.Object) *coroutine.Coroutine {
	return keyExists(t.cfg, "txn.key_exists", t.lock, exclusive[bool], t.txn, key)
}

func (t *Transaction) BatchGet(keys host.Object, opts ...Option) *coroutine.Coroutine {
	return batchGet(t.cfg, "txn.batch_get", t.lock, exclusive[[]kv.KvPair], t.txn, keys, opts)
}

func (t *Transaction) Scan(start, end, limit host.Object, opts ...Option) *coroutine.Coroutine {
	return scan(t.cfg, "txn.scan", t.lock, exclusive[[]kv.KvPair], t.txn, start, end, limit, opts)
}

func (t *Transaction) ScanKeys(start, end, limit host.Object, opts ...Option) *coroutine.Coroutine {
	return scanKeys(t.cfg, "txn.scan_keys", t.lock, exclusive[[]kv.Key], t.txn, start, end, limit, opts)
}

// GetForUpdate reads the latest committed value of key and locks it.
func (t *Transaction) GetForUpdate(key host.Object) *coroutine.Coroutine {
	const name = "txn.get_for_update"
	k, err := marshal.ToKey(key)
	if err != nil {
		return failed(t.cfg, name, err)
	}

	return launch(t.cfg, name, exclusive(t.lock, func(ctx context.Context) (optional[kv.Value], error) {
		v, ok, err := t.txn.GetForUpdate(ctx, k)
		return optional[kv.Value]{v: v, ok: ok}, err
	}), optionalValue)
}

// BatchGetForUpdate reads and locks several keys.
func (t *Transaction) BatchGetForUpdate(keys host.Object, opts ...Option) *coroutine.Coroutine {
	const name = "txn.batch_get_for_update"
	o, err := resolve(opts)
	if err != nil {
		return failed(t.cfg, name, err)
	}
	ks, err := marshal.ToKeys(keys)
	if err != nil {
		return failed(t.cfg, name, err)
	}

	return launch(t.cfg, name, exclusive(t.lock, func(ctx context.Context) ([]kv.KvPair, error) {
		return t.txn.BatchGetForUpdate(ctx, ks)
	}), pairs(o.asDict))
}

// LockKeys locks keys for the rest of the transaction without reading them.
func (t *Transaction) LockKeys(keys host.Object) *coroutine.Coroutine {
	const name = "txn.lock_keys"
	ks, err := marshal.ToKeys(keys)
	if err != nil {
		return failed(t.cfg, name, err)
	}

	return launch(t.cfg, name, exclusive(t.lock, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.txn.LockKeys(ctx, ks)
	}), none)
}

func (t *Transaction) write(name string, key, value host.Object, fn func(context.Context, kv.Key, kv.Value) error) *coroutine.Coroutine {
	k, err := marshal.ToKey(key)
	if err != nil {
		return failed(t.cfg, name, err)
	}
	v, err := marshal.ToValue(value)
	if err != nil {
		return failed(t.cfg, name, err)
	}

	return launch(t.cfg, name, exclusive(t.lock, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx, k, v)
	}), none)
}

// Put buffers a write of value under key.
func (t *Transaction) Put(key, value host.Object) *coroutine.Coroutine {
	return t.write("txn.put", key, value, t.txn.Put)
}

// Insert buffers a write that fails when key already has a value.
func (t *Transaction) Insert(key, value host.Object) *coroutine.Coroutine {
	return t.write("txn.insert", key, value, t.txn.Insert)
}

// Delete buffers a delete of key.
func (t *Transaction) Delete(key host.Object) *coroutine.Coroutine {
	const name = "txn.delete"
	k, err := marshal.ToKey(key)
	if err != nil {
		return failed(t.cfg, name, err)
	}

	return launch(t.cfg, name, exclusive(t.lock, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.txn.Delete(ctx, k)
	}), none)
}

// Commit resolves to the commit timestamp, or None when nothing was written.
func (t *Transaction) Commit() *coroutine.Coroutine {
	return launch(t.cfg, "txn.commit", exclusive(t.lock, func(ctx context.Context) (optional[uint64], error) {
		ts, ok, err := t.txn.Commit(ctx)
		return optional[uint64]{v: ts, ok: ok}, err
	}), optionalUint)
}

// Rollback discards the buffered writes and releases the transaction's locks.
func (t *Transaction) Rollback() *coroutine.Coroutine {
	return launch(t.cfg, "txn.rollback", exclusive(t.lock, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.txn.Rollback(ctx)
	}), none)
}
