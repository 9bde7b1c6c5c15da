package badgerstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/tarmac-project/kvbridge/kv"
)

// Begin implements kv.TxnStore.
func (s *Store) Begin(ctx context.Context, opts kv.TxnOptions) (kv.Txn, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.oracle++
	return &txn{
		s:           s,
		startTS:     s.oracle,
		pessimistic: opts.Pessimistic,
		writes:      make(map[string]write),
		locked:      make(map[string]struct{}),
	}, nil
}

// Snapshot implements kv.TxnStore.
func (s *Store) Snapshot(ctx context.Context, ts uint64, _ kv.TxnOptions) (kv.Snapshot, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ts < s.safepoint {
		return nil, fmt.Errorf("%w: %d < %d", kv.ErrSnapshotTooOld, ts, s.safepoint)
	}
	return &snapshot{s: s, ts: ts}, nil
}

type snapshot struct {
	s  *Store
	ts uint64
}

func (sn *snapshot) Timestamp() uint64 { return sn.ts }

func (sn *snapshot) Get(ctx context.Context, key kv.Key) (kv.Value, bool, error) {
	if err := sn.s.check(ctx); err != nil {
		return nil, false, err
	}

	var (
		v  []byte
		ok bool
	)
	err := sn.s.view(sn.ts, func(txn *badger.Txn) error {
		var err error
		v, ok, err = get(txn, txnKey(key))
		return err
	})
	return v, ok, err
}

func (sn *snapshot) KeyExists(ctx context.Context, key kv.Key) (bool, error) {
	_, ok, err := sn.Get(ctx, key)
	return ok, err
}

func (sn *snapshot) BatchGet(ctx context.Context, keys []kv.Key) ([]kv.KvPair, error) {
	if err := sn.s.check(ctx); err != nil {
		return nil, err
	}

	pairs := make([]kv.KvPair, 0, len(keys))
	err := sn.s.view(sn.ts, func(txn *badger.Txn) error {
		for _, key := range keys {
			v, ok, err := get(txn, txnKey(key))
			if err != nil {
				return err
			}
			if ok {
				pairs = append(pairs, kv.KvPair{Key: append(kv.Key(nil), key...), Value: v})
			}
		}
		return nil
	})
	return pairs, err
}

func (sn *snapshot) Scan(ctx context.Context, r kv.BoundRange, limit uint32) ([]kv.KvPair, error) {
	if err := sn.s.check(ctx); err != nil {
		return nil, err
	}

	var pairs []kv.KvPair
	err := sn.s.view(sn.ts, func(txn *badger.Txn) error {
		var err error
		pairs, err = scan(txn, []byte{txnPrefix}, r, limit, true, nil)
		return err
	})
	return pairs, err
}

func (sn *snapshot) ScanKeys(ctx context.Context, r kv.BoundRange, limit uint32) ([]kv.Key, error) {
	if err := sn.s.check(ctx); err != nil {
		return nil, err
	}

	var pairs []kv.KvPair
	err := sn.s.view(sn.ts, func(txn *badger.Txn) error {
		var err error
		pairs, err = scan(txn, []byte{txnPrefix}, r, limit, false, nil)
		return err
	})
	return pairKeys(pairs), err
}

type write struct {
	value   []byte
	deleted bool
}

// txn buffers writes in memory and applies them in one badger transaction
// at commit.
type txn struct {
	s           *Store
	startTS     uint64
	pessimistic bool

	mu     sync.Mutex
	writes map[string]write
	locked map[string]struct{}
	done   bool
}

func (t *txn) StartTimestamp() uint64 { return t.startTS }

// begin checks the transaction is open. On success t.mu is held and the
// caller must release it.
func (t *txn) begin(ctx context.Context) error {
	if err := t.s.check(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return kv.ErrTxnClosed
	}
	return nil
}

// read returns key as this transaction sees it at ts.
func (t *txn) read(key kv.Key, ts uint64) ([]byte, bool, error) {
	if w, ok := t.writes[string(key)]; ok {
		return append([]byte(nil), w.value...), !w.deleted, nil
	}

	var (
		v  []byte
		ok bool
	)
	err := t.s.view(ts, func(txn *badger.Txn) error {
		var err error
		v, ok, err = get(txn, txnKey(key))
		return err
	})
	return v, ok, err
}

func (t *txn) Get(ctx context.Context, key kv.Key) (kv.Value, bool, error) {
	if err := t.begin(ctx); err != nil {
		return nil, false, err
	}
	defer t.mu.Unlock()
	return t.read(key, t.startTS)
}

func (t *txn) KeyExists(ctx context.Context, key kv.Key) (bool, error) {
	if err := t.begin(ctx); err != nil {
		return false, err
	}
	defer t.mu.Unlock()
	_, ok, err := t.read(key, t.startTS)
	return ok, err
}

func (t *txn) BatchGet(ctx context.Context, keys []kv.Key) ([]kv.KvPair, error) {
	if err := t.begin(ctx); err != nil {
		return nil, err
	}
	defer t.mu.Unlock()
	return t.batchRead(keys, t.startTS)
}

func (t *txn) batchRead(keys []kv.Key, ts uint64) ([]kv.KvPair, error) {
	pairs := make([]kv.KvPair, 0, len(keys))
	for _, key := range keys {
		v, ok, err := t.read(key, ts)
		if err != nil {
			return nil, err
		}
		if ok {
			pairs = append(pairs, kv.KvPair{Key: append(kv.Key(nil), key...), Value: v})
		}
	}
	return pairs, nil
}

// scan merges the buffered writes over the committed pairs at the start timestamp.
func (t *txn) scan(r kv.BoundRange, limit uint32) ([]kv.KvPair, error) {
	var pairs []kv.KvPair
	err := t.s.view(t.startTS, func(txn *badger.Txn) error {
		var err error
		pairs, err = scan(txn, []byte{txnPrefix}, r, limit, true, func(key kv.Key) bool {
			_, buffered := t.writes[string(key)]
			return buffered
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	for k, w := range t.writes {
		if w.deleted || !r.Contains(kv.Key(k)) {
			continue
		}
		pairs = append(pairs, kv.KvPair{Key: kv.Key(k), Value: append(kv.Value(nil), w.value...)})
	}
	kv.SortPairs(pairs)
	return kv.ApplyLimit(pairs, limit), nil
}

func (t *txn) Scan(ctx context.Context, r kv.BoundRange, limit uint32) ([]kv.KvPair, error) {
	if err := t.begin(ctx); err != nil {
		return nil, err
	}
	defer t.mu.Unlock()
	return t.scan(r, limit)
}

func (t *txn) ScanKeys(ctx context.Context, r kv.BoundRange, limit uint32) ([]kv.Key, error) {
	if err := t.begin(ctx); err != nil {
		return nil, err
	}
	defer t.mu.Unlock()
	pairs, err := t.scan(r, limit)
	return pairKeys(pairs), err
}

// lock takes the pessimistic lock on key.
func (t *txn) lock(key kv.Key) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	owner, held := t.s.locks[string(key)]
	if held && owner != t.startTS {
		return fmt.Errorf("%w: %q", kv.ErrKeyLocked, []byte(key))
	}
	t.s.locks[string(key)] = t.startTS
	t.locked[string(key)] = struct{}{}
	return nil
}

func (t *txn) GetForUpdate(ctx context.Context, key kv.Key) (kv.Value, bool, error) {
	if err := t.begin(ctx); err != nil {
		return nil, false, err
	}
	defer t.mu.Unlock()

	if err := t.lock(key); err != nil {
		return nil, false, err
	}
	return t.read(key, math.MaxUint64)
}

func (t *txn) BatchGetForUpdate(ctx context.Context, keys []kv.Key) ([]kv.KvPair, error) {
	if err := t.begin(ctx); err != nil {
		return nil, err
	}
	defer t.mu.Unlock()

	for _, key := range keys {
		if err := t.lock(key); err != nil {
			return nil, err
		}
	}
	return t.batchRead(keys, math.MaxUint64)
}

func (t *txn) LockKeys(ctx context.Context, keys []kv.Key) error {
	if err := t.begin(ctx); err != nil {
		return err
	}
	defer t.mu.Unlock()

	for _, key := range keys {
		if err := t.lock(key); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) buffer(key kv.Key, w write) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	if t.pessimistic {
		if err := t.lock(key); err != nil {
			return err
		}
	}
	t.writes[string(key)] = w
	return nil
}

func (t *txn) Put(ctx context.Context, key kv.Key, value kv.Value) error {
	if err := t.begin(ctx); err != nil {
		return err
	}
	defer t.mu.Unlock()

	if err := kv.ValidateValue(value); err != nil {
		return err
	}
	return t.buffer(key, write{value: append([]byte(nil), value...)})
}

func (t *txn) Insert(ctx context.Context, key kv.Key, value kv.Value) error {
	if err := t.begin(ctx); err != nil {
		return err
	}
	defer t.mu.Unlock()

	if err := kv.ValidateValue(value); err != nil {
		return err
	}
	_, exists, err := t.read(key, t.startTS)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q", kv.ErrKeyExists, []byte(key))
	}
	return t.buffer(key, write{value: append([]byte(nil), value...)})
}

func (t *txn) Delete(ctx context.Context, key kv.Key) error {
	if err := t.begin(ctx); err != nil {
		return err
	}
	defer t.mu.Unlock()
	return t.buffer(key, write{deleted: true})
}

// finish closes the transaction and releases its locks. Callers hold t.mu.
func (t *txn) finish() {
	t.done = true
	t.writes = nil

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for k := range t.locked {
		if t.s.locks[k] == t.startTS {
			delete(t.s.locks, k)
		}
	}
}

// latestVersion returns the newest committed version of key, tombstones
// included. Callers hold s.mu.
func (s *Store) latestVersion(key []byte) uint64 {
	txn := s.db.NewTransactionAt(math.MaxUint64, false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.AllVersions = true
	opts.PrefetchValues = false
	it := txn.NewKeyIterator(key, opts)
	defer it.Close()

	it.Rewind()
	if !it.Valid() || !bytes.Equal(it.Item().Key(), key) {
		return 0
	}
	return it.Item().Version()
}

func (t *txn) Commit(ctx context.Context) (uint64, bool, error) {
	if err := t.begin(ctx); err != nil {
		return 0, false, err
	}
	defer t.mu.Unlock()
	defer t.finish()

	if len(t.writes) == 0 {
		return 0, false, nil
	}

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range t.writes {
		if owner, held := s.locks[k]; held && owner != t.startTS {
			return 0, false, fmt.Errorf("%w: %q", kv.ErrKeyLocked, k)
		}
		if v := s.latestVersion(txnKey(kv.Key(k))); v > t.startTS {
			return 0, false, fmt.Errorf("%w: %q", kv.ErrWriteConflict, k)
		}
	}

	bt := s.db.NewTransactionAt(t.startTS, true)
	defer bt.Discard()
	for k, w := range t.writes {
		var err error
		if w.deleted {
			err = bt.Delete(txnKey(kv.Key(k)))
		} else {
			err = bt.Set(txnKey(kv.Key(k)), w.value)
		}
		if err != nil {
			return 0, false, fmt.Errorf("failed to stage %q: %w", k, err)
		}
	}

	s.oracle++
	commitTS := s.oracle
	if err := bt.CommitAt(commitTS, nil); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return 0, false, fmt.Errorf("%w: %w", kv.ErrWriteConflict, err)
		}
		return 0, false, fmt.Errorf("failed to commit at %d: %w", commitTS, err)
	}
	return commitTS, true, nil
}

func (t *txn) Rollback(ctx context.Context) error {
	if err := t.begin(ctx); err != nil {
		return err
	}
	defer t.mu.Unlock()
	t.finish()
	return nil
}
