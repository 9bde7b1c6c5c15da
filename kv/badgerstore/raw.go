package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/tarmac-project/kvbridge/kv"
)

// Get implements kv.RawStore.
func (s *Store) Get(ctx context.Context, cf kv.ColumnFamily, key kv.Key) (kv.Value, bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, false, err
	}
	if err := kv.ValidateKey(key); err != nil {
		return nil, false, err
	}

	var (
		v  []byte
		ok bool
	)
	err := s.view(math.MaxUint64, func(txn *badger.Txn) error {
		var err error
		v, ok, err = get(txn, rawKey(cf, key))
		return err
	})
	return v, ok, err
}

// BatchGet implements kv.RawStore.
func (s *Store) BatchGet(ctx context.Context, cf kv.ColumnFamily, keys []kv.Key) ([]kv.KvPair, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	pairs := make([]kv.KvPair, 0, len(keys))
	err := s.view(math.MaxUint64, func(txn *badger.Txn) error {
		for _, key := range keys {
			v, ok, err := get(txn, rawKey(cf, key))
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

// GetKeyTTL implements kv.RawStore.
func (s *Store) GetKeyTTL(ctx context.Context, cf kv.ColumnFamily, key kv.Key) (uint64, bool, error) {
	if err := s.check(ctx); err != nil {
		return 0, false, err
	}

	var (
		ttl uint64
		ok  bool
	)
	err := s.view(math.MaxUint64, func(txn *badger.Txn) error {
		item, err := txn.Get(rawKey(cf, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		if exp := item.ExpiresAt(); exp > 0 {
			if rem := int64(exp) - time.Now().Unix(); rem > 0 {
				ttl = uint64(rem)
			}
		}
		return nil
	})
	return ttl, ok, err
}

// Scan implements kv.RawStore.
func (s *Store) Scan(ctx context.Context, cf kv.ColumnFamily, r kv.BoundRange, limit uint32) ([]kv.KvPair, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var pairs []kv.KvPair
	err := s.view(math.MaxUint64, func(txn *badger.Txn) error {
		var err error
		pairs, err = scan(txn, rawCFPrefix(cf), r, limit, true, nil)
		return err
	})
	return pairs, err
}

// ScanKeys implements kv.RawStore.
func (s *Store) ScanKeys(ctx context.Context, cf kv.ColumnFamily, r kv.BoundRange, limit uint32) ([]kv.Key, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var pairs []kv.KvPair
	err := s.view(math.MaxUint64, func(txn *badger.Txn) error {
		var err error
		pairs, err = scan(txn, rawCFPrefix(cf), r, limit, false, nil)
		return err
	})
	return pairKeys(pairs), err
}

func entry(cf kv.ColumnFamily, p kv.TTLPair) (*badger.Entry, error) {
	if err := kv.ValidateKey(p.Key); err != nil {
		return nil, err
	}
	if err := kv.ValidateValue(p.Value); err != nil {
		return nil, fmt.Errorf("key %q: %w", []byte(p.Key), err)
	}
	e := badger.NewEntry(rawKey(cf, p.Key), append([]byte(nil), p.Value...))
	if p.TTL > 0 {
		e = e.WithTTL(time.Duration(p.TTL) * time.Second)
	}
	return e, nil
}

// Put implements kv.RawStore.
func (s *Store) Put(ctx context.Context, cf kv.ColumnFamily, key kv.Key, value kv.Value, ttl uint64) error {
	return s.BatchPutWithTTL(ctx, cf, []kv.TTLPair{{Key: key, Value: value, TTL: ttl}})
}

// BatchPut implements kv.RawStore.
func (s *Store) BatchPut(ctx context.Context, cf kv.ColumnFamily, pairs []kv.KvPair) error {
	ttlPairs := make([]kv.TTLPair, len(pairs))
	for i, p := range pairs {
		ttlPairs[i] = kv.TTLPair{Key: p.Key, Value: p.Value}
	}
	return s.BatchPutWithTTL(ctx, cf, ttlPairs)
}

// BatchPutWithTTL implements kv.RawStore. The batch is written atomically.
func (s *Store) BatchPutWithTTL(ctx context.Context, cf kv.ColumnFamily, pairs []kv.TTLPair) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	entries := make([]*badger.Entry, len(pairs))
	for i, p := range pairs {
		e, err := entry(cf, p)
		if err != nil {
			return err
		}
		entries[i] = e
	}

	_, err := s.write(func(txn *badger.Txn) error {
		for _, e := range entries {
			if err := txn.SetEntry(e); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// Delete implements kv.RawStore.
func (s *Store) Delete(ctx context.Context, cf kv.ColumnFamily, key kv.Key) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	return s.BatchDelete(ctx, cf, []kv.Key{key})
}

// BatchDelete implements kv.RawStore.
func (s *Store) BatchDelete(ctx context.Context, cf kv.ColumnFamily, keys []kv.Key) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	_, err := s.write(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(rawKey(cf, key)); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// DeleteRange implements kv.RawStore.
func (s *Store) DeleteRange(ctx context.Context, cf kv.ColumnFamily, r kv.BoundRange) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	_, err := s.write(func(txn *badger.Txn) error {
		// Collect first; the iterator must be closed before the txn is modified.
		pairs, err := scan(txn, rawCFPrefix(cf), r, math.MaxUint32, false, nil)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			if err := txn.Delete(rawKey(cf, p.Key)); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}
