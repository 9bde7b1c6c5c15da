package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tarmac-project/kvbridge/kv"
)

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

// BatchPutWithTTL implements kv.RawStore. The batch is applied in one MULTI block.
func (s *Store) BatchPutWithTTL(ctx context.Context, cf kv.ColumnFamily, pairs []kv.TTLPair) error {
	for _, p := range pairs {
		if err := kv.ValidateKey(p.Key); err != nil {
			return err
		}
		if err := kv.ValidateValue(p.Value); err != nil {
			return fmt.Errorf("key %q: %w", []byte(p.Key), err)
		}
	}
	if len(pairs) == 0 {
		return nil
	}

	idx := s.indexKey(cf)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range pairs {
			pipe.Set(ctx, s.valueKey(cf, p.Key), []byte(p.Value), time.Duration(p.TTL)*time.Second)
			pipe.ZAdd(ctx, idx, redis.Z{Member: string(p.Key)})
		}
		return nil
	})

	for _, p := range pairs {
		s.forget(cf, p.Key)
	}
	if err != nil {
		return fmt.Errorf("failed to put %d keys: %w", len(pairs), err)
	}
	return nil
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
	if len(keys) == 0 {
		return nil
	}

	names := make([]string, len(keys))
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		names[i] = s.valueKey(cf, k)
		members[i] = string(k)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, names...)
		pipe.ZRem(ctx, s.indexKey(cf), members...)
		return nil
	})

	s.forget(cf, keys...)
	if err != nil {
		return fmt.Errorf("failed to delete %d keys: %w", len(keys), err)
	}
	return nil
}

// DeleteRange implements kv.RawStore.
func (s *Store) DeleteRange(ctx context.Context, cf kv.ColumnFamily, r kv.BoundRange) error {
	lo, hi := lexBound(r.Start, true), lexBound(r.End, false)
	members, err := s.members(ctx, cf, lo, hi, 0)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	names := make([]string, len(members))
	keys := make([]kv.Key, len(members))
	for i, m := range members {
		names[i] = s.valueKey(cf, kv.Key(m))
		keys[i] = kv.Key(m)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, names...)
		pipe.ZRemRangeByLex(ctx, s.indexKey(cf), lo, hi)
		return nil
	})

	s.forget(cf, keys...)
	if err != nil {
		return fmt.Errorf("failed to delete range %s: %w", r, err)
	}
	return nil
}
