package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/redis/go-redis/v9"
	"github.com/tarmac-project/kvbridge/kv"
	"github.com/tarmac-project/kvbridge/logging"
)

// DefaultNamespace prefixes every Redis key written by the store.
const DefaultNamespace = "kvbridge"

// scanBatch is the minimum number of index members fetched per round trip.
const scanBatch = 64

// Config configures a Redis backed store.
type Config struct {
	// Client is used when set; otherwise a client is created for Addr and
	// closed with the store.
	Client *redis.Client

	// Addr is the Redis address used when Client is nil.
	Addr string

	// Namespace prefixes every key. Defaults to DefaultNamespace.
	Namespace string

	// CacheSize enables a read cache holding up to this many bytes of values.
	CacheSize int64

	// CacheTTL bounds how long a cached value is served. Defaults to one second.
	// Keys written with a TTL are never cached.
	CacheTTL time.Duration

	// Logger receives store events.
	Logger logging.Client
}

// Store implements kv.RawStore.
type Store struct {
	client   *redis.Client
	owned    bool
	ns       string
	cache    *ristretto.Cache[string, []byte]
	cacheTTL time.Duration
	log      logging.Client

	// gen counts local writes. A read fills the cache only when no write
	// happened between its fetch and the fill.
	genMu sync.Mutex
	gen   uint64
}

var _ kv.RawStore = (*Store)(nil)

// New creates a store from cfg.
func New(cfg Config) (*Store, error) {
	s := &Store{
		client:   cfg.Client,
		ns:       cfg.Namespace,
		cacheTTL: cfg.CacheTTL,
		log:      cfg.Logger,
	}
	if s.ns == "" {
		s.ns = DefaultNamespace
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = time.Second
	}
	if s.log == nil {
		s.log = logging.Nop()
	}

	if s.client == nil {
		if cfg.Addr == "" {
			return nil, fmt.Errorf("redis address is required when no client is provided")
		}
		s.client = redis.NewClient(&redis.Options{Addr: cfg.Addr})
		s.owned = true
	}

	if cfg.CacheSize > 0 {
		c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
			NumCounters: 10 * (cfg.CacheSize/64 + 1),
			MaxCost:     cfg.CacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create read cache: %w", err)
		}
		s.cache = c
	}

	return s, nil
}

// Close releases the cache and, when the store created it, the client.
func (s *Store) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.owned {
		return s.client.Close()
	}
	return nil
}

func (s *Store) valueKey(cf kv.ColumnFamily, key kv.Key) string {
	return s.ns + ":" + string(cf) + ":v:" + string(key)
}

func (s *Store) indexKey(cf kv.ColumnFamily) string {
	return s.ns + ":" + string(cf) + ":idx"
}

func cacheKey(cf kv.ColumnFamily, key kv.Key) string {
	return string(cf) + "\x00" + string(key)
}

func (s *Store) cached(cf kv.ColumnFamily, key kv.Key) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	v, ok := s.cache.Get(cacheKey(cf, key))
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

func (s *Store) generation() uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gen
}

// remember caches v if no write has happened since generation gen.
func (s *Store) remember(cf kv.ColumnFamily, key kv.Key, v []byte, gen uint64) {
	if s.cache == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if gen != s.gen {
		return
	}
	s.cache.SetWithTTL(cacheKey(cf, key), append([]byte(nil), v...), int64(len(v)), s.cacheTTL)
}

func (s *Store) forget(cf kv.ColumnFamily, keys ...kv.Key) {
	if s.cache == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gen++
	for _, k := range keys {
		s.cache.Del(cacheKey(cf, k))
	}
}

// Get implements kv.RawStore.
func (s *Store) Get(ctx context.Context, cf kv.ColumnFamily, key kv.Key) (kv.Value, bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return nil, false, err
	}
	if v, ok := s.cached(cf, key); ok {
		return v, true, nil
	}

	gen := s.generation()
	name := s.valueKey(cf, key)
	var get *redis.StringCmd
	var ttl *redis.DurationCmd
	_, _ = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		get = p.Get(ctx, name)
		ttl = p.PTTL(ctx, name)
		return nil
	})

	v, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %q: %w", []byte(key), err)
	}
	// Only keys without an expiry are cached: a cached copy must never
	// outlive the key itself.
	if d, err := ttl.Result(); err == nil && d == -1 {
		s.remember(cf, key, v, gen)
	}
	return v, true, nil
}

// values fetches keys with one MGET. Missing keys yield nil entries.
func (s *Store) values(ctx context.Context, cf kv.ColumnFamily, keys []kv.Key) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = s.valueKey(cf, k)
	}

	res, err := s.client.MGet(ctx, names...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get %d keys: %w", len(keys), err)
	}

	out := make([][]byte, len(res))
	for i, r := range res {
		if str, ok := r.(string); ok {
			out[i] = []byte(str)
		}
	}
	return out, nil
}

// BatchGet implements kv.RawStore.
func (s *Store) BatchGet(ctx context.Context, cf kv.ColumnFamily, keys []kv.Key) ([]kv.KvPair, error) {
	vals, err := s.values(ctx, cf, keys)
	if err != nil {
		return nil, err
	}
	pairs := make([]kv.KvPair, 0, len(keys))
	for i, v := range vals {
		if v != nil {
			pairs = append(pairs, kv.KvPair{Key: append(kv.Key(nil), keys[i]...), Value: v})
		}
	}
	return pairs, nil
}

// GetKeyTTL implements kv.RawStore.
func (s *Store) GetKeyTTL(ctx context.Context, cf kv.ColumnFamily, key kv.Key) (uint64, bool, error) {
	d, err := s.client.TTL(ctx, s.valueKey(cf, key)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get ttl of %q: %w", []byte(key), err)
	}
	switch {
	case d == -2:
		return 0, false, nil
	case d < 0:
		return 0, true, nil
	}
	return uint64(d / time.Second), true, nil
}
