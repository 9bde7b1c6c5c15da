package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/tarmac-project/kvbridge/kv"
)

var ctx = context.Background()

func open(t *testing.T, cacheSize int64) (*Store, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	s, err := New(Config{Addr: m.Addr(), CacheSize: cacheSize, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, m
}

func seed(t *testing.T, s *Store, cf kv.ColumnFamily, keys ...string) {
	t.Helper()
	pairs := make([]kv.KvPair, len(keys))
	for i, k := range keys {
		pairs[i] = kv.KvPair{Key: kv.Key(k), Value: kv.Value("v" + k)}
	}
	if err := s.BatchPut(ctx, cf, pairs); err != nil {
		t.Fatalf("BatchPut returned error: %v", err)
	}
}

func names(ks []kv.Key) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = string(k)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected an error without a client or address")
	}

	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()

	s, err := New(Config{Client: client, Namespace: "app"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := s.Put(ctx, kv.CFDefault, kv.Key("k"), kv.Value("v"), 0); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if !m.Exists("app:default:v:k") {
		t.Fatalf("expected namespaced value key, have %v", m.Keys())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Close should not close a caller supplied client: %v", err)
	}
}

func TestGetPut(t *testing.T) {
	t.Parallel()

	for _, size := range []int64{0, 1 << 20} {
		s, _ := open(t, size)

		if err := s.Put(ctx, kv.CFDefault, kv.Key("k"), kv.Value("v1"), 0); err != nil {
			t.Fatalf("Put returned error: %v", err)
		}
		v, ok, err := s.Get(ctx, kv.CFDefault, kv.Key("k"))
		if err != nil || !ok || string(v) != "v1" {
			t.Fatalf("unexpected result %q %v %v", v, ok, err)
		}

		// A write through the store replaces any cached value.
		if err := s.Put(ctx, kv.CFDefault, kv.Key("k"), kv.Value("v2"), 0); err != nil {
			t.Fatalf("Put returned error: %v", err)
		}
		if s.cache != nil {
			s.cache.Wait()
		}
		if v, _, _ := s.Get(ctx, kv.CFDefault, kv.Key("k")); string(v) != "v2" {
			t.Fatalf("expected v2, got %q", v)
		}

		if _, ok, err := s.Get(ctx, kv.CFDefault, kv.Key("missing")); ok || err != nil {
			t.Fatalf("expected missing key, got %v %v", ok, err)
		}
		if _, ok, _ := s.Get(ctx, kv.CFLock, kv.Key("k")); ok {
			t.Fatalf("expected column families to be isolated")
		}
		if err := s.Put(ctx, kv.CFDefault, kv.Key("k"), kv.Value(""), 0); !errors.Is(err, kv.ErrInvalidValue) {
			t.Fatalf("expected ErrInvalidValue, got %v", err)
		}
		if _, _, err := s.Get(ctx, kv.CFDefault, kv.Key("")); !errors.Is(err, kv.ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey, got %v", err)
		}
	}
}

func TestBatchGet(t *testing.T) {
	t.Parallel()
	s, _ := open(t, 0)
	seed(t, s, kv.CFDefault, "a", "b", "c")

	pairs, err := s.BatchGet(ctx, kv.CFDefault, []kv.Key{kv.Key("c"), kv.Key("x"), kv.Key("a")})
	if err != nil {
		t.Fatalf("BatchGet returned error: %v", err)
	}
	if len(pairs) != 2 || string(pairs[0].Key) != "c" || string(pairs[1].Value) != "va" {
		t.Fatalf("unexpected pairs %+v", pairs)
	}
}

func TestTTL(t *testing.T) {
	t.Parallel()
	s, m := open(t, 0)

	err := s.BatchPutWithTTL(ctx, kv.CFDefault, []kv.TTLPair{
		{Key: kv.Key("a"), Value: kv.Value("1")},
		{Key: kv.Key("b"), Value: kv.Value("2"), TTL: 10},
		{Key: kv.Key("c"), Value: kv.Value("3")},
	})
	if err != nil {
		t.Fatalf("BatchPutWithTTL returned error: %v", err)
	}

	if ttl, ok, err := s.GetKeyTTL(ctx, kv.CFDefault, kv.Key("b")); err != nil || !ok || ttl != 10 {
		t.Fatalf("unexpected ttl %d %v %v", ttl, ok, err)
	}
	if ttl, ok, _ := s.GetKeyTTL(ctx, kv.CFDefault, kv.Key("a")); !ok || ttl != 0 {
		t.Fatalf("expected no expiry, got %d %v", ttl, ok)
	}
	if _, ok, _ := s.GetKeyTTL(ctx, kv.CFDefault, kv.Key("missing")); ok {
		t.Fatalf("expected missing key")
	}

	m.FastForward(11 * time.Second)

	got, err := s.ScanKeys(ctx, kv.CFDefault, kv.BoundRange{}, 10)
	if err != nil || !equal(names(got), []string{"a", "c"}) {
		t.Fatalf("unexpected keys %v %v", names(got), err)
	}
	members, _ := m.ZMembers("kvbridge:default:idx")
	if !equal(members, []string{"a", "c"}) {
		t.Fatalf("expected expired member to be pruned, have %v", members)
	}
}

func TestScan(t *testing.T) {
	t.Parallel()
	s, _ := open(t, 0)
	seed(t, s, kv.CFDefault, "a", "b", "c", "d", "\x00", "\xff")

	tc := []struct {
		name  string
		r     kv.BoundRange
		limit uint32
		want  []string
	}{
		{"Half open", kv.BoundRange{Start: kv.Inclusive(kv.Key("a")), End: kv.Exclusive(kv.Key("c"))}, 10, []string{"a", "b"}},
		{"Closed", kv.BoundRange{Start: kv.Inclusive(kv.Key("a")), End: kv.Inclusive(kv.Key("c"))}, 10, []string{"a", "b", "c"}},
		{"Open", kv.BoundRange{Start: kv.Exclusive(kv.Key("a")), End: kv.Exclusive(kv.Key("d"))}, 10, []string{"b", "c"}},
		{"Unbounded", kv.BoundRange{}, 10, []string{"\x00", "a", "b", "c", "d", "\xff"}},
		{"Limit", kv.BoundRange{Start: kv.Inclusive(kv.Key("b"))}, 2, []string{"b", "c"}},
		{"Zero limit", kv.BoundRange{}, 0, nil},
	}

	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			got, err := s.ScanKeys(ctx, kv.CFDefault, c.r, c.limit)
			if err != nil {
				t.Fatalf("ScanKeys returned error: %v", err)
			}
			if !equal(names(got), c.want) {
				t.Fatalf("expected %q, got %q", c.want, names(got))
			}
		})
	}

	t.Run("Values", func(t *testing.T) {
		pairs, err := s.Scan(ctx, kv.CFDefault, kv.BoundRange{Start: kv.Inclusive(kv.Key("c"))}, 1)
		if err != nil || len(pairs) != 1 || string(pairs[0].Value) != "vc" {
			t.Fatalf("unexpected pairs %+v %v", pairs, err)
		}
	})
}

func TestScanPagesPastExpiredMembers(t *testing.T) {
	t.Parallel()
	s, m := open(t, 0)

	var pairs []kv.TTLPair
	for i := 0; i < 2*scanBatch; i++ {
		pairs = append(pairs, kv.TTLPair{Key: kv.Key{'a', byte(i)}, Value: kv.Value("x"), TTL: 5})
	}
	pairs = append(pairs, kv.TTLPair{Key: kv.Key("b"), Value: kv.Value("live")})
	if err := s.BatchPutWithTTL(ctx, kv.CFDefault, pairs); err != nil {
		t.Fatalf("BatchPutWithTTL returned error: %v", err)
	}
	m.FastForward(6 * time.Second)

	got, err := s.Scan(ctx, kv.CFDefault, kv.BoundRange{}, 1)
	if err != nil || len(got) != 1 || string(got[0].Key) != "b" {
		t.Fatalf("unexpected pairs %+v %v", got, err)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s, m := open(t, 1<<20)
	seed(t, s, kv.CFDefault, "a", "b", "c", "d", "e")

	// Warm the cache so deletes must invalidate it.
	for _, k := range []string{"a", "d"} {
		_, _, _ = s.Get(ctx, kv.CFDefault, kv.Key(k))
	}
	s.cache.Wait()

	if err := s.Delete(ctx, kv.CFDefault, kv.Key("a")); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := s.Delete(ctx, kv.CFDefault, kv.Key("missing")); err != nil {
		t.Fatalf("Delete of a missing key returned error: %v", err)
	}
	if err := s.BatchDelete(ctx, kv.CFDefault, []kv.Key{kv.Key("b")}); err != nil {
		t.Fatalf("BatchDelete returned error: %v", err)
	}
	if err := s.DeleteRange(ctx, kv.CFDefault, kv.BoundRange{Start: kv.Inclusive(kv.Key("d"))}); err != nil {
		t.Fatalf("DeleteRange returned error: %v", err)
	}

	got, err := s.ScanKeys(ctx, kv.CFDefault, kv.BoundRange{}, 10)
	if err != nil || !equal(names(got), []string{"c"}) {
		t.Fatalf("unexpected keys %v %v", names(got), err)
	}
	for _, k := range []string{"a", "d"} {
		if _, ok, _ := s.Get(ctx, kv.CFDefault, kv.Key(k)); ok {
			t.Fatalf("expected %s to be deleted", k)
		}
	}
	if m.Exists("kvbridge:default:v:e") {
		t.Fatalf("expected value key to be removed")
	}
}

func TestReadCache(t *testing.T) {
	t.Parallel()

	t.Run("serves keys without expiry", func(t *testing.T) {
		t.Parallel()
		s, m := open(t, 1<<20)

		if err := s.Put(ctx, kv.CFDefault, kv.Key("k"), kv.Value("v"), 0); err != nil {
			t.Fatalf("Put returned error: %v", err)
		}
		if _, ok, err := s.Get(ctx, kv.CFDefault, kv.Key("k")); !ok || err != nil {
			t.Fatalf("unexpected result %v %v", ok, err)
		}
		s.cache.Wait()

		// Removed behind the store's back, so only the cache can answer.
		m.Del("kvbridge:default:v:k")
		if v, ok, _ := s.Get(ctx, kv.CFDefault, kv.Key("k")); !ok || string(v) != "v" {
			t.Fatalf("expected cached value, got %q %v", v, ok)
		}
	})

	t.Run("expiring keys are not served after expiry", func(t *testing.T) {
		t.Parallel()
		s, m := open(t, 1<<20)

		if err := s.Put(ctx, kv.CFDefault, kv.Key("k"), kv.Value("v"), 1); err != nil {
			t.Fatalf("Put returned error: %v", err)
		}
		if _, ok, err := s.Get(ctx, kv.CFDefault, kv.Key("k")); !ok || err != nil {
			t.Fatalf("unexpected result %v %v", ok, err)
		}
		s.cache.Wait()

		m.FastForward(2 * time.Second)
		if _, ok, _ := s.GetKeyTTL(ctx, kv.CFDefault, kv.Key("k")); ok {
			t.Fatalf("expected key to have expired")
		}
		if v, ok, err := s.Get(ctx, kv.CFDefault, kv.Key("k")); ok || err != nil {
			t.Fatalf("expected expired key to be missing, got %q %v %v", v, ok, err)
		}
	})

	t.Run("fill after a write is dropped", func(t *testing.T) {
		t.Parallel()
		s, _ := open(t, 1<<20)

		gen := s.generation()
		if err := s.Put(ctx, kv.CFDefault, kv.Key("k"), kv.Value("v2"), 0); err != nil {
			t.Fatalf("Put returned error: %v", err)
		}
		s.remember(kv.CFDefault, kv.Key("k"), []byte("v1"), gen)
		s.cache.Wait()

		if _, ok := s.cached(kv.CFDefault, kv.Key("k")); ok {
			t.Fatalf("stale fill should not be cached")
		}
		if v, _, _ := s.Get(ctx, kv.CFDefault, kv.Key("k")); string(v) != "v2" {
			t.Fatalf("expected v2, got %q", v)
		}
	})
}
