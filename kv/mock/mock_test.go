package mock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tarmac-project/kvbridge/kv"
)

var ctx = context.Background()

func TestRawStore(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	advance := func(d time.Duration) { mu.Lock(); now = now.Add(d); mu.Unlock() }

	s := New(Config{Seed: map[string][]byte{"a": []byte("1")}, Now: clock})

	if err := s.Put(ctx, kv.CFDefault, kv.Key("b"), kv.Value("2"), 10); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if err := s.BatchPutWithTTL(ctx, kv.CFDefault, []kv.TTLPair{{Key: kv.Key("c"), Value: kv.Value("3")}}); err != nil {
		t.Fatalf("BatchPutWithTTL returned error: %v", err)
	}

	ttl, ok, err := s.GetKeyTTL(ctx, kv.CFDefault, kv.Key("b"))
	if err != nil || !ok || ttl != 10 {
		t.Fatalf("unexpected ttl: %d %v %v", ttl, ok, err)
	}
	if ttl, ok, _ := s.GetKeyTTL(ctx, kv.CFDefault, kv.Key("a")); !ok || ttl != 0 {
		t.Fatalf("expected no expiry for a, got %d %v", ttl, ok)
	}
	if _, ok, _ := s.GetKeyTTL(ctx, kv.CFDefault, kv.Key("zz")); ok {
		t.Fatalf("expected missing key")
	}

	advance(11 * time.Second)
	if _, ok, _ := s.Get(ctx, kv.CFDefault, kv.Key("b")); ok {
		t.Fatalf("expected b to have expired")
	}

	pairs, err := s.Scan(ctx, kv.CFDefault, kv.BoundRange{Start: kv.Inclusive(kv.Key("a"))}, 10)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(pairs) != 2 || string(pairs[0].Key) != "a" || string(pairs[1].Key) != "c" {
		t.Fatalf("unexpected pairs %+v", pairs)
	}

	if _, ok, _ := s.Get(ctx, kv.CFLock, kv.Key("a")); ok {
		t.Fatalf("expected column families to be isolated")
	}

	if err := s.Put(ctx, kv.CFDefault, kv.Key(""), kv.Value("x"), 0); !errors.Is(err, kv.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestOverrides(t *testing.T) {
	t.Parallel()

	t.Run("return error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("region unavailable")
		s := New(Config{})
		s.OnGet(kv.Key("k")).ReturnError(boom)

		if _, _, err := s.Get(ctx, kv.CFDefault, kv.Key("k")); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if _, _, err := s.Get(ctx, kv.CFDefault, kv.Key("other")); err != nil {
			t.Fatalf("expected other keys to be unaffected, got %v", err)
		}
		if !s.Called(OpGet, kv.Key("k")) {
			t.Fatalf("expected GET k to be recorded")
		}
	})

	t.Run("block", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		s := New(Config{})
		s.OnScan().Block(release)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = s.Scan(ctx, kv.CFDefault, kv.BoundRange{}, 1)
		}()

		select {
		case <-done:
			t.Fatalf("scan returned before release")
		case <-time.After(10 * time.Millisecond):
		}
		close(release)
		<-done
	})

	t.Run("closed store", func(t *testing.T) {
		t.Parallel()

		s := New(Config{})
		_ = s.Close()
		if _, err := s.Begin(ctx, kv.TxnOptions{}); !errors.Is(err, kv.ErrStoreClosed) {
			t.Fatalf("expected ErrStoreClosed, got %v", err)
		}
	})
}

func mustBegin(t *testing.T, s *Store, pessimistic bool) kv.Txn {
	t.Helper()
	txn, err := s.Begin(ctx, kv.TxnOptions{Pessimistic: pessimistic})
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	return txn
}

func TestTransactions(t *testing.T) {
	t.Parallel()

	t.Run("commit then snapshot", func(t *testing.T) {
		t.Parallel()

		s := New(Config{})
		txn := mustBegin(t, s, false)
		if err := txn.Put(ctx, kv.Key("k1"), kv.Value("v1")); err != nil {
			t.Fatalf("Put returned error: %v", err)
		}

		v, ok, _ := txn.Get(ctx, kv.Key("k1"))
		if !ok || string(v) != "v1" {
			t.Fatalf("expected read your writes, got %q %v", v, ok)
		}

		commitTS, ok, err := txn.Commit(ctx)
		if err != nil || !ok || commitTS <= txn.StartTimestamp() {
			t.Fatalf("unexpected commit: %d %v %v", commitTS, ok, err)
		}

		ts, _ := s.CurrentTimestamp(ctx)
		snap, err := s.Snapshot(ctx, ts, kv.TxnOptions{})
		if err != nil {
			t.Fatalf("Snapshot returned error: %v", err)
		}
		v, ok, _ = snap.Get(ctx, kv.Key("k1"))
		if !ok || string(v) != "v1" {
			t.Fatalf("expected v1, got %q %v", v, ok)
		}

		old, _ := s.Snapshot(ctx, txn.StartTimestamp(), kv.TxnOptions{})
		if _, ok, _ := old.Get(ctx, kv.Key("k1")); ok {
			t.Fatalf("expected older snapshot not to see the commit")
		}

		if err := txn.Put(ctx, kv.Key("k2"), kv.Value("v2")); !errors.Is(err, kv.ErrTxnClosed) {
			t.Fatalf("expected ErrTxnClosed, got %v", err)
		}
	})

	t.Run("read only commit", func(t *testing.T) {
		t.Parallel()

		s := New(Config{})
		txn := mustBegin(t, s, false)
		if _, ok, err := txn.Commit(ctx); ok || err != nil {
			t.Fatalf("expected no commit timestamp, got %v %v", ok, err)
		}
	})

	t.Run("write conflict", func(t *testing.T) {
		t.Parallel()

		s := New(Config{})
		a := mustBegin(t, s, false)
		b := mustBegin(t, s, false)

		_ = a.Put(ctx, kv.Key("k"), kv.Value("a"))
		_ = b.Put(ctx, kv.Key("k"), kv.Value("b"))

		if _, _, err := a.Commit(ctx); err != nil {
			t.Fatalf("first commit failed: %v", err)
		}
		if _, _, err := b.Commit(ctx); !errors.Is(err, kv.ErrWriteConflict) {
			t.Fatalf("expected ErrWriteConflict, got %v", err)
		}
	})

	t.Run("pessimistic lock", func(t *testing.T) {
		t.Parallel()

		s := New(Config{})
		a := mustBegin(t, s, true)
		b := mustBegin(t, s, true)

		if err := a.LockKeys(ctx, []kv.Key{kv.Key("k")}); err != nil {
			t.Fatalf("LockKeys returned error: %v", err)
		}
		if err := b.Put(ctx, kv.Key("k"), kv.Value("b")); !errors.Is(err, kv.ErrKeyLocked) {
			t.Fatalf("expected ErrKeyLocked, got %v", err)
		}
		if err := a.Rollback(ctx); err != nil {
			t.Fatalf("Rollback returned error: %v", err)
		}
		if err := b.Put(ctx, kv.Key("k"), kv.Value("b")); err != nil {
			t.Fatalf("expected lock to be released, got %v", err)
		}
	})

	t.Run("insert and delete", func(t *testing.T) {
		t.Parallel()

		s := New(Config{TxnSeed: map[string][]byte{"k": []byte("seed")}})
		txn := mustBegin(t, s, false)

		if err := txn.Insert(ctx, kv.Key("k"), kv.Value("x")); !errors.Is(err, kv.ErrKeyExists) {
			t.Fatalf("expected ErrKeyExists, got %v", err)
		}
		if err := txn.Delete(ctx, kv.Key("k")); err != nil {
			t.Fatalf("Delete returned error: %v", err)
		}
		if ok, _ := txn.KeyExists(ctx, kv.Key("k")); ok {
			t.Fatalf("expected deleted key to be absent")
		}
		if err := txn.Insert(ctx, kv.Key("k"), kv.Value("x")); err != nil {
			t.Fatalf("Insert after delete returned error: %v", err)
		}
	})

	t.Run("scan merges writes", func(t *testing.T) {
		t.Parallel()

		s := New(Config{TxnSeed: map[string][]byte{"a": []byte("1"), "b": []byte("2"), "c": []byte("3")}})
		txn := mustBegin(t, s, false)
		_ = txn.Delete(ctx, kv.Key("a"))
		_ = txn.Put(ctx, kv.Key("bb"), kv.Value("new"))

		keys, err := txn.ScanKeys(ctx, kv.BoundRange{Start: kv.Inclusive(kv.Key("a")), End: kv.Exclusive(kv.Key("c"))}, 10)
		if err != nil {
			t.Fatalf("ScanKeys returned error: %v", err)
		}
		if len(keys) != 2 || string(keys[0]) != "b" || string(keys[1]) != "bb" {
			t.Fatalf("unexpected keys %q", keys)
		}
	})

	t.Run("get for update sees latest commit", func(t *testing.T) {
		t.Parallel()

		s := New(Config{})
		reader := mustBegin(t, s, false)

		writer := mustBegin(t, s, false)
		_ = writer.Put(ctx, kv.Key("k"), kv.Value("new"))
		if _, _, err := writer.Commit(ctx); err != nil {
			t.Fatalf("Commit returned error: %v", err)
		}

		if _, ok, _ := reader.Get(ctx, kv.Key("k")); ok {
			t.Fatalf("expected snapshot read to miss the later commit")
		}
		v, ok, err := reader.GetForUpdate(ctx, kv.Key("k"))
		if err != nil || !ok || string(v) != "new" {
			t.Fatalf("unexpected GetForUpdate result %q %v %v", v, ok, err)
		}
	})
}

func TestGC(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	for _, v := range []string{"v1", "v2", "v3"} {
		txn := mustBegin(t, s, false)
		_ = txn.Put(ctx, kv.Key("k"), kv.Value(v))
		if _, _, err := txn.Commit(ctx); err != nil {
			t.Fatalf("Commit returned error: %v", err)
		}
	}
	if s.Versions(kv.Key("k")) != 3 {
		t.Fatalf("expected 3 versions before gc")
	}

	safepoint, _ := s.CurrentTimestamp(ctx)
	advanced, err := s.GC(ctx, safepoint)
	if err != nil || !advanced {
		t.Fatalf("unexpected gc result %v %v", advanced, err)
	}
	if s.Versions(kv.Key("k")) != 1 {
		t.Fatalf("expected 1 version after gc, got %d", s.Versions(kv.Key("k")))
	}
	if advanced, _ := s.GC(ctx, safepoint); advanced {
		t.Fatalf("expected repeated gc not to advance")
	}
	if _, err := s.Snapshot(ctx, safepoint-1, kv.TxnOptions{}); !errors.Is(err, kv.ErrSnapshotTooOld) {
		t.Fatalf("expected ErrSnapshotTooOld, got %v", err)
	}
}
