package host

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDict(t *testing.T) {
	t.Parallel()

	t.Run("insertion order and overwrite", func(t *testing.T) {
		t.Parallel()

		d := NewDict()
		for _, e := range []Entry{
			{Bytes("b"), Bytes("1")},
			{Bytes("a"), Bytes("2")},
			{Bytes("b"), Bytes("3")},
		} {
			if err := d.Set(e.Key, e.Value); err != nil {
				t.Fatalf("Set returned error: %v", err)
			}
		}

		entries := d.Entries()
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if string(entries[0].Key.(Bytes)) != "b" || string(entries[0].Value.(Bytes)) != "3" {
			t.Fatalf("unexpected first entry: %+v", entries[0])
		}
		if string(entries[1].Key.(Bytes)) != "a" {
			t.Fatalf("unexpected second entry: %+v", entries[1])
		}
	})

	t.Run("distinct key types", func(t *testing.T) {
		t.Parallel()

		d := NewDict()
		_ = d.Set(Bytes("1"), Str("bytes"))
		_ = d.Set(Str("1"), Str("str"))
		_ = d.Set(NewInt(1), Str("int"))
		_ = d.Set(Bool(true), Str("bool"))

		if d.Len() != 3 {
			t.Fatalf("expected True and 1 to share a key, got %d entries", d.Len())
		}
		v, ok := d.Get(NewInt(1))
		if !ok || v.(Str) != "bool" {
			t.Fatalf("expected overwritten int key, got %v", v)
		}
	})

	t.Run("unhashable key", func(t *testing.T) {
		t.Parallel()

		d := NewDict()
		if err := d.Set(NewList(), None); !errors.Is(err, ErrUnhashable) {
			t.Fatalf("expected ErrUnhashable, got %v", err)
		}
		if err := d.Set(Tuple{Bytes("k"), NewList()}, None); !errors.Is(err, ErrUnhashable) {
			t.Fatalf("expected ErrUnhashable for tuple holding a list, got %v", err)
		}
		if err := d.Set(nil, None); !errors.Is(err, ErrUnhashable) {
			t.Fatalf("expected ErrUnhashable for a nil key, got %v", err)
		}
		if _, ok := d.Get(nil); ok {
			t.Fatalf("expected no entry for a nil key")
		}
	})
}

func TestInt(t *testing.T) {
	t.Parallel()

	huge := new(big.Int).Lsh(big.NewInt(1), 70)

	tt := []struct {
		name     string
		in       Int
		wantU64  uint64
		okU64    bool
		wantI64  int64
		okI64    bool
		wantText string
	}{
		{name: "zero value", in: Int{}, okU64: true, okI64: true, wantText: "0"},
		{name: "small", in: NewInt(42), wantU64: 42, okU64: true, wantI64: 42, okI64: true, wantText: "42"},
		{name: "negative", in: NewInt(-1), wantI64: -1, okI64: true, wantText: "-1"},
		{name: "max uint64", in: NewUint(math.MaxUint64), wantU64: math.MaxUint64, okU64: true, wantText: "18446744073709551615"},
		{name: "beyond 64 bits", in: NewBigInt(huge), wantText: huge.String()},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			u, ok := tc.in.Uint64()
			if ok != tc.okU64 || u != tc.wantU64 {
				t.Fatalf("Uint64: want (%d, %v), got (%d, %v)", tc.wantU64, tc.okU64, u, ok)
			}
			i, ok := tc.in.Int64()
			if ok != tc.okI64 || i != tc.wantI64 {
				t.Fatalf("Int64: want (%d, %v), got (%d, %v)", tc.wantI64, tc.okI64, i, ok)
			}
			if tc.in.String() != tc.wantText {
				t.Fatalf("String: want %s, got %s", tc.wantText, tc.in.String())
			}
		})
	}
}

func TestProject(t *testing.T) {
	t.Parallel()

	cause := errors.New("region unavailable")
	wrapped := fmt.Errorf("get: %w", cause)

	exc := Project(wrapped)
	if exc.Message != "get: region unavailable" {
		t.Fatalf("message not preserved verbatim: %q", exc.Message)
	}
	if !errors.Is(exc, cause) {
		t.Fatalf("expected exception to unwrap to its cause")
	}
	if Project(exc) != exc {
		t.Fatalf("expected projecting an exception to be the identity")
	}
	if Project(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestGIL(t *testing.T) {
	t.Parallel()

	t.Run("reentrant", func(t *testing.T) {
		t.Parallel()

		var gil GIL
		err := gil.With(context.Background(), func(ctx context.Context) error {
			if !Held(ctx, &gil) {
				t.Fatalf("expected lock to be held")
			}
			return gil.With(ctx, func(context.Context) error { return nil })
		})
		if err != nil {
			t.Fatalf("With returned error: %v", err)
		}
	})

	t.Run("exclusive", func(t *testing.T) {
		t.Parallel()

		var gil GIL
		var inside, peak atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = gil.With(context.Background(), func(context.Context) error {
					n := inside.Add(1)
					if n > peak.Load() {
						peak.Store(n)
					}
					time.Sleep(time.Millisecond)
					inside.Add(-1)
					return nil
				})
			}()
		}
		wg.Wait()

		if peak.Load() != 1 {
			t.Fatalf("expected exclusive access, saw %d holders", peak.Load())
		}
	})
}

// countdown is pending for n polls and then returns or raises.
type countdown struct {
	n     int
	value Object
	err   error
	gil   *GIL
	t     *testing.T
}

func (c *countdown) Await() Iterator { return c }
func (c *countdown) Iter() Iterator  { return c }

func (c *countdown) Next() Step {
	if c.gil != nil && c.gil.mu.TryLock() {
		c.gil.mu.Unlock()
		c.t.Errorf("Next called without the GIL held")
	}
	if c.n > 0 {
		c.n--
		return Step{Kind: Pending}
	}
	if c.err != nil {
		return Step{Kind: Raise, Err: Project(c.err)}
	}
	return Step{Kind: Return, Value: c.value}
}

func TestLoop(t *testing.T) {
	t.Parallel()

	t.Run("run until complete", func(t *testing.T) {
		t.Parallel()

		gil := &GIL{}
		loop := NewLoop(gil, LoopConfig{})
		got, err := loop.RunUntilComplete(context.Background(), &countdown{n: 3, value: Bytes("v"), gil: gil, t: t})
		if err != nil {
			t.Fatalf("RunUntilComplete returned error: %v", err)
		}
		if string(got.(Bytes)) != "v" {
			t.Fatalf("unexpected value %v", got)
		}
	})

	t.Run("gather keeps argument order", func(t *testing.T) {
		t.Parallel()

		loop := NewLoop(&GIL{}, LoopConfig{})
		got, err := loop.Gather(context.Background(),
			&countdown{n: 5, value: NewInt(1)},
			&countdown{n: 0, value: NewInt(2)},
			&countdown{n: 2, value: NewInt(3)},
		)
		if err != nil {
			t.Fatalf("Gather returned error: %v", err)
		}
		for i, want := range []string{"1", "2", "3"} {
			if got[i].(Int).String() != want {
				t.Fatalf("result %d: want %s, got %v", i, want, got[i])
			}
		}
	})

	t.Run("gather reports first exception", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		loop := NewLoop(&GIL{}, LoopConfig{})
		got, err := loop.Gather(context.Background(),
			&countdown{n: 1, value: NewInt(1)},
			&countdown{n: 2, err: boom},
		)
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if got[0].(Int).String() != "1" {
			t.Fatalf("expected successful result to be kept")
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		loop := NewLoop(&GIL{}, LoopConfig{IdleInterval: time.Millisecond})
		_, err := loop.RunUntilComplete(ctx, &countdown{n: math.MaxInt})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	})
}
