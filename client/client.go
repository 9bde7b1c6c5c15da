package client

import (
	"context"
	"fmt"

	"github.com/tarmac-project/kvbridge/coroutine"
	"github.com/tarmac-project/kvbridge/host"
	"github.com/tarmac-project/kvbridge/kv"
	"github.com/tarmac-project/kvbridge/logging"
	"github.com/tarmac-project/kvbridge/marshal"
	"github.com/tarmac-project/kvbridge/runtime"
)

// Config is shared by every client and by the Transaction and Snapshot
// objects they create.
type Config struct {
	// Runtime runs the operations. Nil uses runtime.Default.
	Runtime *runtime.Runtime

	// GIL must be the lock the host loop steps handles under. Nil creates
	// one, which is then shared by everything created from this client.
	GIL *host.GIL

	// Deferred makes handles submit their work on the first Await or Iter
	// instead of at creation.
	Deferred bool

	// Logger receives handle lifecycle entries. Nil discards them.
	Logger logging.Client
}

func (c Config) withDefaults() Config {
	if c.Runtime == nil {
		c.Runtime = runtime.Default()
	}
	if c.GIL == nil {
		c.GIL = &host.GIL{}
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
	return c
}

func (c Config) env() coroutine.Env {
	return coroutine.Env{Runtime: c.Runtime, GIL: c.GIL, Logger: c.Logger}
}

// launch creates an eager or deferred handle according to cfg.
func launch[T any](cfg Config, name string, task func(context.Context) (T, error), into func(T) (host.Object, error)) *coroutine.Coroutine {
	if cfg.Deferred {
		return coroutine.Defer(cfg.env(), name, task, into)
	}
	return coroutine.Spawn(cfg.env(), name, task, into)
}

// failed reports an argument error through a handle. Deferred clients get a
// deferred handle so Await behaves the same as for any other call.
func failed(cfg Config, name string, err error) *coroutine.Coroutine {
	if cfg.Deferred {
		return coroutine.Defer(cfg.env(), name, func(context.Context) (struct{}, error) {
			return struct{}{}, err
		}, none)
	}
	return coroutine.Failed(cfg.env(), name, err)
}

// Option sets a keyword argument of an operation.
type Option func(*callOptions)

type callOptions struct {
	cf           host.Object
	includeStart host.Object
	includeEnd   host.Object
	ttl          host.Object
	asDict       bool
}

// WithCF selects the column family of a raw operation. Transactional
// operations ignore it.
func WithCF(cf host.Object) Option { return func(o *callOptions) { o.cf = cf } }

// IncludeStart sets whether a range includes its start key. Defaults to true.
func IncludeStart(v host.Object) Option { return func(o *callOptions) { o.includeStart = v } }

// IncludeEnd sets whether a range includes its end key. Defaults to false.
func IncludeEnd(v host.Object) Option { return func(o *callOptions) { o.includeEnd = v } }

// TTL sets the expiry in seconds of a raw Put. Zero never expires.
func TTL(seconds host.Object) Option { return func(o *callOptions) { o.ttl = seconds } }

// AsDict returns pairs as a mapping instead of a list of (key, value) tuples.
func AsDict() Option { return func(o *callOptions) { o.asDict = true } }

type resolved struct {
	cf           kv.ColumnFamily
	includeStart bool
	includeEnd   bool
	ttl          uint64
	asDict       bool
}

func resolve(opts []Option) (resolved, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := resolved{cf: kv.CFDefault, includeStart: true, asDict: o.asDict}
	var err error
	if r.cf, err = marshal.ToColumnFamily(o.cf); err != nil {
		return resolved{}, fmt.Errorf("cf: %w", err)
	}
	if o.includeStart != nil {
		if r.includeStart, err = marshal.ToBool(o.includeStart); err != nil {
			return resolved{}, fmt.Errorf("include_start: %w", err)
		}
	}
	if o.includeEnd != nil {
		if r.includeEnd, err = marshal.ToBool(o.includeEnd); err != nil {
			return resolved{}, fmt.Errorf("include_end: %w", err)
		}
	}
	if o.ttl != nil {
		if r.ttl, err = marshal.ToUint64(o.ttl); err != nil {
			return resolved{}, fmt.Errorf("ttl: %w", err)
		}
	}
	return r, nil
}

// rangeArgs extracts the arguments shared by scans and range deletes.
func rangeArgs(start, end host.Object, opts []Option) (kv.BoundRange, resolved, error) {
	o, err := resolve(opts)
	if err != nil {
		return kv.BoundRange{}, resolved{}, err
	}
	r, err := marshal.ToBoundRange(start, end, o.includeStart, o.includeEnd)
	if err != nil {
		return kv.BoundRange{}, resolved{}, err
	}
	return r, o, nil
}

// optional is a value that may be absent.
type optional[T any] struct {
	v  T
	ok bool
}

func none(struct{}) (host.Object, error) { return host.None, nil }

func optionalValue(r optional[kv.Value]) (host.Object, error) {
	return marshal.FromOptionalValue(r.v, r.ok), nil
}

func optionalUint(r optional[uint64]) (host.Object, error) {
	return marshal.FromOptionalUint64(r.v, r.ok), nil
}

func boolean(b bool) (host.Object, error) { return marshal.FromBool(b), nil }

func integer(v uint64) (host.Object, error) { return marshal.FromUint64(v), nil }

func keyList(keys []kv.Key) (host.Object, error) { return marshal.FromKeyList(keys), nil }

// pairs projects into a list of tuples or, with AsDict, a mapping.
func pairs(asDict bool) func([]kv.KvPair) (host.Object, error) {
	return func(ps []kv.KvPair) (host.Object, error) {
		if asDict {
			return marshal.FromKvDict(ps), nil
		}
		return marshal.FromKvList(ps), nil
	}
}
