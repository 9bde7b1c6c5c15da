package connect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tarmac-project/kvbridge"
	"github.com/tarmac-project/kvbridge/client"
	"github.com/tarmac-project/kvbridge/host"
	"github.com/tarmac-project/kvbridge/kv"
	"github.com/tarmac-project/kvbridge/kv/badgerstore"
	"github.com/tarmac-project/kvbridge/kv/mock"
	"github.com/tarmac-project/kvbridge/kv/redisstore"
	"github.com/tarmac-project/kvbridge/logging"
	"github.com/tarmac-project/kvbridge/metrics"
	"github.com/tarmac-project/kvbridge/runtime"
)

var (
	// ErrUnknownBackend is returned by Open for a backend name it does not know.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrInvalidLogLevel is returned by Open when LogLevel cannot be parsed.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Bridge is an opened backend with the runtime, host loop and clients that
// drive it.
type Bridge struct {
	Runtime *runtime.Runtime
	GIL     *host.GIL
	Loop    *host.Loop
	Raw     *client.RawClient

	// Txn is nil when the backend has no transactions.
	Txn *client.TransactionClient

	log    logging.Client
	stores []interface{ Close() error }
}

// Open builds a Bridge from cfg. Close releases everything it created.
func Open(cfg Config) (*Bridge, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	b := &Bridge{GIL: &host.GIL{}, log: log}

	var raw kv.RawStore
	var txn kv.TxnStore
	var m metrics.Client
	switch cfg.Backend {
	case BackendMemory, "":
		s := mock.New(mock.Config{})
		raw, txn = s, s

	case BackendBadger:
		s, err := badgerstore.Open(badgerstore.Config{
			Dir:                cfg.Badger.Dir,
			InMemory:           cfg.Badger.InMemory,
			ValueLogGCInterval: time.Duration(cfg.Badger.ValueLogGCInterval),
			Logger:             log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger backend: %w", err)
		}
		raw, txn = s, s

	case BackendRedis:
		s, err := redisstore.New(redisstore.Config{
			Client:    cfg.RedisClient,
			Addr:      cfg.Redis.Addr,
			Namespace: cfg.Redis.Namespace,
			CacheSize: cfg.Redis.CacheSize,
			CacheTTL:  time.Duration(cfg.Redis.CacheTTL),
			Logger:    log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open redis backend: %w", err)
		}
		raw = s

	case BackendTarmac:
		sdk := kvbridge.RuntimeConfig{Namespace: cfg.Namespace}
		s, err := kv.New(kv.Config{SDKConfig: sdk, HostCall: cfg.HostCall})
		if err != nil {
			return nil, fmt.Errorf("failed to create tarmac kv client: %w", err)
		}
		raw = s
		if m, err = metrics.New(metrics.Config{SDKConfig: sdk, HostCall: cfg.HostCall}); err != nil {
			return nil, fmt.Errorf("failed to create tarmac metrics client: %w", err)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}

	b.stores = append(b.stores, raw)
	if txn != nil && any(txn) != any(raw) {
		b.stores = append(b.stores, txn)
	}

	b.Runtime, err = runtime.New(runtime.Config{Workers: cfg.Workers, Logger: log, Metrics: m})
	if err != nil {
		_ = b.closeStores()
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}

	b.Loop = host.NewLoop(b.GIL, host.LoopConfig{
		IdleInterval:    time.Duration(cfg.Loop.IdleInterval),
		MaxIdleInterval: time.Duration(cfg.Loop.MaxIdleInterval),
	})

	ccfg := client.Config{Runtime: b.Runtime, GIL: b.GIL, Deferred: cfg.Deferred, Logger: log}
	b.Raw = client.NewRawClient(ccfg, raw)
	if txn != nil {
		b.Txn = client.NewTransactionClient(ccfg, txn)
	}

	log.Info("bridge opened", "backend", cfg.Backend, "transactions", txn != nil)
	return b, nil
}

// Close shuts the runtime down, waiting for in-flight operations until ctx
// ends, then closes the backend.
func (b *Bridge) Close(ctx context.Context) error {
	err := b.Runtime.Shutdown(ctx)
	return errors.Join(err, b.closeStores())
}

func (b *Bridge) closeStores() error {
	var errs []error
	for _, s := range b.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newLogger(cfg Config) (logging.Client, error) {
	if cfg.Logger != nil {
		return cfg.Logger, nil
	}
	if cfg.LogLevel == "" {
		if cfg.Backend == BackendTarmac {
			return logging.New(logging.Config{
				SDKConfig: kvbridge.RuntimeConfig{Namespace: cfg.Namespace},
				HostCall:  cfg.HostCall,
			})
		}
		return logging.Nop(), nil
	}

	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "trace":
		level = logging.LevelTrace
	default:
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.LogLevel)
		}
	}

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return logging.NewSlog(slog.New(h)), nil
}
