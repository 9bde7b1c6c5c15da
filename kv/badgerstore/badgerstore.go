package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/tarmac-project/kvbridge/kv"
	"github.com/tarmac-project/kvbridge/logging"
)

const (
	rawPrefix = 'r'
	txnPrefix = 't'
)

// Config configures a badger backed store.
type Config struct {
	// Dir is the database directory. It is ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory.
	InMemory bool

	// ValueLogGCInterval enables periodic value log garbage collection on
	// disk backed stores. Zero disables it.
	ValueLogGCInterval time.Duration

	// Logger receives badger's own log output and store events.
	Logger logging.Client
}

// Store implements kv.RawStore and kv.TxnStore.
type Store struct {
	db  *badger.DB
	log logging.Client

	// mu serializes timestamp allocation with the writes that use them, and
	// guards the lock table and the safepoint.
	mu        sync.Mutex
	oracle    uint64
	safepoint uint64
	locks     map[string]uint64

	closed atomic.Bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

var (
	_ kv.RawStore = (*Store)(nil)
	_ kv.TxnStore = (*Store)(nil)
)

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*Store, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.
		WithLogger(badgerLogger{log: log}).
		WithDetectConflicts(false)

	db, err := badger.OpenManaged(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &Store{
		db:     db,
		log:    log,
		oracle: db.MaxVersion(),
		locks:  make(map[string]uint64),
		stop:   make(chan struct{}),
	}

	if cfg.ValueLogGCInterval > 0 && !cfg.InMemory {
		s.wg.Add(1)
		go s.runGC(cfg.ValueLogGCInterval)
	}

	log.Debug("badger store opened", "dir", cfg.Dir, "in_memory", cfg.InMemory, "timestamp", s.oracle)
	return s, nil
}

func (s *Store) runGC(every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// Rewrite until badger reports nothing left to reclaim.
			for s.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

// Close stops background work and closes the database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stop)
	s.wg.Wait()
	return s.db.Close()
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return kv.ErrStoreClosed
	}
	return nil
}

func rawKey(cf kv.ColumnFamily, key kv.Key) []byte {
	return append(rawCFPrefix(cf), key...)
}

func rawCFPrefix(cf kv.ColumnFamily) []byte {
	b := make([]byte, 0, len(cf)+2)
	b = append(b, rawPrefix)
	b = append(b, cf...)
	return append(b, 0)
}

func txnKey(key kv.Key) []byte {
	return append([]byte{txnPrefix}, key...)
}

// view runs fn in a read-only transaction at ts.
func (s *Store) view(ts uint64, fn func(txn *badger.Txn) error) error {
	txn := s.db.NewTransactionAt(ts, false)
	defer txn.Discard()
	return fn(txn)
}

// write runs fn in a transaction committed at the next timestamp.
func (s *Store) write(fn func(txn *badger.Txn) error) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := s.db.NewTransactionAt(s.oracle, true)
	defer txn.Discard()
	if err := fn(txn); err != nil {
		return 0, err
	}

	s.oracle++
	ts := s.oracle
	if err := txn.CommitAt(ts, nil); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return 0, fmt.Errorf("%w: %w", kv.ErrWriteConflict, err)
		}
		return 0, fmt.Errorf("failed to commit at %d: %w", ts, err)
	}
	return ts, nil
}

// get reads one key, reporting absence instead of badger.ErrKeyNotFound.
func get(txn *badger.Txn, key []byte) ([]byte, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// scan walks keys under prefix within r in order, skipping keys for which
// skip reports true, until limit pairs are collected.
func scan(txn *badger.Txn, prefix []byte, r kv.BoundRange, limit uint32, values bool, skip func(kv.Key) bool) ([]kv.KvPair, error) {
	if limit == 0 {
		return nil, nil
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = values
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := prefix
	if r.Start.Kind != kv.Unbounded {
		seek = append(append([]byte(nil), prefix...), r.Start.Key...)
	}

	var pairs []kv.KvPair
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := kv.Key(item.KeyCopy(nil)[len(prefix):])
		if !r.AfterStart(key) {
			continue
		}
		if !r.BeforeEnd(key) {
			break
		}
		if skip != nil && skip(key) {
			continue
		}

		p := kv.KvPair{Key: key}
		if values {
			v, err := item.ValueCopy(nil)
			if err != nil {
				return nil, err
			}
			p.Value = v
		}
		pairs = append(pairs, p)
		if uint32(len(pairs)) == limit {
			break
		}
	}
	return pairs, nil
}

func pairKeys(pairs []kv.KvPair) []kv.Key {
	keys := make([]kv.Key, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key
	}
	return keys
}

// badgerLogger forwards badger's printf style output to a logging.Client.
type badgerLogger struct {
	log logging.Client
}

func (l badgerLogger) Errorf(f string, v ...interface{}) { l.log.Error(msg(f, v)) }

func (l badgerLogger) Warningf(f string, v ...interface{}) { l.log.Warn(msg(f, v)) }

// Infof is demoted; badger reports compactions and flushes at info.
func (l badgerLogger) Infof(f string, v ...interface{}) { l.log.Debug(msg(f, v)) }

func (l badgerLogger) Debugf(f string, v ...interface{}) { l.log.Trace(msg(f, v)) }

func msg(f string, v []interface{}) string {
	return "badger: " + strings.TrimSpace(fmt.Sprintf(f, v...))
}

var _ badger.Logger = badgerLogger{}

// CurrentTimestamp implements kv.TxnStore.
func (s *Store) CurrentTimestamp(ctx context.Context) (uint64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oracle++
	return s.oracle, nil
}

// GC implements kv.TxnStore. Badger discards the versions lazily during
// compaction.
func (s *Store) GC(ctx context.Context, safepoint uint64) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if safepoint <= s.safepoint {
		return false, nil
	}
	s.safepoint = safepoint
	s.db.SetDiscardTs(safepoint)
	s.log.Debug("gc safepoint advanced", "safepoint", safepoint)
	return true, nil
}
