package kv

import "context"

// RawStore is non-transactional access to a store. Every call names the
// column family it works on. Absence is reported through the bool results,
// never as an error.
type RawStore interface {
	Get(ctx context.Context, cf ColumnFamily, key Key) (Value, bool, error)
	BatchGet(ctx context.Context, cf ColumnFamily, keys []Key) ([]KvPair, error)

	// GetKeyTTL returns the remaining seconds before key expires. It reports
	// false when the key is missing and zero when the key never expires.
	GetKeyTTL(ctx context.Context, cf ColumnFamily, key Key) (uint64, bool, error)

	// Scan returns up to limit pairs within r in key order.
	Scan(ctx context.Context, cf ColumnFamily, r BoundRange, limit uint32) ([]KvPair, error)
	ScanKeys(ctx context.Context, cf ColumnFamily, r BoundRange, limit uint32) ([]Key, error)

	// Put stores value under key. A non-zero ttl expires it after ttl seconds.
	Put(ctx context.Context, cf ColumnFamily, key Key, value Value, ttl uint64) error
	BatchPut(ctx context.Context, cf ColumnFamily, pairs []KvPair) error
	BatchPutWithTTL(ctx context.Context, cf ColumnFamily, pairs []TTLPair) error

	Delete(ctx context.Context, cf ColumnFamily, key Key) error
	BatchDelete(ctx context.Context, cf ColumnFamily, keys []Key) error
	DeleteRange(ctx context.Context, cf ColumnFamily, r BoundRange) error

	Close() error
}

// Reader is the read surface shared by snapshots and transactions.
type Reader interface {
	Get(ctx context.Context, key Key) (Value, bool, error)
	KeyExists(ctx context.Context, key Key) (bool, error)
	BatchGet(ctx context.Context, keys []Key) ([]KvPair, error)
	Scan(ctx context.Context, r BoundRange, limit uint32) ([]KvPair, error)
	ScanKeys(ctx context.Context, r BoundRange, limit uint32) ([]Key, error)
}

// Snapshot is a read-only view of the store at a timestamp.
type Snapshot interface {
	Reader
	Timestamp() uint64
}

// Txn is a read-write transaction. Reads observe the transaction's own writes.
type Txn interface {
	Reader

	// StartTimestamp is the timestamp the transaction reads at.
	StartTimestamp() uint64

	// GetForUpdate reads key and locks it for the rest of the transaction.
	GetForUpdate(ctx context.Context, key Key) (Value, bool, error)
	BatchGetForUpdate(ctx context.Context, keys []Key) ([]KvPair, error)
	LockKeys(ctx context.Context, keys []Key) error

	Put(ctx context.Context, key Key, value Value) error

	// Insert stores value under key and fails with ErrKeyExists when key has a value.
	Insert(ctx context.Context, key Key, value Value) error
	Delete(ctx context.Context, key Key) error

	// Commit applies the writes. It returns the commit timestamp, or false
	// when the transaction wrote nothing.
	Commit(ctx context.Context) (uint64, bool, error)
	Rollback(ctx context.Context) error
}

// TxnOptions controls how a transaction or snapshot is opened.
type TxnOptions struct {
	// Pessimistic locks keys when they are written or read for update instead
	// of checking for conflicts at commit.
	Pessimistic bool
}

// TxnStore is transactional access to a store.
type TxnStore interface {
	Begin(ctx context.Context, opts TxnOptions) (Txn, error)
	CurrentTimestamp(ctx context.Context) (uint64, error)
	Snapshot(ctx context.Context, ts uint64, opts TxnOptions) (Snapshot, error)

	// GC discards versions no reader at or after safepoint can observe. It
	// reports whether the safepoint advanced.
	GC(ctx context.Context, safepoint uint64) (bool, error)

	Close() error
}

// ApplyLimit truncates a sorted slice to limit entries. A limit of zero keeps none.
func ApplyLimit[T any](items []T, limit uint32) []T {
	if uint64(len(items)) > uint64(limit) {
		return items[:limit]
	}
	return items
}
