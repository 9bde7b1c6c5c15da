package kv

import "errors"

var (
	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = errors.New("key is invalid")

	// ErrInvalidValue is returned for an empty value.
	ErrInvalidValue = errors.New("value is invalid")

	// ErrKeyNotFound is returned by the host capability when a key is missing.
	// Store reads report absence as a missing value instead.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidColumnFamily is returned for an unknown column family.
	ErrInvalidColumnFamily = errors.New("column family is invalid")

	// ErrTTLUnsupported is returned by stores that cannot expire keys.
	ErrTTLUnsupported = errors.New("ttl is not supported by this store")

	// ErrKeyExists is returned by Insert when the key already has a value.
	ErrKeyExists = errors.New("key already exists")

	// ErrWriteConflict is returned by Commit when another transaction
	// committed a write to the same key after this one started.
	ErrWriteConflict = errors.New("write conflict")

	// ErrKeyLocked is returned when a pessimistic lock is held by another transaction.
	ErrKeyLocked = errors.New("key is locked by another transaction")

	// ErrTxnClosed is returned by operations on a committed or rolled back transaction.
	ErrTxnClosed = errors.New("transaction is already committed or rolled back")

	// ErrSnapshotTooOld is returned when reading below the GC safepoint.
	ErrSnapshotTooOld = errors.New("snapshot timestamp is older than the gc safepoint")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)
