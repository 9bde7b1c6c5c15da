/*
Package mock provides an in-memory store implementing kv.RawStore and
kv.TxnStore for tests.

Raw data is kept per column family with optional expiry. Transactional data
is multi-versioned: a timestamp oracle hands out start and commit
timestamps, transactions buffer writes and read their own writes, optimistic
commits fail with kv.ErrWriteConflict when another commit touched the same
key after they started, and pessimistic transactions take key locks as they
write. GC drops versions no snapshot at or after the safepoint can see.

# Basic Usage

	store := mock.New(mock.Config{Seed: map[string][]byte{"a": []byte("1")}})
	v, ok, err := store.Get(ctx, kv.CFDefault, kv.Key("a"))

# Overriding Behavior

Override responses per operation and key using a fluent builder:

	store.OnGet(kv.Key("missing")).ReturnError(errors.New("region unavailable"))
	store.OnCommit().ReturnError(kv.ErrWriteConflict)

	release := make(chan struct{})
	store.OnScan().Block(release) // scans wait until release is closed

# Inspecting Calls

	for _, c := range store.Calls() {
		// c.Op, c.CF, c.Keys, c.Value
	}
*/
package mock
