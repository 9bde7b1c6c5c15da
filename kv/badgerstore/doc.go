/*
Package badgerstore implements kv.RawStore and kv.TxnStore on an embedded
Badger database opened in managed mode.

The store owns the timestamp oracle. Every raw write and every transaction
commit takes the next timestamp and is written as a Badger version at that
timestamp, so snapshots read a consistent prefix of history. Raw keys live
under a per column family prefix and transactional keys under their own
prefix, so the two surfaces never observe each other's data.

Usage:

	store, err := badgerstore.Open(badgerstore.Config{InMemory: true})
	if err != nil {
		// handle error
	}
	defer store.Close()

	txn, _ := store.Begin(ctx, kv.TxnOptions{})
	_ = txn.Put(ctx, kv.Key("k1"), kv.Value("v1"))
	ts, _, err := txn.Commit(ctx)
*/
package badgerstore
