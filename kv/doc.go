/*
Package kv defines the binary key/value vocabulary shared by every store
backend and the interfaces the client wrappers consume.

Keys and values are opaque byte slices. BoundRange describes scan and delete
ranges with independently included, excluded or unbounded endpoints. RawStore
is non-transactional access partitioned by ColumnFamily; TxnStore opens
transactions (Txn) and read-only snapshots (Snapshot) at timestamps.

The package also provides HostStore, a RawStore over the Tarmac key-value
capability. It serializes requests with project protobufs and forwards them
to the host with waPC. Zero-value Config options fall back to the
kvbridge.DefaultNamespace and the default waPC host call; tests inject
Config.HostCall to exercise failure paths without a real host.

Backends live in subpackages: kv/mock (in memory), kv/badgerstore
(embedded) and kv/redisstore (Redis).
*/
package kv
