// Package redisstore implements kv.RawStore on Redis.
//
// Each value is stored under its own Redis key with an optional expiry, and
// every column family keeps a sorted set of its member keys, all with score
// zero, so range scans use ZRANGEBYLEX and return keys in byte order. Index
// members whose value has expired are pruned when a scan meets them.
//
// An optional ristretto cache can front reads of keys that have no expiry.
// Writes made through the store invalidate it; writes made by other
// processes become visible once the cached entry's TTL ends.
package redisstore
