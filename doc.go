/*
Package kvbridge exposes an asynchronous binary key/value store to a
single-threaded cooperative host.

Store operations run on a background runtime (package runtime) and are handed
to the host as Task Handles (package coroutine) that the host polls without
blocking. Package marshal converts between host objects (package host) and the
binary key, value, range and TTL types of package kv. Package client wraps
every store operation in that pattern, and package connect wires a backend,
a runtime and a host loop from one JSON config.

This root package carries the RuntimeConfig shared by the host-capability
clients (kv, logging, metrics) and the sentinel errors they wrap.
*/
package kvbridge
