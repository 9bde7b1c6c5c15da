/*
Package host models the single-threaded cooperative caller that consumes
store operations.

It provides the host object model (None, Bool, Int, Bytes, Str, List, Tuple
and an insertion-ordered Dict), the host exception type, the global
serialization lock (GIL) that guards every interaction with host objects, and
the await/iterate protocol a Task Handle implements.

Loop is the host's scheduler. It drives Awaitables by calling Next on their
iterators while holding the GIL, releases the lock between passes and never
blocks on an individual handle:

	loop := host.NewLoop(gil, host.LoopConfig{})
	value, err := loop.RunUntilComplete(ctx, txn.Get(host.Bytes("k1")))
*/
package host
