/*
Package runtime runs store operations on background goroutines, independent
of the host's cooperative loop.

A Runtime accepts Jobs through Spawn and runs each on its own goroutine,
bounding how many run at once with a weighted semaphore. The Go scheduler
spreads the goroutines over OS threads. Jobs that cannot run, because the
runtime is shutting down or because Run panicked, have their Discard hook
called so the party waiting on the result observes a closed channel instead
of waiting forever.

Default returns the process-wide Runtime, created on first use and torn down
with ShutdownDefault.
*/
package runtime
