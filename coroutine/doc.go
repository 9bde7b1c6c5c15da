/*
Package coroutine turns background store operations into Task Handles the
host can await and poll without blocking.

Spawn submits the work to the runtime immediately (eager). Defer keeps the
work unstarted until the host begins awaiting with Await or Iter (deferred);
beginning a deferred handle a second time panics with ErrAwaitedTwice.

The work runs on a runtime goroutine. Its result is converted to a host
object on that goroutine while holding the GIL, then handed over through a
oneshot channel. Next polls the channel: Pending while the work runs, then a
single Return or Raise. Polling after that panics with ErrConsumed.

Failures never cross goroutines as panics. Store and conversion errors travel
as values and are raised as host exceptions from Next; a job that died
without reporting surfaces as ErrTaskTerminated.
*/
package coroutine
