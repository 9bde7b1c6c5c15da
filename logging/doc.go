/*
Package logging offers a small structured logging client shared by the
runtime, the task handles and the store backends.

The Client interface exposes the common levels (Info, Warn, Error, Debug,
Trace), each taking a message and slog-style key/value pairs. Three
implementations are provided: New sends entries to the Tarmac logging host
capability over waPC, NewSlog adapts a *slog.Logger for native processes, and
Nop discards everything.
*/
package logging
