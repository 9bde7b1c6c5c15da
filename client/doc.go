/*
Package client exposes key-value operations to the host as Task Handles.

Every method takes its arguments as host objects, starts the operation on the
background runtime and returns a *coroutine.Coroutine for the host loop to
drive. Arguments that cannot be converted do not fail the call; the failure
is delivered through the returned handle when the host retrieves the result.

RawClient wraps a kv.RawStore. TransactionClient wraps a kv.TxnStore and
produces Transaction and Snapshot host objects whose own methods work the
same way.

Usage:

	gil := &host.GIL{}
	loop := host.NewLoop(gil, host.LoopConfig{})
	raw := client.NewRawClient(client.Config{GIL: gil}, store)

	_, err := loop.RunUntilComplete(ctx, raw.Put(host.Bytes("k1"), host.Bytes("v1")))
	v, err := loop.RunUntilComplete(ctx, raw.Get(host.Bytes("k1")))

	pairs, err := loop.RunUntilComplete(ctx, raw.Scan(host.Bytes("a"), host.Bytes("c"), host.NewInt(10),
		client.IncludeEnd(host.Bool(true)), client.WithCF(host.Str("write"))))
*/
package client
