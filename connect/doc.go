/*
Package connect wires a runtime, a host loop, a storage backend and the
clients over it from one JSON configuration.

	cfg, err := connect.LoadConfig("kvbridge.json")
	if err != nil {
		// handle error
	}

	b, err := connect.Open(*cfg)
	if err != nil {
		// handle error
	}
	defer b.Close(ctx)

	v, err := b.Loop.RunUntilComplete(ctx, b.Raw.Get(host.Bytes("k1")))

Backends are "memory", "badger", "redis" and "tarmac". Only "memory" and
"badger" support transactions; for the others Bridge.Txn is nil.
*/
package connect
