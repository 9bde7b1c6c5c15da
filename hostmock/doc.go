/*
Package hostmock provides a pretend host for waPC calls.

It is used by the host-capability clients (kv.HostStore, logging, metrics) to
validate exactly what they send to the Tarmac host without a real host
running.

  - Validate routing: ensure calls use the expected namespace, capability, and function when you set them.
  - Inspect payloads: plug in a PayloadValidator to assert protobuf contents.
  - Script responses: return fixed bytes, route per function with Handlers, or simulate failures.
  - Assert history: Calls returns every invocation in order.

Quick start

	m, _ := hostmock.New(hostmock.Config{
	  ExpectedNamespace:  "tarmac",
	  ExpectedCapability: "kvstore",
	  Handlers: map[string]hostmock.Handler{
	    "get":  func(p []byte) ([]byte, error) { return getResponse, nil },
	    "keys": func(p []byte) ([]byte, error) { return keysResponse, nil },
	  },
	})

	store, _ := kv.New(kv.Config{HostCall: m.HostCall})

Behavior

  - If Fail is true and Error is set, HostCall returns that error.
  - If Fail is true and Error is nil, HostCall returns ErrOperationFailed.
  - Otherwise HostCall enforces ExpectedNamespace and ExpectedCapability and
    runs PayloadValidator when provided. A Handler registered for the function
    produces the reply; without one, ExpectedFunction is enforced and Response
    (when set) provides the return bytes.
  - Leave fields blank when you want a wildcard; hostmock only enforces values you set.

HostCall is safe for concurrent use, so background tasks may call it.
*/
package hostmock
