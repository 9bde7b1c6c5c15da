/*
Package metrics provides Counter, Gauge, and Histogram handles used by the
background runtime to report task throughput, in-flight work and latency.

New returns a client that sends protobuf payloads to the Tarmac metrics host
capability over waPC. Discard returns a client whose handles accept every
update and send nothing, which is the runtime default outside a Tarmac host.

Metric emission methods follow Prometheus-style ergonomics: Inc/Dec/Observe
are best-effort and do not return errors. Marshal or host-call failures are
swallowed so they never affect the caller's control flow.
*/
package metrics
