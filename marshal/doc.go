// Package marshal converts between host objects and the binary key, value,
// range and TTL types of package kv.
//
// Conversions are pure apart from allocating host objects, so callers that
// produce host objects must hold the host GIL. Extraction from host objects
// fails with ErrTypeMismatch, wrapped with a message naming the expected and
// actual host types.
package marshal
