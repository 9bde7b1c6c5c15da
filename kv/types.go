package kv

import (
	"bytes"
	"fmt"
	"sort"
)

// Key is an opaque binary key.
type Key []byte

// Value is an opaque binary value.
type Value []byte

// KvPair is a key and its value.
type KvPair struct {
	Key   Key
	Value Value
}

// TTLPair is a key and value that expire TTL seconds after being written.
// A TTL of zero never expires.
type TTLPair struct {
	Key   Key
	Value Value
	TTL   uint64
}

// BoundKind says how a range endpoint treats its key.
type BoundKind int

const (
	// Unbounded means the range is open on that side.
	Unbounded BoundKind = iota
	// Included means the endpoint key belongs to the range.
	Included
	// Excluded means the endpoint key does not belong to the range.
	Excluded
)

// Bound is one endpoint of a BoundRange. The zero value is unbounded.
type Bound struct {
	Kind BoundKind
	Key  Key
}

// Inclusive returns a bound that includes key.
func Inclusive(key Key) Bound { return Bound{Kind: Included, Key: key} }

// Exclusive returns a bound that excludes key.
func Exclusive(key Key) Bound { return Bound{Kind: Excluded, Key: key} }

// BoundRange is an interval over keys ordered bytewise.
type BoundRange struct {
	Start Bound
	End   Bound
}

// AfterStart reports whether key satisfies the start bound.
func (r BoundRange) AfterStart(key Key) bool {
	switch r.Start.Kind {
	case Included:
		return bytes.Compare(key, r.Start.Key) >= 0
	case Excluded:
		return bytes.Compare(key, r.Start.Key) > 0
	}
	return true
}

// BeforeEnd reports whether key satisfies the end bound.
func (r BoundRange) BeforeEnd(key Key) bool {
	switch r.End.Kind {
	case Included:
		return bytes.Compare(key, r.End.Key) <= 0
	case Excluded:
		return bytes.Compare(key, r.End.Key) < 0
	}
	return true
}

// Contains reports whether key lies within the range.
func (r BoundRange) Contains(key Key) bool {
	return r.AfterStart(key) && r.BeforeEnd(key)
}

func (r BoundRange) String() string {
	var start, end string
	switch r.Start.Kind {
	case Included:
		start = fmt.Sprintf("[%q", r.Start.Key)
	case Excluded:
		start = fmt.Sprintf("(%q", r.Start.Key)
	default:
		start = "(-inf"
	}
	switch r.End.Kind {
	case Included:
		end = fmt.Sprintf("%q]", r.End.Key)
	case Excluded:
		end = fmt.Sprintf("%q)", r.End.Key)
	default:
		end = "+inf)"
	}
	return start + ", " + end
}

// ColumnFamily selects one of the store's key spaces.
type ColumnFamily string

const (
	CFDefault ColumnFamily = "default"
	CFLock    ColumnFamily = "lock"
	CFWrite   ColumnFamily = "write"
)

// ParseColumnFamily validates a column family name. An empty name selects CFDefault.
func ParseColumnFamily(name string) (ColumnFamily, error) {
	switch ColumnFamily(name) {
	case "":
		return CFDefault, nil
	case CFDefault, CFLock, CFWrite:
		return ColumnFamily(name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidColumnFamily, name)
}

// SortPairs orders pairs by key.
func SortPairs(pairs []KvPair) {
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].Key, pairs[j].Key) < 0 })
}

// SortKeys orders keys bytewise.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
}

// ValidateKey rejects empty keys.
func ValidateKey(key Key) error {
	if len(key) == 0 {
		return ErrInvalidKey
	}
	return nil
}

// ValidateValue rejects empty values.
func ValidateValue(value Value) error {
	if len(value) == 0 {
		return ErrInvalidValue
	}
	return nil
}
