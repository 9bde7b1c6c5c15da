package host

import (
	"errors"
	"fmt"
)

// ErrUnhashable is returned when a mutable object is used as a Dict key.
var ErrUnhashable = errors.New("unhashable type")

// Entry is one key/value association of a Dict.
type Entry struct {
	Key   Object
	Value Object
}

// Dict is an insertion-ordered host mapping. Setting an existing key replaces
// its value and keeps its original position.
type Dict struct {
	entries []Entry
	index   map[string]int
}

// NewDict returns an empty Dict.
func NewDict() *Dict {
	return &Dict{index: make(map[string]int)}
}

func (*Dict) Type() string { return "dict" }

// Set associates value with key.
func (d *Dict) Set(key, value Object) error {
	h, ok := hashKey(key)
	if !ok {
		name := "nothing"
		if key != nil {
			name = key.Type()
		}
		return fmt.Errorf("%w: '%s'", ErrUnhashable, name)
	}
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if i, ok := d.index[h]; ok {
		d.entries[i].Value = value
		return nil
	}
	d.index[h] = len(d.entries)
	d.entries = append(d.entries, Entry{Key: key, Value: value})
	return nil
}

// Get returns the value stored under key.
func (d *Dict) Get(key Object) (Object, bool) {
	h, ok := hashKey(key)
	if !ok {
		return nil, false
	}
	i, ok := d.index[h]
	if !ok {
		return nil, false
	}
	return d.entries[i].Value, true
}

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.entries) }

// Entries returns a copy of the entries in insertion order.
func (d *Dict) Entries() []Entry { return append([]Entry(nil), d.entries...) }
