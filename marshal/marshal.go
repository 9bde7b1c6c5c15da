package marshal

import (
	"errors"
	"fmt"

	"github.com/tarmac-project/kvbridge/host"
	"github.com/tarmac-project/kvbridge/kv"
)

// ErrTypeMismatch is returned when a host object has the wrong type or shape.
var ErrTypeMismatch = errors.New("type mismatch")

func mismatch(want string, got host.Object) error {
	return fmt.Errorf("%w: expected %s, got %s", ErrTypeMismatch, want, typeName(got))
}

func typeName(o host.Object) string {
	if o == nil {
		return "nothing"
	}
	return o.Type()
}

func absent(o host.Object) bool {
	if o == nil {
		return true
	}
	_, none := o.(host.NoneType)
	return none
}

// FromBytes copies b into a host byte string.
func FromBytes(b []byte) host.Bytes {
	return host.Bytes(append([]byte{}, b...))
}

func toBytes(o host.Object) ([]byte, error) {
	b, ok := o.(host.Bytes)
	if !ok {
		return nil, mismatch("bytes", o)
	}
	return append([]byte{}, b...), nil
}

// ToKey extracts a key from a host byte string.
func ToKey(o host.Object) (kv.Key, error) {
	b, err := toBytes(o)
	return kv.Key(b), err
}

// ToValue extracts a value from a host byte string.
func ToValue(o host.Object) (kv.Value, error) {
	b, err := toBytes(o)
	return kv.Value(b), err
}

// ToOptionalKey extracts a key that may be absent (nil or None).
func ToOptionalKey(o host.Object) (kv.Key, bool, error) {
	if absent(o) {
		return nil, false, nil
	}
	k, err := ToKey(o)
	if err != nil {
		return nil, false, err
	}
	return k, true, nil
}

// FromOptionalValue returns the value as a host byte string, or None when it is absent.
func FromOptionalValue(v kv.Value, ok bool) host.Object {
	if !ok {
		return host.None
	}
	return FromBytes(v)
}

func sequence(o host.Object) ([]host.Object, error) {
	switch s := o.(type) {
	case *host.List:
		return s.Items(), nil
	case host.Tuple:
		return []host.Object(s), nil
	}
	return nil, mismatch("list", o)
}

// ToKeys extracts keys from a host list or tuple of byte strings.
func ToKeys(o host.Object) ([]kv.Key, error) {
	items, err := sequence(o)
	if err != nil {
		return nil, err
	}
	keys := make([]kv.Key, len(items))
	for i, item := range items {
		k, err := ToKey(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		keys[i] = k
	}
	return keys, nil
}

// FromKeyList projects keys into a host list in order.
func FromKeyList(keys []kv.Key) *host.List {
	l := host.NewList()
	for _, k := range keys {
		l.Append(FromBytes(k))
	}
	return l
}

// FromKvList projects pairs into a host list of (key, value) tuples in order.
func FromKvList(pairs []kv.KvPair) *host.List {
	l := host.NewList()
	for _, p := range pairs {
		l.Append(host.Tuple{FromBytes(p.Key), FromBytes(p.Value)})
	}
	return l
}

// FromKvDict projects pairs into a host mapping in order. A repeated key
// keeps its first position and takes the later value.
func FromKvDict(pairs []kv.KvPair) *host.Dict {
	d := host.NewDict()
	for _, p := range pairs {
		// Bytes keys are always hashable.
		_ = d.Set(FromBytes(p.Key), FromBytes(p.Value))
	}
	return d
}

func entries(o host.Object) ([]host.Entry, error) {
	d, ok := o.(*host.Dict)
	if !ok {
		return nil, mismatch("dict", o)
	}
	return d.Entries(), nil
}

// ToKvPairs extracts one pair per entry of a host mapping of byte strings.
func ToKvPairs(o host.Object) ([]kv.KvPair, error) {
	es, err := entries(o)
	if err != nil {
		return nil, err
	}
	pairs := make([]kv.KvPair, len(es))
	for i, e := range es {
		k, err := ToKey(e.Key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		v, err := ToValue(e.Value)
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", []byte(k), err)
		}
		pairs[i] = kv.KvPair{Key: k, Value: v}
	}
	return pairs, nil
}

// ToTTLPairs extracts one pair per entry of a host mapping whose values are
// (value, ttl_seconds) tuples.
func ToTTLPairs(o host.Object) ([]kv.TTLPair, error) {
	es, err := entries(o)
	if err != nil {
		return nil, err
	}
	pairs := make([]kv.TTLPair, len(es))
	for i, e := range es {
		k, err := ToKey(e.Key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		tup, ok := e.Value.(host.Tuple)
		if !ok {
			return nil, fmt.Errorf("value for key %q: %w", []byte(k), mismatch("tuple", e.Value))
		}
		if len(tup) != 2 {
			return nil, fmt.Errorf("value for key %q: %w: expected a tuple of 2 items, got %d", []byte(k), ErrTypeMismatch, len(tup))
		}
		v, err := ToValue(tup[0])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", []byte(k), err)
		}
		ttl, err := ToUint64(tup[1])
		if err != nil {
			return nil, fmt.Errorf("ttl for key %q: %w", []byte(k), err)
		}
		pairs[i] = kv.TTLPair{Key: k, Value: v, TTL: ttl}
	}
	return pairs, nil
}

// ToBoundRange builds a range from optional endpoints. An absent endpoint is
// unbounded whatever its include flag says.
func ToBoundRange(start, end host.Object, includeStart, includeEnd bool) (kv.BoundRange, error) {
	var r kv.BoundRange

	s, ok, err := ToOptionalKey(start)
	if err != nil {
		return kv.BoundRange{}, fmt.Errorf("start: %w", err)
	}
	if ok {
		r.Start = kv.Exclusive(s)
		if includeStart {
			r.Start = kv.Inclusive(s)
		}
	}

	e, ok, err := ToOptionalKey(end)
	if err != nil {
		return kv.BoundRange{}, fmt.Errorf("end: %w", err)
	}
	if ok {
		r.End = kv.Exclusive(e)
		if includeEnd {
			r.End = kv.Inclusive(e)
		}
	}

	return r, nil
}
