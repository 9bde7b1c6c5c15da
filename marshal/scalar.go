package marshal

import (
	"fmt"
	"math"

	"github.com/tarmac-project/kvbridge/host"
	"github.com/tarmac-project/kvbridge/kv"
)

// FromUint64 projects v into a host integer.
func FromUint64(v uint64) host.Int { return host.NewUint(v) }

// FromOptionalUint64 projects v into a host integer, or None when it is absent.
func FromOptionalUint64(v uint64, ok bool) host.Object {
	if !ok {
		return host.None
	}
	return host.NewUint(v)
}

// FromBool projects b into a host boolean.
func FromBool(b bool) host.Bool { return host.Bool(b) }

// ToUint64 extracts an unsigned 64-bit integer. Booleans count as 0 and 1.
func ToUint64(o host.Object) (uint64, error) {
	switch v := o.(type) {
	case host.Int:
		u, ok := v.Uint64()
		if !ok {
			return 0, fmt.Errorf("%w: %s does not fit in an unsigned 64-bit integer", ErrTypeMismatch, v)
		}
		return u, nil
	case host.Bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, mismatch("int", o)
}

// ToUint32 extracts an unsigned 32-bit integer.
func ToUint32(o host.Object) (uint32, error) {
	u, err := ToUint64(o)
	if err != nil {
		return 0, err
	}
	if u > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d does not fit in an unsigned 32-bit integer", ErrTypeMismatch, u)
	}
	return uint32(u), nil
}

// ToBool extracts a boolean.
func ToBool(o host.Object) (bool, error) {
	b, ok := o.(host.Bool)
	if !ok {
		return false, mismatch("bool", o)
	}
	return bool(b), nil
}

// ToColumnFamily extracts a column family name; None selects the default.
func ToColumnFamily(o host.Object) (kv.ColumnFamily, error) {
	if absent(o) {
		return kv.CFDefault, nil
	}
	s, ok := o.(host.Str)
	if !ok {
		return "", mismatch("str", o)
	}
	return kv.ParseColumnFamily(string(s))
}
