package host

import (
	"math/big"
	"strconv"
)

// Object is a value owned by the host.
type Object interface {
	// Type returns the host type name of the object.
	Type() string
}

// NoneType is the type of None.
type NoneType struct{}

// None is the host's absent value.
var None = NoneType{}

func (NoneType) Type() string   { return "NoneType" }
func (NoneType) String() string { return "None" }

// Bool is a host boolean.
type Bool bool

func (Bool) Type() string { return "bool" }

// Bytes is a host byte string.
type Bytes []byte

func (Bytes) Type() string { return "bytes" }

// Str is a host text string.
type Str string

func (Str) Type() string { return "str" }

// Int is an arbitrary precision host integer.
type Int struct {
	v *big.Int
}

// NewInt returns an Int holding v.
func NewInt(v int64) Int { return Int{v: big.NewInt(v)} }

// NewUint returns an Int holding v.
func NewUint(v uint64) Int { return Int{v: new(big.Int).SetUint64(v)} }

// NewBigInt returns an Int holding a copy of v.
func NewBigInt(v *big.Int) Int { return Int{v: new(big.Int).Set(v)} }

func (Int) Type() string { return "int" }

// Big returns a copy of the integer value.
func (i Int) Big() *big.Int {
	if i.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(i.v)
}

// Uint64 returns the value when it fits in a uint64.
func (i Int) Uint64() (uint64, bool) {
	b := i.Big()
	if !b.IsUint64() {
		return 0, false
	}
	return b.Uint64(), true
}

// Int64 returns the value when it fits in an int64.
func (i Int) Int64() (int64, bool) {
	b := i.Big()
	if !b.IsInt64() {
		return 0, false
	}
	return b.Int64(), true
}

func (i Int) String() string { return i.Big().String() }

// Tuple is an immutable host sequence.
type Tuple []Object

func (Tuple) Type() string { return "tuple" }

// List is a mutable host sequence.
type List struct {
	items []Object
}

// NewList returns a List holding items in order.
func NewList(items ...Object) *List {
	return &List{items: append([]Object(nil), items...)}
}

func (*List) Type() string { return "list" }

// Append adds o to the end of the list.
func (l *List) Append(o Object) { l.items = append(l.items, o) }

// Len returns the number of items.
func (l *List) Len() int { return len(l.items) }

// Index returns the item at position i.
func (l *List) Index(i int) Object { return l.items[i] }

// Items returns a copy of the items in order.
func (l *List) Items() []Object { return append([]Object(nil), l.items...) }

// hashKey returns the identity used by Dict for hashable objects.
func hashKey(o Object) (string, bool) {
	switch v := o.(type) {
	case NoneType:
		return "n", true
	case Bool:
		if v {
			return "i1", true
		}
		return "i0", true
	case Int:
		return "i" + v.String(), true
	case Bytes:
		return "b" + string(v), true
	case Str:
		return "s" + string(v), true
	case Tuple:
		key := "t" + strconv.Itoa(len(v))
		for _, item := range v {
			k, ok := hashKey(item)
			if !ok {
				return "", false
			}
			key += ":" + strconv.Itoa(len(k)) + ":" + k
		}
		return key, true
	}
	return "", false
}
