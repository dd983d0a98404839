package vm

import (
	"fmt"
	"unsafe"
)

// ValueType represents the type of a Value.
type ValueType uint8

const (
	TypeNil ValueType = iota
	TypeBool
	TypeFloat
	TypeInt
	TypeString
	TypeObject   // reference to an object-heap slot (table or closure)
	TypeUserdata // opaque host pointer
)

// String returns a human-readable string representation of the ValueType.
func (vt ValueType) String() string {
	switch vt {
	case TypeNil:
		return "nil"
	case TypeBool:
		return "boolean"
	case TypeFloat, TypeInt:
		return "number"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	case TypeUserdata:
		return "userdata"
	default:
		return "unknown"
	}
}

// Value is the VM's tagged union. All values are the same size regardless of
// what they hold. Object values carry a non-owning object-heap slot index;
// the heap's reference counts decide slot lifetime, the Value itself is just
// a handle.
type Value struct {
	typ ValueType
	b   bool
	i   int64
	n   float64
	s   string
	obj int // object heap slot, valid when typ == TypeObject
	ud  unsafe.Pointer
}

// Constructors

func Nil() Value            { return Value{typ: TypeNil} }
func Bool(b bool) Value     { return Value{typ: TypeBool, b: b} }
func Int(i int64) Value     { return Value{typ: TypeInt, i: i} }
func Float(n float64) Value { return Value{typ: TypeFloat, n: n} }
func Str(s string) Value    { return Value{typ: TypeString, s: s} }
func ObjectRef(slot int) Value {
	return Value{typ: TypeObject, obj: slot}
}
func Userdata(p unsafe.Pointer) Value { return Value{typ: TypeUserdata, ud: p} }

// Accessors

func (v Value) Type() ValueType { return v.typ }
func (v Value) IsNil() bool     { return v.typ == TypeNil }
func (v Value) IsNumber() bool  { return v.typ == TypeInt || v.typ == TypeFloat }
func (v Value) IsObject() bool  { return v.typ == TypeObject }

func (v Value) AsBool() bool               { return v.b }
func (v Value) AsInt() int64               { return v.i }
func (v Value) AsFloat() float64           { return v.n }
func (v Value) AsString() string           { return v.s }
func (v Value) Slot() int                  { return v.obj }
func (v Value) AsUserdata() unsafe.Pointer { return v.ud }

// Truthy implements the truthiness rule: only nil and false are falsey.
func (v Value) Truthy() bool {
	return !(v.typ == TypeNil || (v.typ == TypeBool && !v.b))
}

// Equals implements value equality: integers and floats compare by numeric
// coercion across the two variants, strings compare by content, objects by
// identity (same heap slot), never structurally.
func (v Value) Equals(o Value) bool {
	if v.typ != o.typ {
		// The only cross-type equality is numeric.
		if v.IsNumber() && o.IsNumber() {
			return v.toFloat() == o.toFloat()
		}
		return false
	}
	switch v.typ {
	case TypeNil:
		return true
	case TypeBool:
		return v.b == o.b
	case TypeInt:
		return v.i == o.i
	case TypeFloat:
		return v.n == o.n
	case TypeString:
		return v.s == o.s
	case TypeObject:
		return v.obj == o.obj
	case TypeUserdata:
		return v.ud == o.ud
	}
	return false
}

// toFloat is the internal numeric widening used by equality and ordering.
// Only valid for number values.
func (v Value) toFloat() float64 {
	if v.typ == TypeInt {
		return float64(v.i)
	}
	return v.n
}

// Less implements ordering: numbers order numerically across the two
// variants, strings order lexicographically. Anything else is unordered and
// compares false, matching the engine's non-raising comparison rule.
func (v Value) Less(o Value) bool {
	if v.IsNumber() && o.IsNumber() {
		return v.toFloat() < o.toFloat()
	}
	if v.typ == TypeString && o.typ == TypeString {
		return v.s < o.s
	}
	return false
}

// LessEqual is the companion of Less with the same unordered rule.
func (v Value) LessEqual(o Value) bool {
	if v.IsNumber() && o.IsNumber() {
		return v.toFloat() <= o.toFloat()
	}
	if v.typ == TypeString && o.typ == TypeString {
		return v.s <= o.s
	}
	return false
}

// Inspect renders a value for diagnostics and host-side printing.
func (v Value) Inspect() string {
	switch v.typ {
	case TypeNil:
		return "nil"
	case TypeBool:
		if v.b {
			return "true"
		}
		return "false"
	case TypeInt, TypeFloat:
		s, _ := v.CoerceString()
		return s
	case TypeString:
		return v.s
	case TypeObject:
		return fmt.Sprintf("object: %d", v.obj)
	case TypeUserdata:
		return fmt.Sprintf("userdata: %p", v.ud)
	}
	return "unknown"
}
