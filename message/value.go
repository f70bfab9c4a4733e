package message

import "fmt"

// Kind identifies the concrete type held by a Value, matching the subset of
// the AMQP 1.0 type system the core exposes to routing criteria and message
// properties.
type Kind uint8

const (
	// KindNull represents the absence of a value.
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBinary
	KindList
	KindMap
)

// Value is a tagged union standing in for the dynamic, arbitrarily-typed
// property maps of the source implementation. Go has no native dynamic
// value type, so each AMQP-representable shape gets its own constructor and
// accessor instead of storing a bare interface{}.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	bin  []byte
	list []Value
	m    map[string]Value
}

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int wraps a signed integer.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float wraps a floating point number.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// String wraps a UTF-8 string.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Binary wraps an opaque byte slice.
func Binary(v []byte) Value { return Value{kind: KindBinary, bin: v} }

// List wraps an ordered sequence of values.
func List(v ...Value) Value { return Value{kind: KindList, list: v} }

// Map wraps a string-keyed collection of values.
func Map(v map[string]Value) Value {
	if v == nil {
		v = map[string]Value{}
	}
	return Value{kind: KindMap, m: v}
}

// Kind reports the concrete type held.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the wrapped boolean and whether v is a KindBool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Int returns the wrapped integer and whether v is a KindInt.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Float returns the wrapped float and whether v is a KindFloat.
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

// String returns the wrapped string and whether v is a KindString.
func (v Value) String() (string, bool) { return v.s, v.kind == KindString }

// Binary returns the wrapped bytes and whether v is a KindBinary.
func (v Value) Binary() ([]byte, bool) { return v.bin, v.kind == KindBinary }

// List returns the wrapped slice and whether v is a KindList.
func (v Value) List() ([]Value, bool) { return v.list, v.kind == KindList }

// Map returns the wrapped map and whether v is a KindMap.
func (v Value) Map() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Native unwraps v into a plain Go value, for handing off to the transport
// codec's application-properties/body encoding.
func (v Value) Native() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBinary:
		return v.bin
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, e := range v.list {
			out[i] = e.Native()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, e := range v.m {
			out[k] = e.Native()
		}
		return out
	default:
		return nil
	}
}

// FromNative builds a Value from a plain Go value decoded off the wire.
func FromNative(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint32:
		return Int(int64(t))
	case uint64:
		return Int(int64(t))
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []byte:
		return Binary(t)
	case []interface{}:
		list := make([]Value, len(t))
		for i, e := range t {
			list[i] = FromNative(e)
		}
		return List(list...)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = FromNative(e)
		}
		return Map(m)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}
