// Package value implements the tagged union used for toggle values: the
// JSON-like scalars and collections a Toggle service can return, with
// lossless conversion to and from plain Go values.
package value

import (
	"encoding/json"
	"io"
	"math"
	"reflect"
	"strings"
)

// Kind identifies which member of the union a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindDouble
	KindBool
	KindArray
	KindObject
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Value is an immutable tagged union. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	arr  []Value
	obj  map[string]Value
}

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func Int(i int64) Value { return Value{kind: KindInt, i: i} }

func Double(f float64) Value { return Value{kind: KindDouble, f: f} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

func Object(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindObject, obj: m}
}

// Kind reports the tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null member.
func (v Value) IsNull() bool { return v.kind == KindNull }

// The As* accessors return ok=false when the tag does not match. A mismatch
// is a soft miss, never an error.

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

func (v Value) AsDouble() (float64, bool) { return v.f, v.kind == KindDouble }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsArray returns a copy of the element slice.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	out := make([]Value, len(v.arr))
	copy(out, v.arr)
	return out, true
}

// AsObject returns a copy of the member map.
func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	out := make(map[string]Value, len(v.obj))
	for k, e := range v.obj {
		out[k] = e
	}
	return out, true
}

// FromAny classifies a dynamic Go value. Precedence: string, json.Number
// (integral numbers become Int, others Double), native integers, native
// floats, bool, slices, string-keyed maps. Anything else is null.
func FromAny(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Null()
	case Value:
		return v
	case string:
		return String(v)
	case json.Number:
		return fromNumber(v)
	case int:
		return Int(int64(v))
	case int8:
		return Int(int64(v))
	case int16:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case int64:
		return Int(v)
	case uint:
		return fromUint(uint64(v))
	case uint8:
		return Int(int64(v))
	case uint16:
		return Int(int64(v))
	case uint32:
		return Int(int64(v))
	case uint64:
		return fromUint(v)
	case float32:
		return Double(float64(v))
	case float64:
		return Double(v)
	case bool:
		return Bool(v)
	case []any:
		items := make([]Value, len(v))
		for i, e := range v {
			items[i] = FromAny(e)
		}
		return Array(items...)
	case map[string]any:
		m := make(map[string]Value, len(v))
		for k, e := range v {
			m[k] = FromAny(e)
		}
		return Object(m)
	}
	return fromReflect(reflect.ValueOf(raw))
}

// fromUint keeps values beyond int64 positive by widening them to Double.
func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Double(float64(u))
	}
	return Int(int64(u))
}

func fromNumber(n json.Number) Value {
	if i, err := n.Int64(); err == nil {
		return Int(i)
	}
	f, err := n.Float64()
	if err != nil {
		return Null()
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return Int(int64(f))
	}
	return Double(f)
}

// fromReflect handles typed slices and maps such as []string or
// map[string]int that the type switch does not list.
func fromReflect(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null()
		}
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = FromAny(rv.Index(i).Interface())
		}
		return Array(items...)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
			return Null()
		}
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = FromAny(iter.Value().Interface())
		}
		return Object(m)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		return FromAny(rv.Elem().Interface())
	}
	return Null()
}

// ToAny projects v back to plain Go values: string, int64, float64, bool,
// []any, map[string]any or nil.
func (v Value) ToAny() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindDouble:
		return v.f
	case KindBool:
		return v.b
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}

// UnwrapEmbeddedJSON re-interprets a string holding a JSON object or array
// as the structured Value. Every other value is returned unchanged.
func (v Value) UnwrapEmbeddedJSON() Value {
	if v.kind != KindString {
		return v
	}
	trimmed := strings.TrimSpace(v.s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return v
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return v
	}
	if _, err := dec.Token(); err != io.EOF {
		return v
	}

	switch raw.(type) {
	case map[string]any, []any:
		return FromAny(raw)
	}
	return v
}

// Equal reports deep equality of tag and payload.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == other.s
	case KindInt:
		return v.i == other.i
	case KindDouble:
		return v.f == other.f
	case KindBool:
		return v.b == other.b
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, e := range v.obj {
			o, ok := other.obj[k]
			if !ok || !e.Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

// MapFromAny converts every member of m with FromAny.
func MapFromAny(m map[string]any) map[string]Value {
	out := make(map[string]Value, len(m))
	for k, e := range m {
		out[k] = FromAny(e)
	}
	return out
}

// MapEqual compares two maps of Values.
func MapEqual(a, b map[string]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, e := range a {
		o, ok := b[k]
		if !ok || !e.Equal(o) {
			return false
		}
	}
	return true
}
