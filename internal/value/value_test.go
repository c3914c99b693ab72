package value

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAnyClassification(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null()},
		{"string", "hello", String("hello")},
		{"numeric string stays string", "42", String("42")},
		{"int", 42, Int(42)},
		{"int32", int32(-7), Int(-7)},
		{"uint16", uint16(9), Int(9)},
		{"uint64 within int64", uint64(math.MaxInt64), Int(math.MaxInt64)},
		{"uint64 beyond int64", uint64(math.MaxUint64), Double(float64(math.MaxUint64))},
		{"uint beyond int64", uint(1 << 63), Double(float64(1 << 63))},
		{"float64", 3.14, Double(3.14)},
		{"integral float64 stays double", float64(2), Double(2)},
		{"bool", true, Bool(true)},
		{"json integral number", json.Number("23"), Int(23)},
		{"json integral with fraction", json.Number("23.0"), Int(23)},
		{"json fractional", json.Number("1.5"), Double(1.5)},
		{"typed slice", []string{"a", "b"}, Array(String("a"), String("b"))},
		{"typed map", map[string]int{"x": 1}, Object(map[string]Value{"x": Int(1)})},
		{"unsupported", struct{}{}, Null()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromAny(tt.in)
			assert.True(t, tt.want.Equal(got), "want %v (%s), got %v (%s)",
				tt.want.ToAny(), tt.want.Kind(), got.ToAny(), got.Kind())
		})
	}
}

func TestFromAnyNested(t *testing.T) {
	in := map[string]any{
		"name":  "widget",
		"count": 3,
		"tags":  []any{"a", 1, false, nil},
		"inner": map[string]any{"ratio": 0.25},
	}

	v := FromAny(in)
	require.Equal(t, KindObject, v.Kind())

	obj, ok := v.AsObject()
	require.True(t, ok)
	assert.True(t, obj["name"].Equal(String("widget")))
	assert.True(t, obj["count"].Equal(Int(3)))
	assert.True(t, obj["tags"].Equal(Array(String("a"), Int(1), Bool(false), Null())))
	assert.True(t, obj["inner"].Equal(Object(map[string]Value{"ratio": Double(0.25)})))
}

func TestToAnyRoundTrip(t *testing.T) {
	values := []Value{
		Null(),
		String("s"),
		Int(-12),
		Double(2),
		Double(0.5),
		Bool(false),
		Array(Int(1), String("two"), Array(Bool(true))),
		Object(map[string]Value{"a": Int(1), "b": Object(map[string]Value{"c": Null()})}),
	}

	for _, v := range values {
		t.Run(v.Kind().String(), func(t *testing.T) {
			assert.True(t, v.Equal(FromAny(v.ToAny())))
		})
	}
}

func TestAccessorsSoftMiss(t *testing.T) {
	v := String("x")

	_, ok := v.AsInt()
	assert.False(t, ok)
	_, ok = v.AsDouble()
	assert.False(t, ok)
	_, ok = v.AsBool()
	assert.False(t, ok)
	_, ok = v.AsArray()
	assert.False(t, ok)
	_, ok = v.AsObject()
	assert.False(t, ok)

	s, ok := v.AsString()
	assert.True(t, ok)
	assert.Equal(t, "x", s)
}

func TestAsObjectReturnsCopy(t *testing.T) {
	v := Object(map[string]Value{"a": Int(1)})
	m, _ := v.AsObject()
	m["b"] = Int(2)

	again, _ := v.AsObject()
	assert.Len(t, again, 1)
}

func TestEqual(t *testing.T) {
	assert.True(t, Null().Equal(Value{}))
	assert.False(t, Int(1).Equal(Double(1)))
	assert.False(t, Array(Int(1)).Equal(Array(Int(1), Int(2))))
	assert.False(t, Object(map[string]Value{"a": Int(1)}).Equal(Object(map[string]Value{"b": Int(1)})))
	assert.True(t, Object(nil).Equal(Object(map[string]Value{})))
}

func TestUnwrapEmbeddedJSON(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want Value
	}{
		{
			name: "object",
			in:   String(`{"theme":"dark","size":2,"ratio":0.5}`),
			want: Object(map[string]Value{"theme": String("dark"), "size": Int(2), "ratio": Double(0.5)}),
		},
		{
			name: "array",
			in:   String(` [1, "two", true] `),
			want: Array(Int(1), String("two"), Bool(true)),
		},
		{name: "plain string", in: String("hello"), want: String("hello")},
		{name: "numeric string", in: String("42"), want: String("42")},
		{name: "quoted json string", in: String(`"inner"`), want: String(`"inner"`)},
		{name: "invalid json", in: String(`{"a":`), want: String(`{"a":`)},
		{name: "trailing garbage", in: String(`{"a":1} x`), want: String(`{"a":1} x`)},
		{name: "non string", in: Int(5), want: Int(5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.UnwrapEmbeddedJSON()
			assert.True(t, tt.want.Equal(got), "got %v", got.ToAny())
		})
	}
}

func TestJSONDecode(t *testing.T) {
	tests := []struct {
		in   string
		want Value
	}{
		{`null`, Null()},
		{`"42"`, String("42")},
		{`42`, Int(42)},
		{`-3`, Int(-3)},
		{`4.5`, Double(4.5)},
		{`1e3`, Double(1000)},
		{`23.0`, Double(23)},
		{`99999999999999999999`, Double(1e20)},
		{`true`, Bool(true)},
		{`[1,"a",null]`, Array(Int(1), String("a"), Null())},
		{`{"k":{"n":[false]}}`, Object(map[string]Value{"k": Object(map[string]Value{"n": Array(Bool(false))})})},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got Value
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.True(t, tt.want.Equal(got), "got %v (%s)", got.ToAny(), got.Kind())
		})
	}
}

func TestJSONDecodeInvalid(t *testing.T) {
	var v Value
	assert.Error(t, v.UnmarshalJSON([]byte("nul")))
	assert.Error(t, v.UnmarshalJSON([]byte("")))
	assert.Error(t, v.UnmarshalJSON([]byte("1.2.3")))
}

func TestJSONEncode(t *testing.T) {
	tests := []struct {
		in   Value
		want string
	}{
		{Null(), `null`},
		{String("a\"b"), `"a\"b"`},
		{Int(7), `7`},
		{Double(23), `23.0`},
		{Double(0.125), `0.125`},
		{Bool(false), `false`},
		{Array(), `[]`},
		{Object(map[string]Value{"b": Int(2), "a": Int(1)}), `{"a":1,"b":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			out, err := json.Marshal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestJSONRoundTripPreservesKind(t *testing.T) {
	in := Object(map[string]Value{
		"i": Int(23),
		"d": Double(23),
		"s": String("23"),
		"a": Array(Double(1), Int(1)),
	})

	out, err := json.Marshal(in)
	require.NoError(t, err)

	var back Value
	require.NoError(t, json.Unmarshal(out, &back))
	assert.True(t, in.Equal(back), "got %s", out)
}

func TestJSONEncodeNaN(t *testing.T) {
	_, err := Double(nan()).MarshalJSON()
	assert.ErrorIs(t, err, ErrUnsupportedNumber)
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}
