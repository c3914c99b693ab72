package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrUnsupportedNumber is returned when encoding NaN or an infinity.
var ErrUnsupportedNumber = errors.New("value: unsupported number")

// MarshalJSON encodes v as the corresponding JSON literal. Doubles always
// carry a fractional part or exponent so that they decode back as doubles.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return strconv.AppendInt(nil, v.i, 10), nil
	case KindDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedNumber, v.f)
		}
		out := strconv.AppendFloat(nil, v.f, 'g', -1, 64)
		if !bytes.ContainsAny(out, ".eE") {
			out = append(out, '.', '0')
		}
		return out, nil
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes any JSON literal. Numbers without a fraction or
// exponent that fit in int64 become Int, all other numbers Double.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("value: empty JSON input")
	}

	switch data[0] {
	case 'n':
		if !bytes.Equal(data, []byte("null")) {
			return fmt.Errorf("value: invalid literal %q", data)
		}
		*v = Null()
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		items := make([]Value, len(raw))
		for i, r := range raw {
			if err := items[i].UnmarshalJSON(r); err != nil {
				return err
			}
		}
		*v = Array(items...)
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		m := make(map[string]Value, len(raw))
		for k, r := range raw {
			var e Value
			if err := e.UnmarshalJSON(r); err != nil {
				return err
			}
			m[k] = e
		}
		*v = Object(m)
	default:
		n, err := parseNumber(data)
		if err != nil {
			return err
		}
		*v = n
	}
	return nil
}

func parseNumber(data []byte) (Value, error) {
	s := string(data)
	if !bytes.ContainsAny(data, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	if !json.Valid(data) {
		return Value{}, fmt.Errorf("value: invalid number %q", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("value: invalid number %q: %w", s, err)
	}
	return Double(f), nil
}
