package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return "unknown"
}

// Value is a tagged variant for record fields. It replaces untyped
// map[string]interface{} documents with a closed set of scalar, list and
// map shapes plus typed accessors.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
}

// Null returns the null Value. The zero Value is also null.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a float.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string. The empty string is a valid non-null value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List wraps a list of values.
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

// Map wraps a nested mapping, e.g. an address sub-document.
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean variant, if held.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer variant, if held.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the numeric value as float64 for either numeric variant.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsString returns the string variant, if held.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns the list variant, if held.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsMap returns the map variant, if held.
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Text renders v for comparison purposes. Null renders as the empty string;
// lists join their elements with a single space; maps render entries in key
// order. Comparators operate on this form.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.Text()
		}
		return strings.Join(parts, " ")
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, v.m[k].Text())
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// Equal reports deep equality between two values. Int and Float compare
// numerically so Int(2) equals Float(2.0).
func (v Value) Equal(o Value) bool {
	if (v.kind == KindInt || v.kind == KindFloat) && (o.kind == KindInt || o.kind == KindFloat) {
		vf, _ := v.AsFloat()
		of, _ := o.AsFloat()
		return vf == of
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, ve := range v.m {
			oe, ok := o.m[k]
			if !ok || !ve.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON encodes the value as plain JSON (no tag envelope).
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		return json.Marshal(v.m)
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// UnmarshalJSON decodes plain JSON into the matching variant. JSON numbers
// without a fractional part decode as Int.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromInterface converts a decoded JSON value into a Value.
func FromInterface(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return Float(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Null(), err
		}
		return Float(f), nil
	case []interface{}:
		list := make([]Value, len(t))
		for i, e := range t {
			v, err := FromInterface(e)
			if err != nil {
				return Null(), err
			}
			list[i] = v
		}
		return List(list...), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromInterface(e)
			if err != nil {
				return Null(), err
			}
			m[k] = v
		}
		return Map(m), nil
	}
	return Null(), fmt.Errorf("unsupported value type %T", raw)
}

// ToInterface converts a Value back into plain Go values for store drivers.
func (v Value) ToInterface() interface{} {
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
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, e := range v.list {
			out[i] = e.ToInterface()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, e := range v.m {
			out[k] = e.ToInterface()
		}
		return out
	}
	return nil
}
