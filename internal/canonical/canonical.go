// package canonical produces the deterministic JSON byte encoding used as hash
// input by the audit chain. The byte layout is fixed forever: object keys sorted
// lexicographically, separators "," and ":" with no whitespace, strings escaped
// via encoding/json, numbers preserved as their original decimal text. Any change
// to this encoding breaks hash compatibility with historical chains.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind enumerates the closed set of shapes a canonical value may take.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

// Value is a closed, explicitly-typed JSON-like value. Audit payloads are
// represented as Values rather than open-ended maps so canonicalization is
// total and deterministic: every constructible Value has exactly one byte
// encoding, and Marshal cannot fail.
type Value struct {
	kind Kind
	b    bool
	num  string // decimal text, kept verbatim
	str  string
	arr  []Value
	obj  map[string]Value
}

// NullValue returns the JSON null value.
func NullValue() Value { return Value{kind: Null} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// NumberValue wraps a decimal number given as text (json.Number semantics).
// The text is emitted verbatim, which keeps numeric formatting stable across
// encode/decode round trips.
func NumberValue(text string) Value { return Value{kind: Number, num: text} }

// IntValue wraps an integer.
func IntValue(i int64) Value { return Value{kind: Number, num: fmt.Sprintf("%d", i)} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: String, str: s} }

// ArrayValue wraps an ordered list of values.
func ArrayValue(elems ...Value) Value {
	return Value{kind: Array, arr: append([]Value(nil), elems...)}
}

// ObjectValue wraps a set of named fields. Key order is irrelevant; encoding
// always sorts keys.
func ObjectValue(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{kind: Object, obj: cp}
}

// Kind reports the shape of the value.
func (v Value) Kind() Kind { return v.kind }

// Marshal returns the canonical byte encoding of v.
func Marshal(v Value) []byte {
	var buf bytes.Buffer
	v.appendTo(&buf)
	return buf.Bytes()
}

func (v Value) appendTo(buf *bytes.Buffer) {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		buf.WriteString(v.num)
	case String:
		b, _ := json.Marshal(v.str)
		buf.Write(b)
	case Array:
		buf.WriteByte('[')
		for i, elem := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			elem.appendTo(buf)
		}
		buf.WriteByte(']')
	case Object:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			v.obj[k].appendTo(buf)
		}
		buf.WriteByte('}')
	}
}

// MarshalJSON makes Value usable directly in API responses and JSONB columns.
// Canonical bytes are themselves valid JSON.
func (v Value) MarshalJSON() ([]byte, error) { return Marshal(v), nil }

// UnmarshalJSON parses arbitrary JSON into the closed Value shape.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Decode(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Decode parses JSON bytes into a Value, preserving number text exactly.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tmp interface{}
	if err := dec.Decode(&tmp); err != nil {
		return Value{}, fmt.Errorf("canonical decode: %w", err)
	}
	return FromInterface(tmp)
}

// FromInterface converts a JSON-shaped interface{} (as produced by
// encoding/json with UseNumber) into a Value. Values outside the JSON data
// model are rejected.
func FromInterface(v interface{}) (Value, error) {
	switch vv := v.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(vv), nil
	case json.Number:
		return NumberValue(vv.String()), nil
	case float64:
		// Fallback for values unmarshaled without UseNumber.
		b, _ := json.Marshal(vv)
		return NumberValue(string(b)), nil
	case int:
		return IntValue(int64(vv)), nil
	case int64:
		return IntValue(vv), nil
	case string:
		return StringValue(vv), nil
	case []interface{}:
		elems := make([]Value, 0, len(vv))
		for _, e := range vv {
			ev, err := FromInterface(e)
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, ev)
		}
		return ArrayValue(elems...), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(vv))
		for k, e := range vv {
			ev, err := FromInterface(e)
			if err != nil {
				return Value{}, err
			}
			fields[k] = ev
		}
		return Value{kind: Object, obj: fields}, nil
	default:
		return Value{}, fmt.Errorf("canonical: unsupported value type %T", v)
	}
}

// MarshalCanonical converts an arbitrary JSON-like value and returns its
// canonical bytes. Convenience wrapper for callers holding interface{} data
// (HTTP envelopes, export bundles).
func MarshalCanonical(v interface{}) ([]byte, error) {
	cv, err := FromInterface(v)
	if err != nil {
		return nil, err
	}
	return Marshal(cv), nil
}
