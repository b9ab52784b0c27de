package knowledge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
	// KindOpaque holds any value the loader could not map onto the tree.
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "opaque"
	}
}

// Value is one node of a knowledge document.
type Value struct {
	Kind   Kind
	Str    string
	Num    float64
	Bool   bool
	List   []Value
	Fields map[string]Value
	Opaque interface{}
}

func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func List(items ...Value) Value { return Value{Kind: KindList, List: items} }

func Map(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{Kind: KindMap, Fields: fields}
}

func Opaque(v interface{}) Value {
	return Value{Kind: KindOpaque, Opaque: v}
}

// FromAny converts decoded JSON/YAML data into a Value. Types outside the
// JSON data model become opaque.
func FromAny(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Value{Kind: KindNull}
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case float32:
		return Number(float64(t))
	case float64:
		return Number(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			items = append(items, FromAny(item))
		}
		return List(items...)
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = FromAny(item)
		}
		return Map(fields)
	case map[interface{}]interface{}:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[fmt.Sprint(k)] = FromAny(item)
		}
		return Map(fields)
	default:
		return Opaque(v)
	}
}

func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// Get returns the field of a map value.
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != KindMap {
		return Value{}, false
	}
	field, ok := v.Fields[key]
	return field, ok
}

// Keys returns map keys in sorted order.
func (v Value) Keys() []string {
	if v.Kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Walk visits every scalar leaf with the path of map keys leading to it.
func (v Value) Walk(fn func(path []string, leaf Value)) {
	v.walk(nil, fn)
}

func (v Value) walk(path []string, fn func([]string, Value)) {
	switch v.Kind {
	case KindMap:
		for _, k := range v.Keys() {
			v.Fields[k].walk(append(path[:len(path):len(path)], k), fn)
		}
	case KindList:
		for _, item := range v.List {
			item.walk(path, fn)
		}
	default:
		fn(path, v)
	}
}

// MarshalJSON writes a canonical encoding: sorted keys, no HTML escaping.
// Values JSON cannot represent fall back to their printed form.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.Kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		return writeString(buf, v.Str)
	case KindNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return writeString(buf, strconv.FormatFloat(v.Num, 'g', -1, 64))
		}
		buf.WriteString(strconv.FormatFloat(v.Num, 'f', -1, 64))
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.Bool))
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.List {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := v.Fields[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		raw, err := marshalNoEscape(v.Opaque)
		if err != nil {
			return writeString(buf, fmt.Sprint(v.Opaque))
		}
		buf.Write(raw)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	raw, err := marshalNoEscape(s)
	if err != nil {
		return err
	}
	buf.Write(raw)
	return nil
}

func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Text returns the canonical JSON of v, or its printed form if encoding fails.
func (v Value) Text() string {
	raw, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprint(v.Opaque)
	}
	return string(raw)
}
