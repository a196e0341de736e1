package event

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind tags the dynamic type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "null"
	}
}

// Value is a tagged representation of the free-form properties payload
// attached to an event. The zero Value is null.
type Value struct {
	kind    Kind
	str     string
	num     float64
	boolean bool
	object  map[string]Value
	array   []Value
}

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

func Array(items ...Value) Value { return Value{kind: KindArray, array: items} }

func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindObject, object: fields}
}

// ParseProperties decodes a raw JSON payload. Anything that is not valid JSON
// becomes a null Value, so callers never have to handle a decode error.
func ParseProperties(raw []byte) Value {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Null()
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return Null()
	}
	return FromAny(decoded)
}

// FromAny converts values produced by encoding/json (or plain Go literals) into a Value.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = FromAny(item)
		}
		return Object(fields)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return Array(items...)
	default:
		return Null()
	}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Field returns the named member of an object value.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Null(), false
	}
	f, ok := v.object[key]
	return f, ok
}

// Lookup walks nested objects, e.g. Lookup("page", "path").
func (v Value) Lookup(keys ...string) (Value, bool) {
	cur := v
	for _, k := range keys {
		next, ok := cur.Field(k)
		if !ok {
			return Null(), false
		}
		cur = next
	}
	return cur, true
}

// Text returns the value coerced to a string. Only scalar values are text:
// null, objects and arrays report false.
func (v Value) Text() (string, bool) {
	switch v.kind {
	case KindString:
		return v.str, true
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.boolean), true
	default:
		return "", false
	}
}

// TextField is Lookup followed by Text.
func (v Value) TextField(keys ...string) (string, bool) {
	f, ok := v.Lookup(keys...)
	if !ok {
		return "", false
	}
	return f.Text()
}

// Interface converts the value back into encoding/json shaped Go values.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.boolean
	case KindObject:
		out := make(map[string]any, len(v.object))
		for k, f := range v.object {
			out[k] = f.Interface()
		}
		return out
	case KindArray:
		out := make([]any, len(v.array))
		for i, item := range v.array {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Keys lists object members in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.object))
	for k := range v.object {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	*v = ParseProperties(data)
	return nil
}

// Scan reads a JSON/JSONB column.
func (v *Value) Scan(src any) error {
	switch t := src.(type) {
	case nil:
		*v = Null()
	case []byte:
		*v = ParseProperties(t)
	case string:
		*v = ParseProperties([]byte(t))
	default:
		return fmt.Errorf("unsupported properties column type %T", src)
	}
	return nil
}

func (v Value) Value() (driver.Value, error) {
	if v.kind == KindNull {
		return []byte("{}"), nil
	}
	return v.MarshalJSON()
}
