// Package dialog implements the dialog-session execution engine: the
// append-only variable store, action dispatch, turn processing with the
// nudge loop, and launch coordination. The script interpreter, message
// delivery, and per-deployment actions stay behind collaborator interfaces.
package dialog

import (
	"encoding/json"
	"strconv"
	"strings"
)

// StoredValuePrefix tags serialized non-string values in the variable log so
// that raw strings and structured values stay unambiguous. The storage format
// is shared with existing data and must not change.
const StoredValuePrefix = "json:"

// Kind enumerates the shapes a variable value can take.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value is a tagged union over the shapes the variable log can hold. It
// replaces ad-hoc dynamic typing with one explicit representation while
// preserving the json:-tagged wire format.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	m    map[string]Value
}

func Null() Value                  { return Value{kind: KindNull} }
func String(s string) Value        { return Value{kind: KindString, str: s} }
func Number(f float64) Value       { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value            { return Value{kind: KindBool, b: b} }
func List(items []Value) Value     { return Value{kind: KindList, list: items} }
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// StringValue returns the string payload and whether the value is a string.
func (v Value) StringValue() (string, bool) {
	return v.str, v.kind == KindString
}

// NumberValue returns the numeric payload and whether the value is a number.
func (v Value) NumberValue() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// ListValue returns the list payload and whether the value is a list.
func (v Value) ListValue() ([]Value, bool) {
	return v.list, v.kind == KindList
}

// MapValue returns the map payload and whether the value is a map.
func (v Value) MapValue() (map[string]Value, bool) {
	return v.m, v.kind == KindMap
}

// FromAny converts a plain Go value (typically decoded JSON or collaborator
// input) into a Value. Unsupported types stringify through fmt-free paths:
// they become their JSON encoding, or null when unencodable.
func FromAny(raw any) Value {
	switch typed := raw.(type) {
	case nil:
		return Null()
	case Value:
		return typed
	case string:
		return String(typed)
	case bool:
		return Bool(typed)
	case float64:
		return Number(typed)
	case float32:
		return Number(float64(typed))
	case int:
		return Number(float64(typed))
	case int32:
		return Number(float64(typed))
	case int64:
		return Number(float64(typed))
	case []any:
		items := make([]Value, 0, len(typed))
		for _, item := range typed {
			items = append(items, FromAny(item))
		}
		return List(items)
	case []Value:
		return List(typed)
	case map[string]any:
		entries := make(map[string]Value, len(typed))
		for key, item := range typed {
			entries[key] = FromAny(item)
		}
		return Map(entries)
	case map[string]Value:
		return Map(typed)
	default:
		encoded, err := json.Marshal(raw)
		if err != nil {
			return Null()
		}
		var decoded any
		if err := json.Unmarshal(encoded, &decoded); err != nil {
			return Null()
		}
		return FromAny(decoded)
	}
}

// Interface converts the value back into plain Go types for extras maps and
// JSON encoding.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		items := make([]any, 0, len(v.list))
		for _, item := range v.list {
			items = append(items, item.Interface())
		}
		return items
	case KindMap:
		entries := make(map[string]any, len(v.m))
		for key, item := range v.m {
			entries[key] = item.Interface()
		}
		return entries
	default:
		return nil
	}
}

// Equal reports deep structural equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for key, item := range v.m {
			otherItem, ok := other.m[key]
			if !ok || !item.Equal(otherItem) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Encode serializes the value into its stored form: strings verbatim,
// everything else JSON behind the json: prefix.
func (v Value) Encode() string {
	if v.kind == KindString {
		return v.str
	}

	encoded, err := json.Marshal(v.Interface())
	if err != nil {
		// Unencodable values degrade to an empty structure rather than
		// failing the append.
		return StoredValuePrefix + "[]"
	}

	return StoredValuePrefix + string(encoded)
}

// DecodeStored parses a stored variable value. Values without the json:
// prefix are raw strings; tagged values decode as JSON, with malformed
// payloads decoding to an empty list rather than erroring.
func DecodeStored(stored string) Value {
	if !strings.HasPrefix(stored, StoredValuePrefix) {
		return String(stored)
	}

	var decoded any
	if err := json.Unmarshal([]byte(stored[len(StoredValuePrefix):]), &decoded); err != nil {
		return List(nil)
	}

	return FromAny(decoded)
}

// AsNumber attempts numeric coercion: numbers pass through, numeric strings
// parse as float then integer. Everything else does not coerce.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		trimmed := strings.TrimSpace(v.str)
		if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return parsed, true
		}
		if parsed, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return float64(parsed), true
		}
		return 0, false
	default:
		return 0, false
	}
}
