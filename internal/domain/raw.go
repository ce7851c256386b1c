package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// RawRecord is one paper object exactly as delivered by OpenAlex or read back
// from a snapshot file. No key is guaranteed at any depth.
type RawRecord map[string]any

// DecodeRawRecord decodes a single JSON object into a RawRecord.
// Numbers are kept as json.Number so integer fields survive without float rounding.
func DecodeRawRecord(data []byte) (RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding raw record: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("decoding raw record: %w: null object", ErrMalformedRecord)
	}
	return RawRecord(m), nil
}

// IsObject reports whether the record was decoded from a JSON object. Page
// and snapshot elements that fail DecodeRawRecord are kept as nil records so
// the normalizer rejects and counts them.
func (r RawRecord) IsObject() bool {
	return r != nil
}

// Get looks up a top-level key.
func (r RawRecord) Get(key string) Value {
	if r == nil {
		return Value{path: key}
	}
	v, ok := r[key]
	if !ok || v == nil {
		return Value{path: key}
	}
	return Value{path: key, raw: v, present: true}
}

// ID returns the record's "id" field when it is a string, or "".
// It is used for cross-page deduplication where malformed ids are left for
// the normalizer to reject.
func (r RawRecord) ID() string {
	s, _, _ := r.Get("id").String()
	return s
}

// Value is the result of a nested lookup. A missing key, an explicit JSON
// null and a lookup through a non-object parent all produce an absent Value,
// so chains like rec.Get("primary_topic").Get("field").Get("display_name")
// never panic.
type Value struct {
	path    string
	raw     any
	present bool
}

// Present reports whether the value exists and is not null.
func (v Value) Present() bool {
	return v.present
}

// Path returns the dotted key path used to reach this value.
func (v Value) Path() string {
	return v.path
}

// Get descends one level into an object value.
func (v Value) Get(key string) Value {
	path := v.path + "." + key
	if !v.present {
		return Value{path: path}
	}
	m, ok := asObject(v.raw)
	if !ok {
		return Value{path: path}
	}
	child, ok := m[key]
	if !ok || child == nil {
		return Value{path: path}
	}
	return Value{path: path, raw: child, present: true}
}

// String returns the value as a string.
// ok is false when the value is absent; err is set when it has another JSON type.
func (v Value) String() (s string, ok bool, err error) {
	if !v.present {
		return "", false, nil
	}
	s, isString := v.raw.(string)
	if !isString {
		return "", false, v.typeError("string")
	}
	return s, true, nil
}

// Int returns the value as an integer. Integral floats such as 12.0 are accepted.
func (v Value) Int() (n int64, ok bool, err error) {
	if !v.present {
		return 0, false, nil
	}
	switch t := v.raw.(type) {
	case json.Number:
		if i, convErr := t.Int64(); convErr == nil {
			return i, true, nil
		}
		f, convErr := t.Float64()
		if convErr != nil || f != math.Trunc(f) {
			return 0, false, v.typeError("integer")
		}
		return int64(f), true, nil
	case float64:
		if t != math.Trunc(t) {
			return 0, false, v.typeError("integer")
		}
		return int64(t), true, nil
	case int:
		return int64(t), true, nil
	case int64:
		return t, true, nil
	case int32:
		return int64(t), true, nil
	default:
		return 0, false, v.typeError("integer")
	}
}

// Float returns the value as a float64.
func (v Value) Float() (f float64, ok bool, err error) {
	if !v.present {
		return 0, false, nil
	}
	switch t := v.raw.(type) {
	case json.Number:
		f, convErr := t.Float64()
		if convErr != nil {
			return 0, false, v.typeError("number")
		}
		return f, true, nil
	case float64:
		return t, true, nil
	case float32:
		return float64(t), true, nil
	case int:
		return float64(t), true, nil
	case int64:
		return float64(t), true, nil
	default:
		return 0, false, v.typeError("number")
	}
}

// Bool returns the value as a bool.
func (v Value) Bool() (b bool, ok bool, err error) {
	if !v.present {
		return false, false, nil
	}
	b, isBool := v.raw.(bool)
	if !isBool {
		return false, false, v.typeError("boolean")
	}
	return b, true, nil
}

// Object returns the value as a nested record.
func (v Value) Object() (RawRecord, bool, error) {
	if !v.present {
		return nil, false, nil
	}
	m, ok := asObject(v.raw)
	if !ok {
		return nil, false, v.typeError("object")
	}
	return m, true, nil
}

func (v Value) typeError(expected string) error {
	return &FieldTypeError{
		Path:     v.path,
		Expected: expected,
		Got:      jsonTypeName(v.raw),
	}
}

func asObject(raw any) (RawRecord, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return RawRecord(m), true
	case RawRecord:
		return m, true
	default:
		return nil, false
	}
}

func jsonTypeName(raw any) string {
	switch raw.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int32, int64:
		return "number"
	case map[string]any, RawRecord:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", raw)
	}
}
