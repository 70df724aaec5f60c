package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Value is a preference value already checked against its catalog entry.
// Exactly one variant exists per ValueType.
type Value interface {
	ValueType() ValueType
	// Raw returns the plain Go representation used for JSON encoding.
	Raw() any
}

type (
	StringValue string
	BoolValue   bool
	EnumValue   string
	ArrayValue  []any
)

func (StringValue) ValueType() ValueType { return ValueTypeString }
func (BoolValue) ValueType() ValueType   { return ValueTypeBoolean }
func (EnumValue) ValueType() ValueType   { return ValueTypeEnum }
func (ArrayValue) ValueType() ValueType  { return ValueTypeArray }

func (v StringValue) Raw() any { return string(v) }
func (v BoolValue) Raw() any   { return bool(v) }
func (v EnumValue) Raw() any   { return string(v) }
func (v ArrayValue) Raw() any {
	if v == nil {
		return []any{}
	}
	return []any(v)
}

// ParseValue decodes raw JSON and returns the variant matching def.ValueType.
func ParseValue(def *Entry, raw json.RawMessage) (Value, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ValidationError{Field: "value", Slug: def.Slug, Message: "value is required"}
	}
	decoded, err := DecodeJSON(raw)
	if err != nil {
		return nil, &ValidationError{Field: "value", Slug: def.Slug, Message: fmt.Sprintf("value is not valid JSON: %v", err)}
	}
	if err := ValidateValue(def, decoded); err != nil {
		return nil, err
	}

	switch def.ValueType {
	case ValueTypeString:
		return StringValue(decoded.(string)), nil
	case ValueTypeBoolean:
		return BoolValue(decoded.(bool)), nil
	case ValueTypeEnum:
		return EnumValue(decoded.(string)), nil
	default:
		return ArrayValue(decoded.([]any)), nil
	}
}

// DecodeJSON decodes exactly one JSON value. Numbers are kept as
// json.Number so large integers survive a round trip.
func DecodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return v, nil
}

// EncodeValue returns the canonical JSON encoding of v.
func EncodeValue(v Value) (json.RawMessage, error) {
	b, err := json.Marshal(v.Raw())
	if err != nil {
		return nil, err
	}
	return b, nil
}
