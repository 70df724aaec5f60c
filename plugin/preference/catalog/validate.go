package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// ValidationError describes why a slug, value, scope or confidence was refused.
type ValidationError struct {
	// Field is the rejected input: "slug", "value", "locationId" or "confidence".
	Field   string
	Slug    string
	Message string
	// Suggestions holds "did you mean" candidates for unknown slugs.
	Suggestions []string
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Slug != "" {
		msg = fmt.Sprintf("%s: %s", e.Slug, e.Message)
	}
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean: %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// ValidateSlug checks the slug format and that the slug is registered.
func ValidateSlug(slug string) (*Entry, error) {
	if !ValidateSlugFormat(slug) {
		return nil, &ValidationError{
			Field:   "slug",
			Slug:    slug,
			Message: "slug must look like category.subkey (lowercase letters, digits and underscores)",
		}
	}
	def, ok := GetDefinition(slug)
	if !ok {
		return nil, &ValidationError{
			Field:       "slug",
			Slug:        slug,
			Message:     "unknown preference slug",
			Suggestions: FindSimilarSlugs(slug, 3),
		}
	}
	return def, nil
}

// ValidateValue checks a decoded JSON value against the entry's value type.
// Array items are not inspected.
func ValidateValue(def *Entry, value any) error {
	invalid := func(format string, args ...any) error {
		return &ValidationError{Field: "value", Slug: def.Slug, Message: fmt.Sprintf(format, args...)}
	}

	switch def.ValueType {
	case ValueTypeString:
		if _, ok := value.(string); !ok {
			return invalid("expected a string, got %s", describe(value))
		}
	case ValueTypeBoolean:
		if _, ok := value.(bool); !ok {
			return invalid("expected a boolean, got %s", describe(value))
		}
	case ValueTypeEnum:
		s, ok := value.(string)
		if !ok {
			return invalid("expected one of [%s], got %s", strings.Join(def.Options, ", "), describe(value))
		}
		if !def.HasOption(s) {
			return invalid("%q is not one of [%s]", s, strings.Join(def.Options, ", "))
		}
	case ValueTypeArray:
		if value == nil || reflect.TypeOf(value).Kind() != reflect.Slice {
			return invalid("expected an array, got %s", describe(value))
		}
	default:
		return invalid("unsupported value type %q", def.ValueType)
	}
	return nil
}

// EnforceScope checks that locationID is present exactly when the entry is location scoped.
func EnforceScope(def *Entry, locationID string) error {
	switch def.Scope {
	case ScopeGlobal:
		if locationID != "" {
			return &ValidationError{Field: "locationId", Slug: def.Slug, Message: "global preference cannot be tied to a location"}
		}
	case ScopeLocation:
		if locationID == "" {
			return &ValidationError{Field: "locationId", Slug: def.Slug, Message: "location preference requires a location"}
		}
	}
	return nil
}

// ValidateConfidence checks that c is a finite number in [0, 1].
func ValidateConfidence(c float64) error {
	if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 || c > 1 {
		return &ValidationError{Field: "confidence", Message: fmt.Sprintf("confidence must be between 0 and 1, got %v", c)}
	}
	return nil
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number, float64, float32, int, int32, int64:
		return "a number"
	case map[string]any:
		return "an object"
	}
	if reflect.TypeOf(value).Kind() == reflect.Slice {
		return "an array"
	}
	return fmt.Sprintf("%T", value)
}
