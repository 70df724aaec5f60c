package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hrygo/prefsense/plugin/preference/reconcile"
)

// MaxSuggestions bounds the size of a batch accepted from the model.
const MaxSuggestions = 100

// ResponseError reports a model answer that is not a valid suggestion batch.
type ResponseError struct {
	// Path locates the failing field, e.g. "suggestions[2].confidence".
	// It is empty when the payload is not JSON at all.
	Path    string
	Message string
	Cause   error
}

func (e *ResponseError) Error() string {
	if e.Path == "" {
		return "invalid AI response: " + e.Message
	}
	return fmt.Sprintf("invalid AI response at %s: %s", e.Path, e.Message)
}

func (e *ResponseError) Unwrap() error {
	return e.Cause
}

// Batch is a parsed and schema-checked model answer.
type Batch struct {
	DocumentSummary string
	Suggestions     []*reconcile.RawSuggestion
}

// batchPayload mirrors the JSON the prompt asks for. slug and newValue are
// deliberately optional here; missing ones are reported per record by the
// reconciliation pass instead of failing the whole batch.
type batchPayload struct {
	DocumentSummary *string              `json:"documentSummary" validate:"required"`
	Suggestions     []*suggestionPayload `json:"suggestions" validate:"required,max=100,dive"`
}

type suggestionPayload struct {
	Slug          string          `json:"slug"`
	Operation     string          `json:"operation" validate:"required,oneof=CREATE UPDATE"`
	OldValue      json.RawMessage `json:"oldValue"`
	NewValue      json.RawMessage `json:"newValue"`
	Confidence    *float64        `json:"confidence" validate:"required,gte=0,lte=1"`
	SourceSnippet *string         `json:"sourceSnippet" validate:"required"`
	SourceMeta    json.RawMessage `json:"sourceMeta"`
}

var batchValidate *validator.Validate

func init() {
	batchValidate = validator.New()
	// Report JSON field names in error paths.
	batchValidate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// StripCodeFence removes an optional markdown code fence around s.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseResponse turns raw model output into a Batch.
// Any failure is a *ResponseError; individual records are not judged here.
func ParseResponse(raw string) (*Batch, error) {
	body := StripCodeFence(raw)
	if body == "" {
		return nil, &ResponseError{Message: "response is empty"}
	}

	var payload batchPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, decodeError(err)
	}
	if err := batchValidate.Struct(&payload); err != nil {
		return nil, schemaError(err)
	}

	batch := &Batch{
		DocumentSummary: *payload.DocumentSummary,
		Suggestions:     make([]*reconcile.RawSuggestion, len(payload.Suggestions)),
	}
	for i, s := range payload.Suggestions {
		if s == nil {
			continue
		}
		batch.Suggestions[i] = &reconcile.RawSuggestion{
			Slug:          s.Slug,
			Operation:     reconcile.Operation(s.Operation),
			OldValue:      s.OldValue,
			NewValue:      s.NewValue,
			Confidence:    *s.Confidence,
			SourceSnippet: *s.SourceSnippet,
			SourceMeta:    s.SourceMeta,
		}
	}
	return batch, nil
}

func decodeError(err error) *ResponseError {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &ResponseError{
			Message: fmt.Sprintf("malformed JSON at offset %d: %v", syntaxErr.Offset, syntaxErr),
			Cause:   err,
		}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		path := typeErr.Field
		if path == "" {
			path = "$"
		}
		return &ResponseError{
			Path:    path,
			Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
			Cause:   err,
		}
	}
	return &ResponseError{Message: err.Error(), Cause: err}
}

func schemaError(err error) *ResponseError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ResponseError{Message: err.Error(), Cause: err}
	}

	first := fieldErrs[0]
	path := first.Namespace()
	// Drop the root struct name.
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}

	var msg string
	switch first.Tag() {
	case "required":
		msg = "field is required"
	case "oneof":
		msg = fmt.Sprintf("must be one of [%s]", first.Param())
	case "gte", "lte":
		msg = "must be between 0 and 1"
	case "max":
		msg = fmt.Sprintf("must contain at most %s items", first.Param())
	default:
		msg = fmt.Sprintf("failed %q validation", first.Tag())
	}
	return &ResponseError{Path: path, Message: msg, Cause: err}
}
