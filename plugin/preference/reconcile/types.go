package reconcile

import "encoding/json"

// Operation is the change a suggestion proposes for a slug.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
)

// FilterReason explains why a raw suggestion was not surfaced.
type FilterReason string

const (
	FilterMissingFields FilterReason = "MISSING_FIELDS"
	FilterDuplicateKey  FilterReason = "DUPLICATE_KEY"
	FilterNoChange      FilterReason = "NO_CHANGE"
	FilterUnknownSlug   FilterReason = "UNKNOWN_SLUG"
)

// RawSuggestion is one candidate change as proposed by the model.
//
// JSON values are kept raw. A nil OldValue or NewValue means the field was
// absent; the literal `null` means it was present and null.
type RawSuggestion struct {
	Slug          string          `json:"slug"`
	Operation     Operation       `json:"operation"`
	OldValue      json.RawMessage `json:"oldValue,omitempty"`
	NewValue      json.RawMessage `json:"newValue,omitempty"`
	Confidence    float64         `json:"confidence"`
	SourceSnippet string          `json:"sourceSnippet"`
	SourceMeta    json.RawMessage `json:"sourceMeta,omitempty"`
}

// Suggestion is a reconciled change, ready to be shown to the user.
type Suggestion struct {
	ID            string          `json:"id"`
	Slug          string          `json:"slug"`
	Operation     Operation       `json:"operation"`
	OldValue      json.RawMessage `json:"oldValue,omitempty"`
	NewValue      json.RawMessage `json:"newValue,omitempty"`
	Confidence    float64         `json:"confidence"`
	SourceSnippet string          `json:"sourceSnippet"`
	SourceMeta    json.RawMessage `json:"sourceMeta,omitempty"`
	// WasCorrected is set when Operation or OldValue were rewritten from stored state.
	WasCorrected bool   `json:"wasCorrected"`
	Category     string `json:"category,omitempty"`
	Description  string `json:"description,omitempty"`
}

// FilteredSuggestion is a suggestion that was dropped, with the reason.
type FilteredSuggestion struct {
	Suggestion
	FilterReason  FilterReason `json:"filterReason"`
	FilterDetails string       `json:"filterDetails,omitempty"`
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	// Validated keeps the input order.
	Validated     []*Suggestion         `json:"validated"`
	Filtered      []*FilteredSuggestion `json:"filtered"`
	FilteredCount int                   `json:"filteredCount"`
}
