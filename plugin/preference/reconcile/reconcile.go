// Package reconcile checks a model-proposed batch of preference changes
// against the catalog and the user's stored preferences.
//
// Reconcile never fails because of a single record; bad records end up in
// Result.Filtered with a machine readable reason. The input batch and the
// snapshot are never mutated.
package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hrygo/prefsense/internal/util"
	"github.com/hrygo/prefsense/plugin/preference/catalog"
)

// IDFunc generates suggestion identifiers.
type IDFunc func() string

// Reconciler runs reconciliation passes. The zero value is ready to use.
type Reconciler struct {
	// NewID defaults to util.GenShortID.
	NewID IDFunc
}

// Reconcile runs a pass with the default Reconciler.
func Reconcile(batch []*RawSuggestion, snapshot map[string]json.RawMessage) *Result {
	return (&Reconciler{}).Reconcile(batch, snapshot)
}

// Reconcile validates and corrects batch in a single left-to-right pass.
// snapshot maps slug to the currently ACTIVE value for the target user and location.
func (r *Reconciler) Reconcile(batch []*RawSuggestion, snapshot map[string]json.RawMessage) *Result {
	newID := r.NewID
	if newID == nil {
		newID = util.GenShortID
	}

	result := &Result{
		Validated: []*Suggestion{},
		Filtered:  []*FilteredSuggestion{},
	}
	filter := func(s Suggestion, reason FilterReason, details string) {
		result.Filtered = append(result.Filtered, &FilteredSuggestion{
			Suggestion:    s,
			FilterReason:  reason,
			FilterDetails: details,
		})
	}

	seenSlugs := make(map[string]struct{}, len(batch))
	for _, raw := range batch {
		if raw == nil {
			filter(Suggestion{ID: newID()}, FilterMissingFields, "suggestion is empty")
			continue
		}
		base := fromRaw(raw, newID())

		if raw.Slug == "" {
			filter(base, FilterMissingFields, "slug is missing")
			continue
		}
		def, err := catalog.ValidateSlug(raw.Slug)
		if err != nil {
			filter(base, FilterUnknownSlug, err.Error())
			continue
		}
		if len(bytes.TrimSpace(raw.NewValue)) == 0 {
			filter(base, FilterMissingFields, "newValue is missing")
			continue
		}
		if _, seen := seenSlugs[raw.Slug]; seen {
			filter(base, FilterDuplicateKey, fmt.Sprintf("%s already appeared earlier in the batch", raw.Slug))
			continue
		}
		seenSlugs[raw.Slug] = struct{}{}

		current, existsInDb := snapshot[raw.Slug]
		corrected := correct(base, current, existsInDb)
		if existsInDb && Equal(corrected.NewValue, current) {
			filter(corrected, FilterNoChange, "newValue equals the stored value")
			continue
		}

		corrected.Category = def.Category
		corrected.Description = def.Description
		result.Validated = append(result.Validated, &corrected)
	}

	result.FilteredCount = len(result.Filtered)
	return result
}

// correct returns s with Operation and OldValue aligned to stored state.
// s is passed by value so the caller's record is left untouched.
func correct(s Suggestion, current json.RawMessage, existsInDb bool) Suggestion {
	expected := OperationCreate
	if existsInDb {
		expected = OperationUpdate
	}
	if s.Operation != expected {
		s.Operation = expected
		s.WasCorrected = true
	}

	switch {
	case existsInDb && !Equal(s.OldValue, current):
		s.OldValue = clone(current)
		s.WasCorrected = true
	case !existsInDb && isPresent(s.OldValue):
		s.OldValue = nil
		s.WasCorrected = true
	}
	return s
}

func fromRaw(raw *RawSuggestion, id string) Suggestion {
	return Suggestion{
		ID:            id,
		Slug:          raw.Slug,
		Operation:     raw.Operation,
		OldValue:      clone(raw.OldValue),
		NewValue:      clone(raw.NewValue),
		Confidence:    raw.Confidence,
		SourceSnippet: raw.SourceSnippet,
		SourceMeta:    clone(raw.SourceMeta),
	}
}

// Summary counts filtered suggestions per reason.
func Summary(result *Result) map[FilterReason]int {
	counts := make(map[FilterReason]int)
	if result == nil {
		return counts
	}
	for _, f := range result.Filtered {
		counts[f.FilterReason]++
	}
	return counts
}
