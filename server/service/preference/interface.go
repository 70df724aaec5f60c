package preference

import (
	"context"
	"encoding/json"

	"github.com/hrygo/prefsense/store"
)

// Service defines the lifecycle of stored preferences: direct user writes,
// AI suggestions and the accept/reject decision on those suggestions.
type Service interface {
	// SetPreference stores value as the user's ACTIVE preference for slug.
	// An empty locationID writes the global preference.
	SetPreference(ctx context.Context, userID int32, slug string, value json.RawMessage, locationID string) (*store.Preference, error)

	// SuggestPreference stores an inferred value as SUGGESTED.
	// It returns (nil, nil) when the user already rejected a suggestion for the tuple.
	SuggestPreference(ctx context.Context, req *SuggestRequest) (*store.Preference, error)

	// AcceptSuggestion promotes a SUGGESTED row to ACTIVE.
	AcceptSuggestion(ctx context.Context, id string, userID int32) (*store.Preference, error)

	// RejectSuggestion turns a SUGGESTED row into a REJECTED marker that
	// suppresses future suggestions for the same tuple.
	RejectSuggestion(ctx context.Context, id string, userID int32) (*store.Preference, error)

	// GetActivePreferences returns global ACTIVE rows, overridden by the rows of
	// locationID when it is set, newest first.
	GetActivePreferences(ctx context.Context, userID int32, locationID string) ([]*store.Preference, error)

	// GetSuggestedPreferences returns pending suggestions, global plus those of locationID.
	GetSuggestedPreferences(ctx context.Context, userID int32, locationID string) ([]*store.Preference, error)

	GetPreference(ctx context.Context, id string, userID int32) (*store.Preference, error)
	DeletePreference(ctx context.Context, id string, userID int32) error
	CountPreferences(ctx context.Context, userID int32, status *store.PreferenceStatus) (int, error)

	// ActiveSnapshot returns the merged ACTIVE view keyed by slug.
	ActiveSnapshot(ctx context.Context, userID int32, locationID string) (map[string]json.RawMessage, error)
}

// SuggestRequest is an inferred preference value proposed for a user.
type SuggestRequest struct {
	UserID     int32
	Slug       string
	Value      json.RawMessage
	Confidence float64
	LocationID string
	// Evidence is optional JSON kept with the row, e.g. the source snippet.
	Evidence json.RawMessage
}

// Store is the interface for store operations needed by the preference service.
type Store interface {
	ListPreferences(ctx context.Context, find *store.FindPreference) ([]*store.Preference, error)
	GetPreference(ctx context.Context, find *store.FindPreference) (*store.Preference, error)
	UpsertPreference(ctx context.Context, upsert *store.UpsertPreference) (*store.Preference, error)
	UpsertSuggestedPreference(ctx context.Context, upsert *store.UpsertPreference) (*store.Preference, error)
	TransitionSuggestion(ctx context.Context, transition *store.TransitionSuggestion) (*store.Preference, error)
	DeletePreference(ctx context.Context, delete *store.DeletePreference) error
	CountPreferences(ctx context.Context, count *store.CountPreference) (int, error)
	GetLocation(ctx context.Context, find *store.FindLocation) (*store.Location, error)
}
