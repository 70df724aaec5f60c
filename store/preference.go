package store

import "context"

// PreferenceStatus is the lifecycle state of a stored preference row.
type PreferenceStatus string

const (
	PreferenceActive    PreferenceStatus = "ACTIVE"
	PreferenceSuggested PreferenceStatus = "SUGGESTED"
	// PreferenceRejected rows suppress future suggestions for their tuple.
	PreferenceRejected PreferenceStatus = "REJECTED"
)

func (s PreferenceStatus) String() string {
	return string(s)
}

// SourceType records who produced a preference value.
type SourceType string

const (
	SourceUser     SourceType = "USER"
	SourceInferred SourceType = "INFERRED"
)

// Preference is one stored preference row.
//
// At most one row exists per (UserID, LocationID, Slug, Status).
// An empty LocationID means the preference is global.
type Preference struct {
	ID         string
	UserID     int32
	LocationID string
	Slug       string
	// Value is the JSON encoded preference value.
	Value      string
	Status     PreferenceStatus
	SourceType SourceType
	Confidence float64
	// Evidence is optional JSON describing where an inferred value came from.
	Evidence  string
	CreatedTs int64
	UpdatedTs int64
}

// FindPreference specifies the conditions for listing preferences.
type FindPreference struct {
	ID     *string
	UserID *int32
	Slug   *string
	Status *PreferenceStatus
	// LocationID restricts rows to one location. Ignored when GlobalOnly is set.
	LocationID *string
	// GlobalOnly restricts rows to those without a location.
	GlobalOnly bool
	Limit      *int
}

// UpsertPreference inserts a row or overwrites the one already stored for
// the same (UserID, LocationID, Slug, Status). CreatedTs and ID of an
// existing row are kept.
type UpsertPreference struct {
	UserID     int32
	LocationID string
	Slug       string
	Value      string
	Status     PreferenceStatus
	SourceType SourceType
	Confidence float64
	Evidence   string
}

// DeletePreference specifies the row to delete.
type DeletePreference struct {
	ID string
}

// TransitionSuggestion moves a SUGGESTED row to Target in one transaction.
// The target row inherits the tuple and value of the suggestion; the
// suggestion row is deleted.
type TransitionSuggestion struct {
	SuggestionID string
	// Target is PreferenceActive or PreferenceRejected.
	Target     PreferenceStatus
	SourceType SourceType
	Confidence float64
}

// CountPreference specifies the conditions for counting preferences.
type CountPreference struct {
	UserID int32
	Status *PreferenceStatus
}

func (s *Store) ListPreferences(ctx context.Context, find *FindPreference) ([]*Preference, error) {
	return s.driver.ListPreferences(ctx, find)
}

// GetPreference returns the first row matching find, or nil when none does.
func (s *Store) GetPreference(ctx context.Context, find *FindPreference) (*Preference, error) {
	limit := 1
	find.Limit = &limit
	list, err := s.ListPreferences(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpsertPreference(ctx context.Context, upsert *UpsertPreference) (*Preference, error) {
	return s.driver.UpsertPreference(ctx, upsert)
}

// UpsertSuggestedPreference writes a SUGGESTED row unless a REJECTED row
// exists for the same tuple. It returns nil without error when suppressed.
func (s *Store) UpsertSuggestedPreference(ctx context.Context, upsert *UpsertPreference) (*Preference, error) {
	upsert.Status = PreferenceSuggested
	return s.driver.UpsertSuggestedPreference(ctx, upsert)
}

func (s *Store) TransitionSuggestion(ctx context.Context, transition *TransitionSuggestion) (*Preference, error) {
	return s.driver.TransitionSuggestion(ctx, transition)
}

func (s *Store) DeletePreference(ctx context.Context, delete *DeletePreference) error {
	return s.driver.DeletePreference(ctx, delete)
}

func (s *Store) CountPreferences(ctx context.Context, count *CountPreference) (int, error) {
	return s.driver.CountPreferences(ctx, count)
}
