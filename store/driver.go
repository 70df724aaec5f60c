package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Preference model related methods.
	ListPreferences(ctx context.Context, find *FindPreference) ([]*Preference, error)
	UpsertPreference(ctx context.Context, upsert *UpsertPreference) (*Preference, error)
	// UpsertSuggestedPreference returns nil, nil when a REJECTED row blocks the write.
	UpsertSuggestedPreference(ctx context.Context, upsert *UpsertPreference) (*Preference, error)
	TransitionSuggestion(ctx context.Context, transition *TransitionSuggestion) (*Preference, error)
	DeletePreference(ctx context.Context, delete *DeletePreference) error
	CountPreferences(ctx context.Context, count *CountPreference) (int, error)

	// Location model related methods.
	ListLocations(ctx context.Context, find *FindLocation) ([]*Location, error)
	UpsertLocation(ctx context.Context, upsert *UpsertLocation) (*Location, error)
	DeleteLocation(ctx context.Context, delete *DeleteLocation) error

	// SystemSetting model related methods.
	UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error)
	ListSystemSettings(ctx context.Context, find *FindSystemSetting) ([]*SystemSetting, error)
}
