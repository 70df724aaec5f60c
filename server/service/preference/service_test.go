package preference

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hrygo/prefsense/server/internal/errors"
	"github.com/hrygo/prefsense/server/internal/observability"
	"github.com/hrygo/prefsense/store"
)

// MockStoreForPreference keeps rows in memory with the same tuple uniqueness as the SQL drivers.
type MockStoreForPreference struct {
	mu        sync.Mutex
	rows      []*store.Preference
	locations map[string]*store.Location
	clock     int64
	nextID    int
	writes    int
}

func newMockStore() *MockStoreForPreference {
	return &MockStoreForPreference{locations: map[string]*store.Location{}}
}

func (m *MockStoreForPreference) addLocation(id string, userID int32) {
	m.locations[id] = &store.Location{ID: id, UserID: userID, Name: id}
}

func matches(p *store.Preference, find *store.FindPreference) bool {
	if find.ID != nil && p.ID != *find.ID {
		return false
	}
	if find.UserID != nil && p.UserID != *find.UserID {
		return false
	}
	if find.Slug != nil && p.Slug != *find.Slug {
		return false
	}
	if find.Status != nil && p.Status != *find.Status {
		return false
	}
	if find.GlobalOnly {
		return p.LocationID == ""
	}
	if find.LocationID != nil && p.LocationID != *find.LocationID {
		return false
	}
	return true
}

func (m *MockStoreForPreference) ListPreferences(ctx context.Context, find *store.FindPreference) ([]*store.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*store.Preference, 0)
	for _, p := range m.rows {
		if matches(p, find) {
			copied := *p
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *MockStoreForPreference) GetPreference(ctx context.Context, find *store.FindPreference) (*store.Preference, error) {
	list, err := m.ListPreferences(ctx, find)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (m *MockStoreForPreference) upsertLocked(upsert *store.UpsertPreference) *store.Preference {
	m.clock++
	m.writes++
	for _, p := range m.rows {
		if p.UserID == upsert.UserID && p.LocationID == upsert.LocationID && p.Slug == upsert.Slug && p.Status == upsert.Status {
			p.Value = upsert.Value
			p.SourceType = upsert.SourceType
			p.Confidence = upsert.Confidence
			p.Evidence = upsert.Evidence
			p.UpdatedTs = m.clock
			copied := *p
			return &copied
		}
	}
	m.nextID++
	p := &store.Preference{
		ID:         fmt.Sprintf("p%d", m.nextID),
		UserID:     upsert.UserID,
		LocationID: upsert.LocationID,
		Slug:       upsert.Slug,
		Value:      upsert.Value,
		Status:     upsert.Status,
		SourceType: upsert.SourceType,
		Confidence: upsert.Confidence,
		Evidence:   upsert.Evidence,
		CreatedTs:  m.clock,
		UpdatedTs:  m.clock,
	}
	m.rows = append(m.rows, p)
	copied := *p
	return &copied
}

func (m *MockStoreForPreference) UpsertPreference(ctx context.Context, upsert *store.UpsertPreference) (*store.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(upsert), nil
}

func (m *MockStoreForPreference) UpsertSuggestedPreference(ctx context.Context, upsert *store.UpsertPreference) (*store.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.rows {
		if p.UserID == upsert.UserID && p.LocationID == upsert.LocationID && p.Slug == upsert.Slug && p.Status == store.PreferenceRejected {
			return nil, nil
		}
	}
	upsert.Status = store.PreferenceSuggested
	return m.upsertLocked(upsert), nil
}

func (m *MockStoreForPreference) TransitionSuggestion(ctx context.Context, transition *store.TransitionSuggestion) (*store.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, p := range m.rows {
		if p.ID != transition.SuggestionID || p.Status != store.PreferenceSuggested {
			continue
		}
		target := m.upsertLocked(&store.UpsertPreference{
			UserID:     p.UserID,
			LocationID: p.LocationID,
			Slug:       p.Slug,
			Value:      p.Value,
			Status:     transition.Target,
			SourceType: transition.SourceType,
			Confidence: transition.Confidence,
			Evidence:   p.Evidence,
		})
		m.rows = append(m.rows[:i], m.rows[i+1:]...)
		return target, nil
	}
	return nil, store.ErrNotFound
}

func (m *MockStoreForPreference) DeletePreference(ctx context.Context, delete *store.DeletePreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, p := range m.rows {
		if p.ID == delete.ID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			m.writes++
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *MockStoreForPreference) CountPreferences(ctx context.Context, count *store.CountPreference) (int, error) {
	list, err := m.ListPreferences(ctx, &store.FindPreference{UserID: &count.UserID, Status: count.Status})
	return len(list), err
}

func (m *MockStoreForPreference) GetLocation(ctx context.Context, find *store.FindLocation) (*store.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locations[*find.ID], nil
}

func (m *MockStoreForPreference) count(userID int32, status store.PreferenceStatus) int {
	n, _ := m.CountPreferences(context.Background(), &store.CountPreference{UserID: userID, Status: &status})
	return n
}

func newTestService(m *MockStoreForPreference) Service {
	return NewService(m, WithMetrics(observability.NewMetrics()))
}

func TestSetPreferenceTwiceKeepsOneActiveRow(t *testing.T) {
	ctx := context.Background()
	m := newMockStore()
	svc := newTestService(m)

	first, err := svc.SetPreference(ctx, 1, "system.response_tone", json.RawMessage(`"casual"`), "")
	require.NoError(t, err)
	second, err := svc.SetPreference(ctx, 1, "system.response_tone", json.RawMessage(`"formal"`), "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedTs, second.CreatedTs)
	assert.Equal(t, `"formal"`, second.Value)
	assert.Equal(t, store.SourceUser, second.SourceType)
	assert.Equal(t, 1.0, second.Confidence)
	assert.Equal(t, 1, m.count(1, store.PreferenceActive))
}

func TestSetPreferenceCanonicalizesValue(t *testing.T) {
	m := newMockStore()
	svc := newTestService(m)

	p, err := svc.SetPreference(context.Background(), 1, "food.dietary_restrictions", json.RawMessage(` [ "vegan",  "no nuts" ] `), "")
	require.NoError(t, err)
	assert.Equal(t, `["vegan","no nuts"]`, p.Value)
}

func TestSetPreferenceValidation(t *testing.T) {
	m := newMockStore()
	m.addLocation("home", 1)
	m.addLocation("theirs", 2)
	svc := newTestService(m)

	tests := []struct {
		name       string
		slug       string
		value      string
		locationID string
		code       apperrors.ErrorCode
		field      string
	}{
		{name: "bad format", slug: "Bad Slug", value: `"x"`, code: apperrors.ErrCodeValidationFailed, field: "slug"},
		{name: "unknown slug", slug: "food.favorite_color", value: `"x"`, code: apperrors.ErrCodeValidationFailed, field: "slug"},
		{name: "array given string", slug: "food.dietary_restrictions", value: `"peanuts"`, code: apperrors.ErrCodeValidationFailed, field: "value"},
		{name: "enum option", slug: "system.response_tone", value: `"angry"`, code: apperrors.ErrCodeValidationFailed, field: "value"},
		{name: "global with location", slug: "system.language", value: `"en"`, locationID: "home", code: apperrors.ErrCodeValidationFailed, field: "locationId"},
		{name: "location without location", slug: "location.quiet_hours", value: `"22-7"`, code: apperrors.ErrCodeValidationFailed, field: "locationId"},
		{name: "foreign location", slug: "location.quiet_hours", value: `"22-7"`, locationID: "theirs", code: apperrors.ErrCodeNotFound},
		{name: "missing location", slug: "location.quiet_hours", value: `"22-7"`, locationID: "nowhere", code: apperrors.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SetPreference(context.Background(), 1, tt.slug, json.RawMessage(tt.value), tt.locationID)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, tt.code), "got %v", err)
			if tt.field != "" {
				var appErr *apperrors.Error
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tt.field, appErr.Context["field"])
			}
		})
	}
	assert.Zero(t, m.writes)
}

func TestSetPreferenceUnknownSlugSuggestsAlternatives(t *testing.T) {
	svc := newTestService(newMockStore())

	_, err := svc.SetPreference(context.Background(), 1, "system.tone", json.RawMessage(`"casual"`), "")
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Context["suggestions"], "system.response_tone")
	assert.Contains(t, err.Error(), "did you mean")
}

func TestSuggestPreferenceAfterRejectWritesNothing(t *testing.T) {
	ctx := context.Background()
	m := newMockStore()
	svc := newTestService(m)

	req := &SuggestRequest{UserID: 1, Slug: "system.use_emoji", Value: json.RawMessage(`true`), Confidence: 0.7}
	suggested, err := svc.SuggestPreference(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, suggested)
	assert.Equal(t, store.PreferenceSuggested, suggested.Status)
	assert.Equal(t, store.SourceInferred, suggested.SourceType)

	_, err = svc.RejectSuggestion(ctx, suggested.ID, 1)
	require.NoError(t, err)

	writes := m.writes
	again, err := svc.SuggestPreference(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, writes, m.writes)
	assert.Zero(t, m.count(1, store.PreferenceSuggested))
}

func TestSuggestPreferenceValidation(t *testing.T) {
	svc := newTestService(newMockStore())
	ctx := context.Background()

	_, err := svc.SuggestPreference(ctx, &SuggestRequest{UserID: 1, Slug: "system.use_emoji", Value: json.RawMessage(`true`), Confidence: 1.5})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))

	_, err = svc.SuggestPreference(ctx, &SuggestRequest{UserID: 1, Slug: "system.use_emoji", Value: json.RawMessage(`true`), Confidence: 0.5, Evidence: json.RawMessage(`{oops`)})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))

	_, err = svc.SuggestPreference(ctx, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))
}

func TestAcceptAndRejectSuggestion(t *testing.T) {
	tests := []struct {
		name       string
		move       func(Service, context.Context, string, int32) (*store.Preference, error)
		target     store.PreferenceStatus
		source     store.SourceType
		confidence float64
	}{
		{name: "accept", move: Service.AcceptSuggestion, target: store.PreferenceActive, source: store.SourceUser, confidence: 1},
		{name: "reject", move: Service.RejectSuggestion, target: store.PreferenceRejected, source: store.SourceInferred, confidence: 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m := newMockStore()
			m.addLocation("home", 1)
			svc := newTestService(m)

			suggested, err := svc.SuggestPreference(ctx, &SuggestRequest{
				UserID:     1,
				Slug:       "location.preferred_seating",
				Value:      json.RawMessage(`"outdoor"`),
				Confidence: 0.8,
				LocationID: "home",
				Evidence:   json.RawMessage(`{"sourceSnippet":"we love the terrace"}`),
			})
			require.NoError(t, err)

			moved, err := tt.move(svc, ctx, suggested.ID, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.target, moved.Status)
			assert.Equal(t, tt.source, moved.SourceType)
			assert.Equal(t, tt.confidence, moved.Confidence)
			assert.Equal(t, `"outdoor"`, moved.Value)
			assert.Equal(t, "home", moved.LocationID)
			assert.Equal(t, `{"sourceSnippet":"we love the terrace"}`, moved.Evidence)

			assert.Equal(t, 1, m.count(1, tt.target))
			assert.Zero(t, m.count(1, store.PreferenceSuggested))

			_, err = tt.move(svc, ctx, suggested.ID, 1)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
		})
	}
}

func TestTransitionChecks(t *testing.T) {
	ctx := context.Background()
	m := newMockStore()
	svc := newTestService(m)

	active, err := svc.SetPreference(ctx, 1, "system.language", json.RawMessage(`"en"`), "")
	require.NoError(t, err)
	suggested, err := svc.SuggestPreference(ctx, &SuggestRequest{UserID: 1, Slug: "system.use_emoji", Value: json.RawMessage(`false`), Confidence: 0.4})
	require.NoError(t, err)

	_, err = svc.AcceptSuggestion(ctx, active.ID, 1)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFailedPrecondition))

	_, err = svc.RejectSuggestion(ctx, suggested.ID, 2)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePermissionDenied))

	_, err = svc.AcceptSuggestion(ctx, "missing", 1)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))

	// Nothing moved.
	assert.Equal(t, 1, m.count(1, store.PreferenceActive))
	assert.Equal(t, 1, m.count(1, store.PreferenceSuggested))
}

func TestGetActivePreferencesLocationOverride(t *testing.T) {
	ctx := context.Background()
	m := newMockStore()
	m.addLocation("home", 1)
	m.addLocation("office", 1)
	svc := newTestService(m)

	_, err := svc.SetPreference(ctx, 1, "system.response_tone", json.RawMessage(`"casual"`), "")
	require.NoError(t, err)
	_, err = svc.SetPreference(ctx, 1, "location.default_temperature", json.RawMessage(`"70F"`), "office")
	require.NoError(t, err)
	_, err = svc.SetPreference(ctx, 1, "location.default_temperature", json.RawMessage(`"72F"`), "home")
	require.NoError(t, err)
	_, err = svc.SetPreference(ctx, 1, "system.language", json.RawMessage(`"en"`), "")
	require.NoError(t, err)

	global, err := svc.GetActivePreferences(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, global, 2)
	assert.Equal(t, "system.language", global[0].Slug)
	assert.Equal(t, "system.response_tone", global[1].Slug)

	atHome, err := svc.GetActivePreferences(ctx, 1, "home")
	require.NoError(t, err)
	require.Len(t, atHome, 3)
	assert.Equal(t, []string{"system.language", "location.default_temperature", "system.response_tone"},
		[]string{atHome[0].Slug, atHome[1].Slug, atHome[2].Slug})
	assert.Equal(t, `"72F"`, atHome[1].Value)

	snapshot, err := svc.ActiveSnapshot(ctx, 1, "office")
	require.NoError(t, err)
	assert.Equal(t, map[string]json.RawMessage{
		"system.response_tone":         json.RawMessage(`"casual"`),
		"system.language":              json.RawMessage(`"en"`),
		"location.default_temperature": json.RawMessage(`"70F"`),
	}, snapshot)
}

func TestMergeOverridesGlobalWithSameSlug(t *testing.T) {
	ctx := context.Background()
	m := newMockStore()
	// Seed a global row for a location slug directly; the service never writes one.
	_, _ = m.UpsertPreference(ctx, &store.UpsertPreference{UserID: 1, Slug: "location.quiet_hours", Value: `"none"`, Status: store.PreferenceActive})
	_, _ = m.UpsertPreference(ctx, &store.UpsertPreference{UserID: 1, LocationID: "home", Slug: "location.quiet_hours", Value: `"22-7"`, Status: store.PreferenceActive})
	svc := newTestService(m)

	list, err := svc.GetActivePreferences(ctx, 1, "home")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, `"22-7"`, list[0].Value)
}

func TestGetSuggestedPreferencesUnion(t *testing.T) {
	ctx := context.Background()
	m := newMockStore()
	m.addLocation("home", 1)
	svc := newTestService(m)

	_, err := svc.SuggestPreference(ctx, &SuggestRequest{UserID: 1, Slug: "food.meal_budget", Value: json.RawMessage(`"low"`), Confidence: 0.5})
	require.NoError(t, err)
	_, err = svc.SuggestPreference(ctx, &SuggestRequest{UserID: 1, Slug: "location.quiet_hours", Value: json.RawMessage(`"22-7"`), Confidence: 0.5, LocationID: "home"})
	require.NoError(t, err)

	global, err := svc.GetSuggestedPreferences(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, global, 1)

	all, err := svc.GetSuggestedPreferences(ctx, 1, "home")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetSuggestedPreferencesKeepsBothScopesForSameSlug(t *testing.T) {
	ctx := context.Background()
	m := newMockStore()
	_, _ = m.UpsertPreference(ctx, &store.UpsertPreference{UserID: 1, Slug: "location.quiet_hours", Value: `"none"`, Status: store.PreferenceSuggested})
	_, _ = m.UpsertPreference(ctx, &store.UpsertPreference{UserID: 1, LocationID: "home", Slug: "location.quiet_hours", Value: `"22-7"`, Status: store.PreferenceSuggested})
	svc := newTestService(m)

	list, err := svc.GetSuggestedPreferences(ctx, 1, "home")
	require.NoError(t, err)
	require.Len(t, list, 2)
	values := []string{list[0].Value, list[1].Value}
	assert.ElementsMatch(t, []string{`"none"`, `"22-7"`}, values)

	active, err := svc.GetActivePreferences(ctx, 1, "home")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestGetAndDeletePreferenceOwnership(t *testing.T) {
	ctx := context.Background()
	m := newMockStore()
	svc := newTestService(m)

	p, err := svc.SetPreference(ctx, 1, "notification.digest_frequency", json.RawMessage(`"weekly"`), "")
	require.NoError(t, err)

	got, err := svc.GetPreference(ctx, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = svc.GetPreference(ctx, p.ID, 2)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePermissionDenied))
	assert.True(t, apperrors.IsCode(svc.DeletePreference(ctx, p.ID, 2), apperrors.ErrCodePermissionDenied))

	require.NoError(t, svc.DeletePreference(ctx, p.ID, 1))
	assert.True(t, apperrors.IsCode(svc.DeletePreference(ctx, p.ID, 1), apperrors.ErrCodeNotFound))

	n, err := svc.CountPreferences(ctx, 1, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestServiceRecordsMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	svc := NewService(newMockStore(), WithMetrics(metrics))

	_, _ = svc.SetPreference(context.Background(), 1, "system.language", json.RawMessage(`"en"`), "")
	_, _ = svc.SetPreference(context.Background(), 1, "system.language", json.RawMessage(`5`), "")

	snap := metrics.Snapshot()
	assert.Equal(t, int64(2), snap.Operations["SetPreference"].ExecutionCount)
	assert.Equal(t, int64(1), snap.Operations["SetPreference"].ErrorCount)
}
