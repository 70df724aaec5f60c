// Package preference manages the lifecycle of stored user preferences.
//
// Rows move through three states:
//   - ACTIVE rows are the values the user confirmed or set directly
//   - SUGGESTED rows are inferred values waiting for a decision
//   - REJECTED rows remember a refused suggestion and block new ones for the same tuple
//
// A tuple is (user, location, slug). Location rows override global rows with
// the same slug when a location is requested.
package preference

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/prefsense/plugin/preference/catalog"
	apperrors "github.com/hrygo/prefsense/server/internal/errors"
	"github.com/hrygo/prefsense/server/internal/observability"
	"github.com/hrygo/prefsense/store"
)

type service struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures the service.
type Option func(*service)

// WithLogger sets the logger used for per-call records.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *service) { s.metrics = metrics }
}

// NewService creates a new preference service.
func NewService(store Store, opts ...Option) Service {
	s := &service{
		store:   store,
		logger:  slog.Default(),
		metrics: observability.GlobalMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// track starts the request context of one call. The returned func records the outcome.
func (s *service) track(ctx context.Context, operation string, userID int32) (*observability.RequestContext, func(*error)) {
	_, rc := observability.Start(ctx, s.logger, operation, userID)
	s.metrics.RecordRequest(operation)
	start := time.Now()
	return rc, func(errp *error) {
		elapsed := time.Since(start)
		s.metrics.RecordDuration(operation, elapsed)
		if errp == nil || *errp == nil {
			rc.Debug("preference call done", slog.Int64(observability.LogFieldDuration, elapsed.Milliseconds()))
			return
		}
		s.metrics.RecordFailure(operation)
		rc.Warn("preference call failed",
			slog.String(observability.LogFieldErrorCode, string(apperrors.GetCode(*errp, apperrors.ErrCodeInternal))),
			slog.String("error", (*errp).Error()),
			slog.Int64(observability.LogFieldDuration, elapsed.Milliseconds()))
	}
}

func (s *service) SetPreference(ctx context.Context, userID int32, slug string, value json.RawMessage, locationID string) (_ *store.Preference, err error) {
	rc, done := s.track(ctx, "SetPreference", userID)
	defer done(&err)

	_, canonical, err := validate(slug, value, locationID)
	if err != nil {
		return nil, err
	}
	if err := s.verifyOwnership(ctx, locationID, userID); err != nil {
		return nil, err
	}

	p, err := s.store.UpsertPreference(ctx, &store.UpsertPreference{
		UserID:     userID,
		LocationID: locationID,
		Slug:       slug,
		Value:      canonical,
		Status:     store.PreferenceActive,
		SourceType: store.SourceUser,
		Confidence: 1,
	})
	if err != nil {
		return nil, storeError(err, "failed to save preference")
	}
	rc.Info("preference set", slog.String(observability.LogFieldSlug, slug), slog.String(observability.LogFieldLocationID, locationID))
	return p, nil
}

func (s *service) SuggestPreference(ctx context.Context, req *SuggestRequest) (_ *store.Preference, err error) {
	if req == nil {
		return nil, apperrors.ValidationFailed("suggest request is required", nil)
	}
	rc, done := s.track(ctx, "SuggestPreference", req.UserID)
	defer done(&err)

	_, canonical, err := validate(req.Slug, req.Value, req.LocationID)
	if err != nil {
		return nil, err
	}
	if err := catalog.ValidateConfidence(req.Confidence); err != nil {
		return nil, validationError(err)
	}
	evidence := ""
	if len(req.Evidence) > 0 {
		if !json.Valid(req.Evidence) {
			return nil, apperrors.ValidationFailed("evidence must be valid JSON", nil).WithContext("field", "evidence")
		}
		evidence = string(req.Evidence)
	}
	if err := s.verifyOwnership(ctx, req.LocationID, req.UserID); err != nil {
		return nil, err
	}

	rejected, err := s.store.GetPreference(ctx, tupleFind(req.UserID, req.Slug, req.LocationID, store.PreferenceRejected))
	if err != nil {
		return nil, storeError(err, "failed to check rejected preference")
	}
	if rejected != nil {
		rc.Debug("suggestion suppressed by rejection", slog.String(observability.LogFieldSlug, req.Slug))
		return nil, nil
	}

	p, err := s.store.UpsertSuggestedPreference(ctx, &store.UpsertPreference{
		UserID:     req.UserID,
		LocationID: req.LocationID,
		Slug:       req.Slug,
		Value:      canonical,
		Status:     store.PreferenceSuggested,
		SourceType: store.SourceInferred,
		Confidence: req.Confidence,
		Evidence:   evidence,
	})
	if err != nil {
		return nil, storeError(err, "failed to save suggestion")
	}
	if p == nil {
		// Rejected between the check and the write.
		rc.Debug("suggestion suppressed by rejection", slog.String(observability.LogFieldSlug, req.Slug))
		return nil, nil
	}
	return p, nil
}

func (s *service) AcceptSuggestion(ctx context.Context, id string, userID int32) (_ *store.Preference, err error) {
	_, done := s.track(ctx, "AcceptSuggestion", userID)
	defer done(&err)

	return s.transition(ctx, id, userID, store.PreferenceActive)
}

func (s *service) RejectSuggestion(ctx context.Context, id string, userID int32) (_ *store.Preference, err error) {
	_, done := s.track(ctx, "RejectSuggestion", userID)
	defer done(&err)

	return s.transition(ctx, id, userID, store.PreferenceRejected)
}

func (s *service) transition(ctx context.Context, id string, userID int32, target store.PreferenceStatus) (*store.Preference, error) {
	suggestion, err := s.getOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if suggestion.Status != store.PreferenceSuggested {
		return nil, apperrors.FailedPrecondition("preference %s is %s, not SUGGESTED", id, suggestion.Status)
	}

	// Accepted rows count as user confirmed; rejected markers keep the inferred confidence.
	transition := &store.TransitionSuggestion{
		SuggestionID: id,
		Target:       target,
		SourceType:   store.SourceInferred,
		Confidence:   suggestion.Confidence,
	}
	if target == store.PreferenceActive {
		transition.SourceType = store.SourceUser
		transition.Confidence = 1
	}

	p, err := s.store.TransitionSuggestion(ctx, transition)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("suggestion %s not found", id)
		}
		return nil, storeError(err, "failed to move suggestion")
	}
	return p, nil
}

func (s *service) GetActivePreferences(ctx context.Context, userID int32, locationID string) (_ []*store.Preference, err error) {
	_, done := s.track(ctx, "GetActivePreferences", userID)
	defer done(&err)

	return s.merged(ctx, userID, locationID, store.PreferenceActive)
}

func (s *service) GetSuggestedPreferences(ctx context.Context, userID int32, locationID string) (_ []*store.Preference, err error) {
	_, done := s.track(ctx, "GetSuggestedPreferences", userID)
	defer done(&err)

	global, local, err := s.listScoped(ctx, userID, locationID, store.PreferenceSuggested)
	if err != nil {
		return nil, err
	}
	// A location suggestion never hides a global one with the same slug.
	result := make([]*store.Preference, 0, len(global)+len(local))
	result = append(result, global...)
	result = append(result, local...)
	sortPreferences(result)
	return result, nil
}

// listScoped returns the global rows with status and, when locationID is
// set, the rows of that location.
func (s *service) listScoped(ctx context.Context, userID int32, locationID string, status store.PreferenceStatus) (global, local []*store.Preference, err error) {
	global, err = s.store.ListPreferences(ctx, &store.FindPreference{UserID: &userID, Status: &status, GlobalOnly: true})
	if err != nil {
		return nil, nil, storeError(err, "failed to list preferences")
	}
	if locationID == "" {
		return global, nil, nil
	}
	local, err = s.store.ListPreferences(ctx, &store.FindPreference{UserID: &userID, Status: &status, LocationID: &locationID})
	if err != nil {
		return nil, nil, storeError(err, "failed to list location preferences")
	}
	return global, local, nil
}

// merged lists global rows with status, then lets the rows of locationID
// replace globals with the same slug.
func (s *service) merged(ctx context.Context, userID int32, locationID string, status store.PreferenceStatus) ([]*store.Preference, error) {
	global, local, err := s.listScoped(ctx, userID, locationID, status)
	if err != nil {
		return nil, err
	}

	bySlug := make(map[string]*store.Preference, len(global)+len(local))
	for _, p := range global {
		bySlug[p.Slug] = p
	}
	for _, p := range local {
		bySlug[p.Slug] = p
	}
	result := make([]*store.Preference, 0, len(bySlug))
	for _, p := range bySlug {
		result = append(result, p)
	}
	sortPreferences(result)
	return result, nil
}

func sortPreferences(list []*store.Preference) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].UpdatedTs != list[j].UpdatedTs {
			return list[i].UpdatedTs > list[j].UpdatedTs
		}
		if list[i].Slug != list[j].Slug {
			return list[i].Slug < list[j].Slug
		}
		return list[i].LocationID < list[j].LocationID
	})
}

func (s *service) GetPreference(ctx context.Context, id string, userID int32) (_ *store.Preference, err error) {
	_, done := s.track(ctx, "GetPreference", userID)
	defer done(&err)

	return s.getOwned(ctx, id, userID)
}

func (s *service) DeletePreference(ctx context.Context, id string, userID int32) (err error) {
	_, done := s.track(ctx, "DeletePreference", userID)
	defer done(&err)

	if _, err := s.getOwned(ctx, id, userID); err != nil {
		return err
	}
	if err := s.store.DeletePreference(ctx, &store.DeletePreference{ID: id}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("preference %s not found", id)
		}
		return storeError(err, "failed to delete preference")
	}
	return nil
}

func (s *service) CountPreferences(ctx context.Context, userID int32, status *store.PreferenceStatus) (_ int, err error) {
	_, done := s.track(ctx, "CountPreferences", userID)
	defer done(&err)

	n, err := s.store.CountPreferences(ctx, &store.CountPreference{UserID: userID, Status: status})
	if err != nil {
		return 0, storeError(err, "failed to count preferences")
	}
	return n, nil
}

func (s *service) ActiveSnapshot(ctx context.Context, userID int32, locationID string) (map[string]json.RawMessage, error) {
	list, err := s.GetActivePreferences(ctx, userID, locationID)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]json.RawMessage, len(list))
	for _, p := range list {
		snapshot[p.Slug] = json.RawMessage(p.Value)
	}
	return snapshot, nil
}

// getOwned loads a row by id and checks that userID owns it.
func (s *service) getOwned(ctx context.Context, id string, userID int32) (*store.Preference, error) {
	if id == "" {
		return nil, apperrors.ValidationFailed("preference id is required", nil).WithContext("field", "id")
	}
	p, err := s.store.GetPreference(ctx, &store.FindPreference{ID: &id})
	if err != nil {
		return nil, storeError(err, "failed to load preference")
	}
	if p == nil {
		return nil, apperrors.NotFound("preference %s not found", id)
	}
	if p.UserID != userID {
		return nil, apperrors.PermissionDenied("preference %s belongs to another user", id)
	}
	return p, nil
}

// verifyOwnership resolves locationID for userID. Locations of other users look absent.
func (s *service) verifyOwnership(ctx context.Context, locationID string, userID int32) error {
	if locationID == "" {
		return nil
	}
	location, err := s.store.GetLocation(ctx, &store.FindLocation{ID: &locationID})
	if err != nil {
		return storeError(err, "failed to load location")
	}
	if location == nil || location.UserID != userID {
		return apperrors.NotFound("location %s not found", locationID)
	}
	return nil
}

// validate checks slug, value and scope and returns the canonical JSON value.
func validate(slug string, value json.RawMessage, locationID string) (*catalog.Entry, string, error) {
	def, err := catalog.ValidateSlug(slug)
	if err != nil {
		return nil, "", validationError(err)
	}
	parsed, err := catalog.ParseValue(def, value)
	if err != nil {
		return nil, "", validationError(err)
	}
	if err := catalog.EnforceScope(def, locationID); err != nil {
		return nil, "", validationError(err)
	}
	canonical, err := catalog.EncodeValue(parsed)
	if err != nil {
		return nil, "", apperrors.Internal("failed to encode value", err)
	}
	return def, string(canonical), nil
}

func validationError(err error) *apperrors.Error {
	e := apperrors.ValidationFailed(err.Error(), err)
	var ve *catalog.ValidationError
	if errors.As(err, &ve) {
		e.WithContext("field", ve.Field)
		if len(ve.Suggestions) > 0 {
			e.WithContext("suggestions", ve.Suggestions)
		}
	}
	return e
}

func storeError(err error, msg string) *apperrors.Error {
	return apperrors.FromContext(err, apperrors.ErrCodeInternal, msg)
}

func tupleFind(userID int32, slug, locationID string, status store.PreferenceStatus) *store.FindPreference {
	find := &store.FindPreference{UserID: &userID, Slug: &slug, Status: &status}
	if locationID == "" {
		find.GlobalOnly = true
	} else {
		find.LocationID = &locationID
	}
	return find
}
