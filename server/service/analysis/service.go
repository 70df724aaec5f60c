// Package analysis turns an uploaded document into reconciled preference
// suggestions and persists the ones the caller keeps.
package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/prefsense/plugin/preference/catalog"
	"github.com/hrygo/prefsense/plugin/preference/extract"
	"github.com/hrygo/prefsense/plugin/preference/reconcile"
	"github.com/hrygo/prefsense/plugin/textextract"
	"github.com/hrygo/prefsense/server/ai"
	apperrors "github.com/hrygo/prefsense/server/internal/errors"
	"github.com/hrygo/prefsense/server/internal/observability"
	"github.com/hrygo/prefsense/server/middleware"
	"github.com/hrygo/prefsense/server/service/preference"
	"github.com/hrygo/prefsense/store"
)

// DefaultTimeout bounds one AnalyzeDocument call including the model round trip.
const DefaultTimeout = 90 * time.Second

// Preferences is the part of the preference service the orchestrator uses.
type Preferences interface {
	ActiveSnapshot(ctx context.Context, userID int32, locationID string) (map[string]json.RawMessage, error)
	SuggestPreference(ctx context.Context, req *preference.SuggestRequest) (*store.Preference, error)
}

// LocationStore resolves locations for the ownership check.
type LocationStore interface {
	GetLocation(ctx context.Context, find *store.FindLocation) (*store.Location, error)
}

// DocumentReader converts a document to plain text.
type DocumentReader interface {
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

// Document is an uploaded file.
type Document struct {
	Name     string
	MimeType string
	Data     []byte
}

type AnalyzeRequest struct {
	UserID     int32
	LocationID string
	Document   *Document
}

// Analysis is the reconciled outcome of one document.
type Analysis struct {
	DocumentSummary string                          `json:"documentSummary"`
	Validated       []*reconcile.Suggestion         `json:"validated"`
	Filtered        []*reconcile.FilteredSuggestion `json:"filtered"`
	FilteredCount   int                             `json:"filteredCount"`
}

// ApplyFailure is a suggestion the preference service refused.
type ApplyFailure struct {
	Slug  string `json:"slug"`
	Error string `json:"error"`
}

// ApplyResult reports what ApplySuggestions did with each suggestion.
type ApplyResult struct {
	Suggested []*store.Preference `json:"suggested"`
	// Suppressed lists slugs blocked by an earlier rejection.
	Suppressed []string        `json:"suppressed"`
	Failed     []*ApplyFailure `json:"failed"`
}

// Service orchestrates document analysis.
type Service struct {
	prefs      Preferences
	locations  LocationStore
	generator  ai.TextGenerator
	reader     DocumentReader
	limiter    *middleware.RateLimiter
	reconciler *reconcile.Reconciler
	timeout    time.Duration
	maxImage   int
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// Option configures the service.
type Option func(*Service)

func WithReader(reader DocumentReader) Option {
	return func(s *Service) { s.reader = reader }
}

func WithRateLimiter(limiter *middleware.RateLimiter) Option {
	return func(s *Service) { s.limiter = limiter }
}

func WithReconciler(reconciler *reconcile.Reconciler) Option {
	return func(s *Service) { s.reconciler = reconciler }
}

func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) { s.timeout = timeout }
}

// WithMaxImageDimension sets the longest side images are scaled down to
// before they are sent to the model; 0 sends images unchanged.
func WithMaxImageDimension(maxDim int) Option {
	return func(s *Service) { s.maxImage = maxDim }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// NewService creates the orchestrator. Without WithReader only text and
// markdown documents (and images sent straight to the model) are readable.
func NewService(prefs Preferences, locations LocationStore, generator ai.TextGenerator, opts ...Option) *Service {
	s := &Service{
		prefs:      prefs,
		locations:  locations,
		generator:  generator,
		reader:     textextract.NewExtractor(nil, nil),
		limiter:    middleware.NewRateLimiter(0),
		reconciler: &reconcile.Reconciler{},
		timeout:    DefaultTimeout,
		maxImage:   MaxImageDimension,
		logger:     slog.Default(),
		metrics:    observability.GlobalMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalyzeDocument asks the model for preference changes found in the
// document and reconciles them against the user's ACTIVE preferences.
func (s *Service) AnalyzeDocument(ctx context.Context, req *AnalyzeRequest) (_ *Analysis, err error) {
	if req == nil || req.Document == nil || len(req.Document.Data) == 0 {
		return nil, apperrors.ValidationFailed("document is required", nil).WithContext("field", "document")
	}
	ctx, rc := observability.Start(ctx, s.logger, "AnalyzeDocument", req.UserID)
	s.metrics.RecordRequest(rc.Operation)
	defer func() {
		s.metrics.RecordDuration(rc.Operation, rc.Duration())
		if err != nil {
			s.metrics.RecordFailure(rc.Operation)
			rc.Warn("document analysis failed",
				slog.String(observability.LogFieldErrorCode, string(apperrors.GetCode(err, apperrors.ErrCodeInternal))),
				slog.String("error", err.Error()))
		}
	}()

	if !s.limiter.AllowUser(req.UserID) {
		return nil, apperrors.RateLimitExceeded("too many document analyses, try again later")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.verifyOwnership(ctx, req.LocationID, req.UserID); err != nil {
		return nil, err
	}

	snapshot, err := s.prefs.ActiveSnapshot(ctx, req.UserID, req.LocationID)
	if err != nil {
		return nil, err
	}

	text, file, err := s.readDocument(ctx, rc, req.Document)
	if err != nil {
		return nil, err
	}

	prompt, err := extract.BuildPrompt(snapshot, text)
	if err != nil {
		return nil, apperrors.Internal("failed to build prompt", err)
	}

	raw, err := s.generator.GenerateTextWithFile(ctx, prompt, file)
	if err != nil {
		return nil, apperrors.FromContext(err, apperrors.ErrCodeLLMUnavailable, "failed to analyze document")
	}

	batch, err := extract.ParseResponse(raw)
	if err != nil {
		path := ""
		var responseErr *extract.ResponseError
		if errors.As(err, &responseErr) {
			path = responseErr.Path
		}
		return nil, apperrors.AIResponseInvalid(path, err)
	}

	result := s.reconciler.Reconcile(batch.Suggestions, snapshot)
	for reason, n := range reconcile.Summary(result) {
		s.metrics.RecordFiltered(string(reason), n)
	}
	rc.Info("document analyzed",
		slog.Int("suggestions", len(batch.Suggestions)),
		slog.Int("validated", len(result.Validated)),
		slog.Int("filtered", result.FilteredCount),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()))

	return &Analysis{
		DocumentSummary: batch.DocumentSummary,
		Validated:       result.Validated,
		Filtered:        result.Filtered,
		FilteredCount:   result.FilteredCount,
	}, nil
}

// readDocument returns the prompt text and, for images, the file to attach.
func (s *Service) readDocument(ctx context.Context, rc *observability.RequestContext, doc *Document) (string, *ai.File, error) {
	contentType := doc.MimeType
	if contentType == "" {
		contentType = textextract.DetectContentType(doc.Name, doc.Data)
	}

	if strings.HasPrefix(contentType, "image/") {
		file := prepareImage(doc, contentType, s.maxImage)
		// OCR text is a hint for the model; the image itself is always attached.
		text, err := s.reader.Extract(ctx, doc.Data, contentType)
		if err != nil {
			rc.Debug("no OCR text for image", slog.String("error", err.Error()))
			text = ""
		}
		return text, file, nil
	}

	text, err := s.reader.Extract(ctx, doc.Data, contentType)
	if err != nil {
		if errors.Is(err, textextract.ErrUnsupported) {
			return "", nil, apperrors.ValidationFailed("unsupported document type "+contentType, err).WithContext("field", "document")
		}
		return "", nil, apperrors.FromContext(err, apperrors.ErrCodeInternal, "failed to read document")
	}
	if strings.TrimSpace(text) == "" {
		return "", nil, apperrors.ValidationFailed("document has no readable text", nil).WithContext("field", "document")
	}
	return text, nil, nil
}

type evidence struct {
	SourceSnippet string          `json:"sourceSnippet,omitempty"`
	SourceMeta    json.RawMessage `json:"sourceMeta,omitempty"`
}

// ApplySuggestions stores validated suggestions as SUGGESTED rows. Location
// scoped slugs are stored under locationID, global ones globally. A refused
// record is reported in Failed and does not stop the rest.
func (s *Service) ApplySuggestions(ctx context.Context, userID int32, locationID string, suggestions []*reconcile.Suggestion) (*ApplyResult, error) {
	result := &ApplyResult{
		Suggested:  []*store.Preference{},
		Suppressed: []string{},
		Failed:     []*ApplyFailure{},
	}

	for _, suggestion := range suggestions {
		if suggestion == nil {
			continue
		}
		def, ok := catalog.GetDefinition(suggestion.Slug)
		if !ok {
			result.Failed = append(result.Failed, &ApplyFailure{Slug: suggestion.Slug, Error: "unknown preference slug"})
			continue
		}
		target := ""
		if def.Scope == catalog.ScopeLocation {
			target = locationID
		}

		ev, err := json.Marshal(evidence{SourceSnippet: suggestion.SourceSnippet, SourceMeta: suggestion.SourceMeta})
		if err != nil {
			result.Failed = append(result.Failed, &ApplyFailure{Slug: suggestion.Slug, Error: err.Error()})
			continue
		}

		p, err := s.prefs.SuggestPreference(ctx, &preference.SuggestRequest{
			UserID:     userID,
			Slug:       suggestion.Slug,
			Value:      suggestion.NewValue,
			Confidence: suggestion.Confidence,
			LocationID: target,
			Evidence:   ev,
		})
		switch {
		case err == nil && p == nil:
			result.Suppressed = append(result.Suppressed, suggestion.Slug)
		case err == nil:
			result.Suggested = append(result.Suggested, p)
		case apperrors.IsCode(err, apperrors.ErrCodeValidationFailed), apperrors.IsCode(err, apperrors.ErrCodeNotFound):
			result.Failed = append(result.Failed, &ApplyFailure{Slug: suggestion.Slug, Error: err.Error()})
		default:
			return result, err
		}
	}
	return result, nil
}

func (s *Service) verifyOwnership(ctx context.Context, locationID string, userID int32) error {
	if locationID == "" {
		return nil
	}
	location, err := s.locations.GetLocation(ctx, &store.FindLocation{ID: &locationID})
	if err != nil {
		return apperrors.FromContext(err, apperrors.ErrCodeInternal, "failed to load location")
	}
	if location == nil || location.UserID != userID {
		return apperrors.NotFound("location %s not found", locationID)
	}
	return nil
}
