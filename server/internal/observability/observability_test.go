package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContextLogsBaseFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	rc := NewRequestContextWithID(logger, "req-1", "SetPreference", 42)
	rc.Info("preference stored", slog.String(LogFieldSlug, "system.language"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "preference stored", entry["msg"])
	assert.Equal(t, "req-1", entry[LogFieldRequestID])
	assert.Equal(t, float64(42), entry[LogFieldUserID])
	assert.Equal(t, "SetPreference", entry[LogFieldOperation])
	assert.Equal(t, "system.language", entry[LogFieldSlug])
}

func TestRequestContextError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	NewRequestContext(logger, "AnalyzeDocument", 1).Error("analysis failed", errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "boom", entry["error"])
	assert.NotEmpty(t, entry[LogFieldRequestID])
}

func TestStartReusesContext(t *testing.T) {
	ctx, first := Start(context.Background(), nil, "AnalyzeDocument", 3)
	ctx2, second := Start(ctx, nil, "SuggestPreference", 3)

	assert.Same(t, first, second)
	assert.Equal(t, ctx, ctx2)
	assert.Equal(t, "AnalyzeDocument", second.Operation)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("SetPreference")
	m.RecordRequest("SetPreference")
	m.RecordDuration("SetPreference", 30*time.Millisecond)
	m.RecordDuration("SetPreference", 10*time.Millisecond)
	m.RecordRequest("AcceptSuggestion")
	m.RecordFailure("AcceptSuggestion")
	m.RecordFiltered("NO_CHANGE", 2)
	m.RecordFiltered("NO_CHANGE", 1)
	m.RecordFiltered("DUPLICATE_KEY", 0)

	assert.Equal(t, int64(3), m.GetRequestTotal())
	assert.Equal(t, int64(1), m.GetRequestFailed())
	assert.Equal(t, int64(20), m.GetAverageDuration("SetPreference"))
	assert.Equal(t, []string{"AcceptSuggestion", "SetPreference"}, m.GetOperations())

	snap := m.Snapshot()
	assert.Equal(t, map[string]int64{"NO_CHANGE": 3}, snap.Filtered)
	assert.Equal(t, int64(1), snap.Operations["AcceptSuggestion"].ErrorCount)
	assert.InDelta(t, 66.666, snap.SuccessRate(), 0.01)

	m.Reset()
	assert.Zero(t, m.GetRequestTotal())
	assert.Empty(t, m.GetOperations())
	assert.Equal(t, 100.0, m.Snapshot().SuccessRate())
}

func TestMetricsConcurrent(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordRequest("SuggestPreference")
			m.RecordFiltered("UNKNOWN_SLUG", 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.GetRequestTotal())
	assert.Equal(t, int64(50), m.Snapshot().Filtered["UNKNOWN_SLUG"])
}
