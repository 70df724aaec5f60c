package extract

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/prefsense/plugin/preference/reconcile"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```  \n", `{"a":1}`},
		{"leading fence only", "```json\n{\"a\":1}", `{"a":1}`},
		{"single line fence", "```{\"a\":1}```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.input))
		})
	}
}

func TestParseResponse(t *testing.T) {
	response := "```json\n" + `{
  "documentSummary": "Allergy card",
  "suggestions": [
    {
      "slug": "food.dietary_restrictions",
      "operation": "CREATE",
      "newValue": ["peanuts", "shellfish"],
      "confidence": 0.92,
      "sourceSnippet": "Allergic to peanuts and shellfish",
      "sourceMeta": {"page": 1}
    },
    {
      "slug": "system.response_tone",
      "operation": "UPDATE",
      "oldValue": null,
      "confidence": 0.4,
      "sourceSnippet": "keep it casual"
    }
  ]
}` + "\n```"

	batch, err := ParseResponse(response)
	require.NoError(t, err)

	assert.Equal(t, "Allergy card", batch.DocumentSummary)
	require.Len(t, batch.Suggestions, 2)

	first := batch.Suggestions[0]
	assert.Equal(t, "food.dietary_restrictions", first.Slug)
	assert.Equal(t, reconcile.OperationCreate, first.Operation)
	assert.JSONEq(t, `["peanuts","shellfish"]`, string(first.NewValue))
	assert.InDelta(t, 0.92, first.Confidence, 1e-9)
	assert.JSONEq(t, `{"page":1}`, string(first.SourceMeta))
	assert.Nil(t, first.OldValue)

	second := batch.Suggestions[1]
	assert.Equal(t, "null", string(second.OldValue))
	// Absent newValue is left for the reconciliation pass to report.
	assert.Nil(t, second.NewValue)
}

func TestParseResponseEmptyBatch(t *testing.T) {
	batch, err := ParseResponse(`{"documentSummary": "", "suggestions": []}`)
	require.NoError(t, err)
	assert.Empty(t, batch.Suggestions)
	assert.Empty(t, batch.DocumentSummary)
}

func TestParseResponseErrors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantPath string
	}{
		{
			name:     "empty",
			response: "```json\n```",
			wantPath: "",
		},
		{
			name:     "not json",
			response: "Sorry, I cannot help with that.",
			wantPath: "",
		},
		{
			name:     "top level array",
			response: `[]`,
			wantPath: "$",
		},
		{
			name:     "missing summary",
			response: `{"suggestions": []}`,
			wantPath: "documentSummary",
		},
		{
			name:     "missing suggestions",
			response: `{"documentSummary": "x"}`,
			wantPath: "suggestions",
		},
		{
			name:     "wrong confidence type",
			response: `{"documentSummary": "x", "suggestions": [{"slug": "a.b", "operation": "CREATE", "newValue": 1, "confidence": "high", "sourceSnippet": "s"}]}`,
			wantPath: "suggestions.confidence",
		},
		{
			name:     "confidence out of range",
			response: `{"documentSummary": "x", "suggestions": [{"slug": "a.b", "operation": "CREATE", "newValue": 1, "confidence": 0.5, "sourceSnippet": "s"}, {"slug": "a.c", "operation": "CREATE", "newValue": 1, "confidence": 1.5, "sourceSnippet": "s"}]}`,
			wantPath: "suggestions[1].confidence",
		},
		{
			name:     "missing confidence",
			response: `{"documentSummary": "x", "suggestions": [{"slug": "a.b", "operation": "CREATE", "newValue": 1, "sourceSnippet": "s"}]}`,
			wantPath: "suggestions[0].confidence",
		},
		{
			name:     "bad operation",
			response: `{"documentSummary": "x", "suggestions": [{"slug": "a.b", "operation": "DELETE", "newValue": 1, "confidence": 0.5, "sourceSnippet": "s"}]}`,
			wantPath: "suggestions[0].operation",
		},
		{
			name:     "missing snippet",
			response: `{"documentSummary": "x", "suggestions": [{"slug": "a.b", "operation": "CREATE", "newValue": 1, "confidence": 0.5}]}`,
			wantPath: "suggestions[0].sourceSnippet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := ParseResponse(tt.response)
			assert.Nil(t, batch)

			var respErr *ResponseError
			require.ErrorAs(t, err, &respErr)
			assert.Equal(t, tt.wantPath, respErr.Path)
			assert.NotEmpty(t, respErr.Message)
		})
	}
}

func TestParseResponseTooManySuggestions(t *testing.T) {
	items := make([]string, MaxSuggestions+1)
	for i := range items {
		items[i] = `{"slug": "a.b", "operation": "CREATE", "newValue": 1, "confidence": 0.5, "sourceSnippet": "s"}`
	}
	response := `{"documentSummary": "x", "suggestions": [` + strings.Join(items, ",") + `]}`

	_, err := ParseResponse(response)
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "suggestions", respErr.Path)
}

func TestBuildPrompt(t *testing.T) {
	snapshot := map[string]json.RawMessage{
		"system.response_tone": json.RawMessage(`"casual"`),
	}

	prompt, err := BuildPrompt(snapshot, "I am allergic to peanuts.")
	require.NoError(t, err)

	assert.Contains(t, prompt, `"slug": "food.dietary_restrictions"`)
	assert.Contains(t, prompt, `"system.response_tone": "casual"`)
	assert.Contains(t, prompt, "I am allergic to peanuts.")
	assert.Contains(t, prompt, "documentSummary")
}

func TestBuildPromptWithoutDocumentText(t *testing.T) {
	prompt, err := BuildPrompt(nil, "   ")
	require.NoError(t, err)
	assert.NotContains(t, prompt, "Document:")
	assert.Contains(t, prompt, "{}")
}

func TestBuildPromptTruncatesLongDocuments(t *testing.T) {
	long := strings.Repeat("é", MaxDocumentChars+50)
	prompt, err := BuildPrompt(nil, long)
	require.NoError(t, err)
	assert.Contains(t, prompt, strings.Repeat("é", MaxDocumentChars))
	assert.NotContains(t, prompt, strings.Repeat("é", MaxDocumentChars+1))
}
