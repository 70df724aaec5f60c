// Package extract builds the document analysis prompt and parses the
// model's answer into a suggestion batch.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hrygo/prefsense/plugin/preference/catalog"
)

// MaxDocumentChars bounds the document text embedded in a prompt.
const MaxDocumentChars = 20000

const promptTemplate = `You analyze a document uploaded by a user and propose updates to that user's stored preferences.

Only these preference slugs are valid. Never invent a slug that is not listed:
%s

The user's current preferences (slug -> value):
%s

Output Schema (JSON Only):
{
  "documentSummary": "one or two sentences describing the document",
  "suggestions": [
    {
      "slug": "a slug from the list above",
      "operation": "CREATE|UPDATE",
      "oldValue": "current value, only for UPDATE",
      "newValue": "proposed value, shaped by the slug's valueType",
      "confidence": 0.0,
      "sourceSnippet": "exact text from the document that supports the change",
      "sourceMeta": {"page": 1}
    }
  ]
}

Rules:
1. Use CREATE when the slug is not in the current preferences and UPDATE when it is.
2. For enum slugs newValue must be one of the listed options. For array slugs newValue must be a JSON array.
3. confidence is a number between 0 and 1.
4. Propose at most one suggestion per slug and skip values that equal the current preference.
5. Return {"documentSummary": "...", "suggestions": []} when nothing applies.
`

// BuildPrompt renders the analysis prompt. snapshot is the merged ACTIVE view
// for the user. documentText may be empty when the document is sent as a file.
func BuildPrompt(snapshot map[string]json.RawMessage, documentText string) (string, error) {
	schema, err := catalog.PromptSchemaJSON()
	if err != nil {
		return "", fmt.Errorf("failed to render catalog schema: %w", err)
	}

	if snapshot == nil {
		snapshot = map[string]json.RawMessage{}
	}
	current, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render current preferences: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, promptTemplate, schema, current)

	documentText = strings.TrimSpace(documentText)
	if documentText != "" {
		if runes := []rune(documentText); len(runes) > MaxDocumentChars {
			documentText = string(runes[:MaxDocumentChars])
		}
		sb.WriteString("\nDocument:\n")
		sb.WriteString(documentText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
