package catalog

import "encoding/json"

// SchemaEntry is the catalog view handed to the model as the list of valid slugs.
type SchemaEntry struct {
	Slug        string    `json:"slug"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	ValueType   ValueType `json:"valueType"`
	Options     []string  `json:"options,omitempty"`
}

// PromptSchema exports every entry for embedding in a model prompt.
func PromptSchema() []SchemaEntry {
	entries := Entries()
	schema := make([]SchemaEntry, len(entries))
	for i, e := range entries {
		schema[i] = SchemaEntry{
			Slug:        e.Slug,
			Category:    e.Category,
			Description: e.Description,
			ValueType:   e.ValueType,
			Options:     e.Options,
		}
	}
	return schema
}

// PromptSchemaJSON renders PromptSchema as indented JSON.
func PromptSchemaJSON() (string, error) {
	b, err := json.MarshalIndent(PromptSchema(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
