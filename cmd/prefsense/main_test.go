package main

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/prefsense/plugin/preference/catalog"
	"github.com/hrygo/prefsense/store"
)

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseValueArg(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		want string
	}{
		{name: "boolean literal", arg: "true", want: `true`},
		{name: "array literal", arg: `["thai","greek"]`, want: `["thai","greek"]`},
		{name: "quoted string", arg: `"casual"`, want: `"casual"`},
		{name: "bare string", arg: "casual", want: `"casual"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseValueArg(tt.arg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestParseStatus(t *testing.T) {
	status, err := parseStatus("")
	require.NoError(t, err)
	assert.Nil(t, status)

	status, err = parseStatus("suggested")
	require.NoError(t, err)
	assert.Equal(t, store.PreferenceSuggested, *status)

	_, err = parseStatus("pending")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "json", "debug")
	require.NoError(t, err)
	logger.Debug("hello", "k", "v")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "v", entry["k"])

	_, err = newLogger(&buf, "xml", "info")
	assert.Error(t, err)
	_, err = newLogger(&buf, "text", "loud")
	assert.Error(t, err)
}

func TestCatalogCommand(t *testing.T) {
	out, err := execute("catalog")
	require.NoError(t, err)

	var schema []catalog.SchemaEntry
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Len(t, schema, len(catalog.Slugs()))
}

func TestSetAndListCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := execute("--data", dir, "set", "system.use_emoji", "true")
	require.NoError(t, err)
	var set preferenceView
	require.NoError(t, json.Unmarshal([]byte(out), &set))
	assert.Equal(t, "system.use_emoji", set.Slug)
	assert.Equal(t, "ACTIVE", set.Status)
	assert.JSONEq(t, `true`, string(set.Value))

	out, err = execute("--data", dir, "list")
	require.NoError(t, err)
	var list []preferenceView
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, set.ID, list[0].ID)

	out, err = execute("--data", dir, "count", "--status", "active")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":1}`, out)
}

func TestSetCommandRejectsUnknownSlug(t *testing.T) {
	_, err := execute("--data", t.TempDir(), "set", "system.use_emojis", "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[VALIDATION_FAILED]")
	assert.Contains(t, err.Error(), "system.use_emojis")
}
