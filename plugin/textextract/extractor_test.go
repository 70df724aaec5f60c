package textextract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOCR struct {
	text string
}

func (f *fakeOCR) IsSupported(mimeType string) bool {
	return mimeType == "image/png"
}

func (f *fakeOCR) ExtractText(context.Context, []byte, string) (string, error) {
	return f.text, nil
}

func TestMarkdownToText(t *testing.T) {
	src := "# Diet\n\nI am **vegan** and avoid `nuts`.\n\n- spicy food\n- [sushi](http://example.com)\n\n```\nno code\n```\n"
	assert.Equal(t, "Diet\nI am vegan and avoid nuts.\nspicy food\nsushi\nno code", MarkdownToText([]byte(src)))
	assert.Equal(t, "", MarkdownToText(nil))
}

func TestExtractorRoutes(t *testing.T) {
	e := NewExtractor(nil, &fakeOCR{text: "menu: tofu"})
	ctx := context.Background()

	text, err := e.Extract(ctx, []byte("  plain words \n"), "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "plain words", text)

	text, err = e.Extract(ctx, []byte("*bold* words"), "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, "bold words", text)

	text, err = e.Extract(ctx, []byte{0x89}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "menu: tofu", text)

	_, err = e.Extract(ctx, []byte("%PDF"), "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		data     []byte
		want     string
	}{
		{name: "markdown extension", fileName: "notes.md", data: []byte("# hi"), want: "text/markdown"},
		{name: "pdf extension", fileName: "menu.pdf", data: nil, want: "application/pdf"},
		{name: "sniffed text", fileName: "notes", data: []byte("hello"), want: "text/plain"},
		{name: "sniffed png", fileName: "", data: []byte("\x89PNG\r\n\x1a\n0000"), want: "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectContentType(tt.fileName, tt.data))
		})
	}
}
