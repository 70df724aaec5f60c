package textextract

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnsupported is returned for content types no extractor handles.
var ErrUnsupported = errors.New("unsupported document type")

// OCR reads text out of images.
type OCR interface {
	IsSupported(mimeType string) bool
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Extractor routes a document to the reader for its content type.
type Extractor struct {
	tika *TikaClient
	ocr  OCR
}

// NewExtractor wires the optional Tika and OCR backends; either may be nil.
func NewExtractor(tika *TikaClient, ocr OCR) *Extractor {
	return &Extractor{tika: tika, ocr: ocr}
}

// Extract returns the plain text of data.
func (e *Extractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	contentType = normalizeContentType(contentType)
	switch {
	case contentType == "text/markdown" || contentType == "text/x-markdown":
		return MarkdownToText(data), nil
	case (contentType == "text/plain" || contentType == "application/json") && len(data) > 0:
		return strings.TrimSpace(string(data)), nil
	case e.tika != nil && e.tika.IsSupported(contentType):
		return e.tika.ExtractText(ctx, data, contentType)
	case e.ocr != nil && e.ocr.IsSupported(contentType):
		return e.ocr.ExtractText(ctx, data, contentType)
	}
	return "", errors.Wrapf(ErrUnsupported, "content type %s", contentType)
}

// DetectContentType guesses a content type from the file name, then the bytes.
func DetectContentType(name string, data []byte) string {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".md", ".markdown":
		return "text/markdown"
	case "":
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return normalizeContentType(ct)
		}
	}
	return normalizeContentType(http.DetectContentType(data))
}

func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
