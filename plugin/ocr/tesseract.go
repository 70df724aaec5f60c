// Package ocr reads text out of uploaded images using Tesseract.
package ocr

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/prefsense/internal/profile"
)

// SupportedMimeTypes are the image types passed to tesseract.
var SupportedMimeTypes = []string{
	"image/png",
	"image/jpeg",
	"image/jpg",
	"image/gif",
	"image/bmp",
	"image/webp",
	"image/tiff",
}

// Config holds the OCR configuration
type Config struct {
	// TesseractPath is the path to the tesseract executable
	TesseractPath string
	// DataPath is the path to the tessdata directory (optional)
	DataPath string
	// Languages are the languages to use for OCR (e.g., "eng+deu")
	Languages string
}

// DefaultConfig returns the default OCR configuration
func DefaultConfig() *Config {
	return &Config{
		TesseractPath: "tesseract",
		Languages:     "eng",
	}
}

// ConfigFromProfile reads the tesseract settings from the profile.
func ConfigFromProfile(p *profile.Profile) *Config {
	config := DefaultConfig()
	if p.TesseractPath != "" {
		config.TesseractPath = p.TesseractPath
	}
	if p.OCRLanguages != "" {
		config.Languages = p.OCRLanguages
	}
	if path := os.Getenv("PREFSENSE_OCR_TESSDATA_PATH"); path != "" {
		config.DataPath = path
	}
	return config
}

// Client provides OCR functionality
type Client struct {
	config *Config
}

// NewClient creates a new OCR client
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{config: config}
}

// ExtractText runs tesseract over image and returns the trimmed text.
func (c *Client) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	if !c.IsSupported(mimeType) {
		return "", errors.Errorf("unsupported MIME type: %s", mimeType)
	}

	dir, err := os.MkdirTemp("", "ocr_*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp dir")
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input")
	if err := os.WriteFile(inPath, image, 0600); err != nil {
		return "", errors.Wrap(err, "failed to write temp file")
	}
	// tesseract appends .txt to the output base.
	outBase := filepath.Join(dir, "output")

	args := []string{inPath, outBase}
	if c.config.Languages != "" {
		args = append(args, "-l", c.config.Languages)
	}
	if c.config.DataPath != "" {
		args = append(args, "--tessdata-dir", c.config.DataPath)
	}

	cmd := exec.CommandContext(ctx, c.config.TesseractPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		slog.Warn("tesseract command failed", "error", err, "stderr", stderr.String())
		return "", errors.Wrap(err, "tesseract command failed")
	}

	text, err := os.ReadFile(outBase + ".txt")
	if err != nil {
		return "", errors.Wrap(err, "failed to read OCR output")
	}
	return strings.TrimSpace(string(text)), nil
}

// IsAvailable checks if Tesseract is available
func (c *Client) IsAvailable(ctx context.Context) bool {
	return exec.CommandContext(ctx, c.config.TesseractPath, "--version").Run() == nil
}

// IsSupported checks if a MIME type is supported for OCR
func (c *Client) IsSupported(mimeType string) bool {
	for _, supported := range SupportedMimeTypes {
		if strings.EqualFold(mimeType, supported) {
			return true
		}
	}
	return false
}
