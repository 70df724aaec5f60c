// Package textextract turns uploaded documents into plain text before they are
// handed to the preference extraction prompt.
package textextract

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/prefsense/internal/profile"
)

// TikaMimeTypes are the office and PDF formats routed through Apache Tika.
var TikaMimeTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/rtf",
	"text/rtf",
}

// Config holds the text extraction configuration
type Config struct {
	// TikaServerURL is the URL of the Tika server (e.g., http://localhost:9998)
	TikaServerURL string
	// TikaJarPath is the path to tika-app.jar, used when the server is unreachable
	TikaJarPath string
	// JavaPath is the path to the java executable
	JavaPath string
	// Timeout is the HTTP timeout for Tika server requests
	Timeout time.Duration
}

// DefaultConfig returns the default text extraction configuration
func DefaultConfig() *Config {
	return &Config{
		TikaServerURL: "http://localhost:9998",
		JavaPath:      "java",
		Timeout:       30 * time.Second,
	}
}

// ConfigFromProfile reads the Tika server URL from the profile.
func ConfigFromProfile(p *profile.Profile) *Config {
	config := DefaultConfig()
	if p.TikaServerURL != "" {
		config.TikaServerURL = p.TikaServerURL
	}
	if path := os.Getenv("PREFSENSE_TEXTEXTRACT_TIKA_JAR"); path != "" {
		config.TikaJarPath = path
	}
	return config
}

// TikaClient extracts text from office and PDF documents.
type TikaClient struct {
	config     *Config
	httpClient *http.Client
}

// NewTikaClient creates a new Tika client
func NewTikaClient(config *Config) *TikaClient {
	if config == nil {
		config = DefaultConfig()
	}
	return &TikaClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// IsSupported checks if a MIME type is handled by Tika
func (c *TikaClient) IsSupported(contentType string) bool {
	for _, supported := range TikaMimeTypes {
		if strings.EqualFold(contentType, supported) {
			return true
		}
	}
	return false
}

// ExtractText extracts text, preferring the Tika server and falling back to the jar.
func (c *TikaClient) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if !c.IsSupported(contentType) {
		return "", errors.Errorf("unsupported content type: %s", contentType)
	}

	if c.config.TikaServerURL != "" {
		text, err := c.extractFromServer(ctx, data, contentType)
		if err == nil {
			return text, nil
		}
		if c.config.TikaJarPath == "" {
			return "", err
		}
		slog.Warn("Tika server request failed, trying jar", "error", err)
	}
	if c.config.TikaJarPath != "" {
		return c.extractEmbedded(ctx, data)
	}
	return "", errors.New("no Tika server or jar available")
}

func (c *TikaClient) extractFromServer(ctx context.Context, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, strings.TrimRight(c.config.TikaServerURL, "/")+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "tika server request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("tika server returned status %d: %s", resp.StatusCode, string(body))
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *TikaClient) extractEmbedded(ctx context.Context, data []byte) (string, error) {
	inputFile, err := os.CreateTemp("", "tika_input_*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp input file")
	}
	defer func() {
		inputFile.Close()
		os.Remove(inputFile.Name())
	}()

	if _, err := inputFile.Write(data); err != nil {
		return "", errors.Wrap(err, "failed to write input file")
	}

	cmd := exec.CommandContext(ctx, c.config.JavaPath, "-jar", c.config.TikaJarPath, "-t", inputFile.Name())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		slog.Warn("Tika embedded failed", "error", err, "stderr", stderr.String())
		return "", errors.Wrap(err, "tika-app.jar failed")
	}
	return strings.TrimSpace(stdout.String()), nil
}

// IsAvailable checks if the Tika server answers.
func (c *TikaClient) IsAvailable(ctx context.Context) bool {
	if c.config.TikaServerURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.TikaServerURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
