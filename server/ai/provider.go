package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/prefsense/internal/profile"
)

// Config holds the AI provider configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
	Timeout    time.Duration
	// RetryBackoff is the wait before the first retry; it doubles per attempt.
	RetryBackoff time.Duration
	// JSONMode asks the model for a JSON object response.
	JSONMode bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://api.openai.com/v1",
		Model:        "gpt-4o-mini",
		MaxRetries:   3,
		Timeout:      60 * time.Second,
		RetryBackoff: time.Second,
	}
}

// ConfigFromProfile maps the profile AI settings onto a provider config.
func ConfigFromProfile(p *profile.Profile) *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = p.AIBaseURL
	cfg.APIKey = p.AIAPIKey
	cfg.Model = p.AIModel
	cfg.MaxRetries = p.AIMaxRetries
	cfg.JSONMode = p.AIProvider != "ollama"
	return cfg
}

// File is a document handed to the model alongside the prompt.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// IsImage reports whether the file is sent as an image part.
func (f *File) IsImage() bool {
	return strings.HasPrefix(f.MimeType, "image/")
}

// IsText reports whether the file content can be inlined into the prompt.
func (f *File) IsText() bool {
	return strings.HasPrefix(f.MimeType, "text/") || f.MimeType == "application/json"
}

// TextGenerator produces a completion for a prompt and an optional file.
type TextGenerator interface {
	GenerateTextWithFile(ctx context.Context, prompt string, file *File) (string, error)
}

// Provider is a TextGenerator backed by an OpenAI-compatible chat API.
type Provider struct {
	client *openai.Client
	config *Config
}

var _ TextGenerator = (*Provider)(nil)

// NewProvider creates a new AI provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// Apply defaults for unset values
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// GenerateTextWithFile sends prompt as one user message. Images become image
// parts encoded as data URLs; text files are appended to the prompt.
func (p *Provider) GenerateTextWithFile(ctx context.Context, prompt string, file *File) (string, error) {
	message, err := buildMessage(prompt, file)
	if err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model:    p.config.Model,
		Messages: []openai.ChatCompletionMessage{message},
	}
	if p.config.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var result string
	err = p.doWithRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()

		resp, err := p.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty chat response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}
	return result, nil
}

func buildMessage(prompt string, file *File) (openai.ChatCompletionMessage, error) {
	message := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	switch {
	case file == nil || len(file.Data) == 0:
		message.Content = prompt
	case file.IsImage():
		dataURL := "data:" + file.MimeType + ";base64," + base64.StdEncoding.EncodeToString(file.Data)
		message.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailAuto,
			}},
		}
	case file.IsText():
		message.Content = fmt.Sprintf("%s\n\nAttachment %s:\n%s", prompt, file.Name, file.Data)
	default:
		return message, fmt.Errorf("unsupported attachment type %q", file.MimeType)
	}
	return message, nil
}

// doWithRetry executes a function with exponential backoff retry.
func (p *Provider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetryable(err) {
			return err
		}
		if attempt < p.config.MaxRetries-1 {
			waitTime := time.Duration(math.Pow(2, float64(attempt))) * p.config.RetryBackoff
			slog.Debug("AI request failed, retrying",
				"attempt", attempt+1,
				"wait_time", waitTime,
				"error", err)
			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// isRetryable reports whether err may succeed on another attempt. Client
// errors other than 429 are final.
func isRetryable(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status < 400 || status >= 500
}
