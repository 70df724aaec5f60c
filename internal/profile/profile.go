package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration shared by the CLI, the store and the services.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Data is the data directory
	Data string
	// DSN points to where prefsense stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of the service
	Version string

	// AI Configuration
	AIEnabled    bool   // PREFSENSE_AI_ENABLED
	AIProvider   string // PREFSENSE_AI_PROVIDER (default: openai)
	AIAPIKey     string // PREFSENSE_AI_API_KEY
	AIBaseURL    string // PREFSENSE_AI_BASE_URL (default: https://api.openai.com/v1)
	AIModel      string // PREFSENSE_AI_MODEL (default: gpt-4o-mini)
	AIMaxRetries int    // PREFSENSE_AI_MAX_RETRIES (default: 3)

	// Document Processing Configuration
	OCREnabled         bool   // PREFSENSE_OCR_ENABLED (default: false)
	TextExtractEnabled bool   // PREFSENSE_TEXTEXTRACT_ENABLED (default: false)
	TesseractPath      string // PREFSENSE_OCR_TESSERACT_PATH (default: tesseract)
	OCRLanguages       string // PREFSENSE_OCR_LANGUAGES (default: eng)
	TikaServerURL      string // PREFSENSE_TEXTEXTRACT_TIKA_URL (default: http://localhost:9998)

	// AnalysisPerMinute bounds document analyses per user.
	AnalysisPerMinute int // PREFSENSE_ANALYSIS_PER_MINUTE (default: 6)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and the provider can be reached.
func (p *Profile) IsAIEnabled() bool {
	if !p.AIEnabled {
		return false
	}
	// Ollama exposes an OpenAI-compatible endpoint without a key.
	return p.AIAPIKey != "" || p.AIProvider == "ollama"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("ignoring malformed integer env", slog.String("key", key), slog.String("value", raw))
		return defaultValue
	}
	return v
}

// FromEnv fills the AI and document processing settings from PREFSENSE_* variables.
// Values already set (e.g. by CLI flags) are kept.
func (p *Profile) FromEnv() {
	getBoolEnv := func(key string) bool {
		v := os.Getenv(key)
		return v == "true" || v == "1"
	}
	setIfEmpty := func(field *string, key, defaultValue string) {
		if *field == "" {
			*field = getEnvOrDefault(key, defaultValue)
		}
	}

	p.AIEnabled = p.AIEnabled || getBoolEnv("PREFSENSE_AI_ENABLED")
	setIfEmpty(&p.AIProvider, "PREFSENSE_AI_PROVIDER", "openai")
	setIfEmpty(&p.AIAPIKey, "PREFSENSE_AI_API_KEY", "")
	setIfEmpty(&p.AIBaseURL, "PREFSENSE_AI_BASE_URL", defaultBaseURL(p.AIProvider))
	setIfEmpty(&p.AIModel, "PREFSENSE_AI_MODEL", "gpt-4o-mini")
	if p.AIMaxRetries == 0 {
		p.AIMaxRetries = getIntEnvOrDefault("PREFSENSE_AI_MAX_RETRIES", 3)
	}

	p.OCREnabled = p.OCREnabled || getBoolEnv("PREFSENSE_OCR_ENABLED")
	p.TextExtractEnabled = p.TextExtractEnabled || getBoolEnv("PREFSENSE_TEXTEXTRACT_ENABLED")
	setIfEmpty(&p.TesseractPath, "PREFSENSE_OCR_TESSERACT_PATH", "tesseract")
	setIfEmpty(&p.OCRLanguages, "PREFSENSE_OCR_LANGUAGES", "eng")
	setIfEmpty(&p.TikaServerURL, "PREFSENSE_TEXTEXTRACT_TIKA_URL", "http://localhost:9998")
	if p.AnalysisPerMinute == 0 {
		p.AnalysisPerMinute = getIntEnvOrDefault("PREFSENSE_ANALYSIS_PER_MINUTE", 6)
	}
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "deepseek":
		return "https://api.deepseek.com"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return "https://api.openai.com/v1"
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q: only 'sqlite' and 'postgres' are supported", p.Driver)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}
	if p.AnalysisPerMinute < 0 {
		return errors.Errorf("analysis rate must not be negative, got %d", p.AnalysisPerMinute)
	}

	// Only the sqlite driver needs a data directory, and only when no DSN is given.
	if p.Driver != "sqlite" || p.DSN != "" {
		return nil
	}

	if p.Data == "" {
		if p.Mode == "prod" {
			if runtime.GOOS == "windows" {
				p.Data = filepath.Join(os.Getenv("ProgramData"), "prefsense")
			} else {
				p.Data = "/var/opt/prefsense"
			}
		} else {
			p.Data = "."
		}
	}
	if _, err := os.Stat(p.Data); os.IsNotExist(err) {
		if err := os.MkdirAll(p.Data, 0770); err != nil {
			slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir
	p.DSN = filepath.Join(dataDir, fmt.Sprintf("prefsense_%s.db", p.Mode))
	return nil
}
