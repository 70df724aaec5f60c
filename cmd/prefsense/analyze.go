package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/prefsense/internal/profile"
	"github.com/hrygo/prefsense/plugin/ocr"
	"github.com/hrygo/prefsense/plugin/textextract"
	"github.com/hrygo/prefsense/server/ai"
	"github.com/hrygo/prefsense/server/middleware"
	"github.com/hrygo/prefsense/server/service/analysis"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Ask the model for preference changes found in a document.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", args[0])
		}
		locationID, _ := cmd.Flags().GetString("location")
		mimeType, _ := cmd.Flags().GetString("mime")
		apply, _ := cmd.Flags().GetBool("apply")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			svc, err := newAnalysisService(a, timeout)
			if err != nil {
				return err
			}
			result, err := svc.AnalyzeDocument(ctx, &analysis.AnalyzeRequest{
				UserID:     a.userID,
				LocationID: locationID,
				Document: &analysis.Document{
					Name:     filepath.Base(args[0]),
					MimeType: mimeType,
					Data:     data,
				},
			})
			if err != nil {
				return err
			}
			if !apply {
				return printJSON(cmd, result)
			}

			applied, err := svc.ApplySuggestions(ctx, a.userID, locationID, result.Validated)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"analysis": result,
				"applied":  applied,
			})
		})
	},
}

func newAnalysisService(a *app, timeout time.Duration) (*analysis.Service, error) {
	if !a.profile.IsAIEnabled() {
		return nil, errors.New("AI is disabled: pass --ai-enabled and an API key, or use the ollama provider")
	}
	provider, err := ai.NewProvider(ai.ConfigFromProfile(a.profile))
	if err != nil {
		return nil, err
	}

	opts := []analysis.Option{
		analysis.WithReader(newExtractor(a.profile)),
		analysis.WithRateLimiter(middleware.NewRateLimiter(a.profile.AnalysisPerMinute)),
		analysis.WithLogger(slog.Default()),
	}
	if timeout > 0 {
		opts = append(opts, analysis.WithTimeout(timeout))
	}
	return analysis.NewService(a.prefs, a.store, provider, opts...), nil
}

func newExtractor(p *profile.Profile) *textextract.Extractor {
	var tika *textextract.TikaClient
	if p.TextExtractEnabled {
		tika = textextract.NewTikaClient(textextract.ConfigFromProfile(p))
	}
	var reader textextract.OCR
	if p.OCREnabled {
		reader = ocr.NewClient(ocr.ConfigFromProfile(p))
	}
	return textextract.NewExtractor(tika, reader)
}

func init() {
	analyzeCmd.Flags().String("location", "", "location the document belongs to")
	analyzeCmd.Flags().String("mime", "", "content type of the document; detected when empty")
	analyzeCmd.Flags().Bool("apply", false, "store the validated suggestions as SUGGESTED")
	analyzeCmd.Flags().Duration("timeout", analysis.DefaultTimeout, "bound on one analysis")

	analyzeCmd.Flags().Bool("ai-enabled", false, "enable the model")
	analyzeCmd.Flags().String("ai-provider", "", "openai, deepseek or ollama")
	analyzeCmd.Flags().String("ai-api-key", "", "API key of the provider")
	analyzeCmd.Flags().String("ai-base-url", "", "base URL of the OpenAI compatible endpoint")
	analyzeCmd.Flags().String("ai-model", "", "model name")
	analyzeCmd.Flags().Bool("ocr-enabled", false, "read images with tesseract")
	analyzeCmd.Flags().Bool("textextract-enabled", false, "read office documents and PDFs with Apache Tika")
	analyzeCmd.Flags().String("tika-url", "", "Apache Tika server URL")
	analyzeCmd.Flags().Int("analysis-per-minute", 0, "analyses allowed per user and minute")

	for _, name := range []string{
		"ai-enabled", "ai-provider", "ai-api-key", "ai-base-url", "ai-model",
		"ocr-enabled", "textextract-enabled", "tika-url", "analysis-per-minute",
	} {
		if err := viper.BindPFlag(name, analyzeCmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
}
