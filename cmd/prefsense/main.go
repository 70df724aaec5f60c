package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/prefsense/internal/profile"
	"github.com/hrygo/prefsense/internal/version"
	"github.com/hrygo/prefsense/server/service/preference"
	"github.com/hrygo/prefsense/store"
	"github.com/hrygo/prefsense/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "prefsense",
	Short: "Preference catalog, suggestion reconciliation and lifecycle tooling.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := newLogger(cmd.ErrOrStderr(), viper.GetString("log-format"), viper.GetString("log-level"))
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("log-format", "text")
	viper.SetDefault("log-level", "info")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of the tool, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver, sqlite or postgres")
	rootCmd.PersistentFlags().String("dsn", "", "database source name")
	rootCmd.PersistentFlags().String("log-format", "text", `log output format, "text" or "json"`)
	rootCmd.PersistentFlags().String("log-level", "info", "minimum log level")
	rootCmd.PersistentFlags().Int32("user", 1, "id of the user the command acts for")

	for _, name := range []string{"mode", "data", "driver", "dsn", "log-format", "log-level", "user"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("prefsense")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(
		migrateCmd,
		catalogCmd,
		locationCmd,
		setCmd,
		suggestCmd,
		acceptCmd,
		rejectCmd,
		listCmd,
		getCmd,
		deleteCmd,
		countCmd,
		analyzeCmd,
	)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			schemaVersion, err := a.store.GetCurrentSchemaVersion()
			if err != nil {
				return err
			}
			slog.Info("database is up to date",
				slog.String("driver", a.profile.Driver),
				slog.String("schema_version", schemaVersion))
			return nil
		})
	},
}

// app holds what a store-backed command needs.
type app struct {
	profile *profile.Profile
	store   *store.Store
	prefs   preference.Service
	userID  int32
}

func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:   viper.GetString("mode"),
		Data:   viper.GetString("data"),
		DSN:    viper.GetString("dsn"),
		Driver: viper.GetString("driver"),

		AIEnabled:  viper.GetBool("ai-enabled"),
		AIProvider: viper.GetString("ai-provider"),
		AIAPIKey:   viper.GetString("ai-api-key"),
		AIBaseURL:  viper.GetString("ai-base-url"),
		AIModel:    viper.GetString("ai-model"),

		OCREnabled:         viper.GetBool("ocr-enabled"),
		TextExtractEnabled: viper.GetBool("textextract-enabled"),
		TikaServerURL:      viper.GetString("tika-url"),
		AnalysisPerMinute:  viper.GetInt("analysis-per-minute"),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid profile")
	}
	p.Version = version.GetCurrentVersion(p.Mode)
	return p, nil
}

// withApp opens and migrates the store, runs fn and closes the store.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := loadProfile()
	if err != nil {
		return err
	}
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return err
	}
	s := store.New(driver, p)
	defer func() {
		if err := s.Close(); err != nil {
			slog.Warn("failed to close store", slog.String("error", err.Error()))
		}
	}()
	if err := s.Migrate(ctx); err != nil {
		return errors.Wrap(err, "failed to migrate")
	}

	return fn(ctx, &app{
		profile: p,
		store:   s,
		prefs:   preference.NewService(s, preference.WithLogger(slog.Default())),
		userID:  viper.GetInt32("user"),
	})
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
