package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hrygo/prefsense/internal/profile"
	"github.com/hrygo/prefsense/store"
	"github.com/hrygo/prefsense/store/db"
)

// getDriverFromEnv picks the driver under test; DRIVER=postgres switches to PostgreSQL.
func getDriverFromEnv() string {
	if driver := os.Getenv("DRIVER"); driver != "" {
		return driver
	}
	return "sqlite"
}

func getTestingProfile(t *testing.T, mode string) *profile.Profile {
	p := &profile.Profile{
		Mode:   mode,
		Driver: getDriverFromEnv(),
	}
	switch p.Driver {
	case "postgres":
		p.DSN = GetPostgresDSN(t)
	default:
		p.DSN = filepath.Join(t.TempDir(), fmt.Sprintf("prefsense_%s.db", mode))
	}
	return p
}

// NewTestingStore returns a migrated store backed by a fresh database.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	return newTestingStoreWithMode(ctx, t, "dev")
}

func newTestingStoreWithMode(ctx context.Context, t *testing.T, mode string) *store.Store {
	t.Helper()

	p := getTestingProfile(t, mode)
	driver, err := db.NewDBDriver(p)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	s := store.New(driver, p)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}
