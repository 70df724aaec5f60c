package store

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/hrygo/prefsense/internal/profile"
	"github.com/hrygo/prefsense/store/cache"
)

// ErrNotFound is returned by drivers when a row addressed by ID does not exist
// or is no longer in the expected state.
var ErrNotFound = errors.New("not found")

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	cacheConfig   cache.Config
	locationCache *cache.Cache
	locationGroup singleflight.Group
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:        driver,
		profile:       profile,
		cacheConfig:   cacheConfig,
		locationCache: cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.locationCache.Close()
	return s.driver.Close()
}
