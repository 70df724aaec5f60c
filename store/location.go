package store

import (
	"context"

	"github.com/pkg/errors"
)

// Location is a place owned by a user that location-scoped preferences attach to.
type Location struct {
	ID        string
	UserID    int32
	Name      string
	CreatedTs int64
}

type FindLocation struct {
	ID     *string
	UserID *int32
}

type UpsertLocation struct {
	ID     string
	UserID int32
	Name   string
}

type DeleteLocation struct {
	ID string
}

func (s *Store) ListLocations(ctx context.Context, find *FindLocation) ([]*Location, error) {
	list, err := s.driver.ListLocations(ctx, find)
	if err != nil {
		return nil, err
	}
	for _, location := range list {
		s.locationCache.Set(ctx, location.ID, copyLocation(location))
	}
	return list, nil
}

// GetLocation returns the location with find.ID, or nil when it does not exist.
// Lookups by ID are cached; concurrent misses for the same ID share one query.
// Callers receive their own copy.
func (s *Store) GetLocation(ctx context.Context, find *FindLocation) (*Location, error) {
	if find.ID == nil {
		return nil, errors.New("location id is required")
	}
	id := *find.ID

	if cached, ok := s.locationCache.Get(ctx, id); ok {
		if location, ok := cached.(*Location); ok {
			return copyLocation(location), nil
		}
	}

	v, err, _ := s.locationGroup.Do(id, func() (any, error) {
		list, err := s.driver.ListLocations(ctx, &FindLocation{ID: &id})
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return (*Location)(nil), nil
		}
		s.locationCache.Set(ctx, id, copyLocation(list[0]))
		return list[0], nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get location")
	}
	return copyLocation(v.(*Location)), nil
}

func copyLocation(l *Location) *Location {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func (s *Store) UpsertLocation(ctx context.Context, upsert *UpsertLocation) (*Location, error) {
	location, err := s.driver.UpsertLocation(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.locationCache.Set(ctx, location.ID, copyLocation(location))
	return location, nil
}

func (s *Store) DeleteLocation(ctx context.Context, delete *DeleteLocation) error {
	if err := s.driver.DeleteLocation(ctx, delete); err != nil {
		return err
	}
	s.locationCache.Delete(ctx, delete.ID)
	return nil
}
