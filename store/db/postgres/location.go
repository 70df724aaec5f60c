package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/prefsense/store"
)

func (d *DB) ListLocations(ctx context.Context, find *store.FindLocation) ([]*store.Location, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UserID; v != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *v)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT id, user_id, name, created_ts FROM location WHERE `+strings.Join(where, " AND ")+` ORDER BY created_ts ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Location, 0)
	for rows.Next() {
		l := &store.Location{}
		if err := rows.Scan(&l.ID, &l.UserID, &l.Name, &l.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		list = append(list, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locations: %w", err)
	}
	return list, nil
}

func (d *DB) UpsertLocation(ctx context.Context, upsert *store.UpsertLocation) (*store.Location, error) {
	stmt := `INSERT INTO location (id, user_id, name, created_ts)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		WHERE location.user_id = EXCLUDED.user_id
		RETURNING id, user_id, name, created_ts`

	l := &store.Location{}
	if err := d.db.QueryRowContext(ctx, stmt, upsert.ID, upsert.UserID, upsert.Name, time.Now().UnixMilli()).Scan(
		&l.ID, &l.UserID, &l.Name, &l.CreatedTs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("location %s belongs to another user", upsert.ID)
		}
		return nil, fmt.Errorf("failed to upsert location: %w", err)
	}
	return l, nil
}

func (d *DB) DeleteLocation(ctx context.Context, delete *store.DeleteLocation) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM location WHERE id = $1`, delete.ID); err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	return nil
}
