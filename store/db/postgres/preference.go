package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/prefsense/internal/util"
	"github.com/hrygo/prefsense/store"
)

const preferenceFields = "id, user_id, location_id, slug, value, status, source_type, confidence, evidence, created_ts, updated_ts"

const preferenceConflict = `ON CONFLICT ON CONSTRAINT uq_preference_tuple DO UPDATE SET
			value = EXCLUDED.value,
			source_type = EXCLUDED.source_type,
			confidence = EXCLUDED.confidence,
			evidence = EXCLUDED.evidence,
			updated_ts = EXCLUDED.updated_ts`

// preferenceValues are explicitly typed so the same list works in VALUES and in SELECT.
const preferenceValues = `$1::TEXT, $2::INTEGER, $3::TEXT, $4::TEXT, $5::TEXT, $6::TEXT, $7::TEXT, $8::DOUBLE PRECISION, $9::TEXT, $10::BIGINT, $11::BIGINT`

type rowScanner interface {
	Scan(dest ...any) error
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanPreference(row rowScanner) (*store.Preference, error) {
	p := &store.Preference{}
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.LocationID,
		&p.Slug,
		&p.Value,
		&p.Status,
		&p.SourceType,
		&p.Confidence,
		&p.Evidence,
		&p.CreatedTs,
		&p.UpdatedTs,
	); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *DB) ListPreferences(ctx context.Context, find *store.FindPreference) ([]*store.Preference, error) {
	if find == nil {
		return nil, fmt.Errorf("find parameter cannot be nil")
	}

	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UserID; v != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Slug; v != nil {
		where, args = append(where, "slug = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Status; v != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if find.GlobalOnly {
		where = append(where, "location_id = ''")
	} else if v := find.LocationID; v != nil {
		where, args = append(where, "location_id = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `SELECT ` + preferenceFields + ` FROM preference WHERE ` + strings.Join(where, " AND ") + ` ORDER BY updated_ts DESC, slug ASC`
	if find.Limit != nil && *find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Preference, 0)
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate preferences: %w", err)
	}
	return list, nil
}

func upsertArgs(upsert *store.UpsertPreference, now int64) []any {
	return []any{
		util.GenUUID(),
		upsert.UserID,
		upsert.LocationID,
		upsert.Slug,
		upsert.Value,
		string(upsert.Status),
		string(upsert.SourceType),
		upsert.Confidence,
		upsert.Evidence,
		now,
		now,
	}
}

func upsertPreference(ctx context.Context, q queryRower, upsert *store.UpsertPreference) (*store.Preference, error) {
	stmt := `INSERT INTO preference (` + preferenceFields + `)
		VALUES (` + preferenceValues + `)
		` + preferenceConflict + `
		RETURNING ` + preferenceFields

	p, err := scanPreference(q.QueryRowContext(ctx, stmt, upsertArgs(upsert, time.Now().UnixMilli())...))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert preference: %w", err)
	}
	return p, nil
}

func (d *DB) UpsertPreference(ctx context.Context, upsert *store.UpsertPreference) (*store.Preference, error) {
	return upsertPreference(ctx, d.db, upsert)
}

func (d *DB) UpsertSuggestedPreference(ctx context.Context, upsert *store.UpsertPreference) (*store.Preference, error) {
	stmt := `INSERT INTO preference (` + preferenceFields + `)
		SELECT ` + preferenceValues + `
		WHERE NOT EXISTS (
			SELECT 1 FROM preference
			WHERE user_id = $2 AND location_id = $3 AND slug = $4 AND status = 'REJECTED'
		)
		` + preferenceConflict + `
		RETURNING ` + preferenceFields

	p, err := scanPreference(d.db.QueryRowContext(ctx, stmt, upsertArgs(upsert, time.Now().UnixMilli())...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to upsert suggested preference: %w", err)
	}
	return p, nil
}

func (d *DB) TransitionSuggestion(ctx context.Context, transition *store.TransitionSuggestion) (*store.Preference, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	suggestion, err := scanPreference(tx.QueryRowContext(ctx,
		`SELECT `+preferenceFields+` FROM preference WHERE id = $1 AND status = 'SUGGESTED' FOR UPDATE`,
		transition.SuggestionID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load suggestion: %w", err)
	}

	target, err := upsertPreference(ctx, tx, &store.UpsertPreference{
		UserID:     suggestion.UserID,
		LocationID: suggestion.LocationID,
		Slug:       suggestion.Slug,
		Value:      suggestion.Value,
		Status:     transition.Target,
		SourceType: transition.SourceType,
		Confidence: transition.Confidence,
		Evidence:   suggestion.Evidence,
	})
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM preference WHERE id = $1`, suggestion.ID); err != nil {
		return nil, fmt.Errorf("failed to delete suggestion: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}
	return target, nil
}

func (d *DB) DeletePreference(ctx context.Context, delete *store.DeletePreference) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM preference WHERE id = $1`, delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete preference: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *DB) CountPreferences(ctx context.Context, count *store.CountPreference) (int, error) {
	where, args := []string{"user_id = $1"}, []any{count.UserID}
	if count.Status != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, string(*count.Status))
	}

	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM preference WHERE `+strings.Join(where, " AND "), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count preferences: %w", err)
	}
	return n, nil
}
