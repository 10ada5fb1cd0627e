package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// SQLSourceRepository handles database operations for the source registry
type SQLSourceRepository struct {
	db *DB
}

var _ SourceRepository = (*SQLSourceRepository)(nil)

func NewSourceRepository(db *DB) *SQLSourceRepository {
	return &SQLSourceRepository{db: db}
}

func (r *SQLSourceRepository) ListSources(ctx context.Context) ([]Source, error) {
	return r.querySources(ctx, false)
}

func (r *SQLSourceRepository) ListEnabledSources(ctx context.Context) ([]Source, error) {
	return r.querySources(ctx, true)
}

func (r *SQLSourceRepository) querySources(ctx context.Context, enabledOnly bool) ([]Source, error) {
	query := sq.Select("id", "name", "url", "enabled", "position", "created_at", "updated_at").
		From("sources").
		OrderBy("position ASC", "created_at ASC")
	if enabledOnly {
		query = query.Where(sq.Eq{"enabled": true})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sources query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	sources := []Source{}
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Name, &s.URL, &s.Enabled, &s.Position, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

// ReplaceSources makes the registry match sources exactly, in the given order.
// Sources that keep their name keep their ID and creation time.
func (r *SQLSourceRepository) ReplaceSources(ctx context.Context, sources []Source) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := replaceSources(ctx, tx, sources); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sources: %w", err)
	}

	return nil
}

func replaceSources(ctx context.Context, exec execer, sources []Source) error {
	now := time.Now().UTC()
	keys := make([]string, 0, len(sources))
	for i, s := range sources {
		key := SourceKey(s.Name)
		if key == "" {
			return fmt.Errorf("source at index %d has an empty name", i)
		}
		keys = append(keys, key)

		_, err := exec.ExecContext(ctx, `
			INSERT INTO sources (id, name, name_key, url, enabled, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (name_key) DO UPDATE SET
				name = excluded.name,
				url = excluded.url,
				enabled = excluded.enabled,
				position = excluded.position,
				updated_at = excluded.updated_at
		`, NewID(), s.Name, key, s.URL, s.Enabled, i, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert source %s: %w", s.Name, err)
		}
	}

	if len(keys) == 0 {
		if _, err := exec.ExecContext(ctx, `DELETE FROM sources`); err != nil {
			return fmt.Errorf("failed to clear sources: %w", err)
		}
		return nil
	}

	sqlStr, args, err := sq.Delete("sources").Where(sq.NotEq{"name_key": keys}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}
	if _, err := exec.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to delete removed sources: %w", err)
	}

	return nil
}

func (r *SQLSourceRepository) GetSourceCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get source count: %w", err)
	}
	return count, nil
}
