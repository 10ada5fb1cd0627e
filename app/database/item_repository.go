package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const (
	DefaultItemLimit = 200
	MaxItemLimit     = 200
)

var itemColumns = []string{
	"id", "external_key", "source", "title", "url", "snippet", "full_text", "language",
	"score", "status", "created_at", "fetched_at",
	"seen_at", "answered_at", "ignored_at", "status_changed_at",
}

// SQLItemRepository handles database operations for radar items
type SQLItemRepository struct {
	db *DB
}

var _ ItemRepository = (*SQLItemRepository)(nil)

func NewItemRepository(db *DB) *SQLItemRepository {
	return &SQLItemRepository{db: db}
}

// UpsertItem inserts the item unless one with the same external key exists.
// A duplicate sighting leaves the stored row untouched and returns its ID.
func (r *SQLItemRepository) UpsertItem(ctx context.Context, item Item) (UpsertResult, string, error) {
	if item.ExternalKey == "" {
		return UpsertDuplicate, "", fmt.Errorf("item has no external key")
	}
	if item.ID == "" {
		item.ID = NewID()
	}
	if item.Status == "" {
		item.Status = StatusNew
	}
	if item.FetchedAt.IsZero() {
		item.FetchedAt = time.Now()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = item.FetchedAt
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO items (
			id, external_key, source, title, url, snippet, full_text, language,
			score, status, created_at, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_key) DO NOTHING
	`, item.ID, item.ExternalKey, item.Source, item.Title, item.URL, item.Snippet,
		item.FullText, item.Language, item.Score, string(item.Status),
		item.CreatedAt.UTC(), item.FetchedAt.UTC())
	if err != nil {
		return UpsertDuplicate, "", fmt.Errorf("failed to upsert item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return UpsertDuplicate, "", fmt.Errorf("failed to read upsert result: %w", err)
	}
	if affected > 0 {
		return UpsertInserted, item.ID, nil
	}

	var existingID string
	err = r.db.QueryRowContext(ctx, `SELECT id FROM items WHERE external_key = ?`, item.ExternalKey).Scan(&existingID)
	if err != nil {
		return UpsertDuplicate, "", fmt.Errorf("failed to look up duplicate item: %w", err)
	}

	return UpsertDuplicate, existingID, nil
}

func (r *SQLItemRepository) GetItem(ctx context.Context, id string) (*Item, error) {
	sqlStr, args, err := sq.Select(itemColumns...).From("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build item query: %w", err)
	}

	item, err := scanItem(r.db.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item, nil
}

// ListItems returns items newest first, bounded by MaxItemLimit.
func (r *SQLItemRepository) ListItems(ctx context.Context, query ItemQuery) ([]Item, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultItemLimit
	}
	if limit > MaxItemLimit {
		limit = MaxItemLimit
	}

	builder := sq.Select(itemColumns...).
		From("items").
		OrderBy("created_at DESC", "score DESC", "id DESC").
		Limit(uint64(limit))
	if query.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(query.Status)})
	}

	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build items query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

// SetStatus moves an item to status when the status table allows the move
// from its current status. The timestamp column matching the target status
// is stamped.
func (r *SQLItemRepository) SetStatus(ctx context.Context, id string, status ItemStatus, at time.Time) error {
	if _, ok := statusTransitions[status]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current ItemStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM items WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read item status: %w", err)
	}

	if !current.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	update := sq.Update("items").
		Set("status", string(status)).
		Set("status_changed_at", at.UTC()).
		Where(sq.Eq{"id": id})

	switch status {
	case StatusSeen:
		update = update.Set("seen_at", at.UTC())
	case StatusAnswered:
		update = update.Set("answered_at", at.UTC())
	case StatusIgnored:
		update = update.Set("ignored_at", at.UTC())
	}

	sqlStr, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build status update: %w", err)
	}

	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}

	return nil
}

func (r *SQLItemRepository) UpdateFullText(ctx context.Context, id string, fullText string, language string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE items
		SET full_text = ?, language = CASE WHEN ? = '' THEN language ELSE ? END
		WHERE id = ?
	`, fullText, language, language, id)
	if err != nil {
		return fmt.Errorf("failed to update item full text: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read full text update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}

	return nil
}

func (r *SQLItemRepository) GetItemCountByStatus(ctx context.Context, status ItemStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE status = ?", string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item                                   Item
		status                                 string
		seenAt, answeredAt, ignoredAt, changed sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.ExternalKey, &item.Source, &item.Title, &item.URL, &item.Snippet,
		&item.FullText, &item.Language, &item.Score, &status, &item.CreatedAt, &item.FetchedAt,
		&seenAt, &answeredAt, &ignoredAt, &changed,
	)
	if err != nil {
		return nil, err
	}

	item.Status = ItemStatus(status)
	item.CreatedAt = item.CreatedAt.UTC()
	item.FetchedAt = item.FetchedAt.UTC()
	item.SeenAt = timePtr(seenAt)
	item.AnsweredAt = timePtr(answeredAt)
	item.IgnoredAt = timePtr(ignoredAt)
	item.StatusChangedAt = timePtr(changed)

	return &item, nil
}
