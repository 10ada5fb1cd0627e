package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var summaryColumns = []string{
	"id", "item_id", "summary", "core_question", "risks", "talking_points", "followups", "model", "created_at",
}

// SQLSummaryRepository stores enrichment results. Summaries are append-only;
// the newest one per item is authoritative.
type SQLSummaryRepository struct {
	db *DB
}

var _ SummaryRepository = (*SQLSummaryRepository)(nil)

func NewSummaryRepository(db *DB) *SQLSummaryRepository {
	return &SQLSummaryRepository{db: db}
}

func (r *SQLSummaryRepository) CreateSummary(ctx context.Context, s Summary) error {
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	risks, err := encodeList(s.Risks)
	if err != nil {
		return err
	}
	talkingPoints, err := encodeList(s.TalkingPoints)
	if err != nil {
		return err
	}
	followups, err := encodeList(s.Followups)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO summaries (id, item_id, summary, core_question, risks, talking_points, followups, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.ItemID, s.Summary, s.CoreQuestion, risks, talkingPoints, followups, s.Model, s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create summary: %w", err)
	}

	return nil
}

// GetLatestSummary returns the newest summary for the item, or nil if none exists.
func (r *SQLSummaryRepository) GetLatestSummary(ctx context.Context, itemID string) (*Summary, error) {
	sqlStr, args, err := sq.Select(summaryColumns...).
		From("summaries").
		Where(sq.Eq{"item_id": itemID}).
		OrderBy("created_at DESC", "rowid DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build summary query: %w", err)
	}

	summary, err := scanSummary(r.db.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest summary: %w", err)
	}

	return summary, nil
}

// GetLatestSummaries returns the newest summary per item for the given items.
func (r *SQLSummaryRepository) GetLatestSummaries(ctx context.Context, itemIDs []string) (map[string]Summary, error) {
	result := make(map[string]Summary, len(itemIDs))
	if len(itemIDs) == 0 {
		return result, nil
	}

	sqlStr, args, err := sq.Select(summaryColumns...).
		From("summaries").
		Where(sq.Eq{"item_id": itemIDs}).
		OrderBy("created_at DESC", "rowid DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build summaries query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		if _, seen := result[summary.ItemID]; !seen {
			result[summary.ItemID] = *summary
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w", err)
	}

	return result, nil
}

func scanSummary(row rowScanner) (*Summary, error) {
	var (
		s                               Summary
		risks, talkingPoints, followups string
	)
	err := row.Scan(&s.ID, &s.ItemID, &s.Summary, &s.CoreQuestion, &risks, &talkingPoints, &followups, &s.Model, &s.CreatedAt)
	if err != nil {
		return nil, err
	}

	if s.Risks, err = decodeList[string](risks); err != nil {
		return nil, err
	}
	if s.TalkingPoints, err = decodeList[string](talkingPoints); err != nil {
		return nil, err
	}
	if s.Followups, err = decodeList[string](followups); err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()

	return &s, nil
}
