package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const settingsRowID = 1

// SQLSettingsRepository stores the single active scan settings record
type SQLSettingsRepository struct {
	db *DB
}

var _ SettingsRepository = (*SQLSettingsRepository)(nil)

func NewSettingsRepository(db *DB) *SQLSettingsRepository {
	return &SQLSettingsRepository{db: db}
}

// GetSettings returns the active settings, or nil when none were stored yet.
func (r *SQLSettingsRepository) GetSettings(ctx context.Context) (*Settings, error) {
	var (
		s                         Settings
		include, exclude, signals string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT include_keywords, exclude_keywords, question_signals, language_filter_enabled,
		       scan_interval_minutes, max_items_per_run, max_items_per_source,
		       polite_mode_enabled, jitter_seconds, backoff_seconds,
		       notification_score_threshold, updated_at
		FROM scan_settings
		WHERE id = ?
	`, settingsRowID).Scan(
		&include, &exclude, &signals, &s.LanguageFilterEnabled,
		&s.ScanIntervalMinutes, &s.MaxItemsPerRun, &s.MaxItemsPerSource,
		&s.PoliteModeEnabled, &s.JitterSeconds, &s.BackoffSeconds,
		&s.NotificationScoreThreshold, &s.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	if s.IncludeKeywords, err = decodeList[string](include); err != nil {
		return nil, err
	}
	if s.ExcludeKeywords, err = decodeList[string](exclude); err != nil {
		return nil, err
	}
	if s.QuestionSignals, err = decodeList[string](signals); err != nil {
		return nil, err
	}

	return &s, nil
}

// CreateSettingsIfAbsent stores settings only when no record exists, so
// concurrent bootstraps agree on a single row.
func (r *SQLSettingsRepository) CreateSettingsIfAbsent(ctx context.Context, settings Settings) error {
	return writeSettings(ctx, r.db, settings, "ON CONFLICT (id) DO NOTHING")
}

func (r *SQLSettingsRepository) SaveSettings(ctx context.Context, settings Settings) error {
	return writeSettings(ctx, r.db, settings, saveSettingsClause)
}

// SaveSettingsWithSources stores settings and replaces the source registry
// in one transaction.
func (r *SQLSettingsRepository) SaveSettingsWithSources(ctx context.Context, settings Settings, sources []Source) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeSettings(ctx, tx, settings, saveSettingsClause); err != nil {
		return err
	}
	if err := replaceSources(ctx, tx, sources); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settings: %w", err)
	}

	return nil
}

const saveSettingsClause = `ON CONFLICT (id) DO UPDATE SET
		include_keywords = excluded.include_keywords,
		exclude_keywords = excluded.exclude_keywords,
		question_signals = excluded.question_signals,
		language_filter_enabled = excluded.language_filter_enabled,
		scan_interval_minutes = excluded.scan_interval_minutes,
		max_items_per_run = excluded.max_items_per_run,
		max_items_per_source = excluded.max_items_per_source,
		polite_mode_enabled = excluded.polite_mode_enabled,
		jitter_seconds = excluded.jitter_seconds,
		backoff_seconds = excluded.backoff_seconds,
		notification_score_threshold = excluded.notification_score_threshold,
		updated_at = excluded.updated_at`

func writeSettings(ctx context.Context, exec execer, s Settings, conflictClause string) error {
	include, err := encodeList(s.IncludeKeywords)
	if err != nil {
		return err
	}
	exclude, err := encodeList(s.ExcludeKeywords)
	if err != nil {
		return err
	}
	signals, err := encodeList(s.QuestionSignals)
	if err != nil {
		return err
	}

	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO scan_settings (
			id, include_keywords, exclude_keywords, question_signals, language_filter_enabled,
			scan_interval_minutes, max_items_per_run, max_items_per_source,
			polite_mode_enabled, jitter_seconds, backoff_seconds,
			notification_score_threshold, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`+conflictClause,
		settingsRowID, include, exclude, signals, s.LanguageFilterEnabled,
		s.ScanIntervalMinutes, s.MaxItemsPerRun, s.MaxItemsPerSource,
		s.PoliteModeEnabled, s.JitterSeconds, s.BackoffSeconds,
		s.NotificationScoreThreshold, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to store settings: %w", err)
	}

	return nil
}
