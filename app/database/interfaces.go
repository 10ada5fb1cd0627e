package database

import (
	"context"
	"time"
)

type SourceRepository interface {
	ListSources(ctx context.Context) ([]Source, error)
	ListEnabledSources(ctx context.Context) ([]Source, error)
	ReplaceSources(ctx context.Context, sources []Source) error
	GetSourceCount(ctx context.Context) (int, error)
}

type SettingsRepository interface {
	GetSettings(ctx context.Context) (*Settings, error)
	CreateSettingsIfAbsent(ctx context.Context, settings Settings) error
	SaveSettings(ctx context.Context, settings Settings) error
	SaveSettingsWithSources(ctx context.Context, settings Settings, sources []Source) error
}

type ItemRepository interface {
	UpsertItem(ctx context.Context, item Item) (UpsertResult, string, error)
	GetItem(ctx context.Context, id string) (*Item, error)
	ListItems(ctx context.Context, query ItemQuery) ([]Item, error)
	SetStatus(ctx context.Context, id string, status ItemStatus, at time.Time) error
	UpdateFullText(ctx context.Context, id string, fullText string, language string) error
	GetItemCountByStatus(ctx context.Context, status ItemStatus) (int, error)
}

type SummaryRepository interface {
	CreateSummary(ctx context.Context, summary Summary) error
	GetLatestSummary(ctx context.Context, itemID string) (*Summary, error)
	GetLatestSummaries(ctx context.Context, itemIDs []string) (map[string]Summary, error)
}

type RunRepository interface {
	CreateRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, run Run) error
	GetLastFinishedRun(ctx context.Context) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	GetTotalProcessed(ctx context.Context) (int, error)
	FailStaleRuns(ctx context.Context, at time.Time) (int, error)
}
