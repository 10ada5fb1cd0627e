package api

import (
	"context"
	"time"

	"github.com/lysyi3m/rss-radar/app/database"
	"github.com/lysyi3m/rss-radar/app/metrics"
	"github.com/lysyi3m/rss-radar/app/radar"
	"github.com/lysyi3m/rss-radar/app/tasks"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type SettingsManager interface {
	GetActive(ctx context.Context) (database.Settings, error)
	Sources(ctx context.Context) ([]database.Source, error)
	Update(ctx context.Context, patch radar.SettingsPatch) (database.Settings, []database.Source, error)
}

type Scanner interface {
	Run(ctx context.Context, trigger string) (database.Run, error)
	IsRunning() bool
}

type Enricher interface {
	EnsureSummary(ctx context.Context, itemID string) (radar.Enrichment, error)
	Regenerate(ctx context.Context, itemID string) (radar.Enrichment, error)
}

var (
	_ SettingsManager = (*radar.SettingsService)(nil)
	_ Scanner         = (*radar.Scanner)(nil)
	_ Enricher        = (*radar.Enricher)(nil)
)

type Handler struct {
	db          Pinger
	settings    SettingsManager
	itemRepo    database.ItemRepository
	summaryRepo database.SummaryRepository
	runRepo     database.RunRepository
	scanner     Scanner
	enricher    Enricher
	scheduler   tasks.TaskSchedulerInterface
	metrics     *metrics.Metrics
}

// SettingsResponse is the settings record with the source list next to it.
type SettingsResponse struct {
	database.Settings
	Sources []database.Source `json:"sources"`
}

// ItemResponse is an item with its latest summary flattened into it.
type ItemResponse struct {
	database.Item
	Summary       string     `json:"summary,omitempty"`
	CoreQuestion  string     `json:"coreQuestion,omitempty"`
	Risks         []string   `json:"risks,omitempty"`
	TalkingPoints []string   `json:"talkingPoints,omitempty"`
	Followups     []string   `json:"followups,omitempty"`
	SummaryModel  string     `json:"summaryModel,omitempty"`
	SummarizedAt  *time.Time `json:"summarizedAt,omitempty"`
}

func newItemResponse(item database.Item, summary *database.Summary) ItemResponse {
	response := ItemResponse{Item: item}
	if summary == nil {
		return response
	}

	createdAt := summary.CreatedAt
	response.Summary = summary.Summary
	response.CoreQuestion = summary.CoreQuestion
	response.Risks = summary.Risks
	response.TalkingPoints = summary.TalkingPoints
	response.Followups = summary.Followups
	response.SummaryModel = summary.Model
	response.SummarizedAt = &createdAt
	return response
}

type UpdateItemRequest struct {
	Status string `json:"status" binding:"required"`
}

type ScanResponse struct {
	Success        bool                `json:"success"`
	RunID          string              `json:"runId,omitempty"`
	Status         database.RunStatus  `json:"status,omitempty"`
	ProcessedCount int                 `json:"processedCount"`
	Errors         []database.RunError `json:"errors"`
	RateLimited    bool                `json:"rateLimited"`
}

type StatsResponse struct {
	LastRunAt             *time.Time         `json:"lastRunAt"`
	LastRunStatus         database.RunStatus `json:"lastRunStatus,omitempty"`
	TotalProcessedAllTime int                `json:"totalProcessedAllTime"`
	NewItemCount          int                `json:"newItemCount"`
	RateLimited           bool               `json:"rateLimited"`
	ScanRunning           bool               `json:"scanRunning"`
	NextScanAt            *time.Time         `json:"nextScanAt,omitempty"`
}
