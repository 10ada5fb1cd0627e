package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-radar/app/database"
	"github.com/lysyi3m/rss-radar/app/metrics"
	"github.com/lysyi3m/rss-radar/app/radar"
	"github.com/lysyi3m/rss-radar/app/tasks"
)

const defaultRunLimit = 20

func NewHandler(db Pinger, settings SettingsManager, itemRepo database.ItemRepository,
	summaryRepo database.SummaryRepository, runRepo database.RunRepository,
	scanner Scanner, enricher Enricher, scheduler tasks.TaskSchedulerInterface, m *metrics.Metrics) *Handler {
	return &Handler{
		db:          db,
		settings:    settings,
		itemRepo:    itemRepo,
		summaryRepo: summaryRepo,
		runRepo:     runRepo,
		scanner:     scanner,
		enricher:    enricher,
		scheduler:   scheduler,
		metrics:     m,
	}
}

func (h *Handler) GetSettings(c *gin.Context) {
	ctx := c.Request.Context()

	settings, err := h.settings.GetActive(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "get_settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}

	sources, err := h.settings.Sources(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sources"})
		return
	}

	c.JSON(http.StatusOK, SettingsResponse{Settings: settings, Sources: nonNil(sources)})
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var patch radar.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	settings, sources, err := h.settings.Update(c.Request.Context(), patch)
	if errors.Is(err, radar.ErrInvalidSettings) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "update_settings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
		return
	}

	c.JSON(http.StatusOK, SettingsResponse{Settings: settings, Sources: nonNil(sources)})
}

func (h *Handler) ListItems(c *gin.Context) {
	ctx := c.Request.Context()
	query := database.ItemQuery{Limit: database.DefaultItemLimit}

	if raw := c.Query("status"); raw != "" {
		status, err := database.ParseItemStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		query.Status = status
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
			return
		}
		if limit > 0 {
			query.Limit = min(limit, database.MaxItemLimit)
		}
	}

	items, err := h.itemRepo.ListItems(ctx, query)
	if err != nil {
		slog.Error("Database error", "operation", "list_items", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list items"})
		return
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	summaries, err := h.summaryRepo.GetLatestSummaries(ctx, ids)
	if err != nil {
		slog.Error("Database error", "operation", "get_summaries", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load summaries"})
		return
	}

	response := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		var summary *database.Summary
		if s, ok := summaries[item.ID]; ok {
			summary = &s
		}
		response = append(response, newItemResponse(item, summary))
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) UpdateItem(c *gin.Context) {
	id := c.Param("id")

	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	status, err := database.ParseItemStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.itemRepo.SetStatus(c.Request.Context(), id, status, time.Now().UTC())
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	case errors.Is(err, database.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, database.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		slog.Error("Database error", "operation", "set_status", "item_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update item"})
		return
	}

	slog.Debug("Item status changed", "item_id", id, "status", status)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) SummarizeItem(c *gin.Context) {
	id := c.Param("id")
	force, _ := strconv.ParseBool(c.Query("force"))

	var (
		enrichment radar.Enrichment
		err        error
	)
	if force {
		enrichment, err = h.enricher.Regenerate(c.Request.Context(), id)
	} else {
		enrichment, err = h.enricher.EnsureSummary(c.Request.Context(), id)
	}

	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}
	if err != nil {
		slog.Error("Enrichment failed", "item_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to summarize item"})
		return
	}

	c.JSON(http.StatusOK, newItemResponse(enrichment.Item, &enrichment.Summary))
}

func (h *Handler) TriggerScan(c *gin.Context) {
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		h.enqueueScan(c)
		return
	}

	// The run outlives a client that disconnects mid-scan.
	ctx := context.WithoutCancel(c.Request.Context())

	run, err := h.scanner.Run(ctx, radar.TriggerManual)
	if errors.Is(err, radar.ErrScanInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		slog.Error("Scan failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run scan"})
		return
	}

	c.JSON(http.StatusOK, ScanResponse{
		Success:        run.Status != database.RunStatusError,
		RunID:          run.ID,
		Status:         run.Status,
		ProcessedCount: run.ProcessedCount,
		Errors:         nonNil(run.Errors),
		RateLimited:    run.RateLimited,
	})
}

func (h *Handler) enqueueScan(c *gin.Context) {
	if h.scanner.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": radar.ErrScanInProgress.Error()})
		return
	}

	if err := h.scheduler.EnqueueScan(radar.TriggerManual); err != nil {
		slog.Warn("Failed to enqueue scan", "error", err)
		c.JSON(http.StatusConflict, gin.H{"error": "A scan is already queued"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true, "queued": true})
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats := StatsResponse{ScanRunning: h.scanner.IsRunning()}

	lastRun, err := h.runRepo.GetLastFinishedRun(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "get_last_run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}
	if lastRun != nil {
		stats.LastRunAt = lastRun.FinishedAt
		stats.LastRunStatus = lastRun.Status
		stats.RateLimited = lastRun.RateLimited
	}

	if stats.TotalProcessedAllTime, err = h.runRepo.GetTotalProcessed(ctx); err != nil {
		slog.Error("Database error", "operation", "get_total_processed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}

	if stats.NewItemCount, err = h.itemRepo.GetItemCountByStatus(ctx, database.StatusNew); err != nil {
		slog.Error("Database error", "operation", "count_new_items", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}

	if next := h.scheduler.NextScanAt(); !next.IsZero() {
		stats.NextScanAt = &next
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListRuns(c *gin.Context) {
	runs, err := h.runRepo.ListRuns(c.Request.Context(), defaultRunLimit)
	if err != nil {
		slog.Error("Database error", "operation", "list_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}

	c.JSON(http.StatusOK, nonNil(runs))
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		health["status"] = "unavailable"
		health["error"] = "database unreachable"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	c.JSON(http.StatusOK, health)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
