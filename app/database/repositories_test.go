package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSourceRepository_ReplaceSources(t *testing.T) {
	ctx := context.Background()
	repo := NewSourceRepository(newTestDB(t))

	err := repo.ReplaceSources(ctx, []Source{
		{Name: "Klussen", Enabled: true},
		{Name: "verbouwen", Enabled: false},
		{Name: "wonen", URL: "https://example.com/wonen.rss", Enabled: true},
	})
	require.NoError(t, err)

	all, err := repo.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "Klussen", all[0].Name)
	firstID := all[0].ID

	enabled, err := repo.ListEnabledSources(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	require.Equal(t, "Klussen", enabled[0].Name)
	require.Equal(t, "wonen", enabled[1].Name)

	// identity is case-insensitive and order follows the new list
	err = repo.ReplaceSources(ctx, []Source{
		{Name: "wonen", Enabled: true},
		{Name: "KLUSSEN", Enabled: true},
	})
	require.NoError(t, err)

	all, err = repo.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "wonen", all[0].Name)
	require.Equal(t, "KLUSSEN", all[1].Name)
	require.Equal(t, firstID, all[1].ID)

	require.NoError(t, repo.ReplaceSources(ctx, nil))
	count, err := repo.GetSourceCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSettingsRepository_SingleRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(newTestDB(t))

	settings, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	require.Nil(t, settings)

	first := Settings{
		IncludeKeywords:            []string{"vergunning"},
		ExcludeKeywords:            []string{"huur"},
		QuestionSignals:            []string{"weet iemand"},
		ScanIntervalMinutes:        30,
		MaxItemsPerRun:             50,
		MaxItemsPerSource:          25,
		PoliteModeEnabled:          true,
		JitterSeconds:              3,
		BackoffSeconds:             60,
		NotificationScoreThreshold: 70,
	}
	require.NoError(t, repo.CreateSettingsIfAbsent(ctx, first))

	second := first
	second.ScanIntervalMinutes = 99
	require.NoError(t, repo.CreateSettingsIfAbsent(ctx, second), "second bootstrap must be a no-op")

	stored, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, 30, stored.ScanIntervalMinutes)
	require.Equal(t, []string{"vergunning"}, stored.IncludeKeywords)
	require.True(t, stored.PoliteModeEnabled)

	second.ExcludeKeywords = nil
	require.NoError(t, repo.SaveSettings(ctx, second))
	stored, err = repo.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, 99, stored.ScanIntervalMinutes)
	require.Empty(t, stored.ExcludeKeywords)
}

func TestSettingsRepository_SaveWithSourcesIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSettingsRepository(db)
	sources := NewSourceRepository(db)

	original := Settings{IncludeKeywords: []string{"vergunning"}, ScanIntervalMinutes: 30}
	require.NoError(t, repo.SaveSettingsWithSources(ctx, original, []Source{{Name: "klussen", Enabled: true}}))

	// the empty name fails the source write after the settings row was written
	changed := Settings{IncludeKeywords: []string{"dakkapel"}, ScanIntervalMinutes: 5}
	err := repo.SaveSettingsWithSources(ctx, changed, []Source{{Name: "wonen", Enabled: true}, {Name: " "}})
	require.Error(t, err)

	stored, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, 30, stored.ScanIntervalMinutes)
	require.Equal(t, []string{"vergunning"}, stored.IncludeKeywords)

	all, err := sources.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "klussen", all[0].Name)

	require.NoError(t, repo.SaveSettingsWithSources(ctx, changed, []Source{{Name: "wonen", Enabled: true}}))
	stored, err = repo.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, stored.ScanIntervalMinutes)
	all, err = sources.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "wonen", all[0].Name)
}

func TestSummaryRepository_LatestWins(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	items := NewItemRepository(db)
	repo := NewSummaryRepository(db)

	_, itemID, err := items.UpsertItem(ctx, testItem("https://example.com/sum", time.Now()))
	require.NoError(t, err)

	latest, err := repo.GetLatestSummary(ctx, itemID)
	require.NoError(t, err)
	require.Nil(t, latest)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateSummary(ctx, Summary{ItemID: itemID, Summary: "old", Model: "heuristic-v1", CreatedAt: base}))
	require.NoError(t, repo.CreateSummary(ctx, Summary{ItemID: itemID, Summary: "new", Risks: []string{"boete"}, Model: "heuristic-v1", CreatedAt: base.Add(time.Minute)}))

	latest, err = repo.GetLatestSummary(ctx, itemID)
	require.NoError(t, err)
	require.Equal(t, "new", latest.Summary)
	require.Equal(t, []string{"boete"}, latest.Risks)
	require.Empty(t, latest.Followups)

	byItem, err := repo.GetLatestSummaries(ctx, []string{itemID, "other"})
	require.NoError(t, err)
	require.Len(t, byItem, 1)
	require.Equal(t, "new", byItem[itemID].Summary)
}

func TestRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(newTestDB(t))
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	run := Run{ID: NewID(), Trigger: "manual", Status: RunStatusRunning, StartedAt: started}
	require.NoError(t, repo.CreateRun(ctx, run))

	last, err := repo.GetLastFinishedRun(ctx)
	require.NoError(t, err)
	require.Nil(t, last)

	finished := started.Add(time.Minute)
	run.Status = RunStatusPartial
	run.FinishedAt = &finished
	run.ProcessedCount = 4
	run.RateLimited = true
	run.Errors = []RunError{{Source: "klussen", Kind: "unavailable", Message: "timeout"}}
	require.NoError(t, repo.FinishRun(ctx, run))
	require.ErrorIs(t, repo.FinishRun(ctx, run), ErrNotFound, "finished runs are immutable")

	last, err = repo.GetLastFinishedRun(ctx)
	require.NoError(t, err)
	require.Equal(t, RunStatusPartial, last.Status)
	require.True(t, last.RateLimited)
	require.Equal(t, run.Errors, last.Errors)

	stale := Run{ID: NewID(), Trigger: "schedule", Status: RunStatusRunning, StartedAt: finished}
	require.NoError(t, repo.CreateRun(ctx, stale))
	n, err := repo.FailStaleRuns(ctx, finished.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, stale.ID, runs[0].ID)
	require.Equal(t, RunStatusError, runs[0].Status)

	total, err := repo.GetTotalProcessed(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, total)
}
