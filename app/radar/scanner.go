package radar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/rss-radar/app/database"
	"github.com/lysyi3m/rss-radar/app/feed"
	"github.com/lysyi3m/rss-radar/app/metrics"
)

var ErrScanInProgress = errors.New("scan already in progress")

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerStartup  = "startup"

	errorKindConfiguration = "configuration"
	errorKindPersistence   = "persistence"
	errorKindPanic         = "panic"
)

type FeedFetcher interface {
	Fetch(ctx context.Context, source database.Source) ([]feed.RawItem, error)
}

type SettingsProvider interface {
	GetActive(ctx context.Context) (database.Settings, error)
}

// Scanner runs one pass over all enabled sources. Only one pass runs at a time.
type Scanner struct {
	settings   SettingsProvider
	sourceRepo database.SourceRepository
	itemRepo   database.ItemRepository
	runRepo    database.RunRepository
	fetcher    FeedFetcher
	filterer   *feed.Filterer
	scorer     *feed.Scorer
	notifier   Notifier
	pauser     Pauser
	metrics    *metrics.Metrics
	now        func() time.Time

	running sync.Mutex
}

func NewScanner(settings SettingsProvider, sourceRepo database.SourceRepository, itemRepo database.ItemRepository, runRepo database.RunRepository, fetcher FeedFetcher, filterer *feed.Filterer, scorer *feed.Scorer, notifier Notifier, pauser Pauser, m *metrics.Metrics) *Scanner {
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	if pauser == nil {
		pauser = TimerPauser{}
	}
	return &Scanner{
		settings:   settings,
		sourceRepo: sourceRepo,
		itemRepo:   itemRepo,
		runRepo:    runRepo,
		fetcher:    fetcher,
		filterer:   filterer,
		scorer:     scorer,
		notifier:   notifier,
		pauser:     pauser,
		metrics:    m,
		now:        time.Now,
	}
}

// scan is the mutable state of one run.
type scan struct {
	run       database.Run
	rules     feed.Rules
	limits    Policy
	threshold int
}

func (s *scan) capReached() bool {
	return s.limits.MaxPerRun > 0 && s.run.ProcessedCount >= s.limits.MaxPerRun
}

// Run performs a full scan and returns the finished run record. The returned
// error is reserved for ErrScanInProgress and failures to record the run;
// source and configuration problems are reported inside the run itself.
func (s *Scanner) Run(ctx context.Context, trigger string) (database.Run, error) {
	if !s.running.TryLock() {
		return database.Run{}, ErrScanInProgress
	}
	defer s.running.Unlock()

	started := s.now().UTC()
	state := &scan{run: database.Run{
		ID:        database.NewID(),
		Trigger:   trigger,
		Status:    database.RunStatusRunning,
		StartedAt: started,
		Errors:    []database.RunError{},
	}}

	if err := s.runRepo.CreateRun(ctx, state.run); err != nil {
		return database.Run{}, fmt.Errorf("failed to create run: %w", err)
	}

	slog.Info("Scan started", "run_id", state.run.ID, "trigger", trigger)

	sources, err := s.prepare(ctx, state)
	if err != nil {
		state.run.Errors = append(state.run.Errors, database.RunError{Kind: errorKindConfiguration, Message: err.Error()})
		return s.finish(ctx, state, database.RunStatusError)
	}

	for i, source := range sources {
		if ctx.Err() != nil {
			state.run.Errors = append(state.run.Errors, database.RunError{Source: source.Name, Kind: "cancelled", Message: ctx.Err().Error()})
			break
		}

		s.processSource(ctx, state, source)

		if state.capReached() {
			slog.Info("Run item limit reached", "run_id", state.run.ID, "processed", state.run.ProcessedCount)
			break
		}

		if i < len(sources)-1 {
			if err := s.pauser.Pause(ctx, state.limits.JitterDelay()); err != nil {
				slog.Debug("Politeness pause interrupted", "error", err)
			}
		}
	}

	status := database.RunStatusOK
	if len(state.run.Errors) > 0 {
		status = database.RunStatusPartial
	}
	return s.finish(ctx, state, status)
}

// prepare snapshots settings and sources for the run.
func (s *Scanner) prepare(ctx context.Context, state *scan) ([]database.Source, error) {
	settings, err := s.settings.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	sources, err := s.sourceRepo.ListEnabledSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled sources: %w", err)
	}

	state.limits = PolicyFromSettings(settings)
	state.threshold = settings.NotificationScoreThreshold
	state.rules = feed.Rules{
		IncludeKeywords: settings.IncludeKeywords,
		ExcludeKeywords: settings.ExcludeKeywords,
		QuestionSignals: settings.QuestionSignals,
		LanguageFilter:  settings.LanguageFilterEnabled,
	}

	return sources, nil
}

func (s *Scanner) processSource(ctx context.Context, state *scan, source database.Source) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Source processing panicked", "source", source.Name, "panic", r)
			state.run.Errors = append(state.run.Errors, database.RunError{
				Source:  source.Name,
				Kind:    errorKindPanic,
				Message: fmt.Sprintf("%v", r),
			})
		}
	}()

	items, err := s.fetcher.Fetch(ctx, source)
	if err != nil {
		s.recordFetchError(ctx, state, source, err)
		return
	}

	if state.limits.MaxPerSource > 0 && len(items) > state.limits.MaxPerSource {
		items = items[:state.limits.MaxPerSource]
	}

	fetchedAt := s.now().UTC()
	inserted, duplicates, rejected := 0, 0, 0

	for _, candidate := range s.filterer.Run(items, state.rules) {
		if state.capReached() {
			break
		}

		if !candidate.Verdict.Accepted {
			rejected++
			state.run.RejectedCount++
			s.metrics.ObserveItem(source.Name, "rejected")
			slog.Debug("Item rejected", "source", source.Name, "url", candidate.URL, "stage", candidate.Verdict.Stage, "reason", candidate.Verdict.Reason)
			continue
		}

		externalKey, err := feed.CanonicalURL(candidate.URL)
		if err != nil {
			rejected++
			state.run.RejectedCount++
			s.metrics.ObserveItem(source.Name, "rejected")
			slog.Debug("Item has unusable URL", "source", source.Name, "url", candidate.URL, "error", err)
			continue
		}

		result, err := s.store(ctx, state, source, candidate, externalKey, fetchedAt)
		if err != nil {
			state.run.Errors = append(state.run.Errors, database.RunError{
				Source:  source.Name,
				Kind:    errorKindPersistence,
				Message: err.Error(),
			})
			return
		}

		if result == database.UpsertInserted {
			inserted++
		} else {
			duplicates++
		}
	}

	slog.Info("Source processed",
		"source", source.Name,
		"fetched", len(items),
		"new", inserted,
		"duplicates", duplicates,
		"rejected", rejected)
}

func (s *Scanner) store(ctx context.Context, state *scan, source database.Source, candidate feed.Candidate, externalKey string, fetchedAt time.Time) (database.UpsertResult, error) {
	item := database.Item{
		ExternalKey: externalKey,
		Source:      source.Name,
		Title:       candidate.Title,
		URL:         candidate.URL,
		CreatedAt:   candidate.PublishedAt,
		FetchedAt:   fetchedAt,
		Snippet:     candidate.Snippet,
		Language:    candidate.Verdict.Language,
		Score:       s.scorer.Score(candidate.RawItem, candidate.Verdict, fetchedAt),
		Status:      database.StatusNew,
	}

	result, id, err := s.itemRepo.UpsertItem(ctx, item)
	if err != nil {
		return result, fmt.Errorf("failed to store item %s: %w", externalKey, err)
	}
	s.metrics.ObserveItem(source.Name, result.String())

	if result == database.UpsertDuplicate {
		state.run.DuplicateCount++
		return result, nil
	}

	state.run.ProcessedCount++
	item.ID = id

	if state.threshold > 0 && item.Score >= state.threshold {
		if err := s.notifier.Notify(ctx, item); err != nil {
			slog.Warn("Failed to notify about item", "item_id", id, "error", err)
		}
	}

	return result, nil
}

func (s *Scanner) recordFetchError(ctx context.Context, state *scan, source database.Source, err error) {
	if feed.IsRateLimited(err) {
		state.run.RateLimited = true
		s.metrics.ObserveRateLimited(source.Name)

		backoff := state.limits.BackoffDelay()
		slog.Warn("Source rate limited", "source", source.Name, "backoff", backoff, "error", err)
		if err := s.pauser.Pause(ctx, backoff); err != nil {
			slog.Debug("Backoff interrupted", "error", err)
		}
		return
	}

	kind := string(feed.FetchUnavailable)
	var fetchErr *feed.FetchError
	if errors.As(err, &fetchErr) {
		kind = string(fetchErr.Kind)
	}

	s.metrics.ObserveSourceFailure(source.Name, kind)
	slog.Warn("Source fetch failed", "source", source.Name, "kind", kind, "error", err)

	state.run.Errors = append(state.run.Errors, database.RunError{
		Source:  source.Name,
		Kind:    kind,
		Message: err.Error(),
	})
}

func (s *Scanner) finish(ctx context.Context, state *scan, status database.RunStatus) (database.Run, error) {
	finished := s.now().UTC()
	state.run.Status = status
	state.run.FinishedAt = &finished

	// The run record must be closed even when the scan context was cancelled.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.runRepo.FinishRun(saveCtx, state.run); err != nil {
		return state.run, fmt.Errorf("failed to finish run: %w", err)
	}

	duration := finished.Sub(state.run.StartedAt)
	s.metrics.ObserveRun(state.run.Trigger, string(status), duration, finished)

	slog.Info("Scan completed",
		"run_id", state.run.ID,
		"status", status,
		"duration", duration,
		"processed", state.run.ProcessedCount,
		"duplicates", state.run.DuplicateCount,
		"rejected", state.run.RejectedCount,
		"errors", len(state.run.Errors),
		"rate_limited", state.run.RateLimited)

	return state.run, nil
}

// IsRunning reports whether a scan is in progress.
func (s *Scanner) IsRunning() bool {
	if s.running.TryLock() {
		s.running.Unlock()
		return false
	}
	return true
}
