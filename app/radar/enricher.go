package radar

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lysyi3m/rss-radar/app/database"
	"github.com/lysyi3m/rss-radar/app/feed"
	"github.com/lysyi3m/rss-radar/app/metrics"
)

const enrichTimeout = 2 * time.Minute

type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) ([]byte, error)
}

// Enrichment is an item together with its authoritative summary.
type Enrichment struct {
	Item    database.Item
	Summary database.Summary
}

// Enricher loads full text and summaries for single items on demand.
type Enricher struct {
	itemRepo    database.ItemRepository
	summaryRepo database.SummaryRepository
	settings    SettingsProvider
	fetcher     PageFetcher
	extractor   *feed.ContentExtractor
	language    *feed.LanguageDetector
	summarizer  Summarizer
	metrics     *metrics.Metrics
	now         func() time.Time

	group singleflight.Group
}

func NewEnricher(itemRepo database.ItemRepository, summaryRepo database.SummaryRepository, settings SettingsProvider, fetcher PageFetcher, extractor *feed.ContentExtractor, summarizer Summarizer, m *metrics.Metrics) *Enricher {
	if summarizer == nil {
		summarizer = NewHeuristicSummarizer()
	}
	return &Enricher{
		itemRepo:    itemRepo,
		summaryRepo: summaryRepo,
		settings:    settings,
		fetcher:     fetcher,
		extractor:   extractor,
		language:    feed.NewLanguageDetector(),
		summarizer:  summarizer,
		metrics:     m,
		now:         time.Now,
	}
}

// EnsureSummary returns the item's latest summary, creating one when none
// exists. Concurrent calls for the same item share one computation.
func (e *Enricher) EnsureSummary(ctx context.Context, itemID string) (Enrichment, error) {
	return e.do(ctx, "ensure:"+itemID, itemID, false)
}

// Regenerate always derives and stores a new summary.
func (e *Enricher) Regenerate(ctx context.Context, itemID string) (Enrichment, error) {
	return e.do(ctx, "regenerate:"+itemID, itemID, true)
}

// do runs the enrichment once per key. The shared work is detached from every
// caller's cancellation; a caller that gives up only stops waiting.
func (e *Enricher) do(ctx context.Context, key, itemID string, force bool) (Enrichment, error) {
	results := e.group.DoChan(key, func() (any, error) {
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enrichTimeout)
		defer cancel()
		return e.enrich(workCtx, itemID, force)
	})

	select {
	case <-ctx.Done():
		slog.Debug("Enrichment caller gone", "item_id", itemID, "error", ctx.Err())
		return Enrichment{}, ctx.Err()
	case result := <-results:
		if result.Err != nil {
			e.metrics.ObserveSummary("error")
			return Enrichment{}, result.Err
		}
		if result.Shared {
			slog.Debug("Enrichment shared with concurrent caller", "item_id", itemID)
		}
		return result.Val.(Enrichment), nil
	}
}

func (e *Enricher) enrich(ctx context.Context, itemID string, force bool) (Enrichment, error) {
	item, err := e.itemRepo.GetItem(ctx, itemID)
	if err != nil {
		return Enrichment{}, err
	}

	if !force {
		existing, err := e.summaryRepo.GetLatestSummary(ctx, itemID)
		if err != nil {
			return Enrichment{}, err
		}
		if existing != nil {
			e.metrics.ObserveSummary("cached")
			return Enrichment{Item: *item, Summary: *existing}, nil
		}
	}

	if item.FullText == "" {
		e.loadFullText(ctx, item)
	}

	settings, err := e.settings.GetActive(ctx)
	if err != nil {
		return Enrichment{}, err
	}

	summary, err := e.summarizer.Summarize(ctx, *item, settings.IncludeKeywords)
	if err != nil {
		return Enrichment{}, fmt.Errorf("failed to summarize item: %w", err)
	}
	summary.ID = database.NewID()
	summary.ItemID = item.ID
	summary.CreatedAt = e.now().UTC()

	if err := e.summaryRepo.CreateSummary(ctx, summary); err != nil {
		return Enrichment{}, err
	}

	stored, err := e.summaryRepo.GetLatestSummary(ctx, item.ID)
	if err != nil {
		return Enrichment{}, err
	}
	if stored != nil {
		summary = *stored
	}

	e.metrics.ObserveSummary("created")
	slog.Info("Summary created", "item_id", item.ID, "model", summary.Model, "full_text", item.FullText != "")

	return Enrichment{Item: *item, Summary: summary}, nil
}

// loadFullText fetches and stores the item's page text. Failures are logged
// and leave the item unchanged.
func (e *Enricher) loadFullText(ctx context.Context, item *database.Item) {
	pageURL, err := url.Parse(item.URL)
	if err != nil {
		slog.Warn("Item has invalid URL", "item_id", item.ID, "url", item.URL, "error", err)
		return
	}

	data, err := e.fetcher.FetchPage(ctx, item.URL)
	if err != nil {
		slog.Warn("Failed to fetch item page", "item_id", item.ID, "url", item.URL, "error", err)
		return
	}

	text, err := e.extractor.Run(data, pageURL)
	if err != nil {
		slog.Warn("Failed to extract item text", "item_id", item.ID, "url", item.URL, "error", err)
		return
	}

	language := item.Language
	if detected, _ := e.language.Detect(text); detected != "" {
		language = detected
	}

	if err := e.itemRepo.UpdateFullText(ctx, item.ID, text, language); err != nil {
		slog.Warn("Failed to store item text", "item_id", item.ID, "error", err)
		return
	}

	item.FullText = text
	item.Language = language
}
