package radar

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-radar/app/database"
	"github.com/lysyi3m/rss-radar/app/feed"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fetchResult struct {
	items []feed.RawItem
	err   error
	panic bool
}

type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]fetchResult
	calls   []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, source database.Source) ([]feed.RawItem, error) {
	f.mu.Lock()
	f.calls = append(f.calls, source.Name)
	result := f.results[source.Name]
	f.mu.Unlock()

	if result.panic {
		panic("parser exploded")
	}
	return result.items, result.err
}

type recordingPauser struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (p *recordingPauser) Pause(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses = append(p.pauses, d)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []database.Item
}

func (n *recordingNotifier) Notify(ctx context.Context, item database.Item) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, item)
	return nil
}

type failingSettings struct{}

func (failingSettings) GetActive(ctx context.Context) (database.Settings, error) {
	return database.Settings{}, fmt.Errorf("database is locked")
}

type testEnv struct {
	db          *database.DB
	sourceRepo  *database.SQLSourceRepository
	itemRepo    *database.SQLItemRepository
	runRepo     *database.SQLRunRepository
	summaryRepo *database.SQLSummaryRepository
	settings    *SettingsService
	fetcher     *fakeFetcher
	pauser      *recordingPauser
	notifier    *recordingNotifier
	scanner     *Scanner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "radar.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:          db,
		sourceRepo:  database.NewSourceRepository(db),
		itemRepo:    database.NewItemRepository(db),
		runRepo:     database.NewRunRepository(db),
		summaryRepo: database.NewSummaryRepository(db),
		fetcher:     &fakeFetcher{results: map[string]fetchResult{}},
		pauser:      &recordingPauser{},
		notifier:    &recordingNotifier{},
	}
	env.settings = NewSettingsService(database.NewSettingsRepository(db), env.sourceRepo)
	env.scanner = NewScanner(env.settings, env.sourceRepo, env.itemRepo, env.runRepo, env.fetcher,
		feed.NewFilterer(), feed.NewScorer(), env.notifier, env.pauser, nil)
	env.scanner.now = func() time.Time { return testNow }

	return env
}

// configure stores permissive filter settings and the given enabled sources.
func (env *testEnv) configure(t *testing.T, patch SettingsPatch, sources ...string) {
	t.Helper()

	off := false
	if patch.IncludeKeywords == nil {
		patch.IncludeKeywords = []string{}
	}
	if patch.ExcludeKeywords == nil {
		patch.ExcludeKeywords = []string{}
	}
	if patch.QuestionSignals == nil {
		patch.QuestionSignals = []string{}
	}
	if patch.LanguageFilterEnabled == nil {
		patch.LanguageFilterEnabled = &off
	}
	patch.Sources = make([]SourceInput, 0, len(sources))
	for _, name := range sources {
		patch.Sources = append(patch.Sources, SourceInput{Name: name})
	}

	_, _, err := env.settings.Update(context.Background(), patch)
	require.NoError(t, err)
}

func question(source string, n int) feed.RawItem {
	return feed.RawItem{
		GUID:        fmt.Sprintf("%s-%d", source, n),
		Title:       fmt.Sprintf("Vraag %d uit %s?", n, source),
		URL:         fmt.Sprintf("https://example.com/%s/%d", source, n),
		PublishedAt: testNow.Add(-time.Duration(n) * time.Minute),
		Snippet:     "Weet iemand hoe dit zit?",
	}
}

func listItems(t *testing.T, env *testEnv) []database.Item {
	t.Helper()
	items, err := env.itemRepo.ListItems(context.Background(), database.ItemQuery{})
	require.NoError(t, err)
	return items
}

func itemURLs(items []database.Item) map[string]bool {
	urls := make(map[string]bool, len(items))
	for _, item := range items {
		urls[item.URL] = true
	}
	return urls
}
