package radar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-radar/app/database"
	"github.com/lysyi3m/rss-radar/app/feed"
)

func TestScanner_FailingSourceDoesNotStopRun(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, SettingsPatch{}, "a", "b", "c")

	env.fetcher.results["a"] = fetchResult{items: []feed.RawItem{question("a", 1)}}
	env.fetcher.results["b"] = fetchResult{err: &feed.FetchError{Source: "b", Kind: feed.FetchUnavailable, StatusCode: 500, Err: errors.New("HTTP error: 500")}}
	env.fetcher.results["c"] = fetchResult{items: []feed.RawItem{question("c", 1)}}

	run, err := env.scanner.Run(context.Background(), TriggerManual)
	require.NoError(t, err)

	require.Equal(t, database.RunStatusPartial, run.Status)
	require.Len(t, run.Errors, 1)
	require.Equal(t, "b", run.Errors[0].Source)
	require.Equal(t, string(feed.FetchUnavailable), run.Errors[0].Kind)
	require.Equal(t, 2, run.ProcessedCount)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, []string{"a", "b", "c"}, env.fetcher.calls)

	urls := itemURLs(listItems(t, env))
	require.True(t, urls["https://example.com/a/1"])
	require.True(t, urls["https://example.com/c/1"])

	stored, err := env.runRepo.GetLastFinishedRun(context.Background())
	require.NoError(t, err)
	require.Equal(t, run.ID, stored.ID)
	require.Equal(t, database.RunStatusPartial, stored.Status)
}

func TestScanner_RerunDoesNotDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, SettingsPatch{}, "a")
	env.fetcher.results["a"] = fetchResult{items: []feed.RawItem{question("a", 1), question("a", 2)}}

	first, err := env.scanner.Run(context.Background(), TriggerSchedule)
	require.NoError(t, err)
	require.Equal(t, database.RunStatusOK, first.Status)
	require.Equal(t, 2, first.ProcessedCount)

	second, err := env.scanner.Run(context.Background(), TriggerSchedule)
	require.NoError(t, err)
	require.Equal(t, database.RunStatusOK, second.Status)
	require.Zero(t, second.ProcessedCount)
	require.Equal(t, 2, second.DuplicateCount)

	require.Len(t, listItems(t, env), 2)
}

func TestScanner_RunCapFollowsSourceOrder(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, SettingsPatch{MaxItemsPerRun: 3}, "a", "b", "c")

	env.fetcher.results["a"] = fetchResult{items: []feed.RawItem{question("a", 1), question("a", 2)}}
	env.fetcher.results["b"] = fetchResult{items: []feed.RawItem{question("b", 1), question("b", 2)}}
	env.fetcher.results["c"] = fetchResult{items: []feed.RawItem{question("c", 1)}}

	run, err := env.scanner.Run(context.Background(), TriggerManual)
	require.NoError(t, err)
	require.Equal(t, 3, run.ProcessedCount)
	require.Equal(t, []string{"a", "b"}, env.fetcher.calls, "run stops once the cap is reached")

	urls := itemURLs(listItems(t, env))
	require.Len(t, urls, 3)
	require.True(t, urls["https://example.com/a/1"])
	require.True(t, urls["https://example.com/a/2"])
	require.True(t, urls["https://example.com/b/1"])
}

func TestScanner_PerSourceLimitAndRejections(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, SettingsPatch{MaxItemsPerSource: 2, IncludeKeywords: []string{"dakkapel"}}, "a")

	relevant := question("a", 1)
	relevant.Title = "Dakkapel zonder vergunning?"
	tooLate := question("a", 3)
	tooLate.Title = "Nog een dakkapel?"
	env.fetcher.results["a"] = fetchResult{items: []feed.RawItem{relevant, question("a", 2), tooLate}}

	run, err := env.scanner.Run(context.Background(), TriggerManual)
	require.NoError(t, err)
	require.Equal(t, 1, run.ProcessedCount)
	require.Equal(t, 1, run.RejectedCount)

	items := listItems(t, env)
	require.Len(t, items, 1)
	require.Equal(t, relevant.URL, items[0].URL)
	require.Equal(t, database.StatusNew, items[0].Status)
	require.Equal(t, testNow, items[0].FetchedAt.UTC())
	require.Greater(t, items[0].Score, 0)
}

func TestScanner_RateLimitBacksOff(t *testing.T) {
	env := newTestEnv(t)
	polite := true
	env.configure(t, SettingsPatch{PoliteModeEnabled: &polite, BackoffSeconds: 90, JitterSeconds: 2}, "a", "b")

	env.fetcher.results["a"] = fetchResult{err: &feed.FetchError{Source: "a", Kind: feed.FetchRateLimited, StatusCode: 429, Err: errors.New("rate limited")}}
	env.fetcher.results["b"] = fetchResult{items: []feed.RawItem{question("b", 1)}}

	run, err := env.scanner.Run(context.Background(), TriggerManual)
	require.NoError(t, err)

	require.True(t, run.RateLimited)
	require.Equal(t, database.RunStatusOK, run.Status)
	require.Empty(t, run.Errors)
	require.Equal(t, 1, run.ProcessedCount)

	// backoff after "a", then one jitter pause between "a" and "b"
	require.Len(t, env.pauser.pauses, 2)
	require.Equal(t, 90*time.Second, env.pauser.pauses[0])
	require.LessOrEqual(t, env.pauser.pauses[1], 2*time.Second)
	require.GreaterOrEqual(t, env.pauser.pauses[1], time.Duration(0))
}

func TestScanner_ImpoliteModeSkipsPauses(t *testing.T) {
	env := newTestEnv(t)
	polite := false
	env.configure(t, SettingsPatch{PoliteModeEnabled: &polite, BackoffSeconds: 90, JitterSeconds: 5}, "a", "b")

	env.fetcher.results["a"] = fetchResult{err: &feed.FetchError{Source: "a", Kind: feed.FetchRateLimited, StatusCode: 429, Err: errors.New("rate limited")}}

	run, err := env.scanner.Run(context.Background(), TriggerManual)
	require.NoError(t, err)
	require.True(t, run.RateLimited)

	for _, pause := range env.pauser.pauses {
		require.Zero(t, pause)
	}
}

func TestScanner_ConfigurationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.scanner.settings = failingSettings{}

	run, err := env.scanner.Run(context.Background(), TriggerSchedule)
	require.NoError(t, err)

	require.Equal(t, database.RunStatusError, run.Status)
	require.Len(t, run.Errors, 1)
	require.Equal(t, "configuration", run.Errors[0].Kind)
	require.Empty(t, run.Errors[0].Source)
	require.Empty(t, env.fetcher.calls)
	require.Empty(t, listItems(t, env))
}

func TestScanner_RejectsConcurrentRun(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, SettingsPatch{}, "slow")

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := &blockingFetcher{started: started, release: release}
	env.scanner.fetcher = blocking

	done := make(chan error, 1)
	go func() {
		_, err := env.scanner.Run(context.Background(), TriggerSchedule)
		done <- err
	}()

	<-started
	require.True(t, env.scanner.IsRunning())

	_, err := env.scanner.Run(context.Background(), TriggerManual)
	require.ErrorIs(t, err, ErrScanInProgress)

	close(release)
	require.NoError(t, <-done)
	require.False(t, env.scanner.IsRunning())
}

func TestScanner_RecoversFromSourcePanic(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, SettingsPatch{}, "a", "b")

	env.fetcher.results["a"] = fetchResult{panic: true}
	env.fetcher.results["b"] = fetchResult{items: []feed.RawItem{question("b", 1)}}

	run, err := env.scanner.Run(context.Background(), TriggerManual)
	require.NoError(t, err)

	require.Equal(t, database.RunStatusPartial, run.Status)
	require.Len(t, run.Errors, 1)
	require.Equal(t, "panic", run.Errors[0].Kind)
	require.Equal(t, 1, run.ProcessedCount)
}

func TestScanner_NotifiesHighScoringItems(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t, SettingsPatch{NotificationScoreThreshold: 40}, "a")

	fresh := question("a", 0)
	stale := question("a", 1)
	stale.URL = "https://example.com/a/stale"
	stale.PublishedAt = testNow.Add(-48 * time.Hour)
	env.fetcher.results["a"] = fetchResult{items: []feed.RawItem{fresh, stale}}

	_, err := env.scanner.Run(context.Background(), TriggerManual)
	require.NoError(t, err)

	require.Len(t, env.notifier.items, 1)
	require.Equal(t, fresh.URL, env.notifier.items[0].URL)
	require.NotEmpty(t, env.notifier.items[0].ID)
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) Fetch(ctx context.Context, source database.Source) ([]feed.RawItem, error) {
	f.once.Do(func() { close(f.started) })
	<-f.release
	return nil, nil
}
