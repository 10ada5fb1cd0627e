package radar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-radar/app/database"
	"github.com/lysyi3m/rss-radar/app/feed"
)

const articlePage = `<!DOCTYPE html>
<html>
<head><title>Schuur op de erfgrens</title></head>
<body>
<article>
	<h1>Schuur op de erfgrens</h1>
	<p>Mijn buurman wil een schuur van drie meter hoog op de erfgrens bouwen. Hij zegt dat er geen vergunning nodig is omdat het vergunningvrij bouwen is.</p>
	<p>Klopt het dat dit zonder vergunning mag? Ik ben bang dat de gemeente een boete gaat geven als het toch niet mag.</p>
	<p>Wie heeft hier ervaring mee en kan ik bezwaar maken bij de gemeente? Wat zijn de regels voor de hoogte van een bijgebouw bij de erfgrens?</p>
</article>
</body>
</html>`

func newTestEnricher(t *testing.T, env *testEnv, handler http.HandlerFunc) (*Enricher, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	fetcher := feed.NewFetcher(server.Client(), feed.NewParser(), "rss-radar-test", 2*time.Second, "")
	enricher := NewEnricher(env.itemRepo, env.summaryRepo, env.settings, fetcher, feed.NewContentExtractor(), nil, nil)
	return enricher, server
}

func insertItem(t *testing.T, env *testEnv, url string) string {
	t.Helper()

	result, id, err := env.itemRepo.UpsertItem(context.Background(), database.Item{
		ExternalKey: url,
		Source:      "klussen",
		Title:       "Schuur op de erfgrens, mag dat?",
		URL:         url,
		CreatedAt:   testNow,
		FetchedAt:   testNow,
		Snippet:     "Mijn buurman bouwt een schuur op de erfgrens.",
		Score:       60,
	})
	require.NoError(t, err)
	require.Equal(t, database.UpsertInserted, result)
	return id
}

func countSummaries(t *testing.T, env *testEnv, itemID string) int {
	t.Helper()
	var count int
	err := env.db.QueryRow(`SELECT COUNT(*) FROM summaries WHERE item_id = ?`, itemID).Scan(&count)
	require.NoError(t, err)
	return count
}

func TestEnricher_EnsureSummaryIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	var hits atomic.Int32
	enricher, server := newTestEnricher(t, env, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articlePage))
	})
	itemID := insertItem(t, env, server.URL+"/post/1")

	first, err := enricher.EnsureSummary(context.Background(), itemID)
	require.NoError(t, err)
	require.NotEmpty(t, first.Item.FullText)
	require.Equal(t, HeuristicModel, first.Summary.Model)
	require.Equal(t, "Schuur op de erfgrens, mag dat?", first.Summary.CoreQuestion)

	second, err := enricher.EnsureSummary(context.Background(), itemID)
	require.NoError(t, err)
	require.Equal(t, first.Summary.ID, second.Summary.ID)
	require.True(t, first.Summary.CreatedAt.Equal(second.Summary.CreatedAt))
	require.Equal(t, int32(1), hits.Load(), "page is fetched once")
	require.Equal(t, 1, countSummaries(t, env, itemID))

	stored, err := env.itemRepo.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	require.Equal(t, first.Item.FullText, stored.FullText)
	require.Equal(t, feed.LanguageDutch, stored.Language)
}

func TestEnricher_FetchFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	enricher, server := newTestEnricher(t, env, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	itemID := insertItem(t, env, server.URL+"/gone")

	result, err := enricher.EnsureSummary(context.Background(), itemID)
	require.NoError(t, err)
	require.Empty(t, result.Item.FullText)
	require.Equal(t, "Mijn buurman bouwt een schuur op de erfgrens.", result.Summary.Summary)

	stored, err := env.itemRepo.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	require.Empty(t, stored.FullText)
}

func TestEnricher_RegenerateAppends(t *testing.T) {
	env := newTestEnv(t)
	enricher, server := newTestEnricher(t, env, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articlePage))
	})
	itemID := insertItem(t, env, server.URL+"/post/2")

	first, err := enricher.EnsureSummary(context.Background(), itemID)
	require.NoError(t, err)

	enricher.now = func() time.Time { return time.Now().Add(time.Minute) }
	regenerated, err := enricher.Regenerate(context.Background(), itemID)
	require.NoError(t, err)
	require.NotEqual(t, first.Summary.ID, regenerated.Summary.ID)
	require.Equal(t, 2, countSummaries(t, env, itemID))

	latest, err := enricher.EnsureSummary(context.Background(), itemID)
	require.NoError(t, err)
	require.Equal(t, regenerated.Summary.ID, latest.Summary.ID)
}

func TestEnricher_ConcurrentCallsShareWork(t *testing.T) {
	env := newTestEnv(t)
	release := make(chan struct{})
	enricher, server := newTestEnricher(t, env, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articlePage))
	})
	itemID := insertItem(t, env, server.URL+"/post/3")

	var wg sync.WaitGroup
	results := make([]Enrichment, 5)
	errs := make([]error, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = enricher.EnsureSummary(context.Background(), itemID)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, results[0].Summary.ID, results[i].Summary.ID)
	}
	require.Equal(t, 1, countSummaries(t, env, itemID))
}

func TestEnricher_CancelledCallerDoesNotFailOthers(t *testing.T) {
	env := newTestEnv(t)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	enricher, server := newTestEnricher(t, env, func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articlePage))
	})
	itemID := insertItem(t, env, server.URL+"/post/4")

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := enricher.EnsureSummary(ctxA, itemID)
		errA <- err
	}()
	<-started

	type outcome struct {
		result Enrichment
		err    error
	}
	doneB := make(chan outcome, 1)
	go func() {
		result, err := enricher.EnsureSummary(context.Background(), itemID)
		doneB <- outcome{result, err}
	}()

	time.Sleep(50 * time.Millisecond)
	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	b := <-doneB
	require.NoError(t, b.err)
	require.NotEmpty(t, b.result.Item.FullText)
	require.Equal(t, HeuristicModel, b.result.Summary.Model)
	require.Equal(t, 1, countSummaries(t, env, itemID))
}

func TestEnricher_UnknownItem(t *testing.T) {
	env := newTestEnv(t)
	enricher, _ := newTestEnricher(t, env, func(w http.ResponseWriter, r *http.Request) {})

	_, err := enricher.EnsureSummary(context.Background(), "missing")
	require.ErrorIs(t, err, database.ErrNotFound)
}
