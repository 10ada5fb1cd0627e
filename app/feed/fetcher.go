package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/rss-radar/app/database"
)

const (
	DefaultFeedURLTemplate = "https://www.reddit.com/r/%s/new/.rss"

	maxBodyBytes = 10 << 20
)

// Fetcher retrieves feeds and article pages over HTTP.
type Fetcher struct {
	httpClient  *http.Client
	parser      *Parser
	userAgent   string
	timeout     time.Duration
	urlTemplate string
	now         func() time.Time
}

func NewFetcher(httpClient *http.Client, parser *Parser, userAgent string, timeout time.Duration, urlTemplate string) *Fetcher {
	if urlTemplate == "" {
		urlTemplate = DefaultFeedURLTemplate
	}
	return &Fetcher{
		httpClient:  httpClient,
		parser:      parser,
		userAgent:   userAgent,
		timeout:     timeout,
		urlTemplate: urlTemplate,
		now:         time.Now,
	}
}

// FeedURL returns the source's own URL, or the template applied to its name.
func (f *Fetcher) FeedURL(source database.Source) string {
	if source.URL != "" {
		return source.URL
	}
	return fmt.Sprintf(f.urlTemplate, source.Name)
}

// Fetch downloads and parses one source feed. Every failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, source database.Source) ([]RawItem, error) {
	feedURL := f.FeedURL(source)

	resp, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, &FetchError{Source: source.Name, Kind: FetchUnavailable, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &FetchError{Source: source.Name, Kind: FetchRateLimited, StatusCode: resp.StatusCode, Err: retryAfterError(resp)}
	case resp.StatusCode == http.StatusServiceUnavailable && resp.Header.Get("Retry-After") != "":
		return nil, &FetchError{Source: source.Name, Kind: FetchRateLimited, StatusCode: resp.StatusCode, Err: retryAfterError(resp)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &FetchError{Source: source.Name, Kind: FetchUnavailable, StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP error: %s", resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Source: source.Name, Kind: FetchUnavailable, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	items, err := f.parser.Run(data)
	if err != nil {
		return nil, &FetchError{Source: source.Name, Kind: FetchMalformed, StatusCode: resp.StatusCode, Err: err}
	}

	fetchedAt := f.now().UTC()
	for i := range items {
		if items[i].PublishedAt.IsZero() {
			items[i].PublishedAt = fetchedAt
		}
	}

	slog.Debug("Feed fetched", "source", source.Name, "url", feedURL, "items", len(items))
	return items, nil
}

// FetchPage downloads an HTML page for full-text extraction.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	resp, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, fmt.Errorf("content type is not HTML: %s", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

// get returns a response whose body stays readable until closed; the timeout
// covers the whole exchange including the body read.
func (f *Fetcher) get(ctx context.Context, target string) (*http.Response, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func retryAfterError(resp *http.Response) error {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		return fmt.Errorf("rate limited, retry after %s", retryAfter)
	}
	return errors.New("rate limited")
}
