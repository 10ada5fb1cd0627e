package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"html"
	"log/slog"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const maxFullTextRunes = 20000

type ContentExtractor struct {
	stripPolicy *bluemonday.Policy
}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{stripPolicy: bluemonday.StripTagsPolicy()}
}

// Run extracts the readable text of an HTML page. Readability is tried first,
// then the page's meta description, then the whole document stripped of tags.
func (e *ContentExtractor) Run(data []byte, pageURL *url.URL) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}
	if pageURL == nil {
		pageURL = &url.URL{Scheme: "http", Host: "localhost", Path: "/"}
	}

	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		slog.Debug("Readability extraction failed", "url", pageURL.String(), "error", err)
	} else if text := collapseWhitespace(article.TextContent); text != "" {
		slog.Debug("Content extracted successfully",
			"title", article.Title,
			"content_length", len(text))
		return truncateRunes(text, maxFullTextRunes), nil
	}

	if description := e.metaDescription(data); description != "" {
		return truncateRunes(description, maxFullTextRunes), nil
	}

	text := collapseWhitespace(html.UnescapeString(e.stripPolicy.Sanitize(string(data))))
	if text == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	return truncateRunes(text, maxFullTextRunes), nil
}

func (e *ContentExtractor) metaDescription(data []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	description := cmp.Or(
		doc.Find(`meta[name="description"]`).AttrOr("content", ""),
		doc.Find(`meta[property="og:description"]`).AttrOr("content", ""),
	)
	return collapseWhitespace(description)
}
