package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

const maxSnippetRunes = 1000

type Parser struct {
	gofeedParser *gofeed.Parser
	stripPolicy  *bluemonday.Policy
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
		stripPolicy:  bluemonday.StripTagsPolicy(),
	}
}

// Run parses an RSS, Atom or JSON feed document. Entries without a link are
// not actionable and are dropped here.
func (p *Parser) Run(data []byte) ([]RawItem, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]RawItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		normalized := p.normalizeItem(item)
		if normalized.URL == "" {
			continue
		}
		items = append(items, normalized)
	}

	return items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) RawItem {
	link := strings.TrimSpace(item.Link)
	normalized := RawItem{
		GUID:    cmp.Or(strings.TrimSpace(item.GUID), link),
		Title:   collapseWhitespace(html.UnescapeString(item.Title)),
		URL:     link,
		Snippet: p.snippet(cmp.Or(item.Description, item.Content)),
	}

	if item.PublishedParsed != nil {
		normalized.PublishedAt = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		normalized.PublishedAt = item.UpdatedParsed.UTC()
	}

	return normalized
}

func (p *Parser) snippet(raw string) string {
	if raw == "" {
		return ""
	}
	text := collapseWhitespace(html.UnescapeString(p.stripPolicy.Sanitize(raw)))
	return truncateRunes(text, maxSnippetRunes)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
