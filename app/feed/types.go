package feed

import (
	"errors"
	"fmt"
	"time"
)

// RawItem is one entry of a fetched feed before filtering.
type RawItem struct {
	GUID        string
	Title       string
	URL         string
	PublishedAt time.Time
	Snippet     string
}

// Candidate is a raw item together with the filter verdict it received.
type Candidate struct {
	RawItem
	Verdict Verdict
}

type Stage string

const (
	StageInclude  Stage = "include"
	StageExclude  Stage = "exclude"
	StageQuestion Stage = "question"
	StageLanguage Stage = "language"
)

type Verdict struct {
	Accepted    bool
	Stage       Stage // stage that rejected the item, empty when accepted
	Reason      string
	KeywordHits int
	SignalHits  int
	Language    string
}

// Rules is the filter configuration applied to every candidate of a run.
type Rules struct {
	IncludeKeywords []string
	ExcludeKeywords []string
	QuestionSignals []string
	LanguageFilter  bool
}

type FetchErrorKind string

const (
	FetchRateLimited FetchErrorKind = "rate_limited"
	FetchUnavailable FetchErrorKind = "unavailable"
	FetchMalformed   FetchErrorKind = "malformed"
)

// FetchError describes why a source could not be read during a run.
type FetchError struct {
	Source     string
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %v", e.Source, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a FetchError caused by upstream throttling.
func IsRateLimited(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr) && fetchErr.Kind == FetchRateLimited
}

// SourceConfig is one entry of the sources file.
type SourceConfig struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled"`
}

func (c SourceConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
