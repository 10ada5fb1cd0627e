package feed

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxFreshness   = 40
	maxKeyword     = 30
	maxSignal      = 20
	maxLengthBonus = 10
)

// Breakdown lists the components a score was built from.
type Breakdown struct {
	Freshness   int
	Keywords    int
	Signals     int
	LengthBonus int
}

func (b Breakdown) Total() int {
	return clamp(b.Freshness+b.Keywords+b.Signals+b.LengthBonus, 0, 100)
}

type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

func (s *Scorer) Score(item RawItem, verdict Verdict, now time.Time) int {
	return s.Breakdown(item, verdict, now).Total()
}

func (s *Scorer) Breakdown(item RawItem, verdict Verdict, now time.Time) Breakdown {
	ageMinutes := 0
	if !item.PublishedAt.IsZero() && now.After(item.PublishedAt) {
		ageMinutes = int(now.Sub(item.PublishedAt) / time.Minute)
	}

	titleQuestion := 0
	if strings.Contains(item.Title, "?") {
		titleQuestion = 5
	}

	length := utf8.RuneCountInString(item.Title) + utf8.RuneCountInString(item.Snippet)

	return Breakdown{
		Freshness:   clamp(maxFreshness-ageMinutes/10, 0, maxFreshness),
		Keywords:    min(maxKeyword, verdict.KeywordHits*6),
		Signals:     min(maxSignal, verdict.SignalHits*5+titleQuestion),
		LengthBonus: min(maxLengthBonus, length/80),
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
