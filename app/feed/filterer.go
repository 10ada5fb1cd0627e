package feed

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

type Filterer struct {
	folder   cases.Caser
	language *LanguageDetector
}

func NewFilterer() *Filterer {
	return &Filterer{
		folder:   cases.Fold(),
		language: NewLanguageDetector(),
	}
}

// Run evaluates every item against rules and keeps the verdict on each candidate.
// Feed order is preserved.
func (f *Filterer) Run(items []RawItem, rules Rules) []Candidate {
	candidates := make([]Candidate, 0, len(items))
	for _, item := range items {
		candidates = append(candidates, Candidate{
			RawItem: item,
			Verdict: f.Evaluate(item.Title, item.Snippet, rules),
		})
	}
	return candidates
}

// Evaluate runs the include, exclude, question and language stages in order.
// The first stage that rejects wins.
func (f *Filterer) Evaluate(title, snippet string, rules Rules) Verdict {
	raw := title + " " + snippet
	text := f.folder.String(raw)
	verdict := Verdict{}

	includes := f.normalize(rules.IncludeKeywords)
	verdict.KeywordHits = f.countHits(text, includes)
	if len(includes) > 0 && verdict.KeywordHits == 0 {
		return f.reject(verdict, StageInclude, "no include keyword matched")
	}

	for _, exclude := range f.normalize(rules.ExcludeKeywords) {
		if strings.Contains(text, exclude) {
			return f.reject(verdict, StageExclude, fmt.Sprintf("contains excluded keyword '%s'", exclude))
		}
	}

	verdict.SignalHits = f.countHits(text, f.normalize(rules.QuestionSignals))
	if !strings.Contains(text, "?") && verdict.SignalHits == 0 {
		return f.reject(verdict, StageQuestion, "no question mark or question signal")
	}

	language, functionWords := f.language.Detect(raw)
	verdict.Language = language
	if rules.LanguageFilter && language != LanguageDutch {
		return f.reject(verdict, StageLanguage, fmt.Sprintf("only %d Dutch function words", functionWords))
	}

	verdict.Accepted = true
	return verdict
}

func (f *Filterer) reject(verdict Verdict, stage Stage, reason string) Verdict {
	verdict.Accepted = false
	verdict.Stage = stage
	verdict.Reason = reason
	return verdict
}

// normalize folds case and drops blanks and duplicates.
func (f *Filterer) normalize(keywords []string) []string {
	normalized := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, keyword := range keywords {
		folded := f.folder.String(strings.TrimSpace(keyword))
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		normalized = append(normalized, folded)
	}
	return normalized
}

func (f *Filterer) countHits(text string, keywords []string) int {
	hits := 0
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			hits++
		}
	}
	return hits
}
