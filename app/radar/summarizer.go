package radar

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lysyi3m/rss-radar/app/database"
)

const (
	HeuristicModel = "heuristic-v1"

	maxSummaryRunes     = 400
	maxSummarySentences = 3
	maxListEntries      = 3
)

var riskWords = []string{
	"boete", "risico", "verboden", "aansprakelijk", "handhaving", "illegaal",
	"illegal", "fine", "risk", "liable",
}

// Summarizer derives a summary from an item and the keywords it was matched on.
type Summarizer interface {
	Summarize(ctx context.Context, item database.Item, keywords []string) (database.Summary, error)
}

// HeuristicSummarizer builds summaries from the item's own sentences.
// The same input always yields the same output.
type HeuristicSummarizer struct{}

func NewHeuristicSummarizer() *HeuristicSummarizer {
	return &HeuristicSummarizer{}
}

func (h *HeuristicSummarizer) Summarize(ctx context.Context, item database.Item, keywords []string) (database.Summary, error) {
	body := item.FullText
	if body == "" {
		body = item.Snippet
	}
	sentences := splitSentences(body)

	questions := make([]string, 0)
	for _, sentence := range append(splitSentences(item.Title), sentences...) {
		if strings.HasSuffix(sentence, "?") {
			questions = append(questions, sentence)
		}
	}

	coreQuestion := strings.TrimSpace(item.Title)
	if len(questions) > 0 {
		coreQuestion = questions[0]
	}

	return database.Summary{
		ItemID:        item.ID,
		Summary:       leadSummary(item.Title, sentences),
		CoreQuestion:  coreQuestion,
		Risks:         matching(sentences, riskWords),
		TalkingPoints: matching(sentences, keywords),
		Followups:     followups(questions, coreQuestion),
		Model:         HeuristicModel,
	}, nil
}

func leadSummary(title string, sentences []string) string {
	if len(sentences) == 0 {
		return strings.TrimSpace(title)
	}

	var b strings.Builder
	for i, sentence := range sentences {
		if i == maxSummarySentences {
			break
		}
		next := utf8.RuneCountInString(sentence)
		if b.Len() > 0 && utf8.RuneCountInString(b.String())+1+next > maxSummaryRunes {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sentence)
	}

	summary := b.String()
	if utf8.RuneCountInString(summary) > maxSummaryRunes {
		summary = string([]rune(summary)[:maxSummaryRunes-1]) + "…"
	}
	return summary
}

// matching returns up to maxListEntries sentences containing any of words.
func matching(sentences []string, words []string) []string {
	result := make([]string, 0, maxListEntries)
	for _, sentence := range sentences {
		if len(result) == maxListEntries {
			break
		}
		lower := strings.ToLower(sentence)
		for _, word := range words {
			word = strings.ToLower(strings.TrimSpace(word))
			if word != "" && strings.Contains(lower, word) {
				result = append(result, sentence)
				break
			}
		}
	}
	return result
}

func followups(questions []string, coreQuestion string) []string {
	result := make([]string, 0, maxListEntries)
	seen := map[string]struct{}{coreQuestion: {}}
	for _, question := range questions {
		if len(result) == maxListEntries {
			break
		}
		if _, ok := seen[question]; ok {
			continue
		}
		seen[question] = struct{}{}
		result = append(result, question)
	}
	return result
}

// splitSentences breaks text after '.', '!' or '?' when followed by
// whitespace or the end of the text.
func splitSentences(text string) []string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	sentences := make([]string, 0)
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if sentence := strings.TrimSpace(string(runes[start : i+1])); sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
