package feed

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	LanguageDutch = "nl"

	minDutchFunctionWords = 2
)

// Words that are frequent in Dutch prose and rare in English, so a couple of
// hits are enough to tell the two apart.
var dutchFunctionWords = map[string]struct{}{
	"de": {}, "het": {}, "een": {}, "en": {}, "van": {}, "dat": {}, "op": {},
	"te": {}, "voor": {}, "met": {}, "niet": {}, "zijn": {}, "er": {}, "maar": {},
	"om": {}, "ook": {}, "als": {}, "bij": {}, "aan": {}, "nog": {}, "wel": {},
	"naar": {}, "dan": {}, "wat": {}, "hoe": {}, "kan": {}, "heb": {}, "ik": {},
	"je": {}, "jij": {}, "wij": {}, "mijn": {}, "geen": {}, "deze": {}, "dit": {},
	"wordt": {}, "moet": {}, "mag": {}, "kunnen": {}, "waar": {}, "waarom": {},
	"welke": {}, "iemand": {}, "weet": {}, "heeft": {}, "hebben": {}, "zou": {},
	"omdat": {}, "jullie": {}, "onze": {}, "hier": {}, "daar": {},
}

type LanguageDetector struct {
	folder cases.Caser
}

func NewLanguageDetector() *LanguageDetector {
	return &LanguageDetector{folder: cases.Fold()}
}

// Detect returns LanguageDutch when the text holds enough Dutch function words,
// an empty string otherwise, together with the number of function words found.
func (d *LanguageDetector) Detect(text string) (string, int) {
	hits := 0
	for _, token := range d.tokenize(text) {
		if _, ok := dutchFunctionWords[token]; ok {
			hits++
		}
	}
	if hits >= minDutchFunctionWords {
		return LanguageDutch, hits
	}
	return "", hits
}

func (d *LanguageDetector) tokenize(text string) []string {
	folded := d.folder.String(removeAccents(text))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}
