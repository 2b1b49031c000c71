package gateway

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"chatgate/internal/domain"
)

// reexplainPhrases are matched against the accent-folded, lower-cased text.
var reexplainPhrases = []string{
	"explicalo en espanol",
	"explicamelo en espanol",
	"explica en espanol",
	"explicame en espanol",
	"en espanol por favor",
	"repitelo en espanol",
	"traducelo",
	"no entendi",
	"explain in spanish",
	"explain it in spanish",
	"in spanish please",
}

const maxTrailingWords = 3

// Classify decides the request kind of an already mention-stripped text.
// Anything that is not a request to re-explain the previous answer is a
// new question.
func Classify(text string) domain.RequestKind {
	folded := fold(text)
	if folded == "" {
		return domain.KindNewQuestion
	}
	for _, phrase := range reexplainPhrases {
		rest, ok := strings.CutPrefix(folded, phrase)
		// A short tail ("por favor", "gracias") still counts; a longer one
		// is a real question that happens to start with the phrase.
		if ok && (rest == "" || rest[0] == ' ') && len(strings.Fields(rest)) <= maxTrailingWords {
			return domain.KindReexplainPrevious
		}
	}
	return domain.KindNewQuestion
}

// fold lower-cases, strips diacritics and punctuation, and collapses spaces.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	out = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			return r
		case r == '\n' || r == '\t':
			return ' '
		default:
			return -1
		}
	}, out)
	return strings.Join(strings.Fields(out), " ")
}
