package resolution

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// EmptyNameSentinel is the bucket for names with nothing left after normalization
const EmptyNameSentinel = "_empty_"

// qualifierTokens are dropped as whole words; they describe packaging, not identity.
var qualifierTokens = map[string]struct{}{
	"crm":         {},
	"erp":         {},
	"365":         {},
	"cloud":       {},
	"suite":       {},
	"online":      {},
	"platform":    {},
	"software":    {},
	"system":      {},
	"systems":     {},
	"saas":        {},
	"app":         {},
	"application": {},
	"inc":         {},
	"ltd":         {},
	"llc":         {},
	"corp":        {},
}

// Normalize reduces a free-text item name to its canonical comparable form.
// It never fails: blank input, or input made only of qualifiers and punctuation,
// yields EmptyNameSentinel.
func Normalize(name string) string {
	folded := foldAccents(name)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '_', r == '.', r == ',', r == '&', r == '+':
			// separators split words
			b.WriteByte(' ')
		default:
			// other punctuation is dropped without splitting: "S/4HANA" -> "s4hana"
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if _, drop := qualifierTokens[w]; drop {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return EmptyNameSentinel
	}
	return strings.Join(kept, " ")
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
