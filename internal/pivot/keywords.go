package pivot

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true, "by": true,
	"for": true, "from": true, "in": true, "into": true, "is": true, "it": true, "its": true, "of": true,
	"on": true, "or": true, "our": true, "so": true, "that": true, "the": true, "this": true, "to": true,
	"we": true, "with": true, "will": true, "all": true, "more": true, "less": true, "than": true,
	"new": true, "old": true, "add": true, "build": true, "create": true, "implement": true,
	"make": true, "support": true, "update": true, "use": true, "using": true, "via": true,
	"focus": true, "move": true, "switch": true, "instead": true, "away": true,
}

// Keywords returns the distinct content words of text, lowercased and
// singularised, in order of first appearance.
func Keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		f = singular(f)
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func singular(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us"):
		return w[:len(w)-1]
	default:
		return w
	}
}

// overlap counts words present in both sets.
func overlap(words []string, set map[string]bool) []string {
	var out []string
	for _, w := range words {
		if set[w] {
			out = append(out, w)
		}
	}
	return out
}

func toSet(words []string) map[string]bool {
	s := make(map[string]bool, len(words))
	for _, w := range words {
		s[w] = true
	}
	return s
}
