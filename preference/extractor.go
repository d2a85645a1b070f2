package preference

import (
	"regexp"
	"strings"

	"github.com/becomeliminal/travel-memory/core"
)

// Extractor matches text against a compiled rule table.
type Extractor struct {
	matchers []matcher
}

type matcher struct {
	category core.Category
	value    string
	re       *regexp.Regexp
}

// NewExtractor compiles rules. A nil or empty table selects DefaultRules.
func NewExtractor(rules []Rule) *Extractor {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	e := &Extractor{}
	for _, rule := range rules {
		for _, term := range rule.Terms {
			e.matchers = append(e.matchers, matcher{
				category: rule.Category,
				value:    term,
				re:       compileTerm(term),
			})
		}
	}
	return e
}

// wordEdge matches a rune that cannot be part of a word. RE2's \b is
// ASCII-only and finds no boundary after the "á" in "Bogotá".
const wordEdge = `[^\p{L}\p{N}_]`

// compileTerm builds a case-insensitive word-boundary pattern. Words inside
// a multi-word term may be separated by any run of whitespace.
func compileTerm(term string) *regexp.Regexp {
	words := strings.Fields(term)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)(?:^|` + wordEdge + `)` + strings.Join(words, `\s+`) + `(?:$|` + wordEdge + `)`)
}

// Extract returns the preferences mentioned in text. Nothing matching
// yields an empty delta.
func (e *Extractor) Extract(text string) core.PreferenceDelta {
	delta := core.PreferenceDelta{}
	if strings.TrimSpace(text) == "" {
		return delta
	}
	for _, m := range e.matchers {
		if m.re.MatchString(text) {
			delta.Add(m.category, m.value)
		}
	}
	return delta
}
