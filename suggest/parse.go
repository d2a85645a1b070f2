package suggest

import (
	"regexp"
	"strings"
)

// marker matches list numbering and bullets at the start of a line:
// "1.", "2)", "(3)", "-", "*", "•", "Q1:". Bare numbers must be followed by
// whitespace so that "10:30" or "1.5" stay intact.
var marker = regexp.MustCompile(`^(?:\(?\d{1,2}[.):](?:\s+|$)|[-*•+>]\s*|[Qq]\d{1,2}[.):]\s*)`)

// maxLength drops runaway lines that are not questions.
const maxLength = 200

// Parse splits a completion into suggestions: one per line, stripped of
// numbering, bullets, emphasis and quotes. Blank lines, headings ending in
// a colon and case-insensitive repeats are skipped. When any line is a
// question, lines that are not are dropped as preamble. At most limit are
// returned; the result is never nil.
func Parse(text string, limit int) []string {
	var candidates []string
	questions := false
	for _, line := range strings.Split(text, "\n") {
		s := clean(line)
		if s == "" || strings.HasSuffix(s, ":") || len(s) > maxLength {
			continue
		}
		candidates = append(candidates, s)
		questions = questions || strings.Contains(s, "?")
	}

	out := []string{}
	seen := make(map[string]bool)
	for _, s := range candidates {
		if len(out) >= limit {
			break
		}
		if questions && !strings.Contains(s, "?") {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func clean(line string) string {
	s := strings.TrimSpace(line)
	for {
		stripped := strings.TrimSpace(marker.ReplaceAllString(s, ""))
		if stripped == s {
			break
		}
		s = stripped
	}
	s = strings.ReplaceAll(s, "**", "")
	s = strings.Trim(s, "\"'`“”")
	return strings.TrimSpace(s)
}
