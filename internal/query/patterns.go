package query

import (
	"regexp"
	"strings"
)

// Section and chapter reference patterns. Zimbabwean statutes cite sections
// as "section 12C" / "s. 12C" / "sec. 12C" and chapters as "Chapter 28:01".
var (
	sectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bsection\s+(\d+[a-z]?)\b`),
		regexp.MustCompile(`\bsec\.?\s*(\d+[a-z]?)\b`),
		regexp.MustCompile(`\bs\.\s*(\d+[a-z]?)\b`),
	}

	chapterPattern = regexp.MustCompile(`\bchapter\s+(\d{1,2}:\d{2})\b`)

	// normalizeStrip removes punctuation except hyphens, periods and colons.
	// Colons survive so chapter references like "28:01" stay intact.
	normalizeStrip = regexp.MustCompile(`[^a-z0-9\s\-.:]+`)

	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Normalize lowercases, collapses whitespace, and strips punctuation except
// hyphens, periods and colons. The same function keys the exact cache, so it
// must stay deterministic.
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	s = normalizeStrip.ReplaceAllString(s, " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ExtractSection finds the first section reference in a normalized query.
// First matching pattern wins. Returns "" when absent.
// The section letter is uppercased to match corpus metadata ("12C").
func ExtractSection(normalized string) string {
	for _, re := range sectionPatterns {
		if m := re.FindStringSubmatch(normalized); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	return ""
}

// ExtractChapter finds the first chapter reference ("28:01") in a normalized
// query. Returns "" when absent.
func ExtractChapter(normalized string) string {
	if m := chapterPattern.FindStringSubmatch(normalized); m != nil {
		return m[1]
	}
	return ""
}
