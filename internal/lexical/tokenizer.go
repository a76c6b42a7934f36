package lexical

import (
	"regexp"
	"strings"
)

// MaxTokensPerDoc caps tokens taken from any single text. The offline index
// builder applies the same cap; both sides must agree or scores drift.
const MaxTokensPerDoc = 200

// Section and chapter references collapse into single tokens ("section12c",
// "chapter28:01") so they survive tokenization as exact-match terms.
var (
	sectionPhrase = regexp.MustCompile(`\bsection\s+(\d+[a-z]?)\b`)
	chapterPhrase = regexp.MustCompile(`\bchapter\s+(\d{1,2}:\d{2})\b`)
	tokenPattern  = regexp.MustCompile(`[a-z0-9]+(?::[0-9]+)?`)
)

// legalStopWords are high-frequency terms in statute text that carry no
// ranking signal. Deliberately excludes "act" and "court", which do.
var legalStopWords = map[string]struct{}{
	"the": {}, "of": {}, "and": {}, "or": {}, "to": {}, "in": {},
	"a": {}, "an": {}, "for": {}, "be": {}, "is": {}, "are": {},
	"shall": {}, "may": {}, "any": {}, "such": {}, "by": {}, "on": {},
	"with": {}, "as": {}, "at": {}, "that": {}, "this": {}, "it": {},
	"its": {}, "under": {}, "where": {}, "which": {}, "who": {},
	"not": {}, "no": {}, "if": {}, "than": {}, "into": {},
}

// Tokenize applies the legal-domain tokenization used by the offline index
// builder: lowercase, merge section/chapter references into single tokens,
// split on non-alphanumerics, drop stop words, cap at MaxTokensPerDoc.
//
// The online query tokenizer MUST be this exact function. A divergent copy
// silently degrades lexical recall.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	lower = sectionPhrase.ReplaceAllString(lower, "section$1")
	lower = chapterPhrase.ReplaceAllString(lower, "chapter$1")

	raw := tokenPattern.FindAllString(lower, -1)

	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if _, stop := legalStopWords[t]; stop {
			continue
		}
		if len(t) < 2 {
			continue
		}
		tokens = append(tokens, t)
		if len(tokens) >= MaxTokensPerDoc {
			break
		}
	}
	return tokens
}
