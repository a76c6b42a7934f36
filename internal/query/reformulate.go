package query

import (
	"strings"
)

// DefaultMaxVariants is the default cap on generated query reformulations.
const DefaultMaxVariants = 4

// legalAbbreviations expands shorthand users type for statute classes.
var legalAbbreviations = map[string]string{
	"si":    "statutory instrument",
	"sis":   "statutory instruments",
	"gn":    "government notice",
	"const": "constitution",
	"ord":   "ordinance",
}

// Reformulate generates up to max query variants for the vector provider.
// The original normalized query is always first; duplicates are removed.
// Variants exist purely to raise recall, the lexical provider only ever
// sees the original.
func Reformulate(p *Processed, max int) []string {
	if max <= 0 {
		max = DefaultMaxVariants
	}

	seen := map[string]bool{p.Normalized: true}
	variants := []string{p.Normalized}

	add := func(v string) {
		v = strings.TrimSpace(whitespaceRun.ReplaceAllString(v, " "))
		if v == "" || seen[v] || len(variants) >= max {
			return
		}
		seen[v] = true
		variants = append(variants, v)
	}

	add(expandAbbreviations(p.Normalized))
	add(rewriteSectionSynonym(p.Normalized, p.Section))

	if len(p.Statutes) > 0 {
		title := Normalize(p.Statutes[0].Title)
		if !strings.Contains(p.Normalized, title) {
			add(p.Normalized + " " + title)
		}
	}

	chapter := p.Chapter
	if chapter == "" && len(p.Statutes) > 0 {
		chapter = p.Statutes[0].Chapter
	}
	if chapter != "" && !strings.Contains(p.Normalized, chapter) {
		add(p.Normalized + " chapter " + chapter)
	}

	return variants
}

// expandAbbreviations replaces whole-token legal abbreviations.
func expandAbbreviations(normalized string) string {
	fields := strings.Fields(normalized)
	changed := false
	for i, f := range fields {
		if full, ok := legalAbbreviations[f]; ok {
			fields[i] = full
			changed = true
		}
	}
	if !changed {
		return ""
	}
	return strings.Join(fields, " ")
}

// rewriteSectionSynonym rephrases a section reference as a provision
// reference, a form statute text itself tends to use.
func rewriteSectionSynonym(normalized, section string) string {
	if section == "" {
		return ""
	}
	lower := strings.ToLower(section)
	for _, form := range []string{"section " + lower, "sec. " + lower, "sec " + lower, "s. " + lower} {
		if strings.Contains(normalized, form) {
			return strings.Replace(normalized, form, "provision "+lower, 1)
		}
	}
	return ""
}
