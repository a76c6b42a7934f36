package query

import (
	"regexp"
	"strings"
	"time"
)

// DateOp describes how a date context constrains retrieval.
type DateOp string

const (
	DateAsAt   DateOp = "as_at"
	DateBefore DateOp = "before"
	DateAfter  DateOp = "after"
)

// DateContext is a temporal constraint extracted from a query. The phrase is
// removed from the query text; downstream filtering applies the constraint.
type DateContext struct {
	Op   DateOp
	Date time.Time
	Raw  string // the matched phrase, for logging
}

// AllowsYear reports whether a statute enacted in the given year satisfies
// the constraint. Year-granularity is all the corpus metadata carries.
func (dc *DateContext) AllowsYear(year int) bool {
	if dc == nil || year == 0 {
		return true
	}
	switch dc.Op {
	case DateAfter:
		return year >= dc.Date.Year()
	default: // as-at and before both exclude later enactments
		return year <= dc.Date.Year()
	}
}

// datePhrasePattern matches "as at/of/on <date>", "before <date>",
// "after <date>" and "on <date>" with several date forms.
var datePhrasePattern = regexp.MustCompile(
	`\b(as\s+(?:at|of|on)|before|after|on)\s+` +
		`(\d{1,2}\s+[a-z]+\s+\d{4}|\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|\d{4})\b`)

var dateLayouts = []string{
	"2 January 2006",
	"2006-01-02",
	"2/1/2006",
	"2006",
}

// ExtractDateContext detects a temporal phrase in a normalized query.
// Returns the query with the phrase removed, plus the parsed context, or
// (normalized, nil) when no parseable date is present.
func ExtractDateContext(normalized string) (string, *DateContext) {
	m := datePhrasePattern.FindStringSubmatchIndex(normalized)
	if m == nil {
		return normalized, nil
	}

	phrase := normalized[m[0]:m[1]]
	opText := normalized[m[2]:m[3]]
	dateText := normalized[m[4]:m[5]]

	date, ok := parseDate(dateText)
	if !ok {
		return normalized, nil
	}

	op := DateAsAt
	switch {
	case strings.HasPrefix(opText, "before"):
		op = DateBefore
	case strings.HasPrefix(opText, "after"):
		op = DateAfter
	}

	remaining := normalized[:m[0]] + normalized[m[1]:]
	remaining = whitespaceRun.ReplaceAllString(remaining, " ")
	remaining = strings.TrimSpace(remaining)

	return remaining, &DateContext{Op: op, Date: date, Raw: phrase}
}

func parseDate(text string) (time.Time, bool) {
	// Month names arrive lowercased by normalization; layouts expect title case.
	titled := titleMonth(text)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, titled); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func titleMonth(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		if len(f) > 2 && f[0] >= 'a' && f[0] <= 'z' {
			fields[i] = strings.ToUpper(f[:1]) + f[1:]
		}
	}
	return strings.Join(fields, " ")
}
