package identity

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slug bounds per field. School names carry most of the entropy.
const (
	SchoolMax   = 30
	CategoryMax = 20
	ClassMax    = 15
)

// DefaultCategory is the category of events recorded without one.
const DefaultCategory = "minimusiker"

// ligatures are folded before diacritic stripping; NFD leaves them intact.
var ligatures = strings.NewReplacer("ß", "ss", "ẞ", "ss", "æ", "ae", "Æ", "ae", "ø", "o", "Ø", "o", "œ", "oe", "Œ", "oe")

// Slug normalizes s to lowercase [a-z0-9] runs joined by single underscores,
// truncated to limit bytes (limit <= 0 means unbounded). Never fails; text with no
// usable characters yields "".
//
// Slug is idempotent: Slug(Slug(s, n), n) == Slug(s, n).
func Slug(s string, limit int) string {
	folded := foldDiacritics(ligatures.Replace(s))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	out := b.String()
	if limit > 0 && len(out) > limit {
		out = strings.TrimRight(out[:limit], "_")
	}
	return out
}

// foldDiacritics strips combining marks: "Grünwald" → "Grunwald".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// categorySynonyms collapses historical spellings of the same event category.
// Keys are slugs (bounded by CategoryMax).
var categorySynonyms = map[string]string{
	"minimusiker":         DefaultCategory,
	"mini_musiker":        DefaultCategory,
	"minimusiker_event":   DefaultCategory,
	"minimusiker_konzert": DefaultCategory,
	"minimusiker_concert": DefaultCategory,
	"minimusikertag":      DefaultCategory,
	"minimusiker_tag":     DefaultCategory,
	"mm":                  DefaultCategory,
	"concert":             DefaultCategory,
	"konzert":             DefaultCategory,
	"schulkonzert":        DefaultCategory,
	"school_concert":      DefaultCategory,
	"schul_konzert":       DefaultCategory,
	"musiktag":            DefaultCategory,
	"event":               DefaultCategory,
	"standard":            DefaultCategory,
}

// NormalizeCategory maps a raw category string onto its canonical token.
// Known synonyms collapse to one token; unknown categories are slugged;
// a blank category is DefaultCategory. Idempotent.
func NormalizeCategory(raw string) string {
	s := Slug(raw, CategoryMax)
	if s == "" {
		return DefaultCategory
	}
	if canon, ok := categorySynonyms[s]; ok {
		return canon
	}
	return s
}

// dateLayouts are the date spellings found in source rows, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"20060102",
	"02.01.2006",
	"2.1.2006",
}

// DateToken formats a raw date as YYYYMMDD. Unparseable or blank input
// yields "" so callers can omit the token.
func DateToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("20060102")
		}
	}
	return ""
}
