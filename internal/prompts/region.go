package prompts

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Country names accepted in the intake answer. Multi-word names come first.
var countryNames = []struct {
	name string
	code string
}{
	{"united kingdom", "GB"},
	{"united states", "US"},
	{"great britain", "GB"},
	{"netherlands", "NL"},
	{"switzerland", "CH"},
	{"deutschland", "DE"},
	{"australia", "AU"},
	{"österreich", "AT"},
	{"scotland", "GB"},
	{"england", "GB"},
	{"britain", "GB"},
	{"belgium", "BE"},
	{"germany", "DE"},
	{"ireland", "IE"},
	{"america", "US"},
	{"austria", "AT"},
	{"holland", "NL"},
	{"belgië", "BE"},
	{"belgique", "BE"},
	{"schweiz", "CH"},
	{"suisse", "CH"},
	{"italia", "IT"},
	{"france", "FR"},
	{"canada", "CA"},
	{"españa", "ES"},
	{"espana", "ES"},
	{"italy", "IT"},
	{"spain", "ES"},
	{"wales", "GB"},
	{"usa", "US"},
	{"uk", "GB"},
}

var wordRe = map[string]*regexp.Regexp{}

func init() {
	for _, c := range countryNames {
		wordRe[c.name] = regexp.MustCompile(`(?i)(?:^|[^\pL])` + regexp.QuoteMeta(c.name) + `(?:$|[^\pL])`)
	}
}

// NormalizeRegion turns a free-text region answer ("UK", "en-GB", "I live in
// Italy") into an ISO 3166-1 alpha-2 code. It returns "" when nothing
// recognisable is found. "UK" is treated as "GB".
func NormalizeRegion(answer string) string {
	t := strings.TrimSpace(answer)
	if t == "" {
		return ""
	}
	if strings.EqualFold(t, "uk") {
		return "GB"
	}

	for _, c := range countryNames {
		if wordRe[c.name].MatchString(t) {
			return c.code
		}
	}

	if tag, err := language.Parse(t); err == nil {
		if r, conf := tag.Region(); conf == language.Exact && r.IsCountry() {
			return r.String()
		}
	}

	// Bare codes count only when they are the whole answer or written in
	// capitals, so "in" or "it" inside a sentence is not read as a country.
	tokens := strings.FieldsFunc(t, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, tok := range tokens {
		if len(tok) != 2 {
			continue
		}
		if tok != strings.ToUpper(tok) && !strings.EqualFold(tok, t) {
			continue
		}
		if r, err := language.ParseRegion(strings.ToUpper(tok)); err == nil && r.IsCountry() {
			return r.String()
		}
	}
	return ""
}
