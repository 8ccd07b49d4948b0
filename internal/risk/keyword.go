package risk

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Category labels the kind of risk a lexicon entry signals.
type Category string

const (
	CategorySuicidalIdeation Category = "suicidal_ideation"
	CategorySelfHarm         Category = "self_harm"
	CategoryHarmToOthers     Category = "harm_to_others"
	CategoryPsychosis        Category = "psychosis"
)

// Entry is one lexicon phrase.
type Entry struct {
	Phrase   string   `yaml:"phrase" json:"phrase"`
	Category Category `yaml:"category" json:"category"`
	Level    Level    `yaml:"level" json:"level"`
}

// Lexicon is an ordered list of entries. It is read-only once handed to a Scanner.
type Lexicon []Entry

// DefaultLexicon returns the built-in English lexicon.
func DefaultLexicon() Lexicon {
	var lex Lexicon
	add := func(c Category, l Level, phrases ...string) {
		for _, p := range phrases {
			lex = append(lex, Entry{Phrase: p, Category: c, Level: l})
		}
	}

	add(CategorySuicidalIdeation, LevelHigh,
		"kill myself", "killing myself", "end my life", "take my own life", "suicide", "suicidal",
		"want to die", "better off dead", "end it all", "no reason to live", "kms")
	add(CategorySuicidalIdeation, LevelMedium,
		"don't want to be here", "wish i was dead", "wish i were dead", "can't go on",
		"no way out", "hopeless", "nobody would miss me", "disappear forever")
	add(CategorySuicidalIdeation, LevelLow,
		"worthless", "give up", "a burden")

	add(CategorySelfHarm, LevelHigh,
		"hurt myself", "harm myself", "cut myself", "cutting myself", "burn myself", "overdose")
	add(CategorySelfHarm, LevelMedium,
		"self harm", "self-harm", "punish myself", "hurting myself")

	add(CategoryHarmToOthers, LevelHigh,
		"kill him", "kill her", "kill them", "kill someone", "hurt someone", "hurt somebody")
	add(CategoryHarmToOthers, LevelMedium,
		"make them pay", "get revenge", "want to hurt them")

	add(CategoryPsychosis, LevelHigh,
		"voices telling me to hurt", "voices telling me to kill")
	add(CategoryPsychosis, LevelMedium,
		"hearing voices", "voices telling me", "someone is watching me",
		"controlling my thoughts", "nothing is real")

	return lex
}

// Match is a lexicon hit in a message.
type Match struct {
	Keyword  string
	Category Category
	Level    Level
	Offset   int
}

// ScanResult is the keyword tier output: matches in message order, the level
// per matched category, and the highest-severity category overall.
type ScanResult struct {
	Matches    []Match
	Categories map[Category]Level
	Level      Level
	Category   Category
}

// Keywords returns the matched phrases in message order without duplicates.
func (r ScanResult) Keywords() []string {
	out := make([]string, 0, len(r.Matches))
	seen := make(map[string]bool, len(r.Matches))
	for _, m := range r.Matches {
		if seen[m.Keyword] {
			continue
		}
		seen[m.Keyword] = true
		out = append(out, m.Keyword)
	}
	return out
}

type rule struct {
	entry Entry
	re    *regexp.Regexp
}

// Scanner is the deterministic lexical pre-screen. It never performs I/O and
// is safe for concurrent use.
type Scanner struct {
	rules []rule
}

// NewScanner compiles the lexicon. Entries with an empty phrase, an unknown
// category or an out-of-range level are rejected.
func NewScanner(lex Lexicon) (*Scanner, error) {
	s := &Scanner{rules: make([]rule, 0, len(lex))}
	for i, e := range lex {
		phrase := normalize(e.Phrase)
		if phrase == "" {
			return nil, fmt.Errorf("lexicon entry %d: empty phrase", i)
		}
		switch e.Category {
		case CategorySuicidalIdeation, CategorySelfHarm, CategoryHarmToOthers, CategoryPsychosis:
		default:
			return nil, fmt.Errorf("lexicon entry %q: unknown category %q", e.Phrase, e.Category)
		}
		if e.Level < LevelLow || e.Level > LevelHigh {
			return nil, fmt.Errorf("lexicon entry %q: invalid level %s", e.Phrase, e.Level)
		}
		re, err := regexp.Compile(boundaryPattern(phrase))
		if err != nil {
			return nil, fmt.Errorf("lexicon entry %q: %w", e.Phrase, err)
		}
		e.Phrase = phrase
		s.rules = append(s.rules, rule{entry: e, re: re})
	}
	return s, nil
}

// Scan matches the message against every lexicon entry.
func (s *Scanner) Scan(text string) ScanResult {
	res := ScanResult{Categories: map[Category]Level{}}
	norm := normalize(text)
	if norm == "" {
		return res
	}

	for _, r := range s.rules {
		loc := r.re.FindStringIndex(norm)
		if loc == nil {
			continue
		}
		res.Matches = append(res.Matches, Match{
			Keyword:  r.entry.Phrase,
			Category: r.entry.Category,
			Level:    r.entry.Level,
			Offset:   loc[0],
		})
		res.Categories[r.entry.Category] = Max(res.Categories[r.entry.Category], r.entry.Level)
	}

	sort.SliceStable(res.Matches, func(i, j int) bool {
		return res.Matches[i].Offset < res.Matches[j].Offset
	})

	// Highest level wins; among equals the earliest match in the message.
	for _, m := range res.Matches {
		if m.Level > res.Level {
			res.Level = m.Level
			res.Category = m.Category
		}
	}
	return res
}

func normalize(s string) string {
	s = strings.NewReplacer("’", "'", "‘", "'", " ", " ").Replace(s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func boundaryPattern(phrase string) string {
	p := regexp.QuoteMeta(phrase)
	runes := []rune(phrase)
	if isWord(runes[0]) {
		p = `\b` + p
	}
	if isWord(runes[len(runes)-1]) {
		p += `\b`
	}
	return p
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
