package skill

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	ratingOutOf = regexp.MustCompile(`(?i)(-?\d+)\s*(?:/|out of)\s*10\b`)
	// A range such as "7-8" is one match whose first number is the rating.
	anyInteger  = regexp.MustCompile(`(-?\d+)(?:\s*[-–]\s*\d+)?`)
	ratingLead  = regexp.MustCompile(`(?i)(?:\b(?:about|around|maybe|like|roughly|at|a|an|is|it's)\s+)+$`)
)

var cancelPhrases = map[string]bool{
	"cancel":       true,
	"menu":         true,
	"main menu":    true,
	"back":         true,
	"back to menu": true,
	"stop":         true,
	"quit":         true,
	"exit":         true,
}

// IsCancel reports whether the whole message is a cancel intent. A cancel
// word inside a longer sentence does not count.
func IsCancel(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	m = strings.TrimRight(m, ".!? ")
	return cancelPhrases[strings.Join(strings.Fields(m), " ")]
}

func validRating(n int) bool { return n >= 0 && n <= 10 }

// findRating locates a 0-10 style rating: an explicit "N/10" wins, otherwise
// the last integer or range. span covers the rating and any filler words
// before it.
func findRating(s string) (n int, span [2]int, ok bool) {
	var loc []int
	if m := ratingOutOf.FindAllStringSubmatchIndex(s, -1); len(m) > 0 {
		last := m[len(m)-1]
		loc = []int{last[0], last[1], last[2], last[3]}
	} else if m := anyInteger.FindAllStringSubmatchIndex(s, -1); len(m) > 0 {
		last := m[len(m)-1]
		loc = []int{last[0], last[1], last[2], last[3]}
	} else {
		return 0, span, false
	}

	n, err := strconv.Atoi(s[loc[2]:loc[3]])
	if err != nil {
		return 0, span, false
	}
	start := loc[0]
	if lead := ratingLead.FindStringIndex(s[:start]); lead != nil {
		start = lead[0]
	}
	return n, [2]int{start, loc[1]}, true
}

func cleanValue(s string) string {
	return strings.Trim(strings.TrimSpace(s), " \t\r\n;,.-")
}

// parser extracts field values for one skill.
type parser struct {
	steps   []Step
	aliases map[string][]Field
	labels  *regexp.Regexp
}

func newParser(steps []Step) *parser {
	p := &parser{steps: steps, aliases: map[string][]Field{}}
	var names []string
	for _, st := range steps {
		for _, f := range st.Fields {
			for _, a := range fieldLabels(f) {
				if _, seen := p.aliases[a]; !seen {
					names = append(names, a)
				}
				p.aliases[a] = append(p.aliases[a], f)
			}
		}
	}
	// Longest first so "automatic thought" beats "thought".
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	p.labels = regexp.MustCompile(`(?i)(?:^|[\s;,.(])(` + strings.Join(quoted, "|") + `)\s*[:=]`)
	return p
}

func fieldLabels(f Field) []string {
	out := []string{f.Name}
	if spaced := strings.ReplaceAll(f.Name, "_", " "); spaced != f.Name {
		out = append(out, spaced)
	}
	for _, a := range f.Aliases {
		out = append(out, strings.ToLower(a))
	}
	return out
}

func (p *parser) stepIndex(name string) int {
	for i, st := range p.steps {
		if st.Name == name {
			return i
		}
	}
	return -1
}

type labeledValue struct {
	label string
	value string
}

// split separates labeled segments from the leading unlabeled remainder.
func (p *parser) split(message string) (segments []labeledValue, remainder string) {
	locs := p.labels.FindAllStringSubmatchIndex(message, -1)
	if len(locs) == 0 {
		return nil, message
	}
	remainder = message[:locs[0][2]]
	for i, loc := range locs {
		end := len(message)
		if i+1 < len(locs) {
			end = locs[i+1][2]
		}
		segments = append(segments, labeledValue{
			label: strings.ToLower(message[loc[2]:loc[3]]),
			value: message[loc[1]:end],
		})
	}
	return segments, remainder
}

// pick chooses the field a label refers to: the first unfilled candidate,
// else a candidate belonging to the current step.
func (p *parser) pick(label string, current int, d Data) (Field, bool) {
	cands := p.aliases[label]
	for _, f := range cands {
		if s, ok := findSlot(d, f.Name); ok && !s.filled() {
			return f, true
		}
	}
	for _, f := range cands {
		if p.stepOfField(f.Name) == current {
			return f, true
		}
	}
	return Field{}, false
}

func (p *parser) stepOfField(name string) int {
	for i, st := range p.steps {
		for _, f := range st.Fields {
			if f.Name == name {
				return i
			}
		}
	}
	return -1
}

// extract merges every value message supplies into d. Labeled segments may
// fill any field of the skill; unlabeled text only fills the current step.
func (p *parser) extract(step Step, message string, d Data) Acceptance {
	var acc Acceptance
	current := p.stepIndex(step.Name)

	segments, remainder := p.split(message)
	for _, seg := range segments {
		f, ok := p.pick(seg.label, current, d)
		if !ok {
			continue
		}
		p.assign(f, cleanValue(seg.value), d, &acc)
	}

	rem := remainder
	if missing := missingFields(step, d); len(missing) > 0 {
		for _, f := range missing {
			if !f.Rating {
				continue
			}
			if n, span, ok := findRating(rem); ok {
				if validRating(n) {
					setRating(d, f.Name, n)
				} else {
					acc.Invalid = append(acc.Invalid, f.Name)
				}
				rem = rem[:span[0]] + " " + rem[span[1]:]
			}
			break
		}
		if text := cleanValue(rem); text != "" {
			for _, f := range missingFields(step, d) {
				if !f.Rating {
					setText(d, f.Name, text)
					break
				}
			}
		}
	}
	return acc
}

func (p *parser) assign(f Field, value string, d Data, acc *Acceptance) {
	if value == "" {
		return
	}
	if !f.Rating {
		setText(d, f.Name, value)
		return
	}
	n, _, ok := findRating(value)
	if !ok || !validRating(n) {
		acc.Invalid = append(acc.Invalid, f.Name)
		return
	}
	setRating(d, f.Name, n)
}

// missingFields lists the required fields of step not yet present in d.
func missingFields(step Step, d Data) []Field {
	var out []Field
	for _, f := range step.Fields {
		if f.Optional {
			continue
		}
		if s, ok := findSlot(d, f.Name); ok && !s.filled() {
			out = append(out, f)
		}
	}
	return out
}

func fieldNames(fs []Field) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

func containsAny(message string, words ...string) bool {
	m := strings.ToLower(message)
	for _, w := range words {
		if regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`).MatchString(m) {
			return true
		}
	}
	return false
}
