// Package distress estimates emotional intensity for a turn and decides the
// advisory overlays it drives: grounding offers and disclaimer reminders.
// Nothing here gates safety escalation.
package distress

import (
	"fmt"
	"regexp"
	"strings"
)

// Level is the ordinal distress estimate. Unlike risk it may go down.
type Level int

const (
	LevelNone Level = iota
	LevelMild
	LevelModerate
	LevelSevere
	LevelCrisis
)

var levelNames = [...]string{"none", "mild", "moderate", "severe", "crisis"}

func (l Level) String() string {
	if l < LevelNone || l > LevelCrisis {
		return fmt.Sprintf("distress(%d)", int(l))
	}
	return levelNames[l]
}

func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if s == name {
			return Level(i), nil
		}
	}
	return LevelNone, fmt.Errorf("unknown distress level %q", s)
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Assessment is the distress estimate for one message.
type Assessment struct {
	Level             Level
	Signals           []string
	Reasoning         string
	RequiresGrounding bool
	// Technique is the suggested grounding exercise key, empty when none.
	Technique string
}

type tier struct {
	level    Level
	weight   int
	patterns []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

var (
	crisisSignals = compile(
		`\bcan'?t breathe\b`, `\bcan'?t handle\b`, `\blosing control\b`, `\bdissociat`,
		`\bpanic attack\b`, `\bheart racing\b`, `\bgoing to die\b`, `\bneed help now\b`,
		`\bemergency\b`, `\bcrisis\b`,
	)
	severeSignals = compile(
		`\boverwhelm`, `\bcan'?t think\b`, `\bcan'?t focus\b`, `\bspinning\b`, `\bshaking\b`,
		`\bfreaking out\b`, `\bterrified\b`, `\bextremely anxious\b`, `\bvery scared\b`,
	)
	moderateSignals = compile(
		`\banxious\b`, `\bworried\b`, `\bstressed\b`, `\bupset\b`, `\btriggered\b`,
		`\buncomfortable\b`, `\bnervous\b`, `\buneasy\b`, `\bagitated\b`,
	)
	mildSignals = compile(
		`\ba bit worried\b`, `\bslightly anxious\b`, `\ba little stressed\b`, `\bunsure\b`,
		`\bconcerned\b`,
	)
)

// Assessor is a stateless regex assessor; the trend comes from the caller's
// recent user messages.
type Assessor struct {
	tiers       []tier
	trendWindow int
}

func NewAssessor() *Assessor {
	return &Assessor{
		tiers: []tier{
			{level: LevelCrisis, weight: 3, patterns: crisisSignals},
			{level: LevelSevere, weight: 2, patterns: severeSignals},
			{level: LevelModerate, weight: 1, patterns: moderateSignals},
			{level: LevelMild, weight: 0, patterns: mildSignals},
		},
		trendWindow: 5,
	}
}

// Assess rates message. recent holds the previous user messages, oldest first.
func (a *Assessor) Assess(message string, recent []string) Assessment {
	text := normalize(message)

	for _, t := range a.tiers {
		hits := matches(text, t.patterns)
		if len(hits) == 0 {
			continue
		}
		res := Assessment{Level: t.level, Signals: hits}
		switch t.level {
		case LevelCrisis:
			res.Reasoning = "crisis-level distress indicators (panic, dissociation, overwhelming fear)"
			res.RequiresGrounding = true
			res.Technique = TechniqueBreathing
		case LevelSevere:
			res.RequiresGrounding = true
			window := append(append([]string(nil), recent...), message)
			if len(hits) >= 2 || a.Escalating(window) {
				res.Reasoning = "multiple or escalating severe distress indicators"
				res.Technique = TechniqueSensory
			} else {
				res.Reasoning = "severe distress indicators present"
				res.Technique = TechniqueBreathing
			}
		case LevelModerate:
			res.Reasoning = "moderate distress detected"
			if len(hits) >= 2 {
				res.RequiresGrounding = true
				res.Technique = TechniqueBreathing
			}
		case LevelMild:
			res.Reasoning = "mild distress indicators present"
		}
		return res
	}
	return Assessment{Level: LevelNone, Reasoning: "no significant distress indicators"}
}

// Escalating reports whether weighted distress in the last few user messages
// is rising: the newest message scores higher than the oldest in the window.
func (a *Assessor) Escalating(userMessages []string) bool {
	if len(userMessages) > a.trendWindow {
		userMessages = userMessages[len(userMessages)-a.trendWindow:]
	}
	if len(userMessages) < 3 {
		return false
	}
	first := a.score(userMessages[0])
	last := a.score(userMessages[len(userMessages)-1])
	return last > first
}

func (a *Assessor) score(message string) int {
	text := normalize(message)
	total := 0
	for _, t := range a.tiers {
		total += len(matches(text, t.patterns)) * t.weight
	}
	return total
}

func matches(text string, patterns []*regexp.Regexp) []string {
	var out []string
	for _, re := range patterns {
		if m := re.FindString(text); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.NewReplacer("’", "'", "‘", "'").Replace(s))
}
