// Package risk implements the two-tier safety screen: a deterministic keyword
// scanner, an LLM classifier, the evaluator that merges them and the
// escalation ladder driven by the merged verdict.
package risk

import (
	"fmt"
	"strings"
)

// Level is the ordered risk severity. The zero value is LevelNone.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
)

var levelNames = [...]string{"none", "low", "medium", "high"}

func (l Level) String() string {
	if l < LevelNone || l > LevelHigh {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel accepts the lowercase names produced by String, case-insensitively.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if s == name {
			return Level(i), nil
		}
	}
	return LevelNone, fmt.Errorf("unknown risk level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	if l < LevelNone || l > LevelHigh {
		return nil, fmt.Errorf("invalid risk level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Max returns the more severe of the two levels.
func Max(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}
