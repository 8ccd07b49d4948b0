// Package skill implements the CBT practice flows. Each skill is an ordered
// list of steps; each step names the fields that must be extracted from the
// user's free text before the cursor may move on.
package skill

import (
	"fmt"
)

// Type identifies a skill. It doubles as the tag of the State union.
type Type string

const (
	ThoughtRecord        Type = "thought_record"
	BehavioralActivation Type = "behavioral_activation"
	Exposure             Type = "exposure"
	Coping               Type = "coping"
	Learn                Type = "learn"
)

// Types lists every skill in menu order.
func Types() []Type {
	return []Type{ThoughtRecord, BehavioralActivation, Exposure, Coping, Learn}
}

type CompletionStatus string

const (
	StatusCompleted CompletionStatus = "completed"
	StatusAbandoned CompletionStatus = "abandoned"
)

// Record is handed to the store when a flow completes or is abandoned. It is
// not kept on the session afterwards.
type Record struct {
	Skill      Type              `json:"skill_type"`
	Status     CompletionStatus  `json:"completion_status"`
	MoodBefore *int              `json:"mood_before,omitempty"`
	MoodAfter  *int              `json:"mood_after,omitempty"`
	KeyInsight string            `json:"key_insight,omitempty"`
	Data       map[string]string `json:"data"`
}

// Field is one value a step collects.
type Field struct {
	Name    string
	Aliases []string
	// Rating fields hold an integer in [0, 10].
	Rating bool
	// Optional fields are only ever filled from a labeled segment and never
	// block the step.
	Optional bool
}

type Step struct {
	Name   string
	Fields []Field
}

// Extractor is the generic labeled/unlabeled field extraction for a skill.
type Extractor func(step Step, message string, d Data) Acceptance

// Handler describes one skill. Accept may replace generic extraction for
// steps whose input is a choice rather than free text.
type Handler interface {
	Type() Type
	// Keywords select the skill from the menu.
	Keywords() []string
	Steps() []Step
	NewData() Data
	Accept(step Step, message string, d Data, extract Extractor) Acceptance
	Summarize(d Data, status CompletionStatus) Record
}

// Acceptance is what a handler made of one message.
type Acceptance struct {
	// Invalid lists fields whose value was supplied but rejected.
	Invalid []string
	// Exit abandons the flow early with Notice as the reason.
	Exit   bool
	Notice string
}

type PromptKind string

const (
	PromptStep      PromptKind = "step"
	PromptReprompt  PromptKind = "reprompt"
	PromptComplete  PromptKind = "complete"
	PromptAbandoned PromptKind = "abandoned"
)

// Prompt tells the caller what to say next.
type Prompt struct {
	Kind    PromptKind
	Skill   Type
	Step    string
	Missing []string
	Invalid []string
	Notice  string
	Values  map[string]string
}

// Outcome is the result of feeding one message to an active flow. State is
// the zero value once the flow has ended.
type Outcome struct {
	State  State
	Prompt Prompt
	Record *Record
}

// Ended reports whether the flow is over and control returns to the menu.
func (o Outcome) Ended() bool { return o.Record != nil }

// ValidationError reports skill state that does not match its declared
// skill: an integrity bug, never a user error.
type ValidationError struct {
	Skill  Type
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Skill == "" {
		return "invalid skill state: " + e.Reason
	}
	return fmt.Sprintf("invalid %s state: %s", e.Skill, e.Reason)
}

func ratingValue(p *int) string {
	if p == nil {
		return ""
	}
	return fmt.Sprint(*p)
}
