package conversation

import (
	"time"

	"github.com/google/uuid"

	"cbt-coach/internal/distress"
	"cbt-coach/internal/risk"
	"cbt-coach/internal/skill"
)

// State is the conversation's position in the flow.
type State string

const (
	StateConsent              State = "CONSENT"
	StateIntake               State = "INTAKE"
	StateMenu                 State = "MENU"
	StateThoughtRecord        State = "THOUGHT_RECORD"
	StateBehavioralActivation State = "BEHAVIORAL_ACTIVATION"
	StateExposure             State = "EXPOSURE"
	StateCoping               State = "COPING"
	StateLearn                State = "LEARN"
	StateRiskEscalation       State = "RISK_ESCALATION"
	StateEnded                State = "ENDED"
)

var skillStates = map[State]skill.Type{
	StateThoughtRecord:        skill.ThoughtRecord,
	StateBehavioralActivation: skill.BehavioralActivation,
	StateExposure:             skill.Exposure,
	StateCoping:               skill.Coping,
	StateLearn:                skill.Learn,
}

// SkillType returns the skill owned by st, if st is a skill state.
func (st State) SkillType() (skill.Type, bool) {
	t, ok := skillStates[st]
	return t, ok
}

// StateFor is the skill state that runs t.
func StateFor(t skill.Type) (State, bool) {
	for st, typ := range skillStates {
		if typ == t {
			return st, true
		}
	}
	return "", false
}

type Status string

const (
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusTerminated Status = "terminated"
	StatusFlagged    Status = "flagged"
)

type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Intake holds the answers collected before the menu.
type Intake struct {
	Goal   string `json:"session_goal,omitempty"`
	Tone   string `json:"communication_style,omitempty"`
	// Region is an ISO 3166-1 alpha-2 code, empty when unknown.
	Region string `json:"region_code,omitempty"`
}

// Hold is the position paused by a MEDIUM escalation, restored on the next
// turn.
type Hold struct {
	State      State        `json:"state"`
	Skill      *skill.State `json:"skill,omitempty"`
	IntakeStep string       `json:"intake_step,omitempty"`
}

// Session is the aggregate root. The engine never mutates a Session it is
// given; it returns an updated copy.
type Session struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`

	State State `json:"current_state"`

	// Skill is the active flow. It is non-nil exactly when State is a skill
	// state; starting another skill replaces it whole.
	Skill      *skill.State `json:"skill,omitempty"`
	IntakeStep string       `json:"intake_step,omitempty"`
	Intake     Intake       `json:"intake"`
	Hold       *Hold        `json:"hold,omitempty"`

	// RiskLevel only ever goes up.
	RiskLevel     risk.Level     `json:"risk_level"`
	DistressLevel distress.Level `json:"distress_level"`
	RiskFlagged   bool           `json:"risk_flagged"`

	TurnCount            int       `json:"turn_count"`
	GroundingCount       int       `json:"grounding_count"`
	LastGroundingTurn    int       `json:"last_grounding_turn"`
	DisclaimerShownCount int       `json:"disclaimer_shown_count"`
	LastDisclaimerTurn   int       `json:"last_disclaimer_turn"`
	LastDisclaimerAt     time.Time `json:"last_disclaimer_at"`
	ConsentShown         bool      `json:"consent_shown"`

	Status  Status    `json:"status"`
	History []Message `json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession opens a conversation at CONSENT.
func NewSession(patientID uuid.UUID, now time.Time) *Session {
	return &Session{
		ID:        uuid.New(),
		PatientID: patientID,
		State:     StateConsent,
		Status:    StatusActive,
		History:   []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CurrentSkill is the active skill, or "" outside skill states.
func (s *Session) CurrentSkill() skill.Type {
	if s.Skill == nil {
		return ""
	}
	return s.Skill.Type
}

// CurrentStep is the skill step cursor, or the pending intake question.
func (s *Session) CurrentStep() string {
	switch {
	case s.Skill != nil:
		return s.Skill.Step
	case s.State == StateIntake:
		return s.IntakeStep
	}
	return ""
}

func (s *Session) Active() bool { return s.Status == StatusActive }

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	if s.Skill != nil {
		st := s.Skill.Clone()
		c.Skill = &st
	}
	if s.Hold != nil {
		h := *s.Hold
		if h.Skill != nil {
			st := h.Skill.Clone()
			h.Skill = &st
		}
		c.Hold = &h
	}
	c.History = append([]Message(nil), s.History...)
	return &c
}

// UserMessages returns the content of the last n user messages, oldest first.
func (s *Session) UserMessages(n int) []string {
	var out []string
	for i := len(s.History) - 1; i >= 0 && len(out) < n; i-- {
		if s.History[i].Role == "user" {
			out = append(out, s.History[i].Content)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// EventType labels a risk event.
type EventType string

const (
	EventAcuteRisk         EventType = "acute_risk"
	EventConcerningContent EventType = "concerning_content"
)

// RiskEvent is the durable record of a medium or high verdict.
type RiskEvent struct {
	ID                      uuid.UUID  `json:"id"`
	SessionID               uuid.UUID  `json:"session_id"`
	PatientID               uuid.UUID  `json:"patient_id"`
	EventType               EventType  `json:"event_type"`
	Level                   risk.Level `json:"risk_level"`
	RiskType                string     `json:"risk_type,omitempty"`
	MatchedKeywords         []string   `json:"matched_keywords"`
	Confidence              *float64   `json:"confidence,omitempty"`
	Reasoning               string     `json:"reasoning,omitempty"`
	Source                  risk.Tier  `json:"source"`
	ClassifierDegraded      bool       `json:"classifier_degraded"`
	EscalationFlowTriggered bool       `json:"escalation_flow_triggered"`
	SessionTerminated       bool       `json:"session_terminated"`
	UserMessage             string     `json:"user_message"`
	CreatedAt               time.Time  `json:"created_at"`
}

// SkillCompletion is a finished or abandoned skill flow tied to its session.
type SkillCompletion struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	PatientID uuid.UUID `json:"patient_id"`
	skill.Record
	CreatedAt time.Time `json:"created_at"`
}
