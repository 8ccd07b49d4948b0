package risk

// Action is the session-level response to a verdict.
type Action int

const (
	ActionContinue Action = iota
	ActionCaution
	ActionTerminate
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionCaution:
		return "caution"
	case ActionTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Decision is the escalation ladder outcome for one verdict.
type Decision struct {
	Action                  Action
	EmitEvent               bool
	IncludeResources        bool
	EscalationFlowTriggered bool
	SessionTerminated       bool
}

// Decide maps every verdict level to exactly one decision.
func Decide(v Verdict) Decision {
	switch {
	case v.Level >= LevelHigh:
		return Decision{
			Action:                  ActionTerminate,
			EmitEvent:               true,
			IncludeResources:        true,
			EscalationFlowTriggered: true,
			SessionTerminated:       true,
		}
	case v.Level == LevelMedium:
		return Decision{
			Action:           ActionCaution,
			EmitEvent:        true,
			IncludeResources: true,
		}
	default:
		return Decision{Action: ActionContinue}
	}
}
