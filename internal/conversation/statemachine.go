package conversation

import (
	"slices"

	"cbt-coach/internal/skill"
)

var transitions = map[State][]State{
	StateConsent: {StateIntake, StateEnded},
	StateIntake:  {StateMenu, StateEnded},
	StateMenu: {
		StateThoughtRecord, StateBehavioralActivation, StateExposure,
		StateCoping, StateLearn, StateEnded,
	},
	StateThoughtRecord:        {StateMenu},
	StateBehavioralActivation: {StateMenu},
	StateExposure:             {StateMenu},
	StateCoping:               {StateMenu},
	StateLearn:                {StateMenu},
}

// canTransition reports whether from -> to is defined. RISK_ESCALATION is
// reachable from every live state; from there the session either ends or
// resumes the state it was holding.
func canTransition(s *Session, to State) bool {
	from := s.State
	switch {
	case from == StateEnded:
		return false
	case to == StateRiskEscalation:
		return true
	case from == StateRiskEscalation:
		return to == StateEnded || (s.Hold != nil && to == s.Hold.State)
	}
	return slices.Contains(transitions[from], to)
}

func transition(s *Session, to State) error {
	if !canTransition(s, to) {
		return &InvalidStateTransition{From: s.State, To: to}
	}
	s.State = to
	return nil
}

// enterSkill moves to the skill state for st and installs st as the only
// skill data on the session.
func enterSkill(s *Session, st State, data *skill.State) error {
	if err := transition(s, st); err != nil {
		return err
	}
	s.Skill = data
	return nil
}

// leaveSkill drops the active skill data and returns to the menu.
func leaveSkill(s *Session) error {
	if err := transition(s, StateMenu); err != nil {
		return err
	}
	s.Skill = nil
	return nil
}

// hold pauses the current position for a MEDIUM escalation.
func hold(s *Session) error {
	h := &Hold{State: s.State, Skill: s.Skill, IntakeStep: s.IntakeStep}
	if err := transition(s, StateRiskEscalation); err != nil {
		return err
	}
	s.Hold = h
	s.Skill = nil
	return nil
}

// resume restores the held position.
func resume(s *Session) error {
	if s.Hold == nil {
		return &InvalidStateTransition{From: s.State, To: StateMenu}
	}
	h := s.Hold
	if err := transition(s, h.State); err != nil {
		return err
	}
	s.Skill = h.Skill
	s.IntakeStep = h.IntakeStep
	s.Hold = nil
	return nil
}

// terminate ends the session after a HIGH verdict.
func terminate(s *Session) error {
	if s.State != StateRiskEscalation {
		if err := transition(s, StateRiskEscalation); err != nil {
			return err
		}
	}
	if err := transition(s, StateEnded); err != nil {
		return err
	}
	s.Skill = nil
	s.Hold = nil
	s.RiskFlagged = true
	s.Status = StatusTerminated
	return nil
}

// finish ends the session normally. A session that recorded a medium risk
// event is flagged for clinician review.
func finish(s *Session) error {
	if err := transition(s, StateEnded); err != nil {
		return err
	}
	s.Skill = nil
	s.Hold = nil
	s.Status = StatusCompleted
	if s.RiskFlagged {
		s.Status = StatusFlagged
	}
	return nil
}
