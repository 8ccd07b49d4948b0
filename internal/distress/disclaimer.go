package distress

import "time"

// DisclaimerKind names a boundary reminder.
type DisclaimerKind string

const (
	DisclaimerPeriodic        DisclaimerKind = "periodic_reminder"
	DisclaimerCrisisBoundary  DisclaimerKind = "crisis_boundary"
	DisclaimerTherapyReferral DisclaimerKind = "therapy_referral"
)

// DisclaimerPolicy decides when the "automated tool, not a clinician"
// reminder is re-shown.
type DisclaimerPolicy struct {
	Every         int
	Cooldown      time.Duration
	CrisisGap     int
	ReferralAfter int
	ReferralLimit int
}

func DefaultDisclaimerPolicy() DisclaimerPolicy {
	return DisclaimerPolicy{
		Every:         20,
		Cooldown:      10 * time.Minute,
		CrisisGap:     5,
		ReferralAfter: 30,
		ReferralLimit: 2,
	}
}

// DisclaimerHistory is the session's record of shown reminders.
type DisclaimerHistory struct {
	Shown    int
	LastTurn int
	LastAt   time.Time
}

// Due returns the reminder to show on turn, if any. The crisis boundary takes
// precedence, then the periodic reminder, then the referral nudge.
func (p DisclaimerPolicy) Due(h DisclaimerHistory, turn int, level Level, now time.Time) (DisclaimerKind, bool) {
	sinceLast := turn - h.LastTurn
	if h.LastTurn == 0 {
		sinceLast = turn
	}

	if level >= LevelSevere && sinceLast >= p.CrisisGap {
		return DisclaimerCrisisBoundary, true
	}
	if turn > 0 && p.Every > 0 && turn%p.Every == 0 {
		if h.LastAt.IsZero() || now.Sub(h.LastAt) >= p.Cooldown {
			return DisclaimerPeriodic, true
		}
	}
	if turn > p.ReferralAfter && h.Shown < p.ReferralLimit && sinceLast >= p.CrisisGap {
		return DisclaimerTherapyReferral, true
	}
	return "", false
}
