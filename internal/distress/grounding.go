package distress

import (
	"fmt"
	"time"
)

const (
	TechniqueSensory     = "5-4-3-2-1"
	TechniqueBreathing   = "breathing"
	TechniqueBodyScan    = "body_scan"
	TechniqueOrientation = "orientation"
	TechniqueTemperature = "temperature"
)

// Exercise is one grounding technique from the catalog.
type Exercise struct {
	Key          string
	Name         string
	Duration     time.Duration
	Instructions string
	FollowUp     string
}

var catalog = map[string]Exercise{
	TechniqueSensory: {
		Key:      TechniqueSensory,
		Name:     "5-4-3-2-1 Sensory Grounding",
		Duration: 5 * time.Minute,
		Instructions: `Let's bring you back to the present moment. Take your time with this.

Look around you right now and notice:
- 5 things you can see
- 4 things you can touch
- 3 things you can hear
- 2 things you can smell (or two favourite scents)
- 1 thing you can taste (or a favourite taste)

Take slow, gentle breaths as you do this. There's no rush.

Tell me when you're ready to continue, or if you'd like to stop here.`,
		FollowUp: "How do you feel now? Even a small shift is meaningful.",
	},
	TechniqueBreathing: {
		Key:      TechniqueBreathing,
		Name:     "Paced Breathing",
		Duration: 3 * time.Minute,
		Instructions: `Let's slow things down with some paced breathing.

1. Breathe in slowly through your nose for 4 counts
2. Hold gently for 4 counts
3. Breathe out slowly through your mouth for 6 counts
4. Pause for 2 counts
5. Repeat 5-10 times

A longer exhale than inhale helps your body settle.

Let me know when you've done a few cycles, or if you need to adjust the pace.`,
		FollowUp: "Did the breathing help at all? Sometimes it takes a few minutes to notice a shift.",
	},
	TechniqueBodyScan: {
		Key:      TechniqueBodyScan,
		Name:     "Quick Body Scan",
		Duration: 4 * time.Minute,
		Instructions: `Let's check in with your body, gently and without judgment.

Starting from your head, slowly move your attention down:
- your face: any tension in your jaw or forehead?
- your shoulders: can you let them drop a little?
- your chest: what does your breathing feel like?
- your hands: can you loosen them?
- your legs and feet: notice where they touch the ground

You don't have to change anything. Just notice, and breathe gently.

Tell me what you notice, or just let me know when you're done.`,
		FollowUp: "What did you notice? Sometimes just paying attention helps.",
	},
	TechniqueOrientation: {
		Key:      TechniqueOrientation,
		Name:     "Present Moment Orientation",
		Duration: 2 * time.Minute,
		Instructions: `Let's orient to the present moment.

Answer these, out loud or in your mind:
- What is today's date?
- Where are you right now?
- What are you sitting or standing on?
- Name 3 objects you can see

Then remind yourself: "Right now, in this moment, I am safe. This feeling is uncomfortable, but I am not in danger."

Let me know when you're ready.`,
		FollowUp: "Does it help to remember where and when you are right now?",
	},
	TechniqueTemperature: {
		Key:      TechniqueTemperature,
		Name:     "Temperature Shift",
		Duration: time.Minute,
		Instructions: `Sometimes a quick physical sensation can help reset.

Try one of these:
- Hold an ice cube or run cold water on your wrists
- Splash cold water on your face
- Hold a warm cup of tea
- Wrap yourself in a soft blanket

Pick what feels doable right now and notice how it feels. Let me know how it goes.`,
		FollowUp: "Did the temperature change help shift your focus at all?",
	},
}

// LookupExercise returns the catalog entry for key, falling back to 5-4-3-2-1.
func LookupExercise(key string) Exercise {
	if ex, ok := catalog[key]; ok {
		return ex
	}
	return catalog[TechniqueSensory]
}

// GroundingPolicy decides when a grounding exercise replaces the skill step.
type GroundingPolicy struct {
	MinTurnSpacing int
	MaxOffers      int
}

func DefaultGroundingPolicy() GroundingPolicy {
	return GroundingPolicy{MinTurnSpacing: 3, MaxOffers: 3}
}

// GroundingHistory is the session's record of past offers.
type GroundingHistory struct {
	Count    int
	LastTurn int // 0 when never offered
}

// ShouldOffer applies the spacing rule to every level, then: crisis always,
// severe until MaxOffers, moderate only for the first offer when the
// assessment asks for grounding.
func (p GroundingPolicy) ShouldOffer(a Assessment, h GroundingHistory, turn int) bool {
	if h.LastTurn > 0 && turn-h.LastTurn < p.MinTurnSpacing {
		return false
	}
	switch a.Level {
	case LevelCrisis:
		return true
	case LevelSevere:
		return h.Count < p.MaxOffers
	case LevelModerate:
		return a.RequiresGrounding && h.Count == 0
	default:
		return false
	}
}

// Offer renders the grounding reply: an acknowledgement scaled to the level
// followed by the exercise itself.
func Offer(level Level, ex Exercise, repeat bool) string {
	var lead string
	switch {
	case level >= LevelCrisis:
		lead = "I notice you're feeling very overwhelmed right now. Let's pause and do a quick grounding exercise together before we continue."
	case level == LevelSevere && repeat:
		lead = "You're still feeling pretty overwhelmed. Let's do another brief grounding exercise to help settle things down."
	case level == LevelSevere:
		lead = "I can see you're feeling quite activated right now. Let's try a quick grounding exercise together; it might help us work through this."
	default:
		lead = "I notice you're feeling distressed. Before we continue, a short grounding exercise can make the work easier."
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", lead, ex.Name, ex.Instructions)
}
