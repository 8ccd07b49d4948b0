package distress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessor_Levels(t *testing.T) {
	a := NewAssessor()

	tests := []struct {
		msg       string
		level     Level
		grounding bool
		technique string
	}{
		{"I'm having a panic attack", LevelCrisis, true, TechniqueBreathing},
		{"I can’t breathe", LevelCrisis, true, TechniqueBreathing},
		{"I feel overwhelmed", LevelSevere, true, TechniqueBreathing},
		{"I'm shaking and terrified", LevelSevere, true, TechniqueSensory},
		{"a bit anxious", LevelModerate, false, ""},
		{"anxious and stressed", LevelModerate, true, TechniqueBreathing},
		{"I'm unsure about this", LevelMild, false, ""},
		{"the weather is fine", LevelNone, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got := a.Assess(tt.msg, nil)
			assert.Equal(t, tt.level, got.Level)
			assert.Equal(t, tt.grounding, got.RequiresGrounding)
			assert.Equal(t, tt.technique, got.Technique)
		})
	}
}

func TestAssessor_EscalatingTrendUpgradesTechnique(t *testing.T) {
	a := NewAssessor()
	recent := []string{"hi", "I'm a little worried"}
	got := a.Assess("now I'm freaking out", recent)
	assert.Equal(t, LevelSevere, got.Level)
	assert.Equal(t, TechniqueSensory, got.Technique)
	assert.Len(t, recent, 2)

	assert.False(t, a.Escalating([]string{"stressed", "panic attack"}))
	assert.False(t, a.Escalating([]string{"panic attack", "fine", "upset"}))
}

func TestGroundingPolicy(t *testing.T) {
	p := DefaultGroundingPolicy()
	crisis := Assessment{Level: LevelCrisis, RequiresGrounding: true}
	severe := Assessment{Level: LevelSevere, RequiresGrounding: true}
	moderate := Assessment{Level: LevelModerate, RequiresGrounding: true}

	assert.True(t, p.ShouldOffer(crisis, GroundingHistory{Count: 10, LastTurn: 1}, 9))
	assert.False(t, p.ShouldOffer(crisis, GroundingHistory{Count: 1, LastTurn: 8}, 9), "spacing applies")

	assert.True(t, p.ShouldOffer(severe, GroundingHistory{Count: 2, LastTurn: 2}, 9))
	assert.False(t, p.ShouldOffer(severe, GroundingHistory{Count: 3, LastTurn: 2}, 9))

	assert.True(t, p.ShouldOffer(moderate, GroundingHistory{}, 1))
	assert.False(t, p.ShouldOffer(moderate, GroundingHistory{Count: 1, LastTurn: 1}, 9))
	assert.False(t, p.ShouldOffer(Assessment{Level: LevelModerate}, GroundingHistory{}, 1))
	assert.False(t, p.ShouldOffer(Assessment{Level: LevelMild}, GroundingHistory{}, 1))
}

func TestOffer(t *testing.T) {
	ex := LookupExercise("nope")
	assert.Equal(t, TechniqueSensory, ex.Key)

	text := Offer(LevelSevere, LookupExercise(TechniqueBreathing), true)
	assert.Contains(t, text, "still feeling pretty overwhelmed")
	assert.Contains(t, text, "Paced Breathing")

	for _, k := range []string{TechniqueSensory, TechniqueBreathing, TechniqueBodyScan, TechniqueOrientation, TechniqueTemperature} {
		require.Equal(t, k, LookupExercise(k).Key)
	}
}

func TestDisclaimerPolicy(t *testing.T) {
	p := DefaultDisclaimerPolicy()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, ok := p.Due(DisclaimerHistory{}, 3, LevelNone, now)
	assert.False(t, ok)

	kind, ok := p.Due(DisclaimerHistory{}, 20, LevelNone, now)
	require.True(t, ok)
	assert.Equal(t, DisclaimerPeriodic, kind)

	_, ok = p.Due(DisclaimerHistory{Shown: 1, LastTurn: 18, LastAt: now.Add(-2 * time.Minute)}, 20, LevelNone, now)
	assert.False(t, ok, "cooldown")

	kind, ok = p.Due(DisclaimerHistory{Shown: 1, LastTurn: 2}, 8, LevelSevere, now)
	require.True(t, ok)
	assert.Equal(t, DisclaimerCrisisBoundary, kind)

	_, ok = p.Due(DisclaimerHistory{Shown: 1, LastTurn: 6}, 8, LevelCrisis, now)
	assert.False(t, ok)

	kind, ok = p.Due(DisclaimerHistory{Shown: 1, LastTurn: 20, LastAt: now}, 31, LevelNone, now)
	require.True(t, ok)
	assert.Equal(t, DisclaimerTherapyReferral, kind)

	_, ok = p.Due(DisclaimerHistory{Shown: 2, LastTurn: 20}, 31, LevelNone, now)
	assert.False(t, ok)
}

func TestLevelText(t *testing.T) {
	var l Level
	require.NoError(t, l.UnmarshalText([]byte("Severe")))
	assert.Equal(t, LevelSevere, l)
	require.Error(t, l.UnmarshalText([]byte("meh")))
}
