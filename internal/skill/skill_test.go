package skill

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func advance(t *testing.T, r *Registry, st State, msg string) Outcome {
	t.Helper()
	out, err := r.Advance(st, msg)
	require.NoError(t, err)
	return out
}

func TestThoughtRecord_Walkthrough(t *testing.T) {
	r := DefaultRegistry()
	st, p, err := r.Start(ThoughtRecord)
	require.NoError(t, err)
	assert.Equal(t, "situation", p.Step)

	out := advance(t, r, st, "My boss criticised my report in the meeting")
	require.False(t, out.Ended())
	assert.Equal(t, PromptReprompt, out.Prompt.Kind)
	assert.Equal(t, "situation", out.State.Step)
	assert.Equal(t, []string{"automatic_thought"}, out.Prompt.Missing)

	out = advance(t, r, out.State, "thought: I'm going to get fired. emotion: anxious, intensity: 7")
	require.False(t, out.Ended())
	assert.Equal(t, PromptStep, out.Prompt.Kind)
	assert.Equal(t, "evidence", out.State.Step)

	out = advance(t, r, out.State, "evidence for: he pointed out errors; evidence against: my last review was good")
	assert.Equal(t, "alternative", out.State.Step)

	out = advance(t, r, out.State, "alternative: one critique doesn't mean I'm failing")
	assert.Equal(t, "rerate", out.State.Step)

	out = advance(t, r, out.State, "intensity: 3")
	require.True(t, out.Ended())
	assert.Equal(t, PromptComplete, out.Prompt.Kind)

	rec := out.Record
	assert.Equal(t, ThoughtRecord, rec.Skill)
	assert.Equal(t, StatusCompleted, rec.Status)
	require.NotNil(t, rec.MoodBefore)
	require.NotNil(t, rec.MoodAfter)
	assert.Equal(t, 7, *rec.MoodBefore)
	assert.Equal(t, 3, *rec.MoodAfter)
	assert.Equal(t, "one critique doesn't mean I'm failing", rec.KeyInsight)
	assert.Equal(t, "I'm going to get fired", rec.Data["automatic_thought"])
	assert.Equal(t, "anxious", rec.Data["emotion"])
}

func TestFlows_CompleteInStepCountTurns(t *testing.T) {
	inputs := map[Type][]string{
		ThoughtRecord: {
			"situation: late for work; thought: everyone will judge me",
			"emotion: shame; intensity: 8",
			"for: my manager frowned; against: nobody mentioned it",
			"alternative thought: being late once is normal",
			"rerate: 4",
		},
		BehavioralActivation: {
			"go for a 10 minute walk",
			"put my shoes by the door",
			"tomorrow at 8am",
			"if it rains then I'll walk in the mall",
			"yes, I commit",
		},
		Exposure: {
			"speaking up in meetings",
			"ask a question, share an idea, present a slide",
			"target: ask one question; anxiety: 6",
			"my voice will shake and people will laugh",
			"outcome: it went fine; anxiety: 3",
		},
		Coping: {"1", "done, that was calming", "mood: 6"},
		Learn:  {"cognitive distortions please"},
	}

	r := DefaultRegistry()
	for _, typ := range r.Types() {
		t.Run(string(typ), func(t *testing.T) {
			msgs := inputs[typ]
			require.Len(t, msgs, len(r.Steps(typ)))

			st, _, err := r.Start(typ)
			require.NoError(t, err)

			records := 0
			for i, msg := range msgs {
				out := advance(t, r, st, msg)
				if out.Ended() {
					records++
					assert.Equal(t, len(msgs)-1, i, "ended early at %q", msg)
					assert.Equal(t, StatusCompleted, out.Record.Status)
					break
				}
				assert.Equal(t, PromptStep, out.Prompt.Kind, "stalled at %q", msg)
				st = out.State
			}
			assert.Equal(t, 1, records)
		})
	}
}

func TestCancelAbandons(t *testing.T) {
	r := DefaultRegistry()
	st, _, err := r.Start(ThoughtRecord)
	require.NoError(t, err)
	out := advance(t, r, st, "situation: argument with my sister")

	out = advance(t, r, out.State, "Cancel.")
	require.True(t, out.Ended())
	assert.Equal(t, PromptAbandoned, out.Prompt.Kind)
	assert.Equal(t, StatusAbandoned, out.Record.Status)
	assert.Equal(t, "argument with my sister", out.Record.Data["situation"])

	assert.True(t, IsCancel("  main   menu "))
	assert.False(t, IsCancel("I want to cancel my trip"))
}

func TestRatingOutOfRangeIsRejected(t *testing.T) {
	r := DefaultRegistry()
	st := State{Type: ThoughtRecord, Step: "emotion", Data: &ThoughtRecordData{
		Situation: "exam", AutomaticThought: "I'll fail",
	}}

	out := advance(t, r, st, "anxious 12/10")
	assert.Equal(t, PromptReprompt, out.Prompt.Kind)
	assert.Equal(t, "emotion", out.State.Step)
	assert.Equal(t, []string{"intensity_before"}, out.Prompt.Invalid)
	assert.Equal(t, []string{"intensity_before"}, out.Prompt.Missing)
	assert.Equal(t, "anxious", Value(out.State.Data, "emotion"))
	assert.Empty(t, Value(out.State.Data, "intensity_before"))

	out = advance(t, r, out.State, "intensity: -2")
	assert.Equal(t, []string{"intensity_before"}, out.Prompt.Invalid)

	out = advance(t, r, out.State, "about 6")
	assert.Equal(t, "evidence", out.State.Step)
	assert.Equal(t, "6", Value(out.State.Data, "intensity_before"))
}

func TestRatingRangeTakesFirstNumber(t *testing.T) {
	r := DefaultRegistry()
	for _, msg := range []string{"anxious, about 7-8", "anxious 7 - 8", "anxious, around 7–8"} {
		t.Run(msg, func(t *testing.T) {
			st := State{Type: ThoughtRecord, Step: "emotion", Data: &ThoughtRecordData{
				Situation: "exam", AutomaticThought: "I'll fail",
			}}
			out := advance(t, r, st, msg)
			assert.Empty(t, out.Prompt.Invalid)
			assert.Equal(t, "evidence", out.State.Step)
			assert.Equal(t, "anxious", Value(out.State.Data, "emotion"))
			assert.Equal(t, "7", Value(out.State.Data, "intensity_before"))
		})
	}
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	r := DefaultRegistry()
	st, _, err := r.Start(ThoughtRecord)
	require.NoError(t, err)
	_ = advance(t, r, st, "situation: x; thought: y")
	assert.Empty(t, Values(st.Data))
	assert.Equal(t, "situation", st.Step)
}

func TestExposure_TraumaContraindication(t *testing.T) {
	r := DefaultRegistry()
	st, _, err := r.Start(Exposure)
	require.NoError(t, err)

	out := advance(t, r, st, "anything that reminds me of the assault")
	require.True(t, out.Ended())
	assert.Equal(t, StatusAbandoned, out.Record.Status)
	assert.Equal(t, NoticeTraumaReferral, out.Prompt.Notice)
}

func TestActivation_OptionalMood(t *testing.T) {
	r := DefaultRegistry()
	st, _, err := r.Start(BehavioralActivation)
	require.NoError(t, err)

	out := advance(t, r, st, "walk around the block, mood: 4")
	assert.Equal(t, "break_down", out.State.Step)
	assert.Equal(t, "walk around the block", Value(out.State.Data, "activity"))
	assert.Equal(t, "4", Value(out.State.Data, "mood_before"))
}

func TestCoping_UnknownChoiceReprompts(t *testing.T) {
	r := DefaultRegistry()
	st, _, err := r.Start(Coping)
	require.NoError(t, err)

	out := advance(t, r, st, "not sure")
	assert.Equal(t, PromptReprompt, out.Prompt.Kind)
	assert.Equal(t, []string{"technique"}, out.Prompt.Missing)

	out = advance(t, r, out.State, "urge surfing")
	assert.Equal(t, "guided", out.State.Step)
	assert.Equal(t, TechniqueUrgeSurfing, out.Prompt.Values["technique"])
}

func TestMatch(t *testing.T) {
	r := DefaultRegistry()
	cases := map[string]Type{
		"1":                         ThoughtRecord,
		"2. Behavioral Activation":  BehavioralActivation,
		"let's face a fear":         Exposure,
		"I'd like some breathing":   Coping,
		"I want to learn something": Learn,
	}
	for msg, want := range cases {
		got, ok := r.Match(msg)
		require.True(t, ok, msg)
		assert.Equal(t, want, got, msg)
	}
	_, ok := r.Match("hmm")
	assert.False(t, ok)
}

func TestStateJSON(t *testing.T) {
	seven := 7
	st := State{Type: ThoughtRecord, Step: "evidence", Data: &ThoughtRecordData{Situation: "exam", IntensityBefore: &seven}}
	raw, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"skill":"thought_record","step":"evidence","data":{"situation":"exam","intensity_before":7}}`, string(raw))

	var back State
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, st.Clone(), back)

	_, err = json.Marshal(State{Type: Coping, Step: "select", Data: &LearnData{}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDecodeData_RejectsForeignKeys(t *testing.T) {
	_, err := DecodeData(Coping, []byte(`{"situation":"left over from a thought record"}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, Coping, verr.Skill)

	_, err = DecodeData(Exposure, []byte(`{"anxiety_before":14}`))
	require.ErrorAs(t, err, &verr)

	_, err = DecodeData("journaling", nil)
	require.ErrorAs(t, err, &verr)

	d, err := DecodeData(Learn, nil)
	require.NoError(t, err)
	assert.Equal(t, Learn, d.Skill())
}

func TestValidate(t *testing.T) {
	r := DefaultRegistry()
	require.Error(t, r.Validate(State{Type: Coping, Step: "select", Data: &LearnData{}}))
	require.Error(t, r.Validate(State{Type: Coping, Step: "nope", Data: &CopingData{}}))
	require.Error(t, r.Validate(State{Type: Coping, Step: "select"}))
	require.NoError(t, r.Validate(State{Type: Coping, Step: "guided", Data: &CopingData{Technique: "breathing"}}))

	_, err := r.Advance(State{Type: Learn, Step: "select", Data: &CopingData{}}, "1")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
