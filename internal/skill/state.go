package skill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// State is the active skill's cursor plus its own field struct. Switching
// skills replaces the whole value, so no field of a previous skill survives.
type State struct {
	Type Type
	Step string
	Data Data
}

// Data is implemented only by the per-skill structs in this package.
type Data interface {
	Skill() Type
	slots() []slot
}

type slot struct {
	name   string
	text   *string
	rating **int
}

func (s slot) filled() bool {
	if s.rating != nil {
		return *s.rating != nil
	}
	return strings.TrimSpace(*s.text) != ""
}

func (s slot) value() string {
	if s.rating != nil {
		return ratingValue(*s.rating)
	}
	return *s.text
}

func findSlot(d Data, name string) (slot, bool) {
	for _, s := range d.slots() {
		if s.name == name {
			return s, true
		}
	}
	return slot{}, false
}

// Value returns the named field, empty when unset.
func Value(d Data, field string) string {
	if s, ok := findSlot(d, field); ok {
		return s.value()
	}
	return ""
}

// Values returns every set field of d.
func Values(d Data) map[string]string {
	out := map[string]string{}
	if d == nil {
		return out
	}
	for _, s := range d.slots() {
		if s.filled() {
			out[s.name] = s.value()
		}
	}
	return out
}

func setText(d Data, field, v string) bool {
	s, ok := findSlot(d, field)
	if !ok || s.text == nil {
		return false
	}
	*s.text = strings.TrimSpace(v)
	return true
}

func setRating(d Data, field string, n int) bool {
	s, ok := findSlot(d, field)
	if !ok || s.rating == nil {
		return false
	}
	*s.rating = &n
	return true
}

type ThoughtRecordData struct {
	Situation          string `json:"situation,omitempty"`
	AutomaticThought   string `json:"automatic_thought,omitempty"`
	Emotion            string `json:"emotion,omitempty"`
	IntensityBefore    *int   `json:"intensity_before,omitempty"`
	EvidenceFor        string `json:"evidence_for,omitempty"`
	EvidenceAgainst    string `json:"evidence_against,omitempty"`
	AlternativeThought string `json:"alternative_thought,omitempty"`
	IntensityAfter     *int   `json:"intensity_after,omitempty"`
}

func (*ThoughtRecordData) Skill() Type { return ThoughtRecord }

func (d *ThoughtRecordData) slots() []slot {
	return []slot{
		{name: "situation", text: &d.Situation},
		{name: "automatic_thought", text: &d.AutomaticThought},
		{name: "emotion", text: &d.Emotion},
		{name: "intensity_before", rating: &d.IntensityBefore},
		{name: "evidence_for", text: &d.EvidenceFor},
		{name: "evidence_against", text: &d.EvidenceAgainst},
		{name: "alternative_thought", text: &d.AlternativeThought},
		{name: "intensity_after", rating: &d.IntensityAfter},
	}
}

type ActivationData struct {
	MoodBefore *int   `json:"mood_before,omitempty"`
	Activity   string `json:"activity,omitempty"`
	FirstStep  string `json:"first_step,omitempty"`
	When       string `json:"when,omitempty"`
	IfThenPlan string `json:"if_then_plan,omitempty"`
	Commitment string `json:"commitment,omitempty"`
}

func (*ActivationData) Skill() Type { return BehavioralActivation }

func (d *ActivationData) slots() []slot {
	return []slot{
		{name: "mood_before", rating: &d.MoodBefore},
		{name: "activity", text: &d.Activity},
		{name: "first_step", text: &d.FirstStep},
		{name: "when", text: &d.When},
		{name: "if_then_plan", text: &d.IfThenPlan},
		{name: "commitment", text: &d.Commitment},
	}
}

type ExposureData struct {
	FearedSituation string `json:"feared_situation,omitempty"`
	Hierarchy       string `json:"hierarchy,omitempty"`
	Target          string `json:"target,omitempty"`
	AnxietyBefore   *int   `json:"anxiety_before,omitempty"`
	Prediction      string `json:"prediction,omitempty"`
	Outcome         string `json:"outcome,omitempty"`
	AnxietyAfter    *int   `json:"anxiety_after,omitempty"`
}

func (*ExposureData) Skill() Type { return Exposure }

func (d *ExposureData) slots() []slot {
	return []slot{
		{name: "feared_situation", text: &d.FearedSituation},
		{name: "hierarchy", text: &d.Hierarchy},
		{name: "target", text: &d.Target},
		{name: "anxiety_before", rating: &d.AnxietyBefore},
		{name: "prediction", text: &d.Prediction},
		{name: "outcome", text: &d.Outcome},
		{name: "anxiety_after", rating: &d.AnxietyAfter},
	}
}

type CopingData struct {
	Technique     string `json:"technique,omitempty"`
	PracticeNotes string `json:"practice_notes,omitempty"`
	MoodAfter     *int   `json:"mood_after,omitempty"`
}

func (*CopingData) Skill() Type { return Coping }

func (d *CopingData) slots() []slot {
	return []slot{
		{name: "technique", text: &d.Technique},
		{name: "practice_notes", text: &d.PracticeNotes},
		{name: "mood_after", rating: &d.MoodAfter},
	}
}

type LearnData struct {
	Topic string `json:"topic,omitempty"`
}

func (*LearnData) Skill() Type { return Learn }

func (d *LearnData) slots() []slot {
	return []slot{{name: "topic", text: &d.Topic}}
}

// NewData returns the empty field struct for t.
func NewData(t Type) (Data, error) {
	switch t {
	case ThoughtRecord:
		return &ThoughtRecordData{}, nil
	case BehavioralActivation:
		return &ActivationData{}, nil
	case Exposure:
		return &ExposureData{}, nil
	case Coping:
		return &CopingData{}, nil
	case Learn:
		return &LearnData{}, nil
	default:
		return nil, &ValidationError{Skill: t, Reason: "unknown skill"}
	}
}

// DecodeData decodes a stored payload using t as the union tag. Keys that do
// not belong to t are rejected rather than ignored.
func DecodeData(t Type, raw []byte) (Data, error) {
	d, err := NewData(t)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return d, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(d); err != nil {
		return nil, &ValidationError{Skill: t, Reason: fmt.Sprintf("state data: %v", err)}
	}
	for _, s := range d.slots() {
		if s.rating != nil && *s.rating != nil && !validRating(**s.rating) {
			return nil, &ValidationError{Skill: t, Reason: s.name + " out of range: " + strconv.Itoa(**s.rating)}
		}
	}
	return d, nil
}

type stateJSON struct {
	Skill Type            `json:"skill"`
	Step  string          `json:"step"`
	Data  json.RawMessage `json:"data"`
}

func (s State) MarshalJSON() ([]byte, error) {
	if s.Data != nil && s.Data.Skill() != s.Type {
		return nil, &ValidationError{Skill: s.Type, Reason: "data belongs to " + string(s.Data.Skill())}
	}
	data := []byte("{}")
	if s.Data != nil {
		var err error
		if data, err = json.Marshal(s.Data); err != nil {
			return nil, err
		}
	}
	return json.Marshal(stateJSON{Skill: s.Type, Step: s.Step, Data: data})
}

func (s *State) UnmarshalJSON(b []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d, err := DecodeData(raw.Skill, raw.Data)
	if err != nil {
		return err
	}
	*s = State{Type: raw.Skill, Step: raw.Step, Data: d}
	return nil
}

// Clone returns a deep copy so a turn can work on its own snapshot.
func (s State) Clone() State {
	if s.Data == nil {
		return s
	}
	out := s
	out.Data, _ = NewData(s.Data.Skill())
	if out.Data == nil {
		return s
	}
	for _, src := range s.Data.slots() {
		if !src.filled() {
			continue
		}
		if src.rating != nil {
			setRating(out.Data, src.name, **src.rating)
		} else {
			setText(out.Data, src.name, *src.text)
		}
	}
	return out
}
