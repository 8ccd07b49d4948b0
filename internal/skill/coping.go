package skill

import "strings"

const (
	TechniqueBreathing        = "breathing"
	TechniqueGrounding        = "grounding"
	TechniqueMuscleRelaxation = "muscle_relaxation"
	TechniqueUrgeSurfing      = "urge_surfing"
)

// CopingTechniques lists the selectable techniques in menu order.
func CopingTechniques() []string {
	return []string{TechniqueBreathing, TechniqueGrounding, TechniqueMuscleRelaxation, TechniqueUrgeSurfing}
}

var copingChoices = []struct {
	technique string
	words     []string
}{
	{TechniqueBreathing, []string{"1", "breath", "breathe", "breathing"}},
	{TechniqueGrounding, []string{"2", "ground", "grounding", "senses"}},
	{TechniqueMuscleRelaxation, []string{"3", "muscle", "muscles", "relax", "relaxation"}},
	{TechniqueUrgeSurfing, []string{"4", "urge", "urges", "surf", "surfing"}},
}

// CopingHandler guides one coping technique and records how the user feels
// afterwards.
type CopingHandler struct{}

func (CopingHandler) Type() Type { return Coping }

func (CopingHandler) Keywords() []string {
	return []string{"coping", "cope", "breathing", "grounding", "relax", "calm"}
}

func (CopingHandler) Steps() []Step {
	return []Step{
		{Name: "select", Fields: []Field{{Name: "technique"}}},
		{Name: "guided", Fields: []Field{{Name: "practice_notes", Aliases: []string{"notes"}}}},
		{Name: "feedback", Fields: []Field{{Name: "mood_after", Aliases: []string{"mood"}, Rating: true}}},
	}
}

func (CopingHandler) NewData() Data { return &CopingData{} }

func (CopingHandler) Accept(step Step, message string, d Data, extract Extractor) Acceptance {
	if step.Name != "select" {
		return extract(step, message, d)
	}
	m := strings.ToLower(message)
	for _, c := range copingChoices {
		if containsAny(m, c.words...) {
			setText(d, "technique", c.technique)
			break
		}
	}
	return Acceptance{}
}

func (CopingHandler) Summarize(d Data, status CompletionStatus) Record {
	c := d.(*CopingData)
	return Record{MoodAfter: c.MoodAfter, KeyInsight: c.Technique}
}
