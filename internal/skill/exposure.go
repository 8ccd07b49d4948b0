package skill

// NoticeTraumaReferral is the exit reason when exposure work is
// contraindicated.
const NoticeTraumaReferral = "trauma_referral"

var traumaMarkers = []string{"trauma", "traumatic", "ptsd", "abuse", "abused", "assault", "assaulted"}

// ExposureHandler runs one graded exposure: suitability, hierarchy, target
// with anxiety rating, prediction and debrief.
type ExposureHandler struct{}

func (ExposureHandler) Type() Type { return Exposure }

func (ExposureHandler) Keywords() []string {
	return []string{"exposure", "fear", "fears", "avoid", "avoiding"}
}

func (ExposureHandler) Steps() []Step {
	return []Step{
		{Name: "check_suitability", Fields: []Field{
			{Name: "feared_situation", Aliases: []string{"fear", "situation"}},
		}},
		{Name: "build_hierarchy", Fields: []Field{
			{Name: "hierarchy", Aliases: []string{"ladder", "steps"}},
		}},
		{Name: "select_target", Fields: []Field{
			{Name: "target"},
			{Name: "anxiety_before", Aliases: []string{"anxiety", "suds"}, Rating: true},
		}},
		{Name: "prediction", Fields: []Field{
			{Name: "prediction", Aliases: []string{"predict"}},
		}},
		{Name: "debrief", Fields: []Field{
			{Name: "outcome", Aliases: []string{"what happened", "result"}},
			{Name: "anxiety_after", Aliases: []string{"anxiety", "suds"}, Rating: true},
		}},
	}
}

func (ExposureHandler) NewData() Data { return &ExposureData{} }

// Accept stops the flow when the feared situation is trauma related; that
// needs a trauma-focused clinician rather than self-guided exposure.
func (ExposureHandler) Accept(step Step, message string, d Data, extract Extractor) Acceptance {
	if step.Name == "check_suitability" && containsAny(message, traumaMarkers...) {
		return Acceptance{Exit: true, Notice: NoticeTraumaReferral}
	}
	return extract(step, message, d)
}

func (ExposureHandler) Summarize(d Data, status CompletionStatus) Record {
	ex := d.(*ExposureData)
	return Record{
		MoodBefore: ex.AnxietyBefore,
		MoodAfter:  ex.AnxietyAfter,
		KeyInsight: ex.Outcome,
	}
}
