package skill

// ThoughtRecordHandler walks the ABC thought record: situation and thought,
// emotion with intensity, evidence, a balanced alternative, then a re-rating.
type ThoughtRecordHandler struct{}

func (ThoughtRecordHandler) Type() Type { return ThoughtRecord }

func (ThoughtRecordHandler) Keywords() []string {
	return []string{"thought", "record", "thinking"}
}

func (ThoughtRecordHandler) Steps() []Step {
	return []Step{
		{Name: "situation", Fields: []Field{
			{Name: "situation", Aliases: []string{"what happened"}},
			{Name: "automatic_thought", Aliases: []string{"thought", "hot thought"}},
		}},
		{Name: "emotion", Fields: []Field{
			{Name: "emotion", Aliases: []string{"feeling", "emotions"}},
			{Name: "intensity_before", Aliases: []string{"intensity", "rating"}, Rating: true},
		}},
		{Name: "evidence", Fields: []Field{
			{Name: "evidence_for", Aliases: []string{"for"}},
			{Name: "evidence_against", Aliases: []string{"against"}},
		}},
		{Name: "alternative", Fields: []Field{
			{Name: "alternative_thought", Aliases: []string{"alternative", "balanced thought"}},
		}},
		{Name: "rerate", Fields: []Field{
			{Name: "intensity_after", Aliases: []string{"intensity", "rating", "rerate", "re-rate"}, Rating: true},
		}},
	}
}

func (ThoughtRecordHandler) NewData() Data { return &ThoughtRecordData{} }

func (ThoughtRecordHandler) Accept(step Step, message string, d Data, extract Extractor) Acceptance {
	return extract(step, message, d)
}

func (ThoughtRecordHandler) Summarize(d Data, status CompletionStatus) Record {
	tr := d.(*ThoughtRecordData)
	return Record{
		MoodBefore: tr.IntensityBefore,
		MoodAfter:  tr.IntensityAfter,
		KeyInsight: tr.AlternativeThought,
	}
}
