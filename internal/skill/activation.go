package skill

// ActivationHandler plans one small activity: pick it, break it down,
// schedule it, add an if-then plan and commit.
type ActivationHandler struct{}

func (ActivationHandler) Type() Type { return BehavioralActivation }

func (ActivationHandler) Keywords() []string {
	return []string{"behavior", "behaviour", "activation", "activity"}
}

func (ActivationHandler) Steps() []Step {
	return []Step{
		{Name: "identify", Fields: []Field{
			{Name: "activity"},
			{Name: "mood_before", Aliases: []string{"mood"}, Rating: true, Optional: true},
		}},
		{Name: "break_down", Fields: []Field{
			{Name: "first_step", Aliases: []string{"step", "first"}},
		}},
		{Name: "schedule", Fields: []Field{
			{Name: "when", Aliases: []string{"time", "schedule"}},
		}},
		{Name: "if_then", Fields: []Field{
			{Name: "if_then_plan", Aliases: []string{"if-then", "plan", "backup"}},
		}},
		{Name: "confirm", Fields: []Field{
			{Name: "commitment", Aliases: []string{"commit", "confirm"}},
		}},
	}
}

func (ActivationHandler) NewData() Data { return &ActivationData{} }

func (ActivationHandler) Accept(step Step, message string, d Data, extract Extractor) Acceptance {
	return extract(step, message, d)
}

func (ActivationHandler) Summarize(d Data, status CompletionStatus) Record {
	ba := d.(*ActivationData)
	insight := ba.Activity
	if ba.When != "" {
		insight += " (" + ba.When + ")"
	}
	return Record{MoodBefore: ba.MoodBefore, KeyInsight: insight}
}
