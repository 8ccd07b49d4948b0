package skill

const (
	TopicCBTBasics       = "cbt_basics"
	TopicThoughtFeeling  = "thought_feeling_connection"
	TopicDistortions     = "cognitive_distortions"
	TopicActivationWhy   = "behavioral_activation_why"
	TopicExposureScience = "exposure_science"
)

// LearnTopics lists the psychoeducation cards in menu order.
func LearnTopics() []string {
	return []string{TopicCBTBasics, TopicThoughtFeeling, TopicDistortions, TopicActivationWhy, TopicExposureScience}
}

var topicChoices = []struct {
	topic string
	words []string
}{
	{TopicCBTBasics, []string{"1", "cbt", "basic", "basics"}},
	{TopicThoughtFeeling, []string{"2", "thought", "thoughts", "feeling", "feelings"}},
	{TopicDistortions, []string{"3", "distortion", "distortions", "thinking traps"}},
	{TopicActivationWhy, []string{"4", "activation", "behavioral", "behavioural"}},
	{TopicExposureScience, []string{"5", "exposure", "fear"}},
}

// LearnHandler shows a single psychoeducation card and returns to the menu.
type LearnHandler struct{}

func (LearnHandler) Type() Type { return Learn }

func (LearnHandler) Keywords() []string { return []string{"learn", "education", "psychoeducation"} }

func (LearnHandler) Steps() []Step {
	return []Step{{Name: "select", Fields: []Field{{Name: "topic"}}}}
}

func (LearnHandler) NewData() Data { return &LearnData{} }

func (LearnHandler) Accept(step Step, message string, d Data, _ Extractor) Acceptance {
	for _, c := range topicChoices {
		if containsAny(message, c.words...) {
			setText(d, "topic", c.topic)
			break
		}
	}
	return Acceptance{}
}

func (LearnHandler) Summarize(d Data, status CompletionStatus) Record {
	return Record{KeyInsight: d.(*LearnData).Topic}
}
