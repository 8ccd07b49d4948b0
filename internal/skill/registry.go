package skill

import (
	"fmt"
	"strings"
)

type flow struct {
	h      Handler
	steps  []Step
	parser *parser
}

// Registry dispatches messages to the handler of the active skill. It holds
// no per-session state and is safe for concurrent use once built.
type Registry struct {
	flows map[Type]*flow
	order []Type
}

func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{flows: map[Type]*flow{}}
	for _, h := range handlers {
		steps := h.Steps()
		if _, dup := r.flows[h.Type()]; !dup {
			r.order = append(r.order, h.Type())
		}
		r.flows[h.Type()] = &flow{h: h, steps: steps, parser: newParser(steps)}
	}
	return r
}

// DefaultRegistry holds the five built-in skills.
func DefaultRegistry() *Registry {
	return NewRegistry(
		ThoughtRecordHandler{},
		ActivationHandler{},
		ExposureHandler{},
		CopingHandler{},
		LearnHandler{},
	)
}

func (r *Registry) Types() []Type { return append([]Type(nil), r.order...) }

// Steps returns the ordered steps of t.
func (r *Registry) Steps(t Type) []Step {
	if f, ok := r.flows[t]; ok {
		return f.steps
	}
	return nil
}

// Start opens t at its first step with empty data.
func (r *Registry) Start(t Type) (State, Prompt, error) {
	f, ok := r.flows[t]
	if !ok {
		return State{}, Prompt{}, &ValidationError{Skill: t, Reason: "unknown skill"}
	}
	st := State{Type: t, Step: f.steps[0].Name, Data: f.h.NewData()}
	return st, Prompt{Kind: PromptStep, Skill: t, Step: st.Step, Values: map[string]string{}}, nil
}

// Validate checks that st is a well-formed value of its declared skill.
func (r *Registry) Validate(st State) error {
	f, ok := r.flows[st.Type]
	if !ok {
		return &ValidationError{Skill: st.Type, Reason: "unknown skill"}
	}
	if st.Data == nil {
		return &ValidationError{Skill: st.Type, Reason: "missing state data"}
	}
	if st.Data.Skill() != st.Type {
		return &ValidationError{Skill: st.Type, Reason: fmt.Sprintf("state data belongs to %s", st.Data.Skill())}
	}
	if f.parser.stepIndex(st.Step) < 0 {
		return &ValidationError{Skill: st.Type, Reason: fmt.Sprintf("unknown step %q", st.Step)}
	}
	return nil
}

// Advance feeds one user message to the active flow. st is not modified; the
// returned Outcome carries the next state.
func (r *Registry) Advance(st State, message string) (Outcome, error) {
	if err := r.Validate(st); err != nil {
		return Outcome{}, err
	}
	f := r.flows[st.Type]
	next := st.Clone()

	if IsCancel(message) {
		return r.end(f, next, StatusAbandoned, ""), nil
	}

	idx := f.parser.stepIndex(next.Step)
	acc := f.h.Accept(f.steps[idx], message, next.Data, f.parser.extract)
	if acc.Exit {
		return r.end(f, next, StatusAbandoned, acc.Notice), nil
	}

	cursor := firstUnsatisfied(f.steps, next.Data)
	if cursor == len(f.steps) {
		return r.end(f, next, StatusCompleted, ""), nil
	}
	// The cursor never moves backwards even if an earlier step lost a value.
	if cursor < idx {
		cursor = idx
	}
	next.Step = f.steps[cursor].Name

	p := Prompt{
		Kind:    PromptStep,
		Skill:   next.Type,
		Step:    next.Step,
		Invalid: acc.Invalid,
		Notice:  acc.Notice,
		Values:  Values(next.Data),
	}
	if cursor == idx {
		p.Kind = PromptReprompt
		p.Missing = fieldNames(missingFields(f.steps[cursor], next.Data))
	}
	return Outcome{State: next, Prompt: p}, nil
}

// Abandon ends st with whatever has been collected.
func (r *Registry) Abandon(st State, notice string) (Outcome, error) {
	if err := r.Validate(st); err != nil {
		return Outcome{}, err
	}
	return r.end(r.flows[st.Type], st.Clone(), StatusAbandoned, notice), nil
}

func (r *Registry) end(f *flow, st State, status CompletionStatus, notice string) Outcome {
	rec := f.h.Summarize(st.Data, status)
	rec.Skill = st.Type
	rec.Status = status
	if rec.Data == nil {
		rec.Data = Values(st.Data)
	}
	kind := PromptComplete
	if status == StatusAbandoned {
		kind = PromptAbandoned
	}
	return Outcome{
		Record: &rec,
		Prompt: Prompt{
			Kind:   kind,
			Skill:  st.Type,
			Step:   st.Step,
			Notice: notice,
			Values: Values(st.Data),
		},
	}
}

func firstUnsatisfied(steps []Step, d Data) int {
	for i, st := range steps {
		if len(missingFields(st, d)) > 0 {
			return i
		}
	}
	return len(steps)
}

// Match maps a menu reply to a skill: a number in menu order or a keyword.
func (r *Registry) Match(message string) (Type, bool) {
	m := strings.ToLower(strings.TrimSpace(message))
	if m == "" {
		return "", false
	}
	for i, t := range r.order {
		if m == fmt.Sprint(i+1) || strings.HasPrefix(m, fmt.Sprint(i+1)+".") {
			return t, true
		}
	}
	for _, t := range r.order {
		if containsAny(m, r.flows[t].h.Keywords()...) {
			return t, true
		}
	}
	return "", false
}
