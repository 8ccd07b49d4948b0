// Package prompts holds every user-facing text and system prompt as an
// immutable, versioned snapshot loaded from YAML.
package prompts

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"cbt-coach/internal/distress"
	"cbt-coach/internal/risk"
	"cbt-coach/internal/skill"
)

//go:embed default.yaml
var defaultYAML []byte

type SystemPrompts struct {
	Base    string `yaml:"base"`
	Risk    string `yaml:"risk"`
	Clarify string `yaml:"clarify"`
	Support string `yaml:"support"`
	Summary string `yaml:"summary"`
}

type IntakeQuestion struct {
	Key      string `yaml:"key"`
	Question string `yaml:"question"`
}

type Flow struct {
	Consent         string           `yaml:"consent"`
	ConsentReprompt string           `yaml:"consent_reprompt"`
	Declined        string           `yaml:"declined"`
	Intake          []IntakeQuestion `yaml:"intake"`
	IntakeComplete  string           `yaml:"intake_complete"`
	Menu            string           `yaml:"menu"`
	MenuClarify     string           `yaml:"menu_clarify"`
	Progress        string           `yaml:"progress"`
	ProgressEmpty   string           `yaml:"progress_empty"`
	Farewell        string           `yaml:"farewell"`
	Apology         string           `yaml:"apology"`
	RatingInvalid   string           `yaml:"rating_invalid"`
}

type SkillText struct {
	Title     string            `yaml:"title"`
	Steps     map[string]string `yaml:"steps"`
	Fields    map[string]string `yaml:"fields"`
	Complete  string            `yaml:"complete"`
	Abandoned string            `yaml:"abandoned"`
	Notices   map[string]string `yaml:"notices"`
}

type CrisisScript struct {
	Clarify   string `yaml:"clarify"`
	Ground    string `yaml:"ground"`
	Resources string `yaml:"resources"`
	Stop      string `yaml:"stop"`
}

type Escalation struct {
	Crisis          CrisisScript `yaml:"crisis"`
	MediumSupport   string       `yaml:"medium_support"`
	MediumResources string       `yaml:"medium_resources"`
}

// Resource is one support line.
type Resource struct {
	Label   string `yaml:"label" json:"label"`
	Contact string `yaml:"contact" json:"contact"`
}

// RegionResources are the ordered support lines for one region.
type RegionResources struct {
	Region    string     `yaml:"-" json:"region"`
	Title     string     `yaml:"title" json:"title"`
	Emergency string     `yaml:"emergency" json:"emergency"`
	Lines     []Resource `yaml:"lines" json:"lines"`
}

// Snapshot is one immutable version of the prompt set. Callers read a single
// snapshot for a whole turn.
type Snapshot struct {
	Version string `yaml:"-"`

	System      SystemPrompts              `yaml:"system_prompts"`
	Flow        Flow                       `yaml:"flow"`
	Skills      map[skill.Type]SkillText   `yaml:"skills"`
	Coping      map[string]string          `yaml:"coping_techniques"`
	LearnCards  map[string]string          `yaml:"learn_cards"`
	Escalation  Escalation                 `yaml:"escalation"`
	Disclaimers map[string]string          `yaml:"disclaimers"`
	Resources   map[string]RegionResources `yaml:"resources"`
	Lexicon     risk.Lexicon               `yaml:"risk_lexicon"`

	scanner *risk.Scanner
}

// Parse decodes and validates a snapshot. The version is a digest of data.
func Parse(data []byte) (*Snapshot, error) {
	var s Snapshot
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	sum := sha256.Sum256(data)
	s.Version = hex.EncodeToString(sum[:6])

	normalized := make(map[string]RegionResources, len(s.Resources))
	for code, rr := range s.Resources {
		code = strings.ToUpper(code)
		if r := NormalizeRegion(code); r != "" {
			code = r
		}
		rr.Region = code
		normalized[code] = rr
	}
	s.Resources = normalized

	scanner, err := risk.NewScanner(append(risk.DefaultLexicon(), s.Lexicon...))
	if err != nil {
		return nil, fmt.Errorf("risk lexicon: %w", err)
	}
	s.scanner = scanner

	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Default returns the embedded snapshot.
func Default() *Snapshot {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded prompts: %v", err))
	}
	return s
}

func (s *Snapshot) validate() error {
	var errs []error
	need := func(what, v string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("missing %s", what))
			return
		}
		if _, err := parseTemplate(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	need("flow.consent", s.Flow.Consent)
	need("flow.menu", s.Flow.Menu)
	need("flow.apology", s.Flow.Apology)
	need("flow.progress", s.Flow.Progress)
	need("flow.progress_empty", s.Flow.ProgressEmpty)
	if len(s.Flow.Intake) == 0 {
		errs = append(errs, errors.New("missing flow.intake"))
	}
	for _, q := range s.Flow.Intake {
		need("flow.intake."+q.Key, q.Question)
	}
	need("system_prompts.risk", s.System.Risk)
	need("escalation.crisis.clarify", s.Escalation.Crisis.Clarify)
	need("escalation.crisis.ground", s.Escalation.Crisis.Ground)
	need("escalation.crisis.resources", s.Escalation.Crisis.Resources)
	need("escalation.crisis.stop", s.Escalation.Crisis.Stop)
	need("escalation.medium_resources", s.Escalation.MediumResources)

	reg := skill.DefaultRegistry()
	for _, t := range reg.Types() {
		txt, ok := s.Skills[t]
		if !ok {
			errs = append(errs, fmt.Errorf("missing skills.%s", t))
			continue
		}
		for _, st := range reg.Steps(t) {
			need(fmt.Sprintf("skills.%s.steps.%s", t, st.Name), txt.Steps[st.Name])
			for _, f := range st.Fields {
				need(fmt.Sprintf("skills.%s.fields.%s", t, f.Name), txt.Fields[f.Name])
			}
		}
		need(fmt.Sprintf("skills.%s.complete", t), txt.Complete)
	}
	for _, tech := range skill.CopingTechniques() {
		need("coping_techniques."+tech, s.Coping[tech])
	}
	for _, topic := range skill.LearnTopics() {
		need("learn_cards."+topic, s.LearnCards[topic])
	}
	for _, k := range []distress.DisclaimerKind{distress.DisclaimerPeriodic, distress.DisclaimerCrisisBoundary, distress.DisclaimerTherapyReferral} {
		need("disclaimers."+string(k), s.Disclaimers[string(k)])
	}
	if _, ok := s.Resources["DEFAULT"]; !ok {
		errs = append(errs, errors.New("missing resources.default"))
	}
	return errors.Join(errs...)
}

// Scanner is the keyword scanner compiled from this snapshot's lexicon.
func (s *Snapshot) Scanner() *risk.Scanner { return s.scanner }

func parseTemplate(text string) (*template.Template, error) {
	return template.New("").Option("missingkey=zero").Parse(text)
}

// Render executes text as a template against data.
func Render(text string, data any) (string, error) {
	t, err := parseTemplate(text)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func mustRender(text string, data any) string {
	out, err := Render(text, data)
	if err != nil {
		return strings.TrimSpace(text)
	}
	return out
}

// LookupCrisisResources returns the support lines for region, falling back to
// the international defaults.
func (s *Snapshot) LookupCrisisResources(region string) RegionResources {
	if rr, ok := s.Resources[NormalizeRegion(region)]; ok {
		return rr
	}
	return s.Resources["DEFAULT"]
}

// ResourcesBlock formats the region's support lines in order.
func (s *Snapshot) ResourcesBlock(region string) string {
	rr := s.LookupCrisisResources(region)
	var b strings.Builder
	b.WriteString(rr.Title + ":\n")
	for _, l := range rr.Lines {
		fmt.Fprintf(&b, "- %s: %s\n", l.Label, l.Contact)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Snapshot) resourceData(region string) map[string]string {
	return map[string]string{
		"Resources": s.ResourcesBlock(region),
		"Emergency": s.LookupCrisisResources(region).Emergency,
	}
}

// CrisisScript is the fixed HIGH-risk reply for region: clarify, ground,
// resources and stop, in that order. It involves no model call.
func (s *Snapshot) CrisisScript(region string) string {
	data := s.resourceData(region)
	c := s.Escalation.Crisis
	parts := []string{
		mustRender(c.Clarify, data),
		mustRender(c.Ground, data),
		mustRender(c.Resources, data),
		mustRender(c.Stop, data),
	}
	return strings.Join(parts, "\n\n")
}

// MediumResources is the resources block appended to MEDIUM replies.
func (s *Snapshot) MediumResources(region string) string {
	return mustRender(s.Escalation.MediumResources, s.resourceData(region))
}

func (s *Snapshot) Consent(region string) string {
	return mustRender(s.Flow.Consent, s.resourceData(region))
}

// StepPrompt renders the opening prompt of a skill step.
func (s *Snapshot) StepPrompt(t skill.Type, step string, values map[string]string) string {
	return mustRender(s.Skills[t].Steps[step], values)
}

// FieldPrompt is the re-prompt for one missing field.
func (s *Snapshot) FieldPrompt(t skill.Type, field string) string {
	return strings.TrimSpace(s.Skills[t].Fields[field])
}

func (s *Snapshot) SkillTitle(t skill.Type) string {
	if title := s.Skills[t].Title; title != "" {
		return title
	}
	return string(t)
}

// Progress lists recent practice, one item per line. An empty list gets the
// progress_empty text.
func (s *Snapshot) Progress(items []string) string {
	if len(items) == 0 {
		return strings.TrimSpace(s.Flow.ProgressEmpty)
	}
	return mustRender(s.Flow.Progress, map[string]string{"Items": strings.Join(items, "\n")})
}

func (s *Snapshot) Completion(t skill.Type, values map[string]string) string {
	return mustRender(s.Skills[t].Complete, values)
}

func (s *Snapshot) Abandoned(t skill.Type, notice string) string {
	txt := s.Skills[t]
	if n := txt.Notices[notice]; n != "" {
		return strings.TrimSpace(n)
	}
	return strings.TrimSpace(txt.Abandoned)
}

func (s *Snapshot) CopingInstructions(technique string) string {
	return strings.TrimSpace(s.Coping[technique])
}

func (s *Snapshot) LearnCard(topic string) string {
	return strings.TrimSpace(s.LearnCards[topic])
}

func (s *Snapshot) Disclaimer(kind distress.DisclaimerKind) string {
	return strings.TrimSpace(s.Disclaimers[string(kind)])
}
