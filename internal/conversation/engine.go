package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"cbt-coach/internal/agent"
	"cbt-coach/internal/distress"
	"cbt-coach/internal/prompts"
	"cbt-coach/internal/risk"
	"cbt-coach/internal/skill"
)

// PromptSource hands out the prompt snapshot for a turn.
type PromptSource interface {
	Snapshot() *prompts.Snapshot
}

// ProgressSource lists a patient's recent skill practice.
type ProgressSource interface {
	PatientSkillCompletions(ctx context.Context, patientID uuid.UUID, limit int) ([]SkillCompletion, error)
}

// TurnResult is everything one turn produced. Nothing in it has been
// persisted yet.
type TurnResult struct {
	Session          *Session
	Reply            string
	Verdict          risk.Verdict
	Decision         risk.Decision
	Distress         distress.Assessment
	RiskEvent        *RiskEvent
	SkillCompletion  *SkillCompletion
	Grounding        string
	Disclaimer       distress.DisclaimerKind
	Messages         []Message
	ShouldEndSession bool
	PromptVersion    string
}

// Engine runs the per-turn pipeline. It holds no per-session state; callers
// must not run two turns for the same session at once.
type Engine struct {
	prompts    PromptSource
	classifier *risk.Classifier
	responder  *responder
	assessor   *distress.Assessor
	skills     *skill.Registry
	progress   ProgressSource

	grounding   distress.GroundingPolicy
	disclaimers distress.DisclaimerPolicy

	classifierTimeout time.Duration
	historyLimit      int
	contextWindow     int
	strict            bool
	now               func() time.Time
	logger            *slog.Logger
}

type Option func(*Engine) error

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

// WithGenerator sets the free-form reply generator and its per-call timeout.
func WithGenerator(g Generator, timeout time.Duration) Option {
	return func(e *Engine) error {
		e.responder.gen = g
		if timeout > 0 {
			e.responder.timeout = timeout
		}
		return nil
	}
}

func WithClassifierTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		e.classifierTimeout = d
		return nil
	}
}

func WithGroundingPolicy(p distress.GroundingPolicy) Option {
	return func(e *Engine) error {
		if p.MinTurnSpacing < 0 || p.MaxOffers < 0 {
			return fmt.Errorf("invalid grounding policy %+v", p)
		}
		e.grounding = p
		return nil
	}
}

func WithDisclaimerPolicy(p distress.DisclaimerPolicy) Option {
	return func(e *Engine) error {
		e.disclaimers = p
		return nil
	}
}

// WithHistoryLimit bounds the messages kept on the session.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("history limit must be positive, got %d", n)
		}
		e.historyLimit = n
		return nil
	}
}

// WithStrictTransitions makes integrity faults fail the turn instead of
// resetting the session to the menu. Meant for development.
func WithStrictTransitions(strict bool) Option {
	return func(e *Engine) error {
		e.strict = strict
		return nil
	}
}

func WithRegistry(r *skill.Registry) Option {
	return func(e *Engine) error {
		e.skills = r
		return nil
	}
}

// WithProgress enables the "review your progress" menu option.
func WithProgress(src ProgressSource) Option {
	return func(e *Engine) error {
		e.progress = src
		return nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		e.now = now
		return nil
	}
}

// NewEngine wires the pipeline. judge answers the risk classification call.
func NewEngine(src PromptSource, judge risk.Judge, opts ...Option) (*Engine, error) {
	if src == nil {
		return nil, errors.New("prompt source is required")
	}
	if judge == nil {
		return nil, errors.New("risk judge is required")
	}
	e := &Engine{
		prompts:       src,
		responder:     &responder{timeout: 20 * time.Second},
		assessor:      distress.NewAssessor(),
		skills:        skill.DefaultRegistry(),
		grounding:     distress.DefaultGroundingPolicy(),
		disclaimers:   distress.DefaultDisclaimerPolicy(),
		historyLimit:  50,
		contextWindow: 10,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, o := range opts {
		if err := o(e); err != nil {
			return nil, err
		}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.responder.logger = e.logger
	e.classifier = risk.NewClassifier(judge, e.classifierTimeout)
	return e, nil
}

// Open starts a new session and shows the consent text.
func (e *Engine) Open(patientID uuid.UUID) *TurnResult {
	snap := e.prompts.Snapshot()
	now := e.now().UTC()
	s := NewSession(patientID, now)
	s.ConsentShown = true

	reply := snap.Consent(s.Intake.Region)
	msg := Message{Role: "assistant", Content: reply, Timestamp: now}
	s.History = append(s.History, msg)
	return &TurnResult{
		Session:       s,
		Reply:         reply,
		Messages:      []Message{msg},
		PromptVersion: snap.Version,
	}
}

// ProcessTurn runs one user message through risk screening, escalation,
// distress overlays and the state machine. sess is not modified.
//
// Integrity faults reset the session to the menu, or in strict mode are
// returned together with a result that still carries the turn's risk
// verdict and event so they can be stored.
func (e *Engine) ProcessTurn(ctx context.Context, sess *Session, message string) (*TurnResult, error) {
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if !sess.Active() || sess.State == StateEnded {
		return nil, ErrSessionClosed
	}

	snap := e.prompts.Snapshot()
	log := e.logger.With("session_id", sess.ID.String())
	t := &turn{
		e:    e,
		snap: snap,
		s:    sess.Clone(),
		msg:  message,
		now:  e.now().UTC(),
		log:  log,
		res:  &TurnResult{PromptVersion: snap.Version},
	}
	t.s.TurnCount++

	scan := snap.Scanner().Scan(message)
	v := risk.NewEvaluator(e.classifier, log).Evaluate(ctx, scan, risk.ClassifyInput{
		Message:      message,
		History:      agentHistory(t.s.History),
		SystemPrompt: snap.System.Risk,
	})
	d := risk.Decide(v)
	t.res.Verdict, t.res.Decision = v, d
	t.s.RiskLevel = risk.Max(t.s.RiskLevel, v.Level)
	if d.EmitEvent {
		t.res.RiskEvent = newRiskEvent(t.s, v, d, message, t.now)
		t.s.RiskFlagged = true
		log.InfoContext(ctx, "risk event",
			"level", v.Level.String(),
			"risk_type", v.RiskType,
			"source", string(v.Source),
			"action", d.Action.String(),
			"degraded", v.Degraded())
	}

	var (
		reply string
		err   error
	)
	switch d.Action {
	case risk.ActionTerminate:
		reply, err = t.terminate(ctx)
	case risk.ActionCaution:
		reply, err = t.caution(ctx)
	default:
		reply, err = t.proceed(ctx)
	}
	if err != nil {
		return e.fault(ctx, sess, t, err)
	}
	return t.complete(reply), nil
}

// End closes the session on the user's request. An active skill is
// abandoned with what it has collected.
func (e *Engine) End(ctx context.Context, sess *Session) (*TurnResult, error) {
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if !sess.Active() || sess.State == StateEnded {
		return nil, ErrSessionClosed
	}
	snap := e.prompts.Snapshot()
	t := &turn{
		e:    e,
		snap: snap,
		s:    sess.Clone(),
		now:  e.now().UTC(),
		log:  e.logger.With("session_id", sess.ID.String()),
		res:  &TurnResult{PromptVersion: snap.Version},
	}

	if t.s.Skill != nil {
		out, err := e.skills.Abandon(*t.s.Skill, "")
		if err != nil {
			t.log.ErrorContext(ctx, "abandon on end", "error", err)
		} else {
			t.recordCompletion(*out.Record)
		}
		if err := leaveSkill(t.s); err != nil {
			return nil, err
		}
	}
	if err := finish(t.s); err != nil {
		return nil, err
	}

	reply := strings.TrimSpace(snap.Flow.Farewell)
	msg := Message{Role: "assistant", Content: reply, Timestamp: t.now}
	t.s.History = trimHistory(append(t.s.History, msg), e.historyLimit)
	t.s.UpdatedAt = t.now
	t.res.Session = t.s
	t.res.Reply = reply
	t.res.Messages = []Message{msg}
	t.res.ShouldEndSession = true
	return t.res, nil
}

func (e *Engine) fault(ctx context.Context, orig *Session, t *turn, err error) (*TurnResult, error) {
	var (
		ist  *InvalidStateTransition
		verr *ValidationError
	)
	integrity := errors.As(err, &ist) || errors.As(err, &verr)
	t.log.ErrorContext(ctx, "turn failed",
		"state", string(orig.State),
		"skill", string(orig.CurrentSkill()),
		"integrity", integrity,
		"strict", e.strict,
		"error", err)

	// Start over from the pre-turn session but keep the risk signal.
	s := orig.Clone()
	s.TurnCount++
	s.RiskLevel = risk.Max(s.RiskLevel, t.res.Verdict.Level)
	s.RiskFlagged = s.RiskFlagged || t.res.RiskEvent != nil
	s.UpdatedAt = t.now
	t.s = s
	t.res.SkillCompletion = nil
	t.res.Grounding = ""
	t.res.Disclaimer = ""

	apology := strings.TrimSpace(t.snap.Flow.Apology)
	if integrity && !e.strict {
		s.State = StateMenu
		s.Skill = nil
		s.Hold = nil
		s.IntakeStep = ""
		return t.complete(apology + "\n\n" + strings.TrimSpace(t.snap.Flow.Menu)), nil
	}

	t.res.Session = s
	t.res.Reply = apology
	return t.res, err
}

// turn is the working set of one ProcessTurn call.
type turn struct {
	e    *Engine
	snap *prompts.Snapshot
	s    *Session
	msg  string
	now  time.Time
	log  *slog.Logger
	res  *TurnResult
}

func (t *turn) terminate(ctx context.Context) (string, error) {
	if err := terminate(t.s); err != nil {
		return "", err
	}
	script := t.snap.CrisisScript(t.s.Intake.Region)
	return t.e.responder.respond(ctx, IntentCrisisScript, "", nil, script), nil
}

func (t *turn) caution(ctx context.Context) (string, error) {
	if t.s.State != StateRiskEscalation {
		if err := hold(t.s); err != nil {
			return "", err
		}
	}
	t.assessDistress()

	support := t.e.responder.respond(ctx, IntentSupport,
		t.system(t.snap.System.Support), t.context(),
		strings.TrimSpace(t.snap.Escalation.MediumSupport))
	reply := support
	if t.res.Decision.IncludeResources {
		reply = joinReply(support, t.snap.MediumResources(t.s.Intake.Region))
	}
	return t.withDisclaimer(reply), nil
}

func (t *turn) proceed(ctx context.Context) (string, error) {
	if t.s.State == StateRiskEscalation {
		if err := resume(t.s); err != nil {
			return "", err
		}
	}
	a := t.assessDistress()

	if t.groundingApplies() {
		h := distress.GroundingHistory{Count: t.s.GroundingCount, LastTurn: t.s.LastGroundingTurn}
		if t.e.grounding.ShouldOffer(a, h, t.s.TurnCount) {
			ex := distress.LookupExercise(a.Technique)
			reply := distress.Offer(a.Level, ex, t.s.GroundingCount > 0)
			t.s.GroundingCount++
			t.s.LastGroundingTurn = t.s.TurnCount
			t.res.Grounding = ex.Key
			t.log.InfoContext(ctx, "grounding offered",
				"distress", a.Level.String(), "technique", ex.Key, "count", t.s.GroundingCount)
			return t.withDisclaimer(reply), nil
		}
	}

	reply, err := t.dispatch(ctx)
	if err != nil {
		return "", err
	}
	if !t.s.Active() {
		return reply, nil
	}
	return t.withDisclaimer(reply), nil
}

func (t *turn) assessDistress() distress.Assessment {
	a := t.e.assessor.Assess(t.msg, t.s.UserMessages(4))
	t.s.DistressLevel = a.Level
	t.res.Distress = a
	return a
}

// Grounding only interrupts the menu and skill practice.
func (t *turn) groundingApplies() bool {
	if t.s.State == StateMenu {
		return true
	}
	_, ok := t.s.State.SkillType()
	return ok
}

func (t *turn) withDisclaimer(reply string) string {
	if t.s.State == StateConsent {
		return reply
	}
	h := distress.DisclaimerHistory{
		Shown:    t.s.DisclaimerShownCount,
		LastTurn: t.s.LastDisclaimerTurn,
		LastAt:   t.s.LastDisclaimerAt,
	}
	kind, ok := t.e.disclaimers.Due(h, t.s.TurnCount, t.s.DistressLevel, t.now)
	if !ok {
		return reply
	}
	text := t.snap.Disclaimer(kind)
	if text == "" {
		return reply
	}
	t.s.DisclaimerShownCount++
	t.s.LastDisclaimerTurn = t.s.TurnCount
	t.s.LastDisclaimerAt = t.now
	t.res.Disclaimer = kind
	return reply + "\n\n" + text
}

func (t *turn) dispatch(ctx context.Context) (string, error) {
	switch t.s.State {
	case StateConsent:
		return t.consent()
	case StateIntake:
		return t.intake()
	case StateMenu:
		return t.menu(ctx)
	}
	if _, ok := t.s.State.SkillType(); ok {
		return t.advanceSkill(ctx)
	}
	return "", &InvalidStateTransition{From: t.s.State, To: t.s.State}
}

var (
	// refuseRe is an explicit refusal; it wins over any accept word.
	refuseRe   = regexp.MustCompile(`(?i)\b(disagree|refuse|(don'?t|do not)\s+(agree|consent|want))\b`)
	acceptRe   = regexp.MustCompile(`(?i)\b(yes|yeah|yep|agree|ok|okay|sure|understand|i do)\b`)
	// hesitantRe cancels an accept word: "not sure", "I don't understand".
	hesitantRe = regexp.MustCompile(`(?i)\b(not|don'?t|do not)\s+(\w+\s+)?(sure|understand|ok|okay)\b`)
	noRe       = regexp.MustCompile(`(?i)^\W*(no|nope|n)\b`)
)

// consent reads the answer to the consent text. Agreement is checked before
// a leading "no", so "ok, no problem" and "yes, I don't mind" both accept.
func (t *turn) consent() (string, error) {
	if !t.s.ConsentShown {
		t.s.ConsentShown = true
		return t.snap.Consent(t.s.Intake.Region), nil
	}
	msg := strings.TrimSpace(strings.ReplaceAll(t.msg, "’", "'"))
	switch {
	case msg == "" || refuseRe.MatchString(msg):
		return t.decline()
	case acceptRe.MatchString(msg) && !hesitantRe.MatchString(msg):
		if err := transition(t.s, StateIntake); err != nil {
			return "", err
		}
		q := t.snap.Flow.Intake[0]
		t.s.IntakeStep = q.Key
		return strings.TrimSpace(q.Question), nil
	case noRe.MatchString(msg):
		return t.decline()
	}
	return strings.TrimSpace(t.snap.Flow.ConsentReprompt), nil
}

func (t *turn) decline() (string, error) {
	if err := finish(t.s); err != nil {
		return "", err
	}
	return strings.TrimSpace(t.snap.Flow.Declined), nil
}

func (t *turn) intake() (string, error) {
	questions := t.snap.Flow.Intake
	idx := -1
	for i, q := range questions {
		if q.Key == t.s.IntakeStep {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.s.IntakeStep = questions[0].Key
		return strings.TrimSpace(questions[0].Question), nil
	}

	answer := strings.TrimSpace(t.msg)
	switch t.s.IntakeStep {
	case "goal":
		t.s.Intake.Goal = answer
	case "tone":
		t.s.Intake.Tone = answer
	case "locale":
		t.s.Intake.Region = prompts.NormalizeRegion(answer)
	}

	if idx+1 < len(questions) {
		next := questions[idx+1]
		t.s.IntakeStep = next.Key
		return strings.TrimSpace(next.Question), nil
	}
	t.s.IntakeStep = ""
	if err := transition(t.s, StateMenu); err != nil {
		return "", err
	}
	done, _ := prompts.Render(t.snap.Flow.IntakeComplete, map[string]string{"Goal": t.s.Intake.Goal})
	return joinReply(done, t.snap.Flow.Menu), nil
}

var endWords = map[string]bool{
	"end": true, "end session": true, "bye": true, "goodbye": true,
	"quit": true, "done": true, "exit": true, "i'm done": true,
}

func isEnd(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	m = strings.TrimRight(m, ".!")
	return endWords[m]
}

func (t *turn) menu(ctx context.Context) (string, error) {
	if isEnd(t.msg) {
		if err := finish(t.s); err != nil {
			return "", err
		}
		return strings.TrimSpace(t.snap.Flow.Farewell), nil
	}
	if progressRe.MatchString(t.msg) {
		return t.reviewProgress(ctx), nil
	}
	if typ, ok := t.e.skills.Match(t.msg); ok {
		return t.startSkill(typ)
	}
	fallback := joinReply(t.snap.Flow.MenuClarify, t.snap.Flow.Menu)
	return t.e.responder.respond(ctx, IntentClarify, t.system(t.snap.System.Clarify), t.context(), fallback), nil
}

// progressRe is menu option 6. It is checked before the skill keywords so
// "review my records" is not read as a thought record.
var progressRe = regexp.MustCompile(`(?i)^\W*6\b|\b(review|progress)\b`)

const progressItems = 5

// reviewProgress lists the patient's latest completions and shows the menu
// again. A failed lookup is shown as no history.
func (t *turn) reviewProgress(ctx context.Context) string {
	var recs []SkillCompletion
	if t.e.progress != nil {
		var err error
		recs, err = t.e.progress.PatientSkillCompletions(ctx, t.s.PatientID, progressItems)
		if err != nil {
			t.log.WarnContext(ctx, "load progress", "error", err)
		}
	}
	items := make([]string, 0, len(recs))
	for _, c := range recs {
		line := fmt.Sprintf("- %s (%s, %s)", t.snap.SkillTitle(c.Skill), c.Status, c.CreatedAt.Format("2 Jan"))
		if c.MoodBefore != nil && c.MoodAfter != nil {
			line += fmt.Sprintf(": %d/10 to %d/10", *c.MoodBefore, *c.MoodAfter)
		}
		items = append(items, line)
	}
	return joinReply(t.snap.Progress(items), t.snap.Flow.Menu)
}

func (t *turn) startSkill(typ skill.Type) (string, error) {
	st, p, err := t.e.skills.Start(typ)
	if err != nil {
		return "", err
	}
	state, ok := StateFor(typ)
	if !ok {
		return "", &ValidationError{Skill: typ, Reason: "no conversation state for skill"}
	}
	if err := enterSkill(t.s, state, &st); err != nil {
		return "", err
	}
	return t.render(p), nil
}

func (t *turn) advanceSkill(ctx context.Context) (string, error) {
	typ, _ := t.s.State.SkillType()
	if t.s.Skill == nil {
		return "", &ValidationError{Skill: typ, Reason: "missing skill state"}
	}
	if t.s.Skill.Type != typ {
		return "", &ValidationError{Skill: typ, Reason: fmt.Sprintf("session holds %s state", t.s.Skill.Type)}
	}

	out, err := t.e.skills.Advance(*t.s.Skill, t.msg)
	if err != nil {
		return "", err
	}
	if !out.Ended() {
		next := out.State
		t.s.Skill = &next
		return t.render(out.Prompt), nil
	}

	t.recordCompletion(*out.Record)
	if err := leaveSkill(t.s); err != nil {
		return "", err
	}

	var text string
	if out.Prompt.Kind == skill.PromptComplete {
		text = t.snap.Completion(typ, t.values(out.Prompt))
		if typ == skill.ThoughtRecord {
			summary := t.e.responder.respond(ctx, IntentSummary, t.system(t.snap.System.Summary),
				[]Message{{Role: "user", Content: recordDigest(*out.Record)}}, "")
			text = joinReply(text, summary)
		}
	} else {
		text = t.snap.Abandoned(typ, out.Prompt.Notice)
	}
	return joinReply(text, t.snap.Flow.Menu), nil
}

func (t *turn) recordCompletion(rec skill.Record) {
	t.res.SkillCompletion = &SkillCompletion{
		ID:        uuid.New(),
		SessionID: t.s.ID,
		PatientID: t.s.PatientID,
		Record:    rec,
		CreatedAt: t.now,
	}
}

// render turns a skill prompt into text.
func (t *turn) render(p skill.Prompt) string {
	if p.Kind != skill.PromptReprompt {
		return t.snap.StepPrompt(p.Skill, p.Step, t.values(p))
	}
	var parts []string
	if len(p.Invalid) > 0 {
		parts = append(parts, strings.TrimSpace(t.snap.Flow.RatingInvalid))
	}
	for _, f := range p.Missing {
		if q := t.snap.FieldPrompt(p.Skill, f); q != "" {
			parts = append(parts, q)
		}
	}
	if len(parts) == 0 {
		return t.snap.StepPrompt(p.Skill, p.Step, t.values(p))
	}
	return strings.Join(parts, " ")
}

// values are the template inputs for a skill prompt: the collected fields
// plus the static content the coping and learn flows show.
func (t *turn) values(p skill.Prompt) map[string]string {
	v := make(map[string]string, len(p.Values)+2)
	for k, val := range p.Values {
		v[k] = val
	}
	if tech := v["technique"]; tech != "" {
		v["instructions"] = t.snap.CopingInstructions(tech)
	}
	if topic := v["topic"]; topic != "" {
		v["card"] = t.snap.LearnCard(topic)
	}
	return v
}

func (t *turn) system(task string) string {
	data := map[string]string{"Goal": t.s.Intake.Goal, "Tone": t.s.Intake.Tone}
	base, err := prompts.Render(t.snap.System.Base, data)
	if err != nil {
		base = t.snap.System.Base
	}
	return joinReply(base, task)
}

// context is the recent conversation plus this turn's message.
func (t *turn) context() []Message {
	h := t.s.History
	if len(h) > t.e.contextWindow {
		h = h[len(h)-t.e.contextWindow:]
	}
	out := append([]Message(nil), h...)
	return append(out, Message{Role: "user", Content: t.msg, Timestamp: t.now})
}

func (t *turn) complete(reply string) *TurnResult {
	user := Message{Role: "user", Content: t.msg, Timestamp: t.now}
	bot := Message{Role: "assistant", Content: reply, Timestamp: t.now}
	t.s.History = trimHistory(append(t.s.History, user, bot), t.e.historyLimit)
	t.s.UpdatedAt = t.now

	t.res.Session = t.s
	t.res.Reply = reply
	t.res.Messages = []Message{user, bot}
	t.res.ShouldEndSession = !t.s.Active()
	return t.res
}

func newRiskEvent(s *Session, v risk.Verdict, d risk.Decision, message string, now time.Time) *RiskEvent {
	ev := &RiskEvent{
		ID:                      uuid.New(),
		SessionID:               s.ID,
		PatientID:               s.PatientID,
		EventType:               EventConcerningContent,
		Level:                   v.Level,
		RiskType:                v.RiskType,
		MatchedKeywords:         v.MatchedKeywords,
		Confidence:              v.Confidence,
		Reasoning:               v.Reasoning,
		Source:                  v.Source,
		ClassifierDegraded:      v.Degraded(),
		EscalationFlowTriggered: d.EscalationFlowTriggered,
		SessionTerminated:       d.SessionTerminated,
		UserMessage:             message,
		CreatedAt:               now,
	}
	if v.Level >= risk.LevelHigh {
		ev.EventType = EventAcuteRisk
	}
	if ev.MatchedKeywords == nil {
		ev.MatchedKeywords = []string{}
	}
	return ev
}

func recordDigest(rec skill.Record) string {
	var b strings.Builder
	for _, k := range []string{"situation", "automatic_thought", "emotion", "intensity_before",
		"evidence_for", "evidence_against", "alternative_thought", "intensity_after"} {
		if v := rec.Data[k]; v != "" {
			fmt.Fprintf(&b, "%s: %s\n", strings.ReplaceAll(k, "_", " "), v)
		}
	}
	return b.String()
}

func agentHistory(h []Message) []agent.Message {
	out := make([]agent.Message, 0, len(h))
	for _, m := range h {
		out = append(out, agent.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func trimHistory(h []Message, limit int) []Message {
	if limit > 0 && len(h) > limit {
		return append([]Message(nil), h[len(h)-limit:]...)
	}
	return h
}

func joinReply(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
