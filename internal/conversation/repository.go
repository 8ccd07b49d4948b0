package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"cbt-coach/internal/distress"
	"cbt-coach/internal/risk"
	"cbt-coach/internal/skill"
)

// Repository stores sessions and the records their turns produce.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	// SaveTurn upserts the session and appends the turn's messages atomically.
	SaveTurn(ctx context.Context, s *Session, msgs []Message) error
	// SaveRiskEvent and SaveSkillCompletion are idempotent on the record id.
	SaveRiskEvent(ctx context.Context, ev *RiskEvent) error
	SaveSkillCompletion(ctx context.Context, c *SkillCompletion) error
	RiskEvents(ctx context.Context, sessionID uuid.UUID) ([]RiskEvent, error)
	SkillCompletions(ctx context.Context, sessionID uuid.UUID) ([]SkillCompletion, error)
	// PatientSkillCompletions returns the patient's last limit records across
	// all sessions, newest first.
	PatientSkillCompletions(ctx context.Context, patientID uuid.UUID, limit int) ([]SkillCompletion, error)
	// Transcript returns the last limit messages of the full log, oldest first.
	Transcript(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error)
}

type sqlRepo struct {
	db *sqlx.DB
}

// NewRepository works with any driver sqlx knows the bind type of.
func NewRepository(db *sqlx.DB) Repository {
	return &sqlRepo{db: db}
}

type sessionRow struct {
	ID                   uuid.UUID      `db:"id"`
	PatientID            uuid.UUID      `db:"patient_id"`
	CurrentState         string         `db:"current_state"`
	CurrentSkill         sql.NullString `db:"current_skill"`
	CurrentStep          sql.NullString `db:"current_step"`
	StateData            sql.NullString `db:"state_data"`
	IntakeStep           string         `db:"intake_step"`
	Intake               string         `db:"intake"`
	Hold                 sql.NullString `db:"hold"`
	History              string         `db:"history"`
	RiskLevel            string         `db:"risk_level"`
	DistressLevel        string         `db:"distress_level"`
	RiskFlagged          bool           `db:"risk_flagged"`
	TurnCount            int            `db:"turn_count"`
	GroundingCount       int            `db:"grounding_count"`
	LastGroundingTurn    int            `db:"last_grounding_turn"`
	DisclaimerShownCount int            `db:"disclaimer_shown_count"`
	LastDisclaimerTurn   int            `db:"last_disclaimer_turn"`
	LastDisclaimerAt     sql.NullTime   `db:"last_disclaimer_at"`
	ConsentShown         bool           `db:"consent_shown"`
	Status               string         `db:"status"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

const sessionColumns = `id, patient_id, current_state, current_skill, current_step, state_data,
	intake_step, intake, hold, history, risk_level, distress_level, risk_flagged, turn_count,
	grounding_count, last_grounding_turn, disclaimer_shown_count, last_disclaimer_turn,
	last_disclaimer_at, consent_shown, status, created_at, updated_at`

func (r *sqlRepo) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	var row sessionRow
	query := r.db.Rebind(`SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`)
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	s, err := row.session()
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return s, nil
}

func (row *sessionRow) session() (*Session, error) {
	s := &Session{
		ID:                   row.ID,
		PatientID:            row.PatientID,
		State:                State(row.CurrentState),
		IntakeStep:           row.IntakeStep,
		RiskFlagged:          row.RiskFlagged,
		TurnCount:            row.TurnCount,
		GroundingCount:       row.GroundingCount,
		LastGroundingTurn:    row.LastGroundingTurn,
		DisclaimerShownCount: row.DisclaimerShownCount,
		LastDisclaimerTurn:   row.LastDisclaimerTurn,
		ConsentShown:         row.ConsentShown,
		Status:               Status(row.Status),
		CreatedAt:            row.CreatedAt.UTC(),
		UpdatedAt:            row.UpdatedAt.UTC(),
	}
	if row.LastDisclaimerAt.Valid {
		s.LastDisclaimerAt = row.LastDisclaimerAt.Time.UTC()
	}

	var err error
	if s.RiskLevel, err = risk.ParseLevel(row.RiskLevel); err != nil {
		return nil, err
	}
	if s.DistressLevel, err = distress.ParseLevel(row.DistressLevel); err != nil {
		return nil, err
	}
	if row.Intake != "" {
		if err := json.Unmarshal([]byte(row.Intake), &s.Intake); err != nil {
			return nil, fmt.Errorf("intake: %w", err)
		}
	}
	if row.History != "" {
		if err := json.Unmarshal([]byte(row.History), &s.History); err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
	}
	if s.History == nil {
		s.History = []Message{}
	}
	if row.Hold.Valid && row.Hold.String != "" && row.Hold.String != "null" {
		var h Hold
		if err := json.Unmarshal([]byte(row.Hold.String), &h); err != nil {
			return nil, fmt.Errorf("hold: %w", err)
		}
		s.Hold = &h
	}

	if row.CurrentSkill.Valid && row.CurrentSkill.String != "" {
		typ := skill.Type(row.CurrentSkill.String)
		// The payload is decoded with the stored skill as its tag.
		data, err := skill.DecodeData(typ, []byte(row.StateData.String))
		if err != nil {
			return nil, err
		}
		s.Skill = &skill.State{Type: typ, Step: row.CurrentStep.String, Data: data}
	}
	return s, nil
}

func newSessionRow(s *Session) (*sessionRow, error) {
	intake, err := json.Marshal(s.Intake)
	if err != nil {
		return nil, err
	}
	history := s.History
	if history == nil {
		history = []Message{}
	}
	hist, err := json.Marshal(history)
	if err != nil {
		return nil, err
	}

	row := &sessionRow{
		ID:                   s.ID,
		PatientID:            s.PatientID,
		CurrentState:         string(s.State),
		IntakeStep:           s.IntakeStep,
		Intake:               string(intake),
		History:              string(hist),
		RiskLevel:            s.RiskLevel.String(),
		DistressLevel:        s.DistressLevel.String(),
		RiskFlagged:          s.RiskFlagged,
		TurnCount:            s.TurnCount,
		GroundingCount:       s.GroundingCount,
		LastGroundingTurn:    s.LastGroundingTurn,
		DisclaimerShownCount: s.DisclaimerShownCount,
		LastDisclaimerTurn:   s.LastDisclaimerTurn,
		LastDisclaimerAt:     sql.NullTime{Time: s.LastDisclaimerAt, Valid: !s.LastDisclaimerAt.IsZero()},
		ConsentShown:         s.ConsentShown,
		Status:               string(s.Status),
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
	if s.Hold != nil {
		h, err := json.Marshal(s.Hold)
		if err != nil {
			return nil, fmt.Errorf("hold: %w", err)
		}
		row.Hold = sql.NullString{String: string(h), Valid: true}
	}
	if s.Skill != nil {
		if s.Skill.Data != nil && s.Skill.Data.Skill() != s.Skill.Type {
			return nil, &ValidationError{Skill: s.Skill.Type, Reason: "data belongs to " + string(s.Skill.Data.Skill())}
		}
		data := []byte("{}")
		if s.Skill.Data != nil {
			if data, err = json.Marshal(s.Skill.Data); err != nil {
				return nil, err
			}
		}
		row.CurrentSkill = sql.NullString{String: string(s.Skill.Type), Valid: true}
		row.CurrentStep = sql.NullString{String: s.Skill.Step, Valid: true}
		row.StateData = sql.NullString{String: string(data), Valid: true}
	}
	return row, nil
}

const upsertSession = `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES (:id, :patient_id, :current_state, :current_skill, :current_step, :state_data,
		:intake_step, :intake, :hold, :history, :risk_level, :distress_level, :risk_flagged, :turn_count,
		:grounding_count, :last_grounding_turn, :disclaimer_shown_count, :last_disclaimer_turn,
		:last_disclaimer_at, :consent_shown, :status, :created_at, :updated_at)
	ON CONFLICT (id) DO UPDATE SET
		current_state = excluded.current_state,
		current_skill = excluded.current_skill,
		current_step = excluded.current_step,
		state_data = excluded.state_data,
		intake_step = excluded.intake_step,
		intake = excluded.intake,
		hold = excluded.hold,
		history = excluded.history,
		risk_level = excluded.risk_level,
		distress_level = excluded.distress_level,
		risk_flagged = excluded.risk_flagged,
		turn_count = excluded.turn_count,
		grounding_count = excluded.grounding_count,
		last_grounding_turn = excluded.last_grounding_turn,
		disclaimer_shown_count = excluded.disclaimer_shown_count,
		last_disclaimer_turn = excluded.last_disclaimer_turn,
		last_disclaimer_at = excluded.last_disclaimer_at,
		consent_shown = excluded.consent_shown,
		status = excluded.status,
		updated_at = excluded.updated_at`

type messageRow struct {
	SessionID uuid.UUID `db:"session_id"`
	Role      string    `db:"role"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *sqlRepo) SaveTurn(ctx context.Context, s *Session, msgs []Message) error {
	row, err := newSessionRow(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, upsertSession, row); err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	if len(msgs) > 0 {
		rows := make([]messageRow, 0, len(msgs))
		for _, m := range msgs {
			rows = append(rows, messageRow{SessionID: s.ID, Role: m.Role, Content: m.Content, CreatedAt: m.Timestamp})
		}
		const q = `INSERT INTO messages (session_id, role, content, created_at)
			VALUES (:session_id, :role, :content, :created_at)`
		if _, err := tx.NamedExecContext(ctx, q, rows); err != nil {
			return fmt.Errorf("append messages %s: %w", s.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type riskEventRow struct {
	ID                      uuid.UUID `db:"id"`
	SessionID               uuid.UUID `db:"session_id"`
	PatientID               uuid.UUID `db:"patient_id"`
	EventType               string    `db:"event_type"`
	RiskLevel               string    `db:"risk_level"`
	RiskType                string    `db:"risk_type"`
	MatchedKeywords         string    `db:"matched_keywords"`
	Confidence              *float64  `db:"confidence"`
	Reasoning               string    `db:"reasoning"`
	Source                  string    `db:"source"`
	ClassifierDegraded      bool      `db:"classifier_degraded"`
	EscalationFlowTriggered bool      `db:"escalation_flow_triggered"`
	SessionTerminated       bool      `db:"session_terminated"`
	UserMessage             string    `db:"user_message"`
	CreatedAt               time.Time `db:"created_at"`
}

const riskEventColumns = `id, session_id, patient_id, event_type, risk_level, risk_type,
	matched_keywords, confidence, reasoning, source, classifier_degraded,
	escalation_flow_triggered, session_terminated, user_message, created_at`

func (r *sqlRepo) SaveRiskEvent(ctx context.Context, ev *RiskEvent) error {
	kw := ev.MatchedKeywords
	if kw == nil {
		kw = []string{}
	}
	kwJSON, err := json.Marshal(kw)
	if err != nil {
		return err
	}
	row := riskEventRow{
		ID:                      ev.ID,
		SessionID:               ev.SessionID,
		PatientID:               ev.PatientID,
		EventType:               string(ev.EventType),
		RiskLevel:               ev.Level.String(),
		RiskType:                ev.RiskType,
		MatchedKeywords:         string(kwJSON),
		Confidence:              ev.Confidence,
		Reasoning:               ev.Reasoning,
		Source:                  string(ev.Source),
		ClassifierDegraded:      ev.ClassifierDegraded,
		EscalationFlowTriggered: ev.EscalationFlowTriggered,
		SessionTerminated:       ev.SessionTerminated,
		UserMessage:             ev.UserMessage,
		CreatedAt:               ev.CreatedAt,
	}
	const q = `INSERT INTO risk_events (` + riskEventColumns + `)
		VALUES (:id, :session_id, :patient_id, :event_type, :risk_level, :risk_type,
			:matched_keywords, :confidence, :reasoning, :source, :classifier_degraded,
			:escalation_flow_triggered, :session_terminated, :user_message, :created_at)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("save risk event %s: %w", ev.ID, err)
	}
	return nil
}

func (r *sqlRepo) RiskEvents(ctx context.Context, sessionID uuid.UUID) ([]RiskEvent, error) {
	var rows []riskEventRow
	query := r.db.Rebind(`SELECT ` + riskEventColumns + ` FROM risk_events WHERE session_id = ? ORDER BY created_at, id`)
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list risk events: %w", err)
	}
	out := make([]RiskEvent, 0, len(rows))
	for _, row := range rows {
		level, err := risk.ParseLevel(row.RiskLevel)
		if err != nil {
			return nil, err
		}
		ev := RiskEvent{
			ID:                      row.ID,
			SessionID:               row.SessionID,
			PatientID:               row.PatientID,
			EventType:               EventType(row.EventType),
			Level:                   level,
			RiskType:                row.RiskType,
			Confidence:              row.Confidence,
			Reasoning:               row.Reasoning,
			Source:                  risk.Tier(row.Source),
			ClassifierDegraded:      row.ClassifierDegraded,
			EscalationFlowTriggered: row.EscalationFlowTriggered,
			SessionTerminated:       row.SessionTerminated,
			UserMessage:             row.UserMessage,
			CreatedAt:               row.CreatedAt.UTC(),
		}
		if err := json.Unmarshal([]byte(row.MatchedKeywords), &ev.MatchedKeywords); err != nil {
			return nil, fmt.Errorf("matched keywords: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

type completionRow struct {
	ID               uuid.UUID `db:"id"`
	SessionID        uuid.UUID `db:"session_id"`
	PatientID        uuid.UUID `db:"patient_id"`
	SkillType        string    `db:"skill_type"`
	CompletionStatus string    `db:"completion_status"`
	MoodBefore       *int      `db:"mood_before"`
	MoodAfter        *int      `db:"mood_after"`
	KeyInsight       string    `db:"key_insight"`
	Data             string    `db:"data"`
	CreatedAt        time.Time `db:"created_at"`
}

const completionColumns = `id, session_id, patient_id, skill_type, completion_status,
	mood_before, mood_after, key_insight, data, created_at`

func (r *sqlRepo) SaveSkillCompletion(ctx context.Context, c *SkillCompletion) error {
	data := c.Data
	if data == nil {
		data = map[string]string{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return err
	}
	row := completionRow{
		ID:               c.ID,
		SessionID:        c.SessionID,
		PatientID:        c.PatientID,
		SkillType:        string(c.Skill),
		CompletionStatus: string(c.Status),
		MoodBefore:       c.MoodBefore,
		MoodAfter:        c.MoodAfter,
		KeyInsight:       c.KeyInsight,
		Data:             string(dataJSON),
		CreatedAt:        c.CreatedAt,
	}
	const q = `INSERT INTO skill_completions (` + completionColumns + `)
		VALUES (:id, :session_id, :patient_id, :skill_type, :completion_status,
			:mood_before, :mood_after, :key_insight, :data, :created_at)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("save skill completion %s: %w", c.ID, err)
	}
	return nil
}

func (r *sqlRepo) SkillCompletions(ctx context.Context, sessionID uuid.UUID) ([]SkillCompletion, error) {
	var rows []completionRow
	query := r.db.Rebind(`SELECT ` + completionColumns + ` FROM skill_completions WHERE session_id = ? ORDER BY created_at, id`)
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list skill completions: %w", err)
	}
	return completions(rows)
}

func (r *sqlRepo) PatientSkillCompletions(ctx context.Context, patientID uuid.UUID, limit int) ([]SkillCompletion, error) {
	var rows []completionRow
	query := r.db.Rebind(`SELECT ` + completionColumns + ` FROM skill_completions
		WHERE patient_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &rows, query, patientID, limit); err != nil {
		return nil, fmt.Errorf("list patient skill completions: %w", err)
	}
	return completions(rows)
}

func completions(rows []completionRow) ([]SkillCompletion, error) {
	out := make([]SkillCompletion, 0, len(rows))
	for _, row := range rows {
		c := SkillCompletion{
			ID:        row.ID,
			SessionID: row.SessionID,
			PatientID: row.PatientID,
			Record: skill.Record{
				Skill:      skill.Type(row.SkillType),
				Status:     skill.CompletionStatus(row.CompletionStatus),
				MoodBefore: row.MoodBefore,
				MoodAfter:  row.MoodAfter,
				KeyInsight: row.KeyInsight,
			},
			CreatedAt: row.CreatedAt.UTC(),
		}
		if err := json.Unmarshal([]byte(row.Data), &c.Data); err != nil {
			return nil, fmt.Errorf("completion data: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *sqlRepo) Transcript(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error) {
	var rows []messageRow
	query := r.db.Rebind(`SELECT session_id, role, content, created_at FROM messages
		WHERE session_id = ? ORDER BY id DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &rows, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	out := make([]Message, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = Message{Role: row.Role, Content: row.Content, Timestamp: row.CreatedAt.UTC()}
	}
	return out, nil
}
