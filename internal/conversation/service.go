package conversation

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"cbt-coach/internal/risk"
)

// Alert is what the clinician alerter receives for a risk event.
type Alert struct {
	Session     *Session
	Event       RiskEvent
	Events      []RiskEvent
	Completions []SkillCompletion
	Transcript  []Message
}

// Alerter forwards risk events to a clinician.
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// transcriptWindow is how much of the message log goes into an alert.
const transcriptWindow = 40

// Service loads a session, runs one turn under the session lock and stores
// the result.
type Service struct {
	engine  *Engine
	repo    Repository
	locks   *Locker
	alerter Alerter
	logger  *slog.Logger

	alerts sync.WaitGroup
}

// NewService wires the turn pipeline to storage. A nil alerter disables
// clinician alerts.
func NewService(engine *Engine, repo Repository, alerter Alerter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:  engine,
		repo:    repo,
		locks:   NewLocker(),
		alerter: alerter,
		logger:  logger,
	}
}

func (s *Service) StartSession(ctx context.Context, patientID uuid.UUID) (*TurnResult, error) {
	if patientID == uuid.Nil {
		patientID = uuid.New()
	}
	res := s.engine.Open(patientID)
	if err := s.persist(ctx, res, written{}); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "session started",
		"session_id", res.Session.ID.String(), "prompt_version", res.PromptVersion)
	return res, nil
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.repo.GetByID(ctx, id)
}

// SendMessage runs one turn. When the engine fails a turn in strict mode the
// result is still stored and returned alongside the error.
func (s *Service) SendMessage(ctx context.Context, id uuid.UUID, text string) (*TurnResult, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	res, turnErr := s.engine.ProcessTurn(ctx, sess, text)
	if res == nil {
		return nil, turnErr
	}
	err = s.persist(ctx, res, written{})
	// The clinician hears about risk even when the store is down.
	s.dispatchAlert(ctx, res)
	if err != nil {
		return nil, err
	}
	return res, turnErr
}

// EndSession closes the session at the user's request.
func (s *Service) EndSession(ctx context.Context, id uuid.UUID) (*TurnResult, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.End(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, res, written{}); err != nil {
		return nil, err
	}
	return res, nil
}

// RetryPersist writes the parts of a turn that failed to store the first time.
func (s *Service) RetryPersist(ctx context.Context, perr *PersistenceError) error {
	if perr == nil || perr.Result == nil || perr.Result.Session == nil {
		return errors.New("nothing to retry")
	}
	unlock, err := s.locks.Lock(ctx, perr.Result.Session.ID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.persist(ctx, perr.Result, perr.saved)
}

// persist writes whatever of res is not in done yet. All writes are
// attempted; their failures are reported together.
func (s *Service) persist(ctx context.Context, res *TurnResult, done written) error {
	var result *multierror.Error
	if !done.turn {
		if err := s.repo.SaveTurn(ctx, res.Session, res.Messages); err != nil {
			result = multierror.Append(result, err)
		} else {
			done.turn = true
		}
	}
	if res.RiskEvent != nil && !done.event {
		if err := s.repo.SaveRiskEvent(ctx, res.RiskEvent); err != nil {
			result = multierror.Append(result, err)
		} else {
			done.event = true
		}
	}
	if res.SkillCompletion != nil && !done.completion {
		if err := s.repo.SaveSkillCompletion(ctx, res.SkillCompletion); err != nil {
			result = multierror.Append(result, err)
		} else {
			done.completion = true
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		s.logger.ErrorContext(ctx, "persist turn",
			"session_id", res.Session.ID.String(), "error", err)
		return &PersistenceError{Result: res, Err: err, saved: done}
	}
	return nil
}

// dispatchAlert hands medium and high events to the alerter off the turn
// path. Delivery failures are logged only.
func (s *Service) dispatchAlert(ctx context.Context, res *TurnResult) {
	if s.alerter == nil || res.RiskEvent == nil || res.RiskEvent.Level < risk.LevelMedium {
		return
	}
	ctx = context.WithoutCancel(ctx)
	sess := res.Session.Clone()
	ev := *res.RiskEvent

	s.alerts.Add(1)
	go func() {
		defer s.alerts.Done()
		log := s.logger.With("session_id", sess.ID.String(), "event_id", ev.ID.String())

		a := Alert{Session: sess, Event: ev}
		var err error
		if a.Events, err = s.repo.RiskEvents(ctx, sess.ID); err != nil {
			log.WarnContext(ctx, "alert: load risk events", "error", err)
		}
		if !slices.ContainsFunc(a.Events, func(e RiskEvent) bool { return e.ID == ev.ID }) {
			a.Events = append(a.Events, ev)
		}
		if a.Completions, err = s.repo.SkillCompletions(ctx, sess.ID); err != nil {
			log.WarnContext(ctx, "alert: load skill completions", "error", err)
		}
		if a.Transcript, err = s.repo.Transcript(ctx, sess.ID, transcriptWindow); err != nil || len(a.Transcript) == 0 {
			if err != nil {
				log.WarnContext(ctx, "alert: load transcript", "error", err)
			}
			a.Transcript = trimHistory(sess.History, transcriptWindow)
		}

		if err := s.alerter.Alert(ctx, a); err != nil {
			log.ErrorContext(ctx, "clinician alert failed", "level", ev.Level.String(), "error", err)
			return
		}
		log.InfoContext(ctx, "clinician alerted", "level", ev.Level.String())
	}()
}

// Wait blocks until every alert in flight has been delivered or has failed.
func (s *Service) Wait() {
	s.alerts.Wait()
}
