package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbt-coach/internal/risk"
)

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (a *recordingAlerter) Alert(_ context.Context, al Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, al)
	return a.err
}

func (a *recordingAlerter) received() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Alert(nil), a.alerts...)
}

// flakyRepo fails risk event writes until healed.
type flakyRepo struct {
	Repository
	mu     sync.Mutex
	broken bool
}

func (r *flakyRepo) SaveRiskEvent(ctx context.Context, ev *RiskEvent) error {
	r.mu.Lock()
	broken := r.broken
	r.mu.Unlock()
	if broken {
		return errors.New("disk full")
	}
	return r.Repository.SaveRiskEvent(ctx, ev)
}

func (r *flakyRepo) heal() {
	r.mu.Lock()
	r.broken = false
	r.mu.Unlock()
}

func newTestService(t *testing.T, repo Repository, alerter Alerter) *Service {
	t.Helper()
	e := newTestEngine(t, &stubJudge{}, &stubGenerator{reply: "ok"})
	if repo == nil {
		repo = NewRepository(newTestDB(t))
	}
	return NewService(e, repo, alerter, nil)
}

func TestService_StartAndSend(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil, nil)

	start, err := svc.StartSession(ctx, uuid.Nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, start.Session.PatientID)

	res, err := svc.SendMessage(ctx, start.Session.ID, "yes")
	require.NoError(t, err)
	assert.Equal(t, StateIntake, res.Session.State)

	stored, err := svc.GetSession(ctx, start.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, StateIntake, stored.State)
	assert.Equal(t, "goal", stored.IntakeStep)
	assert.Equal(t, 1, stored.TurnCount)
	assert.Len(t, stored.History, 3)

	_, err = svc.SendMessage(ctx, uuid.New(), "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_HighRiskIsStoredAndAlerted(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))
	alerter := &recordingAlerter{}
	svc := newTestService(t, repo, alerter)

	start, err := svc.StartSession(ctx, uuid.New())
	require.NoError(t, err)
	id := start.Session.ID

	res, err := svc.SendMessage(ctx, id, "I want to kill myself")
	require.NoError(t, err)
	assert.True(t, res.ShouldEndSession)
	svc.Wait()

	events, err := repo.RiskEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, risk.LevelHigh, events[0].Level)
	assert.True(t, events[0].SessionTerminated)

	alerts := alerter.received()
	require.Len(t, alerts, 1)
	assert.Equal(t, events[0].ID, alerts[0].Event.ID)
	assert.Len(t, alerts[0].Events, 1)
	assert.Len(t, alerts[0].Transcript, 3)
	assert.Equal(t, StatusTerminated, alerts[0].Session.Status)

	stored, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, stored.Status)

	_, err = svc.SendMessage(ctx, id, "sorry, I didn't mean it")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestService_AlertFailureDoesNotFailTurn(t *testing.T) {
	ctx := context.Background()
	alerter := &recordingAlerter{err: errors.New("telegram down")}
	svc := newTestService(t, nil, alerter)

	start, err := svc.StartSession(ctx, uuid.New())
	require.NoError(t, err)
	res, err := svc.SendMessage(ctx, start.Session.ID, "it all feels hopeless")
	require.NoError(t, err)
	assert.Equal(t, StateRiskEscalation, res.Session.State)
	svc.Wait()
	assert.Len(t, alerter.received(), 1)
}

func TestService_PersistenceErrorCanBeRetried(t *testing.T) {
	ctx := context.Background()
	base := NewRepository(newTestDB(t))
	repo := &flakyRepo{Repository: base}
	svc := newTestService(t, repo, nil)

	start, err := svc.StartSession(ctx, uuid.New())
	require.NoError(t, err)
	id := start.Session.ID

	repo.mu.Lock()
	repo.broken = true
	repo.mu.Unlock()

	_, err = svc.SendMessage(ctx, id, "I want to end my life")
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retryable())
	require.NotNil(t, perr.Result.RiskEvent)
	assert.Contains(t, err.Error(), "disk full")

	repo.heal()
	require.NoError(t, svc.RetryPersist(ctx, perr))

	events, err := base.RiskEvents(ctx, id)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	transcript, err := base.Transcript(ctx, id, 10)
	require.NoError(t, err)
	assert.Len(t, transcript, 3, "messages are written once")
}

func TestService_TurnsOnOneSessionAreSerialised(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil, nil)

	start, err := svc.StartSession(ctx, uuid.New())
	require.NoError(t, err)
	id := start.Session.ID

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SendMessage(ctx, id, "what is this?")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, n, stored.TurnCount)
	assert.Len(t, stored.History, 1+2*n)
	assert.Zero(t, svc.locks.Len())
}

func TestService_EndSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil, nil)

	start, err := svc.StartSession(ctx, uuid.New())
	require.NoError(t, err)

	res, err := svc.EndSession(ctx, start.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Session.Status)

	_, err = svc.EndSession(ctx, start.Session.ID)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestLocker(t *testing.T) {
	l := NewLocker()
	a, b := uuid.New(), uuid.New()

	unlockA, err := l.Lock(context.Background(), a)
	require.NoError(t, err)
	unlockB, err := l.Lock(context.Background(), b)
	require.NoError(t, err, "distinct sessions do not contend")
	assert.Equal(t, 2, l.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, a)
	assert.ErrorIs(t, err, context.Canceled)

	unlockA()
	unlockA()
	unlockB()
	assert.Zero(t, l.Len())
}
