package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cbt-coach/internal/conversation"
	"cbt-coach/internal/risk"
	"cbt-coach/internal/skill"
)

type sent struct {
	chatID  int64
	text    string
	file    string
	caption string
	data    []byte
}

type stubSender struct {
	mu       sync.Mutex
	messages []sent
	docs     []sent
	err      error
}

func (s *stubSender) SendMessage(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, sent{chatID: chatID, text: text})
	return s.err
}

func (s *stubSender) SendDocument(_ context.Context, chatID int64, data []byte, fileName, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, sent{chatID: chatID, data: data, file: fileName, caption: caption})
	return s.err
}

var alertTime = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func testAlert(level risk.Level) conversation.Alert {
	sess := conversation.NewSession(uuid.New(), alertTime)
	sess.RiskLevel = level
	ev := conversation.RiskEvent{
		ID:              uuid.New(),
		SessionID:       sess.ID,
		PatientID:       sess.PatientID,
		EventType:       conversation.EventConcerningContent,
		Level:           level,
		RiskType:        "self_harm",
		MatchedKeywords: []string{"hurt myself"},
		Source:          risk.TierKeyword,
		UserMessage:     "sometimes I want to hurt myself",
		CreatedAt:       alertTime,
	}
	if level >= risk.LevelHigh {
		ev.EventType = conversation.EventAcuteRisk
		ev.SessionTerminated = true
	}
	before, after := 7, 4
	return conversation.Alert{
		Session: sess,
		Event:   ev,
		Events:  []conversation.RiskEvent{ev},
		Completions: []conversation.SkillCompletion{{
			ID:        uuid.New(),
			SessionID: sess.ID,
			Record: skill.Record{
				Skill:      skill.ThoughtRecord,
				Status:     skill.StatusCompleted,
				MoodBefore: &before,
				MoodAfter:  &after,
				KeyInsight: "one mistake is not the whole job",
			},
		}},
		Transcript: []conversation.Message{
			{Role: "user", Content: "hi", Timestamp: alertTime},
			{Role: "assistant", Content: "Hello, how are you feeling today?", Timestamp: alertTime},
			{Role: "user", Content: ev.UserMessage, Timestamp: alertTime},
		},
	}
}

func TestSummary(t *testing.T) {
	a := testAlert(risk.LevelHigh)
	a.Event.ClassifierDegraded = true
	a.Event.Reasoning = "explicit self-harm intent"

	got := Summary(a)
	assert.Contains(t, got, "RISK ALERT: HIGH")
	assert.Contains(t, got, "Type: Self Harm")
	assert.Contains(t, got, "Source: keyword (classifier unavailable)")
	assert.Contains(t, got, "Keywords: hurt myself")
	assert.Contains(t, got, "Reasoning: explicit self-harm intent")
	assert.Contains(t, got, `Message: "sometimes I want to hurt myself"`)
	assert.Contains(t, got, "Action: session ended")
	assert.Contains(t, got, "Time: 2026-03-02T09:30:00Z")

	a = testAlert(risk.LevelMedium)
	a.Event.RiskType = ""
	got = Summary(a)
	assert.Contains(t, got, "RISK ALERT: MEDIUM")
	assert.Contains(t, got, "Type: Unspecified")
	assert.Contains(t, got, "Action: session continues")
	assert.NotContains(t, got, "Reasoning:")
}

func TestAlert_MediumSendsTextOnly(t *testing.T) {
	sender := &stubSender{}
	svc := NewService(sender, -100123)

	require.NoError(t, svc.Alert(context.Background(), testAlert(risk.LevelMedium)))
	require.Len(t, sender.messages, 1)
	assert.Equal(t, int64(-100123), sender.messages[0].chatID)
	assert.Empty(t, sender.docs)
}

func TestAlert_HighWithoutFontStillSendsText(t *testing.T) {
	sender := &stubSender{}
	svc := NewService(sender, 42)
	svc.fonts = []string{"/nonexistent/font.ttf"}

	err := svc.Alert(context.Background(), testAlert(risk.LevelHigh))
	require.ErrorIs(t, err, ErrNoFont)
	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0].text, "RISK ALERT: HIGH")
	assert.Empty(t, sender.docs)
}

func TestAlert_SenderError(t *testing.T) {
	sender := &stubSender{err: errors.New("telegram down")}
	svc := NewService(sender, 42)

	err := svc.Alert(context.Background(), testAlert(risk.LevelMedium))
	assert.EqualError(t, err, "telegram down")
}

func availableFont(t *testing.T) string {
	t.Helper()
	for _, p := range DefaultFontPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	t.Skip("no DejaVu font installed")
	return ""
}

func TestRenderPDF(t *testing.T) {
	font := availableFont(t)
	svc := NewService(&stubSender{}, 42, WithFont(font), WithClock(func() time.Time { return alertTime }))

	a := testAlert(risk.LevelHigh)
	for i := 0; i < 80; i++ {
		a.Transcript = append(a.Transcript, conversation.Message{
			Role: "user", Content: "a fairly long line of transcript text that should wrap across the page width at least once", Timestamp: alertTime,
		})
	}
	pdf, err := svc.RenderPDF(a)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
}

func TestAlert_HighSendsReport(t *testing.T) {
	font := availableFont(t)
	sender := &stubSender{}
	svc := NewService(sender, 42, WithFont(font))

	a := testAlert(risk.LevelHigh)
	require.NoError(t, svc.Alert(context.Background(), a))
	require.Len(t, sender.messages, 1)
	require.Len(t, sender.docs, 1)
	assert.Equal(t, "session_"+a.Session.ID.String()+"_20260302T093000.pdf", sender.docs[0].file)
	assert.NotEmpty(t, sender.docs[0].data)
}
