// Package report turns risk events into clinician alerts: a text message for
// every event and, for high risk, a PDF session report.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/signintech/gopdf"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"cbt-coach/internal/conversation"
	"cbt-coach/internal/risk"
)

type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, data []byte, fileName, caption string) error
}

// DefaultFontPaths are tried in order for the report font.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

// ErrNoFont is returned when none of the font paths could be loaded.
var ErrNoFont = errors.New("no usable font for PDF report")

type Service struct {
	sender Sender
	chatID int64
	fonts  []string
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithFont puts path ahead of the default font locations.
func WithFont(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.fonts = append([]string{path}, s.fonts...)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(sender Sender, clinicianChatID int64, opts ...Option) *Service {
	s := &Service{
		sender: sender,
		chatID: clinicianChatID,
		fonts:  append([]string(nil), DefaultFontPaths...),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Alert sends the text alert and, for high risk, the PDF report. Both go
// out concurrently and one failing does not cancel the other; the first
// failure is returned.
func (s *Service) Alert(ctx context.Context, a conversation.Alert) error {
	var g errgroup.Group
	g.Go(func() error {
		return s.sender.SendMessage(ctx, s.chatID, Summary(a))
	})
	if a.Event.Level >= risk.LevelHigh {
		g.Go(func() error {
			pdf, err := s.RenderPDF(a)
			if err != nil {
				s.logger.WarnContext(ctx, "session report not rendered, text alert only",
					"session_id", a.Session.ID.String(), "error", err)
				return fmt.Errorf("render report: %w", err)
			}
			name := fmt.Sprintf("session_%s_%s.pdf", a.Session.ID, a.Event.CreatedAt.Format("20060102T150405"))
			return s.sender.SendDocument(ctx, s.chatID, pdf, name, "Session report "+a.Session.ID.String())
		})
	}
	return g.Wait()
}

// label turns identifiers like "self_harm" into "Self Harm". A Caser is
// stateful, so each call gets its own.
func label(id string) string {
	if id == "" {
		return "Unspecified"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(id, "_", " "))
}

// Summary is the plain-text clinician alert.
func Summary(a conversation.Alert) string {
	ev := a.Event
	var b strings.Builder
	fmt.Fprintf(&b, "RISK ALERT: %s\n", strings.ToUpper(ev.Level.String()))
	fmt.Fprintf(&b, "Session: %s\n", ev.SessionID)
	fmt.Fprintf(&b, "Patient: %s\n", ev.PatientID)
	fmt.Fprintf(&b, "Type: %s\n", label(ev.RiskType))
	source := string(ev.Source)
	if ev.ClassifierDegraded {
		source += " (classifier unavailable)"
	}
	fmt.Fprintf(&b, "Source: %s\n", source)
	if len(ev.MatchedKeywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(ev.MatchedKeywords, ", "))
	}
	if ev.Reasoning != "" {
		fmt.Fprintf(&b, "Reasoning: %s\n", ev.Reasoning)
	}
	fmt.Fprintf(&b, "Message: %q\n", ev.UserMessage)
	switch {
	case ev.SessionTerminated:
		b.WriteString("Action: session ended, crisis resources shown\n")
	default:
		b.WriteString("Action: session continues, support resources shown\n")
	}
	fmt.Fprintf(&b, "Time: %s", ev.CreatedAt.UTC().Format(time.RFC3339))
	return b.String()
}

const (
	pageTop    = 40.0
	pageBottom = 800.0
	textWidth  = 500.0
)

// writer keeps track of page breaks while laying out lines.
type writer struct {
	pdf  *gopdf.GoPdf
	font string
	err  error
}

func (w *writer) setFont(size float64) {
	if w.err == nil {
		w.err = w.pdf.SetFont(w.font, "", size)
	}
}

func (w *writer) line(text string, height float64) {
	if w.err != nil {
		return
	}
	if text == "" {
		w.pdf.Br(height)
		return
	}
	if w.pdf.GetY()+height > pageBottom {
		w.pdf.AddPage()
		w.pdf.SetY(pageTop)
	}
	w.pdf.SetX(pageTop)
	if err := w.pdf.Cell(nil, text); err != nil {
		// Glyphs missing from the font (emoji, mostly) are dropped.
		w.err = w.pdf.Cell(nil, printable(text))
	}
	w.pdf.Br(height)
}

func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxLatin1 && !unicode.IsLetter(r) {
			return -1
		}
		return r
	}, s)
}

// para wraps text to the page width.
func (w *writer) para(text string, height float64) {
	for _, p := range strings.Split(text, "\n") {
		if strings.TrimSpace(p) == "" {
			w.line("", height)
			continue
		}
		lines, err := w.pdf.SplitText(p, textWidth)
		if err != nil {
			lines = []string{p}
		}
		for _, l := range lines {
			w.line(l, height)
		}
	}
}

func (w *writer) heading(text string) {
	w.pdf.Br(8)
	w.setFont(14)
	w.line(text, 20)
	w.setFont(10)
}

// RenderPDF builds the session report: summary, risk events, skill work and
// the recent transcript.
func (s *Service) RenderPDF(a conversation.Alert) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.SetInfo(gopdf.PdfInfo{
		Title:        "Clinician session report",
		Subject:      a.Session.ID.String(),
		Creator:      "cbt-coach",
		CreationDate: s.now(),
	})
	pdf.AddPage()

	var loadErr error
	loaded := false
	for _, path := range s.fonts {
		if err := pdf.AddTTFFont("body", path); err != nil {
			loadErr = err
			continue
		}
		loaded = true
		break
	}
	if !loaded {
		return nil, fmt.Errorf("%w: %v", ErrNoFont, loadErr)
	}

	w := &writer{pdf: pdf, font: "body"}
	sess := a.Session
	pdf.SetY(pageTop)
	w.setFont(20)
	w.line("Clinician Session Report", 30)

	w.setFont(10)
	w.line("Generated: "+s.now().UTC().Format("2006-01-02 15:04 MST"), 14)
	w.line("Session: "+sess.ID.String(), 14)
	w.line("Patient: "+sess.PatientID.String(), 14)
	w.line(fmt.Sprintf("Status: %s   State: %s   Turns: %d", label(string(sess.Status)), sess.State, sess.TurnCount), 14)
	w.line(fmt.Sprintf("Risk level: %s   Distress: %s", label(sess.RiskLevel.String()), label(sess.DistressLevel.String())), 14)
	if sess.Intake.Goal != "" {
		w.para("Session goal: "+sess.Intake.Goal, 14)
	}

	w.heading("Risk events")
	for _, ev := range a.Events {
		w.line(fmt.Sprintf("%s  %s  %s (%s)", ev.CreatedAt.UTC().Format("2006-01-02 15:04"),
			strings.ToUpper(ev.Level.String()), label(ev.RiskType), ev.Source), 14)
		if len(ev.MatchedKeywords) > 0 {
			w.para("  Keywords: "+strings.Join(ev.MatchedKeywords, ", "), 13)
		}
		if ev.Reasoning != "" {
			w.para("  Reasoning: "+ev.Reasoning, 13)
		}
		w.para(fmt.Sprintf("  Message: %q", ev.UserMessage), 13)
	}

	w.heading("Skill practice")
	if len(a.Completions) == 0 {
		w.line("No skills practised in this session.", 14)
	}
	for _, c := range a.Completions {
		mood := ""
		if c.MoodBefore != nil && c.MoodAfter != nil {
			mood = fmt.Sprintf(", %d/10 -> %d/10", *c.MoodBefore, *c.MoodAfter)
		}
		w.line(fmt.Sprintf("%s (%s%s)", label(string(c.Skill)), c.Status, mood), 14)
		if c.KeyInsight != "" {
			w.para("  Insight: "+c.KeyInsight, 13)
		}
	}

	w.heading("Transcript")
	for _, m := range a.Transcript {
		w.para(fmt.Sprintf("[%s] %s: %s", m.Timestamp.UTC().Format("15:04"), label(m.Role), m.Content), 13)
	}

	if w.err != nil {
		return nil, w.err
	}
	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}
