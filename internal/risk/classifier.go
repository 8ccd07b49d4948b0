package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cbt-coach/internal/agent"
)

// Judge is the safety-oriented completion call used by the classifier.
type Judge interface {
	Classify(ctx context.Context, req agent.Request) (string, error)
}

// Assessment is the LLM tier output.
type Assessment struct {
	Level      Level
	RiskType   string
	Confidence float64
	Reasoning  string
	Triggers   []string
}

// ClassifyInput is what the classifier sees for one message.
type ClassifyInput struct {
	Message      string
	History      []agent.Message
	Keywords     []string
	SystemPrompt string
}

const defaultConfidence = 0.9

// Classifier asks the Judge for a context-aware verdict. Every failure mode,
// including malformed output, is reported as an error wrapping
// agent.ErrProviderTimeout or agent.ErrProviderError.
type Classifier struct {
	judge         Judge
	timeout       time.Duration
	historyWindow int
}

func NewClassifier(judge Judge, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Classifier{judge: judge, timeout: timeout, historyWindow: 5}
}

func (c *Classifier) Classify(ctx context.Context, in ClassifyInput) (Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.judge.Classify(ctx, agent.Request{
		System:   in.SystemPrompt,
		Messages: []agent.Message{{Role: "user", Content: c.prompt(in)}},
	})
	if err != nil {
		if errors.Is(err, agent.ErrProviderTimeout) || errors.Is(err, agent.ErrProviderError) {
			return Assessment{}, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return Assessment{}, fmt.Errorf("classify: %w: %w", agent.ErrProviderTimeout, err)
		}
		return Assessment{}, fmt.Errorf("classify: %w: %w", agent.ErrProviderError, err)
	}
	return parseAssessment(raw)
}

func (c *Classifier) prompt(in ClassifyInput) string {
	history := in.History
	if len(history) > c.historyWindow {
		history = history[len(history)-c.historyWindow:]
	}
	var ctxLines []string
	for _, m := range history {
		ctxLines = append(ctxLines, m.Role+": "+m.Content)
	}
	keywords := "none"
	if len(in.Keywords) > 0 {
		keywords = strings.Join(in.Keywords, ", ")
	}

	return fmt.Sprintf(`Detected keywords: %s

Recent conversation context:
%s

Current user message:
%q

Assess this message for safety risk. Weigh intent, plan/means/timeline, the conversation context,
and likely false positives (metaphor, quoting others, song lyrics).

Return ONLY valid JSON in this exact format:
{"risk_level": "none|low|medium|high", "risk_type": "suicidal_ideation|self_harm|harm_to_others|psychosis|null", "confidence": 0.0, "reasoning": "brief explanation", "triggers": ["phrase"]}`,
		keywords, strings.Join(ctxLines, "\n"), in.Message)
}

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)\{.*\}`)
)

type rawAssessment struct {
	RiskLevel  string   `json:"risk_level"`
	RiskType   *string  `json:"risk_type"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Triggers   []string `json:"triggers"`
}

func parseAssessment(text string) (Assessment, error) {
	payload := text
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		payload = m[1]
	} else if m := bareJSON.FindString(text); m != "" {
		payload = m
	}

	var raw rawAssessment
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Assessment{}, fmt.Errorf("classify: %w: unparseable verdict: %w", agent.ErrProviderError, err)
	}
	level, err := ParseLevel(raw.RiskLevel)
	if err != nil {
		return Assessment{}, fmt.Errorf("classify: %w: %w", agent.ErrProviderError, err)
	}

	a := Assessment{
		Level:      level,
		Confidence: defaultConfidence,
		Reasoning:  strings.TrimSpace(raw.Reasoning),
		Triggers:   raw.Triggers,
	}
	if raw.RiskType != nil && *raw.RiskType != "null" {
		a.RiskType = strings.TrimSpace(*raw.RiskType)
	}
	if raw.Confidence != nil {
		if *raw.Confidence < 0 || *raw.Confidence > 1 {
			return Assessment{}, fmt.Errorf("classify: %w: confidence %v out of range", agent.ErrProviderError, *raw.Confidence)
		}
		a.Confidence = *raw.Confidence
	}
	return a, nil
}
