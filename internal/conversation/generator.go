package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cbt-coach/internal/agent"
)

// Generator produces free-form assistant text.
type Generator interface {
	Generate(ctx context.Context, req agent.Request) (string, error)
}

// Intent tells the generator what the reply is for.
type Intent string

const (
	IntentClarify Intent = "clarify"
	IntentSupport Intent = "support"
	IntentSummary Intent = "summary"
	// IntentCrisisScript never reaches the generator; the reply is static.
	IntentCrisisScript Intent = "crisis-script"
)

// errNoGenerator is returned when no generator is configured.
var errNoGenerator = errors.New("no generator configured")

type responder struct {
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
}

// respond asks the generator for text and falls back to the static reply on
// any failure. Provider errors never reach the user.
func (r *responder) respond(ctx context.Context, intent Intent, system string, history []Message, fallback string) string {
	if intent == IntentCrisisScript {
		return fallback
	}
	out, err := r.generate(ctx, system, history)
	if err != nil {
		r.logger.WarnContext(ctx, "generation failed, using static reply",
			"intent", string(intent), "timeout", agent.IsTimeout(err), "error", err)
		return fallback
	}
	return out
}

func (r *responder) generate(ctx context.Context, system string, history []Message) (string, error) {
	if r.gen == nil {
		return "", errNoGenerator
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msgs := make([]agent.Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, agent.Message{Role: m.Role, Content: m.Content})
	}
	out, err := r.gen.Generate(ctx, agent.Request{System: system, Messages: msgs})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !agent.IsTimeout(err) {
			return "", fmt.Errorf("generate: %w: %w", agent.ErrProviderTimeout, err)
		}
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("generate: %w: empty reply", agent.ErrProviderError)
	}
	return out, nil
}
