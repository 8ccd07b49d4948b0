package agent

import (
	"context"
	"fmt"
	"strings"
)

const (
	ProviderDeepSeek  = "deepseek"
	ProviderAnthropic = "claude"
)

type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is a single chat completion call.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Provider is the generative capability the conversation core consumes.
// Classify is the safety-oriented judgment call (low temperature, small
// budget); Generate produces the assistant's free-form utterances.
type Provider interface {
	Classify(ctx context.Context, req Request) (string, error)
	Generate(ctx context.Context, req Request) (string, error)
}

type completer interface {
	complete(ctx context.Context, req Request) (string, error)
}

// tuned adapts a raw completion client to Provider with per-role defaults.
type tuned struct {
	c completer
}

func (t tuned) Classify(ctx context.Context, req Request) (string, error) {
	if req.Temperature == 0 {
		req.Temperature = 0.3
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 500
	}
	return t.c.complete(ctx, req)
}

func (t tuned) Generate(ctx context.Context, req Request) (string, error) {
	if req.Temperature == 0 {
		req.Temperature = 0.7
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 1000
	}
	return t.c.complete(ctx, req)
}

// Router sends classification and generation to independently configured providers.
type Router struct {
	classifier Provider
	generator  Provider
}

func NewRouter(classifier, generator Provider) *Router {
	return &Router{classifier: classifier, generator: generator}
}

func (r *Router) Classify(ctx context.Context, req Request) (string, error) {
	return r.classifier.Classify(ctx, req)
}

func (r *Router) Generate(ctx context.Context, req Request) (string, error) {
	return r.generator.Generate(ctx, req)
}

// Config selects and credentials the providers.
type Config struct {
	Primary string // provider for Generate
	Risk    string // provider for Classify

	DeepSeekAPIKey  string
	DeepSeekModel   string
	DeepSeekBaseURL string

	AnthropicAPIKey  string
	ClaudeModel      string
	AnthropicBaseURL string
}

// New builds the Router described by cfg.
func New(cfg Config) (*Router, error) {
	build := func(name string) (Provider, error) {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case ProviderDeepSeek:
			return NewDeepSeekClient(cfg.DeepSeekAPIKey, cfg.DeepSeekModel, cfg.DeepSeekBaseURL), nil
		case ProviderAnthropic, "anthropic":
			return NewAnthropicClient(cfg.AnthropicAPIKey, cfg.ClaudeModel, cfg.AnthropicBaseURL), nil
		default:
			return nil, fmt.Errorf("unknown llm provider %q", name)
		}
	}

	gen, err := build(cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("primary provider: %w", err)
	}
	cls, err := build(cfg.Risk)
	if err != nil {
		return nil, fmt.Errorf("risk provider: %w", err)
	}
	return NewRouter(cls, gen), nil
}
