// Package llm adapts chat models to the narrative generator port through
// langchaingo. OpenAI-compatible endpoints and Anthropic are supported.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/keeper/internal/logging"
	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/ports"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// Providers supported by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrEmptyResponse is returned when the model answers with no choice.
var ErrEmptyResponse = errors.New("model returned no choices")

// Config selects and parameterizes the chat model.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// Validate checks the fields New relies on.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.APIKey == "" && c.BaseURL == "" {
		return fmt.Errorf("api key is required unless a base url is set")
	}
	return nil
}

// Generator implements ports.Generator over a langchaingo model.
type Generator struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// Option configures the Generator.
type Option func(*Generator)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		g.temperature = t
	}
}

// WithMaxTokens bounds the reply length.
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		g.maxTokens = n
	}
}

// New builds the model described by cfg.
func New(cfg Config, opts ...Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		apiKey := cfg.APIKey
		if apiKey == "" {
			// Local OpenAI-compatible servers ignore the token but the client requires one.
			apiKey = "placeholder"
		}
		oo := []openai.Option{openai.WithModel(cfg.Model), openai.WithToken(apiKey)}
		if cfg.BaseURL != "" {
			oo = append(oo, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(oo...)
	case ProviderAnthropic:
		ao := []anthropic.Option{anthropic.WithModel(cfg.Model), anthropic.WithToken(cfg.APIKey)}
		if cfg.BaseURL != "" {
			ao = append(ao, anthropic.WithBaseURL(cfg.BaseURL))
		}
		model, err = anthropic.New(ao...)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}

	if cfg.Temperature > 0 {
		opts = append([]Option{WithTemperature(cfg.Temperature)}, opts...)
	}
	if cfg.MaxTokens > 0 {
		opts = append([]Option{WithMaxTokens(cfg.MaxTokens)}, opts...)
	}
	return NewFromModel(model, opts...), nil
}

// NewFromModel wraps an existing langchaingo model.
func NewFromModel(model llms.Model, opts ...Option) *Generator {
	g := &Generator{
		model:       model,
		temperature: 0.8,
		maxTokens:   2048,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logging.NewNop()
	}
	return g
}

// Generate sends the layered prompt to the model.
func (g *Generator) Generate(ctx context.Context, req ports.GenerateRequest) (ports.Generation, error) {
	msgs := BuildMessages(req)
	resp, err := g.model.GenerateContent(ctx, msgs,
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(g.maxTokens),
	)
	if err != nil {
		return ports.Generation{}, fmt.Errorf("generating content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return ports.Generation{}, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	usage := usageFrom(choice.GenerationInfo)
	g.logger.DebugContext(ctx, "generation complete",
		"session_id", req.SessionID,
		"step", req.Step,
		"messages", len(msgs),
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
	)
	return ports.Generation{Text: strings.TrimSpace(choice.Content), Usage: usage}, nil
}

// usageFrom reads token counters. OpenAI reports PromptTokens and
// CompletionTokens; Anthropic reports InputTokens and OutputTokens.
func usageFrom(info map[string]any) domain.Usage {
	u := domain.Usage{Calls: 1}
	u.PromptTokens = firstInt(info, "PromptTokens", "InputTokens")
	u.CompletionTokens = firstInt(info, "CompletionTokens", "OutputTokens")
	return u
}

func firstInt(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
