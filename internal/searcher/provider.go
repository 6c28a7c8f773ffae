// Package searcher executes planned search chunks against a
// chat-completion provider under the shared rate-limit budget, with
// per-chunk failure isolation and a bounded refinement pass.
package searcher

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/config"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/resilience"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/pkg/anthropic"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/pkg/perplexity"
)

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Completer is the minimal chat-completion surface the executor
// consumes. An empty content string means "no candidates," not an
// error.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, Usage, error)
	Name() string
}

// FromConfig builds a Completer for the named provider.
func FromConfig(cfg *config.Config, provider string) (Completer, error) {
	switch provider {
	case "perplexity":
		return NewPerplexityCompleter(
			perplexity.NewClient(cfg.Perplexity.Key,
				perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
				perplexity.WithModel(cfg.Perplexity.Model)),
			cfg.Perplexity,
		), nil
	case "anthropic":
		return NewAnthropicCompleter(
			anthropic.NewClient(cfg.Anthropic.Key),
			cfg.Anthropic,
		), nil
	default:
		return nil, eris.Errorf("searcher: unknown provider %q", provider)
	}
}

// PerplexityCompleter adapts the Perplexity client to the Completer
// surface and classifies retryable provider errors as transient.
type PerplexityCompleter struct {
	client perplexity.Client
	cfg    config.PerplexityConfig
}

// NewPerplexityCompleter wraps a Perplexity client.
func NewPerplexityCompleter(client perplexity.Client, cfg config.PerplexityConfig) *PerplexityCompleter {
	return &PerplexityCompleter{client: client, cfg: cfg}
}

func (p *PerplexityCompleter) Name() string { return "perplexity" }

func (p *PerplexityCompleter) Complete(ctx context.Context, prompt string) (string, Usage, error) {
	temp := p.cfg.Temp
	maxTokens := p.cfg.MaxTokens
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model:       p.cfg.Model,
		Messages:    []perplexity.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		var apiErr *perplexity.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return "", Usage{}, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return "", Usage{}, err
	}

	return resp.Content(), Usage{
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}, nil
}

// AnthropicCompleter adapts the Anthropic client to the Completer
// surface.
type AnthropicCompleter struct {
	client anthropic.Client
	cfg    config.AnthropicConfig
}

// NewAnthropicCompleter wraps an Anthropic client.
func NewAnthropicCompleter(client anthropic.Client, cfg config.AnthropicConfig) *AnthropicCompleter {
	return &AnthropicCompleter{client: client, cfg: cfg}
}

func (a *AnthropicCompleter) Name() string { return "anthropic" }

func (a *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, Usage, error) {
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", Usage{}, err
	}

	resp.Usage.LogCost(a.cfg.Model, "search")
	return resp.Text(), Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
