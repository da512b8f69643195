package anthropic

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/voiceme/voiceme/agent"
	"github.com/voiceme/voiceme/agent/ratelimit"
)

// Provider implements the AnswerProvider interface for Anthropic
type Provider struct {
	client  anthropic.Client
	model   string
	limiter *ratelimit.Limiter
}

// Config holds Anthropic provider configuration
type Config struct {
	APIKey string
	Model  string
	TPM    int // Tokens per minute
	RPM    int // Requests per minute
}

// DefaultConfig returns default Anthropic configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey: apiKey,
		Model:  "claude-sonnet-4-20250514",
		TPM:    80000, // Claude Sonnet default TPM
		RPM:    50,    // Claude Sonnet default RPM
	}
}

// NewProvider creates a new Anthropic provider
func NewProvider(config *Config) *Provider {
	if config == nil {
		panic("config cannot be nil")
	}

	return &Provider{
		client:  anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		model:   config.Model,
		limiter: ratelimit.NewLimiter(config.TPM, config.RPM),
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "anthropic"
}

// Model returns the configured model identifier
func (p *Provider) Model() string {
	return p.model
}

// Answer generates a persona answer for a single question
func (p *Provider) Answer(ctx context.Context, question string, reqCtx *agent.RequestContext) (string, error) {
	estimatedTokens := len(question) / 4
	if estimatedTokens < 100 {
		estimatedTokens = 100
	}
	if err := p.limiter.Wait(ctx, estimatedTokens); err != nil {
		return "", err
	}

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(reqCtx.MaxTokens),
		Temperature: anthropic.Float(float64(reqCtx.Temperature)),
		System: []anthropic.TextBlockParam{
			{Text: reqCtx.Persona},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(reqCtx.UserPrompt(question))),
		},
	})
	if err != nil {
		return "", agent.NewProviderError(p.Name(), classify(err), err)
	}

	if len(message.Content) == 0 {
		return "", agent.NewProviderError(p.Name(), agent.KindInvalidResponse,
			errors.New("no content returned from Anthropic"))
	}

	return message.Content[0].Text, nil
}

func classify(err error) agent.ErrorKind {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return agent.ClassifyStatus(apiErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return agent.KindTimeout
	}
	return agent.KindTransient
}
