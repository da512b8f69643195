// Package groq calls Groq's OpenAI-compatible chat completion API through
// the go-openai client pointed at the Groq base URL.
package groq

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/voiceme/voiceme/agent"
	"github.com/voiceme/voiceme/agent/ratelimit"
)

const defaultBaseURL = "https://api.groq.com/openai/v1"

// Provider implements the AnswerProvider interface for Groq
type Provider struct {
	client  *openai.Client
	model   string
	limiter *ratelimit.Limiter
}

// Config holds Groq provider configuration
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	TPM     int // Tokens per minute
	RPM     int // Requests per minute
}

// DefaultConfig returns default Groq configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:  apiKey,
		Model:   "llama-3.3-70b-versatile",
		BaseURL: defaultBaseURL,
		TPM:     12000, // Groq free-tier TPM
		RPM:     30,    // Groq free-tier RPM
	}
}

// NewProvider creates a new Groq provider
func NewProvider(config *Config) *Provider {
	if config == nil {
		panic("config cannot be nil")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = config.BaseURL
	if clientConfig.BaseURL == "" {
		clientConfig.BaseURL = defaultBaseURL
	}

	return &Provider{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   config.Model,
		limiter: ratelimit.NewLimiter(config.TPM, config.RPM),
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "groq"
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

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		MaxTokens:   reqCtx.MaxTokens,
		Temperature: reqCtx.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: reqCtx.Persona,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: reqCtx.UserPrompt(question),
			},
		},
	})
	if err != nil {
		return "", agent.NewProviderError(p.Name(), classify(err), err)
	}

	if len(resp.Choices) == 0 {
		return "", agent.NewProviderError(p.Name(), agent.KindInvalidResponse,
			errors.New("no choices returned from Groq"))
	}

	return resp.Choices[0].Message.Content, nil
}

func classify(err error) agent.ErrorKind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return agent.ClassifyStatus(apiErr.HTTPStatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return agent.KindTimeout
	}
	return agent.KindTransient
}
