package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/voiceme/voiceme/agent"
	"github.com/voiceme/voiceme/agent/ratelimit"
)

// Provider implements the AnswerProvider interface for Google Gemini
type Provider struct {
	client    *genai.Client
	modelName string
	limiter   *ratelimit.Limiter
}

// Config holds Gemini provider configuration
type Config struct {
	APIKey string
	Model  string
	TPM    int // Tokens per minute
	RPM    int // Requests per minute
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey: apiKey,
		Model:  "gemini-2.5-flash",
		TPM:    32000, // Gemini default TPM
		RPM:    60,    // Gemini default RPM
	}
}

// NewProvider creates a new Gemini provider
func NewProvider(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Provider{
		client:    client,
		modelName: config.Model,
		limiter:   ratelimit.NewLimiter(config.TPM, config.RPM),
	}, nil
}

// Close closes the Gemini client
func (p *Provider) Close() error {
	return p.client.Close()
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "gemini"
}

// Model returns the configured model identifier
func (p *Provider) Model() string {
	return p.modelName
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

	// A fresh model per call; the client is shared across concurrent
	// dispatches and the model carries per-request state.
	model := p.client.GenerativeModel(p.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(reqCtx.Persona)},
	}
	model.SetMaxOutputTokens(int32(reqCtx.MaxTokens))
	model.SetTemperature(reqCtx.Temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(reqCtx.UserPrompt(question)))
	if err != nil {
		return "", agent.NewProviderError(p.Name(), classify(err), err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", agent.NewProviderError(p.Name(), agent.KindInvalidResponse,
			errors.New("no content returned from Gemini"))
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", agent.NewProviderError(p.Name(), agent.KindInvalidResponse,
			errors.New("non-text content returned from Gemini"))
	}

	return string(text), nil
}

func classify(err error) agent.ErrorKind {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return agent.ClassifyStatus(gerr.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return agent.KindTimeout
	}
	return agent.KindTransient
}
