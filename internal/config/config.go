// Package config loads the immutable process configuration from the
// environment (with optional .env file) once at startup. Nothing reads
// the environment after Load returns.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Config holds every knob the process reads, populated once at startup
// and passed by reference into constructors.
type Config struct {
	Port string

	GeminiAPIKey    string
	OpenAIAPIKey    string
	GroqAPIKey      string
	AnthropicAPIKey string

	GeminiModel    string
	OpenAIModel    string
	GroqModel      string
	AnthropicModel string

	MaxAttempts    int
	RetryBaseDelay time.Duration
	RequestTimeout time.Duration

	MaxTokens   int
	Temperature float64

	// Persona overrides the built-in system prompt when non-empty.
	Persona string

	AllowedOrigins []string
}

// Load reads configuration from the environment, falling back to an
// optional .env file in the working directory.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// A missing .env is fine; a malformed one is not.
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	v.AutomaticEnv()

	v.SetDefault("PORT", "8001")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("GROQ_MODEL", "llama-3.3-70b-versatile")
	v.SetDefault("ANTHROPIC_MODEL", "claude-sonnet-4-20250514")
	v.SetDefault("MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_BASE_DELAY", "1s")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("MAX_TOKENS", 200)
	v.SetDefault("TEMPERATURE", 0.7)
	v.SetDefault("ALLOWED_ORIGINS", []string{"*"})

	cfg := &Config{
		Port:            v.GetString("PORT"),
		GeminiAPIKey:    v.GetString("GEMINI_API_KEY"),
		OpenAIAPIKey:    v.GetString("OPENAI_API_KEY"),
		GroqAPIKey:      v.GetString("GROQ_API_KEY"),
		AnthropicAPIKey: v.GetString("ANTHROPIC_API_KEY"),
		GeminiModel:     v.GetString("GEMINI_MODEL"),
		OpenAIModel:     v.GetString("OPENAI_MODEL"),
		GroqModel:       v.GetString("GROQ_MODEL"),
		AnthropicModel:  v.GetString("ANTHROPIC_MODEL"),
		MaxAttempts:     v.GetInt("MAX_ATTEMPTS"),
		RetryBaseDelay:  v.GetDuration("RETRY_BASE_DELAY"),
		RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
		MaxTokens:       v.GetInt("MAX_TOKENS"),
		Temperature:     v.GetFloat64("TEMPERATURE"),
		Persona:         v.GetString("PERSONA"),
		AllowedOrigins:  v.GetStringSlice("ALLOWED_ORIGINS"),
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		return nil, fmt.Errorf("TEMPERATURE must be in [0,1], got %g", cfg.Temperature)
	}

	return cfg, nil
}

// AnyProviderConfigured reports whether at least one provider API key is set.
func (c *Config) AnyProviderConfigured() bool {
	return c.GeminiAPIKey != "" || c.OpenAIAPIKey != "" || c.GroqAPIKey != "" || c.AnthropicAPIKey != ""
}
