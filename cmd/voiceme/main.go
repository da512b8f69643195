// VoiceMe backend — answers spoken questions in a fixed persona, with
// automatic fallback across AI providers.
//
// Environment variables:
//   PORT              — HTTP port (default: 8001)
//   GEMINI_API_KEY    — Google Gemini API key
//   OPENAI_API_KEY    — OpenAI API key
//   GROQ_API_KEY      — Groq API key
//   ANTHROPIC_API_KEY — Anthropic API key
//   GEMINI_MODEL, OPENAI_MODEL, GROQ_MODEL, ANTHROPIC_MODEL
//   MAX_ATTEMPTS      — attempts per provider (default: 3)
//   RETRY_BASE_DELAY  — first backoff delay (default: 1s)
//   REQUEST_TIMEOUT   — per-attempt deadline (default: 30s)
//   MAX_TOKENS        — answer token budget (default: 200)
//   TEMPERATURE       — sampling temperature in [0,1] (default: 0.7)
//   PERSONA           — system prompt override
//   ALLOWED_ORIGINS   — CORS origins (default: *)
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/voiceme/voiceme/agent"
	"github.com/voiceme/voiceme/agent/dispatch"
	"github.com/voiceme/voiceme/agent/providers/anthropic"
	"github.com/voiceme/voiceme/agent/providers/gemini"
	"github.com/voiceme/voiceme/agent/providers/groq"
	"github.com/voiceme/voiceme/agent/providers/openai"
	"github.com/voiceme/voiceme/agent/retry"
	"github.com/voiceme/voiceme/internal/config"
	"github.com/voiceme/voiceme/internal/gateway"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.Info("Starting VoiceMe backend...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.AnyProviderConfigured() {
		log.Fatal("No provider API key configured; set at least one of GEMINI_API_KEY, OPENAI_API_KEY, GROQ_API_KEY, ANTHROPIC_API_KEY")
	}

	providers, available := buildProviders(cfg)

	dispatcher := dispatch.New(dispatch.Config{
		Policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    30 * time.Second,
		},
		RequestTimeout: cfg.RequestTimeout,
	}, providers...)

	handler := gateway.NewHandler(dispatcher, cfg, available)
	router := gateway.NewRouter(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout: 10 * time.Second,
		// A dispatch can legitimately span several providers with retries
		// and backoff, so the write timeout scales with the fallback depth.
		WriteTimeout: time.Duration(2*len(providers)) * cfg.RequestTimeout,
	}

	go func() {
		log.Infof("VoiceMe backend listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Infof("Received signal %v, shutting down...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown error: %v", err)
	}
	log.Info("VoiceMe backend stopped")
}

// buildProviders initializes every provider with a configured API key, in
// fallback priority order. The availability map covers all known
// providers for health reporting.
func buildProviders(cfg *config.Config) ([]agent.AnswerProvider, map[string]bool) {
	var providers []agent.AnswerProvider
	available := map[string]bool{
		"gemini":    false,
		"openai":    false,
		"groq":      false,
		"anthropic": false,
	}

	if cfg.GeminiAPIKey != "" {
		gcfg := gemini.DefaultConfig(cfg.GeminiAPIKey)
		gcfg.Model = cfg.GeminiModel
		p, err := gemini.NewProvider(context.Background(), gcfg)
		if err != nil {
			log.Warnf("Gemini client initialization failed: %v", err)
		} else {
			providers = append(providers, p)
			available["gemini"] = true
			log.Info("Gemini client initialized")
		}
	}

	if cfg.OpenAIAPIKey != "" {
		ocfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
		ocfg.Model = cfg.OpenAIModel
		providers = append(providers, openai.NewProvider(ocfg))
		available["openai"] = true
		log.Info("OpenAI client initialized")
	}

	if cfg.GroqAPIKey != "" {
		qcfg := groq.DefaultConfig(cfg.GroqAPIKey)
		qcfg.Model = cfg.GroqModel
		providers = append(providers, groq.NewProvider(qcfg))
		available["groq"] = true
		log.Info("Groq client initialized")
	}

	if cfg.AnthropicAPIKey != "" {
		acfg := anthropic.DefaultConfig(cfg.AnthropicAPIKey)
		acfg.Model = cfg.AnthropicModel
		providers = append(providers, anthropic.NewProvider(acfg))
		available["anthropic"] = true
		log.Info("Anthropic client initialized")
	}

	return providers, available
}
