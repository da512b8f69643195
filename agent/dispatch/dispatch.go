// Package dispatch implements the fallback dispatcher: one logical
// "ask a question" operation resolved across an ordered list of answer
// providers, with bounded per-provider retries and per-attempt deadlines.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/voiceme/voiceme/agent"
	"github.com/voiceme/voiceme/agent/retry"
)

// ErrEmptyQuestion is returned when Dispatch is called with a blank question.
var ErrEmptyQuestion = errors.New("question must not be empty")

// Attempt records one call to one provider, for diagnostics only.
type Attempt struct {
	Provider string
	Number   int
	Kind     agent.ErrorKind // meaningful only when Err is non-nil
	Err      error
	Latency  time.Duration
}

// OK reports whether the attempt produced an answer.
func (a Attempt) OK() bool {
	return a.Err == nil
}

// Result is the terminal outcome of a successful dispatch.
type Result struct {
	Answer   string
	ServedBy string
	Latency  time.Duration
	Attempts []Attempt
}

// ExhaustedError is the terminal failure: every provider ran out of
// attempts. It carries the full attempt log for operator diagnostics;
// callers must not expose the log to end users.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all providers exhausted after %d attempts", len(e.Attempts))
}

// Config holds dispatcher configuration
type Config struct {
	Policy retry.Policy

	// RequestTimeout is the deadline applied to each individual provider
	// attempt, not to the dispatch as a whole.
	RequestTimeout time.Duration

	// Sleep waits out a backoff delay. Nil means a context-aware
	// time.After wait; tests inject a recorder to run without timers.
	Sleep func(ctx context.Context, d time.Duration) error

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Dispatcher tries providers strictly in the order given, retrying each
// per the policy before moving on. Never backtracks to a provider it has
// moved past. Safe for concurrent dispatch calls; the provider list is
// read-only after construction.
type Dispatcher struct {
	providers []agent.AnswerProvider
	policy    retry.Policy
	timeout   time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	mu         sync.Mutex
	lastServed string
}

// New creates a dispatcher over the given providers, primary first.
func New(cfg Config, providers ...agent.AnswerProvider) *Dispatcher {
	if len(providers) == 0 {
		panic("at least one provider is required")
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.DefaultPolicy()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Dispatcher{
		providers: providers,
		policy:    cfg.Policy,
		timeout:   cfg.RequestTimeout,
		sleep:     cfg.Sleep,
		now:       cfg.Now,
	}
}

// Dispatch answers a single question, trying each provider in order.
// It returns the first successful answer, or *ExhaustedError once every
// provider has used up its attempts. Per-call failures never surface
// individually.
func (d *Dispatcher) Dispatch(ctx context.Context, question string, reqCtx *agent.RequestContext) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	start := d.now()
	var attempts []Attempt

	for _, p := range d.providers {
		for n := 1; ; n++ {
			answer, att := d.attempt(ctx, p, n, question, reqCtx)
			attempts = append(attempts, att)

			if att.OK() {
				d.mu.Lock()
				d.lastServed = p.Name()
				d.mu.Unlock()

				return &Result{
					Answer:   answer,
					ServedBy: p.Name(),
					Latency:  d.now().Sub(start),
					Attempts: attempts,
				}, nil
			}

			// The enclosing request is gone; stop dispatching entirely.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("dispatch cancelled: %w", ctx.Err())
			}

			if !att.Kind.Retryable() || !d.policy.ShouldRetry(n) {
				break // next provider
			}

			if err := d.sleep(ctx, d.policy.Delay(n)); err != nil {
				return nil, fmt.Errorf("dispatch cancelled during backoff: %w", err)
			}
		}
	}

	return nil, &ExhaustedError{Attempts: attempts}
}

// attempt runs a single provider call under the per-attempt deadline.
func (d *Dispatcher) attempt(ctx context.Context, p agent.AnswerProvider, n int, question string, reqCtx *agent.RequestContext) (string, Attempt) {
	actx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	begin := d.now()
	answer, err := p.Answer(actx, question, reqCtx)
	att := Attempt{
		Provider: p.Name(),
		Number:   n,
		Latency:  d.now().Sub(begin),
	}

	if err != nil {
		att.Err = err
		att.Kind = agent.KindOf(err)
		return "", att
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		att.Err = agent.NewProviderError(p.Name(), agent.KindInvalidResponse, errors.New("empty answer"))
		att.Kind = agent.KindInvalidResponse
		return "", att
	}

	return answer, att
}

// LastServedBy returns the name of the provider that served the most
// recent successful dispatch, or "" if none has succeeded yet.
func (d *Dispatcher) LastServedBy() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastServed
}

// ProviderNames returns the configured provider names in priority order.
func (d *Dispatcher) ProviderNames() []string {
	names := make([]string, len(d.providers))
	for i, p := range d.providers {
		names[i] = p.Name()
	}
	return names
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
