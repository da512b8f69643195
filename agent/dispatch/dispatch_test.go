package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voiceme/voiceme/agent"
	"github.com/voiceme/voiceme/agent/dispatch"
	"github.com/voiceme/voiceme/agent/retry"
)

// stubProvider answers via fn, counting calls.
type stubProvider struct {
	name  string
	calls int
	fn    func(ctx context.Context, call int) (string, error)
}

func (s *stubProvider) Answer(ctx context.Context, question string, reqCtx *agent.RequestContext) (string, error) {
	s.calls++
	return s.fn(ctx, s.calls)
}

func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Model() string { return "stub-model" }

func succeeding(name, answer string) *stubProvider {
	return &stubProvider{name: name, fn: func(ctx context.Context, call int) (string, error) {
		return answer, nil
	}}
}

func failing(name string, kind agent.ErrorKind) *stubProvider {
	return &stubProvider{name: name, fn: func(ctx context.Context, call int) (string, error) {
		return "", agent.NewProviderError(name, kind, errors.New("boom"))
	}}
}

// sleepRecorder replaces the backoff wait and records requested delays.
type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newDispatcher(sleep *sleepRecorder, providers ...agent.AnswerProvider) *dispatch.Dispatcher {
	return dispatch.New(dispatch.Config{
		Policy: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
		},
		RequestTimeout: time.Second,
		Sleep:          sleep.sleep,
	}, providers...)
}

func testRequestContext() *agent.RequestContext {
	return agent.NewRequestContext("persona", time.Now(), 200, 0.7)
}

func TestNewPanicsWithoutProviders(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic when creating dispatcher with no providers")
		}
	}()

	dispatch.New(dispatch.Config{})
}

func TestDispatchFirstProviderSuccess(t *testing.T) {
	primary := succeeding("primary", "the answer")
	secondary := succeeding("secondary", "never used")
	sleeps := &sleepRecorder{}

	d := newDispatcher(sleeps, primary, secondary)

	result, err := d.Dispatch(context.Background(), "what do you do?", testRequestContext())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if result.Answer != "the answer" {
		t.Errorf("unexpected answer: %q", result.Answer)
	}
	if result.ServedBy != "primary" {
		t.Errorf("expected served by primary, got %q", result.ServedBy)
	}
	if secondary.calls != 0 {
		t.Errorf("lower-priority provider was invoked %d times", secondary.calls)
	}
	if len(result.Attempts) != 1 {
		t.Errorf("expected 1 attempt, got %d", len(result.Attempts))
	}
	if len(sleeps.delays) != 0 {
		t.Errorf("expected zero backoff delays, got %v", sleeps.delays)
	}
}

func TestDispatchSkipsProviderWithoutRetry(t *testing.T) {
	for _, kind := range []agent.ErrorKind{agent.KindUnauthorized, agent.KindInvalidResponse} {
		t.Run(kind.String(), func(t *testing.T) {
			broken := failing("broken", kind)
			backup := succeeding("backup", "saved")
			sleeps := &sleepRecorder{}

			d := newDispatcher(sleeps, broken, backup)

			result, err := d.Dispatch(context.Background(), "hello?", testRequestContext())
			if err != nil {
				t.Fatalf("expected fallback success, got %v", err)
			}

			if broken.calls != 1 {
				t.Errorf("expected exactly 1 attempt against broken provider, got %d", broken.calls)
			}
			if result.ServedBy != "backup" {
				t.Errorf("expected served by backup, got %q", result.ServedBy)
			}
			if len(sleeps.delays) != 0 {
				t.Errorf("expected no retry delay, got %v", sleeps.delays)
			}
			if len(result.Attempts) != 2 {
				t.Errorf("expected 2 attempts logged, got %d", len(result.Attempts))
			}
		})
	}
}

func TestDispatchRetriesTransientWithBackoff(t *testing.T) {
	flaky := failing("flaky", agent.KindTransient)
	backup := succeeding("backup", "saved")
	sleeps := &sleepRecorder{}

	d := newDispatcher(sleeps, flaky, backup)

	result, err := d.Dispatch(context.Background(), "hello?", testRequestContext())
	if err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}

	if flaky.calls != 3 {
		t.Errorf("expected exactly MaxAttempts=3 calls against flaky provider, got %d", flaky.calls)
	}
	if result.ServedBy != "backup" {
		t.Errorf("expected served by backup, got %q", result.ServedBy)
	}

	// base * 2^(attempt-1); no delay after the final attempt.
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(sleeps.delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), sleeps.delays)
	}
	for i, d := range want {
		if sleeps.delays[i] != d {
			t.Errorf("delay %d: expected %v, got %v", i, d, sleeps.delays[i])
		}
	}
}

func TestDispatchAllProvidersExhausted(t *testing.T) {
	flaky := failing("flaky", agent.KindTransient)
	sleeps := &sleepRecorder{}

	d := newDispatcher(sleeps, flaky)

	_, err := d.Dispatch(context.Background(), "hello?", testRequestContext())
	if err == nil {
		t.Fatal("expected error when the only provider keeps failing")
	}

	var exhausted *dispatch.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %T: %v", err, err)
	}
	if len(exhausted.Attempts) != 3 {
		t.Errorf("expected 3 logged attempts, got %d", len(exhausted.Attempts))
	}
	for i, att := range exhausted.Attempts {
		if att.Number != i+1 {
			t.Errorf("attempt %d: expected number %d, got %d", i, i+1, att.Number)
		}
		if att.OK() {
			t.Errorf("attempt %d: expected failure", i)
		}
	}
}

func TestDispatchMixedScenario(t *testing.T) {
	// A fails Unauthorized, B times out three times, C succeeds.
	a := failing("a", agent.KindUnauthorized)
	b := failing("b", agent.KindTimeout)
	c := succeeding("c", "answer from c")
	sleeps := &sleepRecorder{}

	d := newDispatcher(sleeps, a, b, c)

	result, err := d.Dispatch(context.Background(), "hello?", testRequestContext())
	if err != nil {
		t.Fatalf("expected success from c, got %v", err)
	}

	if result.ServedBy != "c" {
		t.Errorf("expected served by c, got %q", result.ServedBy)
	}
	if result.Answer != "answer from c" {
		t.Errorf("unexpected answer: %q", result.Answer)
	}

	// 1 (a) + 3 (b) + 1 (c)
	if len(result.Attempts) != 5 {
		t.Fatalf("expected 5 attempts logged, got %d", len(result.Attempts))
	}
	wantProviders := []string{"a", "b", "b", "b", "c"}
	for i, att := range result.Attempts {
		if att.Provider != wantProviders[i] {
			t.Errorf("attempt %d: expected provider %q, got %q", i, wantProviders[i], att.Provider)
		}
	}
}

func TestDispatchIdempotentAgainstDeterministicStub(t *testing.T) {
	p := succeeding("stable", "same answer")
	sleeps := &sleepRecorder{}
	d := newDispatcher(sleeps, p)

	first, err := d.Dispatch(context.Background(), "hello?", testRequestContext())
	if err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}
	second, err := d.Dispatch(context.Background(), "hello?", testRequestContext())
	if err != nil {
		t.Fatalf("second dispatch failed: %v", err)
	}

	if first.Answer != second.Answer || first.ServedBy != second.ServedBy {
		t.Errorf("dispatch not idempotent: %+v vs %+v", first, second)
	}
}

func TestDispatchRejectsEmptyQuestion(t *testing.T) {
	p := succeeding("p", "answer")
	d := newDispatcher(&sleepRecorder{}, p)

	for _, q := range []string{"", "   ", "\t\n"} {
		if _, err := d.Dispatch(context.Background(), q, testRequestContext()); !errors.Is(err, dispatch.ErrEmptyQuestion) {
			t.Errorf("question %q: expected ErrEmptyQuestion, got %v", q, err)
		}
	}
	if p.calls != 0 {
		t.Errorf("provider invoked for empty questions: %d calls", p.calls)
	}
}

func TestDispatchTreatsBlankAnswerAsInvalidResponse(t *testing.T) {
	blank := succeeding("blank", "   ")
	backup := succeeding("backup", "real answer")
	sleeps := &sleepRecorder{}

	d := newDispatcher(sleeps, blank, backup)

	result, err := d.Dispatch(context.Background(), "hello?", testRequestContext())
	if err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}

	if blank.calls != 1 {
		t.Errorf("expected no retry for blank answer, got %d calls", blank.calls)
	}
	if result.ServedBy != "backup" {
		t.Errorf("expected served by backup, got %q", result.ServedBy)
	}
	if result.Attempts[0].Kind != agent.KindInvalidResponse {
		t.Errorf("expected invalid_response, got %s", result.Attempts[0].Kind)
	}
}

func TestDispatchTrimsAnswer(t *testing.T) {
	p := succeeding("p", "  padded answer \n")
	d := newDispatcher(&sleepRecorder{}, p)

	result, err := d.Dispatch(context.Background(), "hello?", testRequestContext())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.Answer != "padded answer" {
		t.Errorf("expected trimmed answer, got %q", result.Answer)
	}
}

func TestDispatchStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := &stubProvider{name: "p", fn: func(ctx context.Context, call int) (string, error) {
		cancel() // the inbound request disconnects mid-call
		return "", agent.NewProviderError("p", agent.KindTransient, errors.New("boom"))
	}}
	backup := succeeding("backup", "never reached")

	d := newDispatcher(&sleepRecorder{}, p, backup)

	_, err := d.Dispatch(ctx, "hello?", testRequestContext())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", p.calls)
	}
	if backup.calls != 0 {
		t.Errorf("expected no fallback after cancellation, got %d calls", backup.calls)
	}
}

func TestDispatchEnforcesPerAttemptDeadline(t *testing.T) {
	slow := &stubProvider{name: "slow", fn: func(ctx context.Context, call int) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	backup := succeeding("backup", "saved")
	sleeps := &sleepRecorder{}

	d := dispatch.New(dispatch.Config{
		Policy:         retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		RequestTimeout: 5 * time.Millisecond,
		Sleep:          sleeps.sleep,
	}, slow, backup)

	result, err := d.Dispatch(context.Background(), "hello?", testRequestContext())
	if err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}

	if slow.calls != 2 {
		t.Errorf("expected timeout to be retried once, got %d calls", slow.calls)
	}
	for i := 0; i < 2; i++ {
		if result.Attempts[i].Kind != agent.KindTimeout {
			t.Errorf("attempt %d: expected timeout kind, got %s", i, result.Attempts[i].Kind)
		}
	}
	if result.ServedBy != "backup" {
		t.Errorf("expected served by backup, got %q", result.ServedBy)
	}
}

func TestLastServedByAndProviderNames(t *testing.T) {
	a := failing("a", agent.KindUnauthorized)
	b := succeeding("b", "answer")
	d := newDispatcher(&sleepRecorder{}, a, b)

	if got := d.LastServedBy(); got != "" {
		t.Errorf("expected empty LastServedBy before any dispatch, got %q", got)
	}

	names := d.ProviderNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("unexpected provider names: %v", names)
	}

	if _, err := d.Dispatch(context.Background(), "hello?", testRequestContext()); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if got := d.LastServedBy(); got != "b" {
		t.Errorf("expected LastServedBy b, got %q", got)
	}
}
