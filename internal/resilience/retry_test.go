package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterTransientStatus(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("geo.api.gouv.fr: 503"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(4), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always busy"), 429)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(5), func(_ context.Context) error {
		calls++
		return errors.New("unknown postal code format")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	var calls int
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func(_ context.Context) error {
			calls++
			return NewTransientError(errors.New("down"), 502)
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_CustomShouldRetry(t *testing.T) {
	errBusy := errors.New("busy")
	cfg := fastConfig(3)
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, errBusy) }

	var calls int
	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return errBusy
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	cfg := fastConfig(3)
	var attempts []int
	cfg.OnRetry = func(attempt int, _ error) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("x"), 500)
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("unexpected retry attempts: %v", attempts)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	v, err := DoVal(context.Background(), fastConfig(3), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("x"), 504)
		}
		return "75015", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "75015" {
		t.Errorf("expected 75015, got %q", v)
	}
}

func TestDoVal_ZeroOnFailure(t *testing.T) {
	v, err := DoVal(context.Background(), fastConfig(2), func(_ context.Context) (int, error) {
		return 42, errors.New("bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if v != 0 {
		t.Errorf("expected zero value, got %d", v)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := applyDefaults(RetryConfig{JitterFraction: -1})
	def := DefaultRetryConfig()
	if cfg.MaxAttempts != def.MaxAttempts || cfg.InitialBackoff != def.InitialBackoff ||
		cfg.MaxBackoff != def.MaxBackoff || cfg.Multiplier != def.Multiplier {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.JitterFraction != 0 {
		t.Errorf("negative jitter should clamp to 0, got %v", cfg.JitterFraction)
	}
}

func TestComputeBackoff_Exponential(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for i, w := range want {
		if got := computeBackoff(i, cfg); got != w {
			t.Errorf("attempt %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestComputeBackoff_Jitter(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: time.Minute, Multiplier: 2, JitterFraction: 0.5}
	seen := make(map[time.Duration]bool)
	for range 50 {
		d := computeBackoff(0, cfg)
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Errorf("delay %v outside [500ms, 1500ms]", d)
		}
		seen[d] = true
	}
	if len(seen) < 2 {
		t.Error("expected jitter to vary delays")
	}
}

func TestRetryDelay_HonorsRetryAfter(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Millisecond, MaxBackoff: 3 * time.Second, Multiplier: 2}

	te := NewTransientError(errors.New("slow down"), 429)
	te.RetryAfter = 2 * time.Second
	if got := retryDelay(0, te, cfg); got != 2*time.Second {
		t.Errorf("expected Retry-After delay 2s, got %v", got)
	}

	te.RetryAfter = time.Minute
	if got := retryDelay(0, te, cfg); got != 3*time.Second {
		t.Errorf("expected delay capped at 3s, got %v", got)
	}

	if got := retryDelay(0, errors.New("plain"), cfg); got != time.Millisecond {
		t.Errorf("expected computed backoff, got %v", got)
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(5, 250, 4000)
	if cfg.MaxAttempts != 5 || cfg.InitialBackoff != 250*time.Millisecond || cfg.MaxBackoff != 4*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if got := FromSettings(0, 0, 0); got.MaxAttempts != 3 {
		t.Errorf("zero settings should keep defaults, got %+v", got)
	}
}

func TestRetryLogger(t *testing.T) {
	// Must not panic with the global no-op logger.
	RetryLogger("geoapi", "communes")(1, errors.New("test error"))
}
