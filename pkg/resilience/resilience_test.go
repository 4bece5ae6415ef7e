package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/jobmap/pkg/errors"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "flaky", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	sentinel := errors.New("bad request")
	calls := 0
	err := Retry(context.Background(), "permanent", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		calls++
		return Permanent(sentinel)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, sentinel) || !IsPermanent(err) {
		t.Errorf("err = %v, want wrapped permanent sentinel", err)
	}
}

func TestCircuitBreakerOpensAndReportsTransitions(t *testing.T) {
	var seen []State
	cb := NewCircuitBreaker("source", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		OnStateChange:    func(_ string, to State) { seen = append(seen, to) },
	})
	fail := func() error { return errors.New("down") }
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute on open circuit: err = %v", err)
	}
	cb.Reset()
	if len(seen) != 2 || seen[0] != StateOpen || seen[1] != StateClosed {
		t.Errorf("transitions = %v", seen)
	}
}

func TestCircuitBreakerRecoversThroughTrialCall(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("source", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		Now:              func() time.Time { return now },
	})
	_ = cb.Execute(func() error { return errors.New("down") })
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}

	now = now.Add(time.Minute)
	if err := cb.Execute(func() error { return errors.New("still down") }); err == nil || errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("trial call err = %v, want the call's own error", err)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("failed trial left state %v", cb.GetState())
	}

	now = now.Add(time.Minute)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state after successful trial = %v", cb.GetState())
	}
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker("source", CircuitBreakerConfig{FailureThreshold: 1})
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return context.Canceled })
	}
	if cb.GetState() != StateClosed {
		t.Errorf("cancellations tripped the breaker: %v", cb.GetState())
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, apperrors.ErrTimeout) {
		t.Errorf("err = %v, want deadline exceeded and ErrTimeout", err)
	}
}

func TestCallReturnsValue(t *testing.T) {
	v, err := Call(context.Background(), time.Second, "fast", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Errorf("Call = %d, %v", v, err)
	}

	v, err = Call(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 7, ctx.Err()
	})
	if v != 0 || !errors.Is(err, apperrors.ErrTimeout) {
		t.Errorf("timed out Call = %d, %v", v, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Call(ctx, time.Second, "cancelled", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Call err = %v", err)
	}
}
