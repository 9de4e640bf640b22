package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("jina", CircuitBreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})

	for range 3 {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not be called when open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("host", CircuitBreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Second})
	cb.nowFunc = func() time.Time { return now }

	cb.Record(errors.New("boom"))
	if cb.Allow() {
		t.Fatal("expected rejection while open")
	}

	now = now.Add(11 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("expected probe to be allowed")
	}

	// A failed probe reopens immediately.
	cb.Record(errors.New("still down"))
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after failed probe, got %s", cb.State())
	}

	now = now.Add(11 * time.Second)
	cb.Allow()
	cb.Record(nil)
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_ShouldTripFilters(t *testing.T) {
	permanent := errors.New("404")
	cb := NewCircuitBreaker("x", CircuitBreakerConfig{
		FailureThreshold: 1,
		ShouldTrip:       IsTransient,
	})
	cb.Record(permanent)
	if cb.State() != CircuitClosed {
		t.Errorf("permanent errors should not trip, got %s", cb.State())
	}
}

func TestExecuteVal(t *testing.T) {
	cb := NewCircuitBreaker("x", DefaultCircuitBreakerConfig())
	v, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Errorf("unexpected result: %d %v", v, err)
	}
}

func TestBreakers_For(t *testing.T) {
	b := NewBreakers(CircuitBreakerConfig{FailureThreshold: 1})
	a1 := b.For("a.com")
	a2 := b.For("a.com")
	if a1 != a2 {
		t.Error("expected same breaker for same key")
	}
	b.For("b.com").Record(errors.New("down"))

	states := b.States()
	if states["a.com"] != CircuitClosed || states["b.com"] != CircuitOpen {
		t.Errorf("unexpected states: %v", states)
	}
}
