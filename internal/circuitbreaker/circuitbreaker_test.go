package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, Component: "nwp"})
	failing := errors.New("upstream down")

	for i := 0; i < 2; i++ {
		if err := cb.Call(context.Background(), func() error { return failing }); err != failing {
			t.Fatalf("call %d: got %v, want upstream error", i, err)
		}
		if cb.State() != StateClosed {
			t.Fatalf("call %d: state = %v, want closed (below threshold)", i, cb.State())
		}
	}

	if err := cb.Call(context.Background(), func() error { return failing }); err != failing {
		t.Fatalf("got %v, want upstream error", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after threshold failures", cb.State())
	}
}

func TestCircuitBreaker_OpenRejectsWithoutCallingFn(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, Timeout: time.Hour})
	cb.Call(context.Background(), func() error { return errors.New("boom") })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	called := false
	err := cb.Call(context.Background(), func() error { called = true; return nil })
	if err == nil {
		t.Fatal("expected rejection while circuit open")
	}
	if called {
		t.Fatal("fn should not run while circuit is open and timeout has not elapsed")
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeoutThenCloses(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})
	cb.Call(context.Background(), func() error { return errors.New("boom") })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.Call(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open after one success (threshold 2)", cb.State())
	}

	if err := cb.Call(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("second probe call failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after success threshold reached", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})
	cb.Call(context.Background(), func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	cb.Call(context.Background(), func() error { return errors.New("still down") })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after probe failure", cb.State())
	}
}

func TestCircuitBreaker_StateString(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half_open",
		State(99):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
