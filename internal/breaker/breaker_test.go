package breaker

import (
	"errors"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTest(maxFailures int, reset time.Duration) (*Breaker, *clock) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New("test", maxFailures, reset)
	b.now = c.now
	return b, c
}

var errFail = errors.New("fail")

func fail() error { return errFail }
func ok() error   { return nil }

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTest(3, time.Second)
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b, _ := newTest(3, time.Second)
	for i := 0; i < 3; i++ {
		if err := b.Execute(fail); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if b.State() != StateOpen {
		t.Errorf("expected open after 3 failures, got %v", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Errorf("open breaker should reject without calling: err=%v called=%v", err, called)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, c := newTest(2, time.Second)
	b.Execute(fail)
	b.Execute(fail)

	c.advance(1100 * time.Millisecond)
	if err := b.Execute(ok); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %v", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, c := newTest(2, time.Second)
	b.Execute(fail)
	b.Execute(fail)

	c.advance(2 * time.Second)
	b.Execute(fail)
	if b.State() != StateOpen {
		t.Fatalf("expected open after failed probe, got %v", b.State())
	}
	// The reset window restarts from the failed probe.
	c.advance(500 * time.Millisecond)
	if err := b.Execute(ok); !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen inside new window, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTest(3, time.Second)
	b.Execute(fail)
	b.Execute(fail)
	b.Execute(ok)
	b.Execute(fail)
	b.Execute(fail)
	if b.State() != StateClosed {
		t.Errorf("expected closed (counter should have reset), got %v", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var transitions []State
	b, c := newTest(1, time.Second)
	b.OnStateChange = func(name string, from, to State) {
		if name != "test" {
			t.Errorf("name = %q", name)
		}
		transitions = append(transitions, to)
	}

	b.Execute(fail)
	c.advance(2 * time.Second)
	b.Execute(ok)

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions = %v, want %v", transitions, want)
		}
	}
}
