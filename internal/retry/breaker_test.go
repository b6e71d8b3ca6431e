package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var errHungUp = errors.New("hung up")

func isRefused(err error) bool { return errors.Is(err, errRefused) }

func TestBreaker_NilAllowsEverything(t *testing.T) {
	b := NewBreaker(0, time.Second, nil, nil)
	if b != nil {
		t.Fatal("threshold 0 should disable the breaker")
	}
	for i := 0; i < 10; i++ {
		b.Record(errRefused)
		if err := b.Allow(); err != nil {
			t.Fatalf("nil breaker rejected: %v", err)
		}
	}
	if b.State() != BreakerClosed {
		t.Error("nil breaker should report closed")
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute, isRefused, nil)

	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("attempt %d rejected early: %v", i, err)
		}
		b.Record(errRefused)
	}
	if b.State() != BreakerClosed {
		t.Fatalf("state = %v after 2 failures, want closed", b.State())
	}

	b.Allow() //nolint:errcheck
	b.Record(errRefused)
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v after 3 failures, want open", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrBridgeDown) {
		t.Errorf("expected ErrBridgeDown, got %v", err)
	}
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	b := NewBreaker(2, time.Minute, isRefused, nil)
	b.Record(errRefused)
	b.Record(nil)
	b.Record(errRefused)
	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_IgnoresNonTrippingErrors(t *testing.T) {
	b := NewBreaker(2, time.Minute, isRefused, nil)
	for i := 0; i < 5; i++ {
		b.Record(fmt.Errorf("read: %w", errHungUp))
	}
	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	var changes []string
	b := NewBreaker(1, 20*time.Millisecond, isRefused, func(from, to BreakerState) {
		changes = append(changes, from.String()+"->"+to.String())
	})

	b.Record(errRefused)
	time.Sleep(40 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("trial call rejected: %v", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrBridgeDown) {
		t.Errorf("second concurrent trial call should be rejected, got %v", err)
	}
	b.Record(nil)
	if b.State() != BreakerClosed {
		t.Fatalf("state = %v after good trial call, want closed", b.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if fmt.Sprint(changes) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", changes, want)
	}
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond, isRefused, nil)
	b.Record(errRefused)
	time.Sleep(20 * time.Millisecond)

	b.Allow() //nolint:errcheck
	b.Record(errRefused)
	if b.State() != BreakerOpen {
		t.Errorf("state = %v after failed trial call, want open", b.State())
	}
}

func TestBreakerState_String(t *testing.T) {
	tests := []struct {
		s    BreakerState
		want string
	}{
		{BreakerClosed, "closed"},
		{BreakerOpen, "open"},
		{BreakerHalfOpen, "half-open"},
		{BreakerState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
