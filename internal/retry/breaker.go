package retry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBridgeDown is returned by Breaker.Allow while the breaker is open.
var ErrBridgeDown = errors.New("bridge unreachable, skipping")

// BreakerState is the position of a Breaker.
type BreakerState int

const (
	// BreakerClosed lets every dial through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects dials until the cooldown passes.
	BreakerOpen
	// BreakerHalfOpen lets one trial call through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker counts consecutive connection failures against one bridge.
// After Threshold of them it opens and rejects further attempts for
// Cooldown, then admits a single trial call.  Errors that Trips does not
// accept (a bridge that answered but misbehaved) neither count nor
// reset the streak.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	trips     func(error) bool
	onChange  func(from, to BreakerState)

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker returns a breaker, or nil when threshold is not positive.
// A nil *Breaker allows everything.
func NewBreaker(threshold int, cooldown time.Duration, trips func(error) bool, onChange func(from, to BreakerState)) *Breaker {
	if threshold <= 0 {
		return nil
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, trips: trips, onChange: onChange}
}

// Allow reports whether a connection attempt may proceed.
func (b *Breaker) Allow() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return fmt.Errorf("%w: %d consecutive connection failures", ErrBridgeDown, b.failures)
		}
		b.transition(BreakerHalfOpen)
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return fmt.Errorf("%w: trial call in flight", ErrBridgeDown)
		}
		b.probing = true
	}
	return nil
}

// Record feeds the outcome of an allowed attempt back to the breaker.
func (b *Breaker) Record(err error) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	wasTrial := b.state == BreakerHalfOpen
	b.probing = false

	if err == nil {
		b.failures = 0
		b.transition(BreakerClosed)
		return
	}
	if b.trips != nil && !b.trips(err) {
		if wasTrial {
			// The bridge answered, so it is up.
			b.failures = 0
			b.transition(BreakerClosed)
		}
		return
	}
	b.failures++
	if wasTrial || b.failures >= b.threshold {
		b.openedAt = time.Now()
		b.transition(BreakerOpen)
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	if b == nil {
		return BreakerClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
