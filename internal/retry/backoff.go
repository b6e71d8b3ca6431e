// Package retry holds the reconnect policy used when a bridge refuses
// or drops connections: bounded exponential backoff and a breaker that
// stops dialing a bridge that is clearly down.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// PermanentError wraps an error to signal that retrying will not help.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff retries an operation with exponentially growing pauses.
type Backoff struct {
	// InitialDelay is the pause before the first retry (default 250ms).
	InitialDelay time.Duration
	// MaxDelay caps the pause (default 2s).
	MaxDelay time.Duration
	// Multiplier grows the pause each attempt (default 2).
	Multiplier float64
	// Attempts is the total number of tries including the first.
	// Values below 1 mean a single try.
	Attempts int
	// Jitter adds ±25% randomisation so parallel workers do not
	// reconnect in lockstep.
	Jitter bool
	// Retryable decides which errors are worth another try.  Nil
	// retries everything that is not Permanent.
	Retryable func(error) bool
	// OnRetry is called before each pause.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// ForRetries returns a jittered backoff allowing n retries after the
// first try, or nil when n is not positive.
func ForRetries(n int, retryable func(error) bool) *Backoff {
	if n <= 0 {
		return nil
	}
	return &Backoff{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		Attempts:     n + 1,
		Jitter:       true,
		Retryable:    retryable,
	}
}

// Do runs fn until it succeeds, returns an error that is permanent or
// not retryable, the attempt budget runs out, or ctx is done.  The
// error of the last attempt is returned unchanged so callers can still
// classify it.  A nil Backoff runs fn exactly once.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	if b == nil {
		return unwrapPermanent(fn(1))
	}
	delay := b.InitialDelay
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return unwrapPermanent(err)
		}
		if b.Retryable != nil && !b.Retryable(err) {
			return err
		}
		if attempt >= b.Attempts {
			return err
		}

		wait := delay
		if b.Jitter {
			wait = addJitter(delay)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, wait, err)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}

		delay = time.Duration(float64(delay) * multiplier)
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func unwrapPermanent(err error) error {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// addJitter adds ±25% randomisation to a duration.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	result := float64(d) + delta
	return time.Duration(math.Max(result, float64(time.Millisecond)))
}
