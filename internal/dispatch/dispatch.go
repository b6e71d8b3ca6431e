// Package dispatch fans a set of zone commands out over independent
// bridge sessions, either concurrently or one after another, and
// collects a per-zone outcome.
//
// Every zone gets its own session and connection.  Nothing is shared
// between zones except the slot its outcome is written to, and one
// zone failing never stops the others.
package dispatch

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"caseta/internal/bridge"
	cerr "caseta/internal/errors"
	"caseta/internal/retry"
	"caseta/util"
)

// Mode selects how zones are dispatched.
type Mode string

const (
	// Batch runs every zone concurrently.
	Batch Mode = "batch"
	// Sequential runs zones in order with a pause between them.
	Sequential Mode = "sequential"
)

// ParseMode accepts "batch" or "sequential" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Batch, Sequential:
		return m, nil
	case "":
		return Batch, nil
	default:
		return "", fmt.Errorf("unknown dispatch mode %q (want batch or sequential)", s)
	}
}

const (
	// DefaultDelay is the pause between zones in sequential mode.
	DefaultDelay = 500 * time.Millisecond
	// verifyTolerance is how far a read-back level may drift from the
	// requested one.  The bridge reports dimmer levels rounded.
	verifyTolerance = 1.0
)

// Dispatcher sends zone commands over per-zone sessions.
type Dispatcher struct {
	// NewSession returns a fresh, unopened session for one zone.
	NewSession func(zoneID int) *bridge.Session

	Mode Mode
	// Delay separates the end of one zone from the start of the next
	// in sequential mode.  Zero means DefaultDelay; negative means none.
	Delay time.Duration
	// Workers bounds concurrent sessions in batch mode.  Zero or less
	// means one worker per zone.
	Workers int
	// Stagger spaces out session launches in batch mode.
	Stagger time.Duration
	// Verify reads each zone back after setting it and fails the zone
	// when the bridge does not confirm the level.
	Verify bool

	// Retry, if set, re-dials zones whose connection could not be
	// established.  Nil means one attempt.
	Retry *retry.Backoff
	// Breaker, if set, stops dialing once the bridge looks down.
	Breaker *retry.Breaker

	Logger *util.Logger
}

// Outcome is the result of one zone command.
type Outcome struct {
	Command  bridge.ZoneCommand
	Result   bridge.Result
	Attempts int
	// Confirmed is set when Verify read back a matching level.
	Confirmed bool
	Err       error
	Elapsed   time.Duration
	// Finished is when the zone's session was closed.
	Finished time.Time
}

// OK reports whether the command reached the bridge.
func (o Outcome) OK() bool { return o.Err == nil }

// Caveat describes anything short of a clean success on a zone that
// still counts as sent, or "".
func (o Outcome) Caveat() string {
	if o.Err != nil {
		return ""
	}
	var notes []string
	if !o.Result.PromptSeen {
		notes = append(notes, "no prompt before timeout")
	}
	if o.Result.BridgeError != "" {
		notes = append(notes, "bridge replied "+o.Result.BridgeError)
	}
	return strings.Join(notes, "; ")
}

// Report collects every outcome in the order the commands were given.
type Report struct {
	Mode     Mode
	Outcomes []Outcome
	Elapsed  time.Duration
}

// Failed returns the outcomes that carry an error.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Succeeded returns the outcomes without an error.
func (r *Report) Succeeded() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Caveats returns successful outcomes that carry a caveat.
func (r *Report) Caveats() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Caveat() != "" {
			out = append(out, o)
		}
	}
	return out
}

// Err joins the per-zone errors, or returns nil when every zone
// succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("zone %d: %w", o.Command.ZoneID, o.Err))
		}
	}
	return cerr.Join(errs...)
}

// Run dispatches cmds and waits for all of them.  The returned report
// has one outcome per command; Run itself never fails.
func (d *Dispatcher) Run(ctx context.Context, cmds []bridge.ZoneCommand) *Report {
	start := time.Now()
	mode := d.Mode
	if mode == "" {
		mode = Batch
	}
	rep := &Report{Mode: mode, Outcomes: make([]Outcome, len(cmds))}

	d.Logger.Verbose("dispatching %d zone(s) in %s mode", len(cmds), mode)
	if mode == Sequential {
		d.runSequential(ctx, cmds, rep.Outcomes)
	} else {
		d.runBatch(ctx, cmds, rep.Outcomes)
	}

	rep.Elapsed = time.Since(start)
	d.Logger.Verbose("dispatch finished in %s: %d ok, %d failed",
		rep.Elapsed.Round(time.Millisecond), len(rep.Succeeded()), len(rep.Failed()))
	return rep
}

func (d *Dispatcher) runBatch(ctx context.Context, cmds []bridge.ZoneCommand, out []Outcome) {
	var g errgroup.Group
	if d.Workers > 0 {
		g.SetLimit(d.Workers)
	}
	for i, cmd := range cmds {
		if i > 0 && d.Stagger > 0 && !sleep(ctx, d.Stagger) {
			skip(ctx, cmds[i:], out[i:])
			break
		}
		g.Go(func() error {
			out[i] = d.runOne(ctx, cmd)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
}

func (d *Dispatcher) runSequential(ctx context.Context, cmds []bridge.ZoneCommand, out []Outcome) {
	delay := d.Delay
	if delay == 0 {
		delay = DefaultDelay
	}
	for i, cmd := range cmds {
		if i > 0 && delay > 0 && !sleep(ctx, delay) {
			skip(ctx, cmds[i:], out[i:])
			return
		}
		out[i] = d.runOne(ctx, cmd)
	}
}

// runOne does connect, set level and close for one zone.
func (d *Dispatcher) runOne(ctx context.Context, cmd bridge.ZoneCommand) (o Outcome) {
	o.Command = cmd
	start := time.Now()
	defer func() {
		o.Finished = time.Now()
		o.Elapsed = o.Finished.Sub(start)
	}()

	log := d.Logger.With(fmt.Sprintf("zone %d", cmd.ZoneID))
	if cmd.ZoneID <= 0 {
		o.Err = fmt.Errorf("zone %d: %w", cmd.ZoneID, cerr.ErrInvalidZone)
		return o
	}

	var sess *bridge.Session
	o.Err = d.Retry.Do(ctx, func(attempt int) error {
		o.Attempts = attempt
		if err := d.Breaker.Allow(); err != nil {
			return retry.Permanent(err)
		}
		s := d.NewSession(cmd.ZoneID)
		err := s.Connect(ctx)
		d.Breaker.Record(err)
		if err != nil {
			s.Close() //nolint:errcheck
			log.Debug("attempt %d: %v", attempt, err)
			return err
		}
		sess = s
		return nil
	})
	if o.Err != nil {
		log.Error("%v", o.Err)
		return o
	}
	defer sess.Close()

	o.Result, o.Err = sess.SetLevel(ctx, cmd.ZoneID, cmd.Level)
	if o.Err != nil {
		log.Error("%v", o.Err)
		return o
	}
	if !o.Result.PromptSeen {
		log.Warn("sent %s without seeing the prompt", o.Result.Command)
	}

	if d.Verify {
		o.Err = d.verify(ctx, sess, cmd, &o)
		if o.Err != nil {
			log.Error("%v", o.Err)
		}
	}
	return o
}

func (d *Dispatcher) verify(ctx context.Context, sess *bridge.Session, cmd bridge.ZoneCommand, o *Outcome) error {
	got, ok, err := sess.GetLevel(ctx, cmd.ZoneID)
	if err != nil {
		return err
	}
	want := bridge.ClampLevel(cmd.Level)
	if !ok {
		return fmt.Errorf("no level reported: %w", cerr.ErrUnverified)
	}
	if math.Abs(got-want) > verifyTolerance {
		return fmt.Errorf("bridge reports %.2f, want %.2f: %w", got, want, cerr.ErrUnverified)
	}
	o.Confirmed = true
	return nil
}

// skip marks commands that never started because ctx ended.
func skip(ctx context.Context, cmds []bridge.ZoneCommand, out []Outcome) {
	for i, cmd := range cmds {
		out[i] = Outcome{Command: cmd, Err: fmt.Errorf("not dispatched: %w", context.Cause(ctx))}
	}
}

// sleep waits d or until ctx is done, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
