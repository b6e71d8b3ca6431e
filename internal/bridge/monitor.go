package bridge

import (
	"context"
	"strconv"
	"strings"
	"time"

	cerr "caseta/internal/errors"
)

// EventKind classifies an unsolicited line from the bridge.
type EventKind string

const (
	EventOutput EventKind = "OUTPUT"
	EventDevice EventKind = "DEVICE"
	EventError  EventKind = "ERROR"
	EventOther  EventKind = "OTHER"
)

// Event is one line received while monitoring.
type Event struct {
	Time time.Time
	Kind EventKind
	ID   int      // integration id, 0 when not applicable
	Args []string // fields after the id
	Raw  string
}

// Level returns the level carried by an "~OUTPUT,<id>,1,<level>"
// event.
func (e Event) Level() (float64, bool) {
	if e.Kind != EventOutput || len(e.Args) < 2 || e.Args[0] != strconv.Itoa(OutputActionSetLevel) {
		return 0, false
	}
	v, err := strconv.ParseFloat(e.Args[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseEvent classifies a single response line.
func ParseEvent(line string) Event {
	line = stripPrompt(strings.TrimSpace(line))
	ev := Event{Kind: EventOther, Raw: line}
	if !strings.HasPrefix(line, "~") {
		return ev
	}
	fields := strings.Split(line, ",")
	switch strings.TrimPrefix(fields[0], "~") {
	case "OUTPUT":
		ev.Kind = EventOutput
	case "DEVICE":
		ev.Kind = EventDevice
	case "ERROR":
		ev.Kind = EventError
		ev.Args = fields[1:]
		return ev
	default:
		return ev
	}
	if len(fields) > 1 {
		ev.ID, _ = strconv.Atoi(fields[1])
		ev.Args = fields[2:]
	}
	return ev
}

// Monitor enables bridge monitoring and calls fn for every line the
// bridge sends until ctx is done or the bridge hangs up.  It holds
// the session for its whole duration.  Cancelling ctx is the normal
// way to stop and returns nil; monitoring is switched off again on a
// best-effort basis.
func (s *Session) Monitor(ctx context.Context, fn func(Event)) error {
	if _, err := s.Send(ctx, MonitoringEnable); err != nil {
		return err
	}

	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	conn, err := s.readyConn()
	if err != nil {
		return err
	}

	for {
		line, err := s.reader.readUntil(ctx, conn, LineTerminator, 0)
		s.metrics.BytesReceived(int64(len(line)))
		if err != nil {
			if ctx.Err() != nil {
				s.writeLine(conn, MonitoringDisable) //nolint:errcheck
				s.logger.Verbose("monitoring stopped")
				return nil
			}
			s.fail(err)
			return &cerr.CommandTransportError{Op: "read", Command: MonitoringEnable, Err: err}
		}
		text := stripPrompt(strings.TrimSpace(string(line)))
		if text == "" {
			continue
		}
		ev := ParseEvent(text)
		ev.Time = time.Now()
		fn(ev)
	}
}
