// Package bridge implements one Telnet integration session with a
// Lutron Caseta Smart Bridge Pro or RA2 Select main repeater: connect,
// log in, send commands, read prompt-framed responses, close.
//
// A Session owns exactly one connection.  Sessions are cheap and meant
// to be created per command (or per batch worker) and discarded after
// Close; a Session is never reopened.
package bridge

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	cerr "caseta/internal/errors"
	"caseta/internal/metrics"
	"caseta/internal/transport"
	"caseta/util"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateUnopened State = iota
	StateConnecting
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Default timings.
const (
	DefaultTimeout      = 3 * time.Second
	DefaultCommandDelay = 100 * time.Millisecond
)

// Config addresses one bridge.  Zero values fall back to the defaults
// above and to the factory integration credentials.
type Config struct {
	Host         string
	Port         int
	Timeout      time.Duration // bound on every blocking step
	CommandDelay time.Duration // pause between send and response read
	Username     string
	Password     string
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CommandDelay < 0 {
		c.CommandDelay = 0
	} else if c.CommandDelay == 0 {
		c.CommandDelay = DefaultCommandDelay
	}
	if c.Username == "" {
		c.Username = DefaultUsername
	}
	if c.Password == "" {
		c.Password = DefaultPassword
	}
	return c
}

// Addr returns host:port.
func (c Config) Addr() string {
	return util.FormatAddr(c.Host, c.withDefaults().Port)
}

// Result describes the outcome of one command that was written to the
// bridge.
type Result struct {
	Command string
	Sent    bool
	// PromptSeen is false when the bridge did not return to GNET>
	// before the timeout.  The command still counts as sent; the
	// caller just cannot be sure the bridge finished processing it.
	PromptSeen bool
	// Response is the text received after the command, without the
	// trailing prompt.  It may be partial when PromptSeen is false.
	Response string
	// BridgeError is the first ~ERROR line in Response, if any.
	BridgeError string
}

// Session is one Telnet connection to a bridge.
type Session struct {
	cfg     Config
	dialer  transport.Dialer
	logger  *util.Logger
	metrics *metrics.Collector
	id      string

	// cmdMu serialises everything that reads or writes the
	// connection, so at most one command is in flight.
	cmdMu  sync.Mutex
	reader *frameReader
	// stale is set when a command gave up on its prompt; the late
	// reply is discarded before the next write.
	stale bool

	// mu guards state and conn.  It is never held across I/O, which
	// keeps Close non-blocking while a command is waiting on a read.
	mu    sync.Mutex
	state State
	conn  net.Conn
}

// New returns an unopened session.  A nil dialer dials plain TCP with
// the session timeout; nil logger and collector are allowed.
func New(cfg Config, dialer transport.Dialer, logger *util.Logger, m *metrics.Collector) *Session {
	cfg = cfg.withDefaults()
	if dialer == nil {
		dialer = &transport.TCPDialer{Timeout: cfg.Timeout}
	}
	id := uuid.New().String()[:8]
	return &Session{
		cfg:     cfg,
		dialer:  dialer,
		logger:  logger.With(id),
		metrics: m,
		id:      id,
		reader:  newFrameReader(),
	}
}

// ID returns the short identifier used in log lines.
func (s *Session) ID() string { return s.id }

// Addr returns the bridge address this session dials.
func (s *Session) Addr() string { return s.cfg.Addr() }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the bridge and performs the login handshake:
// wait for "login:", send the username, wait for "password:", send the
// password, wait for "GNET>".  Each wait is bounded by the session
// timeout.  On any failure the connection is closed and the session
// returns to the unopened state.
func (s *Session) Connect(ctx context.Context) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case StateUnopened:
		s.state = StateConnecting
	case StateClosed:
		s.mu.Unlock()
		return cerr.ErrSessionClosed
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("connect: session is already %s", st)
	}
	s.mu.Unlock()

	addr := s.cfg.Addr()
	s.logger.Verbose("connecting to %s", addr)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	conn, err := s.dialer.Dial(dialCtx, "tcp", addr)
	cancel()
	if err != nil {
		s.abortConnect(nil)
		return &cerr.ConnectionError{Addr: addr, Err: err}
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Closed underneath us.
		s.mu.Unlock()
		conn.Close()
		return cerr.ErrSessionClosed
	}
	s.conn = conn
	s.mu.Unlock()
	s.reader.reset()

	if err := s.login(ctx, conn, addr); err != nil {
		s.abortConnect(conn)
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return cerr.ErrSessionClosed
	}
	s.state = StateReady
	s.mu.Unlock()

	s.metrics.SessionOpened()
	s.logger.Verbose("logged in to %s", addr)
	return nil
}

func (s *Session) login(ctx context.Context, conn net.Conn, addr string) error {
	steps := []struct {
		marker string
		reply  string
	}{
		{LoginMarker, s.cfg.Username},
		{PasswordMarker, s.cfg.Password},
		{PromptMarker, ""},
	}
	for _, step := range steps {
		data, err := s.reader.readUntil(ctx, conn, step.marker, s.cfg.Timeout)
		s.metrics.BytesReceived(int64(len(data)))
		if err != nil {
			s.logger.Debug("handshake stalled before %q after %q", step.marker, data)
			return &cerr.AuthenticationTimeout{Addr: addr, Marker: step.marker, Err: err}
		}
		s.logger.Debug("saw %q", step.marker)
		if step.reply == "" {
			continue
		}
		if err := s.writeLine(conn, step.reply); err != nil {
			return &cerr.ConnectionError{Addr: addr, Err: err}
		}
	}
	return nil
}

// abortConnect closes a half-open connection and rewinds the state so
// the failure is visible, unless Close already moved it to closed.
func (s *Session) abortConnect(conn net.Conn) {
	s.metrics.HandshakeFailed()
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	s.conn = nil
	if s.state == StateConnecting {
		s.state = StateUnopened
	}
}

// SetLevel sets zoneID to level percent.  The level is clamped to
// [0, 100].  A nil error means the command was written; check
// Result.PromptSeen and Result.BridgeError for the bridge's side.
func (s *Session) SetLevel(ctx context.Context, zoneID int, level float64) (Result, error) {
	if zoneID <= 0 {
		return Result{}, fmt.Errorf("zone %d: %w", zoneID, cerr.ErrInvalidZone)
	}
	return s.Send(ctx, FormatOutputCommand(zoneID, level))
}

// Send writes one integration command and reads until the next prompt
// or the timeout, whichever comes first.  Running out of time is not
// an error; transport failures are, and they close the session.
func (s *Session) Send(ctx context.Context, command string) (Result, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	conn, err := s.readyConn()
	if err != nil {
		return Result{Command: command}, err
	}

	res := Result{Command: command}
	if s.stale {
		if err := s.resync(ctx, conn); err != nil {
			return res, &cerr.CommandTransportError{Op: "read", Command: command, Err: err}
		}
	}
	if err := s.writeLine(conn, command); err != nil {
		s.fail(err)
		return res, &cerr.CommandTransportError{Op: "send", Command: command, Err: err}
	}
	res.Sent = true
	s.metrics.CommandSent()
	s.logger.Verbose("sent %s", command)

	if s.cfg.CommandDelay > 0 {
		t := time.NewTimer(s.cfg.CommandDelay)
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		t.Stop()
	}

	data, err := s.reader.readUntil(ctx, conn, PromptMarker, s.cfg.Timeout)
	s.metrics.BytesReceived(int64(len(data)))
	switch {
	case err == nil:
		res.PromptSeen = true
	case cerr.IsTimeout(err) || ctx.Err() != nil:
		s.stale = true
		s.metrics.ResponseTimeout()
		s.logger.Warn("%s: no prompt within %s, assuming delivered", command, s.cfg.Timeout)
	default:
		s.fail(err)
		return res, &cerr.CommandTransportError{Op: "read", Command: command, Err: err}
	}

	res.Response = trimResponse(string(data), command)
	if res.BridgeError = ParseError(res.Response); res.BridgeError != "" {
		s.metrics.BridgeError()
		s.logger.Warn("%s: bridge replied %s", command, res.BridgeError)
	}
	return res, nil
}

// resync waits up to one timeout for the prompt that ends the previous
// command's late reply, then drops everything buffered so far.
func (s *Session) resync(ctx context.Context, conn net.Conn) error {
	data, err := s.reader.readUntil(ctx, conn, PromptMarker, s.cfg.Timeout)
	s.metrics.BytesReceived(int64(len(data)))
	s.reader.reset()
	if err != nil && !cerr.IsTimeout(err) && ctx.Err() == nil {
		s.fail(err)
		return err
	}
	if len(data) > 0 {
		s.logger.Debug("discarded %d bytes of late reply", len(data))
	}
	s.stale = err != nil
	return nil
}

// Close releases the connection.  It is idempotent, safe before
// Connect and never waits for an in-flight command.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state = StateClosed
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if prev == StateReady {
		s.metrics.SessionClosed()
		s.logger.Debug("closed")
	}
	return err
}

// readyConn returns the connection if the session is ready.
func (s *Session) readyConn() (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateReady:
		return s.conn, nil
	case StateClosed:
		return nil, cerr.ErrSessionClosed
	default:
		return nil, cerr.ErrNotReady
	}
}

// fail moves a ready session to closed after a transport error.
func (s *Session) fail(err error) {
	s.metrics.RecordError(err.Error())
	s.logger.Debug("transport error, closing: %v", err)
	s.Close() //nolint:errcheck
}

func (s *Session) writeLine(conn net.Conn, line string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		return err
	}
	n, err := conn.Write([]byte(line + LineTerminator))
	s.metrics.BytesSent(int64(n))
	return err
}

// trimResponse drops the echoed command and the trailing prompt.
func trimResponse(raw, command string) string {
	raw = strings.TrimSuffix(strings.TrimRight(raw, " "), PromptMarker)
	var lines []string
	for _, line := range splitLines(raw) {
		if line == command {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
