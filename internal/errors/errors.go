// Package errors provides the error taxonomy for bridge sessions.
//
// Every session-level failure is one of three structured types:
// ConnectionError (the socket never came up), AuthenticationTimeout
// (a login marker never arrived) and CommandTransportError (a send or
// read broke after the session was ready).  A missing prompt after a
// command is not an error at all; callers see it as a caveat on the
// command result.
package errors

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotReady      = errors.New("session is not ready")
	ErrSessionClosed = errors.New("session is closed")
	ErrTimeout       = errors.New("operation timed out")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrInvalidZone   = errors.New("zone id must be a positive integer")
	ErrNotConnected  = errors.New("not connected")
	ErrUnverified    = errors.New("level not confirmed by bridge")
)

// ── Structured error types ───────────────────────────────────────────

// ConnectionError means the TCP connection to the bridge could not be
// established.  Fatal to the session.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthenticationTimeout means one of the handshake markers (login:,
// password:, GNET>) was not observed before the deadline.
type AuthenticationTimeout struct {
	Addr   string
	Marker string // marker that never arrived
	Err    error  // underlying read error, if any
}

func (e *AuthenticationTimeout) Error() string {
	s := fmt.Sprintf("login %s: timed out waiting for %q", e.Addr, e.Marker)
	if e.Err != nil && !isTimeout(e.Err) {
		s += fmt.Sprintf(": %v", e.Err)
	}
	return s
}

func (e *AuthenticationTimeout) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuthFailed}
	}
	return []error{ErrAuthFailed, e.Err}
}

// CommandTransportError means a send or read failed on a ready session
// (peer reset, broken pipe).
type CommandTransportError struct {
	Op      string // "send" or "read"
	Command string
	Err     error
}

func (e *CommandTransportError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Command, e.Err)
}

func (e *CommandTransportError) Unwrap() error { return e.Err }

// NetworkError represents a failure in a lower-level network
// operation such as an SSH tunnel dial.
type NetworkError struct {
	Op        string // operation: "dial", "tunnel", "browse"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // flag name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsConnectionError reports whether err came from establishing the
// TCP connection.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsAuthTimeout reports whether err is an [AuthenticationTimeout].
func IsAuthTimeout(err error) bool {
	var at *AuthenticationTimeout
	return errors.As(err, &at)
}

// IsTransportError reports whether err is a [CommandTransportError].
func IsTransportError(err error) bool {
	var te *CommandTransportError
	return errors.As(err, &te)
}

// IsRetryable reports whether err is worth retrying.  Only connection
// establishment failures qualify; a bridge that answered but refused
// the login, or a command that broke mid-flight, is left to the
// operator.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsAuthTimeout(err) || IsTransportError(err) {
		return false
	}
	if IsConnectionError(err) {
		return true
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() || opErr.Timeout() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// isTimeout reports whether err is a deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsTimeout reports whether err is a read/write deadline expiry.
func IsTimeout(err error) bool { return isTimeout(err) }

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
