// Package metrics counts what bridge sessions did during one caseta
// invocation: sessions opened, handshakes that failed, commands sent,
// prompts that never came back and bridge-reported errors.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics across every session of a run.
type Collector struct {
	sessionsActive   atomic.Int64
	sessionsTotal    atomic.Int64
	handshakesFailed atomic.Int64
	commandsSent     atomic.Int64
	responseTimeouts atomic.Int64
	bridgeErrors     atomic.Int64
	bytesIn          atomic.Int64
	bytesOut         atomic.Int64
	errorsTotal      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened records a session that completed its login handshake.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the number of sessions currently ready.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns how many sessions ever became ready.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// HandshakeFailed records a connect that did not reach the prompt.
func (c *Collector) HandshakeFailed() {
	if c == nil {
		return
	}
	c.handshakesFailed.Add(1)
}

// HandshakesFailed returns the failed handshake count.
func (c *Collector) HandshakesFailed() int64 {
	if c == nil {
		return 0
	}
	return c.handshakesFailed.Load()
}

// ── Command metrics ──────────────────────────────────────────────────

// CommandSent records one command line written to a bridge.
func (c *Collector) CommandSent() {
	if c == nil {
		return
	}
	c.commandsSent.Add(1)
}

// CommandsSent returns the number of commands written.
func (c *Collector) CommandsSent() int64 {
	if c == nil {
		return 0
	}
	return c.commandsSent.Load()
}

// ResponseTimeout records a command whose trailing prompt did not
// arrive in time.
func (c *Collector) ResponseTimeout() {
	if c == nil {
		return
	}
	c.responseTimeouts.Add(1)
}

// ResponseTimeouts returns the response timeout count.
func (c *Collector) ResponseTimeouts() int64 {
	if c == nil {
		return 0
	}
	return c.responseTimeouts.Load()
}

// BridgeError records a ~ERROR line in a command response.
func (c *Collector) BridgeError() {
	if c == nil {
		return
	}
	c.bridgeErrors.Add(1)
}

// BridgeErrors returns the number of ~ERROR responses seen.
func (c *Collector) BridgeErrors() int64 {
	if c == nil {
		return 0
	}
	return c.bridgeErrors.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from a bridge.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to a bridge.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	HandshakesFailed int64  `json:"handshakes_failed"`
	CommandsSent     int64  `json:"commands_sent"`
	ResponseTimeouts int64  `json:"response_timeouts"`
	BridgeErrors     int64  `json:"bridge_errors"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:           time.Since(c.startTime).Truncate(time.Millisecond).String(),
		SessionsActive:   c.sessionsActive.Load(),
		SessionsTotal:    c.sessionsTotal.Load(),
		HandshakesFailed: c.handshakesFailed.Load(),
		CommandsSent:     c.commandsSent.Load(),
		ResponseTimeouts: c.responseTimeouts.Load(),
		BridgeErrors:     c.bridgeErrors.Load(),
		BytesIn:          c.bytesIn.Load(),
		BytesOut:         c.bytesOut.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	data, _ := json.MarshalIndent(c.Snapshot(), "", "  ")
	return string(data)
}
