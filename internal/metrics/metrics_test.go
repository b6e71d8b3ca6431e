package metrics

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestCollector_Sessions(t *testing.T) {
	c := New()

	c.SessionOpened()
	c.SessionOpened()
	if c.ActiveSessions() != 2 {
		t.Errorf("active = %d, want 2", c.ActiveSessions())
	}

	c.SessionClosed()
	if c.ActiveSessions() != 1 {
		t.Errorf("active = %d, want 1", c.ActiveSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalSessions())
	}

	c.HandshakeFailed()
	if c.HandshakesFailed() != 1 {
		t.Errorf("handshakes failed = %d, want 1", c.HandshakesFailed())
	}
}

func TestCollector_Commands(t *testing.T) {
	c := New()

	c.CommandSent()
	c.CommandSent()
	c.CommandSent()
	c.ResponseTimeout()
	c.BridgeError()

	if c.CommandsSent() != 3 {
		t.Errorf("commands = %d, want 3", c.CommandsSent())
	}
	if c.ResponseTimeouts() != 1 {
		t.Errorf("response timeouts = %d, want 1", c.ResponseTimeouts())
	}
	if c.BridgeErrors() != 1 {
		t.Errorf("bridge errors = %d, want 1", c.BridgeErrors())
	}
}

func TestCollector_Bytes(t *testing.T) {
	c := New()

	c.BytesReceived(64)
	c.BytesSent(20)
	c.BytesReceived(6)

	if c.TotalBytesIn() != 70 {
		t.Errorf("bytes in = %d, want 70", c.TotalBytesIn())
	}
	if c.TotalBytesOut() != 20 {
		t.Errorf("bytes out = %d, want 20", c.TotalBytesOut())
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("zone 10: connection refused")
	c.RecordError("zone 30: timed out waiting for \"login:\"")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
	snap := c.Snapshot()
	if snap.LastErrorMessage != "zone 30: timed out waiting for \"login:\"" {
		t.Errorf("last error = %q", snap.LastErrorMessage)
	}
	if snap.LastError == "" {
		t.Error("last error timestamp should be set")
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.SessionOpened()
			c.CommandSent()
			c.SessionClosed()
		}()
	}
	wg.Wait()

	if c.ActiveSessions() != 0 {
		t.Errorf("active = %d, want 0", c.ActiveSessions())
	}
	if c.TotalSessions() != 50 || c.CommandsSent() != 50 {
		t.Errorf("total = %d, commands = %d, want 50/50", c.TotalSessions(), c.CommandsSent())
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.SessionOpened()
	c.CommandSent()
	c.RecordError("ignored")
	if c.TotalSessions() != 0 || c.ErrorCount() != 0 {
		t.Error("nil collector should report zeros")
	}
	if (c.Snapshot() != Snapshot{}) {
		t.Error("nil collector should return empty snapshot")
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.CommandSent()

	var snap Snapshot
	if err := json.Unmarshal([]byte(c.JSON()), &snap); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if snap.SessionsTotal != 1 || snap.CommandsSent != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}
