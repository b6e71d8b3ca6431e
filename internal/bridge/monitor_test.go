package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		line string
		kind EventKind
		id   int
		args []string
	}{
		{"~OUTPUT,10,1,75.00", EventOutput, 10, []string{"1", "75.00"}},
		{"GNET> ~OUTPUT,11,1,0.00", EventOutput, 11, []string{"1", "0.00"}},
		{"~DEVICE,2,3,3", EventDevice, 2, []string{"3", "3"}},
		{"~ERROR,Enum=(6, 0x00000006)", EventError, 0, []string{"Enum=(6", "0x00000006)"}},
		{"~SYSTEM,1,12:00:00", EventOther, 0, nil},
		{"hello", EventOther, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			ev := ParseEvent(tt.line)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.id, ev.ID)
			if tt.args == nil {
				assert.Empty(t, ev.Args)
			} else {
				assert.Equal(t, len(tt.args), len(ev.Args))
				assert.Equal(t, tt.args[0], ev.Args[0])
			}
		})
	}
}

func TestEvent_Level(t *testing.T) {
	lvl, ok := ParseEvent("~OUTPUT,10,1,75.00").Level()
	assert.True(t, ok)
	assert.Equal(t, 75.0, lvl)

	_, ok = ParseEvent("~OUTPUT,10,2,5").Level()
	assert.False(t, ok, "action 2 is not a level")

	_, ok = ParseEvent("~DEVICE,2,3,3").Level()
	assert.False(t, ok)

	_, ok = ParseEvent("~OUTPUT,10,1,bright").Level()
	assert.False(t, ok)
}

func TestSession_Monitor(t *testing.T) {
	fb := newFakeBridge(t)
	fb.respond = func(cmd string) (string, bool, bool) {
		if cmd == MonitoringEnable {
			// Prompt first, then two unsolicited lines.
			return "GNET> ~OUTPUT,10,1,40.00\r\nGNET> ~DEVICE,2,3,3\r\n", true, false
		}
		return "", true, false
	}
	s := newTestSession(fb.config(), nil)
	defer s.Close()
	require.NoError(t, s.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []Event
	done := make(chan error, 1)
	go func() {
		done <- s.Monitor(ctx, func(ev Event) {
			mu.Lock()
			events = append(events, ev)
			if len(events) == 2 {
				cancel()
			}
			mu.Unlock()
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("monitor did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, EventOutput, events[0].Kind)
	assert.Equal(t, 10, events[0].ID)
	assert.False(t, events[0].Time.IsZero())
	assert.Equal(t, EventDevice, events[1].Kind)

	assert.Contains(t, fb.received(), MonitoringEnable+LineTerminator)
}

func TestSession_MonitorNotReady(t *testing.T) {
	s := newTestSession(Config{Host: "127.0.0.1"}, nil)
	err := s.Monitor(context.Background(), func(Event) {})
	assert.Error(t, err)
}
