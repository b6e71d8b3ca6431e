package core

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"caseta/config"
	"caseta/internal/bridge"
)

// testBridge is a minimal integration server.  replies maps a command
// to the text sent back before the next prompt; with hold set for a
// command, no prompt follows.
type testBridge struct {
	ln      net.Listener
	replies map[string]string
	hold    map[string]bool

	mu       sync.Mutex
	commands []string
	conns    []net.Conn
}

func newTestBridge(t *testing.T, replies map[string]string) *testBridge {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	tb := &testBridge{ln: ln, replies: replies, hold: map[string]bool{}}
	t.Cleanup(func() {
		ln.Close()
		tb.mu.Lock()
		defer tb.mu.Unlock()
		for _, c := range tb.conns {
			c.Close()
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			tb.mu.Lock()
			tb.conns = append(tb.conns, conn)
			tb.mu.Unlock()
			go tb.handle(conn)
		}
	}()
	return tb
}

func (tb *testBridge) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	conn.Write([]byte("login: ")) //nolint:errcheck
	if _, err := r.ReadString('\n'); err != nil {
		return
	}
	conn.Write([]byte("password: ")) //nolint:errcheck
	if _, err := r.ReadString('\n'); err != nil {
		return
	}
	conn.Write([]byte("\r\nGNET> ")) //nolint:errcheck

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		tb.mu.Lock()
		tb.commands = append(tb.commands, cmd)
		reply, hold := tb.replies[cmd], tb.hold[cmd]
		tb.mu.Unlock()
		if hold {
			conn.Write([]byte(reply)) //nolint:errcheck
			continue
		}
		conn.Write([]byte(reply + "GNET> ")) //nolint:errcheck
	}
}

func (tb *testBridge) received() []string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return append([]string(nil), tb.commands...)
}

func (tb *testBridge) port() int { return tb.ln.Addr().(*net.TCPAddr).Port }

// testConfig points a config at tb with short timeouts.
func (tb *testBridge) testConfig(cmd config.Command) *config.Config {
	cfg := config.Defaults()
	cfg.Command = cmd
	cfg.Host = "127.0.0.1"
	cfg.Port = tb.port()
	cfg.Timeout = 500 * time.Millisecond
	cfg.CommandDelay = time.Millisecond
	cfg.Stagger = 0
	return cfg
}

func (tb *testBridge) session() *bridge.Session {
	return bridge.New(bridge.Config{
		Host:         "127.0.0.1",
		Port:         tb.port(),
		Timeout:      500 * time.Millisecond,
		CommandDelay: time.Millisecond,
	}, nil, nil, nil)
}
