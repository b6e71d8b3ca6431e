package bridge

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeBridge is a scripted integration server on 127.0.0.1.
type fakeBridge struct {
	t  *testing.T
	ln net.Listener

	// respond returns the text written after a command, before the
	// prompt.  hold=true suppresses the prompt; hangup=true closes
	// the connection instead of answering.
	respond func(cmd string) (reply string, hold, hangup bool)

	// greeting overrides the handshake; nil runs the real one.
	greeting func(conn net.Conn, r *bufio.Reader)

	mu    sync.Mutex
	lines []string // raw lines received, terminators included
	conns []net.Conn
}

func newFakeBridge(t *testing.T) *fakeBridge {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	fb := &fakeBridge{t: t, ln: ln}
	fb.respond = func(string) (string, bool, bool) { return "", false, false }
	t.Cleanup(fb.close)
	go fb.serve()
	return fb
}

func (fb *fakeBridge) config() Config {
	addr := fb.ln.Addr().(*net.TCPAddr)
	return Config{
		Host:         addr.IP.String(),
		Port:         addr.Port,
		Timeout:      500 * time.Millisecond,
		CommandDelay: time.Millisecond,
	}
}

func (fb *fakeBridge) close() {
	fb.ln.Close()
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, c := range fb.conns {
		c.Close()
	}
}

func (fb *fakeBridge) received() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.lines...)
}

func (fb *fakeBridge) serve() {
	for {
		conn, err := fb.ln.Accept()
		if err != nil {
			return
		}
		fb.mu.Lock()
		fb.conns = append(fb.conns, conn)
		fb.mu.Unlock()
		go fb.handle(conn)
	}
}

func (fb *fakeBridge) readLine(r *bufio.Reader) (string, bool) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", false
	}
	fb.mu.Lock()
	fb.lines = append(fb.lines, line)
	fb.mu.Unlock()
	return strings.TrimRight(line, "\r\n"), true
}

func (fb *fakeBridge) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	if fb.greeting != nil {
		fb.greeting(conn, r)
		return
	}

	conn.Write([]byte("login: ")) //nolint:errcheck
	if _, ok := fb.readLine(r); !ok {
		return
	}
	conn.Write([]byte("password: ")) //nolint:errcheck
	if _, ok := fb.readLine(r); !ok {
		return
	}
	conn.Write([]byte("\r\nGNET> ")) //nolint:errcheck

	for {
		cmd, ok := fb.readLine(r)
		if !ok {
			return
		}
		reply, hold, hangup := fb.respond(cmd)
		if hangup {
			return
		}
		if reply != "" {
			conn.Write([]byte(reply)) //nolint:errcheck
		}
		if !hold {
			conn.Write([]byte("GNET> ")) //nolint:errcheck
		}
	}
}
