package tunnel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"

	cerr "caseta/internal/errors"
	"caseta/util"
)

// SSHConfig describes the jump host that sits on the bridge's LAN.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
}

func (c *SSHConfig) addr() string { return util.FormatAddr(c.Host, c.Port) }

// JumpHost implements [Tunnel].  One SSH client is shared by every
// bridge session; each session rides its own direct-tcpip channel.
type JumpHost struct {
	config *SSHConfig
	logger *util.Logger

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool

	// channels counts bridge sessions forwarded since Connect.
	channels atomic.Int64
}

// NewJumpHost returns an unconnected jump host with port 22 and a 10s
// connect timeout filled in when unset.
func NewJumpHost(cfg *SSHConfig, logger *util.Logger) *JumpHost {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 10 * time.Second
	}
	return &JumpHost{config: cfg, logger: logger}
}

// Connect logs in to the jump host.  A previous client, if any, is
// replaced.
func (j *JumpHost) Connect(ctx context.Context) error {
	c := j.config

	auth, err := BuildAuthMethods(c)
	if err != nil {
		return cerr.WrapSSH("auth", c.Host, c.Port, err)
	}
	hostKeys, err := hostKeyCallback(c)
	if err != nil {
		return cerr.WrapSSH("hostkey", c.Host, c.Port, err)
	}

	j.logger.Debug("jump host: dialing %s as %s", c.addr(), c.User)
	raw, err := (&net.Dialer{Timeout: c.ConnTimeout}).DialContext(ctx, "tcp", c.addr())
	if err != nil {
		return cerr.Wrap("dial", c.addr(), err)
	}

	// ssh.NewClientConn takes no context, so the deadline bounds the
	// key exchange and login.
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.ConnTimeout)
	}
	raw.SetDeadline(deadline) //nolint:errcheck

	conn, chans, reqs, err := ssh.NewClientConn(raw, c.addr(), &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         c.ConnTimeout,
	})
	if err != nil {
		raw.Close()
		return cerr.WrapSSH("handshake", c.Host, c.Port, err)
	}
	raw.SetDeadline(time.Time{}) //nolint:errcheck

	client := ssh.NewClient(conn, chans, reqs)

	j.mu.Lock()
	if j.client != nil {
		j.client.Close()
	}
	j.client = client
	j.alive = true
	j.mu.Unlock()
	j.channels.Store(0)

	j.logger.Debug("jump host: logged in to %s (server %s)", c.addr(), conn.ServerVersion())
	go j.watch(client)
	return nil
}

// Dial opens a channel from the jump host to the bridge's Telnet port.
// Only TCP is forwarded.
func (j *JumpHost) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("jump host forwards tcp only, not %s", network)
	}

	j.mu.RLock()
	client, alive := j.client, j.alive
	j.mu.RUnlock()
	if !alive || client == nil {
		return nil, cerr.ErrNotConnected
	}

	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("bridge %s via %s: %w", address, j.config.Host, err)
	}
	n := j.channels.Add(1)
	j.logger.Debug("jump host: bridge session %d to %s", n, address)
	return conn, nil
}

// Close logs out of the jump host.  Open bridge sessions lose their
// connection.
func (j *JumpHost) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.alive = false
	if j.client == nil {
		return nil
	}
	err := j.client.Close()
	j.client = nil
	return err
}

// IsAlive reports whether the SSH login is still up.
func (j *JumpHost) IsAlive() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.alive
}

// Sessions returns how many bridge sessions were forwarded since the
// last Connect.
func (j *JumpHost) Sessions() int64 { return j.channels.Load() }

// watch waits for client to go away and marks the jump host down,
// unless a reconnect already replaced client.
func (j *JumpHost) watch(client *ssh.Client) {
	err := client.Wait()

	j.mu.Lock()
	current := j.client == client
	if current {
		j.alive = false
	}
	j.mu.Unlock()

	if !current {
		return
	}
	if err != nil {
		j.logger.Debug("jump host %s dropped after %d bridge sessions: %v", j.config.Host, j.Sessions(), err)
	} else {
		j.logger.Debug("jump host %s closed after %d bridge sessions", j.config.Host, j.Sessions())
	}
}
