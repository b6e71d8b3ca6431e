package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"caseta/tunnel"
	"caseta/util"
)

// SSHDialer reaches a bridge that is only routable from a remote LAN
// by logging in to a jump host there (--tunnel user@host).  The login
// happens on the first Dial and is shared by all bridge sessions, so
// batch workers dial concurrently over one SSH connection.
type SSHDialer struct {
	tunnel tunnel.Tunnel
	config *tunnel.SSHConfig
	logger *util.Logger

	mu       sync.Mutex
	loggedIn bool
}

// NewSSHDialer returns a dialer for the jump host in cfg.  Nothing is
// dialled until the first bridge session asks for a connection.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		tunnel: tunnel.NewJumpHost(cfg, logger),
		config: cfg,
		logger: logger,
	}
}

// ensure logs in to the jump host, or logs in again when the previous
// login dropped between bridge sessions.
func (d *SSHDialer) ensure(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.loggedIn && d.tunnel.IsAlive():
		return nil
	case d.loggedIn:
		d.logger.Warn("jump host %s dropped, logging in again", d.config.Host)
	default:
		d.logger.Verbose("reaching bridge through %s@%s:%d", d.config.User, d.config.Host, d.config.Port)
	}

	if err := d.tunnel.Connect(ctx); err != nil {
		d.loggedIn = false
		return fmt.Errorf("jump host: %w", err)
	}
	d.loggedIn = true
	return nil
}

// Dial connects to the bridge's Telnet address from the jump host.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.ensure(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Dial(ctx, network, address)
}

// Close logs out of the jump host.  It is a no-op when no bridge
// session was ever dialled.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loggedIn {
		return nil
	}
	d.loggedIn = false
	return d.tunnel.Close()
}
