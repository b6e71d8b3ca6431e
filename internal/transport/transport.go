// Package transport abstracts how a bridge session reaches the
// bridge's Telnet port: directly over TCP or through an SSH jump host.
// The session layer only ever sees a net.Conn.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound connections to the bridge.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH client).  Stateless dialers return nil.
	Close() error
}
