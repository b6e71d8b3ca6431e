package core

import (
	"context"
	"io"

	"caseta/internal/bridge"
	"caseta/internal/shell"
	"caseta/internal/transport"
)

// ShellMode opens an interactive prompt on one bridge session.
type ShellMode struct {
	Session *bridge.Session
	Dialer  transport.Dialer
	In      io.ReadCloser
	Out     io.Writer
	// Reader overrides the terminal line editor; used by tests.
	Reader shell.LineReader
}

// Run connects and hands the session to the shell.
func (m *ShellMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	if err := m.Session.Connect(ctx); err != nil {
		return err
	}
	defer m.Session.Close()

	in := m.Reader
	if in == nil {
		rl, err := shell.NewReadline(m.In, m.Out)
		if err != nil {
			return err
		}
		defer rl.Close()
		in = rl
	}
	return shell.Run(ctx, m.Session, in, m.Out)
}
