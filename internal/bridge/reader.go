package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	cerr "caseta/internal/errors"
)

const readChunkSize = 4096

// frameReader accumulates inbound bytes until a marker substring shows
// up.  Bytes after the marker stay buffered for the next read.
type frameReader struct {
	buf   []byte
	chunk []byte
}

func newFrameReader() *frameReader {
	return &frameReader{chunk: make([]byte, readChunkSize)}
}

// reset drops anything buffered from a previous connection.
func (r *frameReader) reset() { r.buf = r.buf[:0] }

// readUntil reads from conn until the buffer contains marker, then
// returns everything up to and including it.  A zero timeout waits
// indefinitely (ctx still applies).
//
// On deadline expiry or ctx cancellation the buffered bytes are handed
// back as partial data together with an error wrapping ErrTimeout or
// ctx.Err().  Any other read error is returned as-is.
func (r *frameReader) readUntil(ctx context.Context, conn net.Conn, marker string, timeout time.Duration) ([]byte, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	// Unblock a pending Read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now()) //nolint:errcheck
	})
	defer stop()

	m := []byte(marker)
	for {
		if i := bytes.Index(r.buf, m); i >= 0 {
			return r.take(i + len(m)), nil
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return r.take(len(r.buf)), fmt.Errorf("waiting for %q: %w", marker, cerr.ErrTimeout)
		}

		// Deadline first, then the ctx check: if ctx fires after this
		// point the AfterFunc overrides the deadline and Read returns.
		if err := conn.SetReadDeadline(deadline); err != nil {
			return r.take(len(r.buf)), err
		}
		if err := ctx.Err(); err != nil {
			return r.take(len(r.buf)), fmt.Errorf("waiting for %q: %w", marker, err)
		}

		n, err := conn.Read(r.chunk)
		r.buf = append(r.buf, r.chunk[:n]...)
		if err != nil {
			if isDeadline(err) {
				continue // loop decides between ctx, deadline and a late marker
			}
			if bytes.Contains(r.buf, m) {
				continue
			}
			return r.take(len(r.buf)), err
		}
	}
}

// take removes the first n buffered bytes and returns a copy.
func (r *frameReader) take(n int) []byte {
	out := make([]byte, n)
	copy(out, r.buf[:n])
	rest := copy(r.buf, r.buf[n:])
	r.buf = r.buf[:rest]
	return out
}

func isDeadline(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
