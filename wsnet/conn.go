// Package wsnet adapts a real net.Conn (TCP, TLS, or anything satisfying
// the interface) into the websocket package's Stream capability, and
// provides Dial/Accept helpers that assemble URL parsing, TCP/TLS dialing,
// and the opening handshake into one-call ergonomics, while keeping the
// protocol engine itself (package websocket) decoupled from net entirely.
package wsnet

import (
	"errors"
	"net"
	"time"

	"github.com/vitalvas/wsforge/websocket"
)

// deadlineBudget is how far in the future a non-blocking Read/Write's
// deadline is pushed. It only needs to be small enough that a genuinely
// blocked call returns promptly as ErrWouldBlock; the adapter issues a
// fresh deadline on every call, so the absolute value doesn't otherwise
// matter.
const deadlineBudget = 10 * time.Millisecond

// Stream wraps a net.Conn so it satisfies websocket.Stream. When Blocking
// is false (the default for connections returned by Dial/Accept in
// non-blocking mode), Read and Write each arm a short deadline and
// translate the resulting net.Error.Timeout() into websocket.ErrWouldBlock,
// so the caller -- not this adapter -- decides when to retry. Flush is a
// no-op: net.Conn has no internal buffering to push out.
type Stream struct {
	Conn     net.Conn
	Blocking bool
}

// NewStream wraps conn for non-blocking use. Call SetBlocking(true) if the
// caller wants conn's normal blocking semantics instead.
func NewStream(conn net.Conn) *Stream {
	return &Stream{Conn: conn}
}

func (s *Stream) SetBlocking(blocking bool) {
	s.Blocking = blocking
}

func (s *Stream) Read(p []byte) (int, error) {
	if !s.Blocking {
		if err := s.Conn.SetReadDeadline(time.Now().Add(deadlineBudget)); err != nil {
			return 0, err
		}
		defer s.Conn.SetReadDeadline(time.Time{})
	}
	n, err := s.Conn.Read(p)
	if err != nil && isTimeout(err) {
		return n, websocket.ErrWouldBlock
	}
	return n, err
}

func (s *Stream) Write(p []byte) (int, error) {
	if !s.Blocking {
		if err := s.Conn.SetWriteDeadline(time.Now().Add(deadlineBudget)); err != nil {
			return 0, err
		}
		defer s.Conn.SetWriteDeadline(time.Time{})
	}
	n, err := s.Conn.Write(p)
	if err != nil && isTimeout(err) {
		return n, websocket.ErrWouldBlock
	}
	return n, err
}

// Flush is a no-op: net.Conn writes are unbuffered from this adapter's
// point of view (any OS-level buffering is outside Go's control).
func (s *Stream) Flush() error {
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
