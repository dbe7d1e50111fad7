package websocket

import "io"

// frameSocket layers the frame codec over a Stream plus read/write
// buffers, independent of any WebSocket-level semantics (role, state,
// compression). The WebSocket engine (conn.go) is the only caller;
// frameSocket itself knows nothing about control-frame handling, masking
// policy, or fragmentation semantics beyond "here is one frame".
type frameSocket struct {
	stream Stream
	in     *frameBuffer
	out    []byte
	outPos int // how much of out has already been written to stream

	maxFrameSize    int64
	writeBufferSize int
}

func newFrameSocket(stream Stream, maxFrameSize int64, writeBufferSize int) *frameSocket {
	return &frameSocket{
		stream:          stream,
		in:              newFrameBuffer(4096),
		maxFrameSize:    maxFrameSize,
		writeBufferSize: writeBufferSize,
	}
}

// primeRead seeds the input buffer with bytes already consumed by the
// opening handshake reader (the handshake's trailing buffer) so no
// WebSocket frame bytes that arrived in the same read as the handshake
// response/request terminator are lost.
func (s *frameSocket) primeRead(leftover []byte) {
	if len(leftover) == 0 {
		return
	}
	dst := s.in.Reserve(len(leftover))
	copy(dst, leftover)
	s.in.Commit(len(leftover))
}

// ReadFrame returns the next complete frame, or (nil, nil) on a clean EOF
// with no partial frame pending. ErrWouldBlock propagates from the
// underlying stream without being retried.
func (s *frameSocket) ReadFrame() (*Frame, error) {
	for {
		if f, n, err := ParseFrame(s.in.Bytes(), s.maxFrameSize); err != nil {
			return nil, err
		} else if f != nil {
			s.in.Discard(n)
			return f, nil
		}

		n, err := s.in.FillFrom(s.stream, 4096)
		if n == 0 && (err == nil || err == io.EOF) {
			return nil, nil // clean EOF, no partial frame
		}
		if n == 0 {
			return nil, err
		}
		// Some bytes were committed (possibly alongside a WouldBlock from
		// a partial underlying read); loop back to try parsing again
		// before deciding whether to surface err.
		if f, n2, perr := ParseFrame(s.in.Bytes(), s.maxFrameSize); perr != nil {
			return nil, perr
		} else if f != nil {
			s.in.Discard(n2)
			return f, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// WriteFrame appends the frame's serialized bytes to the output buffer and
// opportunistically flushes once the buffer exceeds writeBufferSize. It
// never blocks solely because the output buffer is non-empty; the caller
// decides when a full Flush is warranted.
func (s *frameSocket) WriteFrame(f *Frame) error {
	return s.WriteRaw(f.Serialize())
}

// WriteRaw appends already-serialized frame bytes to the output buffer.
// The WebSocket engine (conn.go) serializes frames itself -- masking a
// second time would undo the first -- so it calls this instead of
// WriteFrame, which would re-serialize.
func (s *frameSocket) WriteRaw(b []byte) error {
	s.out = append(s.out, b...)
	if len(s.out)-s.outPos >= s.writeBufferSize {
		return s.drain()
	}
	return nil
}

// Pending reports whether there are unflushed output bytes.
func (s *frameSocket) Pending() bool {
	return s.outPos < len(s.out)
}

// Flush writes all buffered bytes and flushes the underlying stream.
func (s *frameSocket) Flush() error {
	if err := s.drain(); err != nil {
		return err
	}
	return s.stream.Flush()
}

// drain writes as much of the buffered output as the stream accepts,
// tracking a resume offset so a subsequent call continues where the last
// one left off. ErrWouldBlock is surfaced, never retried internally.
func (s *frameSocket) drain() error {
	for s.outPos < len(s.out) {
		n, err := s.stream.Write(s.out[s.outPos:])
		s.outPos += n
		if err != nil {
			return err
		}
	}
	s.out = s.out[:0]
	s.outPos = 0
	return nil
}
